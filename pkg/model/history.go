package model

// HistoryEntry is one exchange of the current topic's conversation
type HistoryEntry struct {
	Query  string `json:"query"`
	Answer string `json:"answer"`
}
