package model

// Token is an anonymous booking placeholder. It is never stored.
type Token struct {
	Code      string `json:"code"`
	Facility  string `json:"facility"`
	Specialty string `json:"specialty"`
}
