package chat

import (
	"strings"

	"github.com/integrasalud/integrasalud/pkg/model"
)

// DefaultLearnedLimit bounds the learned answers kept per topic and session
const DefaultLearnedLimit = 256

// Memo holds answers learned from the generator for one topic of one session.
// Entries are matched after the topic's seed keywords, in insertion order.
// A limit of zero or less keeps every entry; otherwise the oldest entry is
// evicted once the limit is exceeded.
type Memo struct {
	entries []model.Keyword
	limit   int
}

func NewMemo(limit int) *Memo {
	return &Memo{limit: limit}
}

// Match returns the answer of the first learned trigger contained in query
func (m *Memo) Match(query string) (string, bool) {
	if m == nil {
		return "", false
	}
	for _, kw := range m.entries {
		if strings.Contains(query, kw.Trigger) {
			return kw.Answer, true
		}
	}
	return "", false
}

// Learn stores answer under trigger. Blank triggers are ignored because they
// would match every later query.
func (m *Memo) Learn(trigger, answer string) {
	if m == nil || strings.TrimSpace(trigger) == "" {
		return
	}

	for i := range m.entries {
		if m.entries[i].Trigger == trigger {
			m.entries[i].Answer = answer
			return
		}
	}

	m.entries = append(m.entries, model.Keyword{Trigger: trigger, Answer: answer})
	if m.limit > 0 && len(m.entries) > m.limit {
		m.entries = append([]model.Keyword(nil), m.entries[len(m.entries)-m.limit:]...)
	}
}

func (m *Memo) Len() int {
	if m == nil {
		return 0
	}
	return len(m.entries)
}

// Entries returns a copy of the learned entries in match order
func (m *Memo) Entries() []model.Keyword {
	if m == nil {
		return nil
	}
	return append([]model.Keyword(nil), m.entries...)
}
