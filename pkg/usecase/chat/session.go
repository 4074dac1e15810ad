package chat

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/integrasalud/integrasalud/pkg/knowledge"
	"github.com/integrasalud/integrasalud/pkg/metrics"
	"github.com/integrasalud/integrasalud/pkg/model"
	"github.com/integrasalud/integrasalud/pkg/utils/logging"
	"github.com/m-mizutani/goerr/v2"
)

var ErrEmptyQuery = goerr.New("query is empty")

// TokenIssuer creates anonymous appointment codes
type TokenIssuer interface {
	Issue(facility, specialty string) *model.Token
}

// Session is the state of one user's consultation: selected topic, history of
// the topic, current view and answers learned per topic. It is safe for
// concurrent use; calls are serialized.
type Session struct {
	mu sync.Mutex

	id       model.SessionID
	catalog  *knowledge.Catalog
	resolver *Resolver
	issuer   TokenIssuer
	metrics  *metrics.Metrics

	topic        *model.Topic
	history      []model.HistoryEntry
	view         model.View
	learned      map[model.TopicID]*Memo
	learnedLimit int

	// unix nanoseconds, readable without mu
	lastActive atomic.Int64
}

// NewInput contains parameters for creating a new session
type NewInput struct {
	Catalog  *knowledge.Catalog
	Resolver *Resolver
	Issuer   TokenIssuer
	Metrics  *metrics.Metrics

	// Topic to start with; the catalog's first topic when empty
	Topic model.TopicID
	// LearnedLimit bounds learned answers per topic; zero or less is unbounded
	LearnedLimit int
}

func New(input NewInput) (*Session, error) {
	if input.Catalog == nil {
		return nil, goerr.New("catalog is required")
	}
	if input.Resolver == nil {
		return nil, goerr.New("resolver is required")
	}
	if input.Issuer == nil {
		return nil, goerr.New("issuer is required")
	}

	topic := input.Catalog.First()
	if input.Topic != "" {
		t, err := input.Catalog.Get(input.Topic)
		if err != nil {
			return nil, err
		}
		topic = t
	}

	s := &Session{
		id:           model.NewSessionID(),
		catalog:      input.Catalog,
		resolver:     input.Resolver,
		issuer:       input.Issuer,
		metrics:      input.Metrics,
		topic:        topic,
		view:         model.ViewChat,
		learned:      make(map[model.TopicID]*Memo),
		learnedLimit: input.LearnedLimit,
	}
	s.touch()
	return s, nil
}

func (s *Session) ID() model.SessionID {
	return s.id
}

// Ask resolves query against the current topic. Appointment intent switches
// the session to the token view and is not recorded in history; any other
// answer returns the session to the chat view.
func (s *Session) Ask(ctx context.Context, query string) (*model.Answer, error) {
	if strings.TrimSpace(query) == "" {
		return nil, ErrEmptyQuery
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.touch()

	ctx = logging.With(ctx, logging.From(ctx).With("session", s.id))
	answer := s.resolver.Resolve(ctx, query, s.topic, s.memo(s.topic.ID))

	if answer.Provenance == model.ProvenanceAppointmentIntent {
		s.view = model.ViewToken
		return answer, nil
	}

	s.view = model.ViewChat
	s.history = append(s.history, model.HistoryEntry{Query: query, Answer: answer.Text})
	return answer, nil
}

func (s *Session) memo(id model.TopicID) *Memo {
	m, ok := s.learned[id]
	if !ok {
		m = NewMemo(s.learnedLimit)
		s.learned[id] = m
	}
	return m
}

// SelectTopic switches the current topic. A different topic clears history and
// returns to the chat view; learned answers of every topic are kept.
func (s *Session) SelectTopic(id model.TopicID) error {
	topic, err := s.catalog.Get(id)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.touch()

	if s.topic.ID == topic.ID {
		return nil
	}

	s.topic = topic
	s.history = nil
	s.view = model.ViewChat
	return nil
}

// IssueToken creates an anonymous code after checking that the facility and
// specialty are offered by the current topic.
func (s *Session) IssueToken(facility, specialty string) (*model.Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touch()

	f, err := s.topic.Facility(facility)
	if err != nil {
		return nil, err
	}
	if !f.HasSpecialty(specialty) {
		return nil, goerr.Wrap(model.ErrUnknownSpecialty, "specialty is not offered by facility",
			goerr.V("facility", facility),
			goerr.V("specialty", specialty))
	}

	tk := s.issuer.Issue(f.Name, specialty)
	s.metrics.ObserveToken(s.topic.ID)
	return tk, nil
}

// BackToChat leaves the token view
func (s *Session) BackToChat() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touch()
	s.view = model.ViewChat
}

// ForgetLearned drops learned answers of every topic. Topic switches never do this.
func (s *Session) ForgetLearned() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touch()
	s.learned = make(map[model.TopicID]*Memo)
}

func (s *Session) Topic() *model.Topic {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.topic
}

func (s *Session) View() model.View {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view
}

// History returns a copy of the current topic's exchanges, oldest first
func (s *Session) History() []model.HistoryEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.HistoryEntry(nil), s.history...)
}

// Learned returns answers learned for a topic in this session
func (s *Session) Learned(id model.TopicID) []model.Keyword {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.learned[id].Entries()
}

// Online reports whether the session can delegate to the generator
func (s *Session) Online() bool {
	return s.resolver.Online()
}

// LastActive is the time of the latest call that touched the session. It does
// not wait for a call in progress.
func (s *Session) LastActive() time.Time {
	return time.Unix(0, s.lastActive.Load())
}

func (s *Session) touch() {
	s.lastActive.Store(time.Now().UnixNano())
}

// Snapshot is a point-in-time copy of the session state for presentation
type Snapshot struct {
	ID      model.SessionID      `json:"id"`
	Topic   model.TopicID        `json:"topic"`
	View    model.View           `json:"view"`
	Online  bool                 `json:"online"`
	History []model.HistoryEntry `json:"history"`
}

func (s *Session) Snapshot() *Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return &Snapshot{
		ID:      s.id,
		Topic:   s.topic.ID,
		View:    s.view,
		Online:  s.resolver.Online(),
		History: append([]model.HistoryEntry{}, s.history...),
	}
}
