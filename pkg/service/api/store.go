package api

import (
	"context"
	"sync"
	"time"

	"github.com/integrasalud/integrasalud/pkg/metrics"
	"github.com/integrasalud/integrasalud/pkg/model"
	"github.com/integrasalud/integrasalud/pkg/usecase/chat"
	"github.com/integrasalud/integrasalud/pkg/utils/logging"
	"github.com/m-mizutani/goerr/v2"
)

var ErrSessionNotFound = goerr.New("session not found")

// SessionFactory builds a fresh session on the given topic; empty means the
// catalog's first topic
type SessionFactory func(topic model.TopicID) (*chat.Session, error)

// Store holds the sessions of HTTP clients in memory. Sessions idle for longer
// than the TTL are dropped by Sweep.
type Store struct {
	mu       sync.Mutex
	sessions map[model.SessionID]*chat.Session
	factory  SessionFactory
	ttl      time.Duration
	metrics  *metrics.Metrics
}

// NewStore creates a store. ttl of zero or less keeps sessions until deleted.
func NewStore(factory SessionFactory, ttl time.Duration, m *metrics.Metrics) *Store {
	return &Store{
		sessions: make(map[model.SessionID]*chat.Session),
		factory:  factory,
		ttl:      ttl,
		metrics:  m,
	}
}

func (x *Store) Create(topic model.TopicID) (*chat.Session, error) {
	session, err := x.factory(topic)
	if err != nil {
		return nil, err
	}

	x.mu.Lock()
	defer x.mu.Unlock()
	x.sessions[session.ID()] = session
	x.metrics.SessionOpened()
	return session, nil
}

func (x *Store) Get(id model.SessionID) (*chat.Session, error) {
	x.mu.Lock()
	defer x.mu.Unlock()

	session, ok := x.sessions[id]
	if !ok {
		return nil, goerr.Wrap(ErrSessionNotFound, "failed to get session", goerr.V("id", id))
	}
	return session, nil
}

func (x *Store) Delete(id model.SessionID) error {
	x.mu.Lock()
	defer x.mu.Unlock()

	if _, ok := x.sessions[id]; !ok {
		return goerr.Wrap(ErrSessionNotFound, "failed to delete session", goerr.V("id", id))
	}
	delete(x.sessions, id)
	x.metrics.SessionClosed()
	return nil
}

func (x *Store) Len() int {
	x.mu.Lock()
	defer x.mu.Unlock()
	return len(x.sessions)
}

// Sweep removes sessions whose last activity is older than the TTL as of now
// and returns how many were removed
func (x *Store) Sweep(now time.Time) int {
	if x.ttl <= 0 {
		return 0
	}

	x.mu.Lock()
	defer x.mu.Unlock()

	var removed int
	for id, session := range x.sessions {
		if now.Sub(session.LastActive()) > x.ttl {
			delete(x.sessions, id)
			x.metrics.SessionClosed()
			removed++
		}
	}
	return removed
}

// RunSweeper calls Sweep every interval until ctx is done
func (x *Store) RunSweeper(ctx context.Context, interval time.Duration) {
	if x.ttl <= 0 || interval <= 0 {
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if n := x.Sweep(now); n > 0 {
				logging.From(ctx).Info("idle sessions expired", "count", n)
			}
		}
	}
}
