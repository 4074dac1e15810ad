package model

import (
	"github.com/google/uuid"
)

type SessionID string

// NewSessionID generates a new unique SessionID
func NewSessionID() SessionID {
	return SessionID(uuid.New().String())
}

// View is the screen the presentation layer should show for a session
type View string

const (
	ViewChat  View = "chat"
	ViewToken View = "token"
)
