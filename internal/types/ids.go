// internal/types/ids.go
package types

import (
	"github.com/google/uuid"
)

type SessionID string
type EventID string
type ConnID string

func NewSessionID() SessionID {
	return SessionID(uuid.New().String())
}

func NewEventID() EventID {
	return EventID(uuid.New().String())
}

func NewConnID() ConnID {
	return ConnID(uuid.New().String())
}
