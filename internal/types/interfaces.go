// internal/types/interfaces.go
package types

// EventSink receives validated canonical values from an ingest source.
type EventSink interface {
	Append(event *CanonicalEvent) error
	ApplyPatch(patch *EventPatch) error
}

// EventSource is the consumer-facing read surface of the store.
type EventSource interface {
	SessionEvents(sessionID SessionID) []*CanonicalEvent
	HasStreamingMessage(sessionID SessionID) bool
	Sessions() []SessionID
}
