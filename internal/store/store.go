// internal/store/store.go
package store

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/user/chatfeed/internal/types"
)

var (
	// ErrDuplicateID is returned when an appended event's id already exists
	// in its session. Callers should treat this as an idempotent replay.
	ErrDuplicateID = errors.New("duplicate event id")

	// ErrUnknownTarget is returned when a patch references an event id that
	// is not present in the store. The patch is dropped.
	ErrUnknownTarget = errors.New("unknown patch target")
)

// session holds one conversation's events in insertion order plus an id
// index for duplicate detection and patch targeting.
type session struct {
	order []*types.CanonicalEvent
	byID  map[types.EventID]*types.CanonicalEvent
}

// Store is the in-memory single source of truth for canonical events. It
// owns the canonical copies exclusively: Append stores a copy of the value
// handed over, and read methods return copies, so neither producers nor
// consumers can mutate store state from outside.
//
// Within one session, event order is strictly append order; createdAt is
// informational only. Append and ApplyPatch serialize under the store
// mutex, so patches for the same event apply in arrival order.
type Store struct {
	mu       sync.RWMutex
	sessions map[types.SessionID]*session
	global   []*types.CanonicalEvent
	byID     map[types.EventID]*types.CanonicalEvent
}

// NewStore creates an empty Store.
func NewStore() *Store {
	return &Store{
		sessions: make(map[types.SessionID]*session),
		byID:     make(map[types.EventID]*types.CanonicalEvent),
	}
}

// checkAlive panics if the store was disposed. Using a disposed store is a
// programmer error, not a recoverable condition.
func (s *Store) checkAlive() {
	if s.sessions == nil {
		panic("store: used after Dispose")
	}
}

// Append adds an event to its session's order and the global order. Returns
// ErrDuplicateID (wrapped) if the id already exists in that session; the
// stored copy is left untouched in that case.
func (s *Store) Append(event *types.CanonicalEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.checkAlive()

	sess, ok := s.sessions[event.SessionID]
	if !ok {
		sess = &session{byID: make(map[types.EventID]*types.CanonicalEvent)}
		s.sessions[event.SessionID] = sess
	}

	if _, exists := sess.byID[event.ID]; exists {
		return fmt.Errorf("append %s in session %s: %w", event.ID, event.SessionID, ErrDuplicateID)
	}

	cp := *event
	sess.order = append(sess.order, &cp)
	sess.byID[cp.ID] = &cp
	s.global = append(s.global, &cp)
	if _, exists := s.byID[cp.ID]; !exists {
		s.byID[cp.ID] = &cp
	}
	return nil
}

// ApplyPatch merges a patch's payload fragment into its target event.
// Returns ErrUnknownTarget (wrapped) if the target id is absent, or if the
// patch names a session that disagrees with the target's; the store is
// unchanged in either case. A patch with Done set finalizes the target's
// streaming state.
func (s *Store) ApplyPatch(patch *types.EventPatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.checkAlive()

	var target *types.CanonicalEvent
	if patch.SessionID != "" {
		if sess, ok := s.sessions[patch.SessionID]; ok {
			target = sess.byID[patch.TargetID]
		}
	} else {
		target = s.byID[patch.TargetID]
	}
	if target == nil {
		return fmt.Errorf("patch %s: %w", patch.TargetID, ErrUnknownTarget)
	}

	target.Payload.Merge(patch.Payload, patch.Mode)
	if patch.Done {
		target.Streaming = false
	}
	return nil
}

// SessionEvents returns the session's events in insertion order. The
// returned events are copies; mutating them does not affect the store.
func (s *Store) SessionEvents(sessionID types.SessionID) []*types.CanonicalEvent {
	s.mu.RLock()
	defer s.mu.RUnlock()
	s.checkAlive()

	sess, ok := s.sessions[sessionID]
	if !ok {
		return nil
	}
	return copyEvents(sess.order)
}

// GlobalEvents returns every stored event in global insertion order.
func (s *Store) GlobalEvents() []*types.CanonicalEvent {
	s.mu.RLock()
	defer s.mu.RUnlock()
	s.checkAlive()

	return copyEvents(s.global)
}

// HasStreamingMessage reports whether at least one event in the session is
// still open to patches. Drives the "assistant is still responding" UI
// indicator.
func (s *Store) HasStreamingMessage(sessionID types.SessionID) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	s.checkAlive()

	sess, ok := s.sessions[sessionID]
	if !ok {
		return false
	}
	for _, event := range sess.order {
		if event.Streaming {
			return true
		}
	}
	return false
}

// Sessions returns the ids of all sessions with at least one event, sorted
// for deterministic output.
func (s *Store) Sessions() []types.SessionID {
	s.mu.RLock()
	defer s.mu.RUnlock()
	s.checkAlive()

	out := make([]types.SessionID, 0, len(s.sessions))
	for id := range s.sessions {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// EventCount returns the number of events stored for the session.
func (s *Store) EventCount(sessionID types.SessionID) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	s.checkAlive()

	sess, ok := s.sessions[sessionID]
	if !ok {
		return 0
	}
	return len(sess.order)
}

// Clear removes one session's events, including from the global order.
// Clearing an unknown session is a no-op.
func (s *Store) Clear(sessionID types.SessionID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.checkAlive()

	sess, ok := s.sessions[sessionID]
	if !ok {
		return
	}
	delete(s.sessions, sessionID)

	for id := range sess.byID {
		if owned, ok := s.byID[id]; ok && owned.SessionID == sessionID {
			delete(s.byID, id)
		}
	}

	kept := s.global[:0]
	for _, event := range s.global {
		if event.SessionID != sessionID {
			kept = append(kept, event)
		}
	}
	s.global = kept

	// An id the cleared session owned may still exist in another session;
	// re-point the global index to the earliest surviving holder so
	// sessionless patches keep resolving.
	for _, event := range s.global {
		if _, ok := s.byID[event.ID]; !ok {
			s.byID[event.ID] = event
		}
	}
}

// ClearAll removes every session. The store remains usable.
func (s *Store) ClearAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.checkAlive()

	s.sessions = make(map[types.SessionID]*session)
	s.byID = make(map[types.EventID]*types.CanonicalEvent)
	s.global = nil
}

// Dispose releases the store. Any use afterwards is a programmer error and
// panics.
func (s *Store) Dispose() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sessions = nil
	s.byID = nil
	s.global = nil
}

func copyEvents(events []*types.CanonicalEvent) []*types.CanonicalEvent {
	out := make([]*types.CanonicalEvent, len(events))
	for i, event := range events {
		cp := *event
		out[i] = &cp
	}
	return out
}
