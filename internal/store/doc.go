// Package store provides the in-memory, session-indexed canonical event store.
package store

import "github.com/user/chatfeed/internal/types"

// Compile-time interface compliance checks.
var _ types.EventSink = (*Store)(nil)
var _ types.EventSource = (*Store)(nil)
