// internal/types/kinds.go
package types

// Kind discriminates the payload shape of a CanonicalEvent. The set is
// closed; anything else maps to KindUnknown.
type Kind string

const (
	KindMessage    Kind = "message"
	KindToolCall   Kind = "tool-call"
	KindToolResult Kind = "tool-result"
	KindThinking   Kind = "thinking"
	KindError      Kind = "error"
	KindCompletion Kind = "completion"

	// KindUnknown is the fallback variant for kinds outside the closed set.
	// The raw payload is retained on the event so nothing is silently lost.
	KindUnknown Kind = "unknown"
)

// KnownKind reports whether k is a member of the closed kind set.
func KnownKind(k Kind) bool {
	switch k {
	case KindMessage, KindToolCall, KindToolResult, KindThinking, KindError, KindCompletion:
		return true
	}
	return false
}
