// internal/types/models.go
package types

import (
	"encoding/json"
)

// CanonicalEvent is the unified representation of one discrete happening in
// a chat session, regardless of whether it originated from a persisted row
// or a live SSE frame.
type CanonicalEvent struct {
	ID        EventID   `json:"id"`
	SessionID SessionID `json:"sessionId"`
	Kind      Kind      `json:"kind"`
	Payload   Payload   `json:"payload"`
	CreatedAt int64     `json:"createdAt"` // epoch millis; informational ordering fallback
	Streaming bool      `json:"streaming,omitempty"`
}

// Payload holds kind-specific event data. Which fields are required is
// decided by the validator based on the event's Kind; fields for other
// kinds stay zero.
type Payload struct {
	Text     string          `json:"text,omitempty"`     // message, thinking
	ToolName string          `json:"toolName,omitempty"` // tool-call
	ToolArgs json.RawMessage `json:"toolArgs,omitempty"` // tool-call
	Content  string          `json:"content,omitempty"`  // tool-result
	Detail   string          `json:"detail,omitempty"`   // error
	Reason   string          `json:"reason,omitempty"`   // completion

	// Raw retains the undecoded payload for KindUnknown events.
	Raw map[string]any `json:"-"`
}

// MarshalJSON emits the retained raw payload for unknown kinds so replayed
// events round-trip without loss.
func (p Payload) MarshalJSON() ([]byte, error) {
	if p.Raw != nil {
		return json.Marshal(p.Raw)
	}
	type alias Payload
	return json.Marshal(alias(p))
}

// PatchMode selects how a patch fragment merges into the target payload.
type PatchMode string

const (
	PatchAppend  PatchMode = "append"
	PatchReplace PatchMode = "replace"
)

// EventPatch is a partial update targeting an existing CanonicalEvent by id.
// SessionID is optional; when set it must match the target event's session.
// Done finalizes the target (clears its streaming flag).
type EventPatch struct {
	TargetID  EventID   `json:"targetId"`
	SessionID SessionID `json:"sessionId,omitempty"`
	Mode      PatchMode `json:"mode"`
	Payload   Payload   `json:"payload"`
	Done      bool      `json:"done,omitempty"`
}

// Merge applies a patch fragment to the payload. Append mode concatenates
// string fields; structured fields (tool name, args, raw) do not support
// incremental append and always take replace semantics.
func (p *Payload) Merge(frag Payload, mode PatchMode) {
	mergeString(&p.Text, frag.Text, mode)
	mergeString(&p.Content, frag.Content, mode)
	mergeString(&p.Detail, frag.Detail, mode)
	mergeString(&p.Reason, frag.Reason, mode)
	if frag.ToolName != "" {
		p.ToolName = frag.ToolName
	}
	if len(frag.ToolArgs) > 0 {
		p.ToolArgs = frag.ToolArgs
	}
	if frag.Raw != nil {
		p.Raw = frag.Raw
	}
}

func mergeString(dst *string, frag string, mode PatchMode) {
	if frag == "" {
		return
	}
	if mode == PatchAppend {
		*dst += frag
	} else {
		*dst = frag
	}
}
