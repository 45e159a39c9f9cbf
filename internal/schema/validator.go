// internal/schema/validator.go
package schema

import (
	"encoding/json"
	"fmt"

	"github.com/user/chatfeed/internal/types"
)

// ValidationError describes why a candidate failed validation: the
// dot-separated path of the offending field, what was expected there, and
// what was actually found.
type ValidationError struct {
	Path     string
	Expected string
	Actual   any
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: expected %s, got %v", e.Path, e.Expected, e.Actual)
}

// Result holds the outcome of a successful classification. Exactly one of
// Event and Patch is non-nil.
type Result struct {
	Event *types.CanonicalEvent
	Patch *types.EventPatch
}

// Validate classifies an already-decoded JSON value as a CanonicalEvent or
// an EventPatch and checks it against the kind-specific payload schema.
// Classification is by shape: a candidate carrying targetId is a patch,
// anything else must carry the event-only fields (kind, createdAt). The
// function is pure and never panics on malformed input.
func Validate(candidate any) (Result, *ValidationError) {
	m, ok := candidate.(map[string]any)
	if !ok {
		return Result{}, &ValidationError{Path: "$", Expected: "object", Actual: candidate}
	}

	if _, isPatch := m["targetId"]; isPatch {
		patch, err := validatePatch(m)
		if err != nil {
			return Result{}, err
		}
		return Result{Patch: patch}, nil
	}

	event, err := validateEvent(m)
	if err != nil {
		return Result{}, err
	}
	return Result{Event: event}, nil
}

func validateEvent(m map[string]any) (*types.CanonicalEvent, *ValidationError) {
	id, err := requireString(m, "id")
	if err != nil {
		return nil, err
	}
	sessionID, err := requireString(m, "sessionId")
	if err != nil {
		return nil, err
	}
	kindStr, err := requireString(m, "kind")
	if err != nil {
		return nil, err
	}

	createdAt, err := optionalMillis(m, "createdAt")
	if err != nil {
		return nil, err
	}

	streaming, err := optionalBool(m, "streaming")
	if err != nil {
		return nil, err
	}

	payloadMap, err := optionalObject(m, "payload")
	if err != nil {
		return nil, err
	}

	kind := types.Kind(kindStr)
	if !types.KnownKind(kind) {
		// Unknown kinds are accepted as an explicit fallback variant; the
		// raw payload is retained rather than silently coerced.
		return &types.CanonicalEvent{
			ID:        types.EventID(id),
			SessionID: types.SessionID(sessionID),
			Kind:      types.KindUnknown,
			Payload:   types.Payload{Raw: payloadMap},
			CreatedAt: createdAt,
			Streaming: streaming,
		}, nil
	}

	payload, perr := validatePayload(kind, payloadMap)
	if perr != nil {
		return nil, perr
	}

	return &types.CanonicalEvent{
		ID:        types.EventID(id),
		SessionID: types.SessionID(sessionID),
		Kind:      kind,
		Payload:   payload,
		CreatedAt: createdAt,
		Streaming: streaming,
	}, nil
}

// validatePayload checks the kind-specific required fields and extracts the
// known ones. Extra keys are ignored.
func validatePayload(kind types.Kind, m map[string]any) (types.Payload, *ValidationError) {
	var p types.Payload
	var err *ValidationError

	switch kind {
	case types.KindMessage, types.KindThinking:
		p.Text, err = requireStringAt(m, "payload", "text")
	case types.KindToolCall:
		p.ToolName, err = requireStringAt(m, "payload", "toolName")
		if err == nil {
			p.ToolArgs, err = optionalRaw(m, "payload", "toolArgs")
		}
	case types.KindToolResult:
		p.Content, err = requireStringAt(m, "payload", "content")
	case types.KindError:
		p.Detail, err = requireStringAt(m, "payload", "detail")
	case types.KindCompletion:
		p.Reason, err = optionalString(m, "payload", "reason")
	}
	if err != nil {
		return types.Payload{}, err
	}
	return p, nil
}

func validatePatch(m map[string]any) (*types.EventPatch, *ValidationError) {
	targetID, err := requireString(m, "targetId")
	if err != nil {
		return nil, err
	}

	sessionID, err := optionalString(m, "", "sessionId")
	if err != nil {
		return nil, err
	}

	mode := types.PatchReplace
	if raw, ok := m["mode"]; ok {
		s, ok := raw.(string)
		if !ok || (s != string(types.PatchAppend) && s != string(types.PatchReplace)) {
			return nil, &ValidationError{Path: "mode", Expected: `"append" or "replace"`, Actual: raw}
		}
		mode = types.PatchMode(s)
	}

	done, err := optionalBool(m, "done")
	if err != nil {
		return nil, err
	}

	payloadMap, err := optionalObject(m, "payload")
	if err != nil {
		return nil, err
	}
	fragment, err := fragmentPayload(payloadMap)
	if err != nil {
		return nil, err
	}

	return &types.EventPatch{
		TargetID:  types.EventID(targetID),
		SessionID: types.SessionID(sessionID),
		Mode:      mode,
		Payload:   fragment,
		Done:      done,
	}, nil
}

// fragmentPayload extracts a partial payload; nothing is required, but any
// present field must have the right type.
func fragmentPayload(m map[string]any) (types.Payload, *ValidationError) {
	var p types.Payload
	var err *ValidationError

	if p.Text, err = optionalString(m, "payload", "text"); err != nil {
		return types.Payload{}, err
	}
	if p.ToolName, err = optionalString(m, "payload", "toolName"); err != nil {
		return types.Payload{}, err
	}
	if p.ToolArgs, err = optionalRaw(m, "payload", "toolArgs"); err != nil {
		return types.Payload{}, err
	}
	if p.Content, err = optionalString(m, "payload", "content"); err != nil {
		return types.Payload{}, err
	}
	if p.Detail, err = optionalString(m, "payload", "detail"); err != nil {
		return types.Payload{}, err
	}
	if p.Reason, err = optionalString(m, "payload", "reason"); err != nil {
		return types.Payload{}, err
	}
	return p, nil
}

func fieldPath(prefix, key string) string {
	if prefix == "" {
		return key
	}
	return prefix + "." + key
}

func requireString(m map[string]any, key string) (string, *ValidationError) {
	return requireStringAt(m, "", key)
}

func requireStringAt(m map[string]any, prefix, key string) (string, *ValidationError) {
	raw, ok := m[key]
	if !ok {
		return "", &ValidationError{Path: fieldPath(prefix, key), Expected: "string", Actual: nil}
	}
	s, ok := raw.(string)
	if !ok || s == "" {
		return "", &ValidationError{Path: fieldPath(prefix, key), Expected: "non-empty string", Actual: raw}
	}
	return s, nil
}

func optionalString(m map[string]any, prefix, key string) (string, *ValidationError) {
	raw, ok := m[key]
	if !ok || raw == nil {
		return "", nil
	}
	s, ok := raw.(string)
	if !ok {
		return "", &ValidationError{Path: fieldPath(prefix, key), Expected: "string", Actual: raw}
	}
	return s, nil
}

func optionalBool(m map[string]any, key string) (bool, *ValidationError) {
	raw, ok := m[key]
	if !ok || raw == nil {
		return false, nil
	}
	b, ok := raw.(bool)
	if !ok {
		return false, &ValidationError{Path: key, Expected: "bool", Actual: raw}
	}
	return b, nil
}

// optionalMillis accepts the numeric representations a JSON decode can
// produce for an epoch-millis timestamp.
func optionalMillis(m map[string]any, key string) (int64, *ValidationError) {
	raw, ok := m[key]
	if !ok || raw == nil {
		return 0, nil
	}
	switch v := raw.(type) {
	case float64:
		return int64(v), nil
	case int64:
		return v, nil
	case int:
		return int64(v), nil
	case json.Number:
		n, err := v.Int64()
		if err != nil {
			return 0, &ValidationError{Path: key, Expected: "integer epoch millis", Actual: raw}
		}
		return n, nil
	}
	return 0, &ValidationError{Path: key, Expected: "integer epoch millis", Actual: raw}
}

func optionalObject(m map[string]any, key string) (map[string]any, *ValidationError) {
	raw, ok := m[key]
	if !ok || raw == nil {
		return map[string]any{}, nil
	}
	obj, ok := raw.(map[string]any)
	if !ok {
		return nil, &ValidationError{Path: key, Expected: "object", Actual: raw}
	}
	return obj, nil
}

func optionalRaw(m map[string]any, prefix, key string) (json.RawMessage, *ValidationError) {
	raw, ok := m[key]
	if !ok || raw == nil {
		return nil, nil
	}
	data, err := json.Marshal(raw)
	if err != nil {
		return nil, &ValidationError{Path: fieldPath(prefix, key), Expected: "JSON value", Actual: raw}
	}
	return data, nil
}
