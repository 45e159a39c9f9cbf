// internal/schema/validator_test.go
package schema

import (
	"encoding/json"
	"testing"

	"github.com/user/chatfeed/internal/types"
)

func decode(t *testing.T, s string) any {
	t.Helper()
	var v any
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		t.Fatal(err)
	}
	return v
}

func TestValidateEvent(t *testing.T) {
	res, verr := Validate(decode(t, `{
		"id": "e1",
		"sessionId": "s1",
		"kind": "message",
		"createdAt": 1700000000000,
		"streaming": true,
		"payload": {"text": "hello"}
	}`))
	if verr != nil {
		t.Fatal(verr)
	}
	if res.Patch != nil {
		t.Fatal("expected event classification, got patch")
	}

	ev := res.Event
	if ev.ID != "e1" || ev.SessionID != "s1" {
		t.Errorf("wrong ids: %+v", ev)
	}
	if ev.Kind != types.KindMessage || ev.Payload.Text != "hello" {
		t.Errorf("wrong kind/payload: %+v", ev)
	}
	if ev.CreatedAt != 1700000000000 || !ev.Streaming {
		t.Errorf("wrong createdAt/streaming: %+v", ev)
	}
}

func TestValidateClassifiesPatch(t *testing.T) {
	res, verr := Validate(decode(t, `{
		"targetId": "e1",
		"mode": "append",
		"payload": {"text": " world"},
		"done": true
	}`))
	if verr != nil {
		t.Fatal(verr)
	}
	if res.Event != nil {
		t.Fatal("expected patch classification, got event")
	}

	patch := res.Patch
	if patch.TargetID != "e1" || patch.Mode != types.PatchAppend {
		t.Errorf("wrong target/mode: %+v", patch)
	}
	if patch.Payload.Text != " world" || !patch.Done {
		t.Errorf("wrong fragment: %+v", patch)
	}
}

func TestValidatePatchDefaultsToReplace(t *testing.T) {
	res, verr := Validate(decode(t, `{"targetId": "e1", "payload": {"text": "x"}}`))
	if verr != nil {
		t.Fatal(verr)
	}
	if res.Patch.Mode != types.PatchReplace {
		t.Errorf("expected replace default, got %q", res.Patch.Mode)
	}
}

func TestValidateToolCallRequiresToolName(t *testing.T) {
	_, verr := Validate(decode(t, `{
		"id": "e1",
		"sessionId": "s1",
		"kind": "tool-call",
		"payload": {"toolArgs": {"cmd": "ls"}}
	}`))
	if verr == nil {
		t.Fatal("expected validation error for missing toolName")
	}
	if verr.Path != "payload.toolName" {
		t.Errorf("expected path payload.toolName, got %q", verr.Path)
	}
}

func TestValidateToolCallArgs(t *testing.T) {
	res, verr := Validate(decode(t, `{
		"id": "e1",
		"sessionId": "s1",
		"kind": "tool-call",
		"payload": {"toolName": "bash", "toolArgs": {"cmd": "ls"}}
	}`))
	if verr != nil {
		t.Fatal(verr)
	}

	var args map[string]string
	if err := json.Unmarshal(res.Event.Payload.ToolArgs, &args); err != nil {
		t.Fatal(err)
	}
	if args["cmd"] != "ls" {
		t.Errorf("tool args not preserved: %v", args)
	}
}

func TestValidateUnknownKindFallback(t *testing.T) {
	res, verr := Validate(decode(t, `{
		"id": "e1",
		"sessionId": "s1",
		"kind": "telemetry",
		"payload": {"cpu": 0.5}
	}`))
	if verr != nil {
		t.Fatal(verr)
	}
	if res.Event.Kind != types.KindUnknown {
		t.Errorf("expected unknown fallback, got %q", res.Event.Kind)
	}
	if res.Event.Payload.Raw["cpu"] != float64(0.5) {
		t.Errorf("raw payload not retained: %v", res.Event.Payload.Raw)
	}
}

func TestValidateRejections(t *testing.T) {
	cases := []struct {
		name  string
		input string
		path  string
	}{
		{"not an object", `[1, 2]`, "$"},
		{"missing id", `{"sessionId": "s1", "kind": "message", "payload": {"text": "x"}}`, "id"},
		{"empty session", `{"id": "e1", "sessionId": "", "kind": "message", "payload": {"text": "x"}}`, "sessionId"},
		{"numeric kind", `{"id": "e1", "sessionId": "s1", "kind": 7}`, "kind"},
		{"bad createdAt", `{"id": "e1", "sessionId": "s1", "kind": "completion", "createdAt": "yesterday"}`, "createdAt"},
		{"bad streaming", `{"id": "e1", "sessionId": "s1", "kind": "completion", "streaming": "yes"}`, "streaming"},
		{"payload not object", `{"id": "e1", "sessionId": "s1", "kind": "message", "payload": "hi"}`, "payload"},
		{"message without text", `{"id": "e1", "sessionId": "s1", "kind": "message", "payload": {}}`, "payload.text"},
		{"error without detail", `{"id": "e1", "sessionId": "s1", "kind": "error", "payload": {}}`, "payload.detail"},
		{"patch bad mode", `{"targetId": "e1", "mode": "merge"}`, "mode"},
		{"patch bad fragment field", `{"targetId": "e1", "payload": {"text": 5}}`, "payload.text"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, verr := Validate(decode(t, tc.input))
			if verr == nil {
				t.Fatal("expected validation error")
			}
			if verr.Path != tc.path {
				t.Errorf("expected path %q, got %q (%v)", tc.path, verr.Path, verr)
			}
		})
	}
}

func TestValidateIsPure(t *testing.T) {
	m := map[string]any{
		"id":        "e1",
		"sessionId": "s1",
		"kind":      "message",
		"payload":   map[string]any{"text": "hi"},
	}
	if _, verr := Validate(m); verr != nil {
		t.Fatal(verr)
	}
	if len(m) != 4 {
		t.Error("validate must not mutate its input")
	}
}
