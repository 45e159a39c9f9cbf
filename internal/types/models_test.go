// internal/types/models_test.go
package types

import (
	"encoding/json"
	"testing"
)

func TestEventRoundTrip(t *testing.T) {
	event := CanonicalEvent{
		ID:        NewEventID(),
		SessionID: NewSessionID(),
		Kind:      KindMessage,
		Payload:   Payload{Text: "hello"},
		CreatedAt: 1700000000000,
		Streaming: true,
	}

	data, err := json.Marshal(event)
	if err != nil {
		t.Fatal(err)
	}

	var decoded CanonicalEvent
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatal(err)
	}

	if decoded.ID != event.ID || decoded.SessionID != event.SessionID {
		t.Errorf("ids did not survive round trip: %+v", decoded)
	}
	if decoded.Kind != KindMessage || decoded.Payload.Text != "hello" {
		t.Errorf("payload did not survive round trip: %+v", decoded)
	}
	if !decoded.Streaming {
		t.Error("streaming flag lost")
	}
}

func TestUnknownPayloadMarshal(t *testing.T) {
	p := Payload{Raw: map[string]any{"weird": "shape", "n": float64(3)}}

	data, err := json.Marshal(p)
	if err != nil {
		t.Fatal(err)
	}

	var back map[string]any
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatal(err)
	}
	if back["weird"] != "shape" || back["n"] != float64(3) {
		t.Errorf("raw payload not preserved: %v", back)
	}
}

func TestPayloadMergeAppend(t *testing.T) {
	p := Payload{Text: "hel"}
	p.Merge(Payload{Text: "lo"}, PatchAppend)
	if p.Text != "hello" {
		t.Errorf("expected appended text, got %q", p.Text)
	}

	p.Merge(Payload{Text: "bye"}, PatchReplace)
	if p.Text != "bye" {
		t.Errorf("expected replaced text, got %q", p.Text)
	}
}

func TestPayloadMergeStructuredAlwaysReplaces(t *testing.T) {
	p := Payload{ToolName: "bash", ToolArgs: json.RawMessage(`{"cmd":"ls"}`)}
	p.Merge(Payload{ToolName: "search", ToolArgs: json.RawMessage(`{"q":"go"}`)}, PatchAppend)

	if p.ToolName != "search" {
		t.Errorf("expected tool name replaced even in append mode, got %q", p.ToolName)
	}
	if string(p.ToolArgs) != `{"q":"go"}` {
		t.Errorf("expected tool args replaced even in append mode, got %s", p.ToolArgs)
	}
}

func TestKnownKind(t *testing.T) {
	for _, k := range []Kind{KindMessage, KindToolCall, KindToolResult, KindThinking, KindError, KindCompletion} {
		if !KnownKind(k) {
			t.Errorf("expected %q to be known", k)
		}
	}
	if KnownKind(KindUnknown) {
		t.Error("unknown must not be a member of the closed set")
	}
	if KnownKind(Kind("banana")) {
		t.Error("arbitrary kind must not be known")
	}
}
