// internal/rowadapter/adapter.go
package rowadapter

import (
	"encoding/json"
	"fmt"
	"time"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"

	"github.com/user/chatfeed/internal/schema"
	"github.com/user/chatfeed/internal/types"
)

// Row is one raw persisted record. The adapter has no coupling to the
// storage engine; any value with string keys works.
type Row map[string]any

// Column aliases seen across storage generations. First match wins.
var (
	idColumns      = []string{"id", "event_id", "uuid"}
	sessionColumns = []string{"session_id", "sessionId", "conversation_id"}
	kindColumns    = []string{"kind", "type", "event_type"}
	payloadColumns = []string{"payload", "data", "body"}
	timeColumns    = []string{"created_at", "createdAt", "ts", "timestamp"}
)

// legacyKinds maps pre-canonical kind spellings onto the closed set.
var legacyKinds = map[string]types.Kind{
	"msg":               types.KindMessage,
	"assistant_message": types.KindMessage,
	"user_message":      types.KindMessage,
	"tool_call":         types.KindToolCall,
	"tool_use":          types.KindToolCall,
	"tool_result":       types.KindToolResult,
	"reasoning":         types.KindThinking,
}

// RowError reports a malformed row inside a batch alongside its position.
type RowError struct {
	Index int
	Err   error
}

func (e RowError) Error() string {
	return fmt.Sprintf("row %d: %v", e.Index, e.Err)
}

func (e RowError) Unwrap() error { return e.Err }

// Adapter converts raw persisted rows into canonical events.
type Adapter struct {
	now func() time.Time
}

// New creates a row adapter. Rows without a usable timestamp are stamped
// with the ingestion time.
func New() *Adapter {
	return &Adapter{now: time.Now}
}

// MapOne converts a single row into a CanonicalEvent. The assembled
// candidate goes through the schema validator, so the adapter can never
// hand over a value the rest of the pipeline would reject.
func (a *Adapter) MapOne(row Row) (*types.CanonicalEvent, error) {
	candidate := map[string]any{}

	if id, ok := lookupString(row, idColumns); ok {
		candidate["id"] = id
	}
	if session, ok := lookupString(row, sessionColumns); ok {
		candidate["sessionId"] = session
	}
	if kind, ok := lookupString(row, kindColumns); ok {
		if canonical, legacy := legacyKinds[kind]; legacy {
			kind = string(canonical)
		}
		candidate["kind"] = kind
	}

	payload, err := a.extractPayload(row)
	if err != nil {
		return nil, err
	}
	candidate["payload"] = payload

	candidate["createdAt"] = a.extractMillis(row)

	if streaming, ok := lookupBool(row, "streaming", "is_streaming"); ok {
		candidate["streaming"] = streaming
	}

	res, verr := schema.Validate(candidate)
	if verr != nil {
		return nil, fmt.Errorf("map row: %w", verr)
	}
	if res.Event == nil {
		return nil, fmt.Errorf("map row: row decoded as a patch, not an event")
	}
	return res.Event, nil
}

// MapBatch converts rows in input order. A malformed row yields a RowError
// carrying its index; the remaining rows are still mapped. No deduplication
// or sorting happens here.
func (a *Adapter) MapBatch(rows []Row) ([]*types.CanonicalEvent, []RowError) {
	var events []*types.CanonicalEvent
	var errs []RowError
	for i, row := range rows {
		event, err := a.MapOne(row)
		if err != nil {
			errs = append(errs, RowError{Index: i, Err: err})
			continue
		}
		events = append(events, event)
	}
	return events, errs
}

// extractPayload finds the payload column. Older schemas persisted the
// payload as serialized JSON text, the oldest ones as rendered HTML in a
// content_html column; both are normalized here.
func (a *Adapter) extractPayload(row Row) (map[string]any, error) {
	for _, col := range payloadColumns {
		raw, ok := row[col]
		if !ok || raw == nil {
			continue
		}
		switch v := raw.(type) {
		case map[string]any:
			return v, nil
		case string:
			var decoded map[string]any
			if err := json.Unmarshal([]byte(v), &decoded); err != nil {
				return nil, fmt.Errorf("decode %s column: %w", col, err)
			}
			return decoded, nil
		default:
			return nil, fmt.Errorf("unsupported %s column type %T", col, raw)
		}
	}

	if html, ok := lookupString(row, []string{"content_html"}); ok {
		md, err := htmltomarkdown.ConvertString(html)
		if err != nil {
			return nil, fmt.Errorf("convert content_html: %w", err)
		}
		return map[string]any{"text": md}, nil
	}

	return map[string]any{}, nil
}

func (a *Adapter) extractMillis(row Row) int64 {
	for _, col := range timeColumns {
		raw, ok := row[col]
		if !ok || raw == nil {
			continue
		}
		switch v := raw.(type) {
		case float64:
			return int64(v)
		case int64:
			return v
		case int:
			return int64(v)
		case json.Number:
			if n, err := v.Int64(); err == nil {
				return n
			}
		case time.Time:
			return v.UnixMilli()
		case string:
			if t, err := time.Parse(time.RFC3339, v); err == nil {
				return t.UnixMilli()
			}
		}
	}
	return a.now().UnixMilli()
}

func lookupString(row Row, columns []string) (string, bool) {
	for _, col := range columns {
		if raw, ok := row[col]; ok {
			if s, ok := raw.(string); ok && s != "" {
				return s, true
			}
		}
	}
	return "", false
}

func lookupBool(row Row, columns ...string) (bool, bool) {
	for _, col := range columns {
		raw, ok := row[col]
		if !ok {
			continue
		}
		switch v := raw.(type) {
		case bool:
			return v, true
		case int64:
			return v != 0, true
		case float64:
			return v != 0, true
		}
	}
	return false, false
}
