// internal/sse/reassembler.go
package sse

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/user/chatfeed/internal/schema"
)

// parser states; frameComplete is transient, the machine returns to
// awaitingFrameStart as soon as the completed frame has been handed off.
type state int

const (
	stateAwaitingFrameStart state = iota
	stateAccumulating
	stateFrameComplete
)

// DecodeError reports a frame that completed but did not yield a canonical
// value. The accumulated frame text is retained for debugging.
type DecodeError struct {
	MessageID string
	Frame     string
	Err       error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("frame %s: %v", e.MessageID, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// entry is one in-flight (or completed) frame in the partial-message table.
type entry struct {
	lines     []string
	completed bool
	decoded   bool
	failure   error // decode or validation error, kept alongside the text
}

// Reassembler reconstructs logical SSE frames from raw delivery chunks.
// Chunk boundaries are independent of frame boundaries: a "data:" payload
// may arrive split across any number of chunks, and the frame is only
// decoded once its terminating blank line has been seen.
//
// Frames are keyed by an in-flight message id taken from the SSE "id:"
// field when present, otherwise assigned as "msg-<n>". An "id:" line
// re-targets accumulation, which lets independent logical messages buffer
// concurrently on one multiplexed stream without corrupting each other.
//
// A Reassembler is owned by exactly one logical stream and is not safe for
// concurrent use; callers with multiple connections create one per
// connection.
type Reassembler struct {
	remainder   string            // trailing chunk text not yet newline-terminated
	entries     map[string]*entry // keyed by in-flight message id
	current     string            // id lines currently accumulate into; "" between frames
	currentAuto bool              // current was assigned, not taken from an "id:" line
	state       state
	nextID      int
}

// New creates an empty Reassembler.
func New() *Reassembler {
	return &Reassembler{entries: make(map[string]*entry)}
}

// Feed consumes one raw chunk and returns the canonical values decoded from
// every frame the chunk completed, plus one DecodeError per completed frame
// that failed JSON decoding or validation. A bad frame never aborts the
// stream and never touches the buffers of other in-flight ids.
func (r *Reassembler) Feed(chunk string) ([]schema.Result, []*DecodeError) {
	r.remainder += chunk

	var results []schema.Result
	var errs []*DecodeError

	for {
		idx := strings.IndexByte(r.remainder, '\n')
		if idx < 0 {
			break
		}
		line := strings.TrimSuffix(r.remainder[:idx], "\r")
		r.remainder = r.remainder[idx+1:]

		res, derr := r.processLine(line)
		if derr != nil {
			errs = append(errs, derr)
		} else if res != nil {
			results = append(results, *res)
		}
	}

	return results, errs
}

func (r *Reassembler) processLine(line string) (*schema.Result, *DecodeError) {
	switch {
	case line == "":
		return r.completeFrame()

	case strings.HasPrefix(line, "id:"):
		id := strings.TrimPrefix(strings.TrimPrefix(line, "id:"), " ")
		// "id" may follow "data" within a block. Data lines that arrived
		// before the frame's id line were buffered under an assigned key;
		// fold them into the named entry rather than orphaning them. An
		// explicit id followed by another explicit id is a retarget, not a
		// rename, which is what keeps interleaved messages isolated.
		if r.currentAuto && id != r.current {
			if e, ok := r.entries[r.current]; ok && !e.completed && len(e.lines) > 0 {
				if target, exists := r.entries[id]; exists && !target.completed {
					target.lines = append(target.lines, e.lines...)
				} else {
					r.entries[id] = e
				}
				delete(r.entries, r.current)
			}
		}
		r.current = id
		r.currentAuto = false
		if e, ok := r.entries[r.current]; ok && !e.completed && len(e.lines) > 0 {
			r.state = stateAccumulating
		}
		return nil, nil

	case strings.HasPrefix(line, "data:"):
		value := strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " ")
		if r.current == "" {
			r.nextID++
			r.current = fmt.Sprintf("msg-%d", r.nextID)
			r.currentAuto = true
		}
		e, ok := r.entries[r.current]
		if !ok || e.completed {
			e = &entry{}
			r.entries[r.current] = e
		}
		e.lines = append(e.lines, value)
		r.state = stateAccumulating
		return nil, nil

	default:
		// event:, retry: and comment lines carry nothing we consume.
		return nil, nil
	}
}

// completeFrame handles the blank-line delimiter: the current frame's
// accumulated text is handed to the validator and the machine returns to
// awaiting the next frame. Blank lines between frames are keep-alives and
// are ignored.
func (r *Reassembler) completeFrame() (*schema.Result, *DecodeError) {
	id := r.current
	r.current = ""
	r.currentAuto = false

	if r.state != stateAccumulating {
		// Blank line between frames: keep-alive, nothing to dispatch.
		return nil, nil
	}

	e, ok := r.entries[id]
	if id == "" || !ok || e.completed || len(e.lines) == 0 {
		r.state = stateAwaitingFrameStart
		return nil, nil
	}

	r.state = stateFrameComplete
	e.completed = true
	text := strings.Join(e.lines, "\n")
	r.state = stateAwaitingFrameStart

	var candidate any
	if err := json.Unmarshal([]byte(text), &candidate); err != nil {
		slog.Debug("sse frame failed to decode", "message_id", id, "error", err)
		e.failure = err
		return nil, &DecodeError{MessageID: id, Frame: text, Err: err}
	}

	res, verr := schema.Validate(candidate)
	if verr != nil {
		slog.Debug("sse frame failed validation", "message_id", id, "error", verr)
		e.failure = verr
		return nil, &DecodeError{MessageID: id, Frame: text, Err: verr}
	}

	e.decoded = true
	return &res, nil
}

// PartialMessages returns a copy of the accumulated text of every frame
// still in flight, keyed by message id. Completed frames are excluded.
// Read-only: calling it never mutates parser state.
func (r *Reassembler) PartialMessages() map[string]string {
	out := make(map[string]string)
	for id, e := range r.entries {
		if !e.completed {
			out[id] = strings.Join(e.lines, "\n")
		}
	}
	return out
}

// FailedFrame is the retained record of a completed frame that did not
// yield a canonical value: the frame text plus what went wrong with it.
type FailedFrame struct {
	Frame string `json:"frame"`
	Error string `json:"error"`
}

// FailedFrames returns the retained text and error of completed frames that
// did not decode, keyed by message id. These survive ClearCompleted so a
// debug panel can inspect them; ClearAll discards them.
func (r *Reassembler) FailedFrames() map[string]FailedFrame {
	out := make(map[string]FailedFrame)
	for id, e := range r.entries {
		if e.completed && !e.decoded {
			f := FailedFrame{Frame: strings.Join(e.lines, "\n")}
			if e.failure != nil {
				f.Error = e.failure.Error()
			}
			out[id] = f
		}
	}
	return out
}

// TableSize reports the number of entries in the partial-message table
// across every state, in flight, failed and decoded alike.
func (r *Reassembler) TableSize() int {
	return len(r.entries)
}

// ClearCompleted drops table entries whose text already yielded a
// successfully decoded value. In-flight and failed entries stay.
func (r *Reassembler) ClearCompleted() {
	for id, e := range r.entries {
		if e.completed && e.decoded {
			delete(r.entries, id)
		}
	}
}

// ClearAll resets the parser to its initial empty state, discarding any
// partial frames. Used when switching sessions or on teardown.
func (r *Reassembler) ClearAll() {
	r.remainder = ""
	r.entries = make(map[string]*entry)
	r.current = ""
	r.currentAuto = false
	r.state = stateAwaitingFrameStart
	r.nextID = 0
}

// ParseInput batch-parses an already-fully-received blob of SSE text, such
// as a recorded fixture or a complete response body, and returns the
// decoded values in frame order. Since nothing further can arrive, a
// trailing frame missing its final blank line is completed at end of input.
// A frame that fails decoding is reported and skipped; it never aborts the
// rest of the parse.
func ParseInput(text string) ([]schema.Result, []*DecodeError) {
	r := New()
	results, errs := r.Feed(text)

	// Flush: terminate a trailing unterminated line, then a trailing frame.
	if r.remainder != "" {
		more, merrs := r.Feed("\n")
		results = append(results, more...)
		errs = append(errs, merrs...)
	}
	if res, derr := r.completeFrame(); derr != nil {
		errs = append(errs, derr)
	} else if res != nil {
		results = append(results, *res)
	}

	return results, errs
}
