// internal/ingest/pipeline.go
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/user/chatfeed/internal/rowadapter"
	"github.com/user/chatfeed/internal/schema"
	"github.com/user/chatfeed/internal/sse"
	"github.com/user/chatfeed/internal/store"
	"github.com/user/chatfeed/internal/types"
)

// conn is one active SSE connection: a FIFO lane of raw chunks and the
// reassembler that owns the connection's partial-frame state. The mutex
// covers the reassembler so the debug surface can read partials while the
// lane goroutine feeds.
type conn struct {
	lane   chan string
	mu     sync.Mutex
	parser *sse.Reassembler
}

// Pipeline funnels raw SSE chunks into the store. Chunks for one connection
// are processed strictly in delivery order on a dedicated lane, which is
// what keeps patch application ordered; a weighted semaphore bounds how
// many connections are processed simultaneously.
type Pipeline struct {
	sink      *store.Store
	adapter   *rowadapter.Adapter
	conns     map[types.ConnID]*conn
	semaphore *semaphore.Weighted
	active    atomic.Int64
	now       func() time.Time

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	mu     sync.RWMutex
}

// NewPipeline creates a Pipeline writing into sink, allowing up to
// maxConcurrent connections to be processed at once.
func NewPipeline(sink *store.Store, maxConcurrent int64) *Pipeline {
	return &Pipeline{
		sink:      sink,
		adapter:   rowadapter.New(),
		conns:     make(map[types.ConnID]*conn),
		semaphore: semaphore.NewWeighted(maxConcurrent),
		now:       time.Now,
	}
}

// Start initialises the pipeline's context. Must be called before Deliver.
func (p *Pipeline) Start(ctx context.Context) {
	p.ctx, p.cancel = context.WithCancel(ctx)
}

// Stop cancels the pipeline, closes all lanes, and waits for in-flight
// chunks to finish processing.
func (p *Pipeline) Stop() {
	if p.cancel != nil {
		p.cancel()
	}
	p.mu.Lock()
	for _, c := range p.conns {
		close(c.lane)
	}
	p.conns = make(map[types.ConnID]*conn)
	p.mu.Unlock()
	p.wg.Wait()
}

// Deliver hands one raw chunk to the connection's lane, creating the lane
// (and its reassembler) on first use. Returns an error if the lane's
// buffer is full.
func (p *Pipeline) Deliver(connID types.ConnID, chunk string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	c, exists := p.conns[connID]
	if !exists {
		c = &conn{
			lane:   make(chan string, 256),
			parser: sse.New(),
		}
		p.conns[connID] = c
		p.wg.Add(1)
		go p.processLane(connID, c)
	}

	select {
	case c.lane <- chunk:
		return nil
	default:
		return fmt.Errorf("lane full for connection %s", connID)
	}
}

// CloseConn tears down one connection. Any partial frames it was buffering
// are discarded immediately; an abandoned stream is not drained.
func (p *Pipeline) CloseConn(connID types.ConnID) {
	p.mu.Lock()
	defer p.mu.Unlock()

	c, ok := p.conns[connID]
	if !ok {
		return
	}
	delete(p.conns, connID)
	close(c.lane)
}

// processLane drains one connection's lane, feeding the reassembler and
// dispatching whatever each chunk completed. Strict FIFO within the lane;
// the semaphore bounds cross-connection parallelism.
func (p *Pipeline) processLane(connID types.ConnID, c *conn) {
	defer p.wg.Done()
	for {
		select {
		case chunk, ok := <-c.lane:
			if !ok {
				return
			}
			p.active.Add(1)
			if err := p.semaphore.Acquire(p.ctx, 1); err != nil {
				p.active.Add(-1)
				return
			}

			c.mu.Lock()
			results, errs := c.parser.Feed(chunk)
			c.mu.Unlock()

			for _, derr := range errs {
				slog.Warn("dropped undecodable frame",
					"conn_id", string(connID), "message_id", derr.MessageID, "error", derr.Err)
			}
			for _, res := range results {
				p.dispatch(connID, res)
			}
			if len(results) > 0 {
				// Decoded entries have been handed to the store; dropping
				// them keeps the partial table bounded on long-lived
				// connections. Failed frames stay for the debug surface.
				c.mu.Lock()
				c.parser.ClearCompleted()
				c.mu.Unlock()
			}

			p.active.Add(-1)
			p.semaphore.Release(1)
		case <-p.ctx.Done():
			return
		}
	}
}

// dispatch hands one decoded value to the store. All store-level failures
// here are recoverable by design: duplicates are replays, unknown targets
// are logged and dropped.
func (p *Pipeline) dispatch(connID types.ConnID, res schema.Result) {
	switch {
	case res.Event != nil:
		event := res.Event
		if event.CreatedAt == 0 {
			event.CreatedAt = p.now().UnixMilli()
		}
		if err := p.sink.Append(event); err != nil {
			if errors.Is(err, store.ErrDuplicateID) {
				slog.Debug("ignoring replayed event",
					"conn_id", string(connID), "event_id", string(event.ID))
				return
			}
			slog.Error("append failed",
				"conn_id", string(connID), "event_id", string(event.ID), "error", err)
		}
	case res.Patch != nil:
		if err := p.sink.ApplyPatch(res.Patch); err != nil {
			slog.Warn("dropped patch",
				"conn_id", string(connID), "target_id", string(res.Patch.TargetID), "error", err)
		}
	}
}

// LoadRows maps a batch of persisted rows into the store, preserving row
// order. Malformed rows are reported per item; mapped rows that collide
// with already-stored ids count as replays and are skipped silently apart
// from a debug log. Returns the number of events actually appended.
func (p *Pipeline) LoadRows(rows []rowadapter.Row) (int, []rowadapter.RowError) {
	events, errs := p.adapter.MapBatch(rows)

	appended := 0
	for _, event := range events {
		if err := p.sink.Append(event); err != nil {
			if errors.Is(err, store.ErrDuplicateID) {
				slog.Debug("ignoring replayed row", "event_id", string(event.ID))
				continue
			}
			slog.Error("append failed", "event_id", string(event.ID), "error", err)
			continue
		}
		appended++
	}
	return appended, errs
}

// PartialMessages reports the in-flight frame buffers of every open
// connection, for the debug panel. Read-only.
func (p *Pipeline) PartialMessages() map[types.ConnID]map[string]string {
	p.mu.RLock()
	defer p.mu.RUnlock()

	out := make(map[types.ConnID]map[string]string, len(p.conns))
	for id, c := range p.conns {
		c.mu.Lock()
		partials := c.parser.PartialMessages()
		c.mu.Unlock()
		out[id] = partials
	}
	return out
}

// FailedFrames reports the frames every open connection completed but could
// not decode, with the text and error retained. Read-only.
func (p *Pipeline) FailedFrames() map[types.ConnID]map[string]sse.FailedFrame {
	p.mu.RLock()
	defer p.mu.RUnlock()

	out := make(map[types.ConnID]map[string]sse.FailedFrame, len(p.conns))
	for id, c := range p.conns {
		c.mu.Lock()
		failed := c.parser.FailedFrames()
		c.mu.Unlock()
		out[id] = failed
	}
	return out
}

// WaitIdle blocks until no chunks are queued or actively being processed,
// or the timeout expires. Returns true if idle, false if timed out. Two
// consecutive idle observations are required because a lane goroutine may
// have dequeued a chunk it has not started counting yet.
func (p *Pipeline) WaitIdle(timeout time.Duration) bool {
	deadline := time.After(timeout)
	idleSeen := 0
	for {
		if p.active.Load() == 0 && p.lanesEmpty() {
			idleSeen++
			if idleSeen >= 2 {
				return true
			}
		} else {
			idleSeen = 0
		}
		select {
		case <-deadline:
			return false
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func (p *Pipeline) lanesEmpty() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	for _, c := range p.conns {
		if len(c.lane) > 0 {
			return false
		}
	}
	return true
}
