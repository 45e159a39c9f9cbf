// internal/debugapi/server.go
package debugapi

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/user/chatfeed/internal/ingest"
	"github.com/user/chatfeed/internal/sse"
	"github.com/user/chatfeed/internal/stats"
	"github.com/user/chatfeed/internal/store"
	"github.com/user/chatfeed/internal/types"
)

// Server is the read-only HTTP introspection surface behind the developer
// debug panel. It renders nothing and mutates nothing; every endpoint is a
// snapshot read of the store or the pipeline's reconstruction state.
type Server struct {
	store    *store.Store
	pipeline *ingest.Pipeline
	counter  *stats.Counter
	mux      *http.ServeMux
}

// NewServer creates a debug Server over the given store. pipeline and
// counter are optional; their endpoints degrade gracefully when absent.
func NewServer(st *store.Store, pipeline *ingest.Pipeline, counter *stats.Counter) *Server {
	s := &Server{
		store:    st,
		pipeline: pipeline,
		counter:  counter,
		mux:      http.NewServeMux(),
	}
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("GET /api/sessions", s.handleSessions)
	s.mux.HandleFunc("GET /api/sessions/", s.handleSessionSub)
	s.mux.HandleFunc("GET /api/partials", s.handlePartials)
	s.mux.HandleFunc("GET /api/failures", s.handleFailures)
	return s
}

// ServeHTTP delegates to the internal mux, implementing http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

type sessionResponse struct {
	SessionID  string `json:"session_id"`
	EventCount int    `json:"event_count"`
	Streaming  bool   `json:"streaming"`
	Tokens     int    `json:"tokens,omitempty"`
}

func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request) {
	ids := s.store.Sessions()
	result := make([]sessionResponse, 0, len(ids))
	for _, id := range ids {
		resp := sessionResponse{
			SessionID:  string(id),
			EventCount: s.store.EventCount(id),
			Streaming:  s.store.HasStreamingMessage(id),
		}
		if s.counter != nil {
			resp.Tokens = s.counter.SessionTokens(s.store.SessionEvents(id))
		}
		result = append(result, resp)
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(result)
}

func (s *Server) handleSessionSub(w http.ResponseWriter, r *http.Request) {
	// Path: /api/sessions/{id}/{events|streaming|tokens}
	path := strings.TrimPrefix(r.URL.Path, "/api/sessions/")
	parts := strings.SplitN(path, "/", 2)
	if len(parts) < 2 {
		http.Error(w, `{"error":"not found"}`, http.StatusNotFound)
		return
	}
	sessionID := types.SessionID(parts[0])

	switch parts[1] {
	case "events":
		s.handleSessionEvents(w, r, sessionID)
	case "streaming":
		s.handleSessionStreaming(w, sessionID)
	case "tokens":
		s.handleSessionTokens(w, sessionID)
	default:
		http.Error(w, `{"error":"not found"}`, http.StatusNotFound)
	}
}

func (s *Server) handleSessionEvents(w http.ResponseWriter, r *http.Request, sessionID types.SessionID) {
	events := s.store.SessionEvents(sessionID)

	limit := 200
	if q := r.URL.Query().Get("limit"); q != "" {
		if n, err := strconv.Atoi(q); err == nil && n > 0 {
			limit = n
		}
	}
	if len(events) > limit {
		events = events[len(events)-limit:]
	}
	if events == nil {
		events = []*types.CanonicalEvent{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(events)
}

func (s *Server) handleSessionStreaming(w http.ResponseWriter, sessionID types.SessionID) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]bool{
		"streaming": s.store.HasStreamingMessage(sessionID),
	})
}

func (s *Server) handleSessionTokens(w http.ResponseWriter, sessionID types.SessionID) {
	if s.counter == nil {
		http.Error(w, `{"error":"token counting not configured"}`, http.StatusServiceUnavailable)
		return
	}
	events := s.store.SessionEvents(sessionID)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]int{
		"tokens":           s.counter.SessionTokens(events),
		"streaming_tokens": s.counter.StreamingTokens(events),
	})
}

// handlePartials exposes the pipeline's partial-message tables: every open
// connection's in-flight frame buffers, keyed by in-flight message id.
func (s *Server) handlePartials(w http.ResponseWriter, r *http.Request) {
	if s.pipeline == nil {
		http.Error(w, `{"error":"pipeline not configured"}`, http.StatusServiceUnavailable)
		return
	}

	partials := s.pipeline.PartialMessages()
	result := make(map[string]map[string]string, len(partials))
	for connID, frames := range partials {
		result[string(connID)] = frames
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(result)
}

// handleFailures exposes frames that completed but failed decoding, with
// their text and error, so malformed upstream output can be inspected
// without digging through logs.
func (s *Server) handleFailures(w http.ResponseWriter, r *http.Request) {
	if s.pipeline == nil {
		http.Error(w, `{"error":"pipeline not configured"}`, http.StatusServiceUnavailable)
		return
	}

	failed := s.pipeline.FailedFrames()
	result := make(map[string]map[string]sse.FailedFrame, len(failed))
	for connID, frames := range failed {
		result[string(connID)] = frames
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(result)
}
