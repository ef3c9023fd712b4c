package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/agentd-ai/agentd/internal/logging"
	"github.com/agentd-ai/agentd/pkg/types"
)

// SSEHeartbeatInterval is the interval for SSE heartbeats.
const SSEHeartbeatInterval = 30 * time.Second

// streamEvent is the wire shape of one SSE payload.
type streamEvent struct {
	Type       string `json:"type"`
	Properties any    `json:"properties"`
}

// sseWriter wraps http.ResponseWriter for SSE.
type sseWriter struct {
	w       http.ResponseWriter
	flusher http.Flusher
	rc      *http.ResponseController
}

func newSSEWriter(w http.ResponseWriter) (*sseWriter, error) {
	rc := http.NewResponseController(w)
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("streaming not supported")
	}
	return &sseWriter{w: w, flusher: flusher, rc: rc}, nil
}

// writeEvent writes one SSE event and flushes it.
func (s *sseWriter) writeEvent(eventType string, data any) error {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(s.w, "event: %s\ndata: %s\n\n", eventType, jsonData); err != nil {
		return err
	}
	if flushErr := s.rc.Flush(); flushErr != nil {
		s.flusher.Flush()
	}
	return nil
}

func (s *sseWriter) writeHeartbeat() {
	fmt.Fprintf(s.w, ": heartbeat\n\n")
	s.flusher.Flush()
}

// sessionEvents streams one session's output events.
func (s *Server) sessionEvents(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("sessionID")
	if sessionID == "" {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "sessionID required")
		return
	}
	s.streamEvents(w, r, func(ev types.OutputEvent) bool {
		return ev.SessionID == sessionID
	})
}

// globalEvents streams every output event.
func (s *Server) globalEvents(w http.ResponseWriter, r *http.Request) {
	s.streamEvents(w, r, func(types.OutputEvent) bool { return true })
}

func (s *Server) streamEvents(w http.ResponseWriter, r *http.Request, match func(types.OutputEvent) bool) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // Disable nginx buffering

	sse, err := newSSEWriter(w)
	if err != nil {
		writeError(w, http.StatusInternalServerError, ErrCodeInternalError, err.Error())
		return
	}

	// Flush headers before the first event so the client sees the stream
	// open immediately.
	w.WriteHeader(http.StatusOK)
	sse.flusher.Flush()

	// Subscribe before announcing the stream so no event published after
	// the client sees server.connected can be missed.
	events := make(chan types.OutputEvent, 10)
	unsub := s.out.Subscribe(func(ev types.OutputEvent) {
		if !match(ev) {
			return
		}
		select {
		case events <- ev:
		default:
			logging.Component("server").Warn().
				Str("session", ev.SessionID).
				Msg("SSE event dropped: channel full")
		}
	})
	defer unsub()

	if err := sse.writeEvent("message", streamEvent{Type: "server.connected", Properties: map[string]any{}}); err != nil {
		return
	}

	ticker := time.NewTicker(SSEHeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case ev := <-events:
			data := streamEvent{Type: "output." + string(ev.Kind), Properties: ev}
			if err := sse.writeEvent("message", data); err != nil {
				return
			}
		case <-ticker.C:
			sse.writeHeartbeat()
		}
	}
}
