package server

import (
	"encoding/json"
	"net/http"

	"github.com/agentd-ai/agentd/pkg/types"
)

// inputRequest is the body of POST /input.
type inputRequest struct {
	SessionID string          `json:"sessionID,omitempty"`
	Content   json.RawMessage `json:"content"`
	Files     []string        `json:"files,omitempty"`
}

// inputResponse acknowledges a published input event.
type inputResponse struct {
	ID        string `json:"id"`
	SessionID string `json:"sessionID"`
}

// postInput publishes one input event on behalf of a web client. Replies
// arrive on the session's SSE stream, not in this response.
func (s *Server) postInput(w http.ResponseWriter, r *http.Request) {
	var req inputRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "invalid JSON body: "+err.Error())
		return
	}
	if len(req.Content) == 0 {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "content required")
		return
	}

	ev := s.in.Publish(types.InputEvent{
		Source:    "web",
		SessionID: req.SessionID,
		Flavor:    types.FlavorWeb,
		Content:   req.Content,
		Files:     req.Files,
	})

	writeJSON(w, http.StatusAccepted, inputResponse{
		ID:        ev.ID,
		SessionID: ev.EffectiveSessionID(),
	})
}
