package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/voicebotai/dashboard/internal/elevenlabs"
)

type AgentHandler struct {
	Client *elevenlabs.Client
}

type agentListResponse struct {
	Agents []json.RawMessage `json:"agents"`
	Total  int               `json:"total"`
}

// ListAgents passes the vendor's agent directory through unchanged.
func (h *AgentHandler) ListAgents(w http.ResponseWriter, r *http.Request) {
	if h.Client == nil {
		sendError(w, http.StatusServiceUnavailable, "vendor client is not configured")
		return
	}

	agents, err := h.Client.AllAgents(r.Context(), 0, 0)
	if err != nil && len(agents) == 0 {
		sendError(w, http.StatusBadGateway, "failed to list agents")
		return
	}

	if agents == nil {
		agents = []json.RawMessage{}
	}
	sendJSON(w, http.StatusOK, agentListResponse{Agents: agents, Total: len(agents)})
}

// GetAgent passes one vendor agent record through unchanged.
func (h *AgentHandler) GetAgent(w http.ResponseWriter, r *http.Request) {
	if h.Client == nil {
		sendError(w, http.StatusServiceUnavailable, "vendor client is not configured")
		return
	}

	agent, err := h.Client.GetAgent(r.Context(), chi.URLParam(r, "agentID"))
	if err != nil {
		var httpErr *elevenlabs.HTTPError
		if errors.As(err, &httpErr) && httpErr.NotFound() {
			sendError(w, http.StatusNotFound, "agent not found")
			return
		}
		sendError(w, http.StatusBadGateway, "failed to fetch agent")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(agent)
}
