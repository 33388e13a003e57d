package api

import (
	"errors"
	"net/http"

	"github.com/voicebotai/dashboard/internal/elevensync"
	"github.com/voicebotai/dashboard/internal/syncmetrics"
)

type SyncHandler struct {
	Orchestrator *elevensync.Orchestrator
}

type syncResponse struct {
	Status  string             `json:"status"`
	Summary elevensync.Summary `json:"summary"`
}

// TriggerSync runs one full sync cycle and reports the outcome. Overlapping
// triggers are rejected so only one cycle touches the vendor at a time.
func (h *SyncHandler) TriggerSync(w http.ResponseWriter, r *http.Request) {
	if h.Orchestrator == nil {
		sendError(w, http.StatusServiceUnavailable, "sync is not configured")
		return
	}

	summary, err := h.Orchestrator.RunCycle(r.Context())
	if err != nil {
		if errors.Is(err, elevensync.ErrSyncInProgress) {
			sendError(w, http.StatusConflict, "sync already in progress")
			return
		}
		// Partial cycles still carry useful counts; surface both.
		sendJSON(w, http.StatusOK, syncResponse{Status: "partial", Summary: summary})
		return
	}

	sendJSON(w, http.StatusOK, syncResponse{Status: "completed", Summary: summary})
}

// GetSyncMetrics reports in-process counters for sync cycles and vendor
// traffic.
func (h *SyncHandler) GetSyncMetrics(w http.ResponseWriter, r *http.Request) {
	sendJSON(w, http.StatusOK, syncmetrics.SnapshotNow())
}
