package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/voicebotai/dashboard/internal/elevenlabs"
	"github.com/voicebotai/dashboard/internal/elevensync"
	"github.com/voicebotai/dashboard/internal/store"
)

// ConversationStore is the read surface the handlers need. The
// Postgres-backed store satisfies it.
type ConversationStore interface {
	Count(ctx context.Context) (int, error)
	List(ctx context.Context, filter store.ListConversationsFilter) ([]store.Conversation, error)
	GetByConversationID(ctx context.Context, conversationID string) (*store.Conversation, error)
	UpdateAgentName(ctx context.Context, conversationID, agentName string) error
	Metrics(ctx context.Context, now time.Time) (*store.ConversationMetrics, error)
}

type ConversationHandler struct {
	Store        ConversationStore
	Transcripts  *store.TranscriptStore
	Client       *elevenlabs.Client
	Orchestrator *elevensync.Orchestrator
}

type conversationListResponse struct {
	Conversations []store.Conversation `json:"conversations"`
	Total         int                  `json:"total"`
}

type conversationDetailResponse struct {
	store.Conversation
	HasAudio bool `json:"has_audio"`

	// Analysis payloads are stored as serialized text; the detail view
	// re-inflates them so consumers get the structure back, not a
	// quoted string.
	DataCollectionResults     json.RawMessage `json:"data_collection_results,omitempty"`
	EvaluationCriteriaResults json.RawMessage `json:"evaluation_criteria_results,omitempty"`
}

func analysisObject(serialized *string) json.RawMessage {
	if serialized == nil {
		return nil
	}
	raw := json.RawMessage(*serialized)
	if !json.Valid(raw) {
		quoted, err := json.Marshal(*serialized)
		if err != nil {
			return nil
		}
		return quoted
	}
	return raw
}

// ListConversations returns stored conversations, newest first. An empty
// database triggers a full sync cycle before responding so a fresh deploy
// shows data on first load.
func (h *ConversationHandler) ListConversations(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	total, err := h.Store.Count(ctx)
	if err != nil {
		sendError(w, http.StatusInternalServerError, "failed to count conversations")
		return
	}
	if total == 0 && h.Orchestrator != nil {
		if _, err := h.Orchestrator.RunCycle(ctx); err != nil && !errors.Is(err, elevensync.ErrSyncInProgress) {
			log.Printf("initial sync failed: %v", err)
		}
		if total, err = h.Store.Count(ctx); err != nil {
			sendError(w, http.StatusInternalServerError, "failed to count conversations")
			return
		}
	}

	filter := store.ListConversationsFilter{
		Limit:  queryInt(r, "limit", 0),
		Offset: queryInt(r, "offset", 0),
	}
	conversations, err := h.Store.List(ctx, filter)
	if err != nil {
		sendError(w, http.StatusInternalServerError, "failed to list conversations")
		return
	}

	h.repairAgentNames(r, conversations)

	if conversations == nil {
		conversations = []store.Conversation{}
	}
	sendJSON(w, http.StatusOK, conversationListResponse{
		Conversations: conversations,
		Total:         total,
	})
}

// repairAgentNames rewrites rows that still carry a raw agent ID once the
// vendor's agent directory can resolve it to a display name.
func (h *ConversationHandler) repairAgentNames(r *http.Request, conversations []store.Conversation) {
	if h.Orchestrator == nil {
		return
	}

	agents := h.Orchestrator.CachedAgents(r.Context())
	if agents == nil || agents.Len() == 0 {
		return
	}

	for i := range conversations {
		if conversations[i].Agent == nil {
			continue
		}
		current := *conversations[i].Agent
		resolved, ok := agents.Resolve(current)
		if !ok || resolved == current {
			continue
		}
		if err := h.Store.UpdateAgentName(r.Context(), conversations[i].ConversationID, resolved); err != nil {
			log.Printf("agent name repair failed for %s: %v", conversations[i].ConversationID, err)
			continue
		}
		conversations[i].Agent = &resolved
	}
}

// GetConversation returns one conversation, enriching it from the vendor
// first when analysis fields are still missing. A vendor failure degrades
// to the stored row rather than erroring.
func (h *ConversationHandler) GetConversation(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	conversationID := chi.URLParam(r, "conversationID")

	stored, err := h.Store.GetByConversationID(ctx, conversationID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		sendError(w, http.StatusInternalServerError, "failed to load conversation")
		return
	}

	if h.Orchestrator != nil && elevensync.NeedsEnrichment(stored) {
		enriched, err := h.Orchestrator.EnrichOne(ctx, conversationID)
		if err == nil {
			stored = enriched
		} else if stored == nil {
			var httpErr *elevenlabs.HTTPError
			if errors.As(err, &httpErr) && httpErr.NotFound() {
				sendError(w, http.StatusNotFound, "conversation not found")
				return
			}
			sendError(w, http.StatusBadGateway, "failed to fetch conversation")
			return
		}
	}

	if stored == nil {
		sendError(w, http.StatusNotFound, "conversation not found")
		return
	}

	records := []store.Conversation{*stored}
	h.repairAgentNames(r, records)
	stored = &records[0]

	hasAudio := false
	if h.Client != nil {
		if ok, err := h.Client.HasAudio(ctx, conversationID); err == nil {
			hasAudio = ok
		}
	}

	sendJSON(w, http.StatusOK, conversationDetailResponse{
		Conversation:              *stored,
		HasAudio:                  hasAudio,
		DataCollectionResults:     analysisObject(stored.DataCollectionResults),
		EvaluationCriteriaResults: analysisObject(stored.EvaluationCriteriaResults),
	})
}

// GetTranscript serves the cached transcript, fetching and caching it from
// the vendor on first request.
func (h *ConversationHandler) GetTranscript(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	conversationID := chi.URLParam(r, "conversationID")

	transcript, err := h.Transcripts.GetByConversationID(ctx, conversationID)
	if err == nil {
		sendJSON(w, http.StatusOK, transcript)
		return
	}
	if !errors.Is(err, store.ErrNotFound) {
		sendError(w, http.StatusInternalServerError, "failed to load transcript")
		return
	}

	if h.Client == nil {
		sendError(w, http.StatusNotFound, "transcript not found")
		return
	}

	text, err := h.Client.GetTranscript(ctx, conversationID)
	if err != nil {
		var httpErr *elevenlabs.HTTPError
		if errors.As(err, &httpErr) && httpErr.NotFound() {
			sendError(w, http.StatusNotFound, "transcript not found")
			return
		}
		sendError(w, http.StatusBadGateway, "failed to fetch transcript")
		return
	}
	if text == "" {
		sendError(w, http.StatusNotFound, "transcript not found")
		return
	}

	transcript, err = h.Transcripts.Save(ctx, conversationID, text)
	if err != nil {
		sendError(w, http.StatusInternalServerError, "failed to save transcript")
		return
	}

	sendJSON(w, http.StatusOK, transcript)
}

type audioInfoResponse struct {
	AudioURL  *string `json:"audio_url"`
	Available bool    `json:"available"`
}

// GetAudio reports whether a recording exists and where to stream it from.
func (h *ConversationHandler) GetAudio(w http.ResponseWriter, r *http.Request) {
	conversationID := chi.URLParam(r, "conversationID")

	if h.Client == nil {
		sendJSON(w, http.StatusOK, audioInfoResponse{})
		return
	}

	available, err := h.Client.HasAudio(r.Context(), conversationID)
	if err != nil || !available {
		sendJSON(w, http.StatusOK, audioInfoResponse{})
		return
	}

	streamURL := "/api/conversations/" + conversationID + "/audio/stream"
	sendJSON(w, http.StatusOK, audioInfoResponse{AudioURL: &streamURL, Available: true})
}

// StreamAudio proxies the vendor's call recording stream.
func (h *ConversationHandler) StreamAudio(w http.ResponseWriter, r *http.Request) {
	conversationID := chi.URLParam(r, "conversationID")

	if h.Client == nil {
		sendError(w, http.StatusNotFound, "audio not available")
		return
	}

	body, contentType, err := h.Client.StreamAudio(r.Context(), conversationID)
	if err != nil {
		var httpErr *elevenlabs.HTTPError
		if errors.As(err, &httpErr) && httpErr.NotFound() {
			sendError(w, http.StatusNotFound, "audio not available")
			return
		}
		sendError(w, http.StatusBadGateway, "failed to fetch audio")
		return
	}
	defer body.Close()

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", "inline; filename=\""+conversationID+".mp3\"")
	if _, err := io.Copy(w, body); err != nil {
		log.Printf("audio stream interrupted for %s: %v", conversationID, err)
	}
}

// GetMetrics returns dashboard aggregates over stored conversations.
func (h *ConversationHandler) GetMetrics(w http.ResponseWriter, r *http.Request) {
	metrics, err := h.Store.Metrics(r.Context(), time.Now().UTC())
	if err != nil {
		sendError(w, http.StatusInternalServerError, "failed to compute metrics")
		return
	}

	sendJSON(w, http.StatusOK, metrics)
}

func queryInt(r *http.Request, key string, fallback int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value < 0 {
		return fallback
	}
	return value
}
