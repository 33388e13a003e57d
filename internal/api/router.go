package api

import (
	"encoding/json"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/voicebotai/dashboard/internal/elevenlabs"
	"github.com/voicebotai/dashboard/internal/elevensync"
	"github.com/voicebotai/dashboard/internal/store"
	"github.com/voicebotai/dashboard/internal/ws"
)

var startTime = time.Now()

type HealthResponse struct {
	Status    string `json:"status"`
	Uptime    string `json:"uptime"`
	Version   string `json:"version"`
	Timestamp string `json:"timestamp"`
}

type RouterConfig struct {
	APIToken     string
	Store        ConversationStore
	Transcripts  *store.TranscriptStore
	Client       *elevenlabs.Client
	Orchestrator *elevensync.Orchestrator
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	hub := ws.NewHub()
	go hub.Run()

	if cfg.Orchestrator != nil {
		cfg.Orchestrator.OnCycleComplete = func(summary elevensync.Summary) {
			hub.Broadcast(elevensync.MarshalSummary(summary))
		}
	}

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-API-Token"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Use(middleware.SetHeader("Content-Type", "application/json"))

	r.Get("/health", handleHealth)
	r.Get("/", handleRoot)
	r.Handle("/ws", &ws.Handler{Hub: hub})

	conversations := &ConversationHandler{
		Store:        cfg.Store,
		Transcripts:  cfg.Transcripts,
		Client:       cfg.Client,
		Orchestrator: cfg.Orchestrator,
	}
	r.Get("/api/conversations", conversations.ListConversations)
	r.Get("/api/conversations/metrics", conversations.GetMetrics)
	r.Get("/api/conversations/{conversationID}", conversations.GetConversation)
	r.Get("/api/conversations/{conversationID}/transcript", conversations.GetTranscript)
	r.Get("/api/conversations/{conversationID}/audio", conversations.GetAudio)
	r.Get("/api/conversations/{conversationID}/audio/stream", conversations.StreamAudio)
	r.Get("/api/metrics", conversations.GetMetrics)

	agents := &AgentHandler{Client: cfg.Client}
	r.Get("/api/agents", agents.ListAgents)
	r.Get("/api/agents/{agentID}", agents.GetAgent)

	syncHandler := &SyncHandler{Orchestrator: cfg.Orchestrator}
	r.With(RequireToken(cfg.APIToken)).Post("/api/sync", syncHandler.TriggerSync)
	r.Get("/api/sync/metrics", syncHandler.GetSyncMetrics)

	return r
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{
		Status:    "ok",
		Uptime:    time.Since(startTime).Round(time.Second).String(),
		Version:   getVersion(),
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}

	_ = json.NewEncoder(w).Encode(resp)
}

func handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	_ = json.NewEncoder(w).Encode(map[string]string{
		"name":   "Voicebot Dashboard",
		"health": "/health",
		"api":    "/api/conversations",
	})
}

func getVersion() string {
	if v := os.Getenv("VERSION"); v != "" {
		return v
	}
	return "dev"
}
