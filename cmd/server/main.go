package main

import (
	"context"
	"log"
	"net/http"

	"github.com/voicebotai/dashboard/internal/api"
	"github.com/voicebotai/dashboard/internal/automigrate"
	"github.com/voicebotai/dashboard/internal/config"
	"github.com/voicebotai/dashboard/internal/elevenlabs"
	"github.com/voicebotai/dashboard/internal/elevensync"
	"github.com/voicebotai/dashboard/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	db, err := store.DB()
	if err != nil {
		log.Fatalf("database: %v", err)
	}

	if err := automigrate.Run(db, "migrations"); err != nil {
		log.Fatalf("migrations: %v", err)
	}

	conversations := store.NewConversationStore(db)
	transcripts := store.NewTranscriptStore(db)

	var (
		client       *elevenlabs.Client
		orchestrator *elevensync.Orchestrator
	)
	if cfg.ElevenLabs.APIKey != "" {
		client, err = elevenlabs.NewClient(cfg.ElevenLabs.BaseURL, cfg.ElevenLabs.APIKey)
		if err != nil {
			log.Fatalf("vendor client: %v", err)
		}

		orchestrator = elevensync.NewOrchestrator(client, conversations)
		orchestrator.PageSize = cfg.Sync.PageSize
		orchestrator.MaxPages = cfg.Sync.MaxPages
		orchestrator.Workers = cfg.Sync.Workers

		if cfg.Sync.Enabled {
			runner := elevensync.NewRunner(orchestrator, cfg.Sync.Interval)
			go runner.Start(context.Background())
		}
	} else {
		log.Printf("ELEVENLABS_API_KEY not set; serving stored data only")
	}

	handler := api.NewRouter(api.RouterConfig{
		APIToken:     cfg.APIToken,
		Store:        conversations,
		Transcripts:  transcripts,
		Client:       client,
		Orchestrator: orchestrator,
	})

	log.Printf("voicebot dashboard listening on port %s", cfg.Port)
	if err := http.ListenAndServe(":"+cfg.Port, handler); err != nil {
		log.Fatalf("server failed: %v", err)
	}
}
