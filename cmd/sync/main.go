package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/voicebotai/dashboard/internal/config"
	"github.com/voicebotai/dashboard/internal/elevenlabs"
	"github.com/voicebotai/dashboard/internal/elevensync"
	"github.com/voicebotai/dashboard/internal/store"
)

// One-shot sync: pull the full conversation list from the vendor, enrich
// what needs it, and merge into the database. Useful for cron jobs and
// backfills without the API server running.
func main() {
	pageSize := flag.Int("page-size", 0, "list page size (default from SYNC_PAGE_SIZE)")
	maxPages := flag.Int("max-pages", 0, "page cap for a single walk (default from SYNC_MAX_PAGES)")
	workers := flag.Int("workers", 0, "parallel detail fetches (default from SYNC_WORKERS)")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if cfg.ElevenLabs.APIKey == "" {
		log.Fatal("ELEVENLABS_API_KEY is required")
	}

	db, err := store.DB()
	if err != nil {
		log.Fatalf("database: %v", err)
	}

	client, err := elevenlabs.NewClient(cfg.ElevenLabs.BaseURL, cfg.ElevenLabs.APIKey)
	if err != nil {
		log.Fatalf("vendor client: %v", err)
	}

	orchestrator := elevensync.NewOrchestrator(client, store.NewConversationStore(db))
	orchestrator.PageSize = pick(*pageSize, cfg.Sync.PageSize)
	orchestrator.MaxPages = pick(*maxPages, cfg.Sync.MaxPages)
	orchestrator.Workers = pick(*workers, cfg.Sync.Workers)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	summary, err := orchestrator.RunCycle(ctx)
	if err != nil {
		log.Printf("sync finished with errors: %v", err)
	}

	fmt.Printf("total=%d new=%d updated=%d skipped=%d failed=%d elapsed=%s\n",
		summary.Total, summary.New, summary.Updated, summary.Skipped, summary.Failed,
		summary.FinishedAt.Sub(summary.StartedAt).Round(time.Millisecond))

	if err != nil {
		os.Exit(1)
	}
}

func pick(flagValue, configValue int) int {
	if flagValue > 0 {
		return flagValue
	}
	return configValue
}
