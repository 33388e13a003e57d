package elevensync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/voicebotai/dashboard/internal/elevenlabs"
	"github.com/voicebotai/dashboard/internal/store"
	"github.com/voicebotai/dashboard/internal/syncmetrics"
)

const (
	defaultWorkers  = 4
	defaultAgentTTL = 5 * time.Minute
)

// ErrSyncInProgress is returned when a cycle is requested while another
// one is still running against the same store.
var ErrSyncInProgress = errors.New("sync cycle already in progress")

// ConversationSyncStore is the storage surface the engine needs: upsert
// by conversation_id and read-back for the enrichment decision.
type ConversationSyncStore interface {
	Upsert(ctx context.Context, input store.UpsertConversationInput) (*store.Conversation, bool, error)
	GetByConversationID(ctx context.Context, conversationID string) (*store.Conversation, error)
}

// Summary is the result of one sync cycle. Skipped covers both
// already-enriched records that needed no work and records whose detail
// fetch failed and were merged from list data only.
type Summary struct {
	Total      int       `json:"total"`
	New        int       `json:"new"`
	Updated    int       `json:"updated"`
	Skipped    int       `json:"skipped"`
	Failed     int       `json:"failed"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}

// Orchestrator drives full sync cycles: list fetch, agent resolution,
// bounded-parallel per-record enrichment, then a single merge pass.
type Orchestrator struct {
	Client   *elevenlabs.Client
	Store    ConversationSyncStore
	Resolver *AgentResolver

	PageSize int
	MaxPages int
	Workers  int
	Logf     func(string, ...any)

	// OnCycleComplete, when set, receives every finished summary
	// (including partial ones after cancellation).
	OnCycleComplete func(Summary)

	normalizer *Normalizer
	now        func() time.Time
	running    atomic.Bool

	agentsMu sync.Mutex
	agents   *AgentMap
	agentsAt time.Time
	agentTTL time.Duration
}

func NewOrchestrator(client *elevenlabs.Client, syncStore ConversationSyncStore) *Orchestrator {
	return &Orchestrator{
		Client:     client,
		Store:      syncStore,
		Resolver:   NewAgentResolver(client),
		PageSize:   elevenlabs.DefaultPageSize,
		MaxPages:   elevenlabs.DefaultMaxPages,
		Workers:    defaultWorkers,
		Logf:       log.Printf,
		normalizer: NewNormalizer(),
		now:        func() time.Time { return time.Now().UTC() },
		agentTTL:   defaultAgentTTL,
	}
}

// enrichTarget is one listed record queued for the enrichment stage.
type enrichTarget struct {
	conversationID string
	listRecord     RawRecord
}

// enrichOutcome is the collected result for one record: the payload to
// normalize and whether the detail fetch failed.
type enrichOutcome struct {
	record  RawRecord
	errored bool
}

// RunCycle executes one full sync cycle. Only one cycle may run at a
// time; a concurrent call fails fast with ErrSyncInProgress. The cycle
// always produces a summary, even when cancelled partway.
func (o *Orchestrator) RunCycle(ctx context.Context) (Summary, error) {
	if !o.running.CompareAndSwap(false, true) {
		return Summary{}, ErrSyncInProgress
	}
	defer o.running.Store(false)

	summary := Summary{StartedAt: o.now()}
	var errs []error

	finish := func(err error) (Summary, error) {
		summary.FinishedAt = o.now()
		syncmetrics.RecordCycle(
			summary.Total, summary.New, summary.Updated, summary.Skipped, summary.Failed,
			summary.FinishedAt.Sub(summary.StartedAt), err,
		)
		if o.OnCycleComplete != nil {
			o.OnCycleComplete(summary)
		}
		return summary, err
	}

	items, err := o.Client.AllConversations(ctx, o.PageSize, o.MaxPages)
	if err != nil {
		if len(items) == 0 {
			return finish(fmt.Errorf("fetch conversation list: %w", err))
		}
		o.logf("conversation list fetch stopped early with %d records: %v", len(items), err)
	}
	if err := ctx.Err(); err != nil {
		return finish(err)
	}

	// Agent names are resolved once per cycle and cached for the remainder.
	agents := o.resolveAgents(ctx)
	if err := ctx.Err(); err != nil {
		return finish(err)
	}

	// Decide per record whether a detail fetch is needed, then fan out.
	var targets []enrichTarget
	for _, item := range items {
		record, err := DecodeRaw(item)
		if err != nil {
			o.logf("skipping undecodable list record: %v", err)
			continue
		}
		conversationID := firstString(record, conversationIDPaths)
		if conversationID == "" {
			continue
		}
		summary.Total++

		stored, err := o.lookupStored(ctx, conversationID)
		if err != nil {
			summary.Failed++
			errs = append(errs, fmt.Errorf("lookup %s: %w", conversationID, err))
			continue
		}
		if stored != nil && !NeedsEnrichment(stored) {
			summary.Skipped++
			continue
		}
		targets = append(targets, enrichTarget{conversationID: conversationID, listRecord: record})
	}

	outcomes := o.fetchDetails(ctx, targets)
	if err := ctx.Err(); err != nil {
		return finish(err)
	}

	// Merge is a single sequential pass with per-record commits so one failure
	// never takes down the rest. Cancellation is honored between records,
	// never mid-record.
	for index, outcome := range outcomes {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			summary.Skipped += len(outcomes) - index
			break
		}

		input, err := o.normalizer.Normalize(outcome.record, agents)
		if err != nil {
			summary.Failed++
			errs = append(errs, err)
			continue
		}

		_, created, err := o.Store.Upsert(ctx, input)
		if err != nil {
			summary.Failed++
			errs = append(errs, fmt.Errorf("merge %s: %w", input.ConversationID, err))
			continue
		}

		switch {
		case outcome.errored:
			// Merged from list data only; analysis fields stay null so the
			// record is retried next cycle.
			summary.Skipped++
		case created:
			summary.New++
		default:
			summary.Updated++
		}
	}

	return finish(errors.Join(errs...))
}

// fetchDetails fans detail fetches out over a bounded worker pool and
// collects all outcomes before the merge stage begins. A failed fetch
// degrades the record to its list payload.
func (o *Orchestrator) fetchDetails(ctx context.Context, targets []enrichTarget) []enrichOutcome {
	if len(targets) == 0 {
		return nil
	}

	workers := o.Workers
	if workers <= 0 {
		workers = defaultWorkers
	}
	if workers > len(targets) {
		workers = len(targets)
	}

	outcomes := make([]enrichOutcome, len(targets))
	jobs := make(chan int)

	var wg sync.WaitGroup
	wg.Add(workers)
	for worker := 0; worker < workers; worker++ {
		go func() {
			defer wg.Done()
			for index := range jobs {
				outcomes[index] = o.fetchDetail(ctx, targets[index])
			}
		}()
	}

	for index := range targets {
		select {
		case jobs <- index:
		case <-ctx.Done():
			// Remaining records keep their list payloads.
			for rest := index; rest < len(targets); rest++ {
				outcomes[rest] = enrichOutcome{record: targets[rest].listRecord, errored: true}
			}
			close(jobs)
			wg.Wait()
			return outcomes
		}
	}
	close(jobs)
	wg.Wait()
	return outcomes
}

func (o *Orchestrator) fetchDetail(ctx context.Context, target enrichTarget) enrichOutcome {
	detail, err := o.Client.GetConversation(ctx, target.conversationID)
	if err != nil {
		o.logf("detail fetch for %s failed, merging list data only: %v", target.conversationID, err)
		return enrichOutcome{record: target.listRecord, errored: true}
	}
	record, err := DecodeRaw(detail)
	if err != nil {
		o.logf("detail payload for %s undecodable, merging list data only: %v", target.conversationID, err)
		return enrichOutcome{record: target.listRecord, errored: true}
	}
	return enrichOutcome{record: record}
}

// EnrichOne fetches, normalizes, and merges a single conversation on
// demand, outside a full cycle. Used when a user views a record that is
// not yet fully enriched.
func (o *Orchestrator) EnrichOne(ctx context.Context, conversationID string) (*store.Conversation, error) {
	detail, err := o.Client.GetConversation(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	record, err := DecodeRaw(detail)
	if err != nil {
		return nil, err
	}

	input, err := o.normalizer.Normalize(record, o.CachedAgents(ctx))
	if err != nil {
		return nil, err
	}
	merged, _, err := o.Store.Upsert(ctx, input)
	if err != nil {
		return nil, err
	}
	return merged, nil
}

// CachedAgents returns the most recently resolved agent map, refreshing
// it when stale. Reads use it to lazily rewrite stored identifiers.
func (o *Orchestrator) CachedAgents(ctx context.Context) *AgentMap {
	o.agentsMu.Lock()
	defer o.agentsMu.Unlock()

	if o.agents != nil && o.now().Sub(o.agentsAt) < o.agentTTL {
		return o.agents
	}

	agents, err := o.Resolver.Resolve(ctx)
	if err != nil && agents.Len() == 0 {
		o.logf("agent resolution failed: %v", err)
		if o.agents != nil {
			return o.agents
		}
		return agents
	}

	o.agents = agents
	o.agentsAt = o.now()
	return agents
}

// resolveAgents refreshes the cycle's agent map and updates the cache.
func (o *Orchestrator) resolveAgents(ctx context.Context) *AgentMap {
	agents, err := o.Resolver.Resolve(ctx)
	if err != nil && agents.Len() == 0 {
		o.logf("agent resolution failed, identifiers will pass through: %v", err)
		return agents
	}

	o.agentsMu.Lock()
	o.agents = agents
	o.agentsAt = o.now()
	o.agentsMu.Unlock()
	return agents
}

func (o *Orchestrator) lookupStored(ctx context.Context, conversationID string) (*store.Conversation, error) {
	stored, err := o.Store.GetByConversationID(ctx, conversationID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return stored, nil
}

func (o *Orchestrator) logf(format string, args ...any) {
	if o.Logf != nil {
		o.Logf(format, args...)
	}
}

// MarshalSummary renders a summary for hub broadcast.
func MarshalSummary(summary Summary) []byte {
	payload := map[string]any{
		"type":    "sync_completed",
		"summary": summary,
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil
	}
	return data
}
