// Package syncmetrics keeps in-memory counters for sync cycles and vendor
// API traffic. Counters are process-local and reset on restart.
package syncmetrics

import (
	"sync"
	"time"
)

type CycleMetrics struct {
	CyclesTotal        int64 `json:"cycles_total"`
	CyclesFailedTotal  int64 `json:"cycles_failed_total"`
	RecordsSeenTotal   int64 `json:"records_seen_total"`
	RecordsNewTotal    int64 `json:"records_new_total"`
	RecordsUpdated     int64 `json:"records_updated_total"`
	RecordsSkipped     int64 `json:"records_skipped_total"`
	RecordsFailedTotal int64 `json:"records_failed_total"`
	TotalLatencyMillis int64 `json:"total_latency_millis"`
}

type VendorMetrics struct {
	RequestsTotal int64     `json:"requests_total"`
	UpdatedAt     time.Time `json:"updated_at"`
}

type Snapshot struct {
	Cycles      CycleMetrics  `json:"cycles"`
	Vendor      VendorMetrics `json:"vendor"`
	LastCycleAt time.Time     `json:"last_cycle_at"`
	GeneratedAt time.Time     `json:"generated_at"`
}

type registry struct {
	mu          sync.RWMutex
	cycles      CycleMetrics
	vendor      VendorMetrics
	lastCycleAt time.Time
}

var globalRegistry = &registry{}

func ResetForTests() {
	globalRegistry = &registry{}
}

// RecordCycle accumulates one completed sync cycle's summary counts.
func RecordCycle(total, created, updated, skipped, failed int, latency time.Duration, err error) {
	globalRegistry.mu.Lock()
	defer globalRegistry.mu.Unlock()

	globalRegistry.cycles.CyclesTotal++
	if err != nil {
		globalRegistry.cycles.CyclesFailedTotal++
	}
	globalRegistry.cycles.RecordsSeenTotal += int64(total)
	globalRegistry.cycles.RecordsNewTotal += int64(created)
	globalRegistry.cycles.RecordsUpdated += int64(updated)
	globalRegistry.cycles.RecordsSkipped += int64(skipped)
	globalRegistry.cycles.RecordsFailedTotal += int64(failed)
	if latency > 0 {
		globalRegistry.cycles.TotalLatencyMillis += latency.Milliseconds()
	}
	globalRegistry.lastCycleAt = time.Now().UTC()
}

// RecordVendorRequest counts one request issued to the vendor API.
func RecordVendorRequest() {
	globalRegistry.mu.Lock()
	defer globalRegistry.mu.Unlock()

	globalRegistry.vendor.RequestsTotal++
	globalRegistry.vendor.UpdatedAt = time.Now().UTC()
}

func SnapshotNow() Snapshot {
	globalRegistry.mu.RLock()
	defer globalRegistry.mu.RUnlock()

	return Snapshot{
		Cycles:      globalRegistry.cycles,
		Vendor:      globalRegistry.vendor,
		LastCycleAt: globalRegistry.lastCycleAt,
		GeneratedAt: time.Now().UTC(),
	}
}
