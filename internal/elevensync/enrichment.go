package elevensync

import "github.com/voicebotai/dashboard/internal/store"

// NeedsEnrichment decides whether a record warrants a full detail fetch:
// only when it is new, or when one of the analysis fields the list
// endpoint never carries is still missing. Records that are already fully
// enriched are skipped to bound vendor API call volume.
func NeedsEnrichment(record *store.Conversation) bool {
	if record == nil {
		return true
	}
	return record.TranscriptSummary == nil ||
		record.CallSummaryTitle == nil ||
		record.DataCollectionResults == nil ||
		record.EvaluationCriteriaResults == nil
}
