// Package elevensync mirrors vendor conversation records into the local store:
// paginated list fetch, agent name resolution, normalization of the
// vendor's inconsistent payload shapes, and reconciliation by upsert.
package elevensync

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/voicebotai/dashboard/internal/store"
)

// RawRecord is a decoded vendor payload. The vendor moves fields around
// between deployments, so records stay schemaless until extraction.
type RawRecord map[string]any

func DecodeRaw(raw json.RawMessage) (RawRecord, error) {
	var record RawRecord
	if err := json.Unmarshal(raw, &record); err != nil {
		return nil, fmt.Errorf("decode vendor record: %w", err)
	}
	return record, nil
}

// fieldPath addresses one candidate location of a logical value inside a
// nested payload.
type fieldPath []string

// Extraction rule tables. Order is precedence: the first non-empty
// candidate wins. Vendor responses are not self-consistent about where
// data lives across conversations, so adding a new quirk is a row here,
// not a new branch.
var (
	conversationIDPaths = []fieldPath{
		{"conversation_id"},
		{"id"},
	}
	agentNamePaths = []fieldPath{
		{"agent_name"},
		{"agent", "name"},
	}
	agentIDPaths = []fieldPath{
		{"agent_id"},
		{"agent", "agent_id"},
		{"agent", "id"},
	}
	callerNumberPaths = []fieldPath{
		{"metadata", "phone_call", "external_number"},
		{"metadata", "phone_call", "caller_number"},
		{"metadata", "phone_call", "from_number"},
		{"caller_number"},
		{"external_number"},
	}
	receiverNumberPaths = []fieldPath{
		{"metadata", "phone_call", "agent_number"},
		{"metadata", "phone_call", "to_number"},
		{"receiver_number"},
		{"agent_number"},
	}
	durationPaths = []fieldPath{
		{"call_duration_secs"},
		{"metadata", "call_duration_secs"},
	}
	sentimentPaths = []fieldPath{
		{"sentiment_score"},
		{"sentiment"},
		{"analysis", "sentiment_score"},
		{"analysis", "sentiment"},
	}
	transcriptSummaryPaths = []fieldPath{
		{"transcript_summary"},
		{"analysis", "transcript_summary"},
		{"analysis", "summary"},
	}
	callSummaryTitlePaths = []fieldPath{
		{"call_summary_title"},
		{"analysis", "call_summary_title"},
		{"analysis", "title"},
	}
	callSuccessfulPaths = []fieldPath{
		{"analysis", "call_successful"},
		{"call_successful"},
	}
	dataCollectionPaths = []fieldPath{
		{"data_collection_results"},
		{"data_collection"},
		{"analysis", "data_collection_results"},
	}
	evaluationCriteriaPaths = []fieldPath{
		{"analysis", "evaluation_criteria_results"},
	}
	startTimePaths = []fieldPath{
		{"start_time_unix_secs"},
		{"metadata", "start_time_unix_secs"},
	}
)

// Normalizer turns raw vendor payloads into upsert inputs. It is pure
// over its inputs except for the documented wall-clock fallback when the
// vendor omits a start time.
type Normalizer struct {
	Now func() time.Time
}

func NewNormalizer() *Normalizer {
	return &Normalizer{Now: func() time.Time { return time.Now().UTC() }}
}

func (n *Normalizer) Normalize(record RawRecord, agents *AgentMap) (store.UpsertConversationInput, error) {
	conversationID := firstString(record, conversationIDPaths)
	if conversationID == "" {
		return store.UpsertConversationInput{}, fmt.Errorf("record has no conversation id")
	}

	input := store.UpsertConversationInput{
		ConversationID:            conversationID,
		Agent:                     optional(resolveAgentDisplay(record, agents)),
		CallerNumber:              optional(firstString(record, callerNumberPaths)),
		ReceiverNumber:            optional(firstString(record, receiverNumberPaths)),
		TranscriptSummary:         optional(firstString(record, transcriptSummaryPaths)),
		CallSummaryTitle:          optional(firstString(record, callSummaryTitlePaths)),
		CallSuccessful:            optional(firstScalarString(record, callSuccessfulPaths)),
		DataCollectionResults:     firstSerialized(record, dataCollectionPaths),
		EvaluationCriteriaResults: firstSerialized(record, evaluationCriteriaPaths),
		CreatedAt:                 n.startTime(record),
	}

	if duration, ok := firstInt(record, durationPaths); ok && duration > 0 {
		input.Duration = &duration
	}
	if sentiment, ok := firstFloat(record, sentimentPaths); ok {
		input.Sentiment = &sentiment
	}

	return input, nil
}

// resolveAgentDisplay prefers an embedded agent name, then resolves an
// identifier through the agent map, and finally keeps the raw identifier
// so the display is never empty.
func resolveAgentDisplay(record RawRecord, agents *AgentMap) string {
	if name := firstString(record, agentNamePaths); name != "" {
		return name
	}
	if id := firstString(record, agentIDPaths); id != "" {
		return agents.DisplayName(id)
	}
	return ""
}

func (n *Normalizer) startTime(record RawRecord) time.Time {
	if secs, ok := firstInt(record, startTimePaths); ok && secs > 0 {
		return time.Unix(int64(secs), 0).UTC()
	}
	if n.Now != nil {
		return n.Now().UTC()
	}
	return time.Now().UTC()
}

func lookupPath(record RawRecord, path fieldPath) (any, bool) {
	var current any = map[string]any(record)
	for _, key := range path {
		node, ok := current.(map[string]any)
		if !ok {
			return nil, false
		}
		current, ok = node[key]
		if !ok || current == nil {
			return nil, false
		}
	}
	return current, true
}

func firstString(record RawRecord, paths []fieldPath) string {
	for _, path := range paths {
		value, ok := lookupPath(record, path)
		if !ok {
			continue
		}
		if text, ok := value.(string); ok {
			if trimmed := strings.TrimSpace(text); trimmed != "" {
				return trimmed
			}
		}
	}
	return ""
}

// firstScalarString is firstString but also accepts booleans and numbers,
// for fields like call_successful that some payloads carry as a bool.
func firstScalarString(record RawRecord, paths []fieldPath) string {
	for _, path := range paths {
		value, ok := lookupPath(record, path)
		if !ok {
			continue
		}
		switch typed := value.(type) {
		case string:
			if trimmed := strings.TrimSpace(typed); trimmed != "" {
				return trimmed
			}
		case bool:
			return strconv.FormatBool(typed)
		case float64:
			return strconv.FormatFloat(typed, 'f', -1, 64)
		}
	}
	return ""
}

func firstFloat(record RawRecord, paths []fieldPath) (float64, bool) {
	for _, path := range paths {
		value, ok := lookupPath(record, path)
		if !ok {
			continue
		}
		switch typed := value.(type) {
		case float64:
			return typed, true
		case string:
			if parsed, err := strconv.ParseFloat(strings.TrimSpace(typed), 64); err == nil {
				return parsed, true
			}
		}
	}
	return 0, false
}

func firstInt(record RawRecord, paths []fieldPath) (int, bool) {
	value, ok := firstFloat(record, paths)
	if !ok {
		return 0, false
	}
	return int(value), true
}

// firstSerialized finds the first structured candidate and serializes it
// to canonical JSON text for storage. Structured payloads arrive as
// objects or arrays depending on the vendor's mood.
func firstSerialized(record RawRecord, paths []fieldPath) *string {
	for _, path := range paths {
		value, ok := lookupPath(record, path)
		if !ok {
			continue
		}
		switch value.(type) {
		case map[string]any, []any:
			encoded, err := json.Marshal(value)
			if err != nil {
				continue
			}
			text := string(encoded)
			return &text
		}
	}
	return nil
}

func optional(value string) *string {
	if value == "" {
		return nil
	}
	return &value
}
