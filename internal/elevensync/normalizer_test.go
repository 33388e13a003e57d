package elevensync

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func decodeTestRecord(t *testing.T, payload string) RawRecord {
	t.Helper()
	record, err := DecodeRaw(json.RawMessage(payload))
	require.NoError(t, err)
	return record
}

func fixedNormalizer(at time.Time) *Normalizer {
	return &Normalizer{Now: func() time.Time { return at }}
}

func TestNormalizeCallerNumberPrecedence(t *testing.T) {
	record := decodeTestRecord(t, `{
		"conversation_id": "conv_1",
		"caller_number": "+15550000000",
		"metadata": {
			"phone_call": {"external_number": "+15551111111"}
		}
	}`)

	input, err := fixedNormalizer(time.Now()).Normalize(record, nil)
	require.NoError(t, err)

	require.NotNil(t, input.CallerNumber)
	require.Equal(t, "+15551111111", *input.CallerNumber)
}

func TestNormalizeFallsBackThroughNumberLocations(t *testing.T) {
	record := decodeTestRecord(t, `{
		"conversation_id": "conv_1",
		"caller_number": "+15550000000",
		"agent_number": "+15559999999"
	}`)

	input, err := fixedNormalizer(time.Now()).Normalize(record, nil)
	require.NoError(t, err)

	require.NotNil(t, input.CallerNumber)
	require.Equal(t, "+15550000000", *input.CallerNumber)
	require.NotNil(t, input.ReceiverNumber)
	require.Equal(t, "+15559999999", *input.ReceiverNumber)
}

func TestNormalizeRequiresConversationID(t *testing.T) {
	record := decodeTestRecord(t, `{"agent_name":"Sales"}`)

	_, err := fixedNormalizer(time.Now()).Normalize(record, nil)
	require.Error(t, err)
}

func TestNormalizeAcceptsIDFieldAlias(t *testing.T) {
	record := decodeTestRecord(t, `{"id":"conv_9"}`)

	input, err := fixedNormalizer(time.Now()).Normalize(record, nil)
	require.NoError(t, err)
	require.Equal(t, "conv_9", input.ConversationID)
}

func TestNormalizeStartTimeFromUnixSeconds(t *testing.T) {
	record := decodeTestRecord(t, `{
		"conversation_id": "conv_1",
		"metadata": {"start_time_unix_secs": 1700000000}
	}`)

	input, err := fixedNormalizer(time.Now()).Normalize(record, nil)
	require.NoError(t, err)
	require.Equal(t, time.Unix(1700000000, 0).UTC(), input.CreatedAt)
}

func TestNormalizeStartTimeWallClockFallback(t *testing.T) {
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	record := decodeTestRecord(t, `{"conversation_id":"conv_1"}`)

	input, err := fixedNormalizer(at).Normalize(record, nil)
	require.NoError(t, err)
	require.Equal(t, at, input.CreatedAt)
}

func TestNormalizeAgentDisplayPrecedence(t *testing.T) {
	agents := NewAgentMap()
	agents.Add("ag_1", "Sales Bot")

	embedded := decodeTestRecord(t, `{"conversation_id":"c1","agent_name":"Embedded","agent_id":"ag_1"}`)
	input, err := fixedNormalizer(time.Now()).Normalize(embedded, agents)
	require.NoError(t, err)
	require.Equal(t, "Embedded", *input.Agent)

	resolved := decodeTestRecord(t, `{"conversation_id":"c2","agent_id":"ag_1"}`)
	input, err = fixedNormalizer(time.Now()).Normalize(resolved, agents)
	require.NoError(t, err)
	require.Equal(t, "Sales Bot", *input.Agent)

	unknown := decodeTestRecord(t, `{"conversation_id":"c3","agent_id":"ag_unmapped"}`)
	input, err = fixedNormalizer(time.Now()).Normalize(unknown, agents)
	require.NoError(t, err)
	require.Equal(t, "ag_unmapped", *input.Agent)
}

func TestNormalizeCallSuccessfulCoercion(t *testing.T) {
	asString := decodeTestRecord(t, `{"conversation_id":"c1","analysis":{"call_successful":"success"}}`)
	input, err := fixedNormalizer(time.Now()).Normalize(asString, nil)
	require.NoError(t, err)
	require.Equal(t, "success", *input.CallSuccessful)

	asBool := decodeTestRecord(t, `{"conversation_id":"c2","call_successful":true}`)
	input, err = fixedNormalizer(time.Now()).Normalize(asBool, nil)
	require.NoError(t, err)
	require.Equal(t, "true", *input.CallSuccessful)
}

func TestNormalizeSerializesStructuredResults(t *testing.T) {
	record := decodeTestRecord(t, `{
		"conversation_id": "conv_1",
		"analysis": {
			"data_collection_results": {"intent": {"value": "reschedule"}},
			"evaluation_criteria_results": {"polite": {"result": "success"}}
		}
	}`)

	input, err := fixedNormalizer(time.Now()).Normalize(record, nil)
	require.NoError(t, err)

	require.NotNil(t, input.DataCollectionResults)
	require.JSONEq(t, `{"intent":{"value":"reschedule"}}`, *input.DataCollectionResults)
	require.NotNil(t, input.EvaluationCriteriaResults)
	require.JSONEq(t, `{"polite":{"result":"success"}}`, *input.EvaluationCriteriaResults)
}

func TestNormalizeDurationAndSentiment(t *testing.T) {
	record := decodeTestRecord(t, `{
		"conversation_id": "conv_1",
		"metadata": {"call_duration_secs": 142},
		"analysis": {"sentiment_score": 0.75}
	}`)

	input, err := fixedNormalizer(time.Now()).Normalize(record, nil)
	require.NoError(t, err)

	require.NotNil(t, input.Duration)
	require.Equal(t, 142, *input.Duration)
	require.NotNil(t, input.Sentiment)
	require.InDelta(t, 0.75, *input.Sentiment, 1e-9)
}

func TestNormalizeMissingOptionalFieldsStayNil(t *testing.T) {
	record := decodeTestRecord(t, `{"conversation_id":"conv_1"}`)

	input, err := fixedNormalizer(time.Now()).Normalize(record, nil)
	require.NoError(t, err)

	require.Nil(t, input.Agent)
	require.Nil(t, input.CallerNumber)
	require.Nil(t, input.Duration)
	require.Nil(t, input.Sentiment)
	require.Nil(t, input.TranscriptSummary)
	require.Nil(t, input.DataCollectionResults)
}
