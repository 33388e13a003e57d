package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

type Conversation struct {
	ID                        int64      `json:"id"`
	ConversationID            string     `json:"conversation_id"`
	Agent                     *string    `json:"agent,omitempty"`
	CallerNumber              *string    `json:"caller_number,omitempty"`
	ReceiverNumber            *string    `json:"receiver_number,omitempty"`
	Duration                  *int       `json:"duration,omitempty"`
	Sentiment                 *float64   `json:"sentiment,omitempty"`
	TranscriptSummary         *string    `json:"transcript_summary,omitempty"`
	CallSummaryTitle          *string    `json:"call_summary_title,omitempty"`
	CallSuccessful            *string    `json:"call_successful,omitempty"`
	DataCollectionResults     *string    `json:"data_collection_results,omitempty"`
	EvaluationCriteriaResults *string    `json:"evaluation_criteria_results,omitempty"`
	CreatedAt                 time.Time  `json:"created_at"`
	UpdatedAt                 time.Time  `json:"updated_at"`
}

type UpsertConversationInput struct {
	ConversationID            string
	Agent                     *string
	CallerNumber              *string
	ReceiverNumber            *string
	Duration                  *int
	Sentiment                 *float64
	TranscriptSummary         *string
	CallSummaryTitle          *string
	CallSuccessful            *string
	DataCollectionResults     *string
	EvaluationCriteriaResults *string
	CreatedAt                 time.Time
}

type ListConversationsFilter struct {
	Limit  int
	Offset int
}

type ConversationMetrics struct {
	TotalConversations    int      `json:"total_conversations"`
	TodaysConversations   int      `json:"todays_conversations"`
	TodaysChangePercent   float64  `json:"todays_change_percent"`
	AvgSentiment          *float64 `json:"avg_sentiment,omitempty"`
	SentimentChange       float64  `json:"sentiment_change_percent"`
	TotalDurationSeconds  int64    `json:"total_duration"`
	DistinctAgents        int      `json:"total_agents"`
}

type ConversationStore struct {
	db *sql.DB
}

func NewConversationStore(db *sql.DB) *ConversationStore {
	return &ConversationStore{db: db}
}

const conversationColumns = `id, conversation_id, agent, caller_number, receiver_number,
	duration, sentiment, transcript_summary, call_summary_title, call_successful,
	data_collection_results, evaluation_criteria_results, created_at, updated_at`

// Upsert merges one normalized record by conversation_id. Volatile fields
// (agent, numbers, duration, sentiment) take the incoming value when it is
// non-empty; analysis fields are fill-once and keep the first non-null
// value ever stored. The boolean result reports whether a new row was
// created.
func (s *ConversationStore) Upsert(ctx context.Context, input UpsertConversationInput) (*Conversation, bool, error) {
	conversationID := strings.TrimSpace(input.ConversationID)
	if conversationID == "" {
		return nil, false, fmt.Errorf("conversation_id is required")
	}
	createdAt := input.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	row := s.db.QueryRowContext(ctx, `
		INSERT INTO conversations (
			conversation_id, agent, caller_number, receiver_number, duration, sentiment,
			transcript_summary, call_summary_title, call_successful,
			data_collection_results, evaluation_criteria_results, created_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,NOW())
		ON CONFLICT (conversation_id) DO UPDATE SET
			agent = COALESCE(EXCLUDED.agent, conversations.agent),
			caller_number = COALESCE(EXCLUDED.caller_number, conversations.caller_number),
			receiver_number = COALESCE(EXCLUDED.receiver_number, conversations.receiver_number),
			duration = COALESCE(EXCLUDED.duration, conversations.duration),
			sentiment = COALESCE(EXCLUDED.sentiment, conversations.sentiment),
			transcript_summary = COALESCE(conversations.transcript_summary, EXCLUDED.transcript_summary),
			call_summary_title = COALESCE(conversations.call_summary_title, EXCLUDED.call_summary_title),
			call_successful = COALESCE(conversations.call_successful, EXCLUDED.call_successful),
			data_collection_results = COALESCE(conversations.data_collection_results, EXCLUDED.data_collection_results),
			evaluation_criteria_results = COALESCE(conversations.evaluation_criteria_results, EXCLUDED.evaluation_criteria_results),
			-- created_at always takes the incoming value, so a payload
			-- without a vendor start time resets it to sync wall clock.
			created_at = EXCLUDED.created_at,
			updated_at = NOW()
		RETURNING `+conversationColumns+`, (xmax = 0) AS created`,
		conversationID,
		nullableString(input.Agent),
		nullableString(input.CallerNumber),
		nullableString(input.ReceiverNumber),
		nullableInt(input.Duration),
		nullableFloat(input.Sentiment),
		nullableString(input.TranscriptSummary),
		nullableString(input.CallSummaryTitle),
		nullableString(input.CallSuccessful),
		nullableString(input.DataCollectionResults),
		nullableString(input.EvaluationCriteriaResults),
		createdAt.UTC(),
	)

	var record Conversation
	var created bool
	if err := scanConversation(row, &record, &created); err != nil {
		return nil, false, fmt.Errorf("failed to upsert conversation: %w", err)
	}
	return &record, created, nil
}

func (s *ConversationStore) GetByConversationID(ctx context.Context, conversationID string) (*Conversation, error) {
	conversationID = strings.TrimSpace(conversationID)
	if conversationID == "" {
		return nil, fmt.Errorf("conversation_id is required")
	}

	row := s.db.QueryRowContext(ctx,
		`SELECT `+conversationColumns+` FROM conversations WHERE conversation_id = $1`,
		conversationID,
	)

	var record Conversation
	if err := scanConversation(row, &record, nil); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to load conversation: %w", err)
	}
	return &record, nil
}

func (s *ConversationStore) List(ctx context.Context, filter ListConversationsFilter) ([]Conversation, error) {
	limit := filter.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+conversationColumns+` FROM conversations
		 ORDER BY created_at DESC, id DESC
		 LIMIT $1 OFFSET $2`,
		limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list conversations: %w", err)
	}
	defer rows.Close()

	items := []Conversation{}
	for rows.Next() {
		var record Conversation
		if err := scanConversationRows(rows, &record); err != nil {
			return nil, fmt.Errorf("failed to scan conversation: %w", err)
		}
		items = append(items, record)
	}
	return items, rows.Err()
}

func (s *ConversationStore) Count(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM conversations`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count conversations: %w", err)
	}
	return count, nil
}

// UpdateAgentName rewrites a stored agent identifier with its resolved
// display name. Used for lazy correction on reads that observe a
// resolvable identifier.
func (s *ConversationStore) UpdateAgentName(ctx context.Context, conversationID, agentName string) error {
	conversationID = strings.TrimSpace(conversationID)
	agentName = strings.TrimSpace(agentName)
	if conversationID == "" || agentName == "" {
		return fmt.Errorf("conversation_id and agent name are required")
	}

	result, err := s.db.ExecContext(ctx,
		`UPDATE conversations SET agent = $2, updated_at = NOW() WHERE conversation_id = $1`,
		conversationID, agentName,
	)
	if err != nil {
		return fmt.Errorf("failed to update agent name: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// Metrics aggregates the dashboard headline numbers. The day boundary is
// taken from the supplied reference time in UTC.
func (s *ConversationStore) Metrics(ctx context.Context, now time.Time) (*ConversationMetrics, error) {
	todayStart := now.UTC().Truncate(24 * time.Hour)
	yesterdayStart := todayStart.Add(-24 * time.Hour)
	tomorrowStart := todayStart.Add(24 * time.Hour)

	metrics := &ConversationMetrics{}

	var avgSentiment sql.NullFloat64
	var totalDuration sql.NullInt64
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*),
		       COUNT(*) FILTER (WHERE created_at >= $1 AND created_at < $2),
		       AVG(sentiment),
		       COALESCE(SUM(duration), 0),
		       COUNT(DISTINCT agent)
		FROM conversations`,
		todayStart, tomorrowStart,
	).Scan(
		&metrics.TotalConversations,
		&metrics.TodaysConversations,
		&avgSentiment,
		&totalDuration,
		&metrics.DistinctAgents,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate conversation metrics: %w", err)
	}
	if avgSentiment.Valid {
		value := avgSentiment.Float64
		metrics.AvgSentiment = &value
	}
	if totalDuration.Valid {
		metrics.TotalDurationSeconds = totalDuration.Int64
	}

	var yesterdayCount int
	var yesterdaySentiment sql.NullFloat64
	err = s.db.QueryRowContext(ctx, `
		SELECT COUNT(*), AVG(sentiment)
		FROM conversations
		WHERE created_at >= $1 AND created_at < $2`,
		yesterdayStart, todayStart,
	).Scan(&yesterdayCount, &yesterdaySentiment)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate daily metrics: %w", err)
	}

	metrics.TodaysChangePercent = changePercent(float64(metrics.TodaysConversations), float64(yesterdayCount))
	if metrics.AvgSentiment != nil && yesterdaySentiment.Valid {
		metrics.SentimentChange = changePercent(*metrics.AvgSentiment, yesterdaySentiment.Float64)
	}

	return metrics, nil
}

func changePercent(current, previous float64) float64 {
	if previous != 0 {
		return (current - previous) / previous * 100
	}
	if current > 0 {
		return 100
	}
	return 0
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanConversation(row rowScanner, record *Conversation, created *bool) error {
	dest := conversationScanDest(record)
	if created != nil {
		dest = append(dest, created)
	}
	return row.Scan(dest...)
}

func scanConversationRows(rows *sql.Rows, record *Conversation) error {
	return rows.Scan(conversationScanDest(record)...)
}

func conversationScanDest(record *Conversation) []interface{} {
	return []interface{}{
		&record.ID,
		&record.ConversationID,
		&record.Agent,
		&record.CallerNumber,
		&record.ReceiverNumber,
		&record.Duration,
		&record.Sentiment,
		&record.TranscriptSummary,
		&record.CallSummaryTitle,
		&record.CallSuccessful,
		&record.DataCollectionResults,
		&record.EvaluationCriteriaResults,
		&record.CreatedAt,
		&record.UpdatedAt,
	}
}
