package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Transcript is the lazily cached full text for one conversation.
type Transcript struct {
	ID             int64     `json:"id"`
	ConversationID string    `json:"conversation_id"`
	Text           string    `json:"text"`
	CreatedAt      time.Time `json:"created_at"`
}

type TranscriptStore struct {
	db *sql.DB
}

func NewTranscriptStore(db *sql.DB) *TranscriptStore {
	return &TranscriptStore{db: db}
}

func (s *TranscriptStore) GetByConversationID(ctx context.Context, conversationID string) (*Transcript, error) {
	conversationID = strings.TrimSpace(conversationID)
	if conversationID == "" {
		return nil, fmt.Errorf("conversation_id is required")
	}

	var record Transcript
	err := s.db.QueryRowContext(ctx,
		`SELECT id, conversation_id, text, created_at
		 FROM transcripts WHERE conversation_id = $1`,
		conversationID,
	).Scan(&record.ID, &record.ConversationID, &record.Text, &record.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to load transcript: %w", err)
	}
	return &record, nil
}

// Save caches a fetched transcript. A transcript is fetched once and never
// rewritten, so conflicts keep the existing text.
func (s *TranscriptStore) Save(ctx context.Context, conversationID, text string) (*Transcript, error) {
	conversationID = strings.TrimSpace(conversationID)
	if conversationID == "" {
		return nil, fmt.Errorf("conversation_id is required")
	}
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("transcript text is required")
	}

	var record Transcript
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO transcripts (conversation_id, text, created_at)
		 VALUES ($1, $2, NOW())
		 ON CONFLICT (conversation_id) DO UPDATE SET conversation_id = EXCLUDED.conversation_id
		 RETURNING id, conversation_id, text, created_at`,
		conversationID, text,
	).Scan(&record.ID, &record.ConversationID, &record.Text, &record.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to save transcript: %w", err)
	}
	return &record, nil
}
