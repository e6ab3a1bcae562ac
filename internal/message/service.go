package message

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Service persists and reads conversation messages.
type Service struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewService creates a message service.
func NewService(log *slog.Logger, pool *pgxpool.Pool) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		pool:   pool,
		logger: log.With(slog.String("service", "message")),
	}
}

// Create writes a single message.
func (s *Service) Create(ctx context.Context, input CreateInput) (Message, error) {
	meta := input.Metadata
	if meta == nil {
		meta = map[string]any{}
	}
	metaBytes, err := json.Marshal(meta)
	if err != nil {
		return Message{}, fmt.Errorf("marshal message metadata: %w", err)
	}

	id := uuid.New().String()
	row := s.pool.QueryRow(ctx, `
		INSERT INTO messages (id, conversation_id, sender_type, content, metadata)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, conversation_id, sender_type, content, metadata, created_at`,
		id, input.ConversationID, input.SenderType, input.Content, metaBytes)
	return scanMessage(row)
}

// ListByConversation returns all messages of a conversation, oldest first.
func (s *Service) ListByConversation(ctx context.Context, conversationID string) ([]Message, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, conversation_id, sender_type, content, metadata, created_at
		FROM messages WHERE conversation_id = $1 ORDER BY created_at`, conversationID)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	var items []Message
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, msg)
	}
	return items, rows.Err()
}

// FindReplyTo returns the assistant message answering the given inbound
// message id, or ErrNotFound. This is the persisted, restart-safe half
// of duplicate suppression.
func (s *Service) FindReplyTo(ctx context.Context, conversationID, inboundMessageID string) (Message, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, conversation_id, sender_type, content, metadata, created_at
		FROM messages
		WHERE conversation_id = $1
		  AND sender_type = $2
		  AND metadata ->> 'replies_to' = $3
		ORDER BY created_at
		LIMIT 1`, conversationID, SenderAssistant, inboundMessageID)
	return scanMessage(row)
}

func scanMessage(row pgx.Row) (Message, error) {
	var m Message
	var metaBytes []byte
	err := row.Scan(&m.ID, &m.ConversationID, &m.SenderType, &m.Content, &metaBytes, &m.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Message{}, ErrNotFound
	}
	if err != nil {
		return Message{}, fmt.Errorf("scan message: %w", err)
	}
	if len(metaBytes) > 0 {
		if err := json.Unmarshal(metaBytes, &m.Metadata); err != nil {
			return Message{}, fmt.Errorf("decode message metadata: %w", err)
		}
	}
	return m, nil
}
