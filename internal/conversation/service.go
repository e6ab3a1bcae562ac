package conversation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const uniqueViolation = "23505"

// Service persists conversations.
type Service struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewService creates a conversation service.
func NewService(log *slog.Logger, pool *pgxpool.Pool) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		pool:   pool,
		logger: log.With(slog.String("service", "conversation")),
	}
}

// GetByKey looks up a conversation by its (channel, external user) key.
func (s *Service) GetByKey(ctx context.Context, channelID, externalUserID string) (Conversation, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, channel_id, owner_id, external_user_id, dialog_id, COALESCE(assistant_id::text, ''), thread_id, status, created_at, updated_at
		FROM conversations WHERE channel_id = $1 AND external_user_id = $2`,
		channelID, externalUserID)
	return scanConversation(row)
}

// Get loads a conversation by id.
func (s *Service) Get(ctx context.Context, conversationID string) (Conversation, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, channel_id, owner_id, external_user_id, dialog_id, COALESCE(assistant_id::text, ''), thread_id, status, created_at, updated_at
		FROM conversations WHERE id = $1`, conversationID)
	return scanConversation(row)
}

// Create inserts a new conversation. Returns a unique-violation error
// when a concurrent creation won the race.
func (s *Service) Create(ctx context.Context, input ResolveInput) (Conversation, error) {
	id := uuid.New().String()
	var assistantID any
	if input.AssistantHint != "" {
		assistantID = input.AssistantHint
	}
	row := s.pool.QueryRow(ctx, `
		INSERT INTO conversations (id, channel_id, owner_id, external_user_id, dialog_id, assistant_id, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, channel_id, owner_id, external_user_id, dialog_id, COALESCE(assistant_id::text, ''), thread_id, status, created_at, updated_at`,
		id, input.ChannelID, input.OwnerID, input.ExternalUserID, input.DialogID, assistantID, StatusActive)
	return scanConversation(row)
}

// BindThread persists the provider thread handle, first write wins.
// Returns the handle that ended up bound.
func (s *Service) BindThread(ctx context.Context, conversationID, threadID string) (string, error) {
	var bound string
	err := s.pool.QueryRow(ctx, `
		UPDATE conversations
		SET thread_id = CASE WHEN thread_id = '' THEN $2 ELSE thread_id END,
		    updated_at = now()
		WHERE id = $1
		RETURNING thread_id`, conversationID, threadID).Scan(&bound)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("bind thread: %w", err)
	}
	return bound, nil
}

// UpdateStatus sets the conversation status.
func (s *Service) UpdateStatus(ctx context.Context, conversationID, status string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE conversations SET status = $2, updated_at = now() WHERE id = $1`,
		conversationID, status)
	if err != nil {
		return fmt.Errorf("update status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// IsUniqueViolation reports whether err is a Postgres unique-constraint
// violation, the signature of a lost creation race.
func IsUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

func scanConversation(row pgx.Row) (Conversation, error) {
	var c Conversation
	err := row.Scan(&c.ID, &c.ChannelID, &c.OwnerID, &c.ExternalUserID, &c.DialogID, &c.AssistantID, &c.ThreadID, &c.Status, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Conversation{}, ErrNotFound
	}
	if err != nil {
		return Conversation{}, fmt.Errorf("scan conversation: %w", err)
	}
	return c, nil
}
