package assistant

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Service persists assistants, channel bindings, and dialog overrides.
type Service struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewService creates an assistant service.
func NewService(log *slog.Logger, pool *pgxpool.Pool) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		pool:   pool,
		logger: log.With(slog.String("service", "assistant")),
	}
}

// Get loads one assistant by id.
func (s *Service) Get(ctx context.Context, assistantID string) (Assistant, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, owner_id, name, external_handle, created_at
		FROM assistants WHERE id = $1`, assistantID)
	var a Assistant
	err := row.Scan(&a.ID, &a.OwnerID, &a.Name, &a.ExternalHandle, &a.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Assistant{}, ErrNotFound
	}
	if err != nil {
		return Assistant{}, fmt.Errorf("get assistant: %w", err)
	}
	return a, nil
}

// ListBindings returns all bindings of a channel, defaults first.
func (s *Service) ListBindings(ctx context.Context, channelID string) ([]Binding, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT assistant_id, channel_id, enabled, auto_reply, is_default, created_at
		FROM assistant_bindings
		WHERE channel_id = $1
		ORDER BY is_default DESC, created_at`, channelID)
	if err != nil {
		return nil, fmt.Errorf("list bindings: %w", err)
	}
	defer rows.Close()

	var items []Binding
	for rows.Next() {
		var b Binding
		if err := rows.Scan(&b.AssistantID, &b.ChannelID, &b.Enabled, &b.AutoReply, &b.IsDefault, &b.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan binding: %w", err)
		}
		items = append(items, b)
	}
	return items, rows.Err()
}

// SetDefaultBinding marks one binding as the channel default, atomically
// clearing the flag on every other binding of the same channel.
func (s *Service) SetDefaultBinding(ctx context.Context, channelID, assistantID string) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `
			UPDATE assistant_bindings SET is_default = FALSE
			WHERE channel_id = $1 AND is_default`, channelID); err != nil {
			return fmt.Errorf("clear defaults: %w", err)
		}
		tag, err := tx.Exec(ctx, `
			UPDATE assistant_bindings SET is_default = TRUE
			WHERE channel_id = $1 AND assistant_id = $2`, channelID, assistantID)
		if err != nil {
			return fmt.Errorf("set default: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return ErrNotFound
		}
		return nil
	})
}

// GetOverride returns the dialog override for (channel, dialog).
func (s *Service) GetOverride(ctx context.Context, channelID, dialogID string) (Override, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT channel_id, dialog_id, assistant_id, enabled, auto_reply, created_at, updated_at
		FROM dialog_overrides WHERE channel_id = $1 AND dialog_id = $2`,
		channelID, dialogID)
	var o Override
	err := row.Scan(&o.ChannelID, &o.DialogID, &o.AssistantID, &o.Enabled, &o.AutoReply, &o.CreatedAt, &o.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Override{}, ErrNotFound
	}
	if err != nil {
		return Override{}, fmt.Errorf("get override: %w", err)
	}
	return o, nil
}

// UpsertOverride creates or replaces the override for (channel, dialog).
func (s *Service) UpsertOverride(ctx context.Context, o Override) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO dialog_overrides (channel_id, dialog_id, assistant_id, enabled, auto_reply)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (channel_id, dialog_id) DO UPDATE
		SET assistant_id = EXCLUDED.assistant_id,
		    enabled = EXCLUDED.enabled,
		    auto_reply = EXCLUDED.auto_reply,
		    updated_at = now()`,
		o.ChannelID, o.DialogID, o.AssistantID, o.Enabled, o.AutoReply)
	if err != nil {
		return fmt.Errorf("upsert override: %w", err)
	}
	return nil
}
