package channel

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound is returned when a channel does not exist.
var ErrNotFound = errors.New("channel not found")

// Store reads channel configurations. Channels are created by the
// external configuration flow; the core only reads them.
type Store struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewStore creates a channel store.
func NewStore(log *slog.Logger, pool *pgxpool.Pool) *Store {
	if log == nil {
		log = slog.Default()
	}
	return &Store{
		pool:   pool,
		logger: log.With(slog.String("service", "channel_store")),
	}
}

// Get loads one channel by id, with its settings parsed into the
// strict per-type variant.
func (s *Store) Get(ctx context.Context, channelID string) (Channel, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, owner_id, type, enabled, settings, created_at, updated_at
		FROM channels WHERE id = $1`, channelID)

	var ch Channel
	var rawType string
	var rawSettings []byte
	err := row.Scan(&ch.ID, &ch.OwnerID, &rawType, &ch.Enabled, &rawSettings, &ch.CreatedAt, &ch.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Channel{}, ErrNotFound
	}
	if err != nil {
		return Channel{}, fmt.Errorf("get channel: %w", err)
	}

	ch.Type = Type(rawType)
	settings, err := ParseSettings(ch.Type, rawSettings)
	if err != nil {
		return Channel{}, fmt.Errorf("channel %s: %w", channelID, err)
	}
	ch.Settings = settings
	return ch, nil
}

// ListByType returns all enabled channels of the given type. Used by
// webhook handlers that look up the receiving channel.
func (s *Store) ListByType(ctx context.Context, channelType Type) ([]Channel, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, owner_id, type, enabled, settings, created_at, updated_at
		FROM channels WHERE type = $1 AND enabled`, string(channelType))
	if err != nil {
		return nil, fmt.Errorf("list channels: %w", err)
	}
	defer rows.Close()

	var items []Channel
	for rows.Next() {
		var ch Channel
		var rawType string
		var rawSettings []byte
		if err := rows.Scan(&ch.ID, &ch.OwnerID, &rawType, &ch.Enabled, &rawSettings, &ch.CreatedAt, &ch.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan channel: %w", err)
		}
		ch.Type = Type(rawType)
		settings, err := ParseSettings(ch.Type, rawSettings)
		if err != nil {
			s.logger.Warn("skip channel with invalid settings",
				slog.String("channel_id", ch.ID), slog.Any("error", err))
			continue
		}
		ch.Settings = settings
		items = append(items, ch)
	}
	return items, rows.Err()
}
