package generation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// NormalizeQuery canonicalizes user text for curated-response matching:
// lower-cased, trimmed, inner whitespace collapsed.
func NormalizeQuery(text string) string {
	return strings.Join(strings.Fields(strings.ToLower(text)), " ")
}

// CuratedStore reads and writes human-curated responses. A curated
// answer always wins over fresh generation.
type CuratedStore struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewCuratedStore creates a curated-response store.
func NewCuratedStore(log *slog.Logger, pool *pgxpool.Pool) *CuratedStore {
	if log == nil {
		log = slog.Default()
	}
	return &CuratedStore{
		pool:   pool,
		logger: log.With(slog.String("service", "curated_responses")),
	}
}

// Find returns the curated response for (assistant, normalized query),
// or ErrNotFound.
func (s *CuratedStore) Find(ctx context.Context, assistantID, normalizedQuery string) (string, error) {
	var response string
	err := s.pool.QueryRow(ctx, `
		SELECT response FROM curated_responses
		WHERE assistant_id = $1 AND normalized_query = $2`,
		assistantID, normalizedQuery).Scan(&response)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("find curated response: %w", err)
	}
	return response, nil
}

// Upsert stores a curated response, normalizing the query key.
func (s *CuratedStore) Upsert(ctx context.Context, assistantID, query, response string) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO curated_responses (id, assistant_id, normalized_query, response)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (assistant_id, normalized_query) DO UPDATE
		SET response = EXCLUDED.response`,
		uuid.New().String(), assistantID, NormalizeQuery(query), response)
	if err != nil {
		return fmt.Errorf("upsert curated response: %w", err)
	}
	return nil
}
