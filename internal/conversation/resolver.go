package conversation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// Finder is the storage surface the resolver needs.
type Finder interface {
	GetByKey(ctx context.Context, channelID, externalUserID string) (Conversation, error)
	Create(ctx context.Context, input ResolveInput) (Conversation, error)
}

// Resolver maps (channel, external end-user) onto exactly one durable
// conversation. Concurrent resolution attempts converge on one row: a
// creation lost to a unique-constraint race is converted into a
// successful re-query.
type Resolver struct {
	store  Finder
	logger *slog.Logger
}

// NewResolver creates a conversation resolver.
func NewResolver(log *slog.Logger, store Finder) *Resolver {
	if log == nil {
		log = slog.Default()
	}
	return &Resolver{
		store:  store,
		logger: log.With(slog.String("component", "conversation_resolver")),
	}
}

// Resolve finds or creates the conversation for the given key. It never
// mutates assistant assignment on an existing conversation.
func (r *Resolver) Resolve(ctx context.Context, input ResolveInput) (Conversation, error) {
	if input.ChannelID == "" || input.ExternalUserID == "" {
		return Conversation{}, fmt.Errorf("resolve: channel id and external user id are required")
	}

	existing, err := r.store.GetByKey(ctx, input.ChannelID, input.ExternalUserID)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return Conversation{}, fmt.Errorf("lookup conversation: %w", err)
	}

	created, err := r.store.Create(ctx, input)
	if err == nil {
		r.logger.Info("conversation created",
			slog.String("conversation_id", created.ID),
			slog.String("channel_id", input.ChannelID),
			slog.String("external_user_id", input.ExternalUserID),
		)
		return created, nil
	}

	// A concurrent resolver may have created the row between the lookup
	// and the insert. Re-query once before propagating anything.
	winner, reErr := r.store.GetByKey(ctx, input.ChannelID, input.ExternalUserID)
	if reErr == nil {
		r.logger.Debug("conversation create raced, using existing row",
			slog.String("conversation_id", winner.ID),
			slog.String("channel_id", input.ChannelID),
		)
		return winner, nil
	}
	return Conversation{}, fmt.Errorf("create conversation: %w", err)
}
