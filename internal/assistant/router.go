package assistant

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/replygate/replygate/internal/channel"
	"github.com/replygate/replygate/internal/conversation"
)

// Bindings is the storage surface the router reads.
type Bindings interface {
	ListBindings(ctx context.Context, channelID string) ([]Binding, error)
	GetOverride(ctx context.Context, channelID, dialogID string) (Override, error)
}

// Availability is the schedule check consulted after an assistant with
// auto-reply has been resolved.
type Availability interface {
	Available(ch channel.Channel, at time.Time) bool
}

// Router decides which assistant, if any, answers a conversation and
// whether an automated reply should be attempted.
type Router struct {
	store    Bindings
	schedule Availability
	logger   *slog.Logger
	now      func() time.Time
}

// NewRouter creates an assistant router.
func NewRouter(log *slog.Logger, store Bindings, schedule Availability) *Router {
	if log == nil {
		log = slog.Default()
	}
	return &Router{
		store:    store,
		schedule: schedule,
		logger:   log.With(slog.String("component", "assistant_router")),
		now:      time.Now,
	}
}

// Route resolves the effective assistant for the conversation.
//
// Resolution order, first match wins:
//  1. enabled dialog override: its assistant and auto-reply flag;
//  2. disabled dialog override: no automated processing at all;
//  3. channel binding with enabled+auto_reply;
//  4. channel binding with enabled+is_default;
//  5. first enabled channel binding;
//  6. none.
//
// A resolved assistant intending to auto-reply is downgraded to
// "assigned but suppressed" outside the channel's operating hours or
// while the conversation is handed off to a human operator.
func (r *Router) Route(ctx context.Context, conv conversation.Conversation, ch channel.Channel) (Decision, error) {
	decision, err := r.resolve(ctx, conv, ch)
	if err != nil {
		return Decision{}, err
	}
	if decision.None() {
		return decision, nil
	}

	if conv.Status == conversation.StatusOperator {
		decision.AutoReply = false
		decision.Suppressed = "operator"
		return decision, nil
	}
	if decision.AutoReply && r.schedule != nil && !r.schedule.Available(ch, r.now()) {
		r.logger.Info("assistant outside schedule, reply suppressed",
			slog.String("channel_id", ch.ID),
			slog.String("assistant_id", decision.AssistantID),
		)
		decision.AutoReply = false
		decision.Suppressed = "outside_schedule"
	}
	return decision, nil
}

func (r *Router) resolve(ctx context.Context, conv conversation.Conversation, ch channel.Channel) (Decision, error) {
	dialogID := conv.DialogID
	if dialogID == "" {
		dialogID = conv.ExternalUserID
	}
	override, err := r.store.GetOverride(ctx, ch.ID, dialogID)
	switch {
	case err == nil:
		if !override.Enabled {
			return Decision{}, nil
		}
		d := Decision{AssistantID: override.AssistantID, AutoReply: override.AutoReply}
		if !override.AutoReply {
			d.Suppressed = "auto_reply_off"
		}
		return d, nil
	case !errors.Is(err, ErrNotFound):
		return Decision{}, fmt.Errorf("lookup dialog override: %w", err)
	}

	bindings, err := r.store.ListBindings(ctx, ch.ID)
	if err != nil {
		return Decision{}, fmt.Errorf("list channel bindings: %w", err)
	}

	for _, b := range bindings {
		if b.Enabled && b.AutoReply {
			return Decision{AssistantID: b.AssistantID, AutoReply: true}, nil
		}
	}
	for _, b := range bindings {
		if b.Enabled && b.IsDefault {
			return Decision{AssistantID: b.AssistantID, AutoReply: false, Suppressed: "auto_reply_off"}, nil
		}
	}
	for _, b := range bindings {
		if b.Enabled {
			return Decision{AssistantID: b.AssistantID, AutoReply: false, Suppressed: "auto_reply_off"}, nil
		}
	}
	return Decision{}, nil
}
