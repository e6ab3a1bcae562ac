// Package inbound runs the full pipeline for one canonical inbound
// event: duplicate absorption, conversation resolution, assistant
// routing, reply generation, and delivery.
package inbound

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/replygate/replygate/internal/assistant"
	"github.com/replygate/replygate/internal/channel"
	"github.com/replygate/replygate/internal/conversation"
	"github.com/replygate/replygate/internal/dedup"
	"github.com/replygate/replygate/internal/generation"
	"github.com/replygate/replygate/internal/message"
)

// Stage names where the pipeline stopped for one event.
const (
	StageDuplicate       = "duplicate"
	StageAlreadyAnswered = "already_answered"
	StageChannelDisabled = "channel_disabled"
	StageNoAssistant     = "no_assistant"
	StageSuppressed      = "suppressed"
	StageNotGenerated    = "not_generated"
	StageDelivered       = "delivered"
)

// Result reports how far an event travelled through the pipeline.
type Result struct {
	Stage string
	// Suppressed carries the suppression reason when Stage is
	// StageSuppressed.
	Suppressed string
	// Reply is the delivered assistant message, set when Stage is
	// StageDelivered or StageAlreadyAnswered.
	Reply message.Message
	// Outcome is the generation outcome when a run was attempted.
	Outcome generation.Outcome
}

// Channels loads channel configuration.
type Channels interface {
	Get(ctx context.Context, channelID string) (channel.Channel, error)
}

// Resolver finds or creates the conversation for an event.
type Resolver interface {
	Resolve(ctx context.Context, input conversation.ResolveInput) (conversation.Conversation, error)
}

// Messages is the message storage the pipeline reads and writes.
type Messages interface {
	Create(ctx context.Context, input message.CreateInput) (message.Message, error)
	FindReplyTo(ctx context.Context, conversationID, inboundMessageID string) (message.Message, error)
}

// Router picks the effective assistant for a conversation.
type Router interface {
	Route(ctx context.Context, conv conversation.Conversation, ch channel.Channel) (assistant.Decision, error)
}

// Assistants loads assistant records.
type Assistants interface {
	Get(ctx context.Context, id string) (assistant.Assistant, error)
}

// Generator produces one assistant reply.
type Generator interface {
	Generate(ctx context.Context, input generation.GenerateInput) (generation.Outcome, error)
}

// Deliverer persists and sends one reply.
type Deliverer interface {
	Deliver(ctx context.Context, conv conversation.Conversation, ch channel.Channel, replyText, inboundMessageID string) (message.Message, error)
}

// Processor is the inbound pipeline. Webhook handlers hand every
// accepted event to Process; the provider ack never depends on the
// result.
type Processor struct {
	cache      *dedup.Cache
	channels   Channels
	resolver   Resolver
	messages   Messages
	router     Router
	assistants Assistants
	generator  Generator
	deliverer  Deliverer
	logger     *slog.Logger
}

// NewProcessor creates the inbound pipeline.
func NewProcessor(log *slog.Logger, cache *dedup.Cache, channels Channels, resolver Resolver, messages Messages, router Router, assistants Assistants, generator Generator, deliverer Deliverer) *Processor {
	if log == nil {
		log = slog.Default()
	}
	return &Processor{
		cache:      cache,
		channels:   channels,
		resolver:   resolver,
		messages:   messages,
		router:     router,
		assistants: assistants,
		generator:  generator,
		deliverer:  deliverer,
		logger:     log.With(slog.String("component", "inbound_processor")),
	}
}

// Process runs one event through the pipeline. Providers deliver
// at least once; Process guarantees at most one generation per
// provider-native message id via the cache and the persisted
// replies_to lookup.
func (p *Processor) Process(ctx context.Context, event channel.InboundEvent) (Result, error) {
	log := p.logger.With(
		slog.String("channel_id", event.ChannelID),
		slog.String("dialog_id", event.DialogID),
		slog.String("external_message_id", event.ExternalMessageID),
	)

	key := dedup.Key(event.DedupFields())
	if p.cache.Seen(key) {
		log.Debug("duplicate event absorbed by cache")
		return Result{Stage: StageDuplicate}, nil
	}
	p.cache.MarkSeen(key)

	ch, err := p.channels.Get(ctx, event.ChannelID)
	if err != nil {
		return Result{}, fmt.Errorf("load channel: %w", err)
	}
	if !ch.Enabled {
		log.Info("event dropped, channel disabled")
		return Result{Stage: StageChannelDisabled}, nil
	}

	conv, err := p.resolver.Resolve(ctx, conversation.ResolveInput{
		ChannelID:      event.ChannelID,
		ExternalUserID: event.ExternalUserID,
		DialogID:       event.DialogID,
		OwnerID:        ch.OwnerID,
	})
	if err != nil {
		return Result{}, fmt.Errorf("resolve conversation: %w", err)
	}

	// The cache is lost on restart; the persisted reply marker is the
	// authoritative duplicate check.
	if event.ExternalMessageID != "" {
		answered, err := p.messages.FindReplyTo(ctx, conv.ID, event.ExternalMessageID)
		if err == nil {
			log.Info("duplicate event already answered", slog.String("reply_id", answered.ID))
			return Result{Stage: StageAlreadyAnswered, Reply: answered}, nil
		}
		if !errors.Is(err, message.ErrNotFound) {
			return Result{}, fmt.Errorf("check persisted reply: %w", err)
		}
	}

	meta := map[string]any{}
	if event.ExternalMessageID != "" {
		meta[message.MetaExternalMessageID] = event.ExternalMessageID
	}
	if event.DialogID != "" {
		meta[message.MetaDialogID] = event.DialogID
	}
	if _, err := p.messages.Create(ctx, message.CreateInput{
		ConversationID: conv.ID,
		SenderType:     message.SenderUser,
		Content:        event.Text,
		Metadata:       meta,
	}); err != nil {
		return Result{}, fmt.Errorf("persist inbound message: %w", err)
	}

	decision, err := p.router.Route(ctx, conv, ch)
	if err != nil {
		return Result{}, fmt.Errorf("route assistant: %w", err)
	}
	if decision.None() {
		log.Info("no assistant bound to channel")
		return Result{Stage: StageNoAssistant}, nil
	}
	if !decision.ShouldGenerate() {
		log.Info("reply suppressed", slog.String("reason", decision.Suppressed))
		return Result{Stage: StageSuppressed, Suppressed: decision.Suppressed}, nil
	}

	asst, err := p.assistants.Get(ctx, decision.AssistantID)
	if err != nil {
		return Result{}, fmt.Errorf("load assistant: %w", err)
	}

	started := time.Now()
	outcome, err := p.generator.Generate(ctx, generation.GenerateInput{
		Conversation: conv,
		Assistant:    asst,
		Text:         event.Text,
		Attachment:   event.Attachment,
	})
	if err != nil {
		return Result{}, fmt.Errorf("generate reply: %w", err)
	}
	if !outcome.Delivered() {
		log.Warn("generation produced no reply",
			slog.String("outcome", string(outcome.Kind)),
			slog.Duration("elapsed", time.Since(started)),
		)
		return Result{Stage: StageNotGenerated, Outcome: outcome}, nil
	}

	reply, err := p.deliverer.Deliver(ctx, conv, ch, outcome.Text, event.ExternalMessageID)
	if err != nil {
		return Result{}, fmt.Errorf("deliver reply: %w", err)
	}
	log.Info("event processed",
		slog.String("outcome", string(outcome.Kind)),
		slog.Duration("elapsed", time.Since(started)),
	)
	return Result{Stage: StageDelivered, Reply: reply, Outcome: outcome}, nil
}
