// Package delivery persists assistant replies and pushes them out
// through the channel adapter.
package delivery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/replygate/replygate/internal/channel"
	"github.com/replygate/replygate/internal/conversation"
	"github.com/replygate/replygate/internal/message"
)

const DefaultRateLimitBackoff = 2 * time.Second

// MessageWriter persists one message row.
type MessageWriter interface {
	Create(ctx context.Context, input message.CreateInput) (message.Message, error)
}

// Adapters resolves the outbound adapter for a channel type.
type Adapters interface {
	Get(channelType channel.Type) (channel.Adapter, bool)
}

// Service delivers one assistant reply: the message is persisted first,
// carrying the replies_to marker that makes redelivered webhooks
// answerable from storage, then sent through the provider.
type Service struct {
	messages MessageWriter
	adapters Adapters
	logger   *slog.Logger
	backoff  time.Duration
}

// NewService creates a delivery service. backoff is the wait before the
// single rate-limit retry.
func NewService(log *slog.Logger, messages MessageWriter, adapters Adapters, backoff time.Duration) *Service {
	if log == nil {
		log = slog.Default()
	}
	if backoff <= 0 {
		backoff = DefaultRateLimitBackoff
	}
	return &Service{
		messages: messages,
		adapters: adapters,
		logger:   log.With(slog.String("service", "delivery")),
		backoff:  backoff,
	}
}

// Deliver persists the reply and sends it to the user. A provider rate
// limit is retried exactly once after the backoff; any other send error
// is returned as is. The persisted message survives a failed send, so a
// redelivered inbound webhook is answered without a second generation.
func (s *Service) Deliver(ctx context.Context, conv conversation.Conversation, ch channel.Channel, replyText, inboundMessageID string) (message.Message, error) {
	meta := map[string]any{}
	if inboundMessageID != "" {
		meta[message.MetaRepliesTo] = inboundMessageID
	}
	if conv.DialogID != "" {
		meta[message.MetaDialogID] = conv.DialogID
	}

	msg, err := s.messages.Create(ctx, message.CreateInput{
		ConversationID: conv.ID,
		SenderType:     message.SenderAssistant,
		Content:        replyText,
		Metadata:       meta,
	})
	if err != nil {
		return message.Message{}, fmt.Errorf("persist reply: %w", err)
	}

	adapter, ok := s.adapters.Get(ch.Type)
	if !ok {
		return message.Message{}, fmt.Errorf("no adapter registered for channel type %s", ch.Type)
	}

	target := conv.DialogID
	if target == "" {
		target = conv.ExternalUserID
	}

	providerID, err := s.send(ctx, adapter, ch, target, replyText)
	if err != nil {
		return message.Message{}, fmt.Errorf("send reply: %w", err)
	}
	s.logger.Info("reply delivered",
		slog.String("conversation_id", conv.ID),
		slog.String("message_id", msg.ID),
		slog.String("provider_message_id", providerID),
	)

	if err := adapter.MarkRead(ctx, ch, target); err != nil {
		s.logger.Warn("mark read failed",
			slog.String("conversation_id", conv.ID),
			slog.Any("error", err),
		)
	}
	return msg, nil
}

func (s *Service) send(ctx context.Context, adapter channel.Adapter, ch channel.Channel, target, text string) (string, error) {
	providerID, err := adapter.Send(ctx, ch, target, text, nil)
	if !errors.Is(err, channel.ErrRateLimited) {
		return providerID, err
	}

	s.logger.Warn("send rate limited, retrying once",
		slog.String("channel_id", ch.ID),
		slog.Duration("backoff", s.backoff),
	)
	timer := time.NewTimer(s.backoff)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case <-timer.C:
	}
	return adapter.Send(ctx, ch, target, text, nil)
}
