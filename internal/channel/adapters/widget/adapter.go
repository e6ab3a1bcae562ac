// Package widget implements the embeddable web chat surface. Unlike the
// push channels, the widget is synchronous: the reply travels back in
// the HTTP response of the message that triggered it.
package widget

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/replygate/replygate/internal/channel"
)

// Adapter satisfies the outbound contract for widget conversations.
// There is no push transport to call; delivery persists the reply and
// the widget handler returns it from storage.
type Adapter struct {
	logger *slog.Logger
}

// NewAdapter creates the widget adapter.
func NewAdapter(log *slog.Logger) *Adapter {
	if log == nil {
		log = slog.Default()
	}
	return &Adapter{logger: log.With(slog.String("adapter", "widget"))}
}

func (a *Adapter) Type() channel.Type { return channel.TypeWidget }

// Send assigns a synthetic provider id; the reply itself is served from
// the persisted message by the widget handler.
func (a *Adapter) Send(_ context.Context, ch channel.Channel, target, _ string, _ *channel.Attachment) (string, error) {
	a.logger.Debug("widget reply recorded",
		slog.String("channel_id", ch.ID),
		slog.String("dialog_id", target),
	)
	return uuid.New().String(), nil
}

// MarkRead is a no-op for the widget.
func (a *Adapter) MarkRead(context.Context, channel.Channel, string) error {
	return nil
}
