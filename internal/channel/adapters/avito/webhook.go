package avito

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/replygate/replygate/internal/channel"
	"github.com/replygate/replygate/internal/inbound"
)

// Channels loads the receiving channel's configuration.
type Channels interface {
	Get(ctx context.Context, channelID string) (channel.Channel, error)
}

// Processor runs the inbound pipeline for one accepted event.
type Processor interface {
	Process(ctx context.Context, event channel.InboundEvent) (inbound.Result, error)
}

// Webhook receives Avito messenger webhook deliveries. Avito retries
// non-2xx responses, so every request is acked with the small JSON body
// it expects, regardless of what happens inside.
type Webhook struct {
	channels  Channels
	processor Processor
	logger    *slog.Logger
}

// NewWebhook creates the Avito webhook handler.
func NewWebhook(log *slog.Logger, channels Channels, processor Processor) *Webhook {
	if log == nil {
		log = slog.Default()
	}
	return &Webhook{
		channels:  channels,
		processor: processor,
		logger:    log.With(slog.String("handler", "avito_webhook")),
	}
}

// Register mounts the webhook route.
func (w *Webhook) Register(e *echo.Echo) {
	e.POST("/webhooks/avito/:channel_id", w.handle)
}

type webhookEnvelope struct {
	ID      string `json:"id"`
	Payload struct {
		Type  string `json:"type"`
		Value struct {
			ID       string `json:"id"`
			ChatID   string `json:"chat_id"`
			UserID   int64  `json:"user_id"`
			AuthorID int64  `json:"author_id"`
			Created  int64  `json:"created"`
			Type     string `json:"type"`
			Content  struct {
				Text string `json:"text"`
			} `json:"content"`
		} `json:"value"`
	} `json:"payload"`
}

func ack(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]bool{"ok": true})
}

func (w *Webhook) handle(c echo.Context) error {
	channelID := c.Param("channel_id")
	log := w.logger.With(slog.String("channel_id", channelID))

	var envelope webhookEnvelope
	if err := json.NewDecoder(c.Request().Body).Decode(&envelope); err != nil {
		log.Warn("undecodable webhook body", slog.Any("error", err))
		return ack(c)
	}
	if envelope.Payload.Type != "message" {
		return ack(c)
	}

	ch, err := w.channels.Get(c.Request().Context(), channelID)
	if err != nil {
		log.Warn("webhook for unknown channel", slog.Any("error", err))
		return ack(c)
	}
	settings, ok := ch.Settings.(channel.AvitoSettings)
	if !ok {
		log.Warn("webhook for non-avito channel")
		return ack(c)
	}

	value := envelope.Payload.Value
	// Avito echoes the account's own replies back; those are not user
	// messages.
	if value.AuthorID == settings.UserID {
		return ack(c)
	}
	if value.Type != "text" || value.Content.Text == "" {
		log.Debug("non-text message skipped", slog.String("message_type", value.Type))
		return ack(c)
	}

	receivedAt := time.Now()
	if value.Created > 0 {
		receivedAt = time.Unix(value.Created, 0)
	}
	event := channel.InboundEvent{
		ChannelID:         ch.ID,
		ChannelType:       channel.TypeAvito,
		DialogID:          value.ChatID,
		ExternalUserID:    strconv.FormatInt(value.AuthorID, 10),
		ExternalMessageID: value.ID,
		Text:              value.Content.Text,
		ReceivedAt:        receivedAt,
	}

	detached := context.WithoutCancel(c.Request().Context())
	go func() {
		if _, err := w.processor.Process(detached, event); err != nil {
			log.Error("inbound processing failed", slog.Any("error", err))
		}
	}()
	return ack(c)
}
