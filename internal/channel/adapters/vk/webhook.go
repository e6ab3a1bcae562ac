package vk

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

// Webhook receives VK Callback API deliveries. VK retries any response
// other than the literal "ok", so every non-confirmation request is
// acked regardless of what happens inside.
type Webhook struct {
	channels  Channels
	processor Processor
	logger    *slog.Logger
}

// NewWebhook creates the VK callback handler.
func NewWebhook(log *slog.Logger, channels Channels, processor Processor) *Webhook {
	if log == nil {
		log = slog.Default()
	}
	return &Webhook{
		channels:  channels,
		processor: processor,
		logger:    log.With(slog.String("handler", "vk_webhook")),
	}
}

// Register mounts the callback route.
func (w *Webhook) Register(e *echo.Echo) {
	e.POST("/webhooks/vk/:channel_id", w.handle)
}

type callbackEnvelope struct {
	Type    string          `json:"type"`
	GroupID int64           `json:"group_id"`
	EventID string          `json:"event_id"`
	Secret  string          `json:"secret"`
	Object  json.RawMessage `json:"object"`
}

type messageNew struct {
	Message struct {
		ID     int64  `json:"id"`
		Date   int64  `json:"date"`
		PeerID int64  `json:"peer_id"`
		FromID int64  `json:"from_id"`
		Text   string `json:"text"`
	} `json:"message"`
}

func (w *Webhook) handle(c echo.Context) error {
	channelID := c.Param("channel_id")
	log := w.logger.With(slog.String("channel_id", channelID))

	var envelope callbackEnvelope
	if err := json.NewDecoder(c.Request().Body).Decode(&envelope); err != nil {
		log.Warn("undecodable callback body", slog.Any("error", err))
		return c.String(http.StatusOK, "ok")
	}

	ch, err := w.channels.Get(c.Request().Context(), channelID)
	if err != nil {
		log.Warn("callback for unknown channel", slog.Any("error", err))
		return c.String(http.StatusOK, "ok")
	}
	settings, ok := ch.Settings.(channel.VKSettings)
	if !ok {
		log.Warn("callback for non-vk channel")
		return c.String(http.StatusOK, "ok")
	}

	if envelope.Type == "confirmation" {
		return c.String(http.StatusOK, settings.Confirmation)
	}
	if settings.Secret != "" && envelope.Secret != settings.Secret {
		log.Warn("callback secret mismatch, event dropped")
		return c.String(http.StatusOK, "ok")
	}

	if envelope.Type == "message_new" {
		if event, accepted := w.toEvent(ch, envelope); accepted {
			// Processing is detached from the request: VK only needs
			// the ack, and it needs it fast.
			detached := context.WithoutCancel(c.Request().Context())
			go func() {
				if _, err := w.processor.Process(detached, event); err != nil {
					log.Error("inbound processing failed", slog.Any("error", err))
				}
			}()
		}
	}
	return c.String(http.StatusOK, "ok")
}

// toEvent converts a message_new payload to the canonical event.
// Messages authored by the community itself are dropped.
func (w *Webhook) toEvent(ch channel.Channel, envelope callbackEnvelope) (channel.InboundEvent, bool) {
	var payload messageNew
	if err := json.Unmarshal(envelope.Object, &payload); err != nil {
		w.logger.Warn("undecodable message_new object",
			slog.String("channel_id", ch.ID), slog.Any("error", err))
		return channel.InboundEvent{}, false
	}
	msg := payload.Message
	if msg.FromID <= 0 {
		return channel.InboundEvent{}, false
	}

	externalMessageID := strconv.FormatInt(msg.ID, 10)
	if msg.ID == 0 {
		externalMessageID = envelope.EventID
	}
	receivedAt := time.Now()
	if msg.Date > 0 {
		receivedAt = time.Unix(msg.Date, 0)
	}
	return channel.InboundEvent{
		ChannelID:         ch.ID,
		ChannelType:       channel.TypeVK,
		DialogID:          strconv.FormatInt(msg.PeerID, 10),
		ExternalUserID:    strconv.FormatInt(msg.FromID, 10),
		ExternalMessageID: externalMessageID,
		Text:              msg.Text,
		ReceivedAt:        receivedAt,
	}, true
}
