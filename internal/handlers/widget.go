// Package handlers holds the HTTP surfaces that are not provider
// webhooks: the web widget API and the health probe.
package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/replygate/replygate/internal/channel"
	"github.com/replygate/replygate/internal/inbound"
)

// Channels loads channel configuration.
type Channels interface {
	Get(ctx context.Context, channelID string) (channel.Channel, error)
}

// Processor runs the inbound pipeline for one event.
type Processor interface {
	Process(ctx context.Context, event channel.InboundEvent) (inbound.Result, error)
}

// WidgetHandler serves the embeddable chat widget. The widget is
// synchronous: the assistant's reply, when one is produced, rides back
// in the response body.
type WidgetHandler struct {
	channels  Channels
	processor Processor
	logger    *slog.Logger
}

// NewWidgetHandler creates the widget HTTP handler.
func NewWidgetHandler(log *slog.Logger, channels Channels, processor Processor) *WidgetHandler {
	if log == nil {
		log = slog.Default()
	}
	return &WidgetHandler{
		channels:  channels,
		processor: processor,
		logger:    log.With(slog.String("handler", "widget")),
	}
}

// Register mounts the widget routes.
func (h *WidgetHandler) Register(e *echo.Echo) {
	e.GET("/widget/config/:channel_id", h.config)
	e.POST("/widget/messages", h.postMessage)
}

type widgetConfigResponse struct {
	Title    string `json:"title"`
	Greeting string `json:"greeting"`
	Color    string `json:"color"`
}

// config exposes the widget's display settings for embedding.
func (h *WidgetHandler) config(c echo.Context) error {
	ch, err := h.channels.Get(c.Request().Context(), c.Param("channel_id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "channel not found")
	}
	settings, ok := ch.Settings.(channel.WidgetSettings)
	if !ok || !ch.Enabled {
		return echo.NewHTTPError(http.StatusNotFound, "channel not found")
	}
	return c.JSON(http.StatusOK, widgetConfigResponse{
		Title:    settings.Title,
		Greeting: settings.Greeting,
		Color:    settings.Color,
	})
}

type widgetMessageRequest struct {
	ChannelID string `json:"channel_id" validate:"required"`
	VisitorID string `json:"visitor_id" validate:"required"`
	Content   string `json:"content" validate:"required"`
	DialogID  string `json:"dialog_id"`
	MessageID string `json:"message_id"`
}

type widgetMessageResponse struct {
	Success          bool   `json:"success"`
	Message          string `json:"message"`
	AssistantMessage string `json:"assistant_message,omitempty"`
}

// postMessage accepts one visitor message and waits for the pipeline.
func (h *WidgetHandler) postMessage(c echo.Context) error {
	var req widgetMessageRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := c.Validate(&req); err != nil {
		return err
	}

	dialogID := req.DialogID
	if dialogID == "" {
		dialogID = req.VisitorID
	}
	messageID := req.MessageID
	if messageID == "" {
		messageID = uuid.New().String()
	}

	result, err := h.processor.Process(c.Request().Context(), channel.InboundEvent{
		ChannelID:         req.ChannelID,
		ChannelType:       channel.TypeWidget,
		DialogID:          dialogID,
		ExternalUserID:    req.VisitorID,
		ExternalMessageID: messageID,
		Text:              req.Content,
		ReceivedAt:        time.Now(),
	})
	if err != nil {
		h.logger.Error("widget message processing failed",
			slog.String("channel_id", req.ChannelID),
			slog.Any("error", err),
		)
		return c.JSON(http.StatusOK, widgetMessageResponse{
			Success: false,
			Message: "processing failed",
		})
	}

	resp := widgetMessageResponse{Success: true, Message: result.Stage}
	if result.Stage == inbound.StageDelivered || result.Stage == inbound.StageAlreadyAnswered {
		resp.AssistantMessage = result.Reply.Content
	}
	return c.JSON(http.StatusOK, resp)
}
