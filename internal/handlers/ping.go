package handlers

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// PingHandler answers the liveness probe.
type PingHandler struct{}

// NewPingHandler creates the liveness handler.
func NewPingHandler() *PingHandler {
	return &PingHandler{}
}

// Register mounts the probe route.
func (h *PingHandler) Register(e *echo.Echo) {
	e.GET("/ping", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})
}
