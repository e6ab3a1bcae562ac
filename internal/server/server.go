// Package server owns the HTTP surface: the echo instance, its shared
// middleware, and the handler registration contract.
package server

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

// Handler is implemented by every HTTP surface and collected at wiring
// time; each registers its own routes.
type Handler interface {
	Register(e *echo.Echo)
}

// Validator adapts go-playground validation to echo's binding hook.
type Validator struct {
	validate *validator.Validate
}

func (v *Validator) Validate(i any) error {
	if err := v.validate.Struct(i); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return nil
}

// New builds the echo instance with recovery, request logging, and
// request validation installed.
func New(log *slog.Logger) *echo.Echo {
	if log == nil {
		log = slog.Default()
	}
	log = log.With(slog.String("component", "http"))

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = &Validator{validate: validator.New()}

	e.Use(middleware.Recover())
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogStatus:  true,
		LogURI:     true,
		LogMethod:  true,
		LogLatency: true,
		LogError:   true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			attrs := []slog.Attr{
				slog.String("method", v.Method),
				slog.String("uri", v.URI),
				slog.Int("status", v.Status),
				slog.Duration("latency", v.Latency.Round(time.Millisecond)),
			}
			level := slog.LevelInfo
			if v.Error != nil {
				level = slog.LevelWarn
				attrs = append(attrs, slog.Any("error", v.Error))
			}
			log.LogAttrs(c.Request().Context(), level, "request", attrs...)
			return nil
		},
	}))
	return e
}
