package bootstrap

import (
	"github.com/labstack/echo/v4"
	"go.uber.org/fx"

	"github.com/eleven-am/aria-assistant/internal/health"
	"github.com/eleven-am/aria-assistant/internal/shell"
	"github.com/eleven-am/aria-assistant/internal/voice"
)

const version = "1.0.0"

func ProvideHealthHandler(cfg *Config, ctrl *voice.Controller, hub *shell.Hub) *health.Handler {
	return health.NewHandler(
		ctrl,
		hub,
		health.LiveConfig{
			Endpoint:  cfg.LiveEndpoint,
			Transport: cfg.LiveTransport,
			HasAPIKey: cfg.APIKey != "",
		},
		version,
	)
}

func metricsMiddleware(h *health.Handler) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			h.IncrementRequests()
			h.IncrementConnections()
			defer h.DecrementConnections()
			return next(c)
		}
	}
}

func RegisterHealthRoutes(e *echo.Echo, h *health.Handler) {
	e.Use(metricsMiddleware(h))
	h.RegisterRoutes(e)
}

var HealthModule = fx.Options(
	fx.Provide(ProvideHealthHandler),
	fx.Invoke(RegisterHealthRoutes),
)
