package bootstrap

import (
	"log/slog"
	"net/http"
	"os"

	"github.com/labstack/echo/v4"
	echoSwagger "github.com/swaggo/echo-swagger"
	"go.uber.org/fx"

	"github.com/eleven-am/aria-assistant/docs"
	"github.com/eleven-am/aria-assistant/internal/shell"
)

func RegisterRoutes(e *echo.Echo, h *shell.Handler) {
	api := e.Group("/api/v1")
	h.RegisterRoutes(api)

	e.GET("/swagger/*", echoSwagger.EchoWrapHandlerV3())
	e.GET("/asyncapi.yaml", func(c echo.Context) error {
		return c.Blob(http.StatusOK, "application/yaml", docs.AsyncAPISpec)
	})
}

func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func ProvideLogger(cfg *Config) *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: parseLogLevel(cfg.LogLevel),
	}))
}

func ProvideRateLimiterConfig(cfg *Config) shell.RateLimiterConfig {
	limits := shell.DefaultRateLimiterConfig()
	limits.RequestsPerSecond = cfg.CommandRPS
	limits.Burst = cfg.CommandBurst
	return limits
}

func ProvideShellHandler(widget *shell.Widget, hub *shell.Hub, limits shell.RateLimiterConfig, logger *slog.Logger) *shell.Handler {
	return shell.NewHandler(widget, hub, limits, logger)
}

var HandlersModule = fx.Options(
	fx.Provide(
		ProvideRateLimiterConfig,
		ProvideShellHandler,
	),
	fx.Invoke(RegisterRoutes),
)
