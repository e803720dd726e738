package shell

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/eleven-am/aria-assistant/internal/shared"
	"github.com/eleven-am/aria-assistant/internal/voice"
)

type ToggleResponse struct {
	Action   Action   `json:"action" swaggertype:"string" enums:"connect,disconnect"`
	Snapshot Snapshot `json:"snapshot"`
}

type Handler struct {
	widget  *Widget
	hub     *Hub
	limiter RateLimiterConfig
	logger  *slog.Logger
}

func NewHandler(widget *Widget, hub *Hub, limiter RateLimiterConfig, logger *slog.Logger) *Handler {
	return &Handler{
		widget:  widget,
		hub:     hub,
		limiter: limiter,
		logger:  logger.With("component", "shell_handler"),
	}
}

func (h *Handler) RegisterRoutes(g *echo.Group) {
	a := g.Group("/assistant")
	a.GET("", h.Get)
	a.GET("/events", h.Events)

	limit := RateLimiter(h.limiter)
	a.POST("/open", h.Open, limit)
	a.POST("/close", h.Close, limit)
	a.POST("/toggle", h.Toggle, limit)
}

// Get godoc
// @Summary      Get assistant state
// @Description  Returns whether the panel is open, the connection state and any user-facing error
// @Tags         assistant
// @Produce      json
// @Success      200  {object}  Snapshot
// @Router       /api/v1/assistant [get]
func (h *Handler) Get(c echo.Context) error {
	return c.JSON(http.StatusOK, h.widget.Snapshot())
}

// Open godoc
// @Summary      Open the assistant panel
// @Tags         assistant
// @Produce      json
// @Success      200  {object}  Snapshot
// @Failure      429  {object}  shared.APIError
// @Router       /api/v1/assistant/open [post]
func (h *Handler) Open(c echo.Context) error {
	return c.JSON(http.StatusOK, h.widget.Open())
}

// Close godoc
// @Summary      Close the assistant panel
// @Description  Disconnects any active voice session, then closes the panel
// @Tags         assistant
// @Produce      json
// @Success      200  {object}  Snapshot
// @Failure      429  {object}  shared.APIError
// @Router       /api/v1/assistant/close [post]
func (h *Handler) Close(c echo.Context) error {
	return c.JSON(http.StatusOK, h.widget.Close())
}

// Toggle godoc
// @Summary      Toggle the voice connection
// @Description  Disconnects when connecting or connected, otherwise starts a connect attempt in the background
// @Tags         assistant
// @Produce      json
// @Success      200  {object}  ToggleResponse
// @Failure      409  {object}  shared.APIError  "Panel is closed"
// @Failure      429  {object}  shared.APIError
// @Failure      503  {object}  shared.APIError  "Assistant is shutting down"
// @Router       /api/v1/assistant/toggle [post]
func (h *Handler) Toggle(c echo.Context) error {
	action, err := h.widget.ToggleConnection()
	switch {
	case errors.Is(err, ErrWidgetClosed):
		return shared.Conflict("widget_closed", "open the assistant before connecting")
	case errors.Is(err, voice.ErrClosed):
		return shared.ServiceUnavailable("assistant_closed", "assistant is shutting down")
	case err != nil:
		h.logger.Error("toggle failed", "error", err)
		return shared.InternalError("toggle_failed", "failed to toggle connection")
	}

	return c.JSON(http.StatusOK, ToggleResponse{
		Action:   action,
		Snapshot: h.widget.Snapshot(),
	})
}

// Events godoc
// @Summary      Stream assistant events
// @Description  Websocket stream of state and visualizer events, starting with the current state
// @Tags         assistant
// @Success      101
// @Router       /api/v1/assistant/events [get]
func (h *Handler) Events(c echo.Context) error {
	return h.hub.Serve(c, h.widget.Snapshot())
}
