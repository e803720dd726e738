package health

import (
	"context"
	"net/http"
	"net/url"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/eleven-am/aria-assistant/internal/voice"
)

type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
)

// outbound failure ratio above which the session is considered degraded
const degradedFailureRatio = 0.2

type ComponentStatus struct {
	Status    Status `json:"status"`
	LatencyMs int64  `json:"latency_ms"`
	Error     string `json:"error,omitempty"`
}

type RuntimeStats struct {
	Goroutines         int    `json:"goroutines"`
	MemoryAllocMB      uint64 `json:"memory_alloc_mb"`
	MemoryTotalAllocMB uint64 `json:"memory_total_alloc_mb"`
	MemorySysMB        uint64 `json:"memory_sys_mb"`
	NumGC              uint32 `json:"num_gc"`
}

type RequestStats struct {
	TotalRequests     uint64 `json:"total_requests"`
	ActiveConnections int64  `json:"active_connections"`
	EventClients      int    `json:"event_clients"`
}

type Stats struct {
	Session  voice.Stats  `json:"session"`
	Requests RequestStats `json:"requests"`
	Runtime  RuntimeStats `json:"runtime"`
}

type HealthResponse struct {
	Status        Status                     `json:"status"`
	Timestamp     time.Time                  `json:"timestamp"`
	Version       string                     `json:"version"`
	UptimeSeconds int64                      `json:"uptime_seconds"`
	Stats         Stats                      `json:"stats"`
	Components    map[string]ComponentStatus `json:"components"`
}

type SessionProvider interface {
	Stats() voice.Stats
}

type ClientCounter interface {
	Count() int
}

type LiveConfig struct {
	Endpoint  string
	Transport string
	HasAPIKey bool
}

type Handler struct {
	session   SessionProvider
	clients   ClientCounter
	live      LiveConfig
	version   string
	startTime time.Time

	totalRequests     uint64
	activeConnections int64
}

func NewHandler(session SessionProvider, clients ClientCounter, live LiveConfig, version string) *Handler {
	return &Handler{
		session:   session,
		clients:   clients,
		live:      live,
		version:   version,
		startTime: time.Now(),
	}
}

func (h *Handler) RegisterRoutes(e *echo.Echo) {
	e.GET("/health", h.Liveness)
	e.GET("/health/ready", h.Readiness)
	e.GET("/health/session", h.Session)
}

func (h *Handler) IncrementRequests() {
	atomic.AddUint64(&h.totalRequests, 1)
}

func (h *Handler) IncrementConnections() {
	atomic.AddInt64(&h.activeConnections, 1)
}

func (h *Handler) DecrementConnections() {
	atomic.AddInt64(&h.activeConnections, -1)
}

// Liveness godoc
// @Summary      Liveness probe
// @Tags         health
// @Produce      json
// @Success      200  {object}  map[string]string
// @Router       /health [get]
func (h *Handler) Liveness(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status": "ok",
	})
}

// Readiness godoc
// @Summary      Readiness probe
// @Description  Checks the live endpoint configuration, outbound audio health and the audio pathways
// @Tags         health
// @Produce      json
// @Success      200  {object}  HealthResponse
// @Failure      503  {object}  HealthResponse
// @Router       /health/ready [get]
func (h *Handler) Readiness(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	sessionStats := h.session.Stats()

	components := make(map[string]ComponentStatus)
	var mu sync.Mutex
	var wg sync.WaitGroup

	checks := []struct {
		name  string
		check func(context.Context, voice.Stats) ComponentStatus
	}{
		{"live_endpoint", h.checkLiveEndpoint},
		{"outbound", h.checkOutbound},
		{"audio", h.checkAudio},
	}

	wg.Add(len(checks))
	for _, check := range checks {
		go func(name string, fn func(context.Context, voice.Stats) ComponentStatus) {
			defer wg.Done()
			status := fn(ctx, sessionStats)
			mu.Lock()
			components[name] = status
			mu.Unlock()
		}(check.name, check.check)
	}
	wg.Wait()

	overallStatus := h.computeOverallStatus(components)

	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	resp := HealthResponse{
		Status:        overallStatus,
		Timestamp:     time.Now().UTC(),
		Version:       h.version,
		UptimeSeconds: int64(time.Since(h.startTime).Seconds()),
		Stats: Stats{
			Session: sessionStats,
			Requests: RequestStats{
				TotalRequests:     atomic.LoadUint64(&h.totalRequests),
				ActiveConnections: atomic.LoadInt64(&h.activeConnections),
				EventClients:      h.clients.Count(),
			},
			Runtime: RuntimeStats{
				Goroutines:         runtime.NumGoroutine(),
				MemoryAllocMB:      memStats.Alloc / 1024 / 1024,
				MemoryTotalAllocMB: memStats.TotalAlloc / 1024 / 1024,
				MemorySysMB:        memStats.Sys / 1024 / 1024,
				NumGC:              memStats.NumGC,
			},
		},
		Components: components,
	}

	statusCode := http.StatusOK
	if overallStatus == StatusUnhealthy {
		statusCode = http.StatusServiceUnavailable
	}

	return c.JSON(statusCode, resp)
}

// Session godoc
// @Summary      Voice session statistics
// @Tags         health
// @Produce      json
// @Success      200  {object}  voice.Stats
// @Router       /health/session [get]
func (h *Handler) Session(c echo.Context) error {
	return c.JSON(http.StatusOK, h.session.Stats())
}

func (h *Handler) checkLiveEndpoint(_ context.Context, _ voice.Stats) ComponentStatus {
	start := time.Now()
	if !h.live.HasAPIKey {
		return ComponentStatus{
			Status:    StatusUnhealthy,
			LatencyMs: time.Since(start).Milliseconds(),
			Error:     "api key not configured",
		}
	}

	if h.live.Transport == "websocket" {
		u, err := url.Parse(h.live.Endpoint)
		if err != nil || (u.Scheme != "ws" && u.Scheme != "wss") || u.Host == "" {
			return ComponentStatus{
				Status:    StatusUnhealthy,
				LatencyMs: time.Since(start).Milliseconds(),
				Error:     "invalid live endpoint",
			}
		}
	}

	return ComponentStatus{
		Status:    StatusHealthy,
		LatencyMs: time.Since(start).Milliseconds(),
	}
}

func (h *Handler) checkOutbound(_ context.Context, st voice.Stats) ComponentStatus {
	start := time.Now()
	out := st.Outbound
	attempts := out.Sent + out.Failed
	if attempts > 0 && float64(out.Failed)/float64(attempts) > degradedFailureRatio {
		return ComponentStatus{
			Status:    StatusDegraded,
			LatencyMs: time.Since(start).Milliseconds(),
			Error:     "high outbound failure ratio",
		}
	}
	if out.Dropped > 0 {
		return ComponentStatus{
			Status:    StatusDegraded,
			LatencyMs: time.Since(start).Milliseconds(),
			Error:     "outbound frames dropped",
		}
	}

	return ComponentStatus{
		Status:    StatusHealthy,
		LatencyMs: time.Since(start).Milliseconds(),
	}
}

func (h *Handler) checkAudio(_ context.Context, st voice.Stats) ComponentStatus {
	start := time.Now()
	if st.State == voice.StateError && st.ErrorMessage == voice.MessageMicrophone {
		return ComponentStatus{
			Status:    StatusDegraded,
			LatencyMs: time.Since(start).Milliseconds(),
			Error:     "microphone unavailable",
		}
	}
	if st.State == voice.StateConnected && !st.PathwaysOpen {
		return ComponentStatus{
			Status:    StatusUnhealthy,
			LatencyMs: time.Since(start).Milliseconds(),
			Error:     "audio pathways closed while connected",
		}
	}

	return ComponentStatus{
		Status:    StatusHealthy,
		LatencyMs: time.Since(start).Milliseconds(),
	}
}

func (h *Handler) computeOverallStatus(components map[string]ComponentStatus) Status {
	criticalComponents := []string{"live_endpoint"}

	for _, name := range criticalComponents {
		if status, ok := components[name]; ok && status.Status == StatusUnhealthy {
			return StatusUnhealthy
		}
	}

	hasUnhealthy := false
	hasDegraded := false
	for _, status := range components {
		if status.Status == StatusUnhealthy {
			hasUnhealthy = true
		}
		if status.Status == StatusDegraded {
			hasDegraded = true
		}
	}

	if hasUnhealthy || hasDegraded {
		return StatusDegraded
	}

	return StatusHealthy
}
