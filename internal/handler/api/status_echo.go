package api

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"AnimaRex/internal/domain/models"
	"AnimaRex/internal/middleware"
	"AnimaRex/internal/usecase"
	xhttp "AnimaRex/pkg/http"
	applogger "AnimaRex/pkg/logger"
)

// StatusSource is the read side of the trading loop.
type StatusSource interface {
	Status() usecase.Status
}

// HealthCheck reports whether a dependency is reachable.
type HealthCheck func(ctx context.Context) error

const readyTimeout = 2 * time.Second

// StatusEchoHandler serves health, status and manual signal injection.
type StatusEchoHandler struct {
	logger *applogger.Logger
	status StatusSource
	bus    *middleware.SignalBus
	checks map[string]HealthCheck
}

func NewStatusEchoHandler(logger *applogger.Logger, status StatusSource, bus *middleware.SignalBus, checks map[string]HealthCheck) *StatusEchoHandler {
	if logger == nil {
		logger = applogger.NewNop()
	}
	return &StatusEchoHandler{logger: logger.Named("api"), status: status, bus: bus, checks: checks}
}

func (h *StatusEchoHandler) RegisterRoutes(e *echo.Echo) {
	e.GET("/healthz", h.Health)
	e.GET("/readyz", h.Ready)
	g := e.Group("/api/v1")
	g.GET("/status", h.Status)
	g.POST("/signals", h.InjectSignal)
}

func (h *StatusEchoHandler) Health(c echo.Context) error {
	return xhttp.SuccessResponse(c, map[string]interface{}{
		"status":    "ok",
		"connected": h.status.Status().Connected,
	})
}

// Ready runs every dependency check and answers 503 when any fails or the
// broker session is down.
func (h *StatusEchoHandler) Ready(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), readyTimeout)
	defer cancel()

	ready := h.status.Status().Connected
	deps := map[string]string{"broker": "ok"}
	if !ready {
		deps["broker"] = "disconnected"
	}
	for name, check := range h.checks {
		if err := check(ctx); err != nil {
			h.logger.Warn("readiness check failed", applogger.String("dependency", name), applogger.Error(err))
			deps[name] = err.Error()
			ready = false
			continue
		}
		deps[name] = "ok"
	}

	code := http.StatusOK
	if !ready {
		code = http.StatusServiceUnavailable
	}
	return xhttp.DataResponse(c, code, map[string]interface{}{"ready": ready, "dependencies": deps})
}

func (h *StatusEchoHandler) Status(c echo.Context) error {
	c.Response().Header().Set(echo.HeaderCacheControl, "no-store")
	return xhttp.SuccessResponse(c, h.status.Status())
}

// InjectSignal queues a manual signal for the orchestrator.
func (h *StatusEchoHandler) InjectSignal(c echo.Context) error {
	req := &models.InjectSignalRequest{}
	if verrs := xhttp.ReadAndValidateRequest(c, req); verrs != nil {
		return xhttp.BadRequestResponse(c, verrs)
	}
	sig, err := models.NewSignal(req.Market, req.Direction, req.Strategy, time.Time{})
	if err != nil {
		return xhttp.AppErrorResponse(c, err)
	}
	if !h.bus.Publish(c.Request().Context(), sig) {
		h.logger.Warn("signal bus full, manual signal dropped", applogger.String("market", sig.Market))
		return xhttp.DataResponse(c, http.StatusServiceUnavailable, "signal queue is full")
	}
	h.logger.Info("manual signal queued",
		applogger.String("market", sig.Market),
		applogger.String("direction", string(sig.Direction)),
		applogger.String("strategy", sig.Strategy),
	)
	return xhttp.AcceptedResponse(c, sig)
}
