package middleware

import (
	"strconv"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	applogger "AnimaRex/pkg/logger"
)

var (
	httpRequestDuration *prometheus.HistogramVec
	httpInFlight        prometheus.Gauge
	metricsOnce         sync.Once
)

func initMetrics() {
	metricsOnce.Do(func() {
		httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "anima_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		}, []string{"route", "method", "status"})
		httpInFlight = promauto.NewGauge(prometheus.GaugeOpts{
			Name: "anima_http_in_flight_requests",
			Help: "Current number of in-flight HTTP requests",
		})
	})
}

// Metrics records request latency labelled by the route template, and warns
// about requests slower than slowThreshold.
func Metrics(l *applogger.Logger, slowThreshold time.Duration) echo.MiddlewareFunc {
	initMetrics()
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			httpInFlight.Inc()
			defer httpInFlight.Dec()

			start := time.Now()
			err := next(c)
			if err != nil {
				c.Error(err)
			}
			d := time.Since(start)
			route := c.Path()
			status := strconv.Itoa(c.Response().Status)
			httpRequestDuration.WithLabelValues(route, c.Request().Method, status).Observe(d.Seconds())

			if slowThreshold > 0 && d >= slowThreshold {
				l.Warn("http request slow",
					applogger.String("route", route),
					applogger.String("status", status),
					applogger.Duration("duration_ms", d),
				)
			}
			return nil
		}
	}
}
