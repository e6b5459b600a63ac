package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"mini-playwright/errext"
	"mini-playwright/message"
)

var (
	metricCalls = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "playwright",
		Subsystem: "rpc",
		Name:      "calls_total",
		Help:      "RPC calls issued to the driver, by method and outcome.",
	}, []string{"method", "outcome"})
	metricCallDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "playwright",
		Subsystem: "rpc",
		Name:      "call_duration_seconds",
		Help:      "Time from request write to response.",
		Buckets:   prometheus.ExponentialBuckets(0.001, 4, 8),
	}, []string{"method"})
)

// MetricsMiddleware records a counter and a latency histogram per method.
func MetricsMiddleware() Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *message.Request) (json.RawMessage, error) {
			start := time.Now()
			result, err := next(ctx, req)
			metricCallDuration.WithLabelValues(req.Method).Observe(time.Since(start).Seconds())
			metricCalls.WithLabelValues(req.Method, outcome(err)).Inc()
			return result, err
		}
	}
}

func outcome(err error) string {
	var rpcErr *errext.RPCError
	switch {
	case err == nil:
		return "ok"
	case errors.As(err, &rpcErr):
		return "rpc_error"
	case errors.Is(err, errext.ErrDisposed):
		return "disposed"
	case errors.Is(err, errext.ErrConnectionClosed), errors.Is(err, errext.ErrTransportClosed):
		return "closed"
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return "abandoned"
	default:
		return "error"
	}
}
