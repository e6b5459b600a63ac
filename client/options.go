package client

import (
	"io"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"

	"mini-playwright/codec"
	"mini-playwright/config"
	"mini-playwright/log"
	"mini-playwright/middleware"
	"mini-playwright/transport"
)

// FromConfig builds a Connection over the driver's stdout (r) and stdin (w).
//
// The middleware chain is, outermost first: logging, metrics (cfg.Metrics),
// tracing (cfg.Tracing, global tracer provider), timeout (cfg.CallTimeout)
// and rate limit (cfg.RateLimit).
func FromConfig(r io.ReadCloser, w io.WriteCloser, cfg config.Config) (*Connection, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	codecType, err := codec.ParseCodecType(cfg.Codec)
	if err != nil {
		return nil, err
	}
	filter, err := cfg.CategoryFilter()
	if err != nil {
		return nil, err
	}

	base := logrus.New()
	logger := log.New(base, filter)
	if err := logger.SetLevel(cfg.LogLevel); err != nil {
		return nil, err
	}

	mws := []middleware.Middleware{middleware.LoggingMiddleware(logger)}
	if cfg.Metrics {
		mws = append(mws, middleware.MetricsMiddleware())
	}
	if cfg.Tracing {
		mws = append(mws, middleware.TracingMiddleware(otel.GetTracerProvider()))
	}
	if cfg.CallTimeout > 0 {
		mws = append(mws, middleware.TimeoutMiddleware(cfg.CallTimeout))
	}
	if cfg.RateLimit > 0 {
		mws = append(mws, middleware.RateLimitMiddleware(cfg.RateLimit, cfg.RateBurst))
	}

	tr := transport.NewPipeTransport(r, w, cfg.MaxFrameSize)
	return NewConnection(tr,
		WithCodec(codec.GetCodec(codecType)),
		WithLogger(logger),
		WithMiddleware(mws...),
		WithSDKLanguage(cfg.SDKLanguage),
	), nil
}
