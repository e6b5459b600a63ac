package middleware

import (
	"context"
	"encoding/json"
	"fmt"

	"golang.org/x/time/rate"

	"mini-playwright/message"
)

// RateLimitMiddleware throttles outbound calls with a token bucket. Callers over
// the limit wait for a token rather than failing, so a burst of concurrent
// callers applies backpressure instead of flooding the driver.
func RateLimitMiddleware(r float64, burst int) Middleware {
	limiter := rate.NewLimiter(rate.Limit(r), burst)
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *message.Request) (json.RawMessage, error) {
			if err := limiter.Wait(ctx); err != nil {
				return nil, fmt.Errorf("rate limit: %s.%s: %w", req.GUID, req.Method, err)
			}
			return next(ctx, req)
		}
	}
}
