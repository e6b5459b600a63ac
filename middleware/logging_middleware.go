package middleware

import (
	"context"
	"encoding/json"
	"time"

	"mini-playwright/log"
	"mini-playwright/message"
)

func LoggingMiddleware(logger *log.Logger) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *message.Request) (json.RawMessage, error) {
			start := time.Now()
			result, err := next(ctx, req)
			duration := time.Since(start)
			if err != nil {
				logger.Errorf("channel", "%s.%s id:%d failed after %s: %v", req.GUID, req.Method, req.ID, duration, err)
				return result, err
			}
			logger.Debugf("channel", "%s.%s id:%d took %s", req.GUID, req.Method, req.ID, duration)
			return result, nil
		}
	}
}
