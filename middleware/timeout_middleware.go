package middleware

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"mini-playwright/message"
)

type callResult struct {
	result json.RawMessage
	err    error
}

// TimeoutMiddleware bounds how long a caller waits for a response. It only
// stops waiting: the protocol has no cancel message, so the request stays
// outstanding on the driver and in the pending table until answered.
func TimeoutMiddleware(timeout time.Duration) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *message.Request) (json.RawMessage, error) {
			ctx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()

			// the inner handler works on a copy so that it may still assign
			// the id after this wrapper has given up
			inner := *req
			done := make(chan callResult, 1)
			go func() {
				result, err := next(ctx, &inner)
				done <- callResult{result, err}
			}()

			select {
			case r := <-done:
				req.ID = inner.ID
				return r.result, r.err
			case <-ctx.Done():
				return nil, fmt.Errorf("%s.%s: timed out after %s: %w", req.GUID, req.Method, timeout, ctx.Err())
			}
		}
	}
}
