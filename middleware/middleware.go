// Package middleware wraps outbound calls. The innermost handler writes the
// request frame and waits for its response; middlewares see every call on the
// way in and its outcome on the way out.
//
//	Chain(A, B, C)(send) → A(B(C(send)))
//	A.before → B.before → C.before → send → C.after → B.after → A.after
package middleware

import (
	"context"
	"encoding/json"

	"mini-playwright/message"
)

type HandlerFunc func(ctx context.Context, req *message.Request) (json.RawMessage, error)

type Middleware func(next HandlerFunc) HandlerFunc

// Chain composes middlewares so that the first one is the outermost.
func Chain(middlewares ...Middleware) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		for i := len(middlewares) - 1; i >= 0; i-- {
			next = middlewares[i](next)
		}
		return next
	}
}
