package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"mini-playwright/errext"
	"mini-playwright/log"
	"mini-playwright/message"
)

var nextID uint32

// echoHandler plays the terminal handler: assigns an id and answers at once.
func echoHandler(ctx context.Context, req *message.Request) (json.RawMessage, error) {
	nextID++
	req.ID = nextID
	return json.RawMessage(`{"value":"ok"}`), nil
}

// slowHandler answers after 200ms, or gives up when ctx ends.
func slowHandler(ctx context.Context, req *message.Request) (json.RawMessage, error) {
	select {
	case <-time.After(200 * time.Millisecond):
		return json.RawMessage(`{}`), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func failingHandler(ctx context.Context, req *message.Request) (json.RawMessage, error) {
	return nil, &errext.RPCError{GUID: req.GUID, Method: req.Method, Message: "element is not attached"}
}

func newRequest(method string) *message.Request {
	return &message.Request{GUID: "frame@1", Method: method, Params: json.RawMessage(`{}`)}
}

func TestLogging(t *testing.T) {
	base, hook := test.NewNullLogger()
	base.SetLevel(logrus.DebugLevel)
	handler := LoggingMiddleware(log.New(base, nil))(echoHandler)

	result, err := handler(context.Background(), newRequest("isVisible"))
	require.NoError(t, err)
	assert.JSONEq(t, `{"value":"ok"}`, string(result))
	require.Len(t, hook.Entries, 1)
	assert.Equal(t, logrus.DebugLevel, hook.LastEntry().Level)
	assert.Contains(t, hook.LastEntry().Message, "frame@1.isVisible")

	_, err = LoggingMiddleware(log.New(base, nil))(failingHandler)(context.Background(), newRequest("click"))
	require.Error(t, err)
	assert.Equal(t, logrus.ErrorLevel, hook.LastEntry().Level)
}

func TestTimeoutPass(t *testing.T) {
	handler := TimeoutMiddleware(500 * time.Millisecond)(echoHandler)

	_, err := handler(context.Background(), newRequest("goto"))
	assert.NoError(t, err)
}

func TestTimeoutExceeded(t *testing.T) {
	handler := TimeoutMiddleware(50 * time.Millisecond)(slowHandler)

	start := time.Now()
	_, err := handler(context.Background(), newRequest("goto"))
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Contains(t, err.Error(), "frame@1.goto")
	assert.Less(t, time.Since(start), 150*time.Millisecond)
}

func TestRateLimitWaits(t *testing.T) {
	// 20 tokens/s with burst 2: the third call waits ~50ms for a token.
	handler := RateLimitMiddleware(20, 2)(echoHandler)

	start := time.Now()
	for i := 0; i < 3; i++ {
		_, err := handler(context.Background(), newRequest("fill"))
		require.NoError(t, err)
	}
	assert.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond)
}

func TestRateLimitHonoursContext(t *testing.T) {
	handler := RateLimitMiddleware(0.1, 1)(echoHandler)

	_, err := handler(context.Background(), newRequest("fill"))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = handler(ctx, newRequest("fill"))
	assert.Error(t, err)
}

func TestMetrics(t *testing.T) {
	okBefore := testutil.ToFloat64(metricCalls.WithLabelValues("metricsProbe", "ok"))
	errBefore := testutil.ToFloat64(metricCalls.WithLabelValues("metricsProbe", "rpc_error"))

	_, err := MetricsMiddleware()(echoHandler)(context.Background(), newRequest("metricsProbe"))
	require.NoError(t, err)
	_, err = MetricsMiddleware()(failingHandler)(context.Background(), newRequest("metricsProbe"))
	require.Error(t, err)

	assert.Equal(t, okBefore+1, testutil.ToFloat64(metricCalls.WithLabelValues("metricsProbe", "ok")))
	assert.Equal(t, errBefore+1, testutil.ToFloat64(metricCalls.WithLabelValues("metricsProbe", "rpc_error")))
}

func TestOutcome(t *testing.T) {
	assert.Equal(t, "ok", outcome(nil))
	assert.Equal(t, "disposed", outcome(errext.Disposed("page@1", "goto")))
	assert.Equal(t, "closed", outcome(errext.ConnectionClosed(errext.ErrTransportClosed)))
	assert.Equal(t, "abandoned", outcome(context.Canceled))
	assert.Equal(t, "error", outcome(errors.New("boom")))
}

func TestTracing(t *testing.T) {
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))

	_, err := TracingMiddleware(tp)(echoHandler)(context.Background(), newRequest("innerText"))
	require.NoError(t, err)
	_, err = TracingMiddleware(tp)(failingHandler)(context.Background(), newRequest("click"))
	require.Error(t, err)

	spans := sr.Ended()
	require.Len(t, spans, 2)
	assert.Equal(t, "innerText", spans[0].Name())
	assert.Equal(t, codes.Unset, spans[0].Status().Code)
	assert.Equal(t, "click", spans[1].Name())
	assert.Equal(t, codes.Error, spans[1].Status().Code)
}

func TestChain(t *testing.T) {
	var order []string
	tag := func(name string) Middleware {
		return func(next HandlerFunc) HandlerFunc {
			return func(ctx context.Context, req *message.Request) (json.RawMessage, error) {
				order = append(order, name+">")
				res, err := next(ctx, req)
				order = append(order, "<"+name)
				return res, err
			}
		}
	}

	handler := Chain(tag("a"), tag("b"), TimeoutMiddleware(500*time.Millisecond))(echoHandler)
	_, err := handler(context.Background(), newRequest("title"))
	require.NoError(t, err)
	assert.Equal(t, []string{"a>", "b>", "<b", "<a"}, order)
}
