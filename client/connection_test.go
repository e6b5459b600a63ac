package client

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
	"go.uber.org/goleak"

	"mini-playwright/errext"
	"mini-playwright/message"
	"mini-playwright/middleware"
)

func TestInitialize(t *testing.T) {
	s := newSession(t)
	s.srv.Handle("initialize", func(ctx context.Context, req *message.Request) (any, error) {
		if err := s.srv.Create("", "Playwright", "Playwright", map[string]any{
			"chromium": map[string]string{"guid": "browser-type@chromium"},
			"firefox":  map[string]string{"guid": "browser-type@firefox"},
			"webkit":   map[string]string{"guid": "browser-type@webkit"},
		}); err != nil {
			return nil, err
		}
		for _, name := range []string{"chromium", "firefox"} {
			if err := s.srv.Create("Playwright", "BrowserType", "browser-type@"+name, map[string]string{"name": name}); err != nil {
				return nil, err
			}
		}
		return map[string]any{"playwright": map[string]string{"guid": "Playwright"}}, nil
	})

	pw, err := s.conn.Initialize(context.Background())
	require.NoError(t, err)
	assert.Same(t, pw, s.conn.Playwright())
	assert.Equal(t, KindPlaywright, pw.Kind())
	require.NotNil(t, pw.Chromium())
	assert.Equal(t, "chromium", pw.Chromium().Name())
	assert.Equal(t, "firefox", pw.Firefox().Name())
	assert.Nil(t, pw.WebKit(), "webkit was never announced")

	req := s.srv.Requests()[0]
	assert.Equal(t, "", req.GUID)
	assert.Equal(t, "initialize", req.Method)
	assert.Equal(t, "javascript", gjson.GetBytes(req.Params, "sdkLanguage").String())
	require.NotNil(t, req.Metadata)
	assert.NotZero(t, req.Metadata.WallTime)
}

func TestInitializeRejectsBadReference(t *testing.T) {
	s := newSession(t)
	s.srv.Handle("initialize", func(ctx context.Context, req *message.Request) (any, error) {
		return map[string]any{"playwright": map[string]string{"guid": "nowhere"}}, nil
	})

	_, err := s.conn.Initialize(context.Background())
	assert.ErrorIs(t, err, errext.ErrProtocol)
}

func TestDisposeCascadeRejectsCalls(t *testing.T) {
	s := newSession(t)
	s.create("", "BrowserType", "bt@1", map[string]string{"name": "chromium"})
	s.create("bt@1", "Browser", "br@1", map[string]string{"name": "chromium", "version": "120.0"})
	s.sync()

	obj, ok := s.conn.Object("br@1")
	require.True(t, ok)
	br := obj.(*Browser)
	parent, ok := br.Parent()
	require.True(t, ok)
	assert.Equal(t, "bt@1", parent.GUID())
	assert.Equal(t, "120.0", br.Version())

	require.NoError(t, s.srv.Dispose("bt@1", ""))
	s.sync()

	_, ok = s.conn.Object("bt@1")
	assert.False(t, ok)
	_, ok = s.conn.Object("br@1")
	assert.False(t, ok)
	assert.True(t, br.Disposed())
	assert.Equal(t, "disposed", br.DisposeReason())

	err := br.Close(context.Background())
	assert.ErrorIs(t, err, errext.ErrDisposed)
	assert.NotContains(t, s.methods(), "close", "a disposed object never reaches the transport")
}

func TestDisposeReason(t *testing.T) {
	s := newSession(t)
	page := s.page()

	require.NoError(t, s.srv.Dispose("ctx@1", "gc"))
	s.sync()

	assert.True(t, page.Disposed())
	assert.Equal(t, "gc", page.DisposeReason())
	assert.Equal(t, 1, s.conn.Objects(), "only the root is left")
}

func TestOutOfOrderResponses(t *testing.T) {
	s := newSession(t)
	page := s.page()

	release := make(chan struct{})
	s.srv.Handle("innerText", func(ctx context.Context, req *message.Request) (any, error) {
		selector := gjson.GetBytes(req.Params, "selector").String()
		if selector == "#slow" {
			select {
			case <-release:
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
		return map[string]string{"value": "text of " + selector}, nil
	})

	type answer struct {
		text string
		err  error
	}
	slow := make(chan answer, 1)
	go func() {
		text, err := page.Locator("#slow").InnerText(context.Background())
		slow <- answer{text, err}
	}()
	require.Eventually(t, func() bool { return s.conn.PendingCalls() == 1 }, time.Second, 5*time.Millisecond)

	text, err := page.Locator("#fast").InnerText(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "text of #fast", text)

	close(release)
	got := <-slow
	require.NoError(t, got.err)
	assert.Equal(t, "text of #slow", got.text)

	var slowID, fastID uint32
	for _, req := range s.srv.Requests() {
		switch gjson.GetBytes(req.Params, "selector").String() {
		case "#slow":
			slowID = req.ID
		case "#fast":
			fastID = req.ID
		}
	}
	assert.Less(t, slowID, fastID, "the later call finished first")
}

func TestTeardownFailsPendingCallsOnce(t *testing.T) {
	pendingBefore := testutil.ToFloat64(metricPendingCalls)

	s := newSession(t)
	page := s.page()
	s.srv.Handle("waitForSelector", func(ctx context.Context, req *message.Request) (any, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})

	const n = 5
	results := make(chan error, n*2)
	frame, err := page.MainFrame()
	require.NoError(t, err)
	for i := 0; i < n; i++ {
		go func(i int) {
			_, err := frame.Channel().Send(context.Background(), "waitForSelector", map[string]string{"selector": fmt.Sprintf("#e%d", i)})
			results <- err
		}(i)
	}
	require.Eventually(t, func() bool { return s.conn.PendingCalls() == n }, time.Second, 5*time.Millisecond)
	assert.Equal(t, pendingBefore+n, testutil.ToFloat64(metricPendingCalls))

	require.NoError(t, s.srv.Close())

	for i := 0; i < n; i++ {
		select {
		case err := <-results:
			assert.ErrorIs(t, err, errext.ErrConnectionClosed)
			assert.ErrorIs(t, err, errext.ErrTransportClosed)
		case <-time.After(time.Second):
			t.Fatal("pending call not failed by teardown")
		}
	}
	select {
	case err := <-results:
		t.Fatalf("extra resolution: %v", err)
	case <-time.After(50 * time.Millisecond):
	}

	<-s.conn.Done()
	assert.Zero(t, s.conn.PendingCalls())
	assert.Equal(t, pendingBefore, testutil.ToFloat64(metricPendingCalls))
	assert.ErrorIs(t, s.conn.Err(), errext.ErrConnectionClosed)
	assert.True(t, page.Disposed())
	assert.True(t, s.conn.Root().Disposed())
	assert.Zero(t, s.conn.Objects())

	_, err = frame.Channel().Send(context.Background(), "waitForSelector", nil)
	assert.ErrorIs(t, err, errext.ErrDisposed)
}

func TestAbandonedCallStaysPending(t *testing.T) {
	s := newSession(t)
	page := s.page()

	release := make(chan struct{})
	s.srv.Handle("goto", func(ctx context.Context, req *message.Request) (any, error) {
		select {
		case <-release:
			return nil, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err := page.Goto(ctx, "https://example.com", GotoOptions{})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 1, s.conn.PendingCalls(), "no cancel message exists, the request stays outstanding")

	close(release)
	require.Eventually(t, func() bool { return s.conn.PendingCalls() == 0 }, time.Second, 5*time.Millisecond)
}

func TestIDsSkipPendingCallsAfterWrap(t *testing.T) {
	s := newSession(t)
	page := s.page()

	release := make(chan struct{})
	s.srv.Handle("goto", func(ctx context.Context, req *message.Request) (any, error) {
		select {
		case <-release:
			return nil, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	})
	rewind := func() {
		s.conn.mu.Lock()
		s.conn.lastID = math.MaxUint32
		s.conn.mu.Unlock()
	}

	rewind()
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	require.ErrorIs(t, page.Goto(ctx, "https://example.com", GotoOptions{}), context.DeadlineExceeded)

	rewind()
	s.sync()

	reqs := s.srv.Requests()
	require.GreaterOrEqual(t, len(reqs), 2)
	assert.Equal(t, uint32(1), reqs[len(reqs)-2].ID, "0 is skipped after wrap-around")
	assert.Equal(t, uint32(2), reqs[len(reqs)-1].ID, "id 1 is still held by the abandoned goto")

	close(release)
	require.Eventually(t, func() bool { return s.conn.PendingCalls() == 0 }, time.Second, 5*time.Millisecond)
}

func TestTimeoutMiddlewareLeavesCallPending(t *testing.T) {
	s := newSession(t, WithMiddleware(middleware.TimeoutMiddleware(50*time.Millisecond)))
	page := s.page()

	release := make(chan struct{})
	s.srv.Handle("goto", func(ctx context.Context, req *message.Request) (any, error) {
		select {
		case <-release:
			return nil, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	})

	err := page.Goto(context.Background(), "https://example.com", GotoOptions{WaitUntil: "load"})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 1, s.conn.PendingCalls())

	close(release)
	require.Eventually(t, func() bool { return s.conn.PendingCalls() == 0 }, time.Second, 5*time.Millisecond)
}

func TestRPCErrors(t *testing.T) {
	s := newSession(t)
	page := s.page()

	s.srv.Handle("isVisible", func(ctx context.Context, req *message.Request) (any, error) {
		return nil, &errext.RPCError{Name: "TimeoutError", Message: "waiting for locator", Stack: "at isVisible"}
	})
	s.srv.Handle("isEnabled", func(ctx context.Context, req *message.Request) (any, error) {
		if err := s.srv.SendRaw([]byte(fmt.Sprintf(`{"id":%d,"error":{"message":"flat failure"}}`, req.ID))); err != nil {
			return nil, err
		}
		return nil, nil
	})

	_, err := page.Locator("#a").IsVisible(context.Background())
	var rpcErr *errext.RPCError
	require.True(t, errors.As(err, &rpcErr))
	assert.Equal(t, "frame@1", rpcErr.GUID)
	assert.Equal(t, "isVisible", rpcErr.Method)
	assert.Equal(t, "TimeoutError", rpcErr.Name)
	assert.Equal(t, "at isVisible", rpcErr.Stack)

	_, err = page.Locator("#a").IsEnabled(context.Background())
	require.True(t, errors.As(err, &rpcErr))
	assert.Equal(t, "flat failure", rpcErr.Message)

	s.sync()
	assert.Nil(t, s.conn.Err(), "driver errors are local to the call")
}

func TestProtocolErrorsAreLocal(t *testing.T) {
	s := newSession(t)

	require.NoError(t, s.srv.SendRaw([]byte(`not json`)))
	require.NoError(t, s.srv.SendRaw([]byte(`{"params":{}}`)))
	require.NoError(t, s.srv.SendRaw([]byte(`{"id":999,"result":{}}`)))
	s.create("", "Browser", "br@bad", map[string]string{"name": "chromium"})
	s.create("missing@1", "Frame", "frame@orphan", nil)
	s.create("", "BrowserContext", "ctx@1", nil)
	s.create("", "BrowserContext", "ctx@1", nil)
	require.NoError(t, s.srv.Dispose("nobody@1", ""))
	require.NoError(t, s.srv.Emit("nobody@1", "close", nil))
	s.sync()

	_, ok := s.conn.Object("br@bad")
	assert.False(t, ok, "a Browser without version is not created")
	_, ok = s.conn.Object("frame@orphan")
	assert.False(t, ok)
	assert.Equal(t, 2, s.conn.Objects())
	assert.Nil(t, s.conn.Err())
}

func TestUnknownTypeIsTolerated(t *testing.T) {
	s := newSession(t)
	s.create("", "Tracing", "tracing@1", map[string]any{"isTracing": true})
	s.create("tracing@1", "ElementHandle", "eh@1", nil)
	require.NoError(t, s.srv.Emit("tracing@1", "tracingStarted", nil))
	s.sync()

	obj, ok := s.conn.Object("tracing@1")
	require.True(t, ok)
	assert.Equal(t, KindUnknown, obj.Kind())
	assert.Equal(t, "Tracing", obj.Type())
	assert.JSONEq(t, `{"isTracing":true}`, string(obj.Initializer()))

	require.NoError(t, s.srv.Dispose("tracing@1", ""))
	s.sync()
	_, ok = s.conn.Object("eh@1")
	assert.False(t, ok, "the subtree of an unknown object is disposed with it")
}

func TestAdopt(t *testing.T) {
	s := newSession(t)
	s.create("", "BrowserContext", "ctx@1", nil)
	s.create("", "BrowserContext", "ctx@2", nil)
	s.create("ctx@1", "ElementHandle", "eh@1", nil)
	require.NoError(t, s.srv.Adopt("ctx@2", "eh@1"))
	s.sync()

	obj, _ := s.conn.Object("eh@1")
	parent, ok := obj.(*ElementHandle).Parent()
	require.True(t, ok)
	assert.Equal(t, "ctx@2", parent.GUID())

	ctx1, _ := s.conn.Object("ctx@1")
	assert.Empty(t, ctx1.(*BrowserContext).Children())

	require.NoError(t, s.srv.Dispose("ctx@1", ""))
	require.NoError(t, s.srv.Adopt("ctx@1", "eh@1"))
	s.sync()

	assert.True(t, obj.Disposed(), "adopted into a disposed parent")
	assert.Equal(t, "adopted into a disposed parent", obj.(*ElementHandle).DisposeReason())
	_, ok = s.conn.Object("eh@1")
	assert.False(t, ok)
}

func TestObjectsGauge(t *testing.T) {
	before := testutil.ToFloat64(metricObjects)

	s := newSession(t)
	s.page()
	assert.Equal(t, before+3, testutil.ToFloat64(metricObjects))

	require.NoError(t, s.srv.Dispose("page@1", ""))
	s.sync()
	assert.Equal(t, before+2, testutil.ToFloat64(metricObjects))

	s.close()
	assert.Equal(t, before, testutil.ToFloat64(metricObjects))
}

func TestCallAfterClose(t *testing.T) {
	s := newSession(t)
	s.close()

	require.NoError(t, s.conn.Close(), "close is idempotent")
	_, err := s.conn.Root().Channel().Send(context.Background(), "ping", nil)
	assert.ErrorIs(t, err, errext.ErrDisposed)
	assert.ErrorIs(t, s.conn.Err(), errext.ErrConnectionClosed)
}

func TestConcurrentCalls(t *testing.T) {
	s := newSession(t)
	page := s.page()
	s.srv.Handle("textContent", func(ctx context.Context, req *message.Request) (any, error) {
		return map[string]string{"value": gjson.GetBytes(req.Params, "selector").String()}, nil
	})

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			selector := fmt.Sprintf("#item-%d", i)
			text, err := page.Locator(selector).TextContent(context.Background())
			assert.NoError(t, err)
			assert.Equal(t, selector, text)
		}(i)
	}
	wg.Wait()
	assert.Zero(t, s.conn.PendingCalls())
}

func TestNoGoroutinesLeftAfterClose(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	s := newSession(t)
	s.page()
	s.close()
}
