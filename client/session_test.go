package client

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"mini-playwright/message"
	"mini-playwright/server"
	"mini-playwright/transport"
)

// session is a Connection wired to an in-process driver.
type session struct {
	t         testing.TB
	srv       *server.Server
	conn      *Connection
	served    chan error
	closeOnce sync.Once
}

func newSession(t testing.TB, opts ...Option) *session {
	t.Helper()

	srv := server.New(nil)
	srv.Handle("ping", func(ctx context.Context, req *message.Request) (any, error) {
		return nil, nil
	})
	clientEnd, driverEnd := server.Pipe()

	s := &session{t: t, srv: srv, served: make(chan error, 1)}
	go func() { s.served <- srv.Serve(context.Background(), driverEnd.R, driverEnd.W) }()
	s.conn = NewConnection(transport.NewPipeTransport(clientEnd.R, clientEnd.W, 0), opts...)

	t.Cleanup(s.close)
	return s
}

func (s *session) close() {
	s.closeOnce.Do(func() {
		require.NoError(s.t, s.conn.Close())
		select {
		case <-s.served:
		case <-time.After(2 * time.Second):
			s.t.Error("driver did not stop")
		}
	})
}

// sync returns once the client has processed every frame the driver wrote
// before it: frames are handled in order, so the ping response comes last.
func (s *session) sync() {
	s.t.Helper()
	_, err := s.conn.Root().Channel().Send(context.Background(), "ping", nil)
	require.NoError(s.t, err)
}

func (s *session) create(parent, typ, guid string, initializer any) {
	s.t.Helper()
	require.NoError(s.t, s.srv.Create(parent, typ, guid, initializer))
}

// page creates ctx@1 / frame@1 / page@1 and returns the page.
func (s *session) page() *Page {
	s.t.Helper()
	s.create("", "BrowserContext", "ctx@1", nil)
	s.create("ctx@1", "Frame", "frame@1", map[string]any{"url": "about:blank"})
	s.create("ctx@1", "Page", "page@1", map[string]any{"mainFrame": map[string]string{"guid": "frame@1"}})
	s.sync()

	obj, ok := s.conn.Object("page@1")
	require.True(s.t, ok)
	return obj.(*Page)
}

func (s *session) methods() []string {
	var out []string
	for _, req := range s.srv.Requests() {
		out = append(out, req.Method)
	}
	return out
}
