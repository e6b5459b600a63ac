// Package server is an in-process stand-in for the driver. It speaks the wire
// protocol over a pair of pipes so the client runtime can be exercised
// without a browser:
//
//	Serve: read loop (one goroutine, frames in order)
//	  → for each request: errgroup goroutine → handler → response (write lock)
//	Create / Adopt / Dispose / Emit: events written under the same write lock
package server

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"golang.org/x/sync/errgroup"

	"mini-playwright/codec"
	"mini-playwright/errext"
	"mini-playwright/log"
	"mini-playwright/message"
	"mini-playwright/protocol"
)

// HandlerFunc answers one request. A returned *errext.RPCError keeps its name
// and stack on the wire; any other error is sent with the name "Error".
type HandlerFunc func(ctx context.Context, req *message.Request) (any, error)

type response struct {
	ID     uint32                `json:"id"`
	Result json.RawMessage       `json:"result,omitempty"`
	Error  *message.ErrorPayload `json:"error,omitempty"`
}

type event struct {
	GUID   string `json:"guid"`
	Method string `json:"method"`
	Params any    `json:"params"`
}

// Server is safe for concurrent use. Events may be sent once Serve has started.
type Server struct {
	logger *log.Logger
	codec  codec.Codec

	mu       sync.RWMutex
	handlers map[string]HandlerFunc
	requests []message.Request
	r        io.ReadCloser
	w        io.WriteCloser

	writeMu   sync.Mutex // held for a whole frame
	ready     chan struct{}
	readyOnce sync.Once
	closeOnce sync.Once
}

// New creates a driver without handlers. A nil logger discards output.
func New(logger *log.Logger) *Server {
	if logger == nil {
		logger = log.NewNullLogger()
	}
	return &Server{
		logger:   logger,
		codec:    codec.GetCodec(codec.CodecTypeJSON),
		handlers: make(map[string]HandlerFunc),
		ready:    make(chan struct{}),
	}
}

// Handle registers h for method on every guid. A later registration replaces
// an earlier one.
func (s *Server) Handle(method string, h HandlerFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers[method] = h
}

// Requests returns the requests received so far, in arrival order.
func (s *Server) Requests() []message.Request {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]message.Request(nil), s.requests...)
}

// Serve reads requests from r and writes responses and events to w until r is
// exhausted, ctx is done or Close is called. It waits for running handlers,
// whose context is cancelled once reading stops.
func (s *Server) Serve(ctx context.Context, r io.ReadCloser, w io.WriteCloser) error {
	s.mu.Lock()
	s.r, s.w = r, w
	s.mu.Unlock()
	s.readyOnce.Do(func() { close(s.ready) })

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(ctx, func() { _ = s.Close() })
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	br := bufio.NewReader(r)

	var readErr error
	for {
		frame, err := protocol.Decode(br)
		if err != nil {
			if !isClosed(err) {
				readErr = err
			}
			break
		}

		var req message.Request
		if err := s.codec.Decode(frame, &req); err != nil {
			s.logger.Warnf("server", "malformed request: %v", err)
			continue
		}
		s.mu.Lock()
		s.requests = append(s.requests, req)
		h := s.handlers[req.Method]
		s.mu.Unlock()

		g.Go(func() error {
			return s.handle(gctx, &req, h)
		})
	}

	cancel()
	err := g.Wait()
	if readErr != nil {
		return fmt.Errorf("reading requests: %w", readErr)
	}
	return err
}

func (s *Server) handle(ctx context.Context, req *message.Request, h HandlerFunc) error {
	resp := response{ID: req.ID}
	if h == nil {
		resp.Error = wireError(&errext.RPCError{Name: "Error", Message: fmt.Sprintf("unknown method %q", req.Method)})
		s.logger.Debugf("server", "%s.%s id:%d has no handler", req.GUID, req.Method, req.ID)
		return s.respond(resp)
	}

	result, err := h(ctx, req)
	if err != nil {
		if errors.Is(err, context.Canceled) && ctx.Err() != nil {
			return nil
		}
		resp.Error = wireError(err)
		return s.respond(resp)
	}

	raw, err := s.encodeResult(result)
	if err != nil {
		return fmt.Errorf("encoding result of %s.%s: %w", req.GUID, req.Method, err)
	}
	resp.Result = raw
	return s.respond(resp)
}

func (s *Server) encodeResult(result any) (json.RawMessage, error) {
	switch r := result.(type) {
	case nil:
		return json.RawMessage(`{}`), nil
	case json.RawMessage:
		return r, nil
	default:
		return s.codec.Encode(r)
	}
}

// wireError uses the nested form the real driver sends.
func wireError(err error) *message.ErrorPayload {
	inner := &message.ErrorPayload{Name: "Error", Message: err.Error()}
	var rpcErr *errext.RPCError
	if errors.As(err, &rpcErr) {
		inner = &message.ErrorPayload{Name: rpcErr.Name, Message: rpcErr.Message, Stack: rpcErr.Stack}
	}
	return &message.ErrorPayload{Error: inner}
}

// Create announces a new object of type typ under parent.
func (s *Server) Create(parent, typ, guid string, initializer any) error {
	if initializer == nil {
		initializer = map[string]any{}
	}
	return s.write(event{
		GUID:   parent,
		Method: message.MethodCreate,
		Params: map[string]any{"type": typ, "guid": guid, "initializer": initializer},
	})
}

// Dispose removes guid and its subtree. reason may be empty.
func (s *Server) Dispose(guid, reason string) error {
	params := map[string]any{}
	if reason != "" {
		params["reason"] = reason
	}
	return s.write(event{GUID: guid, Method: message.MethodDispose, Params: params})
}

// Adopt moves guid under parent.
func (s *Server) Adopt(parent, guid string) error {
	return s.write(event{GUID: parent, Method: message.MethodAdopt, Params: map[string]any{"guid": guid}})
}

// Emit sends an ordinary event to guid.
func (s *Server) Emit(guid, method string, params any) error {
	if params == nil {
		params = map[string]any{}
	}
	return s.write(event{GUID: guid, Method: method, Params: params})
}

// SendRaw writes payload as one frame without encoding it.
func (s *Server) SendRaw(payload []byte) error {
	<-s.ready
	s.mu.RLock()
	w := s.w
	s.mu.RUnlock()
	if w == nil {
		return io.ErrClosedPipe
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return protocol.Encode(w, payload)
}

func (s *Server) write(v any) error {
	payload, err := s.codec.Encode(v)
	if err != nil {
		return err
	}
	s.logger.Tracef("server", "send %s", payload)
	return s.SendRaw(payload)
}

// respond drops responses the client can no longer read.
func (s *Server) respond(resp response) error {
	if err := s.write(resp); err != nil && !isClosed(err) {
		return err
	}
	return nil
}

// Close closes both streams, which the client sees as the driver exiting.
func (s *Server) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.readyOnce.Do(func() { close(s.ready) })
		s.mu.RLock()
		r, w := s.r, s.w
		s.mu.RUnlock()
		if w != nil {
			err = errors.Join(w.Close(), r.Close())
		}
	})
	return err
}

// End is one side of a Pipe.
type End struct {
	R io.ReadCloser
	W io.WriteCloser
}

// Pipe returns two connected ends: what driver writes, client reads, and
// the other way around.
func Pipe() (client, driver End) {
	toClientR, toClientW := io.Pipe()
	toDriverR, toDriverW := io.Pipe()
	return End{R: toClientR, W: toDriverW}, End{R: toDriverR, W: toClientW}
}

func isClosed(err error) bool {
	return errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrClosedPipe) ||
		errors.Is(err, os.ErrClosed)
}
