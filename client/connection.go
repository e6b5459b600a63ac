// Package client is the object-graph runtime of a driver session.
//
// A Connection owns one Transport, one pump goroutine, the registry of remote
// objects and the table of pending calls:
//
//	caller ─Channel.Send─→ middleware chain ─→ roundTrip ─→ Transport.Send
//	                                              │ (waits on its pending entry)
//	pump ←─ Transport.Receive ←─ driver           │
//	  ├─ {id}          → resolve pending entry ───┘
//	  ├─ __create__    → construct variant, insert under addressed parent
//	  ├─ __adopt__     → move subtree under addressed parent
//	  ├─ __dispose__   → remove addressed subtree, mark each object disposed
//	  └─ other method  → object state + subscribers
//
// On transport failure every pending call fails exactly once with an error
// matching errext.ErrConnectionClosed and the cause, and every object is
// marked disposed.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"mini-playwright/codec"
	"mini-playwright/errext"
	"mini-playwright/log"
	"mini-playwright/message"
	"mini-playwright/middleware"
	"mini-playwright/registry"
	"mini-playwright/transport"
)

const rootGUID = ""

type callResult struct {
	result json.RawMessage
	err    error
}

type pendingCall struct {
	guid   string
	method string
	done   chan callResult // buffered, receives exactly one value
}

// Connection is safe for concurrent use.
type Connection struct {
	id          string
	transport   transport.Transport
	codec       codec.Codec
	logger      *log.Logger
	middlewares []middleware.Middleware
	send        middleware.HandlerFunc
	sdkLanguage string

	objects *registry.Registry[Object]
	root    *Root

	mu       sync.Mutex
	lastID   uint32
	pending  map[uint32]*pendingCall
	closed   bool
	closeErr error

	done       chan struct{}
	playwright *Playwright
}

// Option configures a Connection.
type Option func(*Connection)

// WithCodec selects the payload codec. The default is JSON.
func WithCodec(c codec.Codec) Option {
	return func(conn *Connection) { conn.codec = c }
}

// WithLogger sets the logger. The default discards everything.
func WithLogger(l *log.Logger) Option {
	return func(conn *Connection) { conn.logger = l }
}

// WithMiddleware appends outbound middlewares; the first one is the outermost.
func WithMiddleware(mws ...middleware.Middleware) Option {
	return func(conn *Connection) { conn.middlewares = append(conn.middlewares, mws...) }
}

// WithSDKLanguage sets the language reported by Initialize.
func WithSDKLanguage(lang string) Option {
	return func(conn *Connection) { conn.sdkLanguage = lang }
}

// NewConnection starts the pump over tr. The caller must Close the connection.
func NewConnection(tr transport.Transport, opts ...Option) *Connection {
	c := &Connection{
		id:          uuid.NewString(),
		transport:   tr,
		codec:       codec.GetCodec(codec.CodecTypeJSON),
		logger:      log.NewNullLogger(),
		sdkLanguage: "javascript",
		pending:     make(map[uint32]*pendingCall),
		done:        make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With("conn", c.id)
	c.send = middleware.Chain(c.middlewares...)(c.roundTrip)

	c.root = &Root{ChannelOwner: newChannelOwner(c, rootGUID, "Root", nil)}
	c.objects = registry.New[Object](rootGUID, c.root)

	go c.pump()
	return c
}

// ID is the session id used in logs.
func (c *Connection) ID() string { return c.id }

// Root returns the object with the empty guid.
func (c *Connection) Root() *Root { return c.root }

// Object returns the live object registered under guid.
func (c *Connection) Object(guid string) (Object, bool) {
	return c.objects.Lookup(guid)
}

// Objects returns the number of live objects, root included.
func (c *Connection) Objects() int { return c.objects.Len() }

// PendingCalls returns the number of calls still waiting for a response.
func (c *Connection) PendingCalls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

// Done is closed once the pump has exited.
func (c *Connection) Done() <-chan struct{} { return c.done }

// Err reports why the connection ended. It is nil while the connection is open.
func (c *Connection) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closeErr
}

// Initialize performs the handshake and returns the Playwright object.
func (c *Connection) Initialize(ctx context.Context) (*Playwright, error) {
	result, err := c.root.channel.Send(ctx, "initialize", map[string]any{"sdkLanguage": c.sdkLanguage})
	if err != nil {
		return nil, fmt.Errorf("initialize: %w", err)
	}
	pw, err := lookupRef[*Playwright](c, result, "playwright")
	if err != nil {
		return nil, fmt.Errorf("initialize: %w", err)
	}

	c.mu.Lock()
	c.playwright = pw
	c.mu.Unlock()
	return pw, nil
}

// Playwright returns the object obtained by Initialize, or nil.
func (c *Connection) Playwright() *Playwright {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.playwright
}

// Close tears the connection down and waits for the pump to exit. Calls
// still pending fail with errext.ErrConnectionClosed. Close is idempotent.
func (c *Connection) Close() error {
	c.teardown(nil)
	<-c.done
	return nil
}

func (c *Connection) pump() {
	defer close(c.done)

	for {
		frame, err := c.transport.Receive()
		if err != nil {
			if c.Err() == nil {
				c.logger.Errorf("connection", "receive failed: %v", err)
			}
			c.teardown(err)
			return
		}
		c.logger.Tracef("connection:recv", "%s", frame)

		if err := c.dispatch(frame); err != nil {
			c.logger.Warnf("connection", "dropping message: %v", err)
		}
	}
}

func (c *Connection) dispatch(frame []byte) error {
	var env message.Envelope
	if err := c.codec.Decode(frame, &env); err != nil {
		return errext.NewProtocolError("malformed message", frame, err)
	}

	switch env.Kind() {
	case message.KindResponse:
		c.resolve(&env)
		return nil
	case message.KindCreate:
		return c.create(&env)
	case message.KindAdopt:
		return c.adopt(&env)
	case message.KindDispose:
		return c.dispose(&env)
	case message.KindEvent:
		c.event(&env)
		return nil
	default:
		return errext.NewProtocolError("message has neither id nor method", frame, nil)
	}
}

func (c *Connection) resolve(env *message.Envelope) {
	id := *env.ID

	c.mu.Lock()
	pc, ok := c.pending[id]
	if ok {
		delete(c.pending, id)
		metricPendingCalls.Dec()
	}
	c.mu.Unlock()

	if !ok {
		c.logger.Warnf("connection", "response for unknown id:%d", id)
		return
	}

	if env.Error != nil {
		e := env.Error.Effective()
		pc.done <- callResult{err: &errext.RPCError{
			GUID:    pc.guid,
			Method:  pc.method,
			Name:    e.Name,
			Message: e.Message,
			Stack:   e.Stack,
		}}
		return
	}
	pc.done <- callResult{result: env.Result}
}

func (c *Connection) create(env *message.Envelope) error {
	var p message.CreateParams
	if err := c.codec.Decode(env.Params, &p); err != nil {
		return errext.NewProtocolError("malformed __create__ params", env.Params, err)
	}
	if p.GUID == "" || p.Type == "" {
		return errext.NewProtocolError("__create__ without type or guid", env.Params, nil)
	}

	obj, err := newObject(c, &p)
	if err != nil {
		return err
	}
	if err := c.objects.Insert(p.GUID, env.GUID, obj); err != nil {
		return errext.NewProtocolError("cannot register "+p.Type, env.Params, err)
	}
	metricObjects.Inc()

	if obj.Kind() == KindUnknown {
		c.logger.Warnf("registry", "unknown type %q for %s under %q, events will be dropped", p.Type, p.GUID, env.GUID)
		return nil
	}
	c.logger.Debugf("registry", "created %s %s under %q", p.Type, p.GUID, env.GUID)
	return nil
}

func (c *Connection) adopt(env *message.Envelope) error {
	var p message.AdoptParams
	if err := c.codec.Decode(env.Params, &p); err != nil || p.GUID == "" {
		return errext.NewProtocolError("malformed __adopt__ params", env.Params, err)
	}

	removed, err := c.objects.Adopt(p.GUID, env.GUID)
	switch {
	case errors.Is(err, registry.ErrParentNotFound):
		c.disposeAll(removed, "adopted into a disposed parent")
		c.logger.Debugf("registry", "%s adopted into absent %q, disposed %d objects", p.GUID, env.GUID, len(removed))
		return nil
	case err != nil:
		return errext.NewProtocolError("cannot adopt", env.Params, err)
	}
	c.logger.Debugf("registry", "adopted %s under %q", p.GUID, env.GUID)
	return nil
}

func (c *Connection) dispose(env *message.Envelope) error {
	var p message.DisposeParams
	if len(env.Params) > 0 {
		if err := c.codec.Decode(env.Params, &p); err != nil {
			return errext.NewProtocolError("malformed __dispose__ params", env.Params, err)
		}
	}
	target := env.GUID
	if target == rootGUID {
		target = p.GUID
	}
	if target == rootGUID {
		return errext.NewProtocolError("__dispose__ without target", env.Params, nil)
	}

	removed := c.objects.Remove(target)
	if len(removed) == 0 {
		c.logger.Debugf("registry", "dispose of absent %s ignored", target)
		return nil
	}
	reason := p.Reason
	if reason == "" {
		reason = "disposed"
	}
	c.disposeAll(removed, reason)
	c.logger.Debugf("registry", "disposed %s and %d descendants (%s)", target, len(removed)-1, reason)
	return nil
}

func (c *Connection) disposeAll(objs []Object, reason string) {
	for _, obj := range objs {
		if obj.owner().markDisposed(reason) && obj.Kind() != KindRoot {
			metricObjects.Dec()
		}
	}
}

func (c *Connection) event(env *message.Envelope) {
	obj, ok := c.objects.Lookup(env.GUID)
	if !ok {
		c.logger.Debugf("connection", "event %s for absent %q dropped", env.Method, env.GUID)
		return
	}
	if obj.Kind() == KindUnknown {
		return
	}
	if !obj.handleEvent(env.Method, env.Params) {
		c.logger.Debugf("connection", "unknown event %s.%s dropped", obj.Type(), env.Method)
		return
	}
	obj.owner().emit(Event{GUID: env.GUID, Method: env.Method, Params: env.Params})
}

// teardown fails every pending call and disposes every object. Only the
// first call has an effect.
func (c *Connection) teardown(cause error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.closeErr = errext.ConnectionClosed(cause)
	closeErr := c.closeErr
	pending := c.pending
	c.pending = make(map[uint32]*pendingCall)
	metricPendingCalls.Sub(float64(len(pending)))
	c.mu.Unlock()

	for _, pc := range pending {
		pc.done <- callResult{err: closeErr}
	}

	c.disposeAll(c.objects.Clear(), "connection closed")
	_ = c.transport.Close()

	if cause != nil {
		c.logger.Infof("connection", "closed: %v, failed %d pending calls", cause, len(pending))
	} else {
		c.logger.Debugf("connection", "closed by client, failed %d pending calls", len(pending))
	}
}

// roundTrip is the innermost handler: it assigns the id, writes the request
// and waits for the response. Abandoning ctx stops the wait only; the entry
// stays pending until the driver answers or the connection ends.
func (c *Connection) roundTrip(ctx context.Context, req *message.Request) (json.RawMessage, error) {
	pc := &pendingCall{guid: req.GUID, method: req.Method, done: make(chan callResult, 1)}

	c.mu.Lock()
	if c.closed {
		err := c.closeErr
		c.mu.Unlock()
		return nil, err
	}
	req.ID = c.nextID()
	c.pending[req.ID] = pc
	metricPendingCalls.Inc()
	c.mu.Unlock()

	frame, err := c.codec.Encode(req)
	if err != nil {
		c.forget(req.ID)
		return nil, fmt.Errorf("encoding %s.%s: %w", req.GUID, req.Method, err)
	}
	c.logger.Tracef("connection:send", "%s", frame)

	if err := c.transport.Send(frame); err != nil {
		if !errors.Is(err, errext.ErrTransportClosed) {
			if c.forget(req.ID) {
				return nil, fmt.Errorf("sending %s.%s: %w", req.GUID, req.Method, err)
			}
		} else {
			c.teardown(err)
		}
	}

	select {
	case r := <-pc.done:
		return r.result, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// nextID returns the next id not held by a pending call, skipping 0 after
// wrap-around. It must be called with mu held.
func (c *Connection) nextID() uint32 {
	for {
		c.lastID++
		if _, busy := c.pending[c.lastID]; c.lastID != 0 && !busy {
			return c.lastID
		}
	}
}

// forget drops a pending entry that was never sent. It reports false if the
// entry had already been resolved.
func (c *Connection) forget(id uint32) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.pending[id]
	if ok {
		delete(c.pending, id)
		metricPendingCalls.Dec()
	}
	return ok
}

type apiNameKey struct{}

// WithAPIName attaches the public API name to calls made with ctx. The driver
// shows it in its logs and traces. The outermost name wins, so Page.Goto is
// reported as "page.goto" even though it calls Frame.Goto.
func WithAPIName(ctx context.Context, name string) context.Context {
	if _, ok := ctx.Value(apiNameKey{}).(string); ok {
		return ctx
	}
	return context.WithValue(ctx, apiNameKey{}, name)
}

func metadataFrom(ctx context.Context) *message.Metadata {
	md := &message.Metadata{WallTime: time.Now().UnixMilli()}
	if name, ok := ctx.Value(apiNameKey{}).(string); ok {
		md.APIName = name
	}
	return md
}
