package client

import (
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/tidwall/gjson"

	"mini-playwright/errext"
	"mini-playwright/message"
)

// Kind is the tag of a remote object. The set is closed: any type name the
// driver sends that is not listed here becomes KindUnknown.
type Kind int

const (
	KindUnknown Kind = iota
	KindRoot
	KindPlaywright
	KindBrowserType
	KindBrowser
	KindBrowserContext
	KindPage
	KindFrame
	KindElementHandle
)

var kindNames = map[Kind]string{
	KindUnknown:        "Unknown",
	KindRoot:           "Root",
	KindPlaywright:     "Playwright",
	KindBrowserType:    "BrowserType",
	KindBrowser:        "Browser",
	KindBrowserContext: "BrowserContext",
	KindPage:           "Page",
	KindFrame:          "Frame",
	KindElementHandle:  "ElementHandle",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Object is a local proxy of one remote entity. Only the types of this package
// implement it: *Root, *Playwright, *BrowserType, *Browser, *BrowserContext,
// *Page, *Frame, *ElementHandle and *Unknown. Switch on the concrete type or on
// Kind() to reach the typed API.
type Object interface {
	GUID() string
	// Type is the type name the driver sent in __create__.
	Type() string
	Kind() Kind
	Initializer() json.RawMessage
	Disposed() bool
	On(event string, handler func(Event)) (unsubscribe func())

	owner() *ChannelOwner
	// handleEvent applies a driver event to the object's own state and
	// reports whether the kind knows the event.
	handleEvent(method string, params json.RawMessage) bool
}

// Event is a driver notification addressed to one object.
type Event struct {
	GUID   string
	Method string
	Params json.RawMessage
}

// Get reads a field of the event params with a gjson path.
func (e Event) Get(path string) gjson.Result {
	return gjson.GetBytes(e.Params, path)
}

type subscription struct {
	id      uint64
	handler func(Event)
}

// ChannelOwner holds what every remote object has in common: identity, the
// immutable initializer, a Channel and the disposed flag. Tree edges live in
// the connection registry, not here.
type ChannelOwner struct {
	conn        *Connection
	guid        string
	typeName    string
	initializer json.RawMessage
	channel     *Channel

	disposed      atomic.Bool
	mu            sync.Mutex
	disposeReason string
	handlers      map[string][]subscription
	nextHandler   uint64
}

func newChannelOwner(conn *Connection, guid, typeName string, initializer json.RawMessage) *ChannelOwner {
	o := &ChannelOwner{
		conn:        conn,
		guid:        guid,
		typeName:    typeName,
		initializer: append(json.RawMessage(nil), initializer...),
		handlers:    make(map[string][]subscription),
	}
	o.channel = &Channel{conn: conn, owner: o}
	return o
}

func (o *ChannelOwner) GUID() string { return o.guid }

func (o *ChannelOwner) Type() string { return o.typeName }

// Initializer returns a copy of the creation payload.
func (o *ChannelOwner) Initializer() json.RawMessage {
	return append(json.RawMessage(nil), o.initializer...)
}

func (o *ChannelOwner) Channel() *Channel { return o.channel }

func (o *ChannelOwner) Connection() *Connection { return o.conn }

func (o *ChannelOwner) Disposed() bool { return o.disposed.Load() }

// DisposeReason is the reason the driver gave when disposing the object, or
// the local cause for cascaded and connection-wide disposal.
func (o *ChannelOwner) DisposeReason() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.disposeReason
}

// Parent returns the parent object. The root and disposed objects have none.
func (o *ChannelOwner) Parent() (Object, bool) {
	guid, ok := o.conn.objects.Parent(o.guid)
	if !ok {
		return nil, false
	}
	return o.conn.objects.Lookup(guid)
}

// Children returns the live children in creation order.
func (o *ChannelOwner) Children() []Object {
	guids := o.conn.objects.Children(o.guid)
	out := make([]Object, 0, len(guids))
	for _, g := range guids {
		if child, ok := o.conn.objects.Lookup(g); ok {
			out = append(out, child)
		}
	}
	return out
}

// On registers handler for event. Handlers run on the connection pump in
// arrival order; a handler must not wait on an RPC of the same connection.
func (o *ChannelOwner) On(event string, handler func(Event)) (unsubscribe func()) {
	o.mu.Lock()
	o.nextHandler++
	id := o.nextHandler
	o.handlers[event] = append(o.handlers[event], subscription{id: id, handler: handler})
	o.mu.Unlock()

	return func() {
		o.mu.Lock()
		defer o.mu.Unlock()
		subs := o.handlers[event]
		for i, s := range subs {
			if s.id == id {
				o.handlers[event] = append(subs[:i:i], subs[i+1:]...)
				return
			}
		}
	}
}

func (o *ChannelOwner) emit(ev Event) {
	o.mu.Lock()
	subs := append([]subscription(nil), o.handlers[ev.Method]...)
	o.mu.Unlock()

	for _, s := range subs {
		s.handler(ev)
	}
}

// markDisposed flips the object to Disposed. It reports false if the object
// was already disposed.
func (o *ChannelOwner) markDisposed(reason string) bool {
	if !o.disposed.CompareAndSwap(false, true) {
		return false
	}
	o.mu.Lock()
	o.disposeReason = reason
	o.handlers = make(map[string][]subscription)
	o.mu.Unlock()
	return true
}

func (o *ChannelOwner) owner() *ChannelOwner { return o }

func (o *ChannelOwner) handleEvent(string, json.RawMessage) bool { return false }

// lookupRef resolves a {"guid": ...} reference found at path in data.
func lookupRef[T Object](conn *Connection, data []byte, path string) (T, error) {
	var zero T
	ref := gjson.GetBytes(data, path+".guid")
	if !ref.Exists() {
		return zero, errext.NewProtocolError(fmt.Sprintf("missing reference %q", path), data, nil)
	}
	obj, ok := conn.objects.Lookup(ref.String())
	if !ok {
		return zero, errext.NewProtocolError(fmt.Sprintf("reference %q to unknown object %s", path, ref.String()), data, nil)
	}
	typed, ok := obj.(T)
	if !ok {
		return zero, errext.NewProtocolError(
			fmt.Sprintf("reference %q points at %s %s", path, obj.Kind(), ref.String()), data, nil)
	}
	return typed, nil
}

// requireFields checks that the initializer carries every path.
func requireFields(p *message.CreateParams, paths ...string) error {
	for _, path := range paths {
		if !gjson.GetBytes(p.Initializer, path).Exists() {
			return errext.NewProtocolError(
				fmt.Sprintf("%s %s initializer misses %q", p.Type, p.GUID, path), p.Initializer, nil)
		}
	}
	return nil
}

type constructor func(o *ChannelOwner, p *message.CreateParams) (Object, error)

var constructors = map[string]constructor{
	"Playwright":     newPlaywright,
	"BrowserType":    newBrowserType,
	"Browser":        newBrowser,
	"BrowserContext": newBrowserContext,
	"Page":           newPage,
	"Frame":          newFrame,
	"ElementHandle":  newElementHandle,
}

// newObject builds the variant for p.Type. Unlisted types build an *Unknown.
func newObject(conn *Connection, p *message.CreateParams) (Object, error) {
	o := newChannelOwner(conn, p.GUID, p.Type, p.Initializer)
	build, ok := constructors[p.Type]
	if !ok {
		return &Unknown{ChannelOwner: o}, nil
	}
	return build(o, p)
}

// Root is the implicit object with the empty guid that parents the tree.
type Root struct {
	*ChannelOwner
}

func (*Root) Kind() Kind { return KindRoot }

// Unknown stands for a type the client does not model. It keeps its place
// in the tree so that its subtree is disposed correctly; its events are dropped.
type Unknown struct {
	*ChannelOwner
}

func (*Unknown) Kind() Kind { return KindUnknown }
