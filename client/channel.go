package client

import (
	"context"
	"encoding/json"
	"fmt"

	"mini-playwright/errext"
	"mini-playwright/message"
)

// Channel issues calls on behalf of one object. It adds no timeout and no
// retry; bound the wait with ctx or middleware.TimeoutMiddleware.
type Channel struct {
	conn  *Connection
	owner *ChannelOwner
}

func (ch *Channel) GUID() string { return ch.owner.guid }

// Send calls method with params and returns the raw result. params may be nil,
// a json.RawMessage or any value the codec can encode.
func (ch *Channel) Send(ctx context.Context, method string, params any) (json.RawMessage, error) {
	if ch.owner.Disposed() {
		return nil, errext.Disposed(ch.owner.guid, method)
	}
	if err := ch.conn.Err(); err != nil {
		return nil, err
	}

	raw, err := ch.encodeParams(params)
	if err != nil {
		return nil, err
	}
	req := &message.Request{
		GUID:     ch.owner.guid,
		Method:   method,
		Params:   raw,
		Metadata: metadataFrom(ctx),
	}
	return ch.conn.send(ctx, req)
}

// SendNoResult is Send for calls whose result is not needed.
func (ch *Channel) SendNoResult(ctx context.Context, method string, params any) error {
	_, err := ch.Send(ctx, method, params)
	return err
}

func (ch *Channel) encodeParams(params any) (json.RawMessage, error) {
	switch p := params.(type) {
	case nil:
		return json.RawMessage(`{}`), nil
	case json.RawMessage:
		return p, nil
	default:
		raw, err := ch.conn.codec.Encode(p)
		if err != nil {
			return nil, errext.InvalidArgument("params of %s: %v", ch.owner.guid, err)
		}
		return raw, nil
	}
}

// sendReturnAs calls method and resolves the object reference at path in the
// result. The driver announces the object with __create__ before it answers.
func sendReturnAs[T Object](ctx context.Context, ch *Channel, method string, params any, path string) (T, error) {
	var zero T
	result, err := ch.Send(ctx, method, params)
	if err != nil {
		return zero, err
	}
	obj, err := lookupRef[T](ch.conn, result, path)
	if err != nil {
		return zero, fmt.Errorf("%s.%s: %w", ch.owner.guid, method, err)
	}
	return obj, nil
}
