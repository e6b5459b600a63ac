package client

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"

	"github.com/tidwall/gjson"

	"mini-playwright/message"
)

// Browser is a running browser process owned by the driver.
type Browser struct {
	*ChannelOwner
	name    string
	version string
	closed  atomic.Bool
}

func newBrowser(o *ChannelOwner, p *message.CreateParams) (Object, error) {
	if err := requireFields(p, "name", "version"); err != nil {
		return nil, err
	}
	return &Browser{
		ChannelOwner: o,
		name:         gjson.GetBytes(p.Initializer, "name").String(),
		version:      gjson.GetBytes(p.Initializer, "version").String(),
	}, nil
}

func (*Browser) Kind() Kind { return KindBrowser }

func (b *Browser) Name() string { return b.name }

func (b *Browser) Version() string { return b.version }

// IsClosed reports whether the driver sent the close event.
func (b *Browser) IsClosed() bool { return b.closed.Load() }

func (b *Browser) handleEvent(method string, _ json.RawMessage) bool {
	switch method {
	case "close":
		b.closed.Store(true)
		return true
	default:
		return false
	}
}

// Contexts returns the live browser contexts.
func (b *Browser) Contexts() []*BrowserContext {
	return childrenOf[*BrowserContext](b.ChannelOwner)
}

func (b *Browser) NewContext(ctx context.Context) (*BrowserContext, error) {
	return sendReturnAs[*BrowserContext](WithAPIName(ctx, "browser.newContext"), b.channel, "newContext", nil, "context")
}

// NewPage opens a page in a fresh context.
func (b *Browser) NewPage(ctx context.Context) (*Page, error) {
	bc, err := b.NewContext(ctx)
	if err != nil {
		return nil, err
	}
	page, err := bc.NewPage(ctx)
	if err != nil {
		return nil, fmt.Errorf("new page in %s: %w", bc.GUID(), err)
	}
	return page, nil
}

func (b *Browser) Close(ctx context.Context) error {
	return b.channel.SendNoResult(WithAPIName(ctx, "browser.close"), "close", nil)
}

func childrenOf[T Object](o *ChannelOwner) []T {
	var out []T
	for _, child := range o.Children() {
		if typed, ok := child.(T); ok {
			out = append(out, typed)
		}
	}
	return out
}
