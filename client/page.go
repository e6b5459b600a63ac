package client

import (
	"context"
	"encoding/json"
	"sync/atomic"

	"mini-playwright/message"
)

// Page is a tab. The main frame is named in the initializer and resolved from
// the registry on use.
type Page struct {
	*ChannelOwner
	closed  atomic.Bool
	crashed atomic.Bool
}

func newPage(o *ChannelOwner, p *message.CreateParams) (Object, error) {
	if err := requireFields(p, "mainFrame.guid"); err != nil {
		return nil, err
	}
	return &Page{ChannelOwner: o}, nil
}

func (*Page) Kind() Kind { return KindPage }

func (p *Page) IsClosed() bool { return p.closed.Load() }

func (p *Page) IsCrashed() bool { return p.crashed.Load() }

func (p *Page) handleEvent(method string, _ json.RawMessage) bool {
	switch method {
	case "close":
		p.closed.Store(true)
		return true
	case "crash":
		p.crashed.Store(true)
		return true
	case "frameAttached", "frameDetached":
		return true
	default:
		return false
	}
}

// MainFrame resolves the page's main frame.
func (p *Page) MainFrame() (*Frame, error) {
	return lookupRef[*Frame](p.conn, p.initializer, "mainFrame")
}

// Goto navigates the main frame.
func (p *Page) Goto(ctx context.Context, url string, opts GotoOptions) error {
	f, err := p.MainFrame()
	if err != nil {
		return err
	}
	return f.Goto(WithAPIName(ctx, "page.goto"), url, opts)
}

func (p *Page) Close(ctx context.Context) error {
	return p.channel.SendNoResult(WithAPIName(ctx, "page.close"), "close", map[string]any{"runBeforeUnload": false})
}

// Locator returns a lazy handle on the elements of the main frame matching selector.
func (p *Page) Locator(selector string) *Locator {
	return &Locator{page: p, selector: selector}
}
