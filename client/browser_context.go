package client

import (
	"context"
	"encoding/json"
	"sync/atomic"

	"mini-playwright/message"
)

// BrowserContext is an isolated browser session.
type BrowserContext struct {
	*ChannelOwner
	closed atomic.Bool
}

func newBrowserContext(o *ChannelOwner, _ *message.CreateParams) (Object, error) {
	return &BrowserContext{ChannelOwner: o}, nil
}

func (*BrowserContext) Kind() Kind { return KindBrowserContext }

func (bc *BrowserContext) IsClosed() bool { return bc.closed.Load() }

func (bc *BrowserContext) handleEvent(method string, _ json.RawMessage) bool {
	switch method {
	case "page":
		return true
	case "close":
		bc.closed.Store(true)
		return true
	default:
		return false
	}
}

// Pages returns the live pages of the context.
func (bc *BrowserContext) Pages() []*Page {
	return childrenOf[*Page](bc.ChannelOwner)
}

func (bc *BrowserContext) NewPage(ctx context.Context) (*Page, error) {
	return sendReturnAs[*Page](WithAPIName(ctx, "browserContext.newPage"), bc.channel, "newPage", nil, "page")
}

func (bc *BrowserContext) Close(ctx context.Context) error {
	return bc.channel.SendNoResult(WithAPIName(ctx, "browserContext.close"), "close", nil)
}
