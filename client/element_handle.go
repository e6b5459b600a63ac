package client

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/tidwall/gjson"

	"mini-playwright/message"
)

// ElementHandle pins one DOM element on the driver side.
type ElementHandle struct {
	*ChannelOwner

	mu      sync.RWMutex
	preview string
}

func newElementHandle(o *ChannelOwner, p *message.CreateParams) (Object, error) {
	return &ElementHandle{
		ChannelOwner: o,
		preview:      gjson.GetBytes(p.Initializer, "preview").String(),
	}, nil
}

func (*ElementHandle) Kind() Kind { return KindElementHandle }

// Preview is the driver's short description of the element.
func (h *ElementHandle) Preview() string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.preview
}

func (h *ElementHandle) handleEvent(method string, params json.RawMessage) bool {
	if method != "previewUpdated" {
		return false
	}
	h.mu.Lock()
	h.preview = gjson.GetBytes(params, "preview").String()
	h.mu.Unlock()
	return true
}

// Dispose releases the element on the driver side. The driver answers with
// __dispose__ for this handle.
func (h *ElementHandle) Dispose(ctx context.Context) error {
	return h.channel.SendNoResult(WithAPIName(ctx, "elementHandle.dispose"), "dispose", nil)
}
