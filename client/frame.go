package client

import (
	"context"
	"encoding/json"
	"strings"
	"sync"

	"github.com/tidwall/gjson"

	"mini-playwright/message"
)

// Frame is a document inside a page. Its URL and load states follow the
// navigated and loadstate events.
type Frame struct {
	*ChannelOwner

	mu         sync.RWMutex
	url        string
	name       string
	loadStates map[string]struct{}
}

func newFrame(o *ChannelOwner, p *message.CreateParams) (Object, error) {
	f := &Frame{
		ChannelOwner: o,
		url:          gjson.GetBytes(p.Initializer, "url").String(),
		name:         gjson.GetBytes(p.Initializer, "name").String(),
		loadStates:   make(map[string]struct{}),
	}
	for _, state := range gjson.GetBytes(p.Initializer, "loadStates").Array() {
		f.loadStates[state.String()] = struct{}{}
	}
	return f, nil
}

func (*Frame) Kind() Kind { return KindFrame }

func (f *Frame) URL() string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.url
}

func (f *Frame) Name() string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.name
}

// HasLoadState reports whether state ("load", "domcontentloaded",
// "networkidle") has been reached for the current document.
func (f *Frame) HasLoadState(state string) bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	_, ok := f.loadStates[state]
	return ok
}

func (f *Frame) handleEvent(method string, params json.RawMessage) bool {
	switch method {
	case "navigated":
		if gjson.GetBytes(params, "error").Exists() {
			return true
		}
		f.mu.Lock()
		f.url = gjson.GetBytes(params, "url").String()
		f.name = gjson.GetBytes(params, "name").String()
		if gjson.GetBytes(params, "newDocument").Exists() {
			f.loadStates = make(map[string]struct{})
		}
		f.mu.Unlock()
		return true
	case "loadstate":
		f.mu.Lock()
		if add := gjson.GetBytes(params, "add"); add.Exists() {
			f.loadStates[add.String()] = struct{}{}
		}
		if remove := gjson.GetBytes(params, "remove"); remove.Exists() {
			delete(f.loadStates, remove.String())
		}
		f.mu.Unlock()
		return true
	default:
		return false
	}
}

// GotoOptions are forwarded to the driver. Zero fields are omitted.
type GotoOptions struct {
	// WaitUntil is "load", "domcontentloaded", "networkidle" or "commit".
	WaitUntil string `json:"waitUntil,omitempty"`
	// Timeout in milliseconds, applied by the driver.
	Timeout float64 `json:"timeout,omitempty"`
	Referer string  `json:"referer,omitempty"`
}

type gotoParams struct {
	URL string `json:"url"`
	GotoOptions
}

// Goto navigates the frame.
func (f *Frame) Goto(ctx context.Context, url string, opts GotoOptions) error {
	return f.channel.SendNoResult(WithAPIName(ctx, "frame.goto"), "goto", gotoParams{URL: url, GotoOptions: opts})
}

// Evaluate runs expression in the frame and returns its value as nil, bool,
// float64, string, []any or map[string]any. A function expression receives
// arg as its only argument.
func (f *Frame) Evaluate(ctx context.Context, expression string, arg any) (any, error) {
	serialized, err := serializeArgument(arg)
	if err != nil {
		return nil, err
	}
	result, err := f.channel.Send(WithAPIName(ctx, "frame.evaluate"), "evaluateExpression", map[string]any{
		"expression": expression,
		"isFunction": isFunction(expression),
		"arg":        serialized,
	})
	if err != nil {
		return nil, err
	}
	return parseValue(gjson.GetBytes(result, "value"))
}

// Locator returns a lazy handle on the elements matching selector.
func (f *Frame) Locator(selector string) *Locator {
	return &Locator{frame: f, selector: selector}
}

func isFunction(expression string) bool {
	e := strings.TrimSpace(expression)
	return strings.HasPrefix(e, "function") ||
		strings.HasPrefix(e, "async ") ||
		strings.Contains(e, "=>")
}
