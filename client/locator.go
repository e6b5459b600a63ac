package client

import (
	"context"
	"fmt"

	"github.com/tidwall/gjson"

	"mini-playwright/errext"
)

// Locator is a client-side query: a frame plus a selector. Every method
// resolves the selector afresh on the driver, so a Locator never goes stale.
type Locator struct {
	page     *Page
	frame    *Frame
	selector string
}

func (l *Locator) Selector() string { return l.selector }

// Locator narrows the query to elements matching sub inside l.
func (l *Locator) Locator(sub string) *Locator {
	return &Locator{page: l.page, frame: l.frame, selector: l.selector + " >> " + sub}
}

func (l *Locator) target() (*Frame, error) {
	if l.frame != nil {
		return l.frame, nil
	}
	return l.page.MainFrame()
}

func (l *Locator) query(ctx context.Context, method string) (gjson.Result, error) {
	f, err := l.target()
	if err != nil {
		return gjson.Result{}, err
	}
	result, err := f.channel.Send(WithAPIName(ctx, "locator."+method), method, map[string]any{
		"selector": l.selector,
		"strict":   true,
	})
	if err != nil {
		return gjson.Result{}, err
	}
	return gjson.GetBytes(result, "value"), nil
}

func (l *Locator) boolQuery(ctx context.Context, method string) (bool, error) {
	v, err := l.query(ctx, method)
	return v.Bool(), err
}

func (l *Locator) stringQuery(ctx context.Context, method string) (string, error) {
	v, err := l.query(ctx, method)
	return v.String(), err
}

func (l *Locator) IsVisible(ctx context.Context) (bool, error) { return l.boolQuery(ctx, "isVisible") }

func (l *Locator) IsEnabled(ctx context.Context) (bool, error) { return l.boolQuery(ctx, "isEnabled") }

func (l *Locator) IsChecked(ctx context.Context) (bool, error) { return l.boolQuery(ctx, "isChecked") }

func (l *Locator) IsEditable(ctx context.Context) (bool, error) { return l.boolQuery(ctx, "isEditable") }

func (l *Locator) InnerText(ctx context.Context) (string, error) { return l.stringQuery(ctx, "innerText") }

func (l *Locator) TextContent(ctx context.Context) (string, error) {
	return l.stringQuery(ctx, "textContent")
}

func (l *Locator) InputValue(ctx context.Context) (string, error) {
	return l.stringQuery(ctx, "inputValue")
}

// IsFocused asks whether the matched element is the document's active element.
func (l *Locator) IsFocused(ctx context.Context) (bool, error) {
	f, err := l.target()
	if err != nil {
		return false, err
	}
	arg, err := serializeArgument(nil)
	if err != nil {
		return false, err
	}
	result, err := f.channel.Send(WithAPIName(ctx, "locator.isFocused"), "evalOnSelector", map[string]any{
		"selector":   l.selector,
		"strict":     true,
		"expression": "el => el === document.activeElement",
		"isFunction": true,
		"arg":        arg,
	})
	if err != nil {
		return false, err
	}
	focused, err := parseValue(gjson.GetBytes(result, "value"))
	if err != nil {
		return false, err
	}
	b, ok := focused.(bool)
	if !ok {
		return false, errext.NewProtocolError(fmt.Sprintf("isFocused of %q returned %T, want bool", l.selector, focused), result, nil)
	}
	return b, nil
}
