package client

import (
	"github.com/tidwall/gjson"

	"mini-playwright/message"
)

// Playwright is the entry object returned by Connection.Initialize.
type Playwright struct {
	*ChannelOwner
}

func newPlaywright(o *ChannelOwner, _ *message.CreateParams) (Object, error) {
	return &Playwright{ChannelOwner: o}, nil
}

func (*Playwright) Kind() Kind { return KindPlaywright }

func (pw *Playwright) Chromium() *BrowserType { return pw.browserType("chromium") }

func (pw *Playwright) Firefox() *BrowserType { return pw.browserType("firefox") }

func (pw *Playwright) WebKit() *BrowserType { return pw.browserType("webkit") }

// browserType returns nil if the driver did not announce the browser type
// or has disposed it.
func (pw *Playwright) browserType(name string) *BrowserType {
	guid := gjson.GetBytes(pw.initializer, name+".guid").String()
	obj, ok := pw.conn.objects.Lookup(guid)
	if !ok {
		return nil
	}
	bt, _ := obj.(*BrowserType)
	return bt
}
