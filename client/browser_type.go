package client

import (
	"context"

	"github.com/tidwall/gjson"

	"mini-playwright/message"
)

// BrowserType launches one browser engine.
type BrowserType struct {
	*ChannelOwner
	name           string
	executablePath string
}

func newBrowserType(o *ChannelOwner, p *message.CreateParams) (Object, error) {
	return &BrowserType{
		ChannelOwner:   o,
		name:           gjson.GetBytes(p.Initializer, "name").String(),
		executablePath: gjson.GetBytes(p.Initializer, "executablePath").String(),
	}, nil
}

func (*BrowserType) Kind() Kind { return KindBrowserType }

// Name is "chromium", "firefox" or "webkit".
func (bt *BrowserType) Name() string { return bt.name }

func (bt *BrowserType) ExecutablePath() string { return bt.executablePath }

// LaunchOptions are the launch parameters the runtime forwards untouched.
// Zero fields are omitted.
type LaunchOptions struct {
	Headless *bool    `json:"headless,omitempty"`
	Args     []string `json:"args,omitempty"`
	Channel  string   `json:"channel,omitempty"`
	// Timeout in milliseconds, applied by the driver.
	Timeout float64 `json:"timeout,omitempty"`
}

// Launch starts a browser.
func (bt *BrowserType) Launch(ctx context.Context, opts LaunchOptions) (*Browser, error) {
	return sendReturnAs[*Browser](WithAPIName(ctx, "browserType.launch"), bt.channel, "launch", opts, "browser")
}
