// Package config holds the tunables of a driver session.
//
// Values are resolved in three steps, later steps winning:
//
//	Default() → Load(path) (YAML, missing keys keep their defaults) → FromEnv (PLAYWRIGHT_*)
package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"github.com/mstoykov/envconfig"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"mini-playwright/codec"
	"mini-playwright/errext"
	"mini-playwright/protocol"
)

// Config is the full set of session options.
type Config struct {
	// Codec selects the payload serializer: "json" or "jsoniter".
	Codec string `yaml:"codec" envconfig:"PLAYWRIGHT_CODEC"`
	// MaxFrameSize bounds a single inbound frame, in bytes.
	MaxFrameSize uint32 `yaml:"maxFrameSize" envconfig:"PLAYWRIGHT_MAX_FRAME_SIZE"`

	LogLevel          string `yaml:"logLevel" envconfig:"PLAYWRIGHT_LOG_LEVEL"`
	LogCategoryFilter string `yaml:"logCategoryFilter" envconfig:"PLAYWRIGHT_LOG_CATEGORY_FILTER"`

	// SDKLanguage is reported to the driver during the initialize handshake.
	SDKLanguage string `yaml:"sdkLanguage" envconfig:"PLAYWRIGHT_SDK_LANGUAGE"`

	// CallTimeout bounds how long a caller waits for one response. Zero waits forever.
	CallTimeout time.Duration `yaml:"callTimeout" envconfig:"PLAYWRIGHT_CALL_TIMEOUT"`
	// RateLimit caps outbound calls per second. Zero disables the limiter.
	RateLimit float64 `yaml:"rateLimit" envconfig:"PLAYWRIGHT_RATE_LIMIT"`
	RateBurst int     `yaml:"rateBurst" envconfig:"PLAYWRIGHT_RATE_BURST"`

	ExpectTimeout      time.Duration `yaml:"expectTimeout" envconfig:"PLAYWRIGHT_EXPECT_TIMEOUT"`
	ExpectPollInterval time.Duration `yaml:"expectPollInterval" envconfig:"PLAYWRIGHT_EXPECT_POLL_INTERVAL"`

	Metrics bool `yaml:"metrics" envconfig:"PLAYWRIGHT_METRICS"`
	Tracing bool `yaml:"tracing" envconfig:"PLAYWRIGHT_TRACING"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Codec:              "json",
		MaxFrameSize:       protocol.DefaultMaxFrameSize,
		LogLevel:           "info",
		SDKLanguage:        "javascript",
		RateBurst:          16,
		ExpectTimeout:      5 * time.Second,
		ExpectPollInterval: 100 * time.Millisecond,
	}
}

// Load reads a YAML file over the defaults.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("reading config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parsing config %s: %w", path, err)
	}
	return cfg, nil
}

// FromEnv applies PLAYWRIGHT_* environment variables over cfg. Variables that
// are not set leave the corresponding field untouched.
func FromEnv(cfg Config) (Config, error) {
	if err := envconfig.Process("", &cfg); err != nil {
		return cfg, fmt.Errorf("reading environment: %w", err)
	}
	return cfg, nil
}

// Validate reports the first invalid option.
func (c Config) Validate() error {
	if _, err := codec.ParseCodecType(c.Codec); err != nil {
		return errext.InvalidArgument("codec: %v", err)
	}
	if c.MaxFrameSize == 0 {
		return errext.InvalidArgument("maxFrameSize must be positive")
	}
	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		return errext.InvalidArgument("logLevel: %v", err)
	}
	if _, err := c.CategoryFilter(); err != nil {
		return err
	}
	if c.CallTimeout < 0 {
		return errext.InvalidArgument("callTimeout %s is negative", c.CallTimeout)
	}
	if c.RateLimit < 0 {
		return errext.InvalidArgument("rateLimit %v is negative", c.RateLimit)
	}
	if c.RateLimit > 0 && c.RateBurst <= 0 {
		return errext.InvalidArgument("rateBurst must be positive when rateLimit is set")
	}
	if c.ExpectTimeout < 0 || c.ExpectPollInterval < 0 {
		return errext.InvalidArgument("expect durations must not be negative")
	}
	return nil
}

// CategoryFilter compiles LogCategoryFilter. An empty filter yields nil.
func (c Config) CategoryFilter() (*regexp.Regexp, error) {
	if c.LogCategoryFilter == "" {
		return nil, nil
	}
	re, err := regexp.Compile(c.LogCategoryFilter)
	if err != nil {
		return nil, errext.InvalidArgument("logCategoryFilter: %v", err)
	}
	return re, nil
}
