// CLAUDE:SUMMARY Defines flowrec daemon config structs and parses YAML configuration files with defaults.
package recorder

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/hazyhaar/flowrec/flowmap"
	"github.com/hazyhaar/flowrec/locator"
)

// Config is the top-level flowrec configuration.
type Config struct {
	Browser   BrowserConfig   `yaml:"browser"`
	Capture   CaptureConfig   `yaml:"capture"`
	Recording RecordingConfig `yaml:"recording"`
	Compiler  CompilerConfig  `yaml:"compiler"`
	Store     StoreConfig     `yaml:"store"`
	Export    ExportConfig    `yaml:"export"`
	Panel     PanelConfig     `yaml:"panel"`
}

// BrowserConfig controls Chrome lifecycle.
type BrowserConfig struct {
	Remote      string `yaml:"remote"` // CDP websocket URL; empty launches a local Chrome
	Headful     bool   `yaml:"headful"`
	Stealth     bool   `yaml:"stealth"`
	XvfbDisplay string `yaml:"xvfb_display"`
	StartURL    string `yaml:"start_url"`
}

// CaptureConfig controls the in-page capture layer.
type CaptureConfig struct {
	Settle           time.Duration `yaml:"settle"`             // forms snapshot delay after navigation
	MaxDocumentBytes int           `yaml:"max_document_bytes"` // larger page payloads are dropped
	Screenshots      string        `yaml:"screenshots"`        // checkpoint directory; empty disables
}

// RecordingConfig controls the session aggregator.
type RecordingConfig struct {
	PersistDebounce time.Duration `yaml:"persist_debounce"`
	QueueSize       int           `yaml:"queue_size"`
}

// CompilerConfig holds the tunable policy constants.
type CompilerConfig struct {
	DebounceWindow time.Duration `yaml:"debounce_window"`
	MaxTextLen     int           `yaml:"max_text_len"`
	MaxNameKeyLen  int           `yaml:"max_name_key_len"`
	MaxFormExcerpt int           `yaml:"max_form_excerpt"`
}

type StoreConfig struct {
	Path        string        `yaml:"path"`
	BusyTimeout time.Duration `yaml:"busy_timeout"`
}

type ExportConfig struct {
	Dir string `yaml:"dir"`
}

// PanelConfig controls the operator surface.
type PanelConfig struct {
	Addr         string `yaml:"addr"`
	PasswordHash string `yaml:"password_hash"` // bcrypt; empty disables basic auth
	MCP          string `yaml:"mcp"`           // "" | stdio | http
}

// LoadConfigFile reads a YAML configuration file.
func LoadConfigFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseConfig(data)
}

// ParseConfig parses YAML configuration and applies defaults.
func ParseConfig(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("recorder: parse config: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// DefaultConfig returns the configuration used when no file is given.
func DefaultConfig() *Config {
	var cfg Config
	cfg.applyDefaults()
	return &cfg
}

func (c *Config) applyDefaults() {
	if c.Browser.XvfbDisplay == "" {
		c.Browser.XvfbDisplay = ":99"
	}
	if c.Capture.Settle <= 0 {
		c.Capture.Settle = 800 * time.Millisecond
	}
	if c.Capture.MaxDocumentBytes <= 0 {
		c.Capture.MaxDocumentBytes = 4 << 20
	}
	if c.Recording.PersistDebounce <= 0 {
		c.Recording.PersistDebounce = 500 * time.Millisecond
	}
	if c.Recording.QueueSize <= 0 {
		c.Recording.QueueSize = 1024
	}
	if c.Compiler.DebounceWindow <= 0 {
		c.Compiler.DebounceWindow = 300 * time.Millisecond
	}
	if c.Compiler.MaxTextLen <= 0 {
		c.Compiler.MaxTextLen = 50
	}
	if c.Compiler.MaxNameKeyLen <= 0 {
		c.Compiler.MaxNameKeyLen = 120
	}
	if c.Compiler.MaxFormExcerpt <= 0 {
		c.Compiler.MaxFormExcerpt = 200
	}
	if c.Store.Path == "" {
		c.Store.Path = "flowrec.db"
	}
	if c.Store.BusyTimeout <= 0 {
		c.Store.BusyTimeout = 5 * time.Second
	}
	if c.Export.Dir == "" {
		c.Export.Dir = "exports"
	}
	if c.Panel.Addr == "" {
		c.Panel.Addr = "127.0.0.1:8787"
	}
}

func (c *Config) validate() error {
	switch c.Panel.MCP {
	case "", "stdio", "http":
	default:
		return fmt.Errorf("recorder: panel.mcp: unknown transport %q", c.Panel.MCP)
	}
	return nil
}

// CompileOptions maps the compiler section onto flowmap options.
func (c *Config) CompileOptions() flowmap.Options {
	return flowmap.Options{
		DebounceWindow: c.Compiler.DebounceWindow,
		MaxNameKeyLen:  c.Compiler.MaxNameKeyLen,
	}
}

// LocatorOptions maps the compiler section onto resolver options.
func (c *Config) LocatorOptions() locator.Options {
	return locator.Options{
		MaxTextLen:     c.Compiler.MaxTextLen,
		MaxFormExcerpt: c.Compiler.MaxFormExcerpt,
	}
}
