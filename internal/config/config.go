// File: internal/config/config.go
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"

	"github.com/0xfaultline/chatmux/api/schemas"
)

// Config holds the entire application configuration.
type Config struct {
	Logger     LoggerConfig     `mapstructure:"logger" yaml:"logger"`
	Server     ServerConfig     `mapstructure:"server" yaml:"server"`
	Database   DatabaseConfig   `mapstructure:"database" yaml:"database"`
	Browser    BrowserConfig    `mapstructure:"browser" yaml:"browser"`
	Target     TargetConfig     `mapstructure:"target" yaml:"target"`
	Detector   DetectorConfig   `mapstructure:"detector" yaml:"detector"`
	Discussion DiscussionConfig `mapstructure:"discussion" yaml:"discussion"`
}

// LoggerConfig holds all the configuration for the logger.
type LoggerConfig struct {
	Level       string `mapstructure:"level" yaml:"level"`
	Format      string `mapstructure:"format" yaml:"format"`
	AddSource   bool   `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int    `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int    `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int    `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool   `mapstructure:"compress" yaml:"compress"`
}

// ServerConfig tunes the HTTP surface.
type ServerConfig struct {
	Addr            string        `mapstructure:"addr" yaml:"addr"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout" yaml:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout" yaml:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
}

// DatabaseConfig holds the persistence connection details. An empty URL runs
// the service without persistence; saves are skipped, not errored.
type DatabaseConfig struct {
	URL string `mapstructure:"url" yaml:"url"`
}

// BrowserConfig describes the externally owned browser this process attaches
// to. The browser is never started or stopped from here.
type BrowserConfig struct {
	DevtoolsURL       string        `mapstructure:"devtools_url" yaml:"devtools_url"`
	NavigationTimeout time.Duration `mapstructure:"navigation_timeout" yaml:"navigation_timeout"`
	// SendRatePerMinute throttles outbound messages per agent so a discussion
	// burst does not trip the target application's abuse heuristics.
	SendRatePerMinute int `mapstructure:"send_rate_per_minute" yaml:"send_rate_per_minute"`
}

// TargetConfig is the de-facto DOM contract with the target web application.
// The selector lists are ordered by priority; the variance across entries is
// the target's (version and locale dependent markup), not ours. Keeping them
// as data lets the contract evolve without touching orchestration logic.
type TargetConfig struct {
	BaseURL         string        `mapstructure:"base_url" yaml:"base_url"`
	AgentPathPrefix string        `mapstructure:"agent_path_prefix" yaml:"agent_path_prefix"`
	VariantTimeout  time.Duration `mapstructure:"variant_timeout" yaml:"variant_timeout"`

	InputSelectors      []string `mapstructure:"input_selectors" yaml:"input_selectors"`
	SendButtonSelectors []string `mapstructure:"send_button_selectors" yaml:"send_button_selectors"`
	StopSelectors       []string `mapstructure:"stop_selectors" yaml:"stop_selectors"`
	BusySelectors       []string `mapstructure:"busy_selectors" yaml:"busy_selectors"`
	OverlaySelectors    []string `mapstructure:"overlay_selectors" yaml:"overlay_selectors"`
	// MessageSelectors is the extraction cascade: each entry is tried in
	// order, taking the last matching node's rendered text.
	MessageSelectors []string `mapstructure:"message_selectors" yaml:"message_selectors"`
	// StoppedPhrases mark responses the target renders when the user aborted
	// generation; extraction treats matching text as no answer.
	StoppedPhrases []string `mapstructure:"stopped_phrases" yaml:"stopped_phrases"`
}

// DetectorConfig names the completion detector's thresholds explicitly.
type DetectorConfig struct {
	PollInterval    time.Duration `mapstructure:"poll_interval" yaml:"poll_interval"`
	Ceiling         time.Duration `mapstructure:"ceiling" yaml:"ceiling"`
	GraceDelay      time.Duration `mapstructure:"grace_delay" yaml:"grace_delay"`
	SettleDelay     time.Duration `mapstructure:"settle_delay" yaml:"settle_delay"`
	StableThreshold int           `mapstructure:"stable_threshold" yaml:"stable_threshold"`
	// LenientTimeout keeps the original best-effort behavior: a timed-out wait
	// returns whatever text was last extracted instead of failing the send.
	// Disable to surface timeouts as errors.
	LenientTimeout bool `mapstructure:"lenient_timeout" yaml:"lenient_timeout"`
}

// DiscussionConfig fixes the discussion panel and the designated lead.
type DiscussionConfig struct {
	LeadAccount string         `mapstructure:"lead_account" yaml:"lead_account"`
	Panel       []schemas.Role `mapstructure:"panel" yaml:"panel"`
}

// SetDefaults initializes default values for all configuration parameters.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "chatmux")
	v.SetDefault("logger.log_file", "")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)

	// -- Server --
	v.SetDefault("server.addr", ":8600")
	v.SetDefault("server.read_timeout", "30s")
	// Discussions poll the browser for minutes; the write timeout must outlive
	// a full serial round plus the detector ceiling.
	v.SetDefault("server.write_timeout", "30m")
	v.SetDefault("server.shutdown_timeout", "15s")

	// -- Browser --
	v.SetDefault("browser.devtools_url", "http://127.0.0.1:9222")
	v.SetDefault("browser.navigation_timeout", "45s")
	v.SetDefault("browser.send_rate_per_minute", 12)

	// -- Target --
	v.SetDefault("target.base_url", "https://chat.example.com")
	v.SetDefault("target.agent_path_prefix", "a")
	v.SetDefault("target.variant_timeout", "5s")
	v.SetDefault("target.input_selectors", []string{
		`div#prompt-textarea[contenteditable="true"]`,
		`textarea[data-testid="chat-input"]`,
		`form textarea[placeholder]`,
	})
	v.SetDefault("target.send_button_selectors", []string{
		`button[data-testid="send-button"]`,
		`button[aria-label="Send message"]`,
		`form button[type="submit"]`,
	})
	v.SetDefault("target.stop_selectors", []string{
		`button[data-testid="stop-button"]`,
		`button[aria-label="Stop generating"]`,
	})
	v.SetDefault("target.busy_selectors", []string{
		`.result-streaming`,
		`[data-state="streaming"]`,
	})
	v.SetDefault("target.overlay_selectors", []string{
		`div[role="dialog"] button[aria-label="Close"]`,
		`button[data-testid="dismiss-welcome"]`,
		`div[class*="popover"] button[class*="close"]`,
	})
	v.SetDefault("target.message_selectors", []string{
		`main [data-message-author-role="assistant"]`,
		`main div[data-testid^="conversation-turn"]`,
		`main .markdown`,
	})
	v.SetDefault("target.stopped_phrases", []string{
		"You stopped generating",
		"Generation was stopped",
	})

	// -- Detector --
	v.SetDefault("detector.poll_interval", "500ms")
	v.SetDefault("detector.ceiling", "180s")
	v.SetDefault("detector.grace_delay", "3s")
	v.SetDefault("detector.settle_delay", "2s")
	v.SetDefault("detector.stable_threshold", 5)
	v.SetDefault("detector.lenient_timeout", true)

	// -- Discussion --
	v.SetDefault("discussion.lead_account", "1")
	v.SetDefault("discussion.panel", []map[string]any{
		{"account_id": "1", "display_name": "Analyst", "description": "a rigorous analyst who grounds every claim in evidence"},
		{"account_id": "2", "display_name": "Engineer", "description": "a pragmatic engineer focused on what can actually be built"},
		{"account_id": "3", "display_name": "Skeptic", "description": "a constructive skeptic probing for risks and blind spots"},
	})
}

// NewFromViper creates a validated configuration from a viper instance.
func NewFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// NewDefaultConfig returns a configuration populated with defaults only.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// Validate checks the configuration for required fields and sane values.
func (c *Config) Validate() error {
	if c.Browser.DevtoolsURL == "" {
		return fmt.Errorf("browser.devtools_url is required")
	}
	if c.Target.BaseURL == "" {
		return fmt.Errorf("target.base_url is required")
	}
	if len(c.Target.InputSelectors) == 0 {
		return fmt.Errorf("target.input_selectors must list at least one variant")
	}
	if c.Detector.PollInterval <= 0 || c.Detector.Ceiling <= 0 {
		return fmt.Errorf("detector.poll_interval and detector.ceiling must be positive durations")
	}
	if c.Detector.StableThreshold <= 0 {
		return fmt.Errorf("detector.stable_threshold must be a positive integer")
	}
	if len(c.Discussion.Panel) != 3 {
		return fmt.Errorf("discussion.panel must contain exactly 3 roles, got %d", len(c.Discussion.Panel))
	}
	lead := false
	for _, r := range c.Discussion.Panel {
		if r.AccountID == "" {
			return fmt.Errorf("discussion.panel entries require an account_id")
		}
		if r.AccountID == c.Discussion.LeadAccount {
			lead = true
		}
	}
	if !lead {
		return fmt.Errorf("discussion.lead_account %q is not on the panel", c.Discussion.LeadAccount)
	}
	return nil
}
