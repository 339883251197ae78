// Package config loads and validates the bot configuration.
package config

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mrrp-bot/mrrp/internal/responses"
	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/viper"
)

// DefaultPath is where the bot looks for its config file.
const DefaultPath = "./config.toml"

// EnvPrefix prefixes environment overrides, e.g. MRRP_TOKEN.
const EnvPrefix = "MRRP"

//go:embed default.toml
var defaultTOML []byte

var (
	// ErrConfigNotFound is returned when the config file does not exist.
	ErrConfigNotFound = errors.New("config file not found")
	// ErrConfigExists is returned when WriteDefault would overwrite a file.
	ErrConfigExists = errors.New("config file already exists")
)

// ErrorPolicy selects how the polling loop reacts to failed requests.
type ErrorPolicy string

const (
	// ErrorPolicyFatal stops the bot on the first failure.
	ErrorPolicyFatal ErrorPolicy = "fatal"
	// ErrorPolicySkip logs failures, skips the item and keeps polling.
	ErrorPolicySkip ErrorPolicy = "skip"
)

// Config is the complete bot configuration.
type Config struct {
	Instance           string           `mapstructure:"instance" toml:"instance"`
	MisskeyInstance    string           `mapstructure:"misskey_instance" toml:"misskey_instance"`
	Token              string           `mapstructure:"token" toml:"token"`
	PollingInterval    int              `mapstructure:"polling_interval" toml:"polling_interval"`
	StartupDelay       int              `mapstructure:"startup_delay" toml:"startup_delay"`
	Username           string           `mapstructure:"username" toml:"username"`
	OnError            ErrorPolicy      `mapstructure:"on_error" toml:"on_error"`
	DismissAfterReply  bool             `mapstructure:"dismiss_after_reply" toml:"dismiss_after_reply"`
	UseContentFallback bool             `mapstructure:"use_content_fallback" toml:"use_content_fallback"`
	MaxRegenerations   int              `mapstructure:"max_regenerations" toml:"max_regenerations"`
	ReplyRatePerSecond float64          `mapstructure:"reply_rate_per_second" toml:"reply_rate_per_second"`
	ReplyBurst         int              `mapstructure:"reply_burst" toml:"reply_burst"`
	Database           string           `mapstructure:"database" toml:"database"`
	RequestTimeout     int              `mapstructure:"request_timeout" toml:"request_timeout"`
	LogLevel           string           `mapstructure:"log_level" toml:"log_level"`
	LogFormat          string           `mapstructure:"log_format" toml:"log_format"`
	Responses          []responses.Rule `mapstructure:"responses" toml:"responses"`
}

// DefaultConfig returns the built-in configuration.
func DefaultConfig() *Config {
	var cfg Config
	if err := toml.Unmarshal(defaultTOML, &cfg); err != nil {
		panic(fmt.Sprintf("config: embedded default is invalid: %v", err))
	}
	return &cfg
}

// DefaultTOML returns the commented default config file.
func DefaultTOML() []byte {
	return bytes.Clone(defaultTOML)
}

// Load reads the config file at path, applies MRRP_ environment overrides on
// top of it and validates the result. Keys missing from the file keep their
// defaults. TOML, YAML and JSON files are accepted by extension.
func Load(path string) (*Config, error) {
	v := viper.New()
	var defaults map[string]any
	if err := toml.Unmarshal(defaultTOML, &defaults); err != nil {
		return nil, fmt.Errorf("read default config: %w", err)
	}
	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	if strings.TrimSpace(path) != "" {
		if _, err := os.Stat(path); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("%w: %s (create one with --create-config)", ErrConfigNotFound, path)
			}
			return nil, fmt.Errorf("stat config %s: %w", path, err)
		}
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// WriteDefault writes the default config file to path. An existing file is
// only replaced when force is set.
func WriteDefault(path string, force bool) error {
	if strings.TrimSpace(path) == "" {
		return fmt.Errorf("config path is required")
	}
	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("%w: %s (use --force to overwrite)", ErrConfigExists, path)
		}
	}
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config dir: %w", err)
		}
	}
	// The file holds an access token.
	if err := os.WriteFile(path, defaultTOML, 0o600); err != nil {
		return fmt.Errorf("write config %s: %w", path, err)
	}
	return nil
}

// Validate checks the config for errors, including the response table.
func (c *Config) Validate() error {
	var errs []error
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	if err := validateBaseURL("instance", c.Instance, true); err != nil {
		errs = append(errs, err)
	}
	if err := validateBaseURL("misskey_instance", c.MisskeyInstance, false); err != nil {
		errs = append(errs, err)
	}
	if strings.TrimSpace(c.Token) == "" {
		add("token is required")
	}
	if c.PollingInterval < 0 {
		add("polling_interval must not be negative, got %d", c.PollingInterval)
	}
	if c.StartupDelay < 0 {
		add("startup_delay must not be negative, got %d", c.StartupDelay)
	}
	switch c.OnError {
	case ErrorPolicyFatal, ErrorPolicySkip:
	default:
		add("on_error must be %q or %q, got %q", ErrorPolicyFatal, ErrorPolicySkip, c.OnError)
	}
	if c.MaxRegenerations < 0 {
		add("max_regenerations must not be negative, got %d", c.MaxRegenerations)
	}
	if c.ReplyRatePerSecond < 0 {
		add("reply_rate_per_second must not be negative, got %g", c.ReplyRatePerSecond)
	}
	if c.ReplyBurst < 0 {
		add("reply_burst must not be negative, got %d", c.ReplyBurst)
	}
	if c.RequestTimeout < 0 {
		add("request_timeout must not be negative, got %d", c.RequestTimeout)
	}
	switch strings.ToLower(c.LogFormat) {
	case "", "auto", "console", "json":
	default:
		add("log_format must be auto, console or json, got %q", c.LogFormat)
	}
	if _, err := responses.NewTable(c.Responses); err != nil {
		errs = append(errs, err)
	}

	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("invalid config: %w", errors.Join(errs...))
}

// Table builds the response table.
func (c *Config) Table() (*responses.Table, error) {
	return responses.NewTable(c.Responses)
}

// MisskeyURL returns the secondary instance, defaulting to the primary.
func (c *Config) MisskeyURL() string {
	if strings.TrimSpace(c.MisskeyInstance) != "" {
		return c.MisskeyInstance
	}
	return c.Instance
}

// PollInterval returns polling_interval as a duration.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.PollingInterval) * time.Second
}

// StartupDelayDuration returns startup_delay as a duration.
func (c *Config) StartupDelayDuration() time.Duration {
	return time.Duration(c.StartupDelay) * time.Second
}

// Timeout returns request_timeout as a duration.
func (c *Config) Timeout() time.Duration {
	return time.Duration(c.RequestTimeout) * time.Second
}

func validateBaseURL(field, raw string, required bool) error {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		if required {
			return fmt.Errorf("%s is required", field)
		}
		return nil
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%s is not a valid URL: %w", field, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%s must use http or https, got %q", field, raw)
	}
	if u.Host == "" {
		return fmt.Errorf("%s must include a host, got %q", field, raw)
	}
	return nil
}
