// File: internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// ErrInvalid wraps every validation failure so callers can classify
// configuration problems with errors.Is.
var ErrInvalid = errors.New("invalid configuration")

// Config holds the entire application configuration. It is built once at
// startup (defaults < config file < env < flags) and passed down by value
// or pointer; nothing mutates it after Validate has run.
type Config struct {
	Logger      LoggerConfig      `mapstructure:"logger" yaml:"logger"`
	Browser     BrowserConfig     `mapstructure:"browser" yaml:"browser"`
	Proxy       ProxyConfig       `mapstructure:"proxy" yaml:"proxy"`
	Interaction InteractionConfig `mapstructure:"interaction" yaml:"interaction"`
	Humanoid    HumanoidConfig    `mapstructure:"humanoid" yaml:"humanoid"`
	Capture     CaptureConfig     `mapstructure:"capture" yaml:"capture"`
	Database    DatabaseConfig    `mapstructure:"database" yaml:"database"`
	Runner      RunnerConfig      `mapstructure:"runner" yaml:"runner"`
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

// BrowserConfig holds settings for the Chrome instance backing a session.
type BrowserConfig struct {
	Headless        bool           `mapstructure:"headless" yaml:"headless"`
	ExecPath        string         `mapstructure:"exec_path" yaml:"exec_path"`
	IgnoreTLSErrors bool           `mapstructure:"ignore_tls_errors" yaml:"ignore_tls_errors"`
	Debug           bool           `mapstructure:"debug" yaml:"debug"`
	Args            []string       `mapstructure:"args" yaml:"args"`
	Viewport        map[string]int `mapstructure:"viewport" yaml:"viewport"`
}

// InteractionConfig tunes a single chat interaction session: navigation,
// input discovery, retry budgets, and the response stabilization detector.
type InteractionConfig struct {
	URL               string        `mapstructure:"url" yaml:"url"`
	Model             string        `mapstructure:"model" yaml:"model"`
	NavigationTimeout time.Duration `mapstructure:"navigation_timeout" yaml:"navigation_timeout"`

	// Input discovery. SelectorOverride, when set, replaces the candidate list.
	InputSelectors   []string `mapstructure:"input_selectors" yaml:"input_selectors"`
	SelectorOverride string   `mapstructure:"selector_override" yaml:"selector_override"`
	SendSelectors    []string `mapstructure:"send_selectors" yaml:"send_selectors"`
	ResponseSelector string   `mapstructure:"response_selector" yaml:"response_selector"`

	// Retry budgets per operation class.
	NavRetries         int           `mapstructure:"nav_retries" yaml:"nav_retries"`
	InputRetries       int           `mapstructure:"input_retries" yaml:"input_retries"`
	CaptureRetries     int           `mapstructure:"capture_retries" yaml:"capture_retries"`
	RetryInitialDelay  time.Duration `mapstructure:"retry_initial_delay" yaml:"retry_initial_delay"`
	RetryBackoffFactor float64       `mapstructure:"retry_backoff_factor" yaml:"retry_backoff_factor"`
	ReloadOnInputRetry bool          `mapstructure:"reload_on_input_retry" yaml:"reload_on_input_retry"`

	// Response stabilization. MinGrowthBytes is a heuristic: the byte-length
	// delta that distinguishes a rendering answer from chrome noise. It was
	// tuned against specific chat front ends and may need adjustment per target.
	PollInterval        time.Duration `mapstructure:"poll_interval" yaml:"poll_interval"`
	RequiredStablePolls int           `mapstructure:"required_stable_polls" yaml:"required_stable_polls"`
	MaxResponseWait     time.Duration `mapstructure:"max_response_wait" yaml:"max_response_wait"`
	MinGrowthBytes      int           `mapstructure:"min_growth_bytes" yaml:"min_growth_bytes"`
}

// CaptureConfig controls where and how session artifacts are written.
type CaptureConfig struct {
	OutputDir           string `mapstructure:"output_dir" yaml:"output_dir"`
	SaveHTML            bool   `mapstructure:"save_html" yaml:"save_html"`
	SaveText            bool   `mapstructure:"save_text" yaml:"save_text"`
	ScreenshotOnFailure bool   `mapstructure:"screenshot_on_failure" yaml:"screenshot_on_failure"`
	ScreenshotOnRetry   bool   `mapstructure:"screenshot_on_retry" yaml:"screenshot_on_retry"`
}

// DatabaseConfig enables the optional Postgres response archive when URL is set.
type DatabaseConfig struct {
	URL string `mapstructure:"url" yaml:"url"`
}

// RunnerConfig bounds the batch task runner.
type RunnerConfig struct {
	Concurrency   int     `mapstructure:"concurrency" yaml:"concurrency"`
	RatePerMinute float64 `mapstructure:"rate_per_minute" yaml:"rate_per_minute"`
}

// SetDefaults initializes default values for all configuration parameters.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "specter-cli")
	v.SetDefault("logger.log_file", "")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)

	// -- Browser --
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.ignore_tls_errors", false)
	v.SetDefault("browser.debug", false)
	v.SetDefault("browser.viewport", map[string]int{"width": 1440, "height": 900})

	// -- Proxy --
	v.SetDefault("proxy.enabled", false)
	v.SetDefault("proxy.mode", "none")

	// -- Interaction --
	v.SetDefault("interaction.url", "https://www.perplexity.ai/")
	v.SetDefault("interaction.model", "")
	v.SetDefault("interaction.navigation_timeout", "90s")
	v.SetDefault("interaction.input_selectors", []string{
		"textarea[placeholder]",
		"div[contenteditable='true'][role='textbox']",
		"div[contenteditable='true']",
		"textarea",
		"input[type='text']",
	})
	v.SetDefault("interaction.send_selectors", []string{
		"button[aria-label='Submit']",
		"button[type='submit']",
	})
	v.SetDefault("interaction.selector_override", "")
	v.SetDefault("interaction.response_selector", "")
	v.SetDefault("interaction.nav_retries", 3)
	v.SetDefault("interaction.input_retries", 4)
	v.SetDefault("interaction.capture_retries", 2)
	v.SetDefault("interaction.retry_initial_delay", "2s")
	v.SetDefault("interaction.retry_backoff_factor", 1.8)
	v.SetDefault("interaction.reload_on_input_retry", true)
	v.SetDefault("interaction.poll_interval", "1500ms")
	v.SetDefault("interaction.required_stable_polls", 3)
	v.SetDefault("interaction.max_response_wait", "120s")
	v.SetDefault("interaction.min_growth_bytes", 10)

	// -- Capture --
	v.SetDefault("capture.output_dir", "./responses")
	v.SetDefault("capture.save_html", true)
	v.SetDefault("capture.save_text", true)
	v.SetDefault("capture.screenshot_on_failure", true)
	v.SetDefault("capture.screenshot_on_retry", true)

	// -- Runner --
	v.SetDefault("runner.concurrency", 2)
	v.SetDefault("runner.rate_per_minute", 2.0)

	// Humanoid defaults live in humanoid_config.go.
	setHumanoidDefaults(v)
}

// NewFromViper creates a validated configuration instance from a viper object.
func NewFromViper(v *viper.Viper) (*Config, error) {
	// Bind environment variables for proxy credentials so they never need to
	// appear in a config file.
	v.BindEnv("proxy.server", "SPECTER_PROXY_SERVER")
	v.BindEnv("proxy.username", "SPECTER_PROXY_USERNAME")
	v.BindEnv("proxy.password", "SPECTER_PROXY_PASSWORD")
	v.BindEnv("database.url", "SPECTER_DATABASE_URL")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	return &cfg, nil
}

// NewDefaultConfig creates a configuration struct populated with default values.
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
	if c.Interaction.URL == "" {
		return fmt.Errorf("interaction.url is a required configuration field")
	}
	if c.Interaction.NavigationTimeout <= 0 {
		return fmt.Errorf("interaction.navigation_timeout must be a positive duration")
	}
	if c.Interaction.RetryBackoffFactor <= 1.0 {
		return fmt.Errorf("interaction.retry_backoff_factor must be greater than 1.0")
	}
	if c.Interaction.RetryInitialDelay <= 0 {
		return fmt.Errorf("interaction.retry_initial_delay must be a positive duration")
	}
	if c.Interaction.PollInterval <= 0 {
		return fmt.Errorf("interaction.poll_interval must be a positive duration")
	}
	if c.Interaction.RequiredStablePolls < 1 {
		return fmt.Errorf("interaction.required_stable_polls must be at least 1")
	}
	if c.Interaction.MaxResponseWait <= 0 {
		return fmt.Errorf("interaction.max_response_wait must be a positive duration")
	}
	if c.Runner.Concurrency <= 0 {
		return fmt.Errorf("runner.concurrency must be a positive integer")
	}
	if err := c.Humanoid.Validate(); err != nil {
		return fmt.Errorf("humanoid configuration invalid: %w", err)
	}
	if err := c.Proxy.Validate(); err != nil {
		return fmt.Errorf("proxy configuration invalid: %w", err)
	}
	return nil
}
