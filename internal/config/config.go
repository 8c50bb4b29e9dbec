// File: internal/config/config.go
package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Interface defines the contract for accessing application configuration.
// This allows for dependency injection and mocking in tests.
type Interface interface {
	Logger() LoggerConfig
	Browser() BrowserConfig
	Form() FormConfig
	Pacing() PacingConfig
	Storage() StorageConfig
	Fill() FillConfig
	Server() ServerConfig

	// Browser Setters
	SetBrowserHeadless(bool)
	SetBrowserConcurrency(int)

	// Storage Setters
	SetStorageBackend(string)
	SetStorageFormsDir(string)

	// Fill Setters
	SetFillMaxRepetitions(int)

	// Server Setters
	SetServerAddr(string)
}

// Config holds the entire application configuration.
type Config struct {
	LoggerCfg  LoggerConfig  `mapstructure:"logger" yaml:"logger"`
	BrowserCfg BrowserConfig `mapstructure:"browser" yaml:"browser"`
	FormCfg    FormConfig    `mapstructure:"form" yaml:"form"`
	PacingCfg  PacingConfig  `mapstructure:"pacing" yaml:"pacing"`
	StorageCfg StorageConfig `mapstructure:"storage" yaml:"storage"`
	FillCfg    FillConfig    `mapstructure:"fill" yaml:"fill"`
	ServerCfg  ServerConfig  `mapstructure:"server" yaml:"server"`
}

var _ Interface = (*Config)(nil)

// --- Interface Method Implementations (Getters) ---

func (c *Config) Logger() LoggerConfig   { return c.LoggerCfg }
func (c *Config) Browser() BrowserConfig { return c.BrowserCfg }
func (c *Config) Form() FormConfig       { return c.FormCfg }
func (c *Config) Pacing() PacingConfig   { return c.PacingCfg }
func (c *Config) Storage() StorageConfig { return c.StorageCfg }
func (c *Config) Fill() FillConfig       { return c.FillCfg }
func (c *Config) Server() ServerConfig   { return c.ServerCfg }

// --- Interface Method Implementations (Setters) ---

func (c *Config) SetBrowserHeadless(b bool)   { c.BrowserCfg.Headless = b }
func (c *Config) SetBrowserConcurrency(n int) { c.BrowserCfg.Concurrency = n }
func (c *Config) SetStorageBackend(s string)  { c.StorageCfg.Backend = s }
func (c *Config) SetStorageFormsDir(s string) { c.StorageCfg.FormsDir = s }
func (c *Config) SetFillMaxRepetitions(n int) { c.FillCfg.MaxRepetitions = n }
func (c *Config) SetServerAddr(s string)      { c.ServerCfg.Addr = s }

// LoggerConfig holds all the configuration for the logger.
type LoggerConfig struct {
	Level       string      `mapstructure:"level" yaml:"level"`
	Format      string      `mapstructure:"format" yaml:"format"`
	AddSource   bool        `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string      `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string      `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int         `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int         `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int         `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool        `mapstructure:"compress" yaml:"compress"`
	Colors      ColorConfig `mapstructure:"colors" yaml:"colors"`
}

// ColorConfig defines the color settings for different log levels.
type ColorConfig struct {
	Debug  string `mapstructure:"debug" yaml:"debug"`
	Info   string `mapstructure:"info" yaml:"info"`
	Warn   string `mapstructure:"warn" yaml:"warn"`
	Error  string `mapstructure:"error" yaml:"error"`
	DPanic string `mapstructure:"dpanic" yaml:"dpanic"`
	Panic  string `mapstructure:"panic" yaml:"panic"`
	Fatal  string `mapstructure:"fatal" yaml:"fatal"`
}

// BrowserConfig controls the headless browser used for extraction and replay.
type BrowserConfig struct {
	Headless          bool          `mapstructure:"headless" yaml:"headless"`
	IgnoreTLSErrors   bool          `mapstructure:"ignore_tls_errors" yaml:"ignore_tls_errors"`
	Args              []string      `mapstructure:"args" yaml:"args"`
	UserAgents        []string      `mapstructure:"user_agents" yaml:"user_agents"`
	NavigationTimeout time.Duration `mapstructure:"navigation_timeout" yaml:"navigation_timeout"`
	// Concurrency bounds how many browser jobs may run at once across all requesters.
	Concurrency int `mapstructure:"concurrency" yaml:"concurrency"`
	// HumanizeClicks moves the cursor along a curved path before each click.
	HumanizeClicks bool `mapstructure:"humanize_clicks" yaml:"humanize_clicks"`
}

// SelectorsConfig locates the parts of a rendered form.
type SelectorsConfig struct {
	Container string `mapstructure:"container" yaml:"container"`
	Title     string `mapstructure:"title" yaml:"title"`
	Question  string `mapstructure:"question" yaml:"question"`
	Prompt    string `mapstructure:"prompt" yaml:"prompt"`
	Option    string `mapstructure:"option" yaml:"option"`
	Input     string `mapstructure:"input" yaml:"input"`
	Submit    string `mapstructure:"submit" yaml:"submit"`
}

// MarkersConfig holds the markup fragments that classify a question block.
type MarkersConfig struct {
	SingleChoice string `mapstructure:"single_choice" yaml:"single_choice"`
	MultiChoice  string `mapstructure:"multi_choice" yaml:"multi_choice"`
}

// FormConfig describes the form-rendering structure the extractor and replayer target.
type FormConfig struct {
	Selectors   SelectorsConfig `mapstructure:"selectors" yaml:"selectors"`
	Markers     MarkersConfig   `mapstructure:"markers" yaml:"markers"`
	LinkPattern string          `mapstructure:"link_pattern" yaml:"link_pattern"`
}

// PacingConfig holds the randomized delay ranges of a replay run.
type PacingConfig struct {
	OptionPauseMin   time.Duration `mapstructure:"option_pause_min" yaml:"option_pause_min"`
	OptionPauseMax   time.Duration `mapstructure:"option_pause_max" yaml:"option_pause_max"`
	QuestionPauseMin time.Duration `mapstructure:"question_pause_min" yaml:"question_pause_min"`
	QuestionPauseMax time.Duration `mapstructure:"question_pause_max" yaml:"question_pause_max"`
	Settle           time.Duration `mapstructure:"settle" yaml:"settle"`
	// Seed fixes the random source when non-zero.
	Seed int64 `mapstructure:"seed" yaml:"seed"`
}

// StorageConfig selects where schemas and the browser session artifact live.
type StorageConfig struct {
	Backend           string `mapstructure:"backend" yaml:"backend"`
	FormsDir          string `mapstructure:"forms_dir" yaml:"forms_dir"`
	DatabaseURL       string `mapstructure:"database_url" yaml:"database_url"`
	SessionFile       string `mapstructure:"session_file" yaml:"session_file"`
	SessionResetEvery int    `mapstructure:"session_reset_every" yaml:"session_reset_every"`
}

// Storage backends.
const (
	BackendFile     = "file"
	BackendPostgres = "postgres"
)

// FillConfig bounds repeated submission.
type FillConfig struct {
	MaxRepetitions int `mapstructure:"max_repetitions" yaml:"max_repetitions"`
}

// ServerConfig configures the HTTP chat front end.
type ServerConfig struct {
	Addr      string  `mapstructure:"addr" yaml:"addr"`
	JWTSecret string  `mapstructure:"jwt_secret" yaml:"-"`
	RateLimit float64 `mapstructure:"rate_limit" yaml:"rate_limit"`
	RateBurst int     `mapstructure:"rate_burst" yaml:"rate_burst"`
}

// NewDefaultConfig creates a new configuration populated only with default values.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// SetDefaults registers the default value of every configuration key.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "formrelay")
	v.SetDefault("logger.log_file", "")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)
	v.SetDefault("logger.colors.debug", "cyan")
	v.SetDefault("logger.colors.info", "green")
	v.SetDefault("logger.colors.warn", "yellow")
	v.SetDefault("logger.colors.error", "red")
	v.SetDefault("logger.colors.dpanic", "magenta")
	v.SetDefault("logger.colors.panic", "magenta")
	v.SetDefault("logger.colors.fatal", "magenta")

	// -- Browser --
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.ignore_tls_errors", false)
	v.SetDefault("browser.navigation_timeout", "60s")
	v.SetDefault("browser.concurrency", 2)
	v.SetDefault("browser.humanize_clicks", true)

	// -- Form (Yandex Forms markup) --
	v.SetDefault("form.selectors.container", ".SurveyPage")
	v.SetDefault("form.selectors.title", ".SurveyPage-Name")
	v.SetDefault("form.selectors.question", ".QuestionMarkup")
	v.SetDefault("form.selectors.prompt", ".QuestionMarkup-Column_column_left p")
	v.SetDefault("form.selectors.option", "label")
	v.SetDefault("form.selectors.input", "input")
	v.SetDefault("form.selectors.submit", `button[type="submit"]`)
	v.SetDefault("form.markers.single_choice", "radiogroup")
	v.SetDefault("form.markers.multi_choice", "checkbox")
	v.SetDefault("form.link_pattern", `https?://(?:www\.)?forms\.yandex\.[a-z]{2,}\S*`)

	// -- Pacing --
	v.SetDefault("pacing.option_pause_min", "200ms")
	v.SetDefault("pacing.option_pause_max", "1500ms")
	v.SetDefault("pacing.question_pause_min", "1s")
	v.SetDefault("pacing.question_pause_max", "2500ms")
	v.SetDefault("pacing.settle", "2s")
	v.SetDefault("pacing.seed", 0)

	// -- Storage --
	v.SetDefault("storage.backend", BackendFile)
	v.SetDefault("storage.forms_dir", "~/.formrelay/forms")
	v.SetDefault("storage.database_url", "")
	v.SetDefault("storage.session_file", "~/.formrelay/storage.json")
	v.SetDefault("storage.session_reset_every", 10)

	// -- Fill --
	v.SetDefault("fill.max_repetitions", 50)

	// -- Server --
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.jwt_secret", "")
	v.SetDefault("server.rate_limit", 1.0)
	v.SetDefault("server.rate_burst", 5)
}

// NewConfigFromViper creates a new configuration instance from a viper object.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config

	// Bind environment variables for sensitive data
	_ = v.BindEnv("storage.database_url", "FORMRELAY_DATABASE_URL")
	_ = v.BindEnv("server.jwt_secret", "FORMRELAY_JWT_SECRET")

	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	// Manually load the secret if Unmarshal didn't pick it up
	if cfg.ServerCfg.JWTSecret == "" {
		cfg.ServerCfg.JWTSecret = os.Getenv("FORMRELAY_JWT_SECRET")
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Validate checks the configuration for required fields and sane values.
func (c *Config) Validate() error {
	if c.BrowserCfg.Concurrency <= 0 {
		return fmt.Errorf("browser.concurrency must be a positive integer")
	}
	if c.BrowserCfg.NavigationTimeout <= 0 {
		return fmt.Errorf("browser.navigation_timeout must be a positive duration")
	}
	if err := c.FormCfg.Validate(); err != nil {
		return fmt.Errorf("form configuration invalid: %w", err)
	}
	if err := c.PacingCfg.Validate(); err != nil {
		return fmt.Errorf("pacing configuration invalid: %w", err)
	}
	if err := c.StorageCfg.Validate(); err != nil {
		return fmt.Errorf("storage configuration invalid: %w", err)
	}
	if c.FillCfg.MaxRepetitions <= 0 {
		return fmt.Errorf("fill.max_repetitions must be a positive integer")
	}
	if c.ServerCfg.RateLimit <= 0 || c.ServerCfg.RateBurst <= 0 {
		return fmt.Errorf("server.rate_limit and server.rate_burst must be positive")
	}
	return nil
}

// Validate checks that every selector is set and the link pattern compiles.
func (f *FormConfig) Validate() error {
	s := f.Selectors
	for name, value := range map[string]string{
		"container": s.Container, "title": s.Title, "question": s.Question,
		"prompt": s.Prompt, "option": s.Option, "input": s.Input, "submit": s.Submit,
	} {
		if strings.TrimSpace(value) == "" {
			return fmt.Errorf("selectors.%s must not be empty", name)
		}
	}
	if f.Markers.SingleChoice == "" || f.Markers.MultiChoice == "" {
		return fmt.Errorf("markers.single_choice and markers.multi_choice are required")
	}
	if _, err := regexp.Compile(f.LinkPattern); err != nil {
		return fmt.Errorf("link_pattern does not compile: %w", err)
	}
	return nil
}

// Validate checks the pause ranges.
func (p *PacingConfig) Validate() error {
	if p.OptionPauseMin < 0 || p.OptionPauseMax < p.OptionPauseMin {
		return fmt.Errorf("option_pause_min/option_pause_max do not form a range")
	}
	if p.QuestionPauseMin < 0 || p.QuestionPauseMax < p.QuestionPauseMin {
		return fmt.Errorf("question_pause_min/question_pause_max do not form a range")
	}
	if p.Settle < 0 {
		return fmt.Errorf("settle must not be negative")
	}
	return nil
}

// Validate checks the storage backend settings.
func (s *StorageConfig) Validate() error {
	switch s.Backend {
	case BackendFile:
		if s.FormsDir == "" {
			return fmt.Errorf("forms_dir is required for the file backend")
		}
	case BackendPostgres:
		if s.DatabaseURL == "" {
			return fmt.Errorf("database_url is required for the postgres backend. Ensure FORMRELAY_DATABASE_URL is set")
		}
	default:
		return fmt.Errorf("unknown backend %q", s.Backend)
	}
	if s.SessionFile == "" {
		return fmt.Errorf("session_file is required")
	}
	if s.SessionResetEvery < 0 {
		return fmt.Errorf("session_reset_every must not be negative")
	}
	return nil
}
