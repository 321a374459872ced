// Package config loads service configuration from an optional YAML file and
// RETIRE_ prefixed environment variables.
package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the service.
type Config struct {
	App      AppConfig
	Database DatabaseConfig
	Log      LogConfig
	Engine   EngineConfig
	Refresh  RefreshConfig
	HTTP     HTTPConfig
}

// AppConfig holds application identity.
type AppConfig struct {
	Name string
	Env  string
	Port string
}

// DatabaseConfig holds the SQLite location. An empty path or ":memory:"
// keeps everything in memory.
type DatabaseConfig struct {
	Path string
}

// LogConfig holds logger settings.
type LogConfig struct {
	Level  string // debug, info, warn, error
	Format string // json, console
	Output string // stdout, stderr, or file path
}

// EngineConfig holds the defaults applied to projections that don't set
// their own.
type EngineConfig struct {
	HorizonYears  int
	DiscountRate  float64
	CreditPoints  float64
	AnnuityFactor float64
	InflationRate float64
	RulesFile     string // optional rules document loaded at startup
	BracketsFile  string // optional tax tables document loaded at startup
}

// RefreshConfig controls the background reload of reference data.
type RefreshConfig struct {
	Enabled  bool
	Interval time.Duration
}

// HTTPConfig holds HTTP server settings.
type HTTPConfig struct {
	ReadTimeout      time.Duration
	WriteTimeout     time.Duration
	IdleTimeout      time.Duration
	MaxBodySize      int64
	CORSAllowOrigins []string
}

// Load reads configuration. path names a config file; when empty,
// config.yaml is looked up in the working directory and ignored if absent.
func Load(path string) (*Config, error) {
	v := viper.New()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	v.SetEnvPrefix("RETIRE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Zero is a legitimate value for these, so they are viper defaults
	// rather than applyDefaults fallbacks.
	v.SetDefault("engine.discount_rate", 0.03)
	v.SetDefault("engine.credit_points", 2.25)
	v.SetDefault("engine.inflation_rate", 0.02)
	v.SetDefault("refresh.enabled", true)

	cfg := &Config{
		App: AppConfig{
			Name: v.GetString("app.name"),
			Env:  v.GetString("app.env"),
			Port: v.GetString("app.port"),
		},
		Database: DatabaseConfig{
			Path: v.GetString("database.path"),
		},
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
			Output: v.GetString("log.output"),
		},
		Engine: EngineConfig{
			HorizonYears:  v.GetInt("engine.horizon_years"),
			DiscountRate:  v.GetFloat64("engine.discount_rate"),
			CreditPoints:  v.GetFloat64("engine.credit_points"),
			AnnuityFactor: v.GetFloat64("engine.annuity_factor"),
			InflationRate: v.GetFloat64("engine.inflation_rate"),
			RulesFile:     v.GetString("engine.rules_file"),
			BracketsFile:  v.GetString("engine.brackets_file"),
		},
		Refresh: RefreshConfig{
			Enabled:  v.GetBool("refresh.enabled"),
			Interval: v.GetDuration("refresh.interval"),
		},
		HTTP: HTTPConfig{
			ReadTimeout:      v.GetDuration("http.read_timeout"),
			WriteTimeout:     v.GetDuration("http.write_timeout"),
			IdleTimeout:      v.GetDuration("http.idle_timeout"),
			MaxBodySize:      v.GetInt64("http.max_body_size"),
			CORSAllowOrigins: v.GetStringSlice("http.cors_allow_origins"),
		},
	}

	applyDefaults(cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.App.Name == "" {
		cfg.App.Name = "retirement-engine"
	}
	if cfg.App.Env == "" {
		cfg.App.Env = "development"
	}
	if cfg.App.Port == "" {
		cfg.App.Port = "8080"
	}
	if cfg.Database.Path == "" {
		cfg.Database.Path = "retirement.db"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "console"
	}
	if cfg.Log.Output == "" {
		cfg.Log.Output = "stdout"
	}
	if cfg.Engine.HorizonYears == 0 {
		cfg.Engine.HorizonYears = 30
	}
	if cfg.Engine.AnnuityFactor == 0 {
		cfg.Engine.AnnuityFactor = 200
	}
	if cfg.Refresh.Interval == 0 {
		cfg.Refresh.Interval = 5 * time.Minute
	}
	if cfg.HTTP.ReadTimeout == 0 {
		cfg.HTTP.ReadTimeout = 15 * time.Second
	}
	if cfg.HTTP.WriteTimeout == 0 {
		cfg.HTTP.WriteTimeout = 30 * time.Second
	}
	if cfg.HTTP.IdleTimeout == 0 {
		cfg.HTTP.IdleTimeout = 60 * time.Second
	}
	if cfg.HTTP.MaxBodySize == 0 {
		cfg.HTTP.MaxBodySize = 5 << 20 // 5MB
	}
	if len(cfg.HTTP.CORSAllowOrigins) == 0 {
		cfg.HTTP.CORSAllowOrigins = []string{"*"}
	}
}

func (c *Config) validate() error {
	if p, err := strconv.Atoi(c.App.Port); err != nil || p <= 0 || p > 65535 {
		return fmt.Errorf("app.port %q is not a valid port", c.App.Port)
	}
	switch c.Log.Format {
	case "json", "console":
	default:
		return fmt.Errorf("log.format must be json or console, got %q", c.Log.Format)
	}
	if c.Engine.HorizonYears < 1 || c.Engine.HorizonYears > 100 {
		return fmt.Errorf("engine.horizon_years must be between 1 and 100, got %d", c.Engine.HorizonYears)
	}
	if c.Engine.DiscountRate <= -1 {
		return fmt.Errorf("engine.discount_rate must be greater than -1")
	}
	if c.Engine.AnnuityFactor <= 0 {
		return fmt.Errorf("engine.annuity_factor must be positive")
	}
	if c.Engine.CreditPoints < 0 {
		return fmt.Errorf("engine.credit_points cannot be negative")
	}
	if c.Refresh.Enabled && c.Refresh.Interval < time.Second {
		return fmt.Errorf("refresh.interval must be at least 1s, got %s", c.Refresh.Interval)
	}

	if c.App.Env == "production" {
		for _, origin := range c.HTTP.CORSAllowOrigins {
			if origin == "*" {
				return fmt.Errorf("http.cors_allow_origins cannot be '*' in production (use specific origins)")
			}
		}
	}
	return nil
}

// IsProduction reports whether the service runs in production.
func (c *Config) IsProduction() bool {
	return c.App.Env == "production"
}

// Addr is the listen address for the HTTP server.
func (c *Config) Addr() string {
	return ":" + c.App.Port
}
