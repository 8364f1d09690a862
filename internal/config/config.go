// Package config provides configuration management for kscan using
// Viper. It supports configuration from files, environment variables,
// and defaults.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/kscanio/kscan/internal/pipeline/pipelineerrors"
)

// Default configuration values.
const (
	defaultServerPort       = 8080
	defaultProviderTimeout  = 30 * time.Second
	defaultProviderConc     = 4
	defaultComponentsLogKey = "analysis.components.log"
)

// Config holds all configuration for the application. Per-provider
// settings (`<name>.provider.*`) are read dynamically through the
// accessor methods below rather than a fixed struct field, since the
// set of provider names is open-ended (spec.md §6).
type Config struct {
	// OutputDir is where the terminal stage's result file and any
	// published artifacts are written.
	OutputDir string `mapstructure:"output_dir"`
	// SourceTree is the root of the codebase under analysis.
	SourceTree string `mapstructure:"source_tree"`
	// CacheDir is the root for the file cache, or the directory holding
	// the SQLite cache file when cache.backend is "sqlite".
	CacheDir string `mapstructure:"cache_dir"`
	// LogLevel holds the log_level key. The logger's level is taken from
	// logging.level only; this field does not change it.
	LogLevel string `mapstructure:"log_level"`

	Analysis AnalysisConfig `mapstructure:"analysis"`
	Cache    CacheConfig    `mapstructure:"cache"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Server   ServerConfig   `mapstructure:"server"`

	v *viper.Viper
}

// AnalysisConfig holds settings for the analysis run itself.
type AnalysisConfig struct {
	Components AnalysisComponentsConfig `mapstructure:"components"`
	// Pipeline is an ordered list of registry-known stage names,
	// resolved into a linear chain by the reflective builder
	// (spec.md §4.4 "Reflective variant").
	Pipeline []string `mapstructure:"pipeline"`
}

// AnalysisComponentsConfig controls stage-level behavior.
type AnalysisComponentsConfig struct {
	// Log names the stages whose intermediate results are mirrored to
	// a side log as they are produced (spec.md §4.1, §4.3), e.g.
	// ["Simple"]. A stage not named here runs without an
	// IntermediateSink.
	Log []string `mapstructure:"log"`
}

// StageLoggingEnabled reports whether stageName is named in
// analysis.components.log.
func (c *Config) StageLoggingEnabled(stageName string) bool {
	for _, name := range c.Analysis.Components.Log {
		if name == stageName {
			return true
		}
	}
	return false
}

// CacheConfig selects the cache backend.
type CacheConfig struct {
	// Backend is "file" (default) or "sqlite".
	Backend string `mapstructure:"backend"`
}

// LoggingConfig holds structured-logging configuration.
type LoggingConfig struct {
	Level     string `mapstructure:"level"`
	Format    string `mapstructure:"format"`
	AddSource bool   `mapstructure:"add_source"`
}

// ServerConfig holds the status HTTP endpoint's bind address.
type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

// Address returns the server address in host:port format.
func (c ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Load reads configuration from file and environment variables.
// Environment variables take precedence over file configuration and
// are prefixed with KSCAN_, with underscores replacing dots.
// Example: KSCAN_SERVER_PORT=8080.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	SetDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("/etc/kscan")
		v.AddConfigPath("$HOME/.kscan")
	}

	v.SetEnvPrefix("KSCAN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFoundError) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}
	cfg.v = v

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// SetDefaults configures default values for all configuration options.
// Called before reading the config file to ensure defaults are in
// place.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("output_dir", "./output")
	v.SetDefault("source_tree", ".")
	v.SetDefault("cache_dir", "./cache")
	v.SetDefault("log_level", "info")

	v.SetDefault(defaultComponentsLogKey, []string{})
	v.SetDefault("analysis.pipeline", []string{})

	v.SetDefault("cache.backend", "file")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.add_source", false)

	v.SetDefault("server.host", "127.0.0.1")
	v.SetDefault("server.port", defaultServerPort)
}

// Validate checks the configuration for errors. Every failure is a
// *pipelineerrors.SetupError (spec.md §7): configuration problems are
// fatal and must abort a run before any stage starts.
func (c *Config) Validate() error {
	const maxPort = 65535
	if c.Server.Port < 1 || c.Server.Port > maxPort {
		return pipelineerrors.NewSetupError("server.port", fmt.Sprintf("must be between 1 and %d", maxPort))
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		return pipelineerrors.NewSetupError("logging.level", "must be one of: debug, info, warn, error")
	}
	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[c.Logging.Format] {
		return pipelineerrors.NewSetupError("logging.format", "must be one of: json, text")
	}

	validBackends := map[string]bool{"file": true, "sqlite": true}
	if !validBackends[c.Cache.Backend] {
		return pipelineerrors.NewSetupError("cache.backend", "must be one of: file, sqlite")
	}

	if c.OutputDir == "" {
		return pipelineerrors.NewSetupError("output_dir", "is required")
	}
	if c.SourceTree == "" {
		return pipelineerrors.NewSetupError("source_tree", "is required")
	}

	return nil
}

// ProviderTimeout returns the configured `<name>.provider.timeout`, or
// defaultProviderTimeout if unset.
func (c *Config) ProviderTimeout(name string) time.Duration {
	if c.v == nil {
		return defaultProviderTimeout
	}
	if d := c.v.GetDuration(name + ".provider.timeout"); d > 0 {
		return d
	}
	return defaultProviderTimeout
}

// ProviderConcurrency returns the configured `<name>.provider.concurrency`,
// or defaultProviderConc if unset.
func (c *Config) ProviderConcurrency(name string) int {
	if c.v == nil {
		return defaultProviderConc
	}
	if n := c.v.GetInt(name + ".provider.concurrency"); n > 0 {
		return n
	}
	return defaultProviderConc
}

// ProviderReadCache returns the configured `<name>.provider.cache.read`.
func (c *Config) ProviderReadCache(name string) bool {
	if c.v == nil {
		return false
	}
	return c.v.GetBool(name + ".provider.cache.read")
}

// ProviderWriteCache returns the configured `<name>.provider.cache.write`.
func (c *Config) ProviderWriteCache(name string) bool {
	if c.v == nil {
		return false
	}
	return c.v.GetBool(name + ".provider.cache.write")
}
