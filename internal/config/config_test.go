package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	require.NotNil(t, cfg)

	assert.Equal(t, "./output", cfg.OutputDir)
	assert.Equal(t, ".", cfg.SourceTree)
	assert.Equal(t, "./cache", cfg.CacheDir)
	assert.Equal(t, "info", cfg.LogLevel)

	assert.Empty(t, cfg.Analysis.Components.Log)
	assert.Empty(t, cfg.Analysis.Pipeline)

	assert.Equal(t, "file", cfg.Cache.Backend)

	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.False(t, cfg.Logging.AddSource)

	assert.Equal(t, "127.0.0.1", cfg.Server.Host)
	assert.Equal(t, 8080, cfg.Server.Port)
}

func TestLoad_FromFile(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	configContent := `
output_dir: "/tmp/out"
source_tree: "/tmp/src"
cache_dir: "/tmp/cache"

analysis:
  components:
    log:
      - Simple
  pipeline:
    - loadSource
    - extractVariability

cache:
  backend: sqlite

logging:
  level: "debug"
  format: "text"

server:
  host: "0.0.0.0"
  port: 9090
`
	require.NoError(t, os.WriteFile(configPath, []byte(configContent), 0o600))

	cfg, err := Load(configPath)
	require.NoError(t, err)

	assert.Equal(t, "/tmp/out", cfg.OutputDir)
	assert.Equal(t, "/tmp/src", cfg.SourceTree)
	assert.Equal(t, "/tmp/cache", cfg.CacheDir)
	assert.Equal(t, []string{"Simple"}, cfg.Analysis.Components.Log)
	assert.True(t, cfg.StageLoggingEnabled("Simple"))
	assert.False(t, cfg.StageLoggingEnabled("Other"))
	assert.Equal(t, []string{"loadSource", "extractVariability"}, cfg.Analysis.Pipeline)
	assert.Equal(t, "sqlite", cfg.Cache.Backend)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "text", cfg.Logging.Format)
	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, 9090, cfg.Server.Port)
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("KSCAN_SERVER_PORT", "3000")
	t.Setenv("KSCAN_LOGGING_LEVEL", "warn")
	t.Setenv("KSCAN_CACHE_BACKEND", "sqlite")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 3000, cfg.Server.Port)
	assert.Equal(t, "warn", cfg.Logging.Level)
	assert.Equal(t, "sqlite", cfg.Cache.Backend)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	require.NoError(t, os.WriteFile(configPath, []byte("server:\n  port: 8080\n"), 0o600))
	t.Setenv("KSCAN_SERVER_PORT", "9000")

	cfg, err := Load(configPath)
	require.NoError(t, err)
	assert.Equal(t, 9000, cfg.Server.Port)
}

func TestLoad_InvalidConfigFile(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	invalidContent := "server:\n  port: \"not a number\"\n  invalid yaml structure\n"
	require.NoError(t, os.WriteFile(configPath, []byte(invalidContent), 0o600))

	_, err := Load(configPath)
	assert.Error(t, err)
}

func TestLoad_NonExistentFile(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	assert.Error(t, err)
}

func validConfig() *Config {
	return &Config{
		OutputDir:  "./output",
		SourceTree: ".",
		Cache:      CacheConfig{Backend: "file"},
		Logging:    LoggingConfig{Level: "info", Format: "json"},
		Server:     ServerConfig{Host: "127.0.0.1", Port: 8080},
	}
}

func TestValidate_ValidConfig(t *testing.T) {
	assert.NoError(t, validConfig().Validate())
}

func TestValidate_InvalidPort(t *testing.T) {
	tests := []struct {
		name string
		port int
	}{
		{"zero port", 0},
		{"negative port", -1},
		{"port too high", 70000},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			cfg.Server.Port = tt.port
			err := cfg.Validate()
			assert.Error(t, err)
			assert.Contains(t, err.Error(), "server.port")
		})
	}
}

func TestValidate_InvalidLogLevel(t *testing.T) {
	cfg := validConfig()
	cfg.Logging.Level = "invalid"
	err := cfg.Validate()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "logging.level")
}

func TestValidate_InvalidLogFormat(t *testing.T) {
	cfg := validConfig()
	cfg.Logging.Format = "xml"
	err := cfg.Validate()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "logging.format")
}

func TestValidate_InvalidCacheBackend(t *testing.T) {
	cfg := validConfig()
	cfg.Cache.Backend = "postgres"
	err := cfg.Validate()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "cache.backend")
}

func TestValidate_MissingOutputDir(t *testing.T) {
	cfg := validConfig()
	cfg.OutputDir = ""
	err := cfg.Validate()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "output_dir")
}

func TestValidate_MissingSourceTree(t *testing.T) {
	cfg := validConfig()
	cfg.SourceTree = ""
	err := cfg.Validate()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "source_tree")
}

func TestServerConfig_Address(t *testing.T) {
	tests := []struct {
		name     string
		host     string
		port     int
		expected string
	}{
		{"localhost", "127.0.0.1", 8080, "127.0.0.1:8080"},
		{"all interfaces", "0.0.0.0", 3000, "0.0.0.0:3000"},
		{"hostname", "example.com", 443, "example.com:443"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := ServerConfig{Host: tt.host, Port: tt.port}
			assert.Equal(t, tt.expected, cfg.Address())
		})
	}
}

func TestProviderAccessorsUseDefaultsWithoutViper(t *testing.T) {
	cfg := validConfig()
	assert.Equal(t, defaultProviderTimeout, cfg.ProviderTimeout("variability"))
	assert.Equal(t, defaultProviderConc, cfg.ProviderConcurrency("variability"))
	assert.False(t, cfg.ProviderReadCache("variability"))
	assert.False(t, cfg.ProviderWriteCache("variability"))
}

func TestProviderAccessorsReadConfiguredValues(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	configContent := `
output_dir: "./output"
source_tree: "."
variability:
  provider:
    timeout: 5s
    concurrency: 8
    cache:
      read: true
      write: true
`
	require.NoError(t, os.WriteFile(configPath, []byte(configContent), 0o600))

	cfg, err := Load(configPath)
	require.NoError(t, err)

	assert.Equal(t, 5*time.Second, cfg.ProviderTimeout("variability"))
	assert.Equal(t, 8, cfg.ProviderConcurrency("variability"))
	assert.True(t, cfg.ProviderReadCache("variability"))
	assert.True(t, cfg.ProviderWriteCache("variability"))

	assert.Equal(t, defaultProviderTimeout, cfg.ProviderTimeout("build"))
}
