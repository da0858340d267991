// Package config provides configuration loading and validation.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// DefaultPath is the configuration file looked up when none is given.
const DefaultPath = "pyroto.yaml"

// Config is the root configuration structure.
type Config struct {
	Source     SourceConfig     `yaml:"source"`
	Output     OutputConfig     `yaml:"output"`
	Runtime    RuntimeConfig    `yaml:"runtime"`
	Generation GenerationConfig `yaml:"generation"`
	Cache      CacheConfig      `yaml:"cache"`
	Logging    LoggingConfig    `yaml:"logging"`
	Metrics    MetricsConfig    `yaml:"metrics"`
	Serve      ServeConfig      `yaml:"serve"`
}

// SourceConfig locates the schema files.
type SourceConfig struct {
	Dir string `yaml:"dir"`
}

// OutputConfig locates the generated package.
type OutputConfig struct {
	Dir     string `yaml:"dir"`
	Package string `yaml:"package"` // dotted prefix prepended to every module path
}

// RuntimeConfig names the Python runtime the generated code imports.
type RuntimeConfig struct {
	ConversionModule string `yaml:"conversion_module"`
	BaseService      string `yaml:"base_service"` // dotted, e.g. base_service.BaseService
	PB2Package       string `yaml:"pb2_package"`  // empty: the generated module's package
}

// GenerationConfig tunes code generation.
type GenerationConfig struct {
	StreamingBodies string `yaml:"streaming_bodies"` // "placeholder" or "native"
	StrictSymbols   *bool  `yaml:"strict_symbols"`
	SortImports     *bool  `yaml:"sort_imports"`
	Workers         int    `yaml:"workers"` // 0 = GOMAXPROCS
}

// Strict reports whether duplicate symbols fail the build.
func (g GenerationConfig) Strict() bool {
	return g.StrictSymbols == nil || *g.StrictSymbols
}

// Sorted reports whether imports are rendered sorted.
func (g GenerationConfig) Sorted() bool {
	return g.SortImports == nil || *g.SortImports
}

// CacheConfig configures the incremental build cache.
type CacheConfig struct {
	Enabled *bool  `yaml:"enabled"`
	DSN     string `yaml:"dsn"`
}

// On reports whether the cache is used.
func (c CacheConfig) On() bool {
	return c.Enabled == nil || *c.Enabled
}

// LoggingConfig configures logging.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // "debug", "info", "warn", "error"
	Format string `yaml:"format"` // "json" or "console"
}

// MetricsConfig configures Prometheus metrics.
type MetricsConfig struct {
	Textfile string `yaml:"textfile"` // written after each build when set
}

// ServeConfig configures the preview server.
type ServeConfig struct {
	Addr string `yaml:"addr"`
}

// Load reads configuration from a YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(data)
}

// Parse builds configuration from YAML bytes. ${VAR} references are
// expanded before decoding.
func Parse(data []byte) (*Config, error) {
	data = []byte(os.ExpandEnv(string(data)))

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	return finish(&cfg)
}

// LoadFromEnv creates configuration from PYROTO_* environment variables and
// defaults only.
//
// Environment variables:
//
//	PYROTO_SOURCE_DIR         - schema directory (default: proto)
//	PYROTO_OUTPUT_DIR         - output directory (default: gen)
//	PYROTO_OUTPUT_PACKAGE     - dotted module prefix
//	PYROTO_CONVERSION_MODULE  - conversion helpers module (default: protopy)
//	PYROTO_BASE_SERVICE       - service base class (default: base_service.BaseService)
//	PYROTO_PB2_PACKAGE        - package of the *_pb2 modules
//	PYROTO_STREAMING_BODIES   - placeholder or native
//	PYROTO_STRICT_SYMBOLS     - fail on duplicate symbols (default: true)
//	PYROTO_WORKERS            - generation workers (default: GOMAXPROCS)
//	PYROTO_CACHE_ENABLED      - use the build cache (default: true)
//	PYROTO_CACHE_DSN          - cache database path
//	PYROTO_LOG_LEVEL          - debug, info, warn, error (default: info)
//	PYROTO_LOG_FORMAT         - console or json (default: console)
//	PYROTO_METRICS_TEXTFILE   - Prometheus textfile path
//	PYROTO_SERVE_ADDR         - preview server address
func LoadFromEnv() (*Config, error) {
	return finish(&Config{})
}

// LoadWithFallback loads path when it exists and falls back to LoadFromEnv.
// A missing file is not an error; an unreadable or invalid one is.
func LoadWithFallback(path string) (*Config, error) {
	if path != "" {
		if _, err := os.Stat(path); err == nil {
			return Load(path)
		} else if !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("stat config: %w", err)
		}
	}
	return LoadFromEnv()
}

func finish(cfg *Config) (*Config, error) {
	applyEnvOverrides(cfg)
	setDefaults(cfg)

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

// applyEnvOverrides applies PYROTO_* environment variables to the config.
// Environment variables always override file-based configuration.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("PYROTO_SOURCE_DIR"); v != "" {
		cfg.Source.Dir = v
	}

	if v := os.Getenv("PYROTO_OUTPUT_DIR"); v != "" {
		cfg.Output.Dir = v
	}
	if v := os.Getenv("PYROTO_OUTPUT_PACKAGE"); v != "" {
		cfg.Output.Package = v
	}

	if v := os.Getenv("PYROTO_CONVERSION_MODULE"); v != "" {
		cfg.Runtime.ConversionModule = v
	}
	if v := os.Getenv("PYROTO_BASE_SERVICE"); v != "" {
		cfg.Runtime.BaseService = v
	}
	if v := os.Getenv("PYROTO_PB2_PACKAGE"); v != "" {
		cfg.Runtime.PB2Package = v
	}

	if v := os.Getenv("PYROTO_STREAMING_BODIES"); v != "" {
		cfg.Generation.StreamingBodies = v
	}
	if v := os.Getenv("PYROTO_STRICT_SYMBOLS"); v != "" {
		b := parseBool(v)
		cfg.Generation.StrictSymbols = &b
	}
	if v := os.Getenv("PYROTO_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Generation.Workers = n
		}
	}

	if v := os.Getenv("PYROTO_CACHE_ENABLED"); v != "" {
		b := parseBool(v)
		cfg.Cache.Enabled = &b
	}
	if v := os.Getenv("PYROTO_CACHE_DSN"); v != "" {
		cfg.Cache.DSN = v
	}

	if v := os.Getenv("PYROTO_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("PYROTO_LOG_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}

	if v := os.Getenv("PYROTO_METRICS_TEXTFILE"); v != "" {
		cfg.Metrics.Textfile = v
	}

	if v := os.Getenv("PYROTO_SERVE_ADDR"); v != "" {
		cfg.Serve.Addr = v
	}
}

// parseBool parses a boolean from common string values.
func parseBool(v string) bool {
	v = strings.ToLower(strings.TrimSpace(v))
	return v == "true" || v == "1" || v == "yes" || v == "on"
}

func setDefaults(cfg *Config) {
	if cfg.Source.Dir == "" {
		cfg.Source.Dir = "proto"
	}
	if cfg.Output.Dir == "" {
		cfg.Output.Dir = "gen"
	}

	if cfg.Runtime.ConversionModule == "" {
		cfg.Runtime.ConversionModule = "protopy"
	}
	if cfg.Runtime.BaseService == "" {
		cfg.Runtime.BaseService = "base_service.BaseService"
	}

	if cfg.Generation.StreamingBodies == "" {
		cfg.Generation.StreamingBodies = "placeholder"
	}

	if cfg.Cache.DSN == "" {
		cfg.Cache.DSN = ".pyroto-cache.db"
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "console"
	}

	if cfg.Serve.Addr == "" {
		cfg.Serve.Addr = "127.0.0.1:8089"
	}
}

func validate(cfg *Config) error {
	validBodies := map[string]bool{"placeholder": true, "native": true}
	if !validBodies[cfg.Generation.StreamingBodies] {
		return fmt.Errorf("generation.streaming_bodies must be 'placeholder' or 'native', got %q", cfg.Generation.StreamingBodies)
	}

	if cfg.Generation.Workers < 0 {
		return fmt.Errorf("generation.workers must not be negative, got %d", cfg.Generation.Workers)
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[cfg.Logging.Level] {
		return fmt.Errorf("logging.level must be one of debug, info, warn, error, got %q", cfg.Logging.Level)
	}

	validFormats := map[string]bool{"console": true, "json": true}
	if !validFormats[cfg.Logging.Format] {
		return fmt.Errorf("logging.format must be 'console' or 'json', got %q", cfg.Logging.Format)
	}

	if pkg := cfg.Output.Package; pkg != "" && !dotted(pkg) {
		return fmt.Errorf("output.package must be a dotted identifier, got %q", pkg)
	}
	if !dotted(cfg.Runtime.ConversionModule) {
		return fmt.Errorf("runtime.conversion_module must be a dotted identifier, got %q", cfg.Runtime.ConversionModule)
	}
	if !dotted(cfg.Runtime.BaseService) {
		return fmt.Errorf("runtime.base_service must be a dotted identifier, got %q", cfg.Runtime.BaseService)
	}
	if pkg := cfg.Runtime.PB2Package; pkg != "" && !dotted(pkg) {
		return fmt.Errorf("runtime.pb2_package must be a dotted identifier, got %q", pkg)
	}

	return nil
}

// dotted reports whether s is a dot-separated list of Python identifiers.
func dotted(s string) bool {
	for _, part := range strings.Split(s, ".") {
		if part == "" {
			return false
		}
		for i, r := range part {
			switch {
			case r == '_', r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
			case i > 0 && r >= '0' && r <= '9':
			default:
				return false
			}
		}
	}
	return true
}
