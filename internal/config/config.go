// Package config provides configuration loading from an optional YAML file
// and environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/usestring/formsense/internal/cache"
	"github.com/usestring/formsense/internal/logging"
	"github.com/usestring/formsense/pkg/backend"
	"github.com/usestring/formsense/pkg/classify"
	"github.com/usestring/formsense/pkg/discovery"
	"github.com/usestring/formsense/pkg/merge"
	"github.com/usestring/formsense/pkg/probe"
	"github.com/usestring/formsense/pkg/types"
)

// ConfigPathEnv names the environment variable pointing at a YAML config file.
const ConfigPathEnv = "FORMSENSE_CONFIG"

// Config holds all configuration for formsense.
type Config struct {
	// Discovery
	CustomHost    string `yaml:"custom_host"`    // FORMSENSE_CUSTOM_HOST
	CustomPort    int    `yaml:"custom_port"`    // FORMSENSE_CUSTOM_PORT, default: kind's port
	CustomKind    string `yaml:"custom_kind"`    // FORMSENSE_CUSTOM_KIND, default "lmstudio"
	OllamaPorts   []int  `yaml:"ollama_ports"`   // FORMSENSE_OLLAMA_PORTS, default [11434]
	LMStudioPorts []int  `yaml:"lmstudio_ports"` // FORMSENSE_LMSTUDIO_PORTS, default [8000]

	// Probing
	ProbeTimeout time.Duration `yaml:"probe_timeout"` // PROBE_TIMEOUT_MS, default 1500ms
	ProbeRetries int           `yaml:"probe_retries"` // PROBE_RETRIES, default 3
	ProbeBackoff float64       `yaml:"probe_backoff"` // PROBE_BACKOFF, default 1.5
	Verbose      bool          `yaml:"verbose"`       // VERBOSE, default false

	// Backend requests
	RequestTimeout time.Duration `yaml:"request_timeout"` // REQUEST_TIMEOUT_MS, default 3000ms
	Model          string        `yaml:"model"`           // FORMSENSE_MODEL, default: ask the backend

	// Classification
	BatchSize              int           `yaml:"batch_size"`               // BATCH_SIZE, default 10
	OnlyLowConfidence      bool          `yaml:"only_low_confidence"`      // ONLY_LOW_CONFIDENCE, default true
	LowConfidenceThreshold float64       `yaml:"low_confidence_threshold"` // LOW_CONFIDENCE_THRESHOLD, default 0.7
	Concise                bool          `yaml:"concise"`                  // CONCISE, default false
	CacheTTL               time.Duration `yaml:"cache_ttl"`                // CACHE_TTL_MS, default 5m
	CacheMaxItems          int           `yaml:"cache_max_items"`          // CACHE_MAX_ITEMS, default 512
	MaxHTMLChars           int           `yaml:"max_html_chars"`           // MAX_HTML_CHARS, default 8192

	// Merging
	BoostDivisor float64 `yaml:"boost_divisor"` // BOOST_DIVISOR, default 4

	// Storage
	DBPath string `yaml:"db_path"` // FORMSENSE_DB_PATH, default <user cache dir>/formsense/backends.db

	// Transport
	HTTPAddr string `yaml:"http_addr"` // FORMSENSE_HTTP_ADDR, default "" (stdio)

	// Logging configuration
	LogLevel      string `yaml:"log_level"`       // LOG_LEVEL, default "info"
	LogFormat     string `yaml:"log_format"`      // LOG_FORMAT, default "text"
	LogFile       string `yaml:"log_file"`        // LOG_FILE, default "" (stderr only)
	LogMaxSizeMB  int    `yaml:"log_max_size_mb"` // LOG_MAX_SIZE_MB, default 10
	LogMaxBackups int    `yaml:"log_max_backups"` // LOG_MAX_BACKUPS, default 5
	LogMaxAgeDays int    `yaml:"log_max_age_days"`
	LogCompress   bool   `yaml:"log_compress"` // LOG_COMPRESS, default true
}

// Default returns the configuration used when nothing is set.
func Default() *Config {
	return &Config{
		CustomKind:    string(types.BackendLMStudio),
		OllamaPorts:   []int{types.DefaultOllamaPort},
		LMStudioPorts: []int{types.DefaultLMStudioPort},

		ProbeTimeout: probe.DefaultTimeout,
		ProbeRetries: probe.DefaultRetries,
		ProbeBackoff: probe.DefaultBackoff,

		RequestTimeout: backend.DefaultRequestTimeout,

		BatchSize:              classify.DefaultBatchSize,
		OnlyLowConfidence:      true,
		LowConfidenceThreshold: classify.DefaultLowConfidenceThreshold,
		CacheTTL:               classify.DefaultCacheTTL,
		CacheMaxItems:          cache.DefaultMaxItems,
		MaxHTMLChars:           classify.DefaultMaxHTMLChars,

		BoostDivisor: merge.DefaultBoostDivisor,

		DBPath: defaultDBPath(),

		LogLevel:      "info",
		LogFormat:     "text",
		LogMaxSizeMB:  10,
		LogMaxBackups: 5,
		LogMaxAgeDays: 28,
		LogCompress:   true,
	}
}

// Load builds the configuration from defaults, then the YAML file named by
// FORMSENSE_CONFIG (if set), then environment variables.
func Load() (*Config, error) {
	cfg := Default()

	if path := os.Getenv(ConfigPathEnv); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}
	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parsing config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() {
	c.CustomHost = getEnvString("FORMSENSE_CUSTOM_HOST", c.CustomHost)
	c.CustomPort = getEnvInt("FORMSENSE_CUSTOM_PORT", c.CustomPort)
	c.CustomKind = getEnvString("FORMSENSE_CUSTOM_KIND", c.CustomKind)
	c.OllamaPorts = getEnvIntList("FORMSENSE_OLLAMA_PORTS", c.OllamaPorts)
	c.LMStudioPorts = getEnvIntList("FORMSENSE_LMSTUDIO_PORTS", c.LMStudioPorts)

	c.ProbeTimeout = getEnvDurationMs("PROBE_TIMEOUT_MS", c.ProbeTimeout)
	c.ProbeRetries = getEnvInt("PROBE_RETRIES", c.ProbeRetries)
	c.ProbeBackoff = getEnvFloat("PROBE_BACKOFF", c.ProbeBackoff)
	c.Verbose = getEnvBool("VERBOSE", c.Verbose)

	c.RequestTimeout = getEnvDurationMs("REQUEST_TIMEOUT_MS", c.RequestTimeout)
	c.Model = getEnvString("FORMSENSE_MODEL", c.Model)

	c.BatchSize = getEnvInt("BATCH_SIZE", c.BatchSize)
	c.OnlyLowConfidence = getEnvBool("ONLY_LOW_CONFIDENCE", c.OnlyLowConfidence)
	c.LowConfidenceThreshold = getEnvFloat("LOW_CONFIDENCE_THRESHOLD", c.LowConfidenceThreshold)
	c.Concise = getEnvBool("CONCISE", c.Concise)
	c.CacheTTL = getEnvDurationMs("CACHE_TTL_MS", c.CacheTTL)
	c.CacheMaxItems = getEnvInt("CACHE_MAX_ITEMS", c.CacheMaxItems)
	c.MaxHTMLChars = getEnvInt("MAX_HTML_CHARS", c.MaxHTMLChars)

	c.BoostDivisor = getEnvFloat("BOOST_DIVISOR", c.BoostDivisor)

	c.DBPath = getEnvString("FORMSENSE_DB_PATH", c.DBPath)
	c.HTTPAddr = getEnvString("FORMSENSE_HTTP_ADDR", c.HTTPAddr)

	c.LogLevel = getEnvString("LOG_LEVEL", c.LogLevel)
	c.LogFormat = getEnvString("LOG_FORMAT", c.LogFormat)
	c.LogFile = getEnvString("LOG_FILE", c.LogFile)
	c.LogMaxSizeMB = getEnvInt("LOG_MAX_SIZE_MB", c.LogMaxSizeMB)
	c.LogMaxBackups = getEnvInt("LOG_MAX_BACKUPS", c.LogMaxBackups)
	c.LogMaxAgeDays = getEnvInt("LOG_MAX_AGE_DAYS", c.LogMaxAgeDays)
	c.LogCompress = getEnvBool("LOG_COMPRESS", c.LogCompress)
}

// Validate rejects settings the core cannot run with.
func (c *Config) Validate() error {
	if _, err := types.ParseBackendKind(c.CustomKind); err != nil {
		return fmt.Errorf("custom_kind: %w", err)
	}
	if c.ProbeTimeout <= 0 {
		return fmt.Errorf("probe_timeout must be positive, got %s", c.ProbeTimeout)
	}
	if c.ProbeRetries < 1 {
		return fmt.Errorf("probe_retries must be at least 1, got %d", c.ProbeRetries)
	}
	if c.ProbeBackoff < 1 {
		return fmt.Errorf("probe_backoff must be at least 1, got %g", c.ProbeBackoff)
	}
	if c.BatchSize < 1 {
		return fmt.Errorf("batch_size must be at least 1, got %d", c.BatchSize)
	}
	if c.LowConfidenceThreshold < 0 || c.LowConfidenceThreshold > 1 {
		return fmt.Errorf("low_confidence_threshold must be within [0,1], got %g", c.LowConfidenceThreshold)
	}
	if c.BoostDivisor <= 0 {
		return fmt.Errorf("boost_divisor must be positive, got %g", c.BoostDivisor)
	}
	return nil
}

// ProbeOptions returns the per-probe settings.
func (c *Config) ProbeOptions() probe.Options {
	return probe.Options{
		Timeout: c.ProbeTimeout,
		Retries: c.ProbeRetries,
		Backoff: c.ProbeBackoff,
		Verbose: c.Verbose,
	}
}

// BackendOptions returns the options applied to every backend.
func (c *Config) BackendOptions() []backend.Option {
	opts := []backend.Option{backend.WithRequestTimeout(c.RequestTimeout)}
	if c.Model != "" {
		opts = append(opts, backend.WithModel(c.Model))
	}
	return opts
}

// DiscoveryConfig returns the discovery settings.
func (c *Config) DiscoveryConfig() discovery.Config {
	kind, err := types.ParseBackendKind(c.CustomKind)
	if err != nil {
		kind = types.BackendLMStudio
	}
	return discovery.Config{
		CustomHost: c.CustomHost,
		CustomPort: c.CustomPort,
		CustomKind: kind,
		Probe:      c.ProbeOptions(),
	}
}

// CandidateSets returns the default localhost scan list.
func (c *Config) CandidateSets() []discovery.CandidateSet {
	return discovery.DefaultCandidateSets(c.OllamaPorts, c.LMStudioPorts)
}

// ClassifyOptions returns the batch classification settings.
func (c *Config) ClassifyOptions() classify.Options {
	return classify.Options{
		BatchSize:              c.BatchSize,
		OnlyLowConfidence:      c.OnlyLowConfidence,
		LowConfidenceThreshold: c.LowConfidenceThreshold,
		Concise:                c.Concise,
		CacheTTL:               c.CacheTTL,
		MaxHTMLChars:           c.MaxHTMLChars,
		Verbose:                c.Verbose,
	}
}

// MergeOptions returns the arbitration settings.
func (c *Config) MergeOptions() merge.Options {
	return merge.Options{BoostDivisor: c.BoostDivisor}
}

// LoggingConfig returns the logging settings.
func (c *Config) LoggingConfig() logging.Config {
	return logging.Config{
		Level:      c.LogLevel,
		Format:     c.LogFormat,
		FilePath:   c.LogFile,
		MaxSizeMB:  c.LogMaxSizeMB,
		MaxBackups: c.LogMaxBackups,
		MaxAgeDays: c.LogMaxAgeDays,
		Compress:   c.LogCompress,
	}
}

func defaultDBPath() string {
	dir, err := os.UserCacheDir()
	if err != nil {
		return ":memory:"
	}
	return filepath.Join(dir, "formsense", "backends.db")
}

func getEnvBool(key string, defaultVal bool) bool {
	if v := os.Getenv(key); v != "" {
		switch strings.ToLower(v) {
		case "1", "true", "yes", "on":
			return true
		case "0", "false", "no", "off":
			return false
		}
	}
	return defaultVal
}

func getEnvString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvFloat(key string, defaultVal float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
			return f
		}
	}
	return defaultVal
}

func getEnvDurationMs(key string, defaultVal time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if ms, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			return time.Duration(ms) * time.Millisecond
		}
	}
	return defaultVal
}

// getEnvIntList parses a comma-separated list. Any bad element keeps the default.
func getEnvIntList(key string, defaultVal []int) []int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	var out []int
	for _, part := range strings.Split(v, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		i, err := strconv.Atoi(part)
		if err != nil {
			return defaultVal
		}
		out = append(out, i)
	}
	if len(out) == 0 {
		return defaultVal
	}
	return out
}
