package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// Config represents the shellsense configuration.
type Config struct {
	Daemon      DaemonConfig      `yaml:"daemon"`
	Suggestions SuggestionsConfig `yaml:"suggestions"`
	Index       IndexConfig       `yaml:"index"`
	Privacy     PrivacyConfig     `yaml:"privacy"`
	History     HistoryConfig     `yaml:"history"`

	mu sync.RWMutex `yaml:"-"`
}

// DaemonConfig holds daemon-related settings.
type DaemonConfig struct {
	SocketPath       string `yaml:"socket_path"`        // Unix socket path (overrides default)
	LogLevel         string `yaml:"log_level"`          // debug, info, warn, error
	IdleTimeoutMins  int    `yaml:"idle_timeout_mins"`  // Auto-shutdown after idle (0 = never)
	RequestTimeoutMs int    `yaml:"request_timeout_ms"` // Per-request deadline
	ReadTimeoutMs    int    `yaml:"read_timeout_ms"`    // Idle-connection read deadline
	ShutdownGraceMs  int    `yaml:"shutdown_grace_ms"`  // Drain window for in-flight requests
}

// SuggestionsConfig holds suggestion cascade tunables.
type SuggestionsConfig struct {
	MaxSuggestions int     `yaml:"max_suggestions"` // Cap on returned suggestions
	MinConfidence  float64 `yaml:"min_confidence"`  // Drop candidates below this
	FuzzyThreshold int     `yaml:"fuzzy_threshold"` // Fuzzy tier cutoff, 0-100 scale
	FuzzyPoolSize  int     `yaml:"fuzzy_pool_size"` // Recent commands scored by the fuzzy tier
	SemanticK      int     `yaml:"semantic_k"`      // Nearest neighbors fetched per request
}

// IndexConfig holds vector index tunables.
type IndexConfig struct {
	Dimension       int `yaml:"dimension"`         // Embedding vector length
	Trees           int `yaml:"trees"`             // Randomized trees per build
	BuildBatch      int `yaml:"build_batch"`       // Pending adds that trigger a rebuild
	BuildIntervalMs int `yaml:"build_interval_ms"` // Max time between rebuilds with pending adds
}

// PrivacyConfig holds privacy-related settings.
type PrivacyConfig struct {
	ExcludedDirs []string `yaml:"excluded_dirs"` // cwd prefixes never logged
}

// HistoryConfig holds retention settings.
type HistoryConfig struct {
	RetentionDays int `yaml:"retention_days"` // Prune records older than this (0 = keep forever)
}

// Default returns a Config populated with defaults.
func Default() *Config {
	home := homeDir()
	return &Config{
		Daemon: DaemonConfig{
			LogLevel:         "info",
			IdleTimeoutMins:  0,
			RequestTimeoutMs: 2000,
			ReadTimeoutMs:    300000,
			ShutdownGraceMs:  5000,
		},
		Suggestions: SuggestionsConfig{
			MaxSuggestions: 5,
			MinConfidence:  0.3,
			FuzzyThreshold: 60,
			FuzzyPoolSize:  200,
			SemanticK:      10,
		},
		Index: IndexConfig{
			Dimension:       128,
			Trees:           8,
			BuildBatch:      32,
			BuildIntervalMs: 30000,
		},
		Privacy: PrivacyConfig{
			ExcludedDirs: []string{
				filepath.Join(home, ".ssh"),
				filepath.Join(home, ".gnupg"),
				filepath.Join(home, ".aws"),
				filepath.Join(home, ".password-store"),
			},
		},
		History: HistoryConfig{
			RetentionDays: 365,
		},
	}
}

// Load reads configuration from the given file, applying defaults for any
// missing fields. A missing file returns the defaults without error.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes the configuration to the given file.
func (c *Config) Save(path string) error {
	c.mu.RLock()
	data, err := yaml.Marshal(c)
	c.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return os.Rename(tmp, path)
}

// Validate checks configuration invariants. Safe to call concurrently
// with Set and Replace.
func (c *Config) Validate() error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.Suggestions.MaxSuggestions <= 0 {
		return errors.New("suggestions.max_suggestions must be positive")
	}
	if c.Suggestions.MinConfidence < 0 || c.Suggestions.MinConfidence > 1 {
		return errors.New("suggestions.min_confidence must be in [0,1]")
	}
	if c.Suggestions.FuzzyThreshold < 0 || c.Suggestions.FuzzyThreshold > 100 {
		return errors.New("suggestions.fuzzy_threshold must be in [0,100]")
	}
	if c.Index.Dimension <= 0 {
		return errors.New("index.dimension must be positive")
	}
	if c.Index.Trees <= 0 {
		return errors.New("index.trees must be positive")
	}
	switch c.Daemon.LogLevel {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("daemon.log_level %q is not one of debug, info, warn, error", c.Daemon.LogLevel)
	}
	return nil
}

// ErrUnknownKey is returned by Get/Set for keys that do not exist.
var ErrUnknownKey = errors.New("unknown config key")

// Get returns the value of a dotted config key, e.g. "suggestions.max_suggestions".
func (c *Config) Get(key string) (any, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	switch strings.ToLower(key) {
	case "daemon.log_level":
		return c.Daemon.LogLevel, nil
	case "daemon.idle_timeout_mins":
		return c.Daemon.IdleTimeoutMins, nil
	case "daemon.request_timeout_ms":
		return c.Daemon.RequestTimeoutMs, nil
	case "suggestions.max_suggestions":
		return c.Suggestions.MaxSuggestions, nil
	case "suggestions.min_confidence":
		return c.Suggestions.MinConfidence, nil
	case "suggestions.fuzzy_threshold":
		return c.Suggestions.FuzzyThreshold, nil
	case "suggestions.fuzzy_pool_size":
		return c.Suggestions.FuzzyPoolSize, nil
	case "suggestions.semantic_k":
		return c.Suggestions.SemanticK, nil
	case "index.dimension":
		return c.Index.Dimension, nil
	case "index.trees":
		return c.Index.Trees, nil
	case "index.build_batch":
		return c.Index.BuildBatch, nil
	case "privacy.excluded_dirs":
		return append([]string(nil), c.Privacy.ExcludedDirs...), nil
	case "history.retention_days":
		return c.History.RetentionDays, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownKey, key)
	}
}

// Set updates a dotted config key from its string representation.
// index.dimension is deliberately not settable at runtime: changing it
// would invalidate every stored embedding.
func (c *Config) Set(key, value string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch strings.ToLower(key) {
	case "daemon.log_level":
		c.Daemon.LogLevel = value
	case "daemon.idle_timeout_mins":
		return setInt(&c.Daemon.IdleTimeoutMins, value)
	case "daemon.request_timeout_ms":
		return setInt(&c.Daemon.RequestTimeoutMs, value)
	case "suggestions.max_suggestions":
		return setInt(&c.Suggestions.MaxSuggestions, value)
	case "suggestions.min_confidence":
		return setFloat(&c.Suggestions.MinConfidence, value)
	case "suggestions.fuzzy_threshold":
		return setInt(&c.Suggestions.FuzzyThreshold, value)
	case "suggestions.fuzzy_pool_size":
		return setInt(&c.Suggestions.FuzzyPoolSize, value)
	case "suggestions.semantic_k":
		return setInt(&c.Suggestions.SemanticK, value)
	case "index.trees":
		return setInt(&c.Index.Trees, value)
	case "index.build_batch":
		return setInt(&c.Index.BuildBatch, value)
	case "history.retention_days":
		return setInt(&c.History.RetentionDays, value)
	default:
		return fmt.Errorf("%w: %s", ErrUnknownKey, key)
	}
	return nil
}

// Snapshot returns a copy of the suggestion tunables safe for concurrent use.
func (c *Config) Snapshot() SuggestionsConfig {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.Suggestions
}

// DaemonSettings returns a copy of the daemon tunables safe for concurrent use.
func (c *Config) DaemonSettings() DaemonConfig {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.Daemon
}

// RetentionDays returns the history retention window in days.
func (c *Config) RetentionDays() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.History.RetentionDays
}

// Replace swaps in the values of another Config. Used by the reload path.
func (c *Config) Replace(next *Config) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Daemon = next.Daemon
	c.Suggestions = next.Suggestions
	c.Index = next.Index
	c.Privacy = next.Privacy
	c.History = next.History
}

// ExcludedDirs returns a copy of the privacy exclusion list.
func (c *Config) ExcludedDirs() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]string(nil), c.Privacy.ExcludedDirs...)
}

func setInt(dst *int, value string) error {
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fmt.Errorf("invalid integer %q: %w", value, err)
	}
	*dst = n
	return nil
}

func setFloat(dst *float64, value string) error {
	f, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return fmt.Errorf("invalid float %q: %w", value, err)
	}
	*dst = f
	return nil
}
