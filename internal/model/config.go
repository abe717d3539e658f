package model

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// AIConfig holds settings for the remote model.
type AIConfig struct {
	// Model is the provider model identifier.
	Model string `mapstructure:"model" yaml:"model"`

	// BaseURL points at an OpenAI-compatible endpoint.
	BaseURL string `mapstructure:"base_url" yaml:"base_url"`

	MaxTokens   int     `mapstructure:"max_tokens" yaml:"max_tokens"`
	Temperature float64 `mapstructure:"temperature" yaml:"temperature"`
}

// CacheConfig controls the explanation cache and its replay pacing.
type CacheConfig struct {
	// MaxEntries is the size above which the cache is halved.
	MaxEntries int `mapstructure:"max_entries" yaml:"max_entries"`

	// ReplayChunkSize is the number of runes per replayed chunk.
	ReplayChunkSize int `mapstructure:"replay_chunk_size" yaml:"replay_chunk_size"`

	// ReplayDelayMs is the pause between replayed chunks.
	ReplayDelayMs int `mapstructure:"replay_delay_ms" yaml:"replay_delay_ms"`

	// TTLSec expires entries after this many seconds; zero keeps them forever.
	TTLSec int `mapstructure:"ttl_sec" yaml:"ttl_sec"`
}

// ReplayDelay returns ReplayDelayMs as a duration.
func (c CacheConfig) ReplayDelay() time.Duration {
	return time.Duration(c.ReplayDelayMs) * time.Millisecond
}

// TTL returns TTLSec as a duration.
func (c CacheConfig) TTL() time.Duration {
	return time.Duration(c.TTLSec) * time.Second
}

// UIConfig holds presentation preferences.
type UIConfig struct {
	DefaultMode string `mapstructure:"default_mode" yaml:"default_mode"`

	// LargeChunkThreshold is the chunk length above which a chunk replaces
	// the assistant message. Zero disables the rule.
	LargeChunkThreshold int `mapstructure:"large_chunk_threshold" yaml:"large_chunk_threshold"`

	Theme string `mapstructure:"theme" yaml:"theme"`
}

// StoreConfig locates the conversation database.
type StoreConfig struct {
	Path string `mapstructure:"path" yaml:"path"`
}

// IntakeConfig controls the local HTTP endpoint editors post code to.
type IntakeConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Addr    string `mapstructure:"addr" yaml:"addr"`
}

// LogConfig controls the log file.
type LogConfig struct {
	Level string `mapstructure:"level" yaml:"level"`
	File  string `mapstructure:"file" yaml:"file"`
}

// AppConfig is the top-level application configuration.
type AppConfig struct {
	AI     AIConfig     `mapstructure:"ai" yaml:"ai"`
	Cache  CacheConfig  `mapstructure:"cache" yaml:"cache"`
	UI     UIConfig     `mapstructure:"ui" yaml:"ui"`
	Store  StoreConfig  `mapstructure:"store" yaml:"store"`
	Intake IntakeConfig `mapstructure:"intake" yaml:"intake"`
	Log    LogConfig    `mapstructure:"log" yaml:"log"`
}

// Mode returns the configured default mode, falling back to DefaultMode.
func (c *AppConfig) Mode() UIMode {
	m, err := ParseMode(c.UI.DefaultMode)
	if err != nil {
		return DefaultMode
	}
	return m
}

// Validate rejects settings the engine cannot run with.
func (c *AppConfig) Validate() error {
	var errs []error
	if _, err := ParseMode(c.UI.DefaultMode); err != nil {
		errs = append(errs, fmt.Errorf("ui.default_mode: %w", err))
	}
	if c.Cache.MaxEntries <= 0 {
		errs = append(errs, fmt.Errorf("cache.max_entries must be positive, got %d", c.Cache.MaxEntries))
	}
	if c.Cache.ReplayChunkSize <= 0 {
		errs = append(errs, fmt.Errorf("cache.replay_chunk_size must be positive, got %d", c.Cache.ReplayChunkSize))
	}
	if c.Cache.ReplayDelayMs < 0 || c.Cache.TTLSec < 0 {
		errs = append(errs, errors.New("cache durations must not be negative"))
	}
	if c.UI.LargeChunkThreshold < 0 {
		errs = append(errs, errors.New("ui.large_chunk_threshold must not be negative"))
	}
	return errors.Join(errs...)
}

// ConfigDir returns ~/.config/codeinsight.
func ConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".config", "codeinsight")
}

// DefaultConfigPath returns the default path for the configuration file,
// located at ~/.config/codeinsight/config.yaml.
func DefaultConfigPath() string {
	return filepath.Join(ConfigDir(), "config.yaml")
}

// DefaultAppConfig returns a sensible default configuration.
func DefaultAppConfig() *AppConfig {
	return &AppConfig{
		AI: AIConfig{
			Model:       "gpt-4o-mini",
			BaseURL:     "https://api.openai.com/v1",
			MaxTokens:   2048,
			Temperature: 0.2,
		},
		Cache: CacheConfig{
			MaxEntries:      50,
			ReplayChunkSize: 100,
			ReplayDelayMs:   15,
		},
		UI: UIConfig{
			DefaultMode:         string(DefaultMode),
			LargeChunkThreshold: 1000,
			Theme:               "dark",
		},
		Store: StoreConfig{
			Path: filepath.Join(ConfigDir(), "insight.db"),
		},
		Intake: IntakeConfig{
			Addr: "127.0.0.1:7878",
		},
		Log: LogConfig{
			Level: "info",
			File:  filepath.Join(ConfigDir(), "insight.log"),
		},
	}
}

func setDefaults(v *viper.Viper, d *AppConfig) {
	v.SetDefault("ai.model", d.AI.Model)
	v.SetDefault("ai.base_url", d.AI.BaseURL)
	v.SetDefault("ai.max_tokens", d.AI.MaxTokens)
	v.SetDefault("ai.temperature", d.AI.Temperature)
	v.SetDefault("cache.max_entries", d.Cache.MaxEntries)
	v.SetDefault("cache.replay_chunk_size", d.Cache.ReplayChunkSize)
	v.SetDefault("cache.replay_delay_ms", d.Cache.ReplayDelayMs)
	v.SetDefault("cache.ttl_sec", d.Cache.TTLSec)
	v.SetDefault("ui.default_mode", d.UI.DefaultMode)
	v.SetDefault("ui.large_chunk_threshold", d.UI.LargeChunkThreshold)
	v.SetDefault("ui.theme", d.UI.Theme)
	v.SetDefault("store.path", d.Store.Path)
	v.SetDefault("intake.enabled", d.Intake.Enabled)
	v.SetDefault("intake.addr", d.Intake.Addr)
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.file", d.Log.File)
}

// LoadConfig reads configuration from the given YAML file path using Viper.
// Environment variables prefixed with INSIGHT_ override file values
// (INSIGHT_AI_MODEL sets ai.model). A missing file yields the defaults.
func LoadConfig(path string) (*AppConfig, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvPrefix("INSIGHT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v, DefaultAppConfig())

	if err := v.ReadInConfig(); err != nil {
		var pathErr *os.PathError
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &pathErr) && !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
	}

	cfg := DefaultAppConfig()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}

	return cfg, nil
}

// SaveConfig writes the given configuration to a YAML file at path,
// creating parent directories if needed.
func SaveConfig(path string, cfg *AppConfig) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating config directory %s: %w", dir, err)
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	v.Set("ai", cfg.AI)
	v.Set("cache", cfg.Cache)
	v.Set("ui", cfg.UI)
	v.Set("store", cfg.Store)
	v.Set("intake", cfg.Intake)
	v.Set("log", cfg.Log)

	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}

	return nil
}
