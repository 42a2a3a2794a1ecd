// Package config loads the engine configuration and the governance path binding.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/Masterminds/semver/v3"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"

	"github.com/Rogers-F/governance-engine/internal/domain"
)

// EnvPrefix marks environment variables that override file configuration.
const EnvPrefix = "GOVENGINE_"

const maxConfigFileSize = 1024 * 1024

// DefaultVersion is the engine version assumed when none is configured.
const DefaultVersion = "1.0.0"

// EngineConfig identifies the engine build and the policy set it evaluates.
type EngineConfig struct {
	BindingFile string   `koanf:"binding_file"`
	Adapter     string   `koanf:"adapter"`
	Version     string   `koanf:"version"`
	PolicyPacks []string `koanf:"policy_packs"`
}

// LockConfig tunes the workspace lock.
type LockConfig struct {
	TTL          time.Duration `koanf:"ttl"`
	Timeout      time.Duration `koanf:"timeout"`
	PollInterval time.Duration `koanf:"poll_interval"`
}

// WriteConfig tunes atomic writes.
type WriteConfig struct {
	Attempts int           `koanf:"attempts"`
	Backoff  time.Duration `koanf:"backoff"`
}

// RepoConfig tunes repository discovery.
type RepoConfig struct {
	GitTimeout    time.Duration `koanf:"git_timeout"`
	AncestorDepth int           `koanf:"ancestor_depth"`
}

// LogConfig selects log level and encoding.
type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// AuditConfig points at the evaluation ledger.
type AuditConfig struct {
	DBPath string `koanf:"db_path"`
}

// Config holds the engine's runtime configuration.
type Config struct {
	Engine EngineConfig `koanf:"engine"`
	Lock   LockConfig   `koanf:"lock"`
	Write  WriteConfig  `koanf:"write"`
	Repo   RepoConfig   `koanf:"repo"`
	Log    LogConfig    `koanf:"log"`
	Audit  AuditConfig  `koanf:"audit"`
}

// Load reads a YAML config file when path is non-empty, overrides it from
// GOVENGINE_* environment variables, applies defaults, and validates.
//
// Environment variables map onto section.field keys by splitting on the first
// underscore after the prefix:
//
//	GOVENGINE_LOCK_TTL          -> lock.ttl
//	GOVENGINE_ENGINE_BINDING_FILE -> engine.binding_file
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if path != "" {
		content, err := readConfigFile(path)
		if err != nil {
			return nil, err
		}
		if err := k.Load(rawbytes.Provider(content), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns a configuration with every default applied.
func Default() *Config {
	var cfg Config
	cfg.applyDefaults()
	return &cfg
}

func envKey(s string) string {
	lower := strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	parts := strings.SplitN(lower, "_", 2)
	if len(parts) == 1 {
		return lower
	}
	return parts[0] + "." + parts[1]
}

func readConfigFile(path string) ([]byte, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	if info.Size() > maxConfigFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", info.Size(), maxConfigFileSize)
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	return content, nil
}

func (c *Config) applyDefaults() {
	if c.Engine.Adapter == "" {
		c.Engine.Adapter = "opencode"
	}
	if c.Engine.Version == "" {
		c.Engine.Version = DefaultVersion
	}
	if c.Lock.TTL == 0 {
		c.Lock.TTL = 120 * time.Second
	}
	if c.Lock.Timeout == 0 {
		c.Lock.Timeout = 10 * time.Second
	}
	if c.Lock.PollInterval == 0 {
		c.Lock.PollInterval = 50 * time.Millisecond
	}
	if c.Write.Attempts == 0 {
		c.Write.Attempts = 5
	}
	if c.Write.Backoff == 0 {
		c.Write.Backoff = 50 * time.Millisecond
	}
	if c.Repo.GitTimeout == 0 {
		c.Repo.GitTimeout = 10 * time.Second
	}
	if c.Repo.AncestorDepth == 0 {
		c.Repo.AncestorDepth = 8
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "json"
	}
}

func (c *Config) validate() error {
	var problems []string

	if _, err := semver.NewVersion(c.Engine.Version); err != nil {
		problems = append(problems, fmt.Sprintf("engine.version %q is not a semantic version", c.Engine.Version))
	}
	switch c.Engine.Adapter {
	case "opencode", "ci", "desktop":
	default:
		problems = append(problems, fmt.Sprintf("engine.adapter %q is not one of opencode, ci, desktop", c.Engine.Adapter))
	}
	if c.Lock.TTL < 0 || c.Lock.Timeout < 0 || c.Lock.PollInterval < 0 {
		problems = append(problems, "lock durations must not be negative")
	}
	if c.Lock.PollInterval > c.Lock.Timeout {
		problems = append(problems, "lock.poll_interval must not exceed lock.timeout")
	}
	if c.Write.Attempts < 1 {
		problems = append(problems, "write.attempts must be at least 1")
	}
	if c.Repo.AncestorDepth < 0 {
		problems = append(problems, "repo.ancestor_depth must not be negative")
	}
	switch c.Log.Format {
	case "json", "console":
	default:
		problems = append(problems, fmt.Sprintf("log.format %q is not json or console", c.Log.Format))
	}

	if len(problems) > 0 {
		return &domain.EngineError{
			Code:    domain.ErrConfigInvalid.Code,
			Message: fmt.Sprintf("%s: %v", domain.ErrConfigInvalid.Message, problems),
		}
	}
	return nil
}
