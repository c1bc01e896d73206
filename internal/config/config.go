package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"

	apperrors "github.com/agenthands/cbning/internal/errors"
)

const (
	PolicyAutoExpand = "auto_expand"
	PolicyReject     = "reject"
)

type Prompts struct {
	Translate string `toml:"translate"`
	Interpret string `toml:"interpret"`
}

type LLMConfig struct {
	Provider  string `toml:"provider"`
	Model     string `toml:"model"`
	APIKey    string `toml:"api_key"`
	BaseURL   string `toml:"base_url"`
	MaxTokens int    `toml:"max_tokens"`
	JSONMode  bool   `toml:"json_mode"`
}

type MergeConfig struct {
	CPDPolicy  string  `toml:"cpd_policy"`
	Tolerance  float64 `toml:"tolerance"`
	MaxCPDRows int     `toml:"max_cpd_rows"`
}

type SessionConfig struct {
	TranslateTimeoutSeconds int `toml:"translate_timeout_seconds"`
	InterpretTimeoutSeconds int `toml:"interpret_timeout_seconds"`
	StoreTimeoutSeconds     int `toml:"store_timeout_seconds"`
	MaxSessions             int `toml:"max_sessions"`
}

type BreakerConfig struct {
	MaxRequests      uint32  `toml:"max_requests"`
	IntervalSeconds  int     `toml:"interval_seconds"`
	TimeoutSeconds   int     `toml:"timeout_seconds"`
	FailureThreshold float64 `toml:"failure_threshold"`
	MinRequests      uint32  `toml:"min_requests"`
}

type MemgraphConfig struct {
	Enabled  bool   `toml:"enabled"`
	URI      string `toml:"uri"`
	User     string `toml:"user"`
	Password string `toml:"password"`
}

type ServerConfig struct {
	Port string `toml:"port"`
	Env  string `toml:"env"`
}

type Config struct {
	LLM      LLMConfig      `toml:"llm"`
	Prompts  Prompts        `toml:"prompts"`
	Merge    MergeConfig    `toml:"merge"`
	Session  SessionConfig  `toml:"session"`
	Breaker  BreakerConfig  `toml:"breaker"`
	Memgraph MemgraphConfig `toml:"memgraph"`
	Server   ServerConfig   `toml:"server"`
}

// Default returns the configuration used when no file is present.
// Prompts stay empty so the services fall back to their built-in templates.
func Default() *Config {
	return &Config{
		LLM: LLMConfig{
			Provider:  "ollama",
			Model:     "gpt-oss:latest",
			BaseURL:   "http://localhost:11434",
			MaxTokens: 2048,
		},
		Merge: MergeConfig{
			CPDPolicy:  PolicyAutoExpand,
			Tolerance:  1e-6,
			MaxCPDRows: 4096,
		},
		Session: SessionConfig{
			TranslateTimeoutSeconds: 60,
			InterpretTimeoutSeconds: 30,
			StoreTimeoutSeconds:     10,
			MaxSessions:             1000,
		},
		Breaker: BreakerConfig{
			MaxRequests:      5,
			IntervalSeconds:  30,
			TimeoutSeconds:   60,
			FailureThreshold: 0.8,
			MinRequests:      5,
		},
		Memgraph: MemgraphConfig{
			URI: "bolt://localhost:7687",
		},
		Server: ServerConfig{
			Port: "8080",
			Env:  "development",
		},
	}
}

// Load reads a TOML file over the defaults, so a partial file only overrides what it names.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file '%s': %w", path, err)
	}

	cfg := Default()
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse TOML: %w", err)
	}

	return cfg, nil
}

// LoadOrDefault is Load, except that a missing file yields Default().
func LoadOrDefault(path string) (*Config, error) {
	cfg, err := Load(path)
	if errors.Is(err, fs.ErrNotExist) {
		return Default(), nil
	}
	return cfg, err
}

// ApplyEnv overrides file values with environment variables when they are set.
func (c *Config) ApplyEnv() {
	setString(&c.LLM.Provider, "LLM_PROVIDER")
	setString(&c.LLM.Model, "LLM_MODEL")
	setString(&c.LLM.APIKey, "LLM_API_KEY")
	setString(&c.LLM.BaseURL, "LLM_BASE_URL")
	setString(&c.Merge.CPDPolicy, "CPD_POLICY")
	setString(&c.Memgraph.URI, "MEMGRAPH_URI")
	setString(&c.Memgraph.User, "MEMGRAPH_USER")
	setString(&c.Memgraph.Password, "MEMGRAPH_PASSWORD")
	setString(&c.Server.Port, "PORT")
	setString(&c.Server.Env, "ENV")

	if v := os.Getenv("STORE_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.Memgraph.Enabled = b
		}
	}
}

// Validate checks the values the services cannot run without.
func (c *Config) Validate() error {
	if c.LLM.Provider == "" {
		return apperrors.NewConfigMissingRequired("llm.provider")
	}
	provider := strings.ToLower(c.LLM.Provider)
	switch provider {
	case "openai", "claude", "gemini", "ollama", "none":
	default:
		return apperrors.NewConfigValidationFailed("llm.provider", fmt.Sprintf("unsupported provider %q", c.LLM.Provider))
	}
	if provider != "none" && c.LLM.Model == "" {
		return apperrors.NewConfigMissingRequired("llm.model")
	}
	if c.Merge.CPDPolicy != PolicyAutoExpand && c.Merge.CPDPolicy != PolicyReject {
		return apperrors.NewConfigValidationFailed("merge.cpd_policy", fmt.Sprintf("want %q or %q, got %q", PolicyAutoExpand, PolicyReject, c.Merge.CPDPolicy))
	}
	if c.Merge.Tolerance <= 0 || c.Merge.Tolerance >= 0.1 {
		return apperrors.NewConfigValidationFailed("merge.tolerance", "must be in (0, 0.1)")
	}
	if c.Merge.MaxCPDRows <= 0 {
		return apperrors.NewConfigValidationFailed("merge.max_cpd_rows", "must be positive")
	}
	if c.Session.TranslateTimeoutSeconds <= 0 {
		return apperrors.NewConfigValidationFailed("session.translate_timeout_seconds", "must be positive")
	}
	if c.Session.InterpretTimeoutSeconds <= 0 {
		return apperrors.NewConfigValidationFailed("session.interpret_timeout_seconds", "must be positive")
	}
	if c.Breaker.FailureThreshold <= 0 || c.Breaker.FailureThreshold > 1 {
		return apperrors.NewConfigValidationFailed("breaker.failure_threshold", "must be in (0, 1]")
	}
	if c.Memgraph.Enabled && c.Memgraph.URI == "" {
		return apperrors.NewConfigMissingRequired("memgraph.uri")
	}
	if c.Server.Port == "" {
		return apperrors.NewConfigMissingRequired("server.port")
	}
	return nil
}

func (c *Config) IsProduction() bool {
	return c.Server.Env == "production"
}

func (s SessionConfig) TranslateTimeout() time.Duration {
	return time.Duration(s.TranslateTimeoutSeconds) * time.Second
}

func (s SessionConfig) InterpretTimeout() time.Duration {
	return time.Duration(s.InterpretTimeoutSeconds) * time.Second
}

func (s SessionConfig) StoreTimeout() time.Duration {
	return time.Duration(s.StoreTimeoutSeconds) * time.Second
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}
