package config

import (
	"fmt"
	"os"
	"strings"
	"time"
)

// Config is the top-level configuration for an agentctl deployment: engine
// credentials, routing/breaker defaults, memory pool sizing, the
// workspace root, and the optional ConfigStore DSN for breaker
// persistence, per the teacher's config.go/loader.go pattern of a YAML
// document overridden by environment variables.
type Config struct {
	Version int `yaml:"version"`

	Engines   EnginesConfig   `yaml:"engines"`
	Router    RouterConfig    `yaml:"router"`
	Breaker   BreakerConfig   `yaml:"breaker"`
	Memory    MemoryConfig    `yaml:"memory"`
	Workspace WorkspaceConfig `yaml:"workspace"`
	Store     StoreConfig     `yaml:"store"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// EnginesConfig carries per-provider credentials and endpoints.
type EnginesConfig struct {
	Anthropic AnthropicEngineConfig `yaml:"anthropic"`
	OpenAI    OpenAIEngineConfig    `yaml:"openai"`
	Bedrock   BedrockEngineConfig   `yaml:"bedrock"`
	Gemini    GeminiEngineConfig    `yaml:"gemini"`
	Ollama    OllamaEngineConfig    `yaml:"ollama"`
}

type AnthropicEngineConfig struct {
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"`
}

type OpenAIEngineConfig struct {
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"`
}

type BedrockEngineConfig struct {
	Region string `yaml:"region"`
}

type GeminiEngineConfig struct {
	APIKey string `yaml:"api_key"`
}

type OllamaEngineConfig struct {
	BaseURL string        `yaml:"base_url"`
	Timeout time.Duration `yaml:"timeout"`
}

// RouterConfig carries default routing preferences.
type RouterConfig struct {
	PreferredProviders []string `yaml:"preferred_providers"`
	AllowFallback      bool     `yaml:"allow_fallback"`
}

// BreakerConfig mirrors breaker.Params for YAML/env configuration.
type BreakerConfig struct {
	FailureThreshold  int           `yaml:"failure_threshold"`
	BaseCooldown      time.Duration `yaml:"base_cooldown"`
	MaxCooldown       time.Duration `yaml:"max_cooldown"`
	PenaltyPerFailure int64         `yaml:"penalty_per_failure"`
	OpenCircuitPenalty int64        `yaml:"open_circuit_penalty"`
}

// MemoryConfig mirrors memorypool.Options for YAML/env configuration.
type MemoryConfig struct {
	KVCapacity         int           `yaml:"kv_capacity"`
	EmbeddingsCapacity int           `yaml:"embeddings_capacity"`
	FileSnapCapacity   int           `yaml:"file_snapshot_capacity"`
	TTL                time.Duration `yaml:"ttl"`
}

// WorkspaceConfig locates the workspace root a run's Port resolves paths
// against.
type WorkspaceConfig struct {
	Root string `yaml:"root"`
}

// StoreConfig selects and configures the ConfigStore backend used to
// persist the circuit breaker snapshot across restarts.
type StoreConfig struct {
	// Driver is "sqlite", "redis", or "" (disabled).
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
	Prefix string `yaml:"prefix"`
}

// LoggingConfig configures the slog-based Logger.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // "json" or "text"
}

// Default returns a Config with every ambient default spec'd for this
// deployment: an in-process memory-only breaker, a local workspace root,
// and no persisted store.
func Default() Config {
	return Config{
		Version: CurrentVersion,
		Router: RouterConfig{
			AllowFallback: true,
		},
		Breaker: BreakerConfig{
			FailureThreshold:   2,
			BaseCooldown:       5 * time.Minute,
			MaxCooldown:        60 * time.Minute,
			PenaltyPerFailure:  1000,
			OpenCircuitPenalty: 1_000_000,
		},
		Memory: MemoryConfig{
			KVCapacity:         1024,
			EmbeddingsCapacity: 4096,
			FileSnapCapacity:   1024,
		},
		Workspace: WorkspaceConfig{Root: "."},
		Logging:   LoggingConfig{Level: "info", Format: "text"},
	}
}

// Load reads path (YAML, with $include support — see loader.go), applies
// environment overrides, and validates the result.
func Load(path string) (*Config, error) {
	cfg := Default()
	if strings.TrimSpace(path) != "" {
		raw, err := LoadRaw(path)
		if err != nil {
			return nil, fmt.Errorf("load config: %w", err)
		}
		if err := decodeRawConfig(raw, &cfg); err != nil {
			return nil, err
		}
	}
	applyEnvOverrides(&cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyEnvOverrides layers well-known environment variables over cfg,
// matching the teacher's "env wins over file" precedence.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("ANTHROPIC_API_KEY"); v != "" {
		cfg.Engines.Anthropic.APIKey = v
	}
	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		cfg.Engines.OpenAI.APIKey = v
	}
	if v := os.Getenv("GEMINI_API_KEY"); v != "" {
		cfg.Engines.Gemini.APIKey = v
	}
	if v := os.Getenv("AWS_REGION"); v != "" && cfg.Engines.Bedrock.Region == "" {
		cfg.Engines.Bedrock.Region = v
	}
	if v := os.Getenv("OLLAMA_BASE_URL"); v != "" {
		cfg.Engines.Ollama.BaseURL = v
	}
	if v := os.Getenv("AGENTCTL_WORKSPACE_ROOT"); v != "" {
		cfg.Workspace.Root = v
	}
	if v := os.Getenv("AGENTCTL_STORE_DSN"); v != "" {
		cfg.Store.DSN = v
	}
	if v := os.Getenv("AGENTCTL_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}

// Validate checks the fields the loader cannot enforce through the YAML
// schema alone: version compatibility and store driver consistency.
func (c Config) Validate() error {
	if err := ValidateVersion(c.Version); err != nil {
		return err
	}
	switch c.Store.Driver {
	case "", "sqlite", "redis":
	default:
		return fmt.Errorf("config: unknown store driver %q (want sqlite, redis, or empty)", c.Store.Driver)
	}
	if c.Store.Driver != "" && strings.TrimSpace(c.Store.DSN) == "" {
		return fmt.Errorf("config: store.dsn is required when store.driver is set")
	}
	if c.Workspace.Root == "" {
		return fmt.Errorf("config: workspace.root is required")
	}
	return nil
}
