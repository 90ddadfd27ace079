package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/emmett08/unified-agent-sdk/internal/breaker"
	"github.com/emmett08/unified-agent-sdk/internal/catalog"
	"github.com/emmett08/unified-agent-sdk/internal/config"
	"github.com/emmett08/unified-agent-sdk/internal/configstore"
	"github.com/emmett08/unified-agent-sdk/internal/engine"
	"github.com/emmett08/unified-agent-sdk/internal/memorypool"
	"github.com/emmett08/unified-agent-sdk/internal/observability"
	"github.com/emmett08/unified-agent-sdk/internal/router"
	"github.com/emmett08/unified-agent-sdk/internal/supervisor"
	"github.com/emmett08/unified-agent-sdk/internal/toolname"
	"github.com/emmett08/unified-agent-sdk/internal/toolpolicy"
	"github.com/emmett08/unified-agent-sdk/internal/workspace"
	"github.com/emmett08/unified-agent-sdk/pkg/events"
)

// runOptions carries the flags the "run" command collects.
type runOptions struct {
	configPath string
	prompt     string
	provider   string
	workspace  string
	preview    bool
}

// runOnce loads config, assembles a supervisor, drives one run to
// completion, and prints its event stream and final result.
func runOnce(ctx context.Context, opts runOptions) error {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	engines, err := buildEngines(ctx, cfg)
	if err != nil {
		return fmt.Errorf("build engines: %w", err)
	}
	if len(engines) == 0 {
		return fmt.Errorf("no provider engine has credentials configured; set at least one of ANTHROPIC_API_KEY, OPENAI_API_KEY, GEMINI_API_KEY, AWS_REGION, or OLLAMA_BASE_URL")
	}

	cat := catalog.New()
	catalog.SeedDefaults(cat)

	store, err := buildStore(cfg.Store)
	if err != nil {
		return fmt.Errorf("build config store: %w", err)
	}

	memory := memorypool.New(memorypool.Options{
		KVCapacity:         cfg.Memory.KVCapacity,
		EmbeddingsCapacity: cfg.Memory.EmbeddingsCapacity,
		FileSnapCapacity:   cfg.Memory.FileSnapCapacity,
		TTL:                cfg.Memory.TTL,
	})

	logger := observability.NewLogger(observability.LogConfig{Level: cfg.Logging.Level, Format: cfg.Logging.Format})
	metrics := observability.NewMetrics()

	sup := supervisor.New(cat, breakerParams(cfg), engines, store, memory).
		WithObservability(logger, metrics, nil)
	defer sup.Close()

	mode := supervisor.Live
	if opts.preview {
		mode = supervisor.Preview
	}

	pref := router.Preference{
		ExplicitProvider:   opts.provider,
		PreferredProviders: cfg.Router.PreferredProviders,
		AllowFallback:      cfg.Router.AllowFallback,
	}

	run := sup.Run(ctx, supervisor.Options{
		Prompt:          opts.prompt,
		RoutePreference: pref,
		Workspace:       workspace.NewLocal(opts.workspace),
		WorkspaceMode:   mode,
		Policy:          toolpolicy.AllowAll{},
		ToolNameMode:    toolname.Sanitize,
		OnEvent:         printEvent,
	})

	result := run.Result()
	if result.Err != nil {
		return fmt.Errorf("run failed: %w", result.Err)
	}

	fmt.Println("---")
	fmt.Println(result.Text)
	return nil
}

// runDoctor reports which provider engines the loaded config can build.
func runDoctor(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	engines, err := buildEngines(context.Background(), cfg)
	if err != nil {
		return fmt.Errorf("build engines: %w", err)
	}
	if len(engines) == 0 {
		fmt.Println("no provider engine has credentials configured")
		return nil
	}
	for id := range engines {
		fmt.Printf("%s: configured\n", id)
	}
	return nil
}

// buildEngines constructs a Backend-backed Engine for every provider whose
// minimum credentials are present in cfg, skipping the rest. Absence from
// the returned registry is how the supervisor models unavailability.
func buildEngines(ctx context.Context, cfg *config.Config) (supervisor.EngineRegistry, error) {
	engines := supervisor.EngineRegistry{}

	if key := cfg.Engines.Anthropic.APIKey; key != "" {
		backend, err := engine.NewAnthropicBackend(engine.AnthropicConfig{
			APIKey:  key,
			BaseURL: cfg.Engines.Anthropic.BaseURL,
		})
		if err != nil {
			return nil, fmt.Errorf("anthropic backend: %w", err)
		}
		engines["anthropic"] = engine.New(backend)
	}

	if key := cfg.Engines.OpenAI.APIKey; key != "" {
		backend, err := engine.NewOpenAIBackend(engine.OpenAIConfig{
			APIKey:  key,
			BaseURL: cfg.Engines.OpenAI.BaseURL,
		})
		if err != nil {
			return nil, fmt.Errorf("openai backend: %w", err)
		}
		engines["openai"] = engine.New(backend)
	}

	if region := cfg.Engines.Bedrock.Region; region != "" {
		backend, err := engine.NewBedrockBackend(ctx, engine.BedrockConfig{Region: region})
		if err != nil {
			return nil, fmt.Errorf("bedrock backend: %w", err)
		}
		engines["bedrock"] = engine.New(backend)
	}

	if key := cfg.Engines.Gemini.APIKey; key != "" {
		backend, err := engine.NewGeminiBackend(ctx, engine.GeminiConfig{APIKey: key})
		if err != nil {
			return nil, fmt.Errorf("gemini backend: %w", err)
		}
		engines["gemini"] = engine.New(backend)
	}

	if baseURL := cfg.Engines.Ollama.BaseURL; baseURL != "" {
		backend := engine.NewOllamaBackend(engine.OllamaConfig{
			BaseURL: baseURL,
			Timeout: cfg.Engines.Ollama.Timeout,
		})
		engines["ollama"] = engine.New(backend)
	}

	return engines, nil
}

// buildStore opens the configured ConfigStore driver for circuit breaker
// persistence, or returns a nil Store when no driver is configured.
func buildStore(cfg config.StoreConfig) (configstore.Store, error) {
	switch cfg.Driver {
	case "":
		return nil, nil
	case "sqlite":
		return configstore.OpenSQLite(cfg.DSN)
	case "redis":
		opt, err := redis.ParseURL(cfg.DSN)
		if err != nil {
			return nil, fmt.Errorf("parse redis dsn: %w", err)
		}
		return configstore.NewRedisStore(redis.NewClient(opt), cfg.Prefix), nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
}

func breakerParams(cfg *config.Config) breaker.Params {
	return breaker.Params{
		FailureThreshold:   cfg.Breaker.FailureThreshold,
		BaseCooldown:       cfg.Breaker.BaseCooldown,
		MaxCooldown:        cfg.Breaker.MaxCooldown,
		PenaltyPerFailure:  cfg.Breaker.PenaltyPerFailure,
		OpenCircuitPenalty: cfg.Breaker.OpenCircuitPenalty,
	}
}

// printEvent renders one event line to stderr, matching the teacher's
// slog-based progress reporting.
func printEvent(ev events.AgentEvent) {
	switch ev.Kind {
	case events.KindTextDelta:
		fmt.Print(ev.Text)
	case events.KindThinkingDelta:
		return
	case events.KindError:
		slog.Error("run event", "kind", ev.Kind, "err", ev.Err)
	default:
		slog.Info("run event", "kind", ev.Kind)
	}
}
