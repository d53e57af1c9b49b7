// Package arena parses arena command flags and composes the live story
// transport.
package arena

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"

	entrypoint "github.com/stagecraft-live/stagecraft/internal/platform/cmd"
	server "github.com/stagecraft-live/stagecraft/internal/services/arena/app"
	"github.com/stagecraft-live/stagecraft/internal/storage/sqlite"
	"github.com/stagecraft-live/stagecraft/internal/story/engine"
	"github.com/stagecraft-live/stagecraft/internal/story/generate"
	"github.com/stagecraft-live/stagecraft/internal/telemetry"
)

// Config holds arena command configuration.
type Config struct {
	HTTPAddr string `env:"STAGECRAFT_ARENA_HTTP_ADDR" envDefault:":8080"`
	// DBPath is the sqlite database file. Empty keeps all state in memory.
	DBPath string `env:"STAGECRAFT_DB_PATH"`
	// GenAIAPIKey enables model-backed generation. Empty falls back to the
	// offline template generator.
	GenAIAPIKey string `env:"STAGECRAFT_GENAI_API_KEY"`
	GenAIModel  string `env:"STAGECRAFT_GENAI_MODEL" envDefault:"gemini-2.0-flash"`
	// MatcherScriptPath points at a Lua script overriding exit condition
	// matching. Empty uses the built-in keyword matcher.
	MatcherScriptPath string `env:"STAGECRAFT_MATCHER_SCRIPT"`
}

// ParseConfig parses environment and flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := entrypoint.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}

	fs.StringVar(&cfg.HTTPAddr, "http-addr", cfg.HTTPAddr, "arena HTTP listen address")
	fs.StringVar(&cfg.DBPath, "db-path", cfg.DBPath, "sqlite database path (empty for in-memory sessions)")
	fs.StringVar(&cfg.GenAIModel, "genai-model", cfg.GenAIModel, "generation model name")
	fs.StringVar(&cfg.MatcherScriptPath, "matcher-script", cfg.MatcherScriptPath, "lua exit condition matcher script path")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Run builds the arena app and serves the realtime story surface.
func Run(ctx context.Context, cfg Config) error {
	return entrypoint.RunWithTelemetry(ctx, entrypoint.ServiceArena, func(context.Context) error {
		deps, err := buildDeps(ctx, cfg)
		if err != nil {
			return err
		}
		if err := server.Run(ctx, server.Config{HTTPAddr: cfg.HTTPAddr}, deps); err != nil {
			return fmt.Errorf("serve arena: %w", err)
		}
		return nil
	})
}

func buildDeps(ctx context.Context, cfg Config) (server.Deps, error) {
	logger := log.Default()
	deps := server.Deps{Logger: logger}

	if cfg.DBPath != "" {
		store, err := sqlite.Open(cfg.DBPath)
		if err != nil {
			return server.Deps{}, fmt.Errorf("open store: %w", err)
		}
		deps.Store = store
		deps.Telemetry = telemetry.NewEmitter(store)
	}

	if cfg.GenAIAPIKey != "" {
		client, err := generate.NewGenAIClient(ctx, cfg.GenAIAPIKey, cfg.GenAIModel)
		if err != nil {
			return server.Deps{}, fmt.Errorf("init genai client: %w", err)
		}
		deps.Generator = client
		deps.Narrator = client
		deps.Intent = client
	} else {
		log.Printf("no genai api key configured, using template generation")
		deps.Generator = generate.TemplateGenerator{}
	}

	matcher, err := buildMatcher(cfg, logger)
	if err != nil {
		return server.Deps{}, err
	}
	deps.Matcher = matcher
	return deps, nil
}

func buildMatcher(cfg Config, logger *log.Logger) (engine.ConditionMatcher, error) {
	fallback := engine.KeywordMatcher{}
	if cfg.MatcherScriptPath == "" {
		return fallback, nil
	}
	script, err := os.ReadFile(cfg.MatcherScriptPath)
	if err != nil {
		return nil, fmt.Errorf("read matcher script: %w", err)
	}
	matcher, err := engine.NewLuaMatcher(string(script), fallback, logger)
	if err != nil {
		return nil, fmt.Errorf("init lua matcher: %w", err)
	}
	return matcher, nil
}
