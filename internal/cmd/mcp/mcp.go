// Package mcp parses MCP command flags and composes the story tool server.
package mcp

import (
	"context"
	"flag"
	"fmt"
	"log"

	entrypoint "github.com/stagecraft-live/stagecraft/internal/platform/cmd"
	"github.com/stagecraft-live/stagecraft/internal/services/mcp/service"
	"github.com/stagecraft-live/stagecraft/internal/storage/sqlite"
	"github.com/stagecraft-live/stagecraft/internal/story/engine"
	"github.com/stagecraft-live/stagecraft/internal/story/generate"
	"github.com/stagecraft-live/stagecraft/internal/telemetry"
)

// Config holds MCP command configuration.
type Config struct {
	// DBPath is the sqlite database file. Empty keeps all state in memory.
	DBPath string `env:"STAGECRAFT_DB_PATH"`
	// GenAIAPIKey enables model-backed generation. Empty falls back to the
	// offline template generator.
	GenAIAPIKey string `env:"STAGECRAFT_GENAI_API_KEY"`
	GenAIModel  string `env:"STAGECRAFT_GENAI_MODEL" envDefault:"gemini-2.0-flash"`
}

// ParseConfig parses environment and flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := entrypoint.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}

	fs.StringVar(&cfg.DBPath, "db-path", cfg.DBPath, "sqlite database path (empty for in-memory sessions)")
	fs.StringVar(&cfg.GenAIModel, "genai-model", cfg.GenAIModel, "generation model name")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Run builds the MCP stage and serves story tools over stdio.
func Run(ctx context.Context, cfg Config) error {
	return entrypoint.RunWithTelemetry(ctx, entrypoint.ServiceMCP, func(context.Context) error {
		deps, err := buildDeps(ctx, cfg)
		if err != nil {
			return err
		}
		if err := service.Run(ctx, deps); err != nil {
			return fmt.Errorf("serve mcp: %w", err)
		}
		return nil
	})
}

func buildDeps(ctx context.Context, cfg Config) (service.StageDeps, error) {
	deps := service.StageDeps{
		Matcher: engine.KeywordMatcher{},
		Logger:  log.Default(),
	}

	if cfg.DBPath != "" {
		store, err := sqlite.Open(cfg.DBPath)
		if err != nil {
			return service.StageDeps{}, fmt.Errorf("open store: %w", err)
		}
		deps.Store = store
		deps.Telemetry = telemetry.NewEmitter(store)
	}

	if cfg.GenAIAPIKey != "" {
		client, err := generate.NewGenAIClient(ctx, cfg.GenAIAPIKey, cfg.GenAIModel)
		if err != nil {
			return service.StageDeps{}, fmt.Errorf("init genai client: %w", err)
		}
		deps.Generator = client
		deps.Narrator = client
		deps.Intent = client
	} else {
		log.Printf("no genai api key configured, using template generation")
		deps.Generator = generate.TemplateGenerator{}
	}
	return deps, nil
}
