package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"github.com/bert-suite/server/internal/core"
	"github.com/bert-suite/server/internal/gateway"
	"github.com/bert-suite/server/internal/suite/generation"
	"github.com/bert-suite/server/internal/suite/model"
	"github.com/bert-suite/server/internal/suite/pipeline"
	"github.com/bert-suite/server/internal/suite/repo"
	"github.com/bert-suite/server/internal/suite/shell"
	"github.com/bert-suite/server/internal/suite/tools"
	logx "github.com/bert-suite/server/pkg/logger"
	pkgredis "github.com/bert-suite/server/pkg/redis"
)

// AppConfig defines all configurable parameters for the suite server,
// sourced from environment variables (loaded from .env for local runs).
type AppConfig struct {
	Environment core.Environment `envconfig:"ENVIRONMENT" default:"development"`

	// Infrastructure
	Redis pkgredis.Config

	// LLM provider
	APIKey  string `envconfig:"GEMINI_API_KEY" required:"true"`
	BaseURL string `envconfig:"GEMINI_BASE_URL"`

	// Suite configs
	Generation model.GenerationModelConfig
	Chat       model.ChatModelConfig
	Breaker    model.BreakerConfig
	Credits    model.CreditsConfig
	Processing model.ProcessingConfig
	Gateway    model.GatewayConfig
	Transcript model.TranscriptConfig
}

func main() {
	if err := godotenv.Load(".env"); err != nil {
		log.Printf("Warning: Could not load .env file: %v", err)
	}

	var envCfg AppConfig
	if err := envconfig.Process("", &envCfg); err != nil {
		log.Fatalf("Failed to process environment config: %v", err)
	}

	logx.Init(logx.LoggerOpts{Environment: envCfg.Environment, Service: "bert-suite"})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	registry, err := tools.Default()
	if err != nil {
		logx.Fatal().Err(err).Msg("failed to load tool registry")
	}

	client, err := generation.NewClient(ctx, generation.Config{
		APIKey:     envCfg.APIKey,
		BaseURL:    envCfg.BaseURL,
		Generation: envCfg.Generation,
		Chat:       envCfg.Chat,
		Breaker:    envCfg.Breaker,
	})
	if err != nil {
		logx.Fatal().Err(err).Msg("failed to create generation client")
	}

	runner, err := pipeline.New(ctx, client)
	if err != nil {
		logx.Fatal().Err(err).Msg("failed to build intake pipeline")
	}

	transcripts, closeTranscripts := newTranscripts(ctx, envCfg)
	defer closeTranscripts()

	srv := gateway.NewServer(envCfg.Gateway, shell.Deps{
		Registry:           registry,
		Credits:            envCfg.Credits,
		Generator:          runner,
		Validator:          client.Validator(),
		Chat:               client,
		Transcripts:        transcripts,
		ProcessingInterval: envCfg.Processing.Interval,
	})

	logx.Info().
		Str("environment", envCfg.Environment.String()).
		Str("addr", envCfg.Gateway.Addr).
		Int("tools", len(registry.Modes())).
		Int("credits", envCfg.Credits.Initial).
		Msg("suite server starting")

	if err := srv.Start(ctx); err != nil {
		logx.Fatal().Err(err).Msg("gateway stopped")
	}
	logx.Info().Msg("suite server stopped")
}

// newTranscripts picks Redis when REDIS_URL is set and process memory
// otherwise.
func newTranscripts(ctx context.Context, cfg AppConfig) (model.TranscriptRepository, func()) {
	if !cfg.Redis.Enabled() {
		logx.Info().Msg("REDIS_URL not set, keeping transcripts in memory")
		return repo.NewMemoryTranscriptRepository(), func() {}
	}

	ttl, err := time.ParseDuration(cfg.Transcript.TTL)
	if err != nil {
		logx.Fatal().Err(err).Str("value", cfg.Transcript.TTL).Msg("invalid TRANSCRIPT_TTL")
	}

	rdb, err := cfg.Redis.New(ctx)
	if err != nil {
		logx.Fatal().Err(err).Msg("failed to initialise Redis client")
	}
	logx.Info().Dur("ttl", ttl).Msg("connected to Redis for transcripts")

	return repo.NewRedisTranscriptRepository(rdb, ttl), func() {
		if err := rdb.Close(); err != nil {
			logx.Warn().Err(err).Msg("redis close")
		}
	}
}
