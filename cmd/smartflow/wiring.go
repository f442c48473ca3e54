package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/sicko7947/smartflow"
	"github.com/sicko7947/smartflow/cache"
	"github.com/sicko7947/smartflow/collaborator"
	"github.com/sicko7947/smartflow/engine"
	"github.com/sicko7947/smartflow/store"
)

// closer releases a backend opened at startup
type closer func() error

func noopCloser() error { return nil }

// NewLogger builds the process logger. Console output follows the engine's
// default format; json writes one object per line.
func NewLogger(cfg LogConfig, out io.Writer) (zerolog.Logger, error) {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		return zerolog.Nop(), fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
	}

	if cfg.Format == "console" {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}
	return zerolog.New(out).With().Timestamp().Logger().Level(level), nil
}

// OpenStore connects the configured execution store
func OpenStore(ctx context.Context, cfg StoreConfig, logger zerolog.Logger) (smartflow.ExecutionStore, closer, error) {
	switch cfg.Driver {
	case "dynamodb":
		client, err := store.NewDynamoDBClient(ctx, cfg.DynamoDB.Region, cfg.DynamoDB.Endpoint)
		if err != nil {
			return nil, nil, err
		}
		logger.Info().Str("table", cfg.DynamoDB.Table).Msg("Using DynamoDB store")
		return store.NewDynamoDBStore(client, cfg.DynamoDB.Table), noopCloser, nil

	case "postgres":
		pg, err := store.OpenPostgresStore(ctx, cfg.Postgres.DSN)
		if err != nil {
			return nil, nil, err
		}
		logger.Info().Msg("Using PostgreSQL store")
		return pg, pg.Close, nil

	default:
		logger.Info().Msg("Using in-memory store")
		return store.NewMemoryStore(), noopCloser, nil
	}
}

// OpenCache builds the configured result cache; nil disables caching
func OpenCache(ctx context.Context, cfg CacheConfig, logger zerolog.Logger) (smartflow.ResultCache, closer, error) {
	if cfg.Driver == "none" {
		return nil, noopCloser, nil
	}

	local, err := cache.NewLRUCache(cfg.Size)
	if err != nil {
		return nil, nil, err
	}
	if cfg.Driver == "memory" {
		logger.Info().Int("size", cfg.Size).Msg("Using in-memory result cache")
		return local, noopCloser, nil
	}

	shared, err := cache.DialRedis(ctx, cfg.Redis.Address, cfg.Redis.Password, cfg.Redis.Database,
		cache.WithKeyPrefix(cfg.Redis.KeyPrefix),
		cache.WithTTL(cfg.Redis.TTL),
	)
	if err != nil {
		return nil, nil, err
	}
	logger.Info().Str("address", cfg.Redis.Address).Msg("Using redis result cache")
	return cache.NewTiered(local, shared), shared.Close, nil
}

// NewCollaborators creates HTTP clients for every configured endpoint
func NewCollaborators(cfg CollaboratorsConfig) engine.Collaborators {
	return engine.Collaborators{
		Extraction:    newHTTPCollaborator("extraction", cfg.Extraction),
		Summarization: newHTTPCollaborator("summarization", cfg.Summarization),
		Custom:        newHTTPCollaborator("custom", cfg.Custom),
	}
}

func newHTTPCollaborator(name string, cfg EndpointConfig) smartflow.Collaborator {
	if cfg.URL == "" {
		return nil
	}

	opts := []collaborator.Option{
		collaborator.WithTimeout(cfg.Timeout),
		collaborator.WithCircuitBreaker(cfg.MaxFailures, cfg.OpenDuration),
	}
	for k, v := range cfg.Headers {
		opts = append(opts, collaborator.WithHeader(k, os.ExpandEnv(v)))
	}
	return collaborator.NewHTTPClient(name, cfg.URL, opts...)
}
