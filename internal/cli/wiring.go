package cli

import (
	"context"
	"fmt"
	"net/http"
	"path/filepath"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mtlfinder/voyago/internal/agent"
	"github.com/mtlfinder/voyago/internal/config"
	"github.com/mtlfinder/voyago/internal/llm"
	"github.com/mtlfinder/voyago/internal/session"
	"github.com/mtlfinder/voyago/internal/store"
	"github.com/mtlfinder/voyago/internal/tools"
)

// buildSessionStore creates the configured session backend. The returned
// cleanup function closes whatever the backend holds open.
func buildSessionStore(ctx context.Context, cfg config.Config) (session.Store, func(), error) {
	switch cfg.Session.Store {
	case "sqlite":
		dbPath := cfg.Session.SQLitePath
		if dbPath == "" {
			dbPath = filepath.Join(paths.Data, "voyago.db")
		}
		db, err := store.Open(dbPath, log)
		if err != nil {
			return nil, nil, fmt.Errorf("opening database: %w", err)
		}
		log.Info().Str("path", dbPath).Msg("using SQLite session store")
		return store.NewSQLiteSessionStore(db), func() { db.Close() }, nil

	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Session.Redis.Addr,
			Password: cfg.Session.Redis.Password,
			DB:       cfg.Session.Redis.DB,
		})
		ttl := time.Duration(cfg.Session.Redis.TTLHours) * time.Hour
		rs := store.NewRedisSessionStore(client, ttl, log)
		if err := rs.Ping(ctx); err != nil {
			client.Close()
			return nil, nil, fmt.Errorf("connecting to redis at %s: %w", cfg.Session.Redis.Addr, err)
		}
		log.Info().Str("addr", cfg.Session.Redis.Addr).Msg("using Redis session store")
		return rs, func() { client.Close() }, nil

	default:
		log.Info().Msg("using in-memory session store")
		return session.NewMemoryStore(), func() {}, nil
	}
}

// buildToolRegistry assembles the five travel tools against the configured
// upstream services.
func buildToolRegistry(cfg config.Config) (*tools.Registry, error) {
	registry := tools.NewRegistry(log)

	datetime, err := tools.NewDatetimeTool()
	if err != nil {
		return nil, err
	}
	registry.Register(datetime)

	registry.Register(tools.NewGeocodeTool(
		cfg.Upstream.Geocoder.BaseURL,
		httpClient(cfg.Upstream.Geocoder.TimeoutSeconds),
		log,
	))

	registry.Register(tools.NewWeatherTool(
		cfg.Upstream.Weather.BaseURL,
		httpClient(cfg.Upstream.Weather.TimeoutSeconds),
		log,
	))

	planner, err := tools.NewPlannerTool(
		cfg.Upstream.Planner.URL,
		httpClient(cfg.Upstream.Planner.TimeoutSeconds),
		log,
	)
	if err != nil {
		return nil, err
	}
	registry.Register(planner)

	registry.Register(tools.NewAlertsTool(
		cfg.Upstream.Transit.TripUpdatesURL,
		cfg.Upstream.Transit.APIKey,
		httpClient(cfg.Upstream.Transit.TimeoutSeconds),
		log,
	))

	return registry, nil
}

// buildRunner wires the model client, session store, and tools into the
// conversation runner.
func buildRunner(cfg config.Config, sessions session.Store, registry *tools.Registry) (*agent.Runner, error) {
	if cfg.Model.APIKey == "" {
		return nil, fmt.Errorf("no model API key configured (set model.apiKey or MISTRAL_API_KEY)")
	}

	client := llm.NewMistralClient(
		cfg.Model.APIKey,
		cfg.Model.Model,
		cfg.Model.BaseURL,
		time.Duration(cfg.Model.TimeoutSeconds)*time.Second,
	)

	return agent.NewRunner(
		agent.RunnerConfig{
			Model:             cfg.Model.Model,
			MaxTokens:         cfg.Model.MaxTokens,
			Temperature:       cfg.Model.Temperature,
			MaxToolRounds:     cfg.Chat.MaxToolRounds,
			ReplayToolHistory: cfg.Chat.ReplayHistory(),
		},
		client,
		sessions,
		registry,
		log,
	), nil
}

func httpClient(timeoutSeconds int) *http.Client {
	return &http.Client{Timeout: time.Duration(timeoutSeconds) * time.Second}
}
