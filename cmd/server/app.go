package main

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"

	"github.com/vibe-presenting/server/internal/config"
	"github.com/vibe-presenting/server/internal/db"
	"github.com/vibe-presenting/server/internal/services"
)

// app holds the long-lived backends shared by the commands
type app struct {
	cfg       *config.Config
	database  *sql.DB
	store     services.Store
	feedback  services.FeedbackStore
	ai        *services.AIClient
	generator services.SlideGenerator
	remotes   *services.RemoteService
	closers   []func() error
}

func newApp(cfg *config.Config) (*app, error) {
	a := &app{cfg: cfg}

	// Initialize database
	if cfg.NeedsSQLite() {
		database, err := db.InitDatabase(cfg.Storage.DBPath)
		if err != nil {
			return nil, fmt.Errorf("initialize database: %w", err)
		}
		a.database = database
		a.closers = append(a.closers, database.Close)
	}

	switch cfg.Storage.Driver {
	case "file":
		store, err := services.NewFileStore(cfg.Storage.DataDir)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.store = store
	default:
		a.store = services.NewSQLiteStore(a.database)
	}

	switch cfg.Storage.FeedbackDriver {
	case "redis":
		feedback, err := services.NewRedisFeedbackStore(cfg.Storage.RedisURL)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.feedback = feedback
		a.closers = append(a.closers, feedback.Close)
	default:
		a.feedback = services.NewSQLiteStore(a.database)
	}

	if cfg.Storage.Remotes {
		a.remotes = services.NewRemoteService(a.database)
	}

	if cfg.AI.Enabled() {
		a.ai = services.NewAIClient(services.AIClientOptions{
			BaseURL:         cfg.AI.BaseURL,
			APIKey:          cfg.AI.APIKey,
			Model:           cfg.AI.Model,
			ImageModel:      cfg.AI.ImageModel,
			TranscribeModel: cfg.AI.TranscribeModel,
			Timeout:         cfg.AI.GeneratorTimeout,
		})
		a.generator = services.NewLLMGenerator(a.ai)
		slog.Info("AI features enabled", "base_url", cfg.AI.BaseURL, "model", cfg.AI.Model)
	} else {
		slog.Warn("AI_API_KEY not set, slide generation and media endpoints are disabled")
	}

	slog.Info("storage ready", "store", cfg.Storage.Driver, "feedback", cfg.Storage.FeedbackDriver)
	return a, nil
}

// rooms creates the room registry bound to ctx
func (a *app) rooms(ctx context.Context) *services.WebSocketService {
	return services.NewWebSocketService(ctx, services.ServiceOptions{
		Store:            a.store,
		Feedback:         a.feedback,
		Generator:        a.generator,
		Defaults:         a.cfg.Room.Defaults(),
		GeneratorTimeout: a.cfg.AI.GeneratorTimeout,
		IdleTimeout:      a.cfg.Room.IdleTimeout,
	})
}

// Close releases the backends in reverse order of creation
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			slog.Warn("close failed", "error", err)
		}
	}
	a.closers = nil
}

// setupLogging installs the default slog logger
func setupLogging(w io.Writer, cfg config.LogConfig) {
	opts := &slog.HandlerOptions{Level: cfg.SlogLevel()}
	var handler slog.Handler
	if cfg.Format == "text" {
		handler = slog.NewTextHandler(w, opts)
	} else {
		handler = slog.NewJSONHandler(w, opts)
	}
	slog.SetDefault(slog.New(handler))
}
