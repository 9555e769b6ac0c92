// Package server provides the public entry point for initializing the
// roboplan server: wiring the inference backend, the session service, the
// template engine, the results writer, and the HTTP API.
//
// Usage:
//
//	srv, err := server.New(ctx)
//	http.ListenAndServe(":8090", srv.Handler)
package server

import (
	"context"
	"fmt"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/roboplan/roboplan/internal/api"
	"github.com/roboplan/roboplan/internal/api/handlers"
	"github.com/roboplan/roboplan/internal/config"
	"github.com/roboplan/roboplan/internal/infer"
	"github.com/roboplan/roboplan/internal/planning"
	"github.com/roboplan/roboplan/internal/results"
	"github.com/roboplan/roboplan/internal/sessions"
	"github.com/roboplan/roboplan/internal/telemetry"
)

// Server holds the initialized roboplan components.
type Server struct {
	// Handler is the HTTP handler with all routes and middleware.
	Handler http.Handler

	// Sessions is the session service, exposed for embedding callers.
	Sessions *sessions.Service

	// Port is the port the server should listen on.
	Port int

	// ShutdownFunc should be called on graceful shutdown to flush telemetry.
	ShutdownFunc func(context.Context) error
}

// New initializes all components from environment configuration.
func New(ctx context.Context) (*Server, error) {
	return NewWithConfig(ctx, config.Load())
}

// NewWithConfig initializes the server with an explicit configuration.
func NewWithConfig(_ context.Context, cfg *config.Config) (*Server, error) {
	if err := planning.ValidateTemplates(); err != nil {
		return nil, fmt.Errorf("validate templates: %w", err)
	}

	shutdown, err := telemetry.Init(cfg.Telemetry)
	if err != nil {
		return nil, fmt.Errorf("init telemetry: %w", err)
	}

	engine, err := infer.New(infer.Config{
		Kind:     cfg.Inference.Kind,
		Endpoint: cfg.Inference.Endpoint,
		APIKey:   cfg.Inference.APIKey,
		Model:    cfg.Inference.Model,
		Timeout:  cfg.Inference.Timeout,
	})
	if err != nil {
		return nil, fmt.Errorf("init inference backend: %w", err)
	}
	log.Info().Str("backend", engine.Kind()).Str("endpoint", cfg.Inference.Endpoint).Msg("inference backend initialized")

	runWriter := results.NewWriter(cfg.Results.Dir)
	tmpl := planning.NewTemplates(nil)
	svc := sessions.NewService(engine, tmpl, runWriter, cfg.Chat.MaxTurns, cfg.Chat.ContextPairs)

	h := handlers.New(svc, engine, runWriter)
	router := api.NewRouter(cfg, h)

	return &Server{
		Handler:      router,
		Sessions:     svc,
		Port:         cfg.Port,
		ShutdownFunc: shutdown,
	}, nil
}
