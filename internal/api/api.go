// Package api provides the HTTP REST API server.
package api

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/good-yellow-bee/alertd/internal/engine"
)

// Config contains HTTP API server configuration.
type Config struct {
	Address            string
	RateLimitPerSecond float64 // Ingest requests per second per client IP
	RateLimitBurst     int
	Verbose            bool
}

// SetDefaults applies default values for missing configuration.
func (c *Config) SetDefaults() {
	if c.Address == "" {
		c.Address = ":8080"
	}
	if c.RateLimitPerSecond == 0 {
		c.RateLimitPerSecond = 50
	}
	if c.RateLimitBurst == 0 {
		c.RateLimitBurst = 100
	}
}

// Server is the HTTP API server.
type Server struct {
	config *Config
	engine *engine.Engine
	server *http.Server
}

// New creates a new API server over the processing engine.
func New(cfg *Config, eng *engine.Engine) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if eng == nil {
		return nil, fmt.Errorf("engine is required")
	}

	cfg.SetDefaults()

	s := &Server{
		config: cfg,
		engine: eng,
	}

	s.server = &http.Server{
		Addr:         cfg.Address,
		Handler:      s.setupRouter(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s, nil
}

// Run starts the HTTP server and blocks until context is canceled.
func (s *Server) Run(ctx context.Context) error {
	errChan := make(chan error, 1)

	go func() {
		log.Printf("HTTP API listening on %s", s.config.Address)
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- err
		}
	}()

	select {
	case <-ctx.Done():
		log.Printf("shutting down HTTP API server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return s.server.Shutdown(shutdownCtx)
	case err := <-errChan:
		return err
	}
}

// Address returns the configured listen address.
func (s *Server) Address() string {
	return s.config.Address
}
