// Package server runs the HTTP API with production timeouts and graceful
// shutdown.
package server

import (
	"context"
	"database/sql"
	"fmt"
	"net"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// Server wraps http.Server with shutdown hooks
type Server struct {
	httpServer *http.Server
	config     *Config
	listener   net.Listener
	hooks      []ShutdownHook
	logger     *zap.Logger
}

// Config holds server configuration
type Config struct {
	// Address is the server listen address (e.g., ":8080")
	Address string

	// Handler is the HTTP handler for the server
	Handler http.Handler

	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
	ReadHeaderTimeout time.Duration
	MaxHeaderBytes    int

	// ShutdownTimeout bounds draining in-flight requests and running hooks
	ShutdownTimeout time.Duration

	Logger *zap.Logger
}

// PoolConfig holds database connection pool settings
type PoolConfig struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

// DefaultConfig returns a production-ready server configuration
func DefaultConfig(handler http.Handler) *Config {
	return &Config{
		Address:           ":8080",
		Handler:           handler,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		MaxHeaderBytes:    1 << 20, // 1 MB
		ShutdownTimeout:   30 * time.Second,
	}
}

// New creates a server
func New(config *Config) (*Server, error) {
	if config == nil {
		return nil, fmt.Errorf("server config cannot be nil")
	}
	if config.Handler == nil {
		return nil, fmt.Errorf("handler cannot be nil")
	}

	logger := config.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Server{
		httpServer: &http.Server{
			Addr:              config.Address,
			Handler:           config.Handler,
			ReadTimeout:       config.ReadTimeout,
			WriteTimeout:      config.WriteTimeout,
			IdleTimeout:       config.IdleTimeout,
			ReadHeaderTimeout: config.ReadHeaderTimeout,
			MaxHeaderBytes:    config.MaxHeaderBytes,
			ErrorLog:          zap.NewStdLog(logger.Named("http")),
		},
		config: config,
		logger: logger,
	}, nil
}

// Listen binds the listen address. Run calls it when it has not been called.
func (s *Server) Listen() error {
	if s.listener != nil {
		return nil
	}
	listener, err := net.Listen("tcp", s.config.Address)
	if err != nil {
		return fmt.Errorf("failed to create listener: %w", err)
	}
	s.listener = listener
	return nil
}

// Addr returns the server's network address
func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.config.Address
}

// ConfigurePool applies pool settings to db and verifies it is reachable
func ConfigurePool(ctx context.Context, db *sql.DB, cfg PoolConfig) error {
	if db == nil {
		return fmt.Errorf("database connection cannot be nil")
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}
	return nil
}
