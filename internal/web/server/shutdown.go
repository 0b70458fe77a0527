package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"go.uber.org/zap"
)

// ShutdownHook runs during graceful shutdown, after the listener stops
// accepting requests
type ShutdownHook func(ctx context.Context) error

// RegisterHook registers a shutdown hook. Hooks run in registration order.
func (s *Server) RegisterHook(hook ShutdownHook) {
	s.hooks = append(s.hooks, hook)
}

// Run serves until ctx is cancelled, then drains in-flight requests and runs
// the shutdown hooks within the shutdown timeout.
func (s *Server) Run(ctx context.Context) error {
	if err := s.Listen(); err != nil {
		return err
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server listening", zap.String("addr", s.Addr()))
		if err := s.httpServer.Serve(s.listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("server failed: %w", err)
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	return s.shutdown()
}

func (s *Server) shutdown() error {
	timeout := s.config.ShutdownTimeout
	if timeout <= 0 {
		timeout = DefaultConfig(nil).ShutdownTimeout
	}
	s.logger.Info("shutting down", zap.Duration("timeout", timeout))

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	var shutdownErr error
	if err := s.httpServer.Shutdown(ctx); err != nil {
		shutdownErr = fmt.Errorf("server shutdown error: %w", err)
		s.logger.Error("server shutdown failed", zap.Error(err))
	}

	for i, hook := range s.hooks {
		if err := hook(ctx); err != nil {
			// remaining hooks still run
			s.logger.Warn("shutdown hook failed", zap.Int("hook", i), zap.Error(err))
		}
	}

	if shutdownErr == nil {
		s.logger.Info("shutdown complete")
	}
	return shutdownErr
}
