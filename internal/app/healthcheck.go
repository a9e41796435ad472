package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"
)

// healthHandler answers 200 while a committed graph is live and 503 before
// the first build or after a failed one.
func (a *App) healthHandler(w http.ResponseWriter, r *http.Request) {
	a.logger.Debug("Health check endpoint hit.", "remote_addr", r.RemoteAddr, "path", r.URL.Path)
	g := a.Graph()
	if g == nil || !g.IsCommitted() {
		w.WriteHeader(http.StatusServiceUnavailable)
		fmt.Fprintln(w, "NOT READY")
		return
	}
	w.WriteHeader(http.StatusOK)
	fmt.Fprintln(w, "OK")
}

// startHealthCheckServer binds the configured port and serves /health in
// the background. The bound address is returned so tests can use port 0.
func (a *App) startHealthCheckServer() (string, error) {
	a.logger.Debug("Configuring health check server.")
	if a.config.HealthcheckPort <= 0 {
		a.logger.Debug("Health check server not started: disabled")
		return "", nil
	}
	return a.serveHealthCheck(fmt.Sprintf(":%d", a.config.HealthcheckPort))
}

func (a *App) serveHealthCheck(addr string) (string, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return "", fmt.Errorf("health check server: %w", err)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/health", a.healthHandler)
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	a.mu.Lock()
	a.httpServer = srv
	a.mu.Unlock()

	bound := ln.Addr().String()
	go func() {
		a.logger.Info("🩺 Health check server starting", "address", fmt.Sprintf("http://%s/health", bound))
		// Serve returns ErrServerClosed on graceful shutdown.
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("Health check server failed unexpectedly", "error", err)
		}
	}()
	return bound, nil
}

func (a *App) closeHealthCheckServer() error {
	a.mu.Lock()
	srv := a.httpServer
	a.httpServer = nil
	a.mu.Unlock()

	if srv == nil {
		a.logger.Debug("Health check server was not running.")
		return nil
	}

	ctx, cancel := context.WithTimeout(a.ctx, 5*time.Second)
	defer cancel()

	a.logger.Info("🩺 Shutting down health check server...")
	if err := srv.Shutdown(ctx); err != nil {
		a.logger.Error("Health check server shutdown failed", "error", err)
		return err
	}
	a.logger.Debug("Health check server shut down gracefully.")
	return nil
}
