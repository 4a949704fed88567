// Instance is a demo backend for the load balancer. It answers GET /health
// and GET /process with JSON naming its port, and can be switched unhealthy
// to watch the balancer route around it.
//
// Usage:
//
//	go run ./cmd/instance -port 5001
//	curl -X POST localhost:5001/health/down
package main

import (
	"context"
	"encoding/json"
	"flag"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"sync/atomic"
	"syscall"

	"github.com/google/uuid"

	"github.com/angeloszaimis/pool-balancer/internal/httpserver"
	"github.com/angeloszaimis/pool-balancer/pkg/logger"
)

type instance struct {
	port    int
	healthy atomic.Bool
	logger  *slog.Logger
}

func newInstance(port int, log *slog.Logger) *instance {
	inst := &instance{port: port, logger: log}
	inst.healthy.Store(true)
	return inst
}

func (i *instance) routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", i.health)
	mux.HandleFunc("POST /health/down", i.setHealthy(false))
	mux.HandleFunc("POST /health/up", i.setHealthy(true))
	mux.HandleFunc("GET /process", i.process)
	return mux
}

func (i *instance) health(w http.ResponseWriter, r *http.Request) {
	if !i.healthy.Load() {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"status": "DOWN", "instance": i.port})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "OK", "instance": i.port})
}

func (i *instance) setHealthy(healthy bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		i.healthy.Store(healthy)
		i.logger.Info("Health switched", slog.Bool("healthy", healthy))
		w.WriteHeader(http.StatusNoContent)
	}
}

func (i *instance) process(w http.ResponseWriter, r *http.Request) {
	requestID := r.Header.Get("X-Request-Id")
	if requestID == "" {
		requestID = uuid.NewString()
	}

	i.logger.Info("Processing request",
		slog.String("request_id", requestID),
		slog.String("from", r.Header.Get("X-Forwarded-For")))

	w.Header().Set("X-Request-Id", requestID)
	writeJSON(w, http.StatusOK, map[string]any{
		"message":    "request processed",
		"instance":   i.port,
		"request_id": requestID,
	})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func main() {
	host := flag.String("host", "127.0.0.1", "interface to listen on")
	port := flag.Int("port", 5001, "port to listen on")
	level := flag.String("log-level", "info", "log level")
	flag.Parse()

	log := logger.New(*level, false, "dev").With(slog.Int("port", *port))

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	addr := net.JoinHostPort(*host, strconv.Itoa(*port))
	srv, err := httpserver.New(addr, newInstance(*port, log).routes(), httpserver.Timeouts{})
	if err != nil {
		log.Error("Failed to create server", slog.Any("err", err))
		os.Exit(1)
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("Starting instance", slog.String("addr", addr))
		errCh <- srv.Start()
	}()

	select {
	case <-ctx.Done():
		if err := srv.Shutdown(context.Background()); err != nil {
			log.Error("Error during shutdown", slog.Any("err", err))
		}
	case err := <-errCh:
		if err != nil {
			log.Error("Instance stopped", slog.Any("err", err))
			os.Exit(1)
		}
	}
}
