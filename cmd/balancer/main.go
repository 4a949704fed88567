package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/angeloszaimis/pool-balancer/config"
	"github.com/angeloszaimis/pool-balancer/internal/admin"
	"github.com/angeloszaimis/pool-balancer/internal/backend"
	"github.com/angeloszaimis/pool-balancer/internal/handler"
	"github.com/angeloszaimis/pool-balancer/internal/healthcheck"
	"github.com/angeloszaimis/pool-balancer/internal/httpserver"
	"github.com/angeloszaimis/pool-balancer/internal/loadbalancer"
	"github.com/angeloszaimis/pool-balancer/internal/metrics"
	"github.com/angeloszaimis/pool-balancer/internal/registry"
	"github.com/angeloszaimis/pool-balancer/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", slog.Any("err", err))
		os.Exit(1)
	}

	log := logger.New(cfg.Logging.Level, true, cfg.Server.Environment)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	b := newBalancer(cfg, log)
	b.start(ctx)

	srv, err := httpserver.New(cfg.Server.Address, b.router, httpserver.Timeouts{
		Read:  config.Duration(cfg.Server.ReadTimeout),
		Write: config.Duration(cfg.Server.WriteTimeout),
		Idle:  config.Duration(cfg.Server.IdleTimeout),
	})
	if err != nil {
		log.Error("Failed to create server", slog.Any("err", err))
		os.Exit(1)
	}

	log.Info("Load balancer listening",
		slog.String("addr", srv.Addr()),
		slog.Int("instances", b.registry.Len()),
		slog.Bool("metrics", b.collector != nil))

	srvErrCh := make(chan error, 1)

	go func() {
		srvErrCh <- srv.Start()
	}()

	select {
	case <-ctx.Done():
		log.Info("Shutting down gracefully...")
		if err := srv.Shutdown(context.Background()); err != nil {
			log.Error("Error during shutdown", slog.Any("err", err))
		}
	case err := <-srvErrCh:
		if err != nil {
			log.Error("Error starting load balancer", slog.Any("err", err))
			os.Exit(1)
		}
	}
}

// balancer holds the wired components of one running load balancer.
type balancer struct {
	registry  *registry.Registry
	prober    *healthcheck.Prober
	collector *metrics.Collector
	router    *http.ServeMux
}

func newBalancer(cfg *config.Config, log *slog.Logger) *balancer {
	reg := registry.New(cfg.Backends...)

	var collector *metrics.Collector
	if cfg.Metrics.Enabled {
		collector = metrics.NewCollector(cfg.Metrics.BufferSize, log)
	}

	prober := healthcheck.NewProber(reg, healthcheck.Options{
		Interval:    config.Duration(cfg.HealthCheck.Interval),
		Timeout:     config.Duration(cfg.HealthCheck.Timeout),
		Path:        cfg.HealthCheck.Path,
		Concurrency: cfg.HealthCheck.Concurrency,
	}, log, collector)

	forwarder := backend.New(config.Duration(cfg.Forward.Timeout), cfg.Forward.MaxBodyBytes)
	lb := loadbalancer.NewLoadBalancer(registry.NewRoundRobin(reg), forwarder, log, collector)

	return &balancer{
		registry:  reg,
		prober:    prober,
		collector: collector,
		router: setupRouter(
			handler.NewLoadBalancerHandler(log, lb),
			admin.NewHandler(reg, log, collector),
			collector,
		),
	}
}

// start launches the background workers. They stop when ctx is cancelled.
func (b *balancer) start(ctx context.Context) {
	if b.collector != nil {
		b.collector.Start(ctx)
	}
	go b.prober.Run(ctx)
}
