package healthcheck

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/angeloszaimis/pool-balancer/internal/metrics"
	"github.com/angeloszaimis/pool-balancer/internal/registry"
)

const (
	DefaultInterval    = 5 * time.Second
	DefaultTimeout     = 1 * time.Second
	DefaultPath        = "/health"
	DefaultConcurrency = 16
)

// Options tune a Prober. Zero values select the defaults above.
type Options struct {
	Interval    time.Duration
	Timeout     time.Duration
	Path        string
	Concurrency int
}

// Prober periodically checks every registered instance.
type Prober struct {
	registry  *registry.Registry
	client    *http.Client
	opts      Options
	logger    *slog.Logger
	collector *metrics.Collector
}

func NewProber(reg *registry.Registry, opts Options, logger *slog.Logger, collector *metrics.Collector) *Prober {
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.Path == "" {
		opts.Path = DefaultPath
	}
	if !strings.HasPrefix(opts.Path, "/") {
		opts.Path = "/" + opts.Path
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = DefaultConcurrency
	}

	return &Prober{
		registry:  reg,
		client:    &http.Client{Timeout: opts.Timeout},
		opts:      opts,
		logger:    logger,
		collector: collector,
	}
}

// Run probes the pool every interval until ctx is cancelled. The first cycle
// runs one interval after start.
func (p *Prober) Run(ctx context.Context) {
	ticker := time.NewTicker(p.opts.Interval)
	defer ticker.Stop()

	p.logger.Info("Health prober started",
		slog.Duration("interval", p.opts.Interval),
		slog.Duration("timeout", p.opts.Timeout))

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("Health prober stopped")
			return

		case <-ticker.C:
			p.ProbeAll(ctx)
		}
	}
}

// ProbeAll runs one cycle over a snapshot of the registry and returns once
// every probe has finished. A failing probe never affects the others.
func (p *Prober) ProbeAll(ctx context.Context) {
	snap := p.registry.Snapshot()

	var g errgroup.Group
	g.SetLimit(p.opts.Concurrency)

	for _, inst := range snap.Instances {
		g.Go(func() error {
			p.probe(ctx, inst)
			return nil
		})
	}

	_ = g.Wait()
}

func (p *Prober) probe(ctx context.Context, inst registry.Instance) {
	instanceURL := inst.URL
	healthy := p.check(ctx, instanceURL)
	if ctx.Err() != nil {
		// Shutting down; a cancelled probe says nothing about the instance.
		return
	}

	p.collector.Emit(metrics.MetricEvent{
		Type:     metrics.EventProbeCompleted,
		Instance: instanceURL,
		Healthy:  healthy,
	})

	// The instance may have been removed, or removed and added again, while
	// the probe was in flight; only the registration probed is updated.
	if !p.registry.SetStatusOf(inst, healthy) {
		return
	}

	p.collector.Emit(metrics.MetricEvent{
		Type:     metrics.EventHealthChanged,
		Instance: instanceURL,
		Healthy:  healthy,
	})

	if healthy {
		p.logger.Info("Instance is back up", slog.String("instance", instanceURL))
	} else {
		p.logger.Warn("Instance is down", slog.String("instance", instanceURL))
	}
}

// check reports whether GET <instance><path> answered 2xx within the timeout.
func (p *Prober) check(ctx context.Context, instanceURL string) bool {
	ctx, cancel := context.WithTimeout(ctx, p.opts.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimRight(instanceURL, "/")+p.opts.Path, nil)
	if err != nil {
		p.logger.Debug("Failed to build health request",
			slog.String("instance", instanceURL),
			slog.Any("err", err))
		return false
	}

	res, err := p.client.Do(req)
	if err != nil {
		p.logger.Debug("Health probe failed",
			slog.String("instance", instanceURL),
			slog.Any("err", err))
		return false
	}
	defer res.Body.Close()

	return res.StatusCode >= 200 && res.StatusCode < 300
}
