package metrics

import (
	"context"
	"log/slog"
	"time"
)

type EventType string

const (
	EventInstanceSelected EventType = "instance_selected"
	EventForwardCompleted EventType = "forward_completed"
	EventForwardFailed    EventType = "forward_failed"
	EventNoInstance       EventType = "no_instance"
	EventProbeCompleted   EventType = "probe_completed"
	EventHealthChanged    EventType = "health_changed"
	EventInstanceAdded    EventType = "instance_added"
	EventInstanceRemoved  EventType = "instance_removed"
)

type MetricEvent struct {
	Type       EventType
	Timestamp  time.Time
	Instance   string
	Duration   time.Duration
	StatusCode int
	Healthy    bool
}

// Collector receives events on a buffered channel and applies them to the
// in-memory Metrics and the Prometheus registry from a single goroutine.
type Collector struct {
	eventCh    chan MetricEvent
	metrics    *Metrics
	prometheus *Prometheus
	logger     *slog.Logger
}

func NewCollector(bufferSize int, logger *slog.Logger) *Collector {
	if bufferSize < 1 {
		bufferSize = 1
	}

	return &Collector{
		eventCh:    make(chan MetricEvent, bufferSize),
		metrics:    NewMetrics(),
		prometheus: NewPrometheus(),
		logger:     logger,
	}
}

// Emit queues an event without blocking. Events are dropped when the buffer
// is full. Emit on a nil Collector is a no-op, so components can run with
// metrics disabled.
func (c *Collector) Emit(event MetricEvent) {
	if c == nil {
		return
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	select {
	case c.eventCh <- event:
	default:
		c.prometheus.droppedEvents.Inc()
	}
}

func (c *Collector) Start(ctx context.Context) {
	go c.run(ctx)
}

func (c *Collector) run(ctx context.Context) {
	c.logger.Info("Metrics collector started")
	defer c.logger.Info("Metrics collector stopped")

	for {
		select {
		case event := <-c.eventCh:
			c.processEvent(event)
		case <-ctx.Done():
			c.drain()
			return
		}
	}
}

func (c *Collector) processEvent(event MetricEvent) {
	c.prometheus.observe(event)

	switch event.Type {
	case EventInstanceSelected:
		c.metrics.RecordSelection(event.Instance)

	case EventForwardCompleted:
		c.metrics.RecordResponse(event.Instance, event.Duration, event.StatusCode)

	case EventForwardFailed:
		c.metrics.RecordFailure(event.Instance)

	case EventNoInstance:
		c.metrics.RecordUnavailable()

	case EventHealthChanged:
		c.metrics.UpdateHealthStatus(event.Instance, event.Healthy)

	case EventInstanceRemoved:
		c.metrics.Forget(event.Instance)
	}
}

func (c *Collector) drain() {
	for {
		select {
		case event := <-c.eventCh:
			c.processEvent(event)
		default:
			return
		}
	}
}

func (c *Collector) Snapshot() Snapshot {
	return c.metrics.Snapshot()
}

func (c *Collector) Prometheus() *Prometheus {
	return c.prometheus
}
