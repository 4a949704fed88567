package metrics

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	promNamespace        = "balancer"
	promForwardSubsystem = "forward"
	promPoolSubsystem    = "pool"
	promProbeSubsystem   = "probe"
)

// Prometheus mirrors collector events into a dedicated registry.
type Prometheus struct {
	registry *prometheus.Registry

	selections     *prometheus.CounterVec
	forwards       *prometheus.CounterVec
	forwardErrors  *prometheus.CounterVec
	forwardLatency *prometheus.HistogramVec
	unavailable    prometheus.Counter
	probes         *prometheus.CounterVec
	instanceUp     *prometheus.GaugeVec
	poolChanges    *prometheus.CounterVec
	droppedEvents  prometheus.Counter
}

func NewPrometheus() *Prometheus {
	p := &Prometheus{
		registry: prometheus.NewRegistry(),
		selections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: promNamespace,
			Subsystem: promForwardSubsystem,
			Name:      "selections_total",
			Help:      "Number of times an instance was picked by the round-robin selector.",
		}, []string{"instance"}),
		forwards: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: promNamespace,
			Subsystem: promForwardSubsystem,
			Name:      "requests_total",
			Help:      "Forwarded requests answered by an instance, by status code.",
		}, []string{"instance", "code"}),
		forwardErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: promNamespace,
			Subsystem: promForwardSubsystem,
			Name:      "errors_total",
			Help:      "Forwarded requests that failed to reach an instance.",
		}, []string{"instance"}),
		forwardLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: promNamespace,
			Subsystem: promForwardSubsystem,
			Name:      "duration_seconds",
			Help:      "Duration in seconds of forwarded requests.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"instance"}),
		unavailable: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: promNamespace,
			Subsystem: promPoolSubsystem,
			Name:      "unavailable_total",
			Help:      "Requests rejected because no healthy instance was available.",
		}),
		probes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: promNamespace,
			Subsystem: promProbeSubsystem,
			Name:      "total",
			Help:      "Health probes by instance and result.",
		}, []string{"instance", "result"}),
		instanceUp: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: promNamespace,
			Subsystem: promPoolSubsystem,
			Name:      "instance_up",
			Help:      "1 if the last health probe of the instance succeeded.",
		}, []string{"instance"}),
		poolChanges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: promNamespace,
			Subsystem: promPoolSubsystem,
			Name:      "changes_total",
			Help:      "Administrative pool mutations by operation.",
		}, []string{"op"}),
		droppedEvents: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: promNamespace,
			Name:      "metric_events_dropped_total",
			Help:      "Metric events dropped because the collector buffer was full.",
		}),
	}

	p.registry.MustRegister(
		p.selections,
		p.forwards,
		p.forwardErrors,
		p.forwardLatency,
		p.unavailable,
		p.probes,
		p.instanceUp,
		p.poolChanges,
		p.droppedEvents,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return p
}

func (p *Prometheus) observe(event MetricEvent) {
	switch event.Type {
	case EventInstanceSelected:
		p.selections.WithLabelValues(event.Instance).Inc()

	case EventForwardCompleted:
		p.forwards.WithLabelValues(event.Instance, strconv.Itoa(event.StatusCode)).Inc()
		p.forwardLatency.WithLabelValues(event.Instance).Observe(event.Duration.Seconds())

	case EventForwardFailed:
		p.forwardErrors.WithLabelValues(event.Instance).Inc()

	case EventNoInstance:
		p.unavailable.Inc()

	case EventProbeCompleted:
		result := "failure"
		if event.Healthy {
			result = "success"
		}
		p.probes.WithLabelValues(event.Instance, result).Inc()

	case EventHealthChanged:
		up := 0.0
		if event.Healthy {
			up = 1
		}
		p.instanceUp.WithLabelValues(event.Instance).Set(up)

	case EventInstanceAdded:
		p.poolChanges.WithLabelValues("add").Inc()
		p.instanceUp.WithLabelValues(event.Instance).Set(0)

	case EventInstanceRemoved:
		p.poolChanges.WithLabelValues("remove").Inc()
		p.forget(event.Instance)
	}
}

// forget drops every series labelled with instance.
func (p *Prometheus) forget(instance string) {
	labels := prometheus.Labels{"instance": instance}

	p.selections.DeletePartialMatch(labels)
	p.forwards.DeletePartialMatch(labels)
	p.forwardErrors.DeletePartialMatch(labels)
	p.forwardLatency.DeletePartialMatch(labels)
	p.probes.DeletePartialMatch(labels)
	p.instanceUp.DeletePartialMatch(labels)
}

// Registry exposes the underlying registry, mainly for tests.
func (p *Prometheus) Registry() *prometheus.Registry {
	return p.registry
}

func (p *Prometheus) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{})
}
