// Package metrics collects balancer metrics from a channel-based event pipeline.
//
// Request handlers, the health prober and the admin interface emit events
// describing what happened:
//   - Instance selections and forward outcomes (status code, latency)
//   - Connection failures and "no instance available" rejections
//   - Probe results and health transitions
//   - Instances added to or removed from the pool
//
// A single collector goroutine applies each event to an in-memory Metrics
// store (served as JSON, with P50/P95/P99 latencies) and to a Prometheus
// registry (served in the exposition format). Emit never blocks the caller:
// when the buffer is full the event is dropped and counted.
//
// Example usage:
//
//	collector := metrics.NewCollector(1000, logger)
//	collector.Start(ctx)
//
//	collector.Emit(metrics.MetricEvent{
//		Type:       metrics.EventForwardCompleted,
//		Instance:   "http://127.0.0.1:5001",
//		Duration:   150 * time.Millisecond,
//		StatusCode: 200,
//	})
//
//	mux.Handle("GET /metrics", collector.Handler())
//	mux.Handle("GET /stats", collector.StatsHandler())
package metrics
