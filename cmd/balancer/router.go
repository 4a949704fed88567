package main

import (
	"net/http"

	"github.com/angeloszaimis/pool-balancer/internal/admin"
	"github.com/angeloszaimis/pool-balancer/internal/handler"
	"github.com/angeloszaimis/pool-balancer/internal/metrics"
)

// setupRouter mounts the admin and metrics routes ahead of the forwarding
// catch-all. The catch-all is registered without a method so the handler
// answers non-GET requests with its own 405 body.
func setupRouter(loadBalancerHandler *handler.LoadBalancerHandler, adminHandler *admin.Handler, metricsCollector *metrics.Collector) *http.ServeMux {
	mux := http.NewServeMux()

	adminHandler.Register(mux)

	if metricsCollector != nil {
		mux.Handle("GET /metrics", metricsCollector.Handler())
		mux.Handle("GET /stats", metricsCollector.StatsHandler())
	}

	mux.Handle("GET /process", loadBalancerHandler)
	mux.Handle("/{path...}", loadBalancerHandler)

	return mux
}
