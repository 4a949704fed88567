package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net"
	"net/http"
	"strings"

	"github.com/angeloszaimis/pool-balancer/internal/backend"
	"github.com/angeloszaimis/pool-balancer/internal/loadbalancer"
)

// Router routes one request to the pool.
type Router interface {
	Route(ctx context.Context, req backend.Request) loadbalancer.Outcome
}

// LoadBalancerHandler serves the forwarded routes: /process and the GET
// catch-all.
type LoadBalancerHandler struct {
	logger   *slog.Logger
	balancer Router
}

func NewLoadBalancerHandler(logger *slog.Logger, balancer Router) *LoadBalancerHandler {
	return &LoadBalancerHandler{
		logger:   logger,
		balancer: balancer,
	}
}

func (h *LoadBalancerHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.Header().Set("Allow", "GET, HEAD")
		writeJSON(w, http.StatusMethodNotAllowed, loadbalancer.ErrorBody{Error: "method not allowed"})
		return
	}

	clientIP := extractClientIP(r)

	h.logger.Info("Received request",
		slog.String("from", clientIP),
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
		slog.String("proto", r.Proto),
		slog.String("host", r.Host),
		slog.String("user_agent", r.UserAgent()))

	out := h.balancer.Route(r.Context(), backend.Request{
		Path:      r.URL.EscapedPath(),
		RawQuery:  r.URL.RawQuery,
		RequestID: r.Header.Get(backend.HeaderRequestID),
		ClientIP:  clientIP,
	})

	if out.Instance != "" {
		w.Header().Set("X-Backend-Server", out.Instance)
	}
	if out.RequestID != "" {
		w.Header().Set(backend.HeaderRequestID, out.RequestID)
	}

	writeJSON(w, out.StatusCode, out.Body)
}

func extractClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		return strings.TrimSpace(strings.Split(xff, ",")[0])
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
