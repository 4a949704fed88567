package loadbalancer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/angeloszaimis/pool-balancer/internal/backend"
	"github.com/angeloszaimis/pool-balancer/internal/metrics"
	"github.com/angeloszaimis/pool-balancer/internal/registry"
)

const balancerOK = "OK"

// Selector picks the instance for the next request.
type Selector interface {
	Next() (registry.Instance, error)
}

// Forwarder re-issues a request against an instance.
type Forwarder interface {
	Forward(ctx context.Context, instanceURL string, req backend.Request) (*backend.Response, error)
}

// Envelope is the body returned for a successfully forwarded request.
type Envelope struct {
	Balancer         string          `json:"balancer"`
	RoutedTo         string          `json:"routed_to"`
	InstanceResponse json.RawMessage `json:"instance_response"`
}

// ErrorBody is the body returned when a request could not be forwarded.
type ErrorBody struct {
	Error string `json:"error"`
}

// Outcome is the client-facing result of routing one request.
type Outcome struct {
	StatusCode int
	Body       any
	// Instance is empty when no instance was selected.
	Instance  string
	RequestID string
}

// LoadBalancer selects a healthy instance and forwards the request to it.
// A failed forward is reported to the client as is; it is neither retried
// against another instance nor fed back into instance health.
type LoadBalancer struct {
	selector  Selector
	forwarder Forwarder
	logger    *slog.Logger
	collector *metrics.Collector
}

func NewLoadBalancer(selector Selector, forwarder Forwarder, logger *slog.Logger, collector *metrics.Collector) *LoadBalancer {
	return &LoadBalancer{
		selector:  selector,
		forwarder: forwarder,
		logger:    logger,
		collector: collector,
	}
}

// Route picks an instance and forwards req to it. Every outcome carries a
// request ID, generated here when the client sent none.
func (lb *LoadBalancer) Route(ctx context.Context, req backend.Request) Outcome {
	if req.RequestID == "" {
		req.RequestID = uuid.NewString()
	}

	inst, err := lb.selector.Next()
	if err != nil {
		lb.logger.Warn("No healthy instances available",
			slog.String("request_id", req.RequestID),
			slog.String("path", req.Path),
			slog.String("client", req.ClientIP))
		lb.collector.Emit(metrics.MetricEvent{Type: metrics.EventNoInstance})

		return Outcome{
			StatusCode: http.StatusServiceUnavailable,
			Body:       ErrorBody{Error: registry.ErrNoInstances.Error()},
			RequestID:  req.RequestID,
		}
	}

	lb.collector.Emit(metrics.MetricEvent{
		Type:     metrics.EventInstanceSelected,
		Instance: inst.URL,
	})

	lb.logger.Debug("Forwarding to instance",
		slog.String("instance", inst.URL),
		slog.String("path", req.Path),
		slog.String("client", req.ClientIP))

	res, err := lb.forwarder.Forward(ctx, inst.URL, req)
	if err != nil {
		lb.logger.Error("Forward failed",
			slog.String("instance", inst.URL),
			slog.String("path", req.Path),
			slog.Any("err", err))
		lb.collector.Emit(metrics.MetricEvent{
			Type:     metrics.EventForwardFailed,
			Instance: inst.URL,
		})

		return Outcome{
			StatusCode: http.StatusInternalServerError,
			Body:       ErrorBody{Error: connectionFailure(inst.URL, err)},
			Instance:   inst.URL,
			RequestID:  req.RequestID,
		}
	}

	lb.collector.Emit(metrics.MetricEvent{
		Type:       metrics.EventForwardCompleted,
		Instance:   inst.URL,
		Duration:   res.Duration,
		StatusCode: res.StatusCode,
	})

	return Outcome{
		StatusCode: res.StatusCode,
		Body: Envelope{
			Balancer:         balancerOK,
			RoutedTo:         inst.URL,
			InstanceResponse: res.Body,
		},
		Instance:  inst.URL,
		RequestID: req.RequestID,
	}
}

func connectionFailure(instanceURL string, err error) string {
	if errors.Is(err, backend.ErrBodyTooLarge) {
		return fmt.Sprintf("response from %s exceeds the size limit", instanceURL)
	}

	var connErr *backend.ConnectionError
	if errors.As(err, &connErr) {
		instanceURL = connErr.Instance
	}
	return fmt.Sprintf("connection failure with %s", instanceURL)
}
