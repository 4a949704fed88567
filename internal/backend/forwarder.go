package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	DefaultTimeout      = 2 * time.Second
	DefaultMaxBodyBytes = 1 << 20

	HeaderRequestID    = "X-Request-Id"
	HeaderForwardedFor = "X-Forwarded-For"
)

var (
	// ErrConnection marks failures to reach an instance or read its reply.
	ErrConnection = errors.New("connection failure")
	// ErrBodyTooLarge is returned when a reply exceeds the body limit.
	ErrBodyTooLarge = errors.New("response body too large")
)

// ConnectionError reports which instance could not be reached.
type ConnectionError struct {
	Instance string
	Err      error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("connection failure with %s: %v", e.Instance, e.Err)
}

func (e *ConnectionError) Unwrap() []error {
	return []error{ErrConnection, e.Err}
}

// Request describes the inbound call to re-issue against an instance.
type Request struct {
	// Path is the escaped request path, starting with "/".
	Path      string
	RawQuery  string
	RequestID string
	ClientIP  string
}

// Response is what the instance answered.
type Response struct {
	StatusCode int
	// Body is the instance body as JSON. Non-JSON bodies are wrapped in a
	// JSON string; an empty body becomes null.
	Body      json.RawMessage
	RequestID string
	Duration  time.Duration
}

// Forwarder issues GET requests against instances with a bounded timeout.
// It never retries and never changes instance health.
type Forwarder struct {
	client       *http.Client
	timeout      time.Duration
	maxBodyBytes int64
}

// New creates a Forwarder. Non-positive arguments fall back to the defaults.
func New(timeout time.Duration, maxBodyBytes int64) *Forwarder {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if maxBodyBytes <= 0 {
		maxBodyBytes = DefaultMaxBodyBytes
	}

	return &Forwarder{
		client:       &http.Client{Timeout: timeout},
		timeout:      timeout,
		maxBodyBytes: maxBodyBytes,
	}
}

// Timeout returns the per-call deadline.
func (f *Forwarder) Timeout() time.Duration {
	return f.timeout
}

// Forward re-issues req against instanceURL. Any HTTP status from the
// instance is a successful forward; transport errors and timeouts are
// returned as *ConnectionError, and replies over the body limit as
// ErrBodyTooLarge.
func (f *Forwarder) Forward(ctx context.Context, instanceURL string, req Request) (*Response, error) {
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	requestID := req.RequestID
	if requestID == "" {
		requestID = uuid.NewString()
	}

	outbound, err := http.NewRequestWithContext(ctx, http.MethodGet, targetURL(instanceURL, req), nil)
	if err != nil {
		return nil, &ConnectionError{Instance: instanceURL, Err: err}
	}
	outbound.Header.Set(HeaderRequestID, requestID)
	outbound.Header.Set("Accept", "application/json")
	if req.ClientIP != "" {
		outbound.Header.Set(HeaderForwardedFor, req.ClientIP)
	}

	start := time.Now()
	res, err := f.client.Do(outbound)
	if err != nil {
		return nil, &ConnectionError{Instance: instanceURL, Err: err}
	}
	defer res.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(res.Body, f.maxBodyBytes+1))
	if err != nil {
		return nil, &ConnectionError{Instance: instanceURL, Err: err}
	}
	if int64(len(raw)) > f.maxBodyBytes {
		return nil, fmt.Errorf("%w: %s answered more than %d bytes", ErrBodyTooLarge, instanceURL, f.maxBodyBytes)
	}

	return &Response{
		StatusCode: res.StatusCode,
		Body:       embed(raw),
		RequestID:  requestID,
		Duration:   time.Since(start),
	}, nil
}

func targetURL(instanceURL string, req Request) string {
	path := req.Path
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}

	target := strings.TrimRight(instanceURL, "/") + path
	if req.RawQuery != "" {
		target += "?" + req.RawQuery
	}
	return target
}

func embed(raw []byte) json.RawMessage {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return json.RawMessage("null")
	}
	if json.Valid(trimmed) {
		return json.RawMessage(trimmed)
	}

	quoted, _ := json.Marshal(string(raw))
	return quoted
}
