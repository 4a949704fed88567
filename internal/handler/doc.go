// Package handler implements the client-facing HTTP handler of the balancer.
// It turns inbound GET requests into routing calls and writes the resulting
// envelope or error body as JSON.
package handler
