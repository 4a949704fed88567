// Package loadbalancer routes one client request: it asks the round-robin
// selector for a healthy instance, forwards the request and maps the result
// to the client-facing envelope and status code.
package loadbalancer
