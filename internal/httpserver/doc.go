// Package httpserver wraps net/http.Server with listen address validation,
// bounded connection timeouts and a graceful shutdown helper.
package httpserver
