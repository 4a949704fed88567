// Package logger builds the structured slog logger shared by the balancer,
// the demo instance and the load test tool.
package logger
