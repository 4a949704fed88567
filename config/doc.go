// Package config loads the balancer configuration from config.yaml and
// environment variables and validates it. It covers the listen address and
// server timeouts, the backends pre-seeded into the pool, health probe and
// forwarding settings, logging and metrics.
package config
