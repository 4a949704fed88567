// Package healthcheck implements the periodic health prober.
// Every cycle it snapshots the registry, probes each instance's health
// endpoint concurrently with a bounded timeout and writes the outcome back.
// The prober only flips status; it never removes instances.
package healthcheck
