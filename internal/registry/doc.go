// Package registry owns the pool of backend instances known to the balancer.
//
// A Registry keeps the ordered sequence of instance URLs, the latest health
// status of each one and the round-robin cursor. All three are guarded by a
// single mutex, so admin mutations, prober status updates and request-path
// selection never observe the pool in a torn state.
//
// Usage:
//
//	reg := registry.New("http://127.0.0.1:5001", "http://127.0.0.1:5002")
//	rr := registry.NewRoundRobin(reg)
//
//	reg.SetStatus("http://127.0.0.1:5001", true)
//	inst, err := rr.Next()
package registry
