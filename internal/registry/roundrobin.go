package registry

import "errors"

// ErrNoInstances is returned when the pool is empty or no instance is healthy.
var ErrNoInstances = errors.New("no instances available")

// RoundRobin selects healthy instances in sequence order.
//
// The cursor it advances belongs to the Registry, so removals can clamp it
// under the same lock that guards the sequence.
type RoundRobin struct {
	registry *Registry
}

func NewRoundRobin(r *Registry) *RoundRobin {
	return &RoundRobin{registry: r}
}

// Next returns the next healthy instance. Every call evaluates each
// registered instance at most once; the cursor advances by one per attempt
// whether or not the attempt yields a healthy instance.
func (rr *RoundRobin) Next() (Instance, error) {
	r := rr.registry
	r.mutex.Lock()
	defer r.mutex.Unlock()

	n := len(r.urls)
	for attempt := 0; attempt < n; attempt++ {
		u := r.urls[r.cursor]
		r.cursor = (r.cursor + 1) % n

		if e := r.entries[u]; e.status == StatusHealthy {
			return Instance{URL: u, Status: e.status, Generation: e.generation}, nil
		}
	}

	return Instance{}, ErrNoInstances
}
