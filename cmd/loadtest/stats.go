package main

import (
	"sort"
	"sync"
	"time"
)

const unrouted = "(unrouted)"

// instanceStats accumulates the results attributed to one routed_to value.
type instanceStats struct {
	Count     int             `json:"count"`
	Success   int             `json:"success"`
	Failure   int             `json:"failure"`
	Latencies []time.Duration `json:"-"`
}

// result is the outcome of one request. RoutedTo is empty when the balancer
// did not pick an instance or the request failed in transport.
type result struct {
	Index      int
	RoutedTo   string
	StatusCode int
	Duration   time.Duration
	Err        error
}

func (r result) ok() bool {
	return r.Err == nil && r.StatusCode >= 200 && r.StatusCode <= 299
}

type tally struct {
	mutex       sync.Mutex
	total       int
	success     int
	failure     int
	statusCodes map[int]int
	instances   map[string]*instanceStats
	latencies   []time.Duration
}

func newTally() *tally {
	return &tally{
		statusCodes: make(map[int]int),
		instances:   make(map[string]*instanceStats),
	}
}

func (t *tally) record(r result) {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	t.total++
	t.latencies = append(t.latencies, r.Duration)

	if r.ok() {
		t.success++
	} else {
		t.failure++
	}
	if r.Err != nil {
		return
	}
	t.statusCodes[r.StatusCode]++

	key := r.RoutedTo
	if key == "" {
		key = unrouted
	}
	s, ok := t.instances[key]
	if !ok {
		s = &instanceStats{}
		t.instances[key] = s
	}
	s.Count++
	if r.ok() {
		s.Success++
	} else {
		s.Failure++
	}
	s.Latencies = append(s.Latencies, r.Duration)
}

// distribution returns how many requests each instance served, keyed by
// routed_to.
func (t *tally) distribution() map[string]int {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	out := make(map[string]int, len(t.instances))
	for k, s := range t.instances {
		out[k] = s.Count
	}
	return out
}

// spread is the difference between the busiest and the idlest routed
// instance. A healthy round-robin pool keeps it at 0 or 1 for sequential runs.
func (t *tally) spread() int {
	dist := t.distribution()
	delete(dist, unrouted)
	if len(dist) == 0 {
		return 0
	}

	lo, hi := -1, 0
	for _, n := range dist {
		if lo < 0 || n < lo {
			lo = n
		}
		if n > hi {
			hi = n
		}
	}
	return hi - lo
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// percentile expects sorted input.
func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(float64(len(sorted)-1) * p)
	if idx < 0 {
		idx = 0
	}
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

func sortedCopy(d []time.Duration) []time.Duration {
	tmp := make([]time.Duration, len(d))
	copy(tmp, d)
	sort.Slice(tmp, func(i, j int) bool { return tmp[i] < tmp[j] })
	return tmp
}
