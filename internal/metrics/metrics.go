package metrics

import (
	"sort"
	"sync"
	"time"
)

const maxSamples = 1000

type Metrics struct {
	mutex         sync.RWMutex
	selections    map[string]int64
	forwards      map[string]int64
	failures      map[string]int64
	responseTimes map[string][]time.Duration
	statusCodes   map[string]map[int]int64
	healthStatus  map[string]bool
	unavailable   int64
	startTime     time.Time
}

type Snapshot struct {
	TotalForwards int64                      `json:"total_forwards"`
	TotalFailures int64                      `json:"total_failures"`
	Unavailable   int64                      `json:"unavailable"`
	Uptime        time.Duration              `json:"uptime"`
	Instances     map[string]InstanceMetrics `json:"instances"`
}

type InstanceMetrics struct {
	Selections  int64         `json:"selections"`
	Forwards    int64         `json:"forwards"`
	Failures    int64         `json:"failures"`
	Healthy     bool          `json:"healthy"`
	AvgResponse time.Duration `json:"avg_response"`
	P50Response time.Duration `json:"p50_response"`
	P95Response time.Duration `json:"p95_response"`
	P99Response time.Duration `json:"p99_response"`
	StatusCodes map[int]int64 `json:"status_codes"`
}

func (m *Metrics) RecordSelection(instance string) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.selections[instance]++
}

func (m *Metrics) RecordResponse(instance string, duration time.Duration, statusCode int) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	m.forwards[instance]++
	m.responseTimes[instance] = append(m.responseTimes[instance], duration)

	if len(m.responseTimes[instance]) > maxSamples {
		m.responseTimes[instance] = m.responseTimes[instance][1:]
	}

	if m.statusCodes[instance] == nil {
		m.statusCodes[instance] = make(map[int]int64)
	}
	m.statusCodes[instance][statusCode]++
}

func (m *Metrics) RecordFailure(instance string) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.failures[instance]++
}

func (m *Metrics) RecordUnavailable() {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.unavailable++
}

func (m *Metrics) UpdateHealthStatus(instance string, healthy bool) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.healthStatus[instance] = healthy
}

// Forget drops per-instance series once an instance leaves the pool.
// Totals already reported are kept.
func (m *Metrics) Forget(instance string) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	delete(m.selections, instance)
	delete(m.responseTimes, instance)
	delete(m.statusCodes, instance)
	delete(m.healthStatus, instance)
}

func (m *Metrics) Snapshot() Snapshot {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	snap := Snapshot{
		Unavailable: m.unavailable,
		Uptime:      time.Since(m.startTime),
		Instances:   make(map[string]InstanceMetrics),
	}

	for _, n := range m.forwards {
		snap.TotalForwards += n
	}
	for _, n := range m.failures {
		snap.TotalFailures += n
	}

	all := make(map[string]bool)
	for instance := range m.selections {
		all[instance] = true
	}
	for instance := range m.responseTimes {
		all[instance] = true
	}
	for instance := range m.healthStatus {
		all[instance] = true
	}

	for instance := range all {
		im := InstanceMetrics{
			Selections:  m.selections[instance],
			Forwards:    m.forwards[instance],
			Failures:    m.failures[instance],
			Healthy:     m.healthStatus[instance],
			StatusCodes: copyCodes(m.statusCodes[instance]),
		}

		durations := m.responseTimes[instance]
		if len(durations) > 0 {
			sorted := make([]time.Duration, len(durations))
			copy(sorted, durations)
			sort.Slice(sorted, func(i, j int) bool {
				return sorted[i] < sorted[j]
			})

			im.AvgResponse = average(sorted)
			im.P50Response = percentile(sorted, 0.50)
			im.P95Response = percentile(sorted, 0.95)
			im.P99Response = percentile(sorted, 0.99)
		}

		snap.Instances[instance] = im
	}

	return snap
}

func NewMetrics() *Metrics {
	return &Metrics{
		selections:    make(map[string]int64),
		forwards:      make(map[string]int64),
		failures:      make(map[string]int64),
		responseTimes: make(map[string][]time.Duration),
		statusCodes:   make(map[string]map[int]int64),
		healthStatus:  make(map[string]bool),
		startTime:     time.Now(),
	}
}

func copyCodes(codes map[int]int64) map[int]int64 {
	if codes == nil {
		return nil
	}
	out := make(map[int]int64, len(codes))
	for code, n := range codes {
		out[code] = n
	}
	return out
}

func average(durations []time.Duration) time.Duration {
	if len(durations) == 0 {
		return 0
	}

	var sum time.Duration
	for _, d := range durations {
		sum += d
	}

	return sum / time.Duration(len(durations))
}

func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}

	index := int(float64(len(sorted)) * p)
	if index >= len(sorted) {
		index = len(sorted) - 1
	}

	return sorted[index]
}
