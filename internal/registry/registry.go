package registry

import (
	"strings"
	"sync"
)

// Instance is a copy of one registry entry. It is never shared with the
// registry, so callers may keep it as long as they like.
type Instance struct {
	URL    string `json:"url"`
	Status Status `json:"status"`
	// Generation identifies this registration of URL. Removing and re-adding
	// the same URL yields a new generation.
	Generation uint64 `json:"-"`
}

// Healthy reports whether the last completed probe succeeded.
func (i Instance) Healthy() bool {
	return i.Status == StatusHealthy
}

// Snapshot is a consistent view of the pool taken under the registry lock.
type Snapshot struct {
	Instances []Instance `json:"instances"`
}

// Healthy returns the number of instances currently marked healthy.
func (s Snapshot) Healthy() int {
	n := 0
	for _, inst := range s.Instances {
		if inst.Healthy() {
			n++
		}
	}
	return n
}

// Registry is the ordered pool of backend instances.
//
// The sequence order defines round-robin traversal and the ordinal addressing
// used by RemoveAt. Every URL in the sequence has exactly one entry.
type Registry struct {
	mutex   sync.Mutex
	urls    []string
	entries map[string]entry
	cursor  int
	nextGen uint64
}

type entry struct {
	status     Status
	generation uint64
}

// New creates a registry pre-seeded with the given URLs. Duplicates are
// dropped and every instance starts with StatusUnknown.
func New(urls ...string) *Registry {
	r := &Registry{
		entries: make(map[string]entry, len(urls)),
	}
	for _, u := range urls {
		r.Add(u)
	}
	return r
}

// Normalize returns the identity used for an instance URL.
func Normalize(rawURL string) string {
	return strings.TrimRight(strings.TrimSpace(rawURL), "/")
}

// Add appends url to the end of the sequence. It returns false when the URL
// is empty or already registered.
func (r *Registry) Add(rawURL string) bool {
	u := Normalize(rawURL)
	if u == "" {
		return false
	}

	r.mutex.Lock()
	defer r.mutex.Unlock()

	if _, exists := r.entries[u]; exists {
		return false
	}

	r.nextGen++
	r.urls = append(r.urls, u)
	r.entries[u] = entry{status: StatusUnknown, generation: r.nextGen}
	return true
}

// RemoveAt removes the instance at the given ordinal position and returns its
// URL. Out-of-range indexes are a no-op.
func (r *Registry) RemoveAt(index int) (string, bool) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if index < 0 || index >= len(r.urls) {
		return "", false
	}

	u := r.urls[index]
	r.removeLocked(index)
	return u, true
}

// Remove removes the instance identified by url, if present.
func (r *Registry) Remove(rawURL string) bool {
	u := Normalize(rawURL)

	r.mutex.Lock()
	defer r.mutex.Unlock()

	for i, existing := range r.urls {
		if existing == u {
			r.removeLocked(i)
			return true
		}
	}
	return false
}

// removeLocked deletes urls[index] and its entry, keeping the cursor
// on the instance that would have been visited next.
func (r *Registry) removeLocked(index int) {
	delete(r.entries, r.urls[index])
	r.urls = append(r.urls[:index], r.urls[index+1:]...)

	if index < r.cursor {
		r.cursor--
	}
	if r.cursor >= len(r.urls) {
		r.cursor = 0
	}
}

// SetStatus records the outcome of a probe. It is a no-op for instances that
// were removed while the probe was in flight. The result reports whether the
// stored status changed.
func (r *Registry) SetStatus(rawURL string, healthy bool) (changed bool) {
	u := Normalize(rawURL)
	next := statusFor(healthy)

	r.mutex.Lock()
	defer r.mutex.Unlock()

	current, exists := r.entries[u]
	if !exists || current.status == next {
		return false
	}

	current.status = next
	r.entries[u] = current
	return true
}

// SetStatusOf is SetStatus for the registration inst was copied from. It is a
// no-op once that registration is gone, even if the URL was added again.
func (r *Registry) SetStatusOf(inst Instance, healthy bool) (changed bool) {
	next := statusFor(healthy)

	r.mutex.Lock()
	defer r.mutex.Unlock()

	current, exists := r.entries[inst.URL]
	if !exists || current.generation != inst.Generation || current.status == next {
		return false
	}

	current.status = next
	r.entries[inst.URL] = current
	return true
}

// Status returns the stored status for url.
func (r *Registry) Status(rawURL string) (Status, bool) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	e, ok := r.entries[Normalize(rawURL)]
	return e.status, ok
}

// Len returns the number of registered instances.
func (r *Registry) Len() int {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	return len(r.urls)
}

// Snapshot copies the pool in sequence order.
func (r *Registry) Snapshot() Snapshot {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	instances := make([]Instance, len(r.urls))
	for i, u := range r.urls {
		e := r.entries[u]
		instances[i] = Instance{URL: u, Status: e.status, Generation: e.generation}
	}
	return Snapshot{Instances: instances}
}
