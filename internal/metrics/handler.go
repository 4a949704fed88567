package metrics

import (
	"encoding/json"
	"net/http"
)

// StatsHandler serves the in-memory snapshot as JSON.
func (c *Collector) StatsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		snap := c.metrics.Snapshot()

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(snap); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
	}
}

// Handler serves the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return c.prometheus.Handler()
}
