package admin

import (
	"encoding/json"
	"html/template"
	"log/slog"
	"net/http"
	"strings"

	"github.com/angeloszaimis/pool-balancer/internal/metrics"
	"github.com/angeloszaimis/pool-balancer/internal/registry"
)

// maxFormBytes bounds admin form bodies.
const maxFormBytes = 64 << 10

// InstanceView is one row of the pool listing.
type InstanceView struct {
	Index  int             `json:"index"`
	URL    string          `json:"url"`
	Status registry.Status `json:"status"`
}

// Handler serves the admin endpoints on top of a Registry.
type Handler struct {
	registry  *registry.Registry
	logger    *slog.Logger
	collector *metrics.Collector
}

func NewHandler(reg *registry.Registry, logger *slog.Logger, collector *metrics.Collector) *Handler {
	return &Handler{
		registry:  reg,
		logger:    logger,
		collector: collector,
	}
}

// Register mounts the admin routes on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /{$}", h.Index)
	mux.HandleFunc("GET /instances", h.Instances)
	mux.HandleFunc("POST /add_instance", h.AddInstance)
	mux.HandleFunc("POST /remove_instance", h.RemoveInstance)
}

func (h *Handler) views() []InstanceView {
	snap := h.registry.Snapshot()

	views := make([]InstanceView, len(snap.Instances))
	for i, inst := range snap.Instances {
		views[i] = InstanceView{Index: i, URL: inst.URL, Status: inst.Status}
	}
	return views
}

// Index renders the pool status page with the management forms.
func (h *Handler) Index(w http.ResponseWriter, r *http.Request) {
	views := h.views()
	healthy := 0
	for _, v := range views {
		if v.Status == registry.StatusHealthy {
			healthy++
		}
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	err := indexTemplate.Execute(w, struct {
		Instances []InstanceView
		Healthy   int
	}{views, healthy})
	if err != nil {
		h.logger.Error("Failed to render admin page", slog.Any("err", err))
	}
}

// Instances lists the pool as JSON.
func (h *Handler) Instances(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(h.views()); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// AddInstance registers http://<ip>:<port>. Invalid input is ignored.
func (h *Handler) AddInstance(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxFormBytes)

	form := parseInstanceForm(r)
	if err := form.Validate(); err != nil {
		h.logger.Warn("Ignoring invalid add request",
			slog.String("ip", form.IP),
			slog.String("port", form.Port),
			slog.Any("err", err))
		h.done(w, r)
		return
	}

	u := form.URL()
	if h.registry.Add(u) {
		h.logger.Info("Instance added", slog.String("instance", u))
		h.collector.Emit(metrics.MetricEvent{Type: metrics.EventInstanceAdded, Instance: u})
	} else {
		h.logger.Debug("Instance already registered", slog.String("instance", u))
	}

	h.done(w, r)
}

// RemoveInstance deregisters by ordinal "index" when given, otherwise by
// ip/port. Invalid input and unknown instances are ignored.
func (h *Handler) RemoveInstance(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxFormBytes)

	index, hasIndex, err := parseIndex(r)
	switch {
	case err != nil:
		h.logger.Warn("Ignoring non-numeric index", slog.String("index", r.PostFormValue("index")))

	case hasIndex:
		if u, ok := h.registry.RemoveAt(index); ok {
			h.removed(u)
		} else {
			h.logger.Warn("Ignoring out-of-range index", slog.Int("index", index))
		}

	default:
		form := parseInstanceForm(r)
		if err := form.Validate(); err != nil {
			h.logger.Warn("Ignoring invalid remove request",
				slog.String("ip", form.IP),
				slog.String("port", form.Port),
				slog.Any("err", err))
			break
		}
		if u := form.URL(); h.registry.Remove(u) {
			h.removed(u)
		}
	}

	h.done(w, r)
}

func (h *Handler) removed(u string) {
	h.logger.Info("Instance removed", slog.String("instance", u))
	h.collector.Emit(metrics.MetricEvent{Type: metrics.EventInstanceRemoved, Instance: u})
}

// done finishes a mutation: API clients get 204, browsers go back to the
// status page.
func (h *Handler) done(w http.ResponseWriter, r *http.Request) {
	if strings.Contains(r.Header.Get("Accept"), "application/json") {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

var indexTemplate = template.Must(template.New("index").Parse(`<!DOCTYPE html>
<html>
<head><title>Load balancer</title></head>
<body>
<h2>Load balancer</h2>

<h3>Instances ({{.Healthy}} healthy of {{len .Instances}})</h3>
{{if .Instances}}
<table>
<tr><th>#</th><th>URL</th><th>Status</th></tr>
{{range .Instances}}
<tr><td>{{.Index}}</td><td>{{.URL}}</td><td>{{.Status}}</td></tr>
{{end}}
</table>
{{else}}
<p>No instances registered.</p>
{{end}}

<h3>Add instance</h3>
<form action="/add_instance" method="post">
	<label>IP: <input name="ip" placeholder="127.0.0.1" required></label>
	<label>Port: <input name="port" placeholder="5004" required></label>
	<button type="submit">Add</button>
</form>

<h3>Remove instance</h3>
<form action="/remove_instance" method="post">
	<label>Index: <input name="index" placeholder="0" required></label>
	<button type="submit">Remove</button>
</form>
<form action="/remove_instance" method="post">
	<label>IP: <input name="ip" placeholder="127.0.0.1" required></label>
	<label>Port: <input name="port" placeholder="5002" required></label>
	<button type="submit">Remove</button>
</form>

<h3>Send a request to /process</h3>
<form action="/process" method="get">
	<button type="submit">Send</button>
</form>
</body>
</html>
`))
