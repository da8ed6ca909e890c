// Package health provides the HTTP introspection endpoints served alongside
// the Prometheus metrics:
//
//   - /healthz — liveness probe; always returns 200 OK.
//   - /readyz  — readiness probe; returns 200 only when all registered
//     [Checker] functions pass.
//   - /statusz — a JSON snapshot of the running light show: mode, band
//     levels, beat strength and the targets last sent to the lights.
//
// Probe responses are JSON objects with a top-level "status" field ("ok" or
// "fail") and a "checks" map containing the result of each named checker.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/myselfshravan/wiz-hack/internal/pipeline"
)

// checkTimeout is the maximum time a single readiness check may take before
// the context is cancelled.
const checkTimeout = 5 * time.Second

// Checker is a named health check function. The Check function should return
// nil when the dependency is healthy and a non-nil error describing the
// failure otherwise.
type Checker struct {
	// Name is a short, human-readable label for this check (e.g. "pipeline",
	// "lights"). It appears as a key in the JSON response.
	Name string

	// Check probes the dependency. It must respect context cancellation.
	Check func(ctx context.Context) error
}

// PipelineRunning reports readiness of the frame loop itself.
func PipelineRunning(p *pipeline.Pipeline) Checker {
	return Checker{
		Name: "pipeline",
		Check: func(context.Context) error {
			if s := p.State(); s != pipeline.StateRunning {
				return &stateError{state: s}
			}
			return nil
		},
	}
}

type stateError struct {
	state pipeline.State
}

func (e *stateError) Error() string { return "pipeline is " + e.state.String() }

// probeResult is the JSON response body for the probe endpoints.
type probeResult struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// statusView is the JSON shape of /statusz.
type statusView struct {
	State   string      `json:"state"`
	Mode    string      `json:"mode"`
	Frame   uint64      `json:"frame"`
	Dropped uint64      `json:"dropped"`
	Bands   []float64   `json:"bands,omitempty"`
	Energy  float64     `json:"energy"`
	Beat    float64     `json:"beat"`
	Targets []lightView `json:"targets,omitempty"`
}

type lightView struct {
	R          int     `json:"r"`
	G          int     `json:"g"`
	B          int     `json:"b"`
	Brightness float64 `json:"brightness"`
}

// Handler serves the introspection endpoints. It is safe for concurrent use;
// the checker list is fixed at construction time.
type Handler struct {
	status   func() pipeline.Status
	checkers []Checker
}

// New creates a [Handler] over the given status snapshot function. The
// checkers are evaluated sequentially on each /readyz request.
func New(status func() pipeline.Status, checkers ...Checker) *Handler {
	c := make([]Checker, len(checkers))
	copy(c, checkers)
	return &Handler{status: status, checkers: c}
}

// Healthz is a liveness probe that always returns 200 OK. A running process
// that can serve HTTP is considered alive.
func (h *Handler) Healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, probeResult{Status: "ok"})
}

// Readyz is a readiness probe that returns 200 only when every registered
// [Checker] passes. Each checker is given a context with a [checkTimeout]
// deadline derived from the request context.
func (h *Handler) Readyz(w http.ResponseWriter, r *http.Request) {
	checks := make(map[string]string, len(h.checkers))
	allOK := true

	for _, c := range h.checkers {
		ctx, cancel := context.WithTimeout(r.Context(), checkTimeout)
		err := c.Check(ctx)
		cancel()

		if err != nil {
			checks[c.Name] = "fail: " + err.Error()
			allOK = false
		} else {
			checks[c.Name] = "ok"
		}
	}

	res := probeResult{
		Status: "ok",
		Checks: checks,
	}
	status := http.StatusOK
	if !allOK {
		res.Status = "fail"
		status = http.StatusServiceUnavailable
	}

	writeJSON(w, status, res)
}

// Statusz reports the most recent pipeline snapshot.
func (h *Handler) Statusz(w http.ResponseWriter, _ *http.Request) {
	st := h.status()
	view := statusView{
		State:   st.State.String(),
		Mode:    st.Mode.String(),
		Frame:   st.Frame,
		Dropped: st.Dropped,
		Bands:   st.Bands,
		Energy:  st.Energy,
		Beat:    st.Beat,
	}
	for _, t := range st.Targets {
		view.Targets = append(view.Targets, lightView{
			R:          int(t.R),
			G:          int(t.G),
			B:          int(t.B),
			Brightness: t.Brightness,
		})
	}
	writeJSON(w, http.StatusOK, view)
}

// Register adds the introspection routes to mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", h.Healthz)
	mux.HandleFunc("GET /readyz", h.Readyz)
	mux.HandleFunc("GET /statusz", h.Statusz)
}

// writeJSON encodes v as JSON and writes it with the given status code. On
// encoding failure it falls back to a plain-text 500 response.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"status":"error"}`, http.StatusInternalServerError)
	}
}
