// Package health serves the liveness and readiness endpoints. Readiness
// gates on the store and the Discord gateway so the orchestrator only routes
// traffic to a replica that can actually serve commands.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/mlindholt/discord-guildbot/internal/clock"
)

// Probe is one named readiness check.
type Probe struct {
	Name  string
	Check func(ctx context.Context) error
}

// StoreProbe wraps a store ping as a readiness probe.
func StoreProbe(ping func(context.Context) error) Probe {
	return Probe{Name: "store", Check: ping}
}

// Status is the JSON body both endpoints return.
type Status struct {
	Status    string            `json:"status"`
	Probes    map[string]string `json:"probes,omitempty"`
	Timestamp string            `json:"timestamp"`
}

// Handler serves /healthz and /readyz.
type Handler struct {
	mu     sync.RWMutex
	ready  bool
	probes []Probe
	clock  clock.Clock
}

// NewHandler creates a handler with the given readiness probes.
func NewHandler(clk clock.Clock, probes ...Probe) *Handler {
	return &Handler{probes: probes, clock: clk}
}

// SetReady flips the readiness gate. The bot sets it once the Discord
// session is open and clears it on shutdown.
func (h *Handler) SetReady(ready bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.ready = ready
}

// Register mounts both endpoints on the mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("/healthz", h.liveness)
	mux.HandleFunc("/readyz", h.readiness)
}

func (h *Handler) liveness(w http.ResponseWriter, _ *http.Request) {
	h.write(w, http.StatusOK, Status{
		Status:    "ok",
		Timestamp: h.clock.Now().UTC().Format(time.RFC3339),
	})
}

func (h *Handler) readiness(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	ready := h.ready
	h.mu.RUnlock()

	if !ready {
		h.write(w, http.StatusServiceUnavailable, Status{
			Status:    "not_ready",
			Timestamp: h.clock.Now().UTC().Format(time.RFC3339),
		})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	probes := make(map[string]string, len(h.probes))
	code := http.StatusOK
	status := "ready"
	for _, p := range h.probes {
		if err := p.Check(ctx); err != nil {
			probes[p.Name] = err.Error()
			code = http.StatusServiceUnavailable
			status = "not_ready"
		} else {
			probes[p.Name] = "ok"
		}
	}

	h.write(w, code, Status{
		Status:    status,
		Probes:    probes,
		Timestamp: h.clock.Now().UTC().Format(time.RFC3339),
	})
}

func (h *Handler) write(w http.ResponseWriter, code int, s Status) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(s)
}
