package health_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/mlindholt/discord-guildbot/internal/clock"
	"github.com/mlindholt/discord-guildbot/internal/health"
)

func serve(t *testing.T, h *health.Handler, path string) (*httptest.ResponseRecorder, health.Status) {
	t.Helper()
	mux := http.NewServeMux()
	h.Register(mux)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))

	var s health.Status
	if err := json.NewDecoder(rec.Body).Decode(&s); err != nil {
		t.Fatal(err)
	}
	return rec, s
}

func TestLiveness(t *testing.T) {
	h := health.NewHandler(clock.Real{})

	rec, s := serve(t, h, "/healthz")
	if rec.Code != http.StatusOK {
		t.Fatalf("got status %d, want %d", rec.Code, http.StatusOK)
	}
	if s.Status != "ok" {
		t.Errorf("got status %q, want ok", s.Status)
	}
}

func TestReadiness(t *testing.T) {
	tests := []struct {
		name       string
		ready      bool
		probes     []health.Probe
		wantCode   int
		wantStatus string
	}{
		{
			name:       "not ready",
			ready:      false,
			wantCode:   http.StatusServiceUnavailable,
			wantStatus: "not_ready",
		},
		{
			name:       "ready without probes",
			ready:      true,
			wantCode:   http.StatusOK,
			wantStatus: "ready",
		},
		{
			name:  "store probe passes",
			ready: true,
			probes: []health.Probe{
				health.StoreProbe(func(context.Context) error { return nil }),
			},
			wantCode:   http.StatusOK,
			wantStatus: "ready",
		},
		{
			name:  "store probe fails",
			ready: true,
			probes: []health.Probe{
				health.StoreProbe(func(context.Context) error { return errors.New("connection refused") }),
			},
			wantCode:   http.StatusServiceUnavailable,
			wantStatus: "not_ready",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := health.NewHandler(clock.Real{}, tt.probes...)
			h.SetReady(tt.ready)

			rec, s := serve(t, h, "/readyz")
			if rec.Code != tt.wantCode {
				t.Errorf("got status %d, want %d", rec.Code, tt.wantCode)
			}
			if s.Status != tt.wantStatus {
				t.Errorf("got status %q, want %q", s.Status, tt.wantStatus)
			}
		})
	}
}
