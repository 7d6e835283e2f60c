package status

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"framelapse/internal/config"
	"framelapse/internal/services/history"
	"framelapse/internal/services/scheduler"
	logx "framelapse/pkg/logx"
)

type fakeStore struct {
	recs  []history.CaptureRecord
	stats []history.CameraStats
}

func (f *fakeStore) AppendCapture(context.Context, history.CaptureRecord) error { return nil }
func (f *fakeStore) Recent(_ context.Context, camera string, limit int) ([]history.CaptureRecord, error) {
	out := []history.CaptureRecord{}
	for _, r := range f.recs {
		if camera != "" && r.Camera != camera {
			continue
		}
		out = append(out, r)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}
func (f *fakeStore) Stats(context.Context) ([]history.CameraStats, error) { return f.stats, nil }
func (f *fakeStore) Close() error                                         { return nil }

type idleRunner struct{}

func (idleRunner) Capture(context.Context, config.Camera) (string, int, error) {
	return "", 0, nil
}

func newTestHandler(t *testing.T, cfg Config, store history.Store) http.Handler {
	t.Helper()
	engine := scheduler.New(scheduler.Config{Enabled: true}, idleRunner{}, nil, logx.Nop())
	engine.Load(map[string]config.Camera{
		"garden": {
			Name: "garden", URL: "rtsp://x", Enabled: true,
			Schedules: []config.Schedule{{Name: "hh", Frequency: config.FrequencyHourly, Enabled: true}},
			Capture:   config.DefaultCapturePolicy(),
		},
	})
	return New(cfg, engine, store, logx.Nop()).routes(cfg)
}

func TestStatusEndpoint(t *testing.T) {
	t.Parallel()
	h := newTestHandler(t, Config{Enabled: true}, nil)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/status", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	var snap scheduler.Snapshot
	if err := json.Unmarshal(rec.Body.Bytes(), &snap); err != nil {
		t.Fatalf("bad JSON: %v", err)
	}
	if len(snap.Cameras) != 1 || snap.Cameras[0].Name != "garden" {
		t.Fatalf("snapshot cameras = %+v", snap.Cameras)
	}
	if len(snap.Cameras[0].Jobs) != 1 {
		t.Fatalf("garden jobs = %+v", snap.Cameras[0].Jobs)
	}
}

func TestHistoryEndpoint(t *testing.T) {
	t.Parallel()
	store := &fakeStore{recs: []history.CaptureRecord{
		{Camera: "garden", Status: history.StatusOK},
		{Camera: "gate", Status: history.StatusFailed},
	}}
	h := newTestHandler(t, Config{Enabled: true}, store)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/history?camera=garden", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var recs []history.CaptureRecord
	if err := json.Unmarshal(rec.Body.Bytes(), &recs); err != nil {
		t.Fatalf("bad JSON: %v", err)
	}
	if len(recs) != 1 || recs[0].Camera != "garden" {
		t.Fatalf("records = %+v", recs)
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/history?limit=0", nil))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("limit=0 status = %d, want 400", rec.Code)
	}
}

func TestHistoryEndpointWithoutStore(t *testing.T) {
	t.Parallel()
	h := newTestHandler(t, Config{Enabled: true}, nil)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/history", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404 when history is disabled", rec.Code)
	}
}

func TestTokenAuth(t *testing.T) {
	t.Parallel()
	h := newTestHandler(t, Config{Enabled: true, Token: "s3cret"}, nil)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/status", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("unauthenticated status = %d, want 401", rec.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/status", nil)
	req.Header.Set("Authorization", "Bearer s3cret")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("bearer status = %d, want 200", rec.Code)
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/status?token=s3cret", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("query token status = %d, want 200", rec.Code)
	}

	// Health stays open for liveness probes.
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("healthz status = %d, want 200", rec.Code)
	}
}

func TestIsLoopbackAddr(t *testing.T) {
	t.Parallel()
	tests := []struct {
		addr string
		want bool
	}{
		{"127.0.0.1:8490", true},
		{"localhost:8490", true},
		{"[::1]:8490", true},
		{"0.0.0.0:8490", false},
		{":8490", false},
		{"192.168.1.5:8490", false},
		{"garbage", false},
	}
	for _, tt := range tests {
		if got := isLoopbackAddr(tt.addr); got != tt.want {
			t.Fatalf("isLoopbackAddr(%q) = %v, want %v", tt.addr, got, tt.want)
		}
	}
}
