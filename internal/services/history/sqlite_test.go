package history

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	logx "framelapse/pkg/logx"
)

func TestSQLiteStoreRoundTrip(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "history.db")
	ctx := context.Background()

	st, err := Open(Config{Driver: "sqlite", Path: path, BusyTimeout: time.Second}, logx.Nop())
	if err != nil {
		t.Fatalf("Open error: %v", err)
	}
	defer st.Close()

	base := time.Date(2026, 8, 23, 10, 0, 0, 0, time.UTC)
	recs := []CaptureRecord{
		record("garden", StatusOK, base),
		record("garden", StatusFailed, base.Add(time.Hour)),
		record("gate", StatusOK, base.Add(2*time.Hour)),
	}
	recs[1].Error = "3 attempts exhausted: connection refused"
	recs[1].Attempts = 3
	for i, rec := range recs {
		if err := st.AppendCapture(ctx, rec); err != nil {
			t.Fatalf("AppendCapture #%d error: %v", i, err)
		}
	}

	recent, err := st.Recent(ctx, "garden", 10)
	if err != nil {
		t.Fatalf("Recent error: %v", err)
	}
	if len(recent) != 2 {
		t.Fatalf("got %d records, want 2", len(recent))
	}
	if recent[0].Status != StatusFailed || recent[0].Attempts != 3 {
		t.Fatalf("newest record = %+v", recent[0])
	}
	if recent[0].Error == "" {
		t.Fatal("failure message lost in round trip")
	}
	if !recent[0].At.Equal(base.Add(time.Hour)) {
		t.Fatalf("At = %v, want %v", recent[0].At, base.Add(time.Hour))
	}

	stats, err := st.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats error: %v", err)
	}
	if len(stats) != 2 {
		t.Fatalf("got stats for %d cameras, want 2", len(stats))
	}
	// Ordered by camera name.
	if stats[0].Camera != "garden" || stats[1].Camera != "gate" {
		t.Fatalf("stats order = %s, %s", stats[0].Camera, stats[1].Camera)
	}
	if stats[0].OK != 1 || stats[0].Failed != 1 {
		t.Fatalf("garden stats = %+v", stats[0])
	}
}
