package capture

import (
	"context"
	"errors"
	"testing"
	"time"

	"framelapse/internal/config"
	logx "framelapse/pkg/logx"
)

func testPolicy(retries int, delaySec float64) config.CapturePolicy {
	return config.CapturePolicy{
		JPEGQuality:       90,
		TimeoutSeconds:    5,
		RetryCount:        retries,
		RetryDelaySeconds: delaySec,
	}
}

// recordSleeps replaces the executor's backoff sleep and records requested
// durations without actually waiting.
func recordSleeps(e *Executor) *[]time.Duration {
	var sleeps []time.Duration
	e.sleep = func(_ context.Context, d time.Duration) error {
		sleeps = append(sleeps, d)
		return nil
	}
	return &sleeps
}

func TestCaptureDisabledCamera(t *testing.T) {
	t.Parallel()
	calls := 0
	e := NewExecutor(func(context.Context, config.Camera) (string, error) {
		calls++
		return "frame.jpg", nil
	}, logx.Nop())

	path, attempts, err := e.Capture(context.Background(), config.Camera{
		Name: "off", Enabled: false, Capture: testPolicy(3, 1),
	})
	if err != nil {
		t.Fatalf("Capture error: %v", err)
	}
	if path != "" || attempts != 0 {
		t.Fatalf("got (%q, %d), want empty path and zero attempts", path, attempts)
	}
	if calls != 0 {
		t.Fatalf("capture func invoked %d times for a disabled camera", calls)
	}
}

func TestCaptureExhaustsBudget(t *testing.T) {
	t.Parallel()
	boom := errors.New("connection refused")
	calls := 0
	e := NewExecutor(func(context.Context, config.Camera) (string, error) {
		calls++
		return "", boom
	}, logx.Nop())
	sleeps := recordSleeps(e)

	path, attempts, err := e.Capture(context.Background(), config.Camera{
		Name: "down", Enabled: true, Capture: testPolicy(3, 1),
	})
	if err == nil || !errors.Is(err, boom) {
		t.Fatalf("err = %v, want wrapped %v", err, boom)
	}
	if path != "" {
		t.Fatalf("path = %q, want empty on failure", path)
	}
	if calls != 3 || attempts != 3 {
		t.Fatalf("calls = %d, attempts = %d, want exactly 3", calls, attempts)
	}
	// Backoff doubles: base, then 2x base. No sleep after the final attempt.
	want := []time.Duration{time.Second, 2 * time.Second}
	if len(*sleeps) != len(want) {
		t.Fatalf("sleeps = %v, want %v", *sleeps, want)
	}
	for i := range want {
		if (*sleeps)[i] != want[i] {
			t.Fatalf("sleep %d = %v, want %v", i, (*sleeps)[i], want[i])
		}
	}
}

func TestCaptureSucceedsMidBudget(t *testing.T) {
	t.Parallel()
	calls := 0
	e := NewExecutor(func(context.Context, config.Camera) (string, error) {
		calls++
		if calls < 2 {
			return "", errors.New("timeout")
		}
		return "cam/2026-08/cam_2026-08-23_10-00-00.jpg", nil
	}, logx.Nop())
	sleeps := recordSleeps(e)

	path, attempts, err := e.Capture(context.Background(), config.Camera{
		Name: "cam", Enabled: true, Capture: testPolicy(3, 0.5),
	})
	if err != nil {
		t.Fatalf("Capture error: %v", err)
	}
	if attempts != 2 {
		t.Fatalf("attempts = %d, want 2", attempts)
	}
	if path == "" {
		t.Fatal("expected a frame path on success")
	}
	if len(*sleeps) != 1 || (*sleeps)[0] != 500*time.Millisecond {
		t.Fatalf("sleeps = %v, want one 500ms backoff", *sleeps)
	}
}

func TestCaptureAbortedDuringBackoff(t *testing.T) {
	t.Parallel()
	e := NewExecutor(func(context.Context, config.Camera) (string, error) {
		return "", errors.New("no route")
	}, logx.Nop())
	e.sleep = func(ctx context.Context, _ time.Duration) error {
		return context.Canceled
	}

	_, attempts, err := e.Capture(context.Background(), config.Camera{
		Name: "cam", Enabled: true, Capture: testPolicy(3, 1),
	})
	if err == nil || !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if attempts != 1 {
		t.Fatalf("attempts = %d, want 1 (aborted before retrying)", attempts)
	}
}

func TestBackoffDelay(t *testing.T) {
	t.Parallel()
	tests := []struct {
		base    float64
		attempt int
		want    time.Duration
	}{
		{base: 1, attempt: 0, want: time.Second},
		{base: 1, attempt: 1, want: 2 * time.Second},
		{base: 1, attempt: 2, want: 4 * time.Second},
		{base: 0.5, attempt: 1, want: time.Second},
		{base: 0, attempt: 0, want: time.Second}, // zero falls back to 1s
	}
	for _, tt := range tests {
		if got := backoffDelay(tt.base, tt.attempt); got != tt.want {
			t.Fatalf("backoffDelay(%v, %d) = %v, want %v", tt.base, tt.attempt, got, tt.want)
		}
	}
}

func TestJpegQScale(t *testing.T) {
	t.Parallel()
	if got := jpegQScale(100); got != 2 {
		t.Fatalf("qscale(100) = %d, want 2", got)
	}
	if got := jpegQScale(1); got != 31 {
		t.Fatalf("qscale(1) = %d, want 31", got)
	}
	if got := jpegQScale(90); got < 2 || got > 8 {
		t.Fatalf("qscale(90) = %d, want a high-quality qscale", got)
	}
	// Out-of-range inputs clamp instead of exploding.
	if got := jpegQScale(500); got != 2 {
		t.Fatalf("qscale(500) = %d, want 2", got)
	}
	if got := jpegQScale(-3); got != 31 {
		t.Fatalf("qscale(-3) = %d, want 31", got)
	}
}
