package capture

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"framelapse/internal/config"
)

func touch(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	return f.Close()
}

func TestOutputPathLayout(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	ts := time.Date(2026, 8, 23, 14, 5, 9, 0, time.UTC)

	got, err := outputPath(root, "garden", ts)
	if err != nil {
		t.Fatalf("outputPath error: %v", err)
	}
	want := filepath.Join(root, "garden", "2026-08", "garden_2026-08-23_14-05-09.jpg")
	if got != want {
		t.Fatalf("path = %q, want %q", got, want)
	}
}

func TestOutputPathCollision(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	ts := time.Date(2026, 8, 23, 14, 5, 9, 0, time.UTC)

	first, err := outputPath(root, "garden", ts)
	if err != nil {
		t.Fatalf("outputPath error: %v", err)
	}
	if err := touch(first); err != nil {
		t.Fatal(err)
	}

	second, err := outputPath(root, "garden", ts)
	if err != nil {
		t.Fatalf("outputPath error: %v", err)
	}
	if second == first {
		t.Fatal("same-second captures must not clobber each other")
	}
	if !strings.HasSuffix(second, "_1.jpg") {
		t.Fatalf("collision path = %q, want _1 suffix", second)
	}
}

func TestGrabArgs(t *testing.T) {
	t.Parallel()
	scale := 0.5
	cam := config.Camera{
		Name:    "gate",
		URL:     "rtsp://10.0.0.9:554/stream1",
		Enabled: true,
		Capture: config.CapturePolicy{JPEGQuality: 100, ResolutionScale: &scale},
	}

	args := strings.Join(grabArgs(cam, "/tmp/out.jpg"), " ")

	for _, want := range []string{
		"-rtsp_transport tcp",
		"-i rtsp://10.0.0.9:554/stream1",
		"-frames:v 1",
		"-q:v 2",
		"-vf scale=iw*0.500:ih*0.500",
		"-y /tmp/out.jpg",
	} {
		if !strings.Contains(args, want) {
			t.Fatalf("args %q missing %q", args, want)
		}
	}

	// Non-RTSP sources skip the transport flag.
	cam.URL = "http://10.0.0.9/snapshot.cgi"
	cam.Capture.ResolutionScale = nil
	args = strings.Join(grabArgs(cam, "/tmp/out.jpg"), " ")
	if strings.Contains(args, "-rtsp_transport") {
		t.Fatalf("args %q must not force RTSP transport for http sources", args)
	}
	if strings.Contains(args, "-vf") {
		t.Fatalf("args %q must not scale without resolution_scale", args)
	}
}
