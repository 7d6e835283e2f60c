package history

import (
	"errors"
	"time"
)

var ErrDisabled = errors.New("history disabled")

// Config configures the capture-history store.
//
// Driver values:
//   - "file": dependency-free JSON Lines backend
//   - "sqlite": SQLite database file
//
// If Driver is empty or "none", history is disabled.
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// Capture statuses as persisted.
const (
	StatusOK      = "ok"
	StatusFailed  = "failed"
	StatusSkipped = "skipped"
)

// CaptureRecord is one scheduled fire's outcome.
// Keep it compact and schema-stable.
type CaptureRecord struct {
	At       time.Time `json:"at"`
	Camera   string    `json:"camera"`
	JobID    string    `json:"job_id"`
	Status   string    `json:"status"`
	Path     string    `json:"path,omitempty"`
	Reason   string    `json:"reason,omitempty"`
	Attempts int       `json:"attempts"`
	TookMS   int64     `json:"took_ms"`
	Error    string    `json:"err,omitempty"`
}

// CameraStats aggregates outcomes per camera.
type CameraStats struct {
	Camera  string    `json:"camera"`
	OK      int64     `json:"ok"`
	Failed  int64     `json:"failed"`
	Skipped int64     `json:"skipped"`
	LastAt  time.Time `json:"last_at"`
}
