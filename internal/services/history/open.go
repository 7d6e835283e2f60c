package history

import (
	"context"
	"errors"
	"strings"

	logx "framelapse/pkg/logx"
)

// Store is the persistence API for capture outcomes.
type Store interface {
	AppendCapture(ctx context.Context, r CaptureRecord) error
	// Recent returns up to limit records, newest first. Empty camera means all.
	Recent(ctx context.Context, camera string, limit int) ([]CaptureRecord, error)
	Stats(ctx context.Context) ([]CameraStats, error)
	Close() error
}

// Open initializes the configured store.
// It returns (nil, nil) if history is disabled.
func Open(cfg Config, log logx.Logger) (Store, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	if driver == "" || driver == "none" {
		return nil, nil
	}
	if log.IsZero() {
		log = logx.Nop()
	}

	switch driver {
	case "file":
		return openFile(cfg, log)
	case "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	default:
		return nil, errors.New("unknown history driver: " + driver)
	}
}
