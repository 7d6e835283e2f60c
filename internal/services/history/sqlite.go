package history

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	logx "framelapse/pkg/logx"
)

//go:embed migrations.sql
var migrationsFS embed.FS

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
}

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	path := cfg.Path
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	st := &sqliteStore{db: db, log: log}

	if cfg.BusyTimeout > 0 {
		ms := cfg.BusyTimeout.Milliseconds()
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", ms))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return st, nil
}

func (s *sqliteStore) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *sqliteStore) AppendCapture(ctx context.Context, r CaptureRecord) error {
	if s == nil || s.db == nil {
		return ErrDisabled
	}
	if r.At.IsZero() {
		r.At = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO captures(at, camera, job_id, status, path, reason, attempts, took_ms, err)
		 VALUES(?,?,?,?,?,?,?,?,?)`,
		r.At.Format(time.RFC3339Nano), r.Camera, r.JobID, r.Status,
		nullStr(r.Path), nullStr(r.Reason), r.Attempts, r.TookMS, nullStr(r.Error),
	)
	return err
}

func (s *sqliteStore) Recent(ctx context.Context, camera string, limit int) ([]CaptureRecord, error) {
	if s == nil || s.db == nil {
		return nil, ErrDisabled
	}
	if limit <= 0 {
		limit = 50
	}

	q := `SELECT at, camera, job_id, status, path, reason, attempts, took_ms, err
	      FROM captures`
	args := []any{}
	if camera != "" {
		q += ` WHERE camera = ?`
		args = append(args, camera)
	}
	q += ` ORDER BY id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []CaptureRecord
	for rows.Next() {
		var (
			r                 CaptureRecord
			at                string
			path, reason, msg sql.NullString
		)
		if err := rows.Scan(&at, &r.Camera, &r.JobID, &r.Status, &path, &reason, &r.Attempts, &r.TookMS, &msg); err != nil {
			return nil, err
		}
		r.At, _ = time.Parse(time.RFC3339Nano, at)
		r.Path, r.Reason, r.Error = path.String, reason.String, msg.String
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *sqliteStore) Stats(ctx context.Context) ([]CameraStats, error) {
	if s == nil || s.db == nil {
		return nil, ErrDisabled
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT camera,
		        SUM(status = 'ok'),
		        SUM(status = 'failed'),
		        SUM(status = 'skipped'),
		        MAX(at)
		 FROM captures GROUP BY camera ORDER BY camera`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []CameraStats
	for rows.Next() {
		var (
			cs   CameraStats
			last sql.NullString
		)
		if err := rows.Scan(&cs.Camera, &cs.OK, &cs.Failed, &cs.Skipped, &last); err != nil {
			return nil, err
		}
		if last.Valid {
			cs.LastAt, _ = time.Parse(time.RFC3339Nano, last.String)
		}
		out = append(out, cs)
	}
	return out, rows.Err()
}

func nullStr(v string) any {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	return v
}
