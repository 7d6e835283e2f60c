package history

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"

	logx "framelapse/pkg/logx"
)

// fileStore is a dependency-free persistence backend: an append-only JSON
// Lines file. Recent() and Stats() are served from memory; the tail of the
// existing file is replayed at open so restarts keep their view.
type fileStore struct {
	log logx.Logger

	mu   sync.Mutex
	file *os.File

	recent  []CaptureRecord // ring, newest last
	recCap  int
	byCam   map[string]*CameraStats
	camSeen []string // insertion order for stable Stats output
}

const fileRecentCap = 256

func openFile(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("history.path is required for file driver")
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	st := &fileStore{
		log:    log,
		recCap: fileRecentCap,
		byCam:  map[string]*CameraStats{},
	}
	_ = st.replay(path)

	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, err
	}
	st.file = f
	return st, nil
}

// replay rebuilds the in-memory view from the existing file. Corrupt lines
// are skipped.
func (s *fileStore) replay(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		var r CaptureRecord
		if err := json.Unmarshal(sc.Bytes(), &r); err != nil {
			continue
		}
		if r.Camera == "" {
			continue
		}
		s.track(r)
	}
	return sc.Err()
}

func (s *fileStore) track(r CaptureRecord) {
	s.recent = append(s.recent, r)
	if len(s.recent) > s.recCap {
		s.recent = s.recent[len(s.recent)-s.recCap:]
	}
	cs, ok := s.byCam[r.Camera]
	if !ok {
		cs = &CameraStats{Camera: r.Camera}
		s.byCam[r.Camera] = cs
		s.camSeen = append(s.camSeen, r.Camera)
	}
	switch r.Status {
	case StatusOK:
		cs.OK++
	case StatusFailed:
		cs.Failed++
	case StatusSkipped:
		cs.Skipped++
	}
	if r.At.After(cs.LastAt) {
		cs.LastAt = r.At
	}
}

func (s *fileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file == nil {
		return nil
	}
	err := s.file.Close()
	s.file = nil
	return err
}

func (s *fileStore) AppendCapture(ctx context.Context, r CaptureRecord) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file == nil {
		return errors.New("history file closed")
	}
	if err := json.NewEncoder(s.file).Encode(r); err != nil {
		return err
	}
	s.track(r)
	return nil
}

func (s *fileStore) Recent(ctx context.Context, camera string, limit int) ([]CaptureRecord, error) {
	_ = ctx
	if limit <= 0 {
		limit = 50
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]CaptureRecord, 0, limit)
	for i := len(s.recent) - 1; i >= 0 && len(out) < limit; i-- {
		if camera != "" && s.recent[i].Camera != camera {
			continue
		}
		out = append(out, s.recent[i])
	}
	return out, nil
}

func (s *fileStore) Stats(ctx context.Context) ([]CameraStats, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]CameraStats, 0, len(s.camSeen))
	for _, name := range s.camSeen {
		out = append(out, *s.byCam[name])
	}
	return out, nil
}
