package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"framelapse/internal/config"
	"framelapse/internal/eventbus"
	logx "framelapse/pkg/logx"
)

// Config controls the scheduling engine.
type Config struct {
	Enabled   bool
	Workers   int
	QueueSize int
	Timezone  string // IANA TZ, e.g. "Europe/Amsterdam"

	// DrainTimeout bounds how long Stop() waits for in-flight captures
	// before cancelling their contexts.
	DrainTimeout time.Duration
}

// CaptureRunner executes one capture for a camera, applying the camera's
// retry/backoff policy. It must never panic; a fully failed capture is
// reported via err with path == "". A disabled camera yields
// ("", 0, nil) without any capture attempt.
type CaptureRunner interface {
	Capture(ctx context.Context, cam config.Camera) (path string, attempts int, err error)
}

// CaptureEvent is the Data payload of capture.* events on the bus.
type CaptureEvent struct {
	Camera   string        `json:"camera"`
	JobID    string        `json:"job_id"`
	Path     string        `json:"path,omitempty"`
	Started  time.Time     `json:"started"`
	Duration time.Duration `json:"duration"`
	Attempts int           `json:"attempts"`
	Reason   string        `json:"reason,omitempty"` // for capture.skipped: "disabled" or "outside_window"
	Error    string        `json:"error,omitempty"`
}

// ReconcileEvent is the Data payload of engine.reconciled events.
type ReconcileEvent struct {
	Added   int `json:"added"`
	Removed int `json:"removed"`
	Updated int `json:"updated"`
}

// trigger is one compiled recurrence rule for a schedule.
type trigger struct {
	suffix string // job-id suffix: "hourly", "interval", "daily_<i>"
	spec   string // cron spec or "@every <dur>"

	// gate is the time window enforced at fire time. Only interval
	// triggers carry one: a period trigger is phase-free, so its window
	// cannot be expressed in the spec itself.
	gate *config.TimeWindow
}

// jobHandle binds one compiled trigger to its live cron entry.
type jobHandle struct {
	id       string // "<camera>_<schedule>_<suffix>"
	schedule string
	spec     string
	gate     *config.TimeWindow
	entryID  cron.EntryID // 0 while the engine is not started
}

// cameraEntry is the registry record for one camera name.
type cameraEntry struct {
	camera  config.Camera
	handles []jobHandle
	paused  bool
}

type captureTask struct {
	camera   config.Camera
	jobID    string
	enqueued time.Time
}

// JobRun reports the next fire time of one registered job.
type JobRun struct {
	JobID string    `json:"job_id"`
	Next  time.Time `json:"next"`
}

type JobInfo struct {
	ID       string    `json:"id"`
	Schedule string    `json:"schedule"`
	Spec     string    `json:"spec"`
	Gated    bool      `json:"gated"`
	Next     time.Time `json:"next,omitempty"`
	Prev     time.Time `json:"prev,omitempty"`
}

type CameraJobs struct {
	Name   string    `json:"name"`
	Paused bool      `json:"paused"`
	Jobs   []JobInfo `json:"jobs"`
}

type Snapshot struct {
	Enabled  bool         `json:"enabled"`
	Timezone string       `json:"timezone"`
	Workers  int          `json:"workers"`
	QueueLen int          `json:"queue_len"`
	QueueCap int          `json:"queue_cap"`
	Cameras  []CameraJobs `json:"cameras"`
}

// Service is the scheduling engine. All registry state is guarded by mu;
// the firing path takes the same lock before dispatch so a job is never
// fired mid-teardown.
type Service struct {
	mu sync.Mutex

	log    logx.Logger
	cfg    Config
	bus    eventbus.Bus
	runner CaptureRunner

	loc    *time.Location
	parser cron.Parser
	c      *cron.Cron

	cameras map[string]*cameraEntry

	queue    chan captureTask
	stopCh   chan struct{}
	stopDone chan struct{}

	runCtx    context.Context
	runCancel context.CancelFunc
	workerWG  sync.WaitGroup
}
