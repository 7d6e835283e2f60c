package config

import (
	"bytes"
	"encoding/json"
)

type Config struct {
	Logging LoggingConfig `json:"logging"`

	// Engine controls the capture scheduling engine (triggers + workers).
	Engine EngineConfig `json:"engine"`

	// Capture holds process-wide capture settings (tool, output root).
	Capture CaptureConfig `json:"capture,omitempty"`

	// Storage controls the optional capture-history database.
	Storage *StorageConfig `json:"storage,omitempty"`

	// Status controls the optional read-only ops HTTP server.
	Status StatusConfig `json:"status,omitempty"`

	Cameras map[string]Camera `json:"cameras"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled    bool   `json:"enabled"`
	Path       string `json:"path"`
	MaxSizeMB  int    `json:"max_size_mb,omitempty"`
	MaxBackups int    `json:"max_backups,omitempty"`
	MaxAgeDays int    `json:"max_age_days,omitempty"`
}

// EngineConfig controls the scheduling engine.
//
// All durations are Go duration strings (e.g. "500ms", "10s", "1m").
//
// Defaults (when fields are omitted/zero):
//   - workers: 4
//   - queue_size: 64
//   - drain_timeout: "30s"
//   - reload_debounce: "1s"
type EngineConfig struct {
	Enabled bool `json:"enabled"`

	Workers   int `json:"workers,omitempty"`
	QueueSize int `json:"queue_size,omitempty"`

	// Trigger timezone (IANA TZ, e.g. "Europe/Amsterdam"). Empty = local.
	Timezone string `json:"timezone,omitempty"`

	// DrainTimeout bounds how long Stop() waits for in-flight captures.
	DrainTimeout string `json:"drain_timeout,omitempty"`

	// ReloadDebounce coalesces config-change notifications before a reconcile.
	ReloadDebounce string `json:"reload_debounce,omitempty"`
}

type CaptureConfig struct {
	// Binary is the ffmpeg executable used to grab stills. Default "ffmpeg".
	Binary string `json:"binary,omitempty"`

	// CapturesPath is the root directory for captured frames. Default "captures".
	CapturesPath string `json:"captures_path,omitempty"`
}

// StorageConfig controls the optional capture-history layer.
//
// Example:
//
//	"storage": { "driver": "sqlite", "path": "./framelapse.db" }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string
}

// StatusConfig controls the read-only ops HTTP server.
//
// A non-loopback Addr requires Token (or AllowInsecure) so the API is never
// exposed publicly by accident.
type StatusConfig struct {
	Enabled       bool   `json:"enabled"`
	Addr          string `json:"addr,omitempty"` // default "127.0.0.1:8490"
	Token         string `json:"token,omitempty"`
	AllowInsecure bool   `json:"allow_insecure,omitempty"`
	Pprof         bool   `json:"pprof,omitempty"`
}

type Frequency string

const (
	FrequencyHourly   Frequency = "hourly"
	FrequencyInterval Frequency = "interval"
	FrequencyXPerDay  Frequency = "x_per_day"
)

// Camera describes one camera and its capture schedules.
//
// Cameras are keyed by name in Config.Cameras; Name is filled in from the
// map key during Parse (it is not part of the on-disk format).
type Camera struct {
	Name      string        `json:"-"`
	URL       string        `json:"url"`
	Enabled   bool          `json:"enabled"`
	Schedules []Schedule    `json:"schedules,omitempty"`
	Capture   CapturePolicy `json:"capture,omitempty"`
}

// UnmarshalJSON applies defaults (enabled:true, capture policy) and
// disallows unknown fields so typos are caught on reload.
func (c *Camera) UnmarshalJSON(b []byte) error {
	type alias Camera
	tmp := alias{Enabled: true, Capture: DefaultCapturePolicy()}
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&tmp); err != nil {
		return err
	}
	tmp.Capture = tmp.Capture.withDefaults()
	*c = Camera(tmp)
	return nil
}

// Schedule describes when a camera captures.
//
// Value meaning depends on Frequency:
//   - hourly: unused
//   - interval: hours between fires
//   - x_per_day: fire count per day
type Schedule struct {
	Name      string      `json:"name"`
	Frequency Frequency   `json:"frequency"`
	Enabled   bool        `json:"enabled"`
	Value     int         `json:"value,omitempty"`
	Window    *TimeWindow `json:"window,omitempty"`
}

func (s *Schedule) UnmarshalJSON(b []byte) error {
	type alias Schedule
	tmp := alias{Enabled: true, Value: 1}
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&tmp); err != nil {
		return err
	}
	*s = Schedule(tmp)
	return nil
}

// TimeWindow restricts fires to a time-of-day range.
// End before Start denotes a window that crosses midnight.
type TimeWindow struct {
	Start TimeOfDay `json:"start"`
	End   TimeOfDay `json:"end"`
}

// Wraps reports whether the window crosses midnight.
func (w TimeWindow) Wraps() bool { return w.End.Before(w.Start) }

// CapturePolicy holds per-camera capture/retry settings.
type CapturePolicy struct {
	JPEGQuality       int      `json:"jpeg_quality,omitempty"`
	TimeoutSeconds    int      `json:"timeout_seconds,omitempty"`
	RetryCount        int      `json:"retry_count,omitempty"`
	RetryDelaySeconds float64  `json:"retry_delay_seconds,omitempty"`
	ResolutionScale   *float64 `json:"resolution_scale,omitempty"`
}

func DefaultCapturePolicy() CapturePolicy {
	return CapturePolicy{
		JPEGQuality:       90,
		TimeoutSeconds:    10,
		RetryCount:        3,
		RetryDelaySeconds: 1.0,
	}
}

func (p CapturePolicy) withDefaults() CapturePolicy {
	def := DefaultCapturePolicy()
	if p.JPEGQuality <= 0 {
		p.JPEGQuality = def.JPEGQuality
	}
	if p.TimeoutSeconds <= 0 {
		p.TimeoutSeconds = def.TimeoutSeconds
	}
	if p.RetryCount <= 0 {
		p.RetryCount = def.RetryCount
	}
	if p.RetryDelaySeconds <= 0 {
		p.RetryDelaySeconds = def.RetryDelaySeconds
	}
	return p
}
