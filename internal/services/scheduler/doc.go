// Package scheduler is the capture scheduling engine.
//
// It compiles declarative camera schedules into concrete cron/interval
// triggers (robfig/cron), owns the per-camera job registry, reconciles the
// registry against new configuration snapshots, and dispatches fired jobs
// onto a bounded worker pool so a slow camera never delays the others.
//
// The engine never owns camera configuration: cameras are loaded from the
// config layer and only referenced here. The capture action itself is
// injected at construction (CaptureRunner) and treated as opaque.
package scheduler
