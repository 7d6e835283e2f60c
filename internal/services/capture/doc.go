// Package capture turns a scheduled fire into a frame on disk.
//
// The Executor owns the retry policy (bounded attempts, exponential backoff,
// per-attempt timeouts); the actual grab is an injected Func so tests can
// run the executor without ffmpeg or a camera.
package capture
