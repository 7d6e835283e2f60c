package capture

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"framelapse/internal/config"
	logx "framelapse/pkg/logx"
)

// Func performs a single capture attempt for a camera and returns the path
// of the written frame. It must honor ctx cancellation.
type Func func(ctx context.Context, cam config.Camera) (string, error)

// Executor wraps a single-attempt capture Func with the per-camera retry
// policy: up to RetryCount attempts, each bounded by TimeoutSeconds, with
// exponential backoff between failures. A failure that exhausts the budget
// is returned to the caller but never escalates further; the next fire
// starts with a fresh budget.
type Executor struct {
	fn    Func
	log   logx.Logger
	sleep func(ctx context.Context, d time.Duration) error

	mu       sync.Mutex
	failWarn map[string]*rate.Limiter
}

func NewExecutor(fn Func, log logx.Logger) *Executor {
	return &Executor{
		fn:       fn,
		log:      log,
		sleep:    sleepCtx,
		failWarn: map[string]*rate.Limiter{},
	}
}

// Capture runs the retry loop for one fire.
//
// A disabled camera returns ("", 0, nil): zero attempts, no error. On
// success attempts counts the tries spent including the successful one.
// On exhaustion the last attempt's error is returned with attempts equal
// to the full budget.
func (e *Executor) Capture(ctx context.Context, cam config.Camera) (string, int, error) {
	if !cam.Enabled {
		return "", 0, nil
	}

	pol := cam.Capture
	budget := pol.RetryCount
	if budget <= 0 {
		budget = 1
	}

	var lastErr error
	for attempt := 0; attempt < budget; attempt++ {
		actx := ctx
		cancel := context.CancelFunc(nil)
		if pol.TimeoutSeconds > 0 {
			actx, cancel = context.WithTimeout(ctx, time.Duration(pol.TimeoutSeconds)*time.Second)
		}
		path, err := e.fn(actx, cam)
		if cancel != nil {
			cancel()
		}
		if err == nil {
			return path, attempt + 1, nil
		}
		lastErr = err
		e.logFailure(cam.Name, attempt+1, budget, err)

		if attempt == budget-1 {
			break
		}
		delay := backoffDelay(pol.RetryDelaySeconds, attempt)
		if serr := e.sleep(ctx, delay); serr != nil {
			// Shutdown during backoff: report what we actually spent.
			return "", attempt + 1, fmt.Errorf("capture aborted: %w", serr)
		}
	}
	return "", budget, fmt.Errorf("capture %s: %d attempts exhausted: %w", cam.Name, budget, lastErr)
}

// backoffDelay is base * 2^attempt seconds (attempt is zero-based).
func backoffDelay(baseSeconds float64, attempt int) time.Duration {
	if baseSeconds <= 0 {
		baseSeconds = 1
	}
	return time.Duration(baseSeconds * math.Pow(2, float64(attempt)) * float64(time.Second))
}

// logFailure keeps a flapping camera from flooding the log: per camera,
// intermediate attempt failures are warned at most once per 30s (burst 3)
// and demoted to debug beyond that.
func (e *Executor) logFailure(camera string, attempt, budget int, err error) {
	e.mu.Lock()
	lim, ok := e.failWarn[camera]
	if !ok {
		lim = rate.NewLimiter(rate.Every(30*time.Second), 3)
		e.failWarn[camera] = lim
	}
	e.mu.Unlock()

	fields := []logx.Field{
		logx.String("camera", camera),
		logx.Int("attempt", attempt),
		logx.Int("budget", budget),
		logx.Err(err),
	}
	if lim.Allow() {
		e.log.Warn("capture attempt failed", fields...)
	} else {
		e.log.Debug("capture attempt failed", fields...)
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
