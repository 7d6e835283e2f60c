package capture

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"

	"framelapse/internal/config"
	logx "framelapse/pkg/logx"
)

// maxStderrExcerpt bounds how much ffmpeg stderr ends up in an error message.
const maxStderrExcerpt = 512

// NewFFmpegFunc returns a Func that grabs a single frame from the camera's
// RTSP stream with ffmpeg. Tool settings are read through get on every
// attempt so config reloads take effect without restarting the engine.
func NewFFmpegFunc(get func() config.CaptureConfig, log logx.Logger) Func {
	return func(ctx context.Context, cam config.Camera) (string, error) {
		cfg := get()
		bin := strings.TrimSpace(cfg.Binary)
		if bin == "" {
			bin = "ffmpeg"
		}
		root := strings.TrimSpace(cfg.CapturesPath)
		if root == "" {
			root = "captures"
		}

		out, err := outputPath(root, cam.Name, nowFunc())
		if err != nil {
			return "", err
		}

		args := grabArgs(cam, out)
		cmd := exec.CommandContext(ctx, bin, args...)
		var stderr bytes.Buffer
		cmd.Stderr = &stderr

		log.Debug("running grab",
			logx.String("camera", cam.Name),
			logx.String("bin", bin),
			logx.String("out", out))

		if err := cmd.Run(); err != nil {
			_ = os.Remove(out) // partial frames are worse than missing ones
			if ctx.Err() != nil {
				return "", fmt.Errorf("grab %s: %w", cam.Name, ctx.Err())
			}
			return "", fmt.Errorf("grab %s: %w: %s", cam.Name, err, stderrExcerpt(&stderr))
		}

		fi, err := os.Stat(out)
		if err != nil || fi.Size() == 0 {
			_ = os.Remove(out)
			return "", fmt.Errorf("grab %s: ffmpeg exited clean but wrote no frame", cam.Name)
		}
		return out, nil
	}
}

// grabArgs builds the ffmpeg argument list for a single-frame grab.
func grabArgs(cam config.Camera, out string) []string {
	args := []string{"-hide_banner", "-loglevel", "error", "-nostdin"}
	if strings.HasPrefix(strings.ToLower(cam.URL), "rtsp://") {
		args = append(args, "-rtsp_transport", "tcp")
	}
	args = append(args, "-i", cam.URL, "-frames:v", "1")
	args = append(args, "-q:v", strconv.Itoa(jpegQScale(cam.Capture.JPEGQuality)))
	if s := cam.Capture.ResolutionScale; s != nil && *s > 0 && *s < 1 {
		args = append(args, "-vf", fmt.Sprintf("scale=iw*%.3f:ih*%.3f", *s, *s))
	}
	return append(args, "-y", out)
}

// jpegQScale maps a 1..100 quality to ffmpeg's mjpeg qscale range, where
// 2 is best and 31 is worst.
func jpegQScale(quality int) int {
	if quality < 1 {
		quality = 1
	}
	if quality > 100 {
		quality = 100
	}
	q := 31 - (quality-1)*29/99
	if q < 2 {
		q = 2
	}
	return q
}

func stderrExcerpt(b *bytes.Buffer) string {
	s := strings.TrimSpace(b.String())
	if len(s) > maxStderrExcerpt {
		s = s[:maxStderrExcerpt] + "..."
	}
	if s == "" {
		return "(no stderr)"
	}
	return s
}
