// Package camera captures stills from a locally attached webcam and renders
// them as a small HTML page.
package camera

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

var ErrCaptureFailed = errors.New("camera capture failed")

type Capturer interface {
	Capture(ctx context.Context) ([]byte, error)
}

// CommandCapturer runs an external program that writes one encoded image to
// stdout (fswebcam, raspistill, libcamera-still ...).
type CommandCapturer struct {
	Command []string
	Timeout time.Duration
}

func (c CommandCapturer) Capture(ctx context.Context) ([]byte, error) {
	if len(c.Command) == 0 {
		return nil, fmt.Errorf("%w: no capture command configured", ErrCaptureFailed)
	}
	if c.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.Timeout)
		defer cancel()
	}

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, c.Command[0], c.Command[1:]...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	// Children that inherit stdout must not keep Run blocked after a kill.
	cmd.WaitDelay = time.Second
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			err = ctx.Err()
		}
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return nil, fmt.Errorf("%w: %s: %v (%s)", ErrCaptureFailed, c.Command[0], err, lastLine(msg))
		}
		return nil, fmt.Errorf("%w: %s: %v", ErrCaptureFailed, c.Command[0], err)
	}
	if stdout.Len() == 0 {
		return nil, fmt.Errorf("%w: %s produced no image", ErrCaptureFailed, c.Command[0])
	}
	return stdout.Bytes(), nil
}

func lastLine(s string) string {
	if i := strings.LastIndexByte(s, '\n'); i >= 0 {
		return s[i+1:]
	}
	return s
}
