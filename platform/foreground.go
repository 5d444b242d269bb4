package platform

import (
	"context"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

// Foreground reports which process owns the active window.
type Foreground interface {
	ForegroundPID(ctx context.Context) (int, bool)
}

// DefaultForegroundCommand queries X11 through xdotool.
var DefaultForegroundCommand = []string{"xdotool", "getactivewindow", "getwindowpid"}

// CommandForeground runs an external command that prints the foreground pid.
// Any failure means "no foreground process" rather than an error: headless
// machines simply have everything in the background.
type CommandForeground struct {
	Argv    []string
	Timeout time.Duration
}

func (c CommandForeground) ForegroundPID(ctx context.Context) (int, bool) {
	if len(c.Argv) == 0 {
		return 0, false
	}
	timeout := c.Timeout
	if timeout <= 0 {
		timeout = 500 * time.Millisecond
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	out, err := exec.CommandContext(ctx, c.Argv[0], c.Argv[1:]...).Output()
	if err != nil {
		return 0, false
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(out)))
	if err != nil || pid <= 0 {
		return 0, false
	}
	return pid, true
}

// StaticForeground always reports the same pid; zero means none.
type StaticForeground int

func (s StaticForeground) ForegroundPID(context.Context) (int, bool) {
	return int(s), s > 0
}
