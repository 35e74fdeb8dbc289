package liveness

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"log/slog"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

const pgrepTimeout = 3 * time.Second

// runFunc executes a command and returns its stdout.
type runFunc func(ctx context.Context, name string, args ...string) ([]byte, error)

func execOutput(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).Output()
}

// Pgrep matches against full command lines with `pgrep -f`.
type Pgrep struct {
	run    runFunc
	own    ownFilter
	logger *slog.Logger
}

func NewPgrep(logger *slog.Logger) *Pgrep {
	return &Pgrep{run: execOutput, own: currentOwnFilter(), logger: logger}
}

func (p *Pgrep) IsRunning(ctx context.Context, name string) (running bool) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Warn("Liveness check panic recovered", slog.Any("error", r))
			running = false
		}
	}()

	ctx, cancel := context.WithTimeout(ctx, pgrepTimeout)
	defer cancel()

	out, err := p.run(ctx, "pgrep", "-f", name)
	if err != nil {
		var exitErr *exec.ExitError
		// Exit status 1 is pgrep's "no match", anything else is a failed query.
		if !errors.As(err, &exitErr) || exitErr.ExitCode() != 1 {
			p.logger.Warn("Liveness query failed",
				slog.String("target", name),
				slog.String("error", err.Error()))
		}
		return false
	}

	return hasForeignPID(out, func(pid int) bool { return p.own.owns(ctx, int32(pid)) })
}

// hasForeignPID reports whether pgrep output lists a PID that is not ours.
// Output that cannot be parsed still counts as a match since pgrep exited 0.
func hasForeignPID(out []byte, own func(pid int) bool) bool {
	sc := bufio.NewScanner(bytes.NewReader(out))
	parsed := false
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		pid, err := strconv.Atoi(line)
		if err != nil {
			return true
		}
		parsed = true
		if !own(pid) {
			return true
		}
	}
	return !parsed
}
