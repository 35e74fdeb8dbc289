// Package indicator manages the child process that draws a marker over the
// click target.
package indicator

import (
	"fmt"
	"image"
	"log/slog"
	"os/exec"
	"strconv"
	"sync"
	"time"
)

// DefaultStopTimeout bounds how long Stop waits for the child to exit after
// asking it to terminate.
const DefaultStopTimeout = time.Second

// Controller is the capability the trigger loop needs from an indicator.
type Controller interface {
	Start(p image.Point) bool
	Stop()
}

// Manager runs at most one indicator child at a time.
type Manager struct {
	program     string
	args        []string
	stopTimeout time.Duration
	logger      *slog.Logger

	mu   sync.Mutex
	cmd  *exec.Cmd
	done chan struct{}
}

// NewManager returns a manager that runs `program args... X Y`.
func NewManager(program string, args []string, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		program:     program,
		args:        args,
		stopTimeout: DefaultStopTimeout,
		logger:      logger,
	}
}

// Start launches the indicator at p, stopping any previous one first. It
// returns false when the program is unavailable or fails to start.
func (m *Manager) Start(p image.Point) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.stopLocked()

	path, err := exec.LookPath(m.program)
	if err != nil {
		m.logger.Warn("Indicator program not available",
			slog.String("program", m.program),
			slog.String("error", err.Error()))
		return false
	}

	args := append(append([]string{}, m.args...), strconv.Itoa(p.X), strconv.Itoa(p.Y))
	cmd := exec.Command(path, args...)
	// Leaving Stdout and Stderr nil sends them to the null device.
	if err := cmd.Start(); err != nil {
		m.logger.Warn("Could not start indicator", slog.String("error", err.Error()))
		return false
	}

	done := make(chan struct{})
	go func() {
		_ = cmd.Wait()
		close(done)
	}()

	m.cmd = cmd
	m.done = done
	m.logger.Debug("Visual indicator started",
		slog.Int("pid", cmd.Process.Pid),
		slog.Int("x", p.X),
		slog.Int("y", p.Y))
	return true
}

// Stop terminates the running indicator, if any. It never blocks longer than
// the stop timeout plus a kill.
func (m *Manager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopLocked()
}

// Running reports whether an indicator child is alive.
func (m *Manager) Running() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.aliveLocked()
}

func (m *Manager) aliveLocked() bool {
	return m.cmd != nil && !exited(m.done)
}

func exited(done <-chan struct{}) bool {
	select {
	case <-done:
		return true
	default:
		return false
	}
}

func (m *Manager) stopLocked() {
	if m.cmd == nil {
		return
	}
	cmd, done := m.cmd, m.done
	m.cmd, m.done = nil, nil

	if exited(done) {
		return
	}

	pid := cmd.Process.Pid
	if err := terminate(cmd.Process); err != nil {
		m.logger.Warn("Could not stop indicator", slog.Int("pid", pid), slog.String("error", err.Error()))
	}

	select {
	case <-done:
		m.logger.Debug("Visual indicator stopped", slog.Int("pid", pid))
		return
	case <-time.After(m.stopTimeout):
	}

	m.logger.Warn("Indicator did not exit in time, killing",
		slog.Int("pid", pid),
		slog.Duration("timeout", m.stopTimeout))
	if err := cmd.Process.Kill(); err != nil {
		m.logger.Warn("Could not kill indicator", slog.Int("pid", pid), slog.String("error", err.Error()))
		return
	}
	select {
	case <-done:
	case <-time.After(m.stopTimeout):
		m.logger.Warn("Indicator still running after kill", slog.Int("pid", pid))
	}
}

// String describes the configured command for logs.
func (m *Manager) String() string {
	return fmt.Sprintf("%s %v", m.program, m.args)
}

// Nop is a Controller that does nothing, used when the indicator is disabled.
type Nop struct{}

func (Nop) Start(image.Point) bool { return false }
func (Nop) Stop()                  {}
