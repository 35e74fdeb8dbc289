package service

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/joncrangle/idle-clicker/internal/config"
)

var (
	ErrAlreadyRunning = errors.New("service already running")
	ErrNotRunning     = errors.New("service not running")
)

const (
	stopWait     = 5 * time.Second
	stopInterval = 100 * time.Millisecond
)

func readPID() (int, error) {
	pidBytes, err := os.ReadFile(config.PidFile)
	if err != nil {
		return 0, err
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(pidBytes)))
	if err != nil {
		if removeErr := os.Remove(config.PidFile); removeErr != nil {
			return 0, fmt.Errorf("invalid PID file (%v) and failed to cleanup (%v)", err, removeErr)
		}
		return 0, fmt.Errorf("invalid PID file (cleaned up): %w", err)
	}
	return pid, nil
}

// RunArgs returns the arguments that make a detached child reproduce cfg.
func RunArgs(cfg *config.Config) []string {
	args := []string{
		"run",
		fmt.Sprintf("--fast=%d", cfg.IdleTimeout),
		fmt.Sprintf("--target=%s", cfg.Target),
		fmt.Sprintf("--offset-x=%d", cfg.OffsetX),
		fmt.Sprintf("--offset-y=%d", cfg.OffsetY),
		fmt.Sprintf("--key=%s", cfg.Key),
	}
	if cfg.Liveness != "" {
		args = append(args, fmt.Sprintf("--liveness=%s", cfg.Liveness))
	}
	if cfg.IndicatorCmd != "" {
		args = append(args, fmt.Sprintf("--indicator-cmd=%s", cfg.IndicatorCmd))
	}
	if cfg.NoIndicator {
		args = append(args, "--no-indicator")
	}
	if cfg.WebSocket {
		args = append(args, "--websocket", fmt.Sprintf("--port=%d", cfg.Port))
	}
	if cfg.Debug {
		args = append(args, "--debug")
	}
	// Always passed so an empty path keeps file logging off in the child.
	args = append(args, fmt.Sprintf("--log-file=%s", cfg.LogFile))
	if cfg.LogFormat != "" {
		args = append(args, fmt.Sprintf("--log-format=%s", cfg.LogFormat))
	}
	if cfg.LogLevel != "" {
		args = append(args, fmt.Sprintf("--log-level=%s", cfg.LogLevel))
	}
	args = append(args, fmt.Sprintf("--log-rotate=%t", cfg.LogRotate))
	if cfg.LogRotate {
		args = append(args,
			fmt.Sprintf("--max-log-size=%d", cfg.MaxLogSize),
			fmt.Sprintf("--max-log-backups=%d", cfg.MaxLogBackups),
			fmt.Sprintf("--max-log-age=%d", cfg.MaxLogAge))
	}
	return args
}

// Start launches a detached `run` child and records its PID. With Debug set
// the child runs in the foreground instead and Start returns when it exits.
func Start(cfg *config.Config) (int, error) {
	if pid, err := readPID(); err == nil {
		if IsProcessRunning(pid) {
			return pid, fmt.Errorf("%w (PID %d)", ErrAlreadyRunning, pid)
		}
		// Stale PID file
		os.Remove(config.PidFile)
	}

	exe, err := os.Executable()
	if err != nil {
		return 0, fmt.Errorf("failed to get executable path: %w", err)
	}
	args := RunArgs(cfg)

	if cfg.Debug {
		cmd := exec.Command(exe, args...)
		cmd.Stdout = os.Stdout
		cmd.Stderr = os.Stderr
		return 0, cmd.Run()
	}

	cmd := exec.Command(exe, args...)
	detach(cmd)
	if err := cmd.Start(); err != nil {
		return 0, fmt.Errorf("failed to start service: %w", err)
	}
	pid := cmd.Process.Pid

	if err := os.WriteFile(config.PidFile, []byte(strconv.Itoa(pid)), 0o644); err != nil {
		if killErr := cmd.Process.Kill(); killErr != nil {
			return 0, fmt.Errorf("service started but failed to write PID file (%v) and failed to cleanup process (%v)", err, killErr)
		}
		return 0, fmt.Errorf("service started but failed to write PID file: %w", err)
	}
	_ = cmd.Process.Release()
	return pid, nil
}

// Stop terminates the background instance and removes its PID file.
func Stop() (int, error) {
	pid, err := readPID()
	if err != nil {
		if os.IsNotExist(err) {
			return 0, fmt.Errorf("%w (no PID file found)", ErrNotRunning)
		}
		return 0, err
	}

	if !IsProcessRunning(pid) {
		if removeErr := os.Remove(config.PidFile); removeErr != nil {
			return pid, fmt.Errorf("process not running and failed to cleanup stale PID file: %w", removeErr)
		}
		return pid, fmt.Errorf("%w (cleaned up stale PID file)", ErrNotRunning)
	}

	proc, err := os.FindProcess(pid)
	if err != nil {
		return pid, fmt.Errorf("process not found: %w", err)
	}
	if err := terminate(proc); err != nil {
		return pid, fmt.Errorf("failed to stop process (PID %d): %w", pid, err)
	}

	if !waitExit(pid, stopWait) {
		if err := proc.Kill(); err != nil {
			return pid, fmt.Errorf("process (PID %d) ignored termination and kill failed: %w", pid, err)
		}
	}

	if err := os.Remove(config.PidFile); err != nil && !os.IsNotExist(err) {
		return pid, fmt.Errorf("service stopped but failed to cleanup PID file: %w", err)
	}
	return pid, nil
}

func waitExit(pid int, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if !IsProcessRunning(pid) {
			return true
		}
		time.Sleep(stopInterval)
	}
	return !IsProcessRunning(pid)
}

// GetEnhancedStatus reports whether the background instance is alive and,
// if so, its last state snapshot. A stale PID file is removed.
func GetEnhancedStatus() (bool, int, *State, error) {
	pid, err := readPID()
	if err != nil {
		if os.IsNotExist(err) {
			return false, 0, nil, nil
		}
		return false, 0, nil, err
	}

	if IsProcessRunning(pid) {
		info, err := ReadState(config.StateFile)
		if err != nil || info.PID != pid {
			info = &State{PID: pid, Status: "running"}
		}
		return true, pid, info, nil
	}

	if removeErr := os.Remove(config.PidFile); removeErr != nil {
		return false, pid, nil, fmt.Errorf("stale PID file found but failed to cleanup: %w", removeErr)
	}
	return false, pid, nil, nil
}
