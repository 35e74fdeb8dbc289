// Package liveness answers whether a named process is currently running.
//
// Checkers never return errors: a failed query is reported as "not running"
// so the trigger loop cannot crash on a flaky process table.
package liveness

import (
	"context"
	"fmt"
	"log/slog"
	"os/exec"
)

// Checker reports whether at least one process matches name.
type Checker interface {
	IsRunning(ctx context.Context, name string) bool
}

const (
	MethodAuto      = "auto"
	MethodPgrep     = "pgrep"
	MethodProcTable = "proctable"
)

// Methods lists the accepted values for New.
var Methods = []string{MethodAuto, MethodPgrep, MethodProcTable}

// New returns the checker for method. Auto prefers pgrep when it is on PATH.
func New(method string, logger *slog.Logger) (Checker, error) {
	if logger == nil {
		logger = slog.Default()
	}
	switch method {
	case MethodPgrep:
		return NewPgrep(logger), nil
	case MethodProcTable:
		return NewProcTable(logger), nil
	case MethodAuto, "":
		if _, err := exec.LookPath("pgrep"); err == nil {
			logger.Debug("Using pgrep for liveness checks")
			return NewPgrep(logger), nil
		}
		logger.Debug("pgrep not found, using process table for liveness checks")
		return NewProcTable(logger), nil
	default:
		return nil, fmt.Errorf("unknown liveness method %q", method)
	}
}
