package liveness

import (
	"context"
	"log/slog"
	"strings"

	"github.com/shirou/gopsutil/v4/process"
)

// ProcTable walks the OS process table through gopsutil. It is used where
// pgrep is not installed.
type ProcTable struct {
	list   func(ctx context.Context) ([]*process.Process, error)
	own    ownFilter
	logger *slog.Logger
}

func NewProcTable(logger *slog.Logger) *ProcTable {
	return &ProcTable{
		list:   process.ProcessesWithContext,
		own:    currentOwnFilter(),
		logger: logger,
	}
}

func (p *ProcTable) IsRunning(ctx context.Context, name string) (running bool) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Warn("Liveness check panic recovered", slog.Any("error", r))
			running = false
		}
	}()

	procs, err := p.list(ctx)
	if err != nil {
		p.logger.Warn("Process table query failed",
			slog.String("target", name),
			slog.String("error", err.Error()))
		return false
	}

	for _, proc := range procs {
		if matches(ctx, proc, name) && !p.own.owns(ctx, proc.Pid) {
			return true
		}
	}
	return false
}

// matches checks the command line, then the process name. Processes can exit
// between listing and inspection; those never match.
func matches(ctx context.Context, proc *process.Process, name string) bool {
	if cmdline, err := proc.CmdlineWithContext(ctx); err == nil && strings.Contains(cmdline, name) {
		return true
	}
	if exe, err := proc.NameWithContext(ctx); err == nil && strings.Contains(exe, name) {
		return true
	}
	return false
}
