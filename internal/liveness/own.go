package liveness

import (
	"context"
	"os"
	"path/filepath"

	"github.com/shirou/gopsutil/v4/process"
)

// ownFilter recognises processes that belong to this program: the current
// process and any other process running the same executable, such as the
// indicator child or a detached instance.
type ownFilter struct {
	selfPID int32
	exe     string
	exeOf   func(ctx context.Context, pid int32) (string, error)
}

func newOwnFilter(selfPID int, exe string) ownFilter {
	return ownFilter{selfPID: int32(selfPID), exe: resolvePath(exe), exeOf: processExe}
}

func currentOwnFilter() ownFilter {
	exe, err := os.Executable()
	if err != nil {
		exe = ""
	}
	return newOwnFilter(os.Getpid(), exe)
}

func processExe(ctx context.Context, pid int32) (string, error) {
	p, err := process.NewProcessWithContext(ctx, pid)
	if err != nil {
		return "", err
	}
	return p.ExeWithContext(ctx)
}

func resolvePath(path string) string {
	if path == "" {
		return ""
	}
	if resolved, err := filepath.EvalSymlinks(path); err == nil {
		return resolved
	}
	return filepath.Clean(path)
}

// owns reports whether pid is this program. A process whose executable
// cannot be read is treated as foreign.
func (f ownFilter) owns(ctx context.Context, pid int32) bool {
	if pid == f.selfPID {
		return true
	}
	if f.exe == "" || f.exeOf == nil {
		return false
	}
	exe, err := f.exeOf(ctx, pid)
	if err != nil || exe == "" {
		return false
	}
	return resolvePath(exe) == f.exe
}
