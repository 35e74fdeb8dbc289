//go:build !windows

package indicator

import (
	"os"

	"golang.org/x/sys/unix"
)

func terminate(p *os.Process) error {
	return p.Signal(unix.SIGTERM)
}
