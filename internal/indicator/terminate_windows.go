//go:build windows

package indicator

import "os"

// Windows has no polite termination signal for a windowed child.
func terminate(p *os.Process) error {
	return p.Kill()
}
