//go:build unix

package expect

import (
	"os"

	"golang.org/x/sys/unix"
)

// terminate kills the whole process group. The child is a session leader
// under the pty, so its pgid equals its pid.
func terminate(p *os.Process) {
	if p == nil {
		return
	}
	if err := unix.Kill(-p.Pid, unix.SIGKILL); err != nil {
		_ = p.Kill()
	}
}
