//go:build !unix

package expect

import "os"

func terminate(p *os.Process) {
	if p == nil {
		return
	}
	_ = p.Kill()
}
