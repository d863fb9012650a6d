//go:build unix

package login

import "golang.org/x/sys/unix"

// secureUmask keeps files the tool writes during a run (its authenticator
// state, session tokens) readable by the owner only.
const secureUmask = 0o077

// applySecureUmask sets secureUmask for the whole process and returns a func
// that puts the previous mask back.
func applySecureUmask() (restore func()) {
	prev := unix.Umask(secureUmask)
	return func() { unix.Umask(prev) }
}
