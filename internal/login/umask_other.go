//go:build !unix

package login

// Windows has no umask; file permissions there come from ACLs.
func applySecureUmask() (restore func()) { return func() {} }
