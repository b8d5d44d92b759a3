//go:build !(linux || darwin || freebsd || netbsd || openbsd || dragonfly)

package netutil

import "syscall"

func reuseControl(bool) func(string, string, syscall.RawConn) error {
	return nil
}
