//go:build linux || darwin || freebsd || netbsd || openbsd || dragonfly

package netutil

import (
	"fmt"
	"syscall"

	"golang.org/x/sys/unix"
)

func reuseControl(reusePort bool) func(string, string, syscall.RawConn) error {
	return func(network, address string, c syscall.RawConn) error {
		var sockErr error
		err := c.Control(func(fd uintptr) {
			if err := unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
				sockErr = fmt.Errorf("SO_REUSEADDR: %w", err)
				return
			}
			if !reusePort {
				return
			}
			if err := unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEPORT, 1); err != nil {
				sockErr = fmt.Errorf("SO_REUSEPORT: %w", err)
			}
		})
		if err != nil {
			return err
		}
		return sockErr
	}
}
