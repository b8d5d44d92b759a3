// Package netutil holds the TCP listener setup shared by the server and
// the proxy.
package netutil

import (
	"context"
	"fmt"
	"net"
)

// Listen binds a TCP listener on addr with address reuse enabled where the
// platform supports it, so a restarted process can rebind while old sockets
// linger in TIME_WAIT. reusePort additionally sets SO_REUSEPORT, which lets
// several processes bind the same port at once.
func Listen(ctx context.Context, addr string, reusePort bool) (net.Listener, error) {
	lc := net.ListenConfig{Control: reuseControl(reusePort)}
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen %s: %w", addr, err)
	}
	return ln, nil
}
