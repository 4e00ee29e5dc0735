package listener

import (
	"context"
	"net"
	"syscall"

	"golang.org/x/sys/unix"
)

// newReusePortListener binds addr ("ip:port") with SO_REUSEPORT and
// SO_REUSEADDR set on the socket before bind, so multiple listener
// goroutines (and, eventually, multiple processes) can share the same
// port — the Go equivalent of the original's socket2-based
// create_reuse_port_socket, grounded on the same golang.org/x/sys/unix
// package kasper already depends on for process control.
func newReusePortListener(addr string) (net.Listener, error) {
	lc := net.ListenConfig{
		Control: func(network, address string, c syscall.RawConn) error {
			var sockErr error
			err := c.Control(func(fd uintptr) {
				sockErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEPORT, 1)
				if sockErr != nil {
					return
				}
				sockErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEADDR, 1)
			})
			if err != nil {
				return err
			}
			return sockErr
		},
	}

	return lc.Listen(context.Background(), "tcp", addr)
}
