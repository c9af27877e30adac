//go:build unix

package dispatcher

import (
	"fmt"
	"net"
	"syscall"

	"golang.org/x/sys/unix"
)

// controlFor returns a net.ListenConfig.Control callback that applies
// SO_REUSEADDR and SO_OOBINLINE to every listening socket, plus
// IPV6_V6ONLY when the socket is IPv6-capable: enabled for a
// single-family v6 listener, disabled for a dual-stack wildcard one.
func controlFor(family int) func(network, address string, c syscall.RawConn) error {
	return func(network, address string, c syscall.RawConn) error {
		var sockErr error
		ctrlErr := c.Control(func(fd uintptr) {
			if sockErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); sockErr != nil {
				return
			}
			if sockErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_OOBINLINE, 1); sockErr != nil {
				return
			}
			if family == syscall.AF_INET {
				return
			}
			v6only := 1
			if family == syscall.AF_UNSPEC {
				v6only = 0
			}
			sockErr = unix.SetsockoptInt(int(fd), unix.IPPROTO_IPV6, unix.IPV6_V6ONLY, v6only)
		})
		if ctrlErr != nil {
			return ctrlErr
		}
		return sockErr
	}
}

// setOOBInline applies SO_OOBINLINE to a dialed forward socket.
func setOOBInline(c syscall.RawConn) error {
	var sockErr error
	ctrlErr := c.Control(func(fd uintptr) {
		sockErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_OOBINLINE, 1)
	})
	if ctrlErr != nil {
		return ctrlErr
	}
	return sockErr
}

// setOOBInlineOnConn applies SO_OOBINLINE to an already-accepted
// connection. The listening socket's own SO_OOBINLINE (set by
// controlFor) never carries application data, so each accepted TCP
// client socket needs the option set again, same as the forward leg.
func setOOBInlineOnConn(conn net.Conn) error {
	sc, ok := conn.(syscall.Conn)
	if !ok {
		return fmt.Errorf("dispatcher: %T does not expose a raw connection", conn)
	}
	raw, err := sc.SyscallConn()
	if err != nil {
		return err
	}
	return setOOBInline(raw)
}
