//go:build !unix

package dispatcher

import (
	"net"
	"syscall"
)

// controlFor is a no-op outside unix-like platforms: the socket options
// this dispatcher tunes (SO_REUSEADDR, SO_OOBINLINE, IPV6_V6ONLY) are
// POSIX socket-layer options with no portable golang.org/x/sys/unix
// equivalent wired here.
func controlFor(family int) func(network, address string, c syscall.RawConn) error {
	return func(network, address string, c syscall.RawConn) error { return nil }
}

func setOOBInline(c syscall.RawConn) error { return nil }

func setOOBInlineOnConn(conn net.Conn) error { return nil }
