// Package natdst retrieves the kernel-recorded pre-NAT destination of an
// accepted connection, for transparent-proxy mode.
package natdst

import "net"

// Conn is the minimal capability OriginalDestination needs: a local
// address for the fallback path. Both net.Conn (TCP) and net.PacketConn
// (UDP) satisfy it, since a UDP transparent proxy has no per-flow
// accepted socket: the shared listening socket is looked up instead.
type Conn interface {
	LocalAddr() net.Addr
}

// OriginalDestination returns the address the client actually dialed
// before a REDIRECT-style NAT rule steered the packet to this listener.
// On platforms without that record it falls back to conn.LocalAddr(),
// matching the pre-2.4 Linux transparent-proxy convention where the
// listener itself is bound to the intended destination address.
func OriginalDestination(conn Conn) (net.Addr, error) {
	return originalDestination(conn)
}
