//go:build !linux

package natdst

import "net"

// originalDestination falls back to the listener's own bound address,
// the pre-2.4 Linux convention for transparent proxying without
// netfilter's REDIRECT bookkeeping.
func originalDestination(conn Conn) (net.Addr, error) {
	return conn.LocalAddr(), nil
}
