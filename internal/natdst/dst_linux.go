//go:build linux

package natdst

import (
	"fmt"
	"net"
	"syscall"
	"unsafe"

	"golang.org/x/sys/unix"
)

// originalDestination reads SO_ORIGINAL_DST, the netfilter record of the
// address a `-j REDIRECT`'d packet was addressed to before rewriting.
func originalDestination(conn Conn) (net.Addr, error) {
	sc, ok := conn.(syscall.Conn)
	if !ok {
		return nil, fmt.Errorf("natdst: %T does not expose a raw connection", conn)
	}
	raw, err := sc.SyscallConn()
	if err != nil {
		return nil, fmt.Errorf("natdst: SyscallConn: %w", err)
	}

	var buf [64]byte
	var sockErr error
	ctrlErr := raw.Control(func(fd uintptr) {
		sockErr = getOriginalDst(int(fd), buf[:])
	})
	if ctrlErr != nil {
		return nil, fmt.Errorf("natdst: Control: %w", ctrlErr)
	}
	if sockErr != nil {
		return nil, sockErr
	}

	return parseSockaddr(buf[:])
}

// getOriginalDst issues the getsockopt(SOL_IP, SO_ORIGINAL_DST) call the
// netfilter REDIRECT target records on an accepted socket.
func getOriginalDst(fd int, buf []byte) error {
	size := uint32(len(buf))
	_, _, errno := syscall.Syscall6(
		syscall.SYS_GETSOCKOPT,
		uintptr(fd),
		uintptr(syscall.SOL_IP),
		uintptr(unix.SO_ORIGINAL_DST),
		uintptr(unsafe.Pointer(&buf[0])),
		uintptr(unsafe.Pointer(&size)),
		0,
	)
	if errno != 0 {
		return fmt.Errorf("getsockopt SO_ORIGINAL_DST: %w", errno)
	}
	return nil
}

// parseSockaddr decodes the raw sockaddr_in/sockaddr_in6 the kernel wrote
// into buf: 2 bytes family, 2 bytes port (network order), then the
// address bytes.
func parseSockaddr(buf []byte) (net.Addr, error) {
	if len(buf) < 8 {
		return nil, fmt.Errorf("natdst: short sockaddr (%d bytes)", len(buf))
	}
	family := uint16(buf[0]) | uint16(buf[1])<<8
	port := int(buf[2])<<8 | int(buf[3])

	switch family {
	case syscall.AF_INET:
		ip := net.IPv4(buf[4], buf[5], buf[6], buf[7])
		return &net.TCPAddr{IP: ip, Port: port}, nil
	case syscall.AF_INET6:
		if len(buf) < 24 {
			return nil, fmt.Errorf("natdst: short sockaddr_in6 (%d bytes)", len(buf))
		}
		ip := make(net.IP, net.IPv6len)
		copy(ip, buf[8:24])
		return &net.TCPAddr{IP: ip, Port: port}, nil
	default:
		return nil, fmt.Errorf("natdst: unsupported address family %d", family)
	}
}
