// Package tracker holds the live TCP/UDP session table for one
// dispatcher. It is accessed only from the dispatcher goroutine and
// performs no locking of its own.
package tracker

import (
	"net"
	"time"
)

// ClientEndpoint tags a Session as either a single TCP peer or a UDP
// pseudo-connection, replacing a null-sentinel field with an explicit
// sum type.
type ClientEndpoint interface {
	isClientEndpoint()
}

// TCPClient identifies the accepted connection on the client side of a
// TCP session.
type TCPClient struct {
	Conn net.Conn
}

func (TCPClient) isClientEndpoint() {}

// UDPClient identifies the (source address, source port) pair a UDP
// pseudo-connection is keyed on, plus the shared listening socket used
// to reply to it.
type UDPClient struct {
	Listener net.PacketConn
	Addr     net.Addr
}

func (UDPClient) isClientEndpoint() {}

// State is a session's position in its lifecycle. Any state at or past
// Disconnected marks the session for removal on the next sweep.
type State int

const (
	Unreplied State = iota
	Established
	Disconnected
	TimedOut
)

func (s State) String() string {
	switch s {
	case Unreplied:
		return "unreplied"
	case Established:
		return "established"
	case Disconnected:
		return "disconnected"
	case TimedOut:
		return "timed_out"
	default:
		return "unknown"
	}
}

// Session is one tracked TCP connection or UDP pseudo-connection.
type Session struct {
	ID           uint64
	Client       ClientEndpoint
	Forward      net.Conn
	LastActivity time.Time
	State        State
	LiveCounts   []int
}

// dead reports whether s must be removed on the next sweep.
func (s *Session) dead() bool {
	return s.State >= Disconnected
}

// Tracker is the session table for one dispatcher: a map keyed by a
// monotonic session ID, plus a secondary index from UDP peer address to
// session ID for FindUDP's O(1) lookup.
type Tracker struct {
	sessions map[uint64]*Session
	byUDPKey map[string]uint64
	nextID   uint64
}

// New returns an empty Tracker.
func New() *Tracker {
	return &Tracker{
		sessions: make(map[uint64]*Session),
		byUDPKey: make(map[string]uint64),
	}
}

// NextID returns a fresh, monotonically increasing session ID without
// inserting anything.
func (t *Tracker) NextID() uint64 {
	t.nextID++
	return t.nextID
}

// Insert adds s to the table, indexing it by UDP peer address when its
// client endpoint is a UDPClient.
func (t *Tracker) Insert(s *Session) {
	t.sessions[s.ID] = s
	if u, ok := s.Client.(UDPClient); ok {
		t.byUDPKey[udpKey(u.Addr)] = s.ID
	}
}

// Get looks up a session by ID.
func (t *Tracker) Get(id uint64) (*Session, bool) {
	s, ok := t.sessions[id]
	return s, ok
}

// FindUDP looks up the live UDP pseudo-connection for a peer address.
func (t *Tracker) FindUDP(addr net.Addr) (*Session, bool) {
	id, ok := t.byUDPKey[udpKey(addr)]
	if !ok {
		return nil, false
	}
	s, ok := t.sessions[id]
	return s, ok
}

// Sweep removes every session at or past Disconnected and returns them,
// in no particular order, so the caller can close their resources.
func (t *Tracker) Sweep() []*Session {
	var dead []*Session
	for id, s := range t.sessions {
		if !s.dead() {
			continue
		}
		dead = append(dead, s)
		delete(t.sessions, id)
		if u, ok := s.Client.(UDPClient); ok {
			key := udpKey(u.Addr)
			if t.byUDPKey[key] == id {
				delete(t.byUDPKey, key)
			}
		}
	}
	return dead
}

// Range calls f for every live session, stopping early if f returns
// false. Order is unspecified.
func (t *Tracker) Range(f func(*Session) bool) {
	for _, s := range t.sessions {
		if !f(s) {
			return
		}
	}
}

// Len reports the number of tracked sessions, live or pending sweep.
func (t *Tracker) Len() int {
	return len(t.sessions)
}

func udpKey(addr net.Addr) string {
	return addr.Network() + ":" + addr.String()
}
