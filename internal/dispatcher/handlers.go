package dispatcher

import (
	"fmt"
	"net"
	"strconv"
	"syscall"
	"time"

	"github.com/jvdg/netsed-go/internal/natdst"
	"github.com/jvdg/netsed-go/internal/ruleset"
	"github.com/jvdg/netsed-go/internal/tracker"
)

func (d *Dispatcher) handleEvent(ev event) {
	switch ev.kind {
	case evAccept:
		d.handleAccept(ev)
	case evUDPRecv:
		d.handleUDPRecv(ev)
	case evRead:
		d.handleRead(ev)
	}
}

func (d *Dispatcher) handleAccept(ev event) {
	if ev.err != nil {
		d.log.Error("accept failed", "err", ev.err)
		return
	}
	conn := ev.conn
	if err := setOOBInlineOnConn(conn); err != nil {
		d.log.Warn("setting SO_OOBINLINE on accepted socket failed", "client", conn.RemoteAddr(), "err", err)
	}

	fwd, err := d.dialForward(conn)
	if err != nil {
		d.log.Warn("dial forward failed, dropping connection", "client", conn.RemoteAddr(), "err", err)
		conn.Close()
		return
	}

	id := d.tr.NextID()
	s := &tracker.Session{
		ID:           id,
		Client:       tracker.TCPClient{Conn: conn},
		Forward:      fwd,
		LastActivity: time.Now(),
		State:        tracker.Unreplied,
		LiveCounts:   d.rules.LiveCounts(),
	}
	d.tr.Insert(s)
	d.log.Info("accepted connection", "id", id, "client", conn.RemoteAddr(), "forward", fwd.RemoteAddr())

	go d.readLoop(id, clientSide, conn)
	go d.readLoop(id, forwardSide, fwd)
}

func (d *Dispatcher) handleUDPRecv(ev event) {
	if ev.err != nil {
		d.log.Error("udp receive failed", "err", ev.err)
		return
	}

	if s, ok := d.tr.FindUDP(ev.from); ok {
		d.forwardChunk(s, ev.data)
		return
	}

	fwd, err := d.dialForward(d.udpConn)
	if err != nil {
		d.log.Warn("dial forward failed, dropping datagram", "client", ev.from, "err", err)
		return
	}

	id := d.tr.NextID()
	s := &tracker.Session{
		ID:           id,
		Client:       tracker.UDPClient{Listener: d.udpConn, Addr: ev.from},
		Forward:      fwd,
		LastActivity: time.Now(),
		State:        tracker.Unreplied,
		LiveCounts:   d.rules.LiveCounts(),
	}
	d.tr.Insert(s)
	d.log.Info("new udp pseudo-connection", "id", id, "client", ev.from, "forward", fwd.RemoteAddr())

	go d.readLoop(id, forwardSide, fwd)

	d.forwardChunk(s, ev.data)
}

func (d *Dispatcher) handleRead(ev event) {
	s, ok := d.tr.Get(ev.sessionID)
	if !ok {
		// Session was already swept; the reader goroutine is exiting too.
		return
	}

	if ev.err != nil {
		d.log.Debug("peer closed", "id", s.ID, "err", ev.err)
		s.State = tracker.Disconnected
		return
	}

	switch ev.side {
	case clientSide:
		d.forwardChunk(s, ev.data)
	case forwardSide:
		out, applied := d.rules.Apply(ev.data, s.LiveCounts, d.logMatch(s.ID))
		d.logRuleSummary(s.ID, applied, ev.data, out)
		s.LastActivity = time.Now()
		if err := d.writeToClient(s, out); err != nil {
			d.log.Warn("write to client failed", "id", s.ID, "err", err)
			s.State = tracker.Disconnected
			return
		}
		s.State = tracker.Established
	}
}

// forwardChunk is the client->server direction, shared by TCP reads and
// UDP datagrams (both new-flow and follow-up).
func (d *Dispatcher) forwardChunk(s *tracker.Session, data []byte) {
	out, applied := d.rules.Apply(data, s.LiveCounts, d.logMatch(s.ID))
	d.logRuleSummary(s.ID, applied, data, out)
	s.LastActivity = time.Now()
	if _, err := s.Forward.Write(out); err != nil {
		d.log.Warn("write to forward socket failed", "id", s.ID, "err", err)
		s.State = tracker.Disconnected
	}
}

func (d *Dispatcher) writeToClient(s *tracker.Session, data []byte) error {
	switch c := s.Client.(type) {
	case tracker.TCPClient:
		_, err := c.Conn.Write(data)
		return err
	case tracker.UDPClient:
		_, err := c.Listener.WriteTo(data, c.Addr)
		return err
	default:
		return fmt.Errorf("dispatcher: unknown client endpoint type %T", s.Client)
	}
}

func (d *Dispatcher) logMatch(id uint64) func(ruleset.Match) {
	return func(m ruleset.Match) {
		if m.Expired {
			d.log.Debug("rule expired", "id", id, "from", m.Rule.FromOrig, "to", m.Rule.ToOrig)
			return
		}
		d.log.Debug("rule applied", "id", id, "from", m.Rule.FromOrig, "to", m.Rule.ToOrig)
	}
}

// logRuleSummary logs the per-call outcome of a rule application: either
// the packet passed through untouched, or the aggregate count and
// resulting size, distinct from logMatch's per-rule detail.
func (d *Dispatcher) logRuleSummary(id uint64, applied int, in, out []byte) {
	if applied == 0 {
		d.log.Debug("forwarding untouched packet", "id", id, "size", len(in))
		return
	}
	d.log.Debug("done replacements", "id", id, "count", applied, "size", len(out), "orig", len(in))
}

// dialForward connects to the configured or transparently-derived
// remote target. natConn supplies the original-destination lookup: the
// accepted connection for TCP, the shared listening socket for UDP.
func (d *Dispatcher) dialForward(natConn natdst.Conn) (net.Conn, error) {
	host, port, err := d.resolveForward(natConn)
	if err != nil {
		return nil, err
	}

	network := "tcp"
	if !d.cfg.TCP {
		network = "udp"
	}
	remote := net.JoinHostPort(host.String(), strconv.Itoa(int(port)))

	dialer := net.Dialer{
		Control: func(_, _ string, c syscall.RawConn) error {
			return setOOBInline(c)
		},
	}
	return dialer.Dial(network, remote)
}

func (d *Dispatcher) resolveForward(natConn natdst.Conn) (net.IP, uint16, error) {
	host := d.target.FixedHost
	port := d.target.FixedPort
	if host != nil && port != 0 {
		return host, port, nil
	}

	orig, err := natdst.OriginalDestination(natConn)
	if err != nil {
		return nil, 0, fmt.Errorf("retrieving original destination: %w", err)
	}
	origHost, origPortStr, err := net.SplitHostPort(orig.String())
	if err != nil {
		return nil, 0, fmt.Errorf("parsing original destination %v: %w", orig, err)
	}

	if host == nil {
		host = net.ParseIP(origHost)
		if host == nil {
			return nil, 0, fmt.Errorf("original destination host %q is not an IP literal", origHost)
		}
	}
	if port == 0 {
		p, err := strconv.ParseUint(origPortStr, 10, 16)
		if err != nil {
			return nil, 0, fmt.Errorf("original destination port %q: %w", origPortStr, err)
		}
		port = uint16(p)
	}
	return host, port, nil
}
