// Package dispatcher implements the single-owner event loop that
// accepts connections or datagrams, applies substitution rules to every
// payload chunk, and evicts idle or dead sessions.
package dispatcher

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"syscall"
	"time"

	"github.com/jvdg/netsed-go/internal/config"
	"github.com/jvdg/netsed-go/internal/endpoint"
	"github.com/jvdg/netsed-go/internal/ruleset"
	"github.com/jvdg/netsed-go/internal/tracker"
)

// maxBuf bounds every read, matching the original tool's fixed scratch
// buffer size.
const maxBuf = 100000

// defaultUDPTimeout is the idle deadline for a UDP pseudo-connection,
// overridable with WithUDPTimeout.
const defaultUDPTimeout = 30 * time.Second

type side int

const (
	clientSide side = iota
	forwardSide
)

type eventKind int

const (
	evAccept eventKind = iota
	evUDPRecv
	evRead
)

// event is the single wire format every reader goroutine funnels onto
// the dispatcher's event channel. Only the dispatcher goroutine ever
// interprets or mutates the state an event refers to.
type event struct {
	kind      eventKind
	sessionID uint64
	side      side
	data      []byte
	err       error
	conn      net.Conn // evAccept
	from      net.Addr // evUDPRecv
}

// Dispatcher is the single-owner event loop for one listening endpoint.
// It is not safe for concurrent use; Run must be called exactly once.
type Dispatcher struct {
	cfg    config.Config
	rules  *ruleset.RuleSet
	log    *slog.Logger
	target endpoint.Target

	tr     *tracker.Tracker
	events chan event
	done   chan struct{}

	udpTimeout time.Duration

	tcpListener net.Listener
	udpConn     net.PacketConn
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithUDPTimeout overrides the idle deadline for UDP pseudo-connections.
// Tests use this to avoid waiting out the real default.
func WithUDPTimeout(d time.Duration) Option {
	return func(disp *Dispatcher) {
		disp.udpTimeout = d
	}
}

// New resolves the remote endpoint, binds the listening socket with the
// appropriate socket options, and returns a Dispatcher ready to Run.
func New(cfg config.Config, rules *ruleset.RuleSet, log *slog.Logger, opts ...Option) (*Dispatcher, error) {
	target, err := endpoint.Resolve(cfg.RemoteHost, cfg.RemotePort, cfg.TCP)
	if err != nil {
		return nil, fmt.Errorf("resolving remote endpoint: %w", err)
	}

	d := &Dispatcher{
		cfg:        cfg,
		rules:      rules,
		log:        log,
		target:     target,
		tr:         tracker.New(),
		events:     make(chan event, 64),
		done:       make(chan struct{}),
		udpTimeout: defaultUDPTimeout,
	}
	for _, opt := range opts {
		opt(d)
	}

	lc := net.ListenConfig{Control: controlFor(target.Family)}
	network := d.listenNetwork()
	addr := fmt.Sprintf(":%d", cfg.ListenPort)

	if cfg.TCP {
		ln, err := lc.Listen(context.Background(), network, addr)
		if err != nil {
			return nil, fmt.Errorf("listen %s %s: %w", network, addr, err)
		}
		d.tcpListener = ln
	} else {
		pc, err := lc.ListenPacket(context.Background(), network, addr)
		if err != nil {
			return nil, fmt.Errorf("listen %s %s: %w", network, addr, err)
		}
		d.udpConn = pc
	}

	return d, nil
}

// Addr returns the bound listening address, useful for logging the
// startup banner and for tests that bind an ephemeral port.
func (d *Dispatcher) Addr() net.Addr {
	if d.tcpListener != nil {
		return d.tcpListener.Addr()
	}
	return d.udpConn.LocalAddr()
}

func (d *Dispatcher) listenNetwork() string {
	base := "tcp"
	if !d.cfg.TCP {
		base = "udp"
	}
	switch d.target.Family {
	case syscall.AF_INET:
		return base + "4"
	case syscall.AF_INET6:
		return base + "6"
	default:
		return base
	}
}

// Run drives the event loop until ctx is cancelled. It always returns
// nil on clean cancellation; bind failures are reported by New instead.
func (d *Dispatcher) Run(ctx context.Context) error {
	defer close(d.done)

	if d.cfg.TCP {
		go d.acceptLoop(d.tcpListener)
	} else {
		go d.udpRecvLoop(d.udpConn)
	}

	timer := time.NewTimer(d.udpTimeout + time.Second)
	defer timer.Stop()

	for {
		d.armTimer(timer)

		select {
		case <-ctx.Done():
			d.closeListener()
			d.disconnectAll()
			d.sweepDead()
			return nil
		case ev := <-d.events:
			d.handleEvent(ev)
		case <-timer.C:
		}

		d.sweepUDPTimeouts()
		d.sweepDead()
	}
}

// armTimer resets timer to fire at the earliest UDP idle deadline across
// every live UDP session, mirroring the original's per-iteration
// select() timeout recomputation.
func (d *Dispatcher) armTimer(timer *time.Timer) {
	if !timer.Stop() {
		select {
		case <-timer.C:
		default:
		}
	}
	timer.Reset(d.nextUDPDeadline())
}

func (d *Dispatcher) nextUDPDeadline() time.Duration {
	remaining := d.udpTimeout + time.Second
	now := time.Now()
	d.tr.Range(func(s *tracker.Session) bool {
		if _, ok := s.Client.(tracker.UDPClient); !ok {
			return true
		}
		r := d.udpTimeout - now.Sub(s.LastActivity)
		if r < 0 {
			r = 0
		}
		if r < remaining {
			remaining = r
		}
		return true
	})
	return remaining
}

func (d *Dispatcher) closeListener() {
	if d.tcpListener != nil {
		d.tcpListener.Close()
	}
	if d.udpConn != nil {
		d.udpConn.Close()
	}
}

func (d *Dispatcher) disconnectAll() {
	d.tr.Range(func(s *tracker.Session) bool {
		s.State = tracker.Disconnected
		return true
	})
}

func (d *Dispatcher) sweepUDPTimeouts() {
	now := time.Now()
	d.tr.Range(func(s *tracker.Session) bool {
		if s.State >= tracker.Disconnected {
			return true
		}
		if _, ok := s.Client.(tracker.UDPClient); !ok {
			return true
		}
		if now.Sub(s.LastActivity) >= d.udpTimeout {
			s.State = tracker.TimedOut
		}
		return true
	})
}

func (d *Dispatcher) sweepDead() {
	for _, s := range d.tr.Sweep() {
		s.Forward.Close()
		if c, ok := s.Client.(tracker.TCPClient); ok {
			c.Conn.Close()
		}
		d.log.Debug("session closed", "id", s.ID, "state", s.State)
	}
}
