package dispatcher

import "net"

// acceptLoop does nothing but accept and forward each result as an
// event; the dispatcher goroutine does everything else. It exits after
// the first error, which is always the listener being closed at
// shutdown.
func (d *Dispatcher) acceptLoop(ln net.Listener) {
	for {
		conn, err := ln.Accept()
		select {
		case d.events <- event{kind: evAccept, conn: conn, err: err}:
		case <-d.done:
			if conn != nil {
				conn.Close()
			}
			return
		}
		if err != nil {
			return
		}
	}
}

// udpRecvLoop reads one datagram at a time off the shared listening
// socket and forwards it as an event, tagged with its source address so
// the dispatcher can find or create the owning pseudo-connection.
func (d *Dispatcher) udpRecvLoop(pc net.PacketConn) {
	buf := make([]byte, maxBuf)
	for {
		n, addr, err := pc.ReadFrom(buf)
		var data []byte
		if err == nil {
			data = append([]byte(nil), buf[:n]...)
		}
		select {
		case d.events <- event{kind: evUDPRecv, data: data, from: addr, err: err}:
		case <-d.done:
			return
		}
		if err != nil {
			return
		}
	}
}

// readLoop is the reader half of one direction of one session: block on
// Read, forward exactly what came back (data or error) as an event, and
// stop after the first error. It never touches session state itself;
// only the dispatcher goroutine does that.
func (d *Dispatcher) readLoop(sessionID uint64, side side, conn net.Conn) {
	buf := make([]byte, maxBuf)
	for {
		n, err := conn.Read(buf)
		var data []byte
		if err == nil {
			data = append([]byte(nil), buf[:n]...)
		}
		select {
		case d.events <- event{kind: evRead, sessionID: sessionID, side: side, data: data, err: err}:
		case <-d.done:
			return
		}
		if err != nil {
			return
		}
	}
}
