package tracker

import (
	"net"
	"testing"
	"time"
)

func TestInsertAndRange(t *testing.T) {
	tr := New()
	id := tr.NextID()
	tr.Insert(&Session{ID: id, Client: TCPClient{}, State: Established})

	count := 0
	tr.Range(func(s *Session) bool {
		count++
		return true
	})
	if count != 1 {
		t.Fatalf("count = %d, want 1", count)
	}
	if tr.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", tr.Len())
	}
}

func TestFindUDP(t *testing.T) {
	tr := New()
	addr := &net.UDPAddr{IP: net.ParseIP("10.0.0.5"), Port: 4242}
	id := tr.NextID()
	tr.Insert(&Session{
		ID:     id,
		Client: UDPClient{Addr: addr},
		State:  Established,
	})

	got, ok := tr.FindUDP(addr)
	if !ok {
		t.Fatal("FindUDP: not found")
	}
	if got.ID != id {
		t.Errorf("ID = %d, want %d", got.ID, id)
	}

	other := &net.UDPAddr{IP: net.ParseIP("10.0.0.6"), Port: 4242}
	if _, ok := tr.FindUDP(other); ok {
		t.Error("FindUDP: unexpectedly found unrelated address")
	}
}

func TestFindUDPDistinguishesPortsOnSameHost(t *testing.T) {
	tr := New()
	a1 := &net.UDPAddr{IP: net.ParseIP("10.0.0.5"), Port: 1}
	a2 := &net.UDPAddr{IP: net.ParseIP("10.0.0.5"), Port: 2}

	tr.Insert(&Session{ID: tr.NextID(), Client: UDPClient{Addr: a1}, State: Established})
	tr.Insert(&Session{ID: tr.NextID(), Client: UDPClient{Addr: a2}, State: Established})

	s1, ok := tr.FindUDP(a1)
	if !ok {
		t.Fatal("FindUDP(a1): not found")
	}
	s2, ok := tr.FindUDP(a2)
	if !ok {
		t.Fatal("FindUDP(a2): not found")
	}
	if s1.ID == s2.ID {
		t.Error("distinct UDP peers collapsed onto the same session")
	}
}

func TestSweepRemovesOnlyDeadSessions(t *testing.T) {
	tr := New()
	tr.Insert(&Session{ID: tr.NextID(), State: Established})
	tr.Insert(&Session{ID: tr.NextID(), State: Disconnected})
	tr.Insert(&Session{ID: tr.NextID(), State: TimedOut})

	dead := tr.Sweep()
	if len(dead) != 2 {
		t.Fatalf("len(dead) = %d, want 2", len(dead))
	}
	if tr.Len() != 1 {
		t.Fatalf("Len() after sweep = %d, want 1", tr.Len())
	}

	var remaining int
	tr.Range(func(s *Session) bool {
		remaining++
		if s.State != Established {
			t.Errorf("remaining session has State = %v, want Established", s.State)
		}
		return true
	})
	if remaining != 1 {
		t.Fatalf("remaining = %d, want 1", remaining)
	}
}

func TestSweepClearsUDPIndex(t *testing.T) {
	tr := New()
	addr := &net.UDPAddr{IP: net.ParseIP("10.0.0.5"), Port: 4242}
	id := tr.NextID()
	tr.Insert(&Session{ID: id, Client: UDPClient{Addr: addr}, State: TimedOut})

	tr.Sweep()

	if _, ok := tr.FindUDP(addr); ok {
		t.Error("FindUDP: found session after sweep should have removed it")
	}
}

func TestNextIDMonotonic(t *testing.T) {
	tr := New()
	a := tr.NextID()
	b := tr.NextID()
	if b <= a {
		t.Errorf("NextID not monotonic: a=%d b=%d", a, b)
	}
}

func TestSessionLastActivityIsTimeType(t *testing.T) {
	s := &Session{LastActivity: time.Now()}
	if s.LastActivity.IsZero() {
		t.Error("LastActivity unexpectedly zero")
	}
}
