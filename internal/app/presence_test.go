package app

import "testing"

func TestAttachReportsOnlineTransitionOnce(t *testing.T) {
	reg := NewPresenceRegistry(testClock())

	if !reg.Attach("alice", "c1", &fakeConn{}) {
		t.Fatal("first connection should report becameOnline")
	}
	if reg.Attach("alice", "c2", &fakeConn{}) {
		t.Fatal("second connection must not report becameOnline")
	}
	if !reg.IsOnline("alice") {
		t.Fatal("alice should be online")
	}

	if _, wentOffline, ok := reg.Detach("c1"); !ok || wentOffline {
		t.Fatalf("detach c1: ok=%v wentOffline=%v, want ok and still online", ok, wentOffline)
	}
	user, wentOffline, ok := reg.Detach("c2")
	if !ok || !wentOffline || user != "alice" {
		t.Fatalf("detach c2: user=%q wentOffline=%v ok=%v", user, wentOffline, ok)
	}
	if reg.IsOnline("alice") {
		t.Fatal("alice should be offline")
	}
}

func TestDetachUnknownConnectionIsNoop(t *testing.T) {
	reg := NewPresenceRegistry(testClock())
	reg.Attach("alice", "c1", &fakeConn{})

	// Sockets can disconnect twice during reconnection storms.
	reg.Detach("c1")
	if _, _, ok := reg.Detach("c1"); ok {
		t.Fatal("double detach must be a no-op")
	}
	if _, _, ok := reg.Detach("never-seen"); ok {
		t.Fatal("unknown detach must be a no-op")
	}
}

func TestSnapshotIsSortedAndRecomputed(t *testing.T) {
	reg := NewPresenceRegistry(testClock())
	reg.Attach("mallory", "c3", &fakeConn{})
	reg.Attach("alice", "c1", &fakeConn{})
	reg.Attach("bob", "c2", &fakeConn{})

	snap := reg.Snapshot()
	if len(snap) != 3 || snap[0] != "alice" || snap[1] != "bob" || snap[2] != "mallory" {
		t.Fatalf("unexpected snapshot: %v", snap)
	}

	reg.Detach("c2")
	snap = reg.Snapshot()
	if len(snap) != 2 || snap[0] != "alice" || snap[1] != "mallory" {
		t.Fatalf("snapshot after detach: %v", snap)
	}
}

func TestConnLookups(t *testing.T) {
	reg := NewPresenceRegistry(testClock())
	conn := &fakeConn{}
	reg.Attach("alice", "c1", conn)

	if got, ok := reg.UserOf("c1"); !ok || got != "alice" {
		t.Fatalf("UserOf: %q %v", got, ok)
	}
	if got, ok := reg.Conn("c1"); !ok || got != conn {
		t.Fatalf("Conn lookup failed: %v %v", got, ok)
	}
	if _, ok := reg.Conn("c2"); ok {
		t.Fatal("unknown conn must not resolve")
	}
	if conns := reg.ConnectionsOf("alice"); len(conns) != 1 {
		t.Fatalf("ConnectionsOf: %d", len(conns))
	}

	meta := reg.ConnectionsSnapshot()
	if len(meta) != 1 || meta[0].ID != "c1" || meta[0].UserID != "alice" {
		t.Fatalf("ConnectionsSnapshot: %+v", meta)
	}
}
