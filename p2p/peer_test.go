package p2p

import (
	"net"
	"reflect"
	"testing"
	"time"

	log "github.com/inconshreveable/log15"
)

func testPeer(caps []Cap) (func(), *MsgPipeRW, *Peer, <-chan DiscReason) {
	fd, _ := net.Pipe()
	hs1 := helloWithCaps(caps...)
	hs2 := helloWithCaps(caps...)

	p1, p2 := MsgPipe()
	session := NewSession().MarkSent(hs1).MarkReceived(hs2)
	peer := newPeer(fd, p1, session, log.New())
	errc := make(chan DiscReason, 1)
	go func() { errc <- peer.run() }()

	closer := func() {
		p1.Close()
		fd.Close()
	}
	return closer, p2, peer, errc
}

func drainPipe(rw *MsgPipeRW) {
	for {
		msg, err := rw.ReadMsg()
		if err != nil {
			return
		}
		msg.Discard()
	}
}

func TestPeerPing(t *testing.T) {
	closer, rw, _, _ := testPeer([]Cap{{"eth", 62}})
	defer closer()
	if err := SendItems(rw, pingMsg); err != nil {
		t.Fatal(err)
	}
	if err := ExpectMsg(rw, pongMsg, nil); err != nil {
		t.Error(err)
	}
}

func TestPeerDisconnect(t *testing.T) {
	closer, rw, peer, disc := testPeer([]Cap{{"eth", 62}})
	defer closer()
	go drainPipe(rw)
	if err := SendItems(rw, discMsg, DiscQuitting); err != nil {
		t.Fatal(err)
	}
	select {
	case reason := <-disc:
		if reason != DiscRequested {
			t.Errorf("run returned wrong reason: got %v, want %v", reason, DiscRequested)
		}
	case <-time.After(500 * time.Millisecond):
		t.Error("peer did not return")
	}
	if peer.session.Active() {
		t.Error("session still active after remote disconnect")
	}
}

func TestPeerIgnoresUnknownMessages(t *testing.T) {
	closer, rw, _, errc := testPeer([]Cap{{"eth", 62}})
	defer closer()

	// A sub-protocol message must pass through without a reply and without
	// tearing down the connection: the next ping still gets its pong.
	if err := SendItems(rw, baseProtocolLength+2, "ignored"); err != nil {
		t.Fatal(err)
	}
	if err := SendItems(rw, pingMsg); err != nil {
		t.Fatal(err)
	}
	if err := ExpectMsg(rw, pongMsg, nil); err != nil {
		t.Error(err)
	}
	select {
	case reason := <-errc:
		t.Errorf("peer returned: %v", reason)
	default:
	}
}

func TestPeerLocalDisconnect(t *testing.T) {
	closer, rw, peer, disc := testPeer([]Cap{{"eth", 62}})
	defer closer()
	go drainPipe(rw)

	peer.Disconnect(DiscTooManyPeers)
	select {
	case reason := <-disc:
		if reason != DiscTooManyPeers {
			t.Errorf("run returned wrong reason: got %v, want %v", reason, DiscTooManyPeers)
		}
	case <-time.After(500 * time.Millisecond):
		t.Error("peer did not return")
	}
}

func TestNewPeer(t *testing.T) {
	name := "nodename"
	caps := []Cap{{"foo", 2}, {"bar", 3}}
	id := randomID()
	p := NewPeer(id, name, caps)
	if p.ID() != id {
		t.Errorf("ID mismatch: got %v, expected %v", p.ID(), id)
	}
	if p.Name() != name {
		t.Errorf("Name mismatch: got %v, expected %v", p.Name(), name)
	}
	if !reflect.DeepEqual(p.Caps(), caps) {
		t.Errorf("Caps mismatch: got %v, expected %v", p.Caps(), caps)
	}

	p.Disconnect(DiscAlreadyConnected) // Should not hang
}
