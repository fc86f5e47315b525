package p2p

import (
	"net"
	"testing"
	"time"
)

func startTestServer(t *testing.T, caps []Cap) *Server {
	t.Helper()
	key, err := GenerateNodeKey()
	if err != nil {
		t.Fatal(err)
	}
	srv := &Server{
		Config: Config{
			PrivateKey: key,
			Name:       "test-server",
			Caps:       caps,
			ListenAddr: "127.0.0.1:0",
			MaxPeers:   10,
		},
	}
	srv.peerFeed = make(chan *Peer, 1)
	if err := srv.Start(); err != nil {
		t.Fatalf("could not start server: %v", err)
	}
	t.Cleanup(srv.Stop)
	return srv
}

// dialTestServer connects to srv and completes the greeting exchange from the
// client side, returning the client's message stream and session.
func dialTestServer(t *testing.T, srv *Server, caps []Cap) (MsgReadWriter, Session) {
	t.Helper()
	fd, err := net.Dial("tcp", srv.ListenAddr)
	if err != nil {
		t.Fatalf("could not dial server: %v", err)
	}
	t.Cleanup(func() { fd.Close() })

	rw := newFrameRW(fd)
	session, err := exchangeHello(rw, helloWithCaps(caps...))
	if err != nil {
		t.Fatalf("client handshake failed: %v", err)
	}
	return rw, session
}

func TestServerPeerLifecycle(t *testing.T) {
	srv := startTestServer(t, []Cap{{"eth", 62}})
	rw, session := dialTestServer(t, srv, []Cap{{"eth", 62}, {"les", 1}})

	if !session.Active() {
		t.Fatal("client session not active")
	}
	if session.RemoteHello().ID != srv.Self() {
		t.Error("server sent wrong identity")
	}

	var peer *Peer
	select {
	case peer = <-srv.peerFeed:
	case <-time.After(2 * time.Second):
		t.Fatal("server did not register peer")
	}
	if srv.PeerCount() != 1 {
		t.Errorf("peer count = %d, want 1", srv.PeerCount())
	}

	// The connection is usable now: keepalive gets its canonical reply.
	if err := SendItems(rw, pingMsg); err != nil {
		t.Fatal(err)
	}
	if err := ExpectMsg(rw, pongMsg, nil); err != nil {
		t.Error(err)
	}

	// Graceful disconnect tears the peer down on the server side.
	if err := SendItems(rw, discMsg, DiscQuitting); err != nil {
		t.Fatal(err)
	}
	select {
	case <-peer.closed:
	case <-time.After(2 * time.Second):
		t.Fatal("peer did not shut down after disconnect")
	}
	for i := 0; srv.PeerCount() > 0; i++ {
		if i > 100 {
			t.Fatal("peer not removed from server")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestServerRejectsUselessPeer(t *testing.T) {
	srv := startTestServer(t, []Cap{{"eth", 63}})

	fd, err := net.Dial("tcp", srv.ListenAddr)
	if err != nil {
		t.Fatal(err)
	}
	defer fd.Close()

	rw := newFrameRW(fd)
	_, err = exchangeHello(rw, helloWithCaps(Cap{"eth", 62}))
	if err != DiscUselessPeer {
		t.Errorf("handshake err = %v, want %v", err, DiscUselessPeer)
	}
	if srv.PeerCount() != 0 {
		t.Errorf("peer count = %d, want 0", srv.PeerCount())
	}
}

func TestServerDial(t *testing.T) {
	srv := startTestServer(t, []Cap{{"eth", 62}})

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer listener.Close()

	accepted := make(chan net.Conn, 1)
	go func() {
		fd, err := listener.Accept()
		if err != nil {
			return
		}
		accepted <- fd
	}()

	if err := srv.AddPeer(listener.Addr().String()); err != nil {
		t.Fatalf("AddPeer: %v", err)
	}
	var fd net.Conn
	select {
	case fd = <-accepted:
	case <-time.After(2 * time.Second):
		t.Fatal("server did not dial")
	}
	defer fd.Close()

	rw := newFrameRW(fd)
	session, err := exchangeHello(rw, helloWithCaps(Cap{"eth", 62}))
	if err != nil {
		t.Fatalf("handshake with dialing server failed: %v", err)
	}
	if session.RemoteHello().ID != srv.Self() {
		t.Error("dialing server sent wrong identity")
	}
	select {
	case <-srv.peerFeed:
	case <-time.After(2 * time.Second):
		t.Fatal("server did not register dialed peer")
	}
}
