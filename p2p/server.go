package p2p

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"

	"github.com/btcsuite/btcd/btcec/v2"
	log "github.com/inconshreveable/log15"
)

const defaultMaxPeers = 25

var errServerStopped = errors.New("server stopped")

// Config holds the static, session-scoped settings of the local node. The
// greeting builder reads it once per connection attempt; nothing in this
// package mutates it after Start.
type Config struct {
	// This field must be set to a valid secp256k1 private key. The node's
	// public identity is derived from it.
	PrivateKey *btcec.PrivateKey

	// Name sets the node name advertised in the greeting, conventionally
	// of the form "client/version/os/runtime".
	Name string

	// Caps is the ordered list of capabilities this node declares. A
	// connection is only kept if the remote side shares at least one of
	// them exactly.
	Caps []Cap

	// ProtocolVersion overrides the base protocol version announced in the
	// greeting. Zero means the current version.
	ProtocolVersion uint64

	// ListenAddr is the TCP address the server accepts connections on.
	// If empty, the server will not listen and can only dial out.
	ListenAddr string

	// MaxPeers caps the number of simultaneously connected peers. Zero
	// means the default.
	MaxPeers int

	// Logger is the destination for server and per-peer logging. If unset,
	// the root logger is used.
	Logger log.Logger
}

func (cfg *Config) protocolVersion() uint64 {
	if cfg.ProtocolVersion != 0 {
		return cfg.ProtocolVersion
	}
	return baseProtocolVersion
}

func (cfg *Config) listenPort() int {
	if cfg.ListenAddr == "" {
		return 0
	}
	_, port, err := net.SplitHostPort(cfg.ListenAddr)
	if err != nil {
		return 0
	}
	intport, _ := strconv.Atoi(port)
	return intport
}

// Server accepts and dials wire protocol connections. Each successful
// greeting exchange spawns one Peer which owns its connection until it
// terminates.
type Server struct {
	Config

	lock     sync.Mutex
	running  bool
	listener net.Listener
	ourHello *Hello
	peers    map[NodeID]*Peer

	quit     chan struct{}
	loopWG   sync.WaitGroup
	peerWG   sync.WaitGroup
	peerFeed chan *Peer // notifies tests about peer additions, may be nil

	log log.Logger
}

// Self returns the local node's identifier.
func (srv *Server) Self() NodeID {
	return PubkeyID(srv.PrivateKey.PubKey())
}

// Start begins listening for connections. It may only be called once.
func (srv *Server) Start() error {
	srv.lock.Lock()
	defer srv.lock.Unlock()
	if srv.running {
		return errors.New("server already running")
	}
	if srv.PrivateKey == nil {
		return errors.New("Server.PrivateKey must be set to a non-nil key")
	}
	if srv.MaxPeers == 0 {
		srv.MaxPeers = defaultMaxPeers
	}
	srv.log = srv.Logger
	if srv.log == nil {
		srv.log = log.Root()
	}
	srv.quit = make(chan struct{})
	srv.peers = make(map[NodeID]*Peer)

	if srv.ListenAddr != "" {
		listener, err := net.Listen("tcp", srv.ListenAddr)
		if err != nil {
			return err
		}
		srv.listener = listener
		srv.ListenAddr = listener.Addr().String()
	}
	// The greeting is built once the listener is bound so that it carries
	// the actual port when the config asked for an ephemeral one.
	srv.ourHello = NewHello(&srv.Config)
	if srv.listener != nil {
		srv.loopWG.Add(1)
		go srv.listenLoop()
		srv.log.Info("Listening for peers", "addr", srv.ListenAddr, "id", srv.ourHello.ID.TerminalString())
	}
	srv.running = true
	return nil
}

// Stop terminates the listener and all connected peers, then waits for them
// to shut down.
func (srv *Server) Stop() {
	srv.lock.Lock()
	if !srv.running {
		srv.lock.Unlock()
		return
	}
	srv.running = false
	close(srv.quit)
	if srv.listener != nil {
		srv.listener.Close()
	}
	for _, p := range srv.peers {
		go p.Disconnect(DiscQuitting)
	}
	srv.lock.Unlock()

	srv.loopWG.Wait()
	srv.peerWG.Wait()
}

// Dial connects to the given TCP address and runs the greeting exchange on
// the new connection.
func (srv *Server) Dial(addr string) error {
	fd, err := net.Dial("tcp", addr)
	if err != nil {
		return err
	}
	go srv.setupConn(fd)
	return nil
}

// Peers returns the currently connected peers.
func (srv *Server) Peers() []*Peer {
	srv.lock.Lock()
	defer srv.lock.Unlock()
	peers := make([]*Peer, 0, len(srv.peers))
	for _, p := range srv.peers {
		peers = append(peers, p)
	}
	return peers
}

// PeerCount returns the number of connected peers.
func (srv *Server) PeerCount() int {
	srv.lock.Lock()
	defer srv.lock.Unlock()
	return len(srv.peers)
}

func (srv *Server) listenLoop() {
	defer srv.loopWG.Done()
	for {
		fd, err := srv.listener.Accept()
		if err != nil {
			select {
			case <-srv.quit:
			default:
				srv.log.Debug("Accept error", "err", err)
			}
			return
		}
		srv.log.Debug("Accepted connection", "addr", fd.RemoteAddr())
		go srv.setupConn(fd)
	}
}

// setupConn runs the greeting exchange on a fresh connection and launches the
// peer loop if the session comes up active. The rejection rules mirror the
// exchange itself: peers that fail negotiation are told why before the
// connection closes.
func (srv *Server) setupConn(fd net.Conn) {
	rw := newFrameRW(fd)
	session, err := exchangeHello(rw, srv.ourHello)
	if err != nil {
		if reason, ok := err.(DiscReason); ok {
			sendMessage(rw, Disc{Reason: reason})
		}
		srv.log.Debug("Handshake failed", "addr", fd.RemoteAddr(), "err", err)
		fd.Close()
		return
	}
	remote := session.RemoteHello()
	if reason, ok := srv.checkPeer(remote); !ok {
		sendMessage(rw, Disc{Reason: reason})
		srv.log.Debug("Rejected peer", "id", remote.ID.TerminalString(), "reason", reason)
		fd.Close()
		return
	}

	p := newPeer(fd, rw, session, srv.log)
	srv.lock.Lock()
	if !srv.running {
		srv.lock.Unlock()
		sendMessage(rw, Disc{Reason: DiscQuitting})
		fd.Close()
		return
	}
	srv.peers[remote.ID] = p
	srv.peerWG.Add(1)
	feed := srv.peerFeed
	srv.lock.Unlock()

	srv.log.Debug("Adding peer", "id", remote.ID.TerminalString(), "name", remote.Name, "caps", session.SharedCaps())
	if feed != nil {
		feed <- p
	}
	go func() {
		reason := p.run()
		srv.lock.Lock()
		delete(srv.peers, remote.ID)
		srv.lock.Unlock()
		srv.peerWG.Done()
		srv.log.Debug("Removing peer", "id", remote.ID.TerminalString(), "reason", reason)
	}()
}

// checkPeer applies the post-handshake admission rules.
func (srv *Server) checkPeer(remote *Hello) (DiscReason, bool) {
	srv.lock.Lock()
	defer srv.lock.Unlock()
	switch {
	case !srv.running:
		return DiscQuitting, false
	case len(srv.peers) >= srv.MaxPeers:
		return DiscTooManyPeers, false
	case srv.peers[remote.ID] != nil:
		return DiscAlreadyConnected, false
	case remote.ID == srv.ourHello.ID:
		return DiscSelf, false
	default:
		return 0, true
	}
}

// AddPeer dials the given address if the server is running.
func (srv *Server) AddPeer(addr string) error {
	srv.lock.Lock()
	running := srv.running
	srv.lock.Unlock()
	if !running {
		return errServerStopped
	}
	return srv.Dial(addr)
}

func (srv *Server) String() string {
	return fmt.Sprintf("Server %s", srv.ListenAddr)
}
