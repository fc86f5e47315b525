package p2p

import (
	"fmt"
	"net"
	"time"

	log "github.com/inconshreveable/log15"
)

const (
	pingInterval          = 15 * time.Second
	frameReadTimeout      = 30 * time.Second
	disconnectGracePeriod = 2 * time.Second
)

// Peer represents a connected remote node. It owns the connection's Session
// and is the only goroutine mutating it: the read loop threads the record
// through "read message, dispatch, install next record" one message at a
// time, which is all the serialization the session layer asks for.
type Peer struct {
	conn    net.Conn
	rw      MsgReadWriter
	remote  *Hello
	session Session
	log     log.Logger

	closed chan struct{}
	disc   chan DiscReason
}

// NewPeer returns a peer for testing purposes.
func NewPeer(id NodeID, name string, caps []Cap) *Peer {
	pipe, _ := net.Pipe()
	msgpipe, _ := MsgPipe()
	remote := &Hello{Version: baseProtocolVersion, Name: name, Caps: caps, ID: id}
	local := &Hello{Version: baseProtocolVersion, Caps: caps}
	session := NewSession().MarkSent(local).MarkReceived(remote)
	peer := newPeer(pipe, msgpipe, session, log.New())
	close(peer.closed) // ensures Disconnect doesn't block
	return peer
}

func newPeer(fd net.Conn, rw MsgReadWriter, session Session, logger log.Logger) *Peer {
	remote := session.RemoteHello()
	p := &Peer{
		conn:    fd,
		rw:      rw,
		remote:  remote,
		session: session,
		log:     logger.New("peer", remote.ID.TerminalString()),
		closed:  make(chan struct{}),
		disc:    make(chan DiscReason),
	}
	return p
}

// ID returns the node's public key.
func (p *Peer) ID() NodeID {
	return p.remote.ID
}

// Name returns the node name that the remote node advertised.
func (p *Peer) Name() string {
	return p.remote.Name
}

// Caps returns the capabilities (supported subprotocols) of the remote peer.
func (p *Peer) Caps() []Cap {
	return p.remote.Caps
}

// RemoteAddr returns the remote address of the network connection.
func (p *Peer) RemoteAddr() net.Addr {
	return p.conn.RemoteAddr()
}

// LocalAddr returns the local address of the network connection.
func (p *Peer) LocalAddr() net.Addr {
	return p.conn.LocalAddr()
}

// Disconnect terminates the peer connection with the given reason.
// It returns immediately and does not wait until the connection is closed.
func (p *Peer) Disconnect(reason DiscReason) {
	select {
	case p.disc <- reason:
	case <-p.closed:
	}
}

// String implements fmt.Stringer.
func (p *Peer) String() string {
	return fmt.Sprintf("Peer %s %v", p.remote.ID.TerminalString(), p.RemoteAddr())
}

func (p *Peer) run() DiscReason {
	readErr := make(chan error, 1)
	defer close(p.closed)

	go func() { readErr <- p.readLoop() }()

	ping := time.NewTicker(pingInterval)
	defer ping.Stop()

	// Wait for an error or disconnect.
	var reason DiscReason
loop:
	for {
		select {
		case <-ping.C:
			go func() {
				if err := sendMessage(p.rw, Ping{}); err != nil {
					p.log.Debug("Ping write failed", "err", err)
				}
			}()
		case err := <-readErr:
			if r, ok := err.(DiscReason); ok {
				reason = r
			} else {
				p.log.Debug("Read error", "err", err)
				reason = discReasonForError(err)
			}
			break loop
		case reason = <-p.disc:
			break loop
		}
	}
	p.politeDisconnect(reason)
	p.log.Debug("Disconnected", "reason", reason)
	return reason
}

func (p *Peer) politeDisconnect(reason DiscReason) {
	done := make(chan struct{})
	go func() {
		sendMessage(p.rw, Disc{Reason: reason})
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(disconnectGracePeriod):
	}
	p.conn.Close()
}

func (p *Peer) readLoop() error {
	for {
		p.conn.SetReadDeadline(time.Now().Add(frameReadTimeout))
		msg, err := p.rw.ReadMsg()
		if err != nil {
			return err
		}
		if err := p.handle(msg); err != nil {
			return err
		}
	}
}

func (p *Peer) handle(msg Msg) error {
	m, err := decodeMessage(msg)
	if err != nil {
		return err
	}
	outcome, next, err := p.session.Handle(m)
	if err != nil {
		// The exchange completed before the loop started, so this means
		// the session was torn down mid-stream.
		return err
	}
	p.session = next
	if outcome.Reply != nil {
		go sendMessage(p.rw, outcome.Reply)
	}
	if outcome.Hangup != nil {
		p.log.Debug("Disconnect requested", "reason", *outcome.Hangup)
		return DiscRequested
	}
	if raw, ok := m.(Raw); ok {
		// Sub-protocol traffic is dispatched above this layer. Unknown base
		// protocol codes are ignored for forward compatibility.
		p.log.Debug("Passing through message", "code", raw.Msg.Code, "size", raw.Msg.Size)
		return raw.Msg.Discard()
	}
	return nil
}
