package p2p

import "fmt"

// exchangeHello runs the greeting exchange on rw. Our greeting goes out
// concurrently with the read of the peer's, matching what conforming
// implementations do on both sides of a fresh connection.
//
// The returned session reflects however far the exchange got: on success it
// is active; on failure the caller can inspect which side is missing. A
// DiscReason error means the peer should be notified of the reason before the
// connection is dropped.
func exchangeHello(rw MsgReadWriter, our *Hello) (Session, error) {
	werr := make(chan error, 1)
	go func() { werr <- sendMessage(rw, our) }()

	session := NewSession().MarkSent(our)
	theirs, err := readHello(rw)
	if err != nil {
		return session, err
	}
	if err := <-werr; err != nil {
		return session, fmt.Errorf("write error: %v", err)
	}
	session = session.MarkReceived(theirs)
	if !session.Compatible() {
		return session, DiscUselessPeer
	}
	return session, nil
}

// readHello reads and validates the peer's greeting. A disconnect arriving
// instead of the greeting is surfaced as the announced reason.
func readHello(rw MsgReader) (*Hello, error) {
	msg, err := rw.ReadMsg()
	if err != nil {
		return nil, err
	}
	m, err := decodeMessage(msg)
	if err != nil {
		return nil, err
	}
	switch m := m.(type) {
	case *Hello:
		if (m.ID == NodeID{}) {
			return nil, DiscInvalidIdentity
		}
		return m, nil
	case Disc:
		// Disconnect before the greeting is valid according to the spec
		// and is the usual way to tell a peer off politely.
		return nil, m.Reason
	default:
		return nil, newPeerError(errInvalidMsgCode, "expected handshake, got %#x", msg.Code)
	}
}
