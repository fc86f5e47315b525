package p2p

import (
	"errors"
	"fmt"
	"net"
)

const (
	errInvalidMsgCode = iota
	errInvalidMsg
)

type peerError struct {
	code    int
	message string
}

func newPeerError(code int, format string, v ...interface{}) *peerError {
	desc, ok := errorToString[code]
	if !ok {
		panic("invalid error code")
	}
	err := &peerError{code, desc}
	if format != "" {
		err.message += ": " + fmt.Sprintf(format, v...)
	}
	return err
}

var errorToString = map[int]string{
	errInvalidMsgCode: "invalid message code",
	errInvalidMsg:     "invalid message",
}

func (pe *peerError) Error() string {
	return pe.message
}

// ErrHandshakeIncomplete is returned by Session.Handle when a message arrives
// before both greetings have been exchanged and found compatible. The session
// is handed back unchanged; the caller decides whether to keep waiting for
// the missing greeting or to drop the connection.
var ErrHandshakeIncomplete = errors.New("session handshake incomplete")

// DiscReason is the reason code carried by a disconnect message.
type DiscReason uint8

const (
	DiscRequested DiscReason = iota
	DiscNetworkError
	DiscProtocolError
	DiscUselessPeer
	DiscTooManyPeers
	DiscAlreadyConnected
	DiscIncompatibleVersion
	DiscInvalidIdentity
	DiscQuitting
	DiscUnexpectedIdentity
	DiscSelf
	DiscReadTimeout
	DiscSubprotocolError = 0x10
)

var discReasonToString = [...]string{
	DiscRequested:           "disconnect requested",
	DiscNetworkError:        "network error",
	DiscProtocolError:       "breach of protocol",
	DiscUselessPeer:         "useless peer",
	DiscTooManyPeers:        "too many peers",
	DiscAlreadyConnected:    "already connected",
	DiscIncompatibleVersion: "incompatible p2p protocol version",
	DiscInvalidIdentity:     "invalid node identity",
	DiscQuitting:            "client quitting",
	DiscUnexpectedIdentity:  "unexpected identity",
	DiscSelf:                "connected to self",
	DiscReadTimeout:         "read timeout",
	DiscSubprotocolError:    "subprotocol error",
}

func (d DiscReason) String() string {
	if len(discReasonToString) <= int(d) || discReasonToString[d] == "" {
		return fmt.Sprintf("unknown disconnect reason %d", d)
	}
	return discReasonToString[d]
}

func (d DiscReason) Error() string {
	return d.String()
}

// discReasonForError maps an error returned from the read loop onto the
// reason announced to the peer before the connection is dropped.
func discReasonForError(err error) DiscReason {
	if reason, ok := err.(DiscReason); ok {
		return reason
	}
	if errors.Is(err, ErrHandshakeIncomplete) {
		return DiscProtocolError
	}
	var pe *peerError
	if errors.As(err, &pe) {
		switch pe.code {
		case errInvalidMsgCode, errInvalidMsg:
			return DiscProtocolError
		}
	}
	var ne net.Error
	if errors.As(err, &ne) {
		if ne.Timeout() {
			return DiscReadTimeout
		}
		return DiscNetworkError
	}
	return DiscSubprotocolError
}
