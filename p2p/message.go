package p2p

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"sync/atomic"

	"github.com/ethereum/go-ethereum/rlp"
)

const (
	baseProtocolVersion    = 4
	baseProtocolLength     = uint64(16)
	baseProtocolMaxMsgSize = 2 * 1024
)

// Base protocol message codes. Codes at and above baseProtocolLength belong
// to negotiated sub-protocols and are not interpreted by this layer.
const (
	handshakeMsg = 0x00
	discMsg      = 0x01
	pingMsg      = 0x02
	pongMsg      = 0x03
)

// Msg defines the structure of a raw p2p message as it comes off the wire.
//
// Note that a Msg can only be sent once since the Payload reader is consumed
// during sending. It is not possible to create a Msg and send it any number
// of times.
type Msg struct {
	Code    uint64
	Size    uint32 // size of the payload
	Payload io.Reader
}

// Decode parses the RLP content of a message into the given value, which
// must be a pointer.
func (msg Msg) Decode(val interface{}) error {
	s := rlp.NewStream(msg.Payload, uint64(msg.Size))
	if err := s.Decode(val); err != nil {
		return newPeerError(errInvalidMsg, "(code %#x) (size %d) %v", msg.Code, msg.Size, err)
	}
	return nil
}

func (msg Msg) String() string {
	return fmt.Sprintf("msg #%v (%v bytes)", msg.Code, msg.Size)
}

// Discard reads any remaining payload data into a black hole.
func (msg Msg) Discard() error {
	_, err := io.Copy(io.Discard, msg.Payload)
	return err
}

type MsgReader interface {
	ReadMsg() (Msg, error)
}

type MsgWriter interface {
	// WriteMsg sends a message. It will block until the message's
	// Payload has been consumed by the other end.
	//
	// Note that messages can be sent only once because their
	// payload reader is drained.
	WriteMsg(Msg) error
}

// MsgReadWriter provides reading and writing of encoded messages.
// Implementations should make sure that ReadMsg and WriteMsg can be
// called simultaneously from multiple goroutines.
type MsgReadWriter interface {
	MsgReader
	MsgWriter
}

// Send writes an RLP-encoded message with the given code.
// data should encode as an RLP list.
func Send(w MsgWriter, msgcode uint64, data interface{}) error {
	enc, err := rlp.EncodeToBytes(data)
	if err != nil {
		return err
	}
	return w.WriteMsg(Msg{Code: msgcode, Size: uint32(len(enc)), Payload: bytes.NewReader(enc)})
}

// SendItems writes an RLP message with the given code and data elements.
// For a call such as:
//
//	SendItems(w, code, e1, e2, e3)
//
// the message payload will be an RLP list containing the items:
//
//	[e1, e2, e3]
func SendItems(w MsgWriter, msgcode uint64, elems ...interface{}) error {
	return Send(w, msgcode, elems)
}

// Message is an inbound wire message decoded into its typed form. The session
// layer consumes these; byte-level decoding happens in decodeMessage before
// dispatch.
type Message interface {
	// Kind returns the base protocol code the message was decoded from.
	Kind() uint64
}

// Ping is the keepalive request of the base protocol.
type Ping struct{}

// Pong is the canonical response to a Ping.
type Pong struct{}

// Disc announces a graceful disconnect with a reason code.
type Disc struct {
	Reason DiscReason
}

// Raw is any message outside the session-control set, usually sub-protocol
// traffic. The session layer passes these through without acting on them.
type Raw struct {
	Msg Msg
}

func (h *Hello) Kind() uint64 { return handshakeMsg }
func (Ping) Kind() uint64     { return pingMsg }
func (Pong) Kind() uint64     { return pongMsg }
func (Disc) Kind() uint64     { return discMsg }
func (r Raw) Kind() uint64    { return r.Msg.Code }

// decodeMessage turns a raw message into the typed value the session layer
// dispatches on. Control message payloads are fully consumed; Raw messages
// keep their payload reader intact for downstream consumers.
func decodeMessage(msg Msg) (Message, error) {
	switch msg.Code {
	case handshakeMsg:
		if msg.Size > baseProtocolMaxMsgSize {
			return nil, newPeerError(errInvalidMsg, "message too big (%d > %d)", msg.Size, baseProtocolMaxMsgSize)
		}
		var h Hello
		if err := msg.Decode(&h); err != nil {
			return nil, err
		}
		return &h, nil
	case discMsg:
		// The reason is sent as an RLP list by conforming clients. Decoding
		// into a uint element sidesteps the byte-array encoding rlp would
		// apply to a uint8-kinded array. Decode failures are not fatal, the
		// connection is going away anyway.
		var reason [1]uint
		if err := msg.Decode(&reason); err != nil {
			return Disc{Reason: DiscRequested}, nil
		}
		return Disc{Reason: DiscReason(reason[0])}, nil
	case pingMsg:
		msg.Discard()
		return Ping{}, nil
	case pongMsg:
		msg.Discard()
		return Pong{}, nil
	default:
		return Raw{Msg: msg}, nil
	}
}

// sendMessage writes the typed message in its wire encoding.
func sendMessage(w MsgWriter, m Message) error {
	switch m := m.(type) {
	case *Hello:
		return Send(w, handshakeMsg, m)
	case Ping:
		return SendItems(w, pingMsg)
	case Pong:
		return SendItems(w, pongMsg)
	case Disc:
		return SendItems(w, discMsg, m.Reason)
	case Raw:
		return w.WriteMsg(m.Msg)
	default:
		return fmt.Errorf("p2p: cannot send message of type %T", m)
	}
}

// ExpectMsg reads a message from r and verifies that its code and encoded
// RLP content match the provided values.
// If content is nil, the payload is discarded and not verified.
func ExpectMsg(r MsgReader, code uint64, content interface{}) error {
	msg, err := r.ReadMsg()
	if err != nil {
		return err
	}
	if msg.Code != code {
		return fmt.Errorf("message code mismatch: got %d, expected %d", msg.Code, code)
	}
	if content == nil {
		return msg.Discard()
	}
	contentEnc, err := rlp.EncodeToBytes(content)
	if err != nil {
		panic("content encode error: " + err.Error())
	}
	if int(msg.Size) != len(contentEnc) {
		return fmt.Errorf("message size mismatch: got %d, want %d", msg.Size, len(contentEnc))
	}
	actualContent, err := io.ReadAll(msg.Payload)
	if err != nil {
		return err
	}
	if !bytes.Equal(actualContent, contentEnc) {
		return fmt.Errorf("message payload mismatch:\ngot:  %x\nwant: %x", actualContent, contentEnc)
	}
	return nil
}

// MsgPipe creates a message pipe. Reads on one end are matched with writes on
// the other. The pipe is full-duplex, both ends implement MsgReadWriter.
func MsgPipe() (*MsgPipeRW, *MsgPipeRW) {
	var (
		c1, c2  = make(chan Msg), make(chan Msg)
		closing = make(chan struct{})
		closed  = new(int32)
		rw1     = &MsgPipeRW{c1, c2, closing, closed}
		rw2     = &MsgPipeRW{c2, c1, closing, closed}
	)
	return rw1, rw2
}

// ErrPipeClosed is returned from pipe operations after the
// pipe has been closed.
var ErrPipeClosed = errors.New("p2p: read or write on closed message pipe")

// MsgPipeRW is an endpoint of a MsgReadWriter pipe.
type MsgPipeRW struct {
	w       chan<- Msg
	r       <-chan Msg
	closing chan struct{}
	closed  *int32
}

// WriteMsg sends a message on the pipe.
// It blocks until the receiver has consumed the message payload.
func (p *MsgPipeRW) WriteMsg(msg Msg) error {
	if atomic.LoadInt32(p.closed) == 0 {
		consumed := make(chan struct{}, 1)
		msg.Payload = &eofSignal{msg.Payload, msg.Size, consumed}
		select {
		case p.w <- msg:
			if msg.Size > 0 {
				// wait for payload read or discard
				select {
				case <-consumed:
				case <-p.closing:
				}
			}
			return nil
		case <-p.closing:
		}
	}
	return ErrPipeClosed
}

// ReadMsg returns a message sent on the other end of the pipe.
func (p *MsgPipeRW) ReadMsg() (Msg, error) {
	if atomic.LoadInt32(p.closed) == 0 {
		select {
		case msg := <-p.r:
			return msg, nil
		case <-p.closing:
		}
	}
	return Msg{}, ErrPipeClosed
}

// Close unblocks any pending ReadMsg and WriteMsg calls on both ends of the
// pipe. They will return ErrPipeClosed. Close also interrupts any reads from
// a message payload.
func (p *MsgPipeRW) Close() error {
	if atomic.AddInt32(p.closed, 1) != 1 {
		// someone else is already closing
		atomic.StoreInt32(p.closed, 1) // avoid overflow
		return nil
	}
	close(p.closing)
	return nil
}

// eofSignal wraps a reader with eof signaling. The eof channel is closed when
// the wrapped reader returns an error or when count bytes have been read.
type eofSignal struct {
	wrapped io.Reader
	count   uint32 // number of bytes left
	eof     chan<- struct{}
}

// note: when using eofSignal to detect whether a message payload has been
// read, Read might not be called for zero sized messages.
func (r *eofSignal) Read(buf []byte) (int, error) {
	if r.count == 0 {
		if r.eof != nil {
			r.eof <- struct{}{}
			r.eof = nil
		}
		return 0, io.EOF
	}

	max := len(buf)
	if int(r.count) < len(buf) {
		max = int(r.count)
	}
	n, err := r.wrapped.Read(buf[:max])
	r.count -= uint32(n)
	if (err != nil || r.count == 0) && r.eof != nil {
		r.eof <- struct{}{} // tell Peer that msg has been consumed
		r.eof = nil
	}
	return n, err
}
