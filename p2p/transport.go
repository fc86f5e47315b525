package p2p

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"io"
	"sync"

	"github.com/ethereum/go-ethereum/rlp"
)

// The wire framing is deliberately simple: an 8 byte header holding the magic
// token and the big-endian body length, followed by the RLP-encoded message
// code and the RLP payload. Transport encryption, when present, wraps the
// whole stream below this layer.
var magicToken = []byte{34, 64, 8, 145}

// maxFrameSize bounds the declared body length of an inbound frame. The limit
// exists so a remote cannot make us allocate the buffer for an absurd length
// it never intends to send.
const maxFrameSize = 16 * 1024 * 1024

// frameRW bridges a raw byte stream and the MsgReadWriter interface used by
// everything above it. Writes are serialized; reads are expected to come from
// a single reader goroutine.
type frameRW struct {
	r io.Reader
	w io.Writer

	wmu sync.Mutex
}

func newFrameRW(conn io.ReadWriter) *frameRW {
	return &frameRW{r: bufio.NewReader(conn), w: conn}
}

func (rw *frameRW) WriteMsg(msg Msg) error {
	rw.wmu.Lock()
	defer rw.wmu.Unlock()

	code, err := rlp.EncodeToBytes(msg.Code)
	if err != nil {
		return err
	}
	head := make([]byte, 8)
	copy(head, magicToken)
	binary.BigEndian.PutUint32(head[4:], uint32(len(code))+msg.Size)
	if _, err := rw.w.Write(head); err != nil {
		return err
	}
	if _, err := rw.w.Write(code); err != nil {
		return err
	}
	_, err = io.CopyN(rw.w, msg.Payload, int64(msg.Size))
	return err
}

func (rw *frameRW) ReadMsg() (Msg, error) {
	head := make([]byte, 8)
	if _, err := io.ReadFull(rw.r, head); err != nil {
		return Msg{}, err
	}
	if !bytes.HasPrefix(head, magicToken) {
		return Msg{}, newPeerError(errInvalidMsg, "magic token mismatch: got %x, want %x", head[:4], magicToken)
	}
	size := binary.BigEndian.Uint32(head[4:])
	if size > maxFrameSize {
		return Msg{}, newPeerError(errInvalidMsg, "frame size %d exceeds limit %d", size, maxFrameSize)
	}
	frame := make([]byte, size)
	if _, err := io.ReadFull(rw.r, frame); err != nil {
		return Msg{}, err
	}
	code, payload, err := rlp.SplitUint64(frame)
	if err != nil {
		return Msg{}, newPeerError(errInvalidMsgCode, "%v", err)
	}
	return Msg{Code: code, Size: uint32(len(payload)), Payload: bytes.NewReader(payload)}, nil
}
