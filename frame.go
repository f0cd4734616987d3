package nsqconn

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
)

var (
	ErrFrameTooShort = errors.New("nsqconn: frame payload shorter than frame type")
	ErrFrameTooLarge = errors.New("nsqconn: frame exceeds maximum size")
)

// MaxFrameSize bounds the size of a single inbound frame. A length prefix
// above this limit is treated as a framing error rather than an allocation
// request.
const MaxFrameSize = 16 * 1024 * 1024

// Frame is one length-prefixed unit of data read from the broker.
type Frame struct {
	Type FrameType
	Body []byte
}

// IsHeartbeat reports whether the frame is the broker heartbeat literal.
func (f Frame) IsHeartbeat() bool {
	return f.Type == FrameTypeResponse && bytes.Equal(f.Body, ResponseHeartbeat)
}

// IsResponse reports whether the frame body equals the given response
// literal.
func (f Frame) IsResponse(literal []byte) bool {
	return f.Type == FrameTypeResponse && bytes.Equal(f.Body, literal)
}

// UnpackFrame decodes a frame payload (the bytes following the 4-byte size
// prefix): a 4-byte big-endian frame type followed by the frame body.
func UnpackFrame(data []byte) (Frame, error) {
	if len(data) < 4 {
		return Frame{}, ErrFrameTooShort
	}
	return Frame{
		Type: FrameType(int32(binary.BigEndian.Uint32(data[:4]))),
		Body: data[4:],
	}, nil
}

// ReadFrame reads one complete frame from the reader: 4-byte big-endian size
// prefix, then exactly that many payload bytes. It is used for the
// synchronous handshake reads performed before the reader loop exists.
func ReadFrame(r io.Reader) (Frame, error) {
	var size [4]byte
	if _, err := io.ReadFull(r, size[:]); err != nil {
		return Frame{}, err
	}

	n := binary.BigEndian.Uint32(size[:])
	if n > MaxFrameSize {
		return Frame{}, ErrFrameTooLarge
	}

	payload := make([]byte, n)
	if _, err := io.ReadFull(r, payload); err != nil {
		return Frame{}, err
	}

	return UnpackFrame(payload)
}

// Encode writes the frame in wire format: size prefix, frame type, body.
// Brokers produce frames; the client-side encoder exists for test doubles
// and protocol tooling.
func (f Frame) Encode(w io.Writer) (int, error) {
	var header [8]byte
	binary.BigEndian.PutUint32(header[:4], uint32(len(f.Body)+4))
	binary.BigEndian.PutUint32(header[4:], uint32(int32(f.Type)))

	total, err := w.Write(header[:])
	if err != nil {
		return total, err
	}

	n, err := w.Write(f.Body)
	total += n
	return total, err
}
