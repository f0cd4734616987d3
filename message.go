package nsqconn

import (
	"encoding/binary"
	"errors"
	"io"
	"time"
)

// MessageIDLength is the fixed width of a broker-assigned message ID.
const MessageIDLength = 16

// MessageID is the broker-assigned identity of an application message.
type MessageID [MessageIDLength]byte

// String returns the message ID as a string.
func (id MessageID) String() string { return string(id[:]) }

var ErrMessageTooShort = errors.New("nsqconn: message payload shorter than header")

// Message is one application message delivered by the broker. The decoded
// header fields are followed by the opaque body handed to user code.
//
// A message received through a Conn carries a reference back to it, so the
// completion helpers (Finish, Requeue, Fail, Touch) can route their wire
// commands and accounting through the owning connection.
type Message struct {
	ID        MessageID
	Body      []byte
	Timestamp int64 // nanoseconds since epoch, broker clock
	Attempts  uint16

	// BrokerAddr is the host:port of the broker that delivered the message.
	BrokerAddr string

	conn    *Conn
	timeout time.Duration
}

// DecodeMessage decodes a message frame body: 8-byte big-endian nanosecond
// timestamp, 2-byte attempt count, 16-byte message ID, then the body.
func DecodeMessage(data []byte) (*Message, error) {
	if len(data) < 10+MessageIDLength {
		return nil, ErrMessageTooShort
	}

	msg := &Message{
		Timestamp: int64(binary.BigEndian.Uint64(data[:8])),
		Attempts:  binary.BigEndian.Uint16(data[8:10]),
	}
	copy(msg.ID[:], data[10:10+MessageIDLength])
	msg.Body = data[10+MessageIDLength:]

	return msg, nil
}

// Encode writes the message in wire format, the exact inverse of
// DecodeMessage. Used by test doubles and protocol tooling.
func (m *Message) Encode(w io.Writer) (int, error) {
	var header [10 + MessageIDLength]byte
	binary.BigEndian.PutUint64(header[:8], uint64(m.Timestamp))
	binary.BigEndian.PutUint16(header[8:10], m.Attempts)
	copy(header[10:], m.ID[:])

	total, err := w.Write(header[:])
	if err != nil {
		return total, err
	}

	n, err := w.Write(m.Body)
	total += n
	return total, err
}

// Timeout returns the effective per-message processing deadline negotiated
// for the delivering connection.
func (m *Message) Timeout() time.Duration { return m.timeout }

// Finish reports successful processing: sends FIN and settles the in-flight
// accounting on the owning connection.
func (m *Message) Finish() error {
	return m.done(OutcomeFinished, 0)
}

// Fail reports permanent failure: the message is finished on the wire so the
// broker stops redelivering it, and the failure counter is incremented.
func (m *Message) Fail() error {
	return m.done(OutcomeFailed, 0)
}

// Requeue asks the broker to redeliver the message after delay.
func (m *Message) Requeue(delay time.Duration) error {
	return m.done(OutcomeRequeued, delay)
}

// RequeueBackoff requeues the message and flags the failure as a backoff
// condition for the consumer-side accounting.
func (m *Message) RequeueBackoff(delay time.Duration) error {
	return m.done(OutcomeRequeuedBackoff, delay)
}

// Touch resets the broker-side processing deadline for the message.
func (m *Message) Touch() error {
	if m.conn == nil {
		return ErrNoConnection
	}
	_, err := m.conn.Send(Touch(m.ID))
	return err
}

func (m *Message) done(outcome Outcome, delay time.Duration) error {
	if m.conn == nil {
		return ErrNoConnection
	}
	return m.conn.Done(m, outcome, delay)
}
