package nsqconn

import (
	"encoding/binary"
	"errors"
	"io"
	"strconv"
	"time"
)

var (
	ErrInvalidCommand = errors.New("nsqconn: invalid command")
)

var (
	byteSpace   = []byte(" ")
	byteNewline = []byte("\n")
)

// ReplyKind describes what a command issuer expects back from the broker.
type ReplyKind int

const (
	// ReplyExpected means the issuer blocks for the decoded reply payload.
	ReplyExpected ReplyKind = iota
	// ReplyDiscarded means a reply arrives on the wire but nobody waits for
	// it; it still occupies a correlation slot.
	ReplyDiscarded
	// ReplyNone means the broker sends no reply at all; the command never
	// enters the correlation queue.
	ReplyNone
)

// Command is a single wire-protocol command: a name, optional space-separated
// parameters, a newline, and an optional length-prefixed body.
type Command struct {
	Name   []byte
	Params [][]byte
	Body   []byte
}

// String returns the command name and parameters for logging.
func (c *Command) String() string {
	s := string(c.Name)
	for _, p := range c.Params {
		s += " " + string(p)
	}
	return s
}

// Encode writes the command in wire format:
//
//	NAME[ param]...\n
//	[4-byte big-endian body size][body]
func (c *Command) Encode(w io.Writer) (int, error) {
	if len(c.Name) == 0 {
		return 0, ErrInvalidCommand
	}

	total := 0

	n, err := w.Write(c.Name)
	total += n
	if err != nil {
		return total, err
	}

	for _, param := range c.Params {
		n, err = w.Write(byteSpace)
		total += n
		if err != nil {
			return total, err
		}
		n, err = w.Write(param)
		total += n
		if err != nil {
			return total, err
		}
	}

	n, err = w.Write(byteNewline)
	total += n
	if err != nil {
		return total, err
	}

	if c.Body != nil {
		var size [4]byte
		binary.BigEndian.PutUint32(size[:], uint32(len(c.Body)))
		n, err = w.Write(size[:])
		total += n
		if err != nil {
			return total, err
		}
		n, err = w.Write(c.Body)
		total += n
		if err != nil {
			return total, err
		}
	}

	return total, nil
}

// Identify creates an IDENTIFY command carrying the negotiation body.
// Reply kind: ReplyExpected (handled synchronously during the handshake).
func Identify(body []byte) *Command {
	return &Command{Name: []byte("IDENTIFY"), Body: body}
}

// Subscribe creates a SUB command for the given topic and channel.
// The broker acknowledges with the literal "OK".
func Subscribe(topic string, channel string) *Command {
	return &Command{Name: []byte("SUB"), Params: [][]byte{[]byte(topic), []byte(channel)}}
}

// Ready creates a RDY command advertising capacity for count in-flight
// messages. The broker never replies to it.
func Ready(count int) *Command {
	return &Command{Name: []byte("RDY"), Params: [][]byte{[]byte(strconv.Itoa(count))}}
}

// Finish creates a FIN command marking a message as successfully processed.
func Finish(id MessageID) *Command {
	return &Command{Name: []byte("FIN"), Params: [][]byte{id[:]}}
}

// Requeue creates a REQ command asking the broker to redeliver a message
// after the given delay.
func Requeue(id MessageID, delay time.Duration) *Command {
	ms := strconv.FormatInt(int64(delay/time.Millisecond), 10)
	return &Command{Name: []byte("REQ"), Params: [][]byte{id[:], []byte(ms)}}
}

// Touch creates a TOUCH command resetting the broker-side processing
// deadline for an in-flight message.
func Touch(id MessageID) *Command {
	return &Command{Name: []byte("TOUCH"), Params: [][]byte{id[:]}}
}

// Publish creates a PUB command delivering body to the given topic.
func Publish(topic string, body []byte) *Command {
	return &Command{Name: []byte("PUB"), Params: [][]byte{[]byte(topic)}, Body: body}
}

// MultiPublish creates an MPUB command delivering multiple bodies to the
// given topic atomically. The body is a 4-byte message count followed by
// individually length-prefixed messages.
func MultiPublish(topic string, bodies [][]byte) *Command {
	size := 4
	for _, b := range bodies {
		size += 4 + len(b)
	}

	body := make([]byte, 0, size)
	var num [4]byte
	binary.BigEndian.PutUint32(num[:], uint32(len(bodies)))
	body = append(body, num[:]...)
	for _, b := range bodies {
		binary.BigEndian.PutUint32(num[:], uint32(len(b)))
		body = append(body, num[:]...)
		body = append(body, b...)
	}

	return &Command{Name: []byte("MPUB"), Params: [][]byte{[]byte(topic)}, Body: body}
}

// Nop creates a NOP command, the required answer to a broker heartbeat.
func Nop() *Command {
	return &Command{Name: []byte("NOP")}
}

// StartClose creates a CLS command beginning the graceful close sequence.
// The broker acknowledges with the literal "CLOSE_WAIT" and stops sending
// new messages.
func StartClose() *Command {
	return &Command{Name: []byte("CLS")}
}
