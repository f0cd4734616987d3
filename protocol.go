package nsqconn

import (
	"errors"
	"regexp"
)

// ProtocolMagic is the preamble written to the broker immediately after the
// TCP connection is established, before any command traffic.
var ProtocolMagic = []byte("  V2")

// FrameType identifies the kind of payload carried by a frame.
type FrameType int32

const (
	// FrameTypeResponse is a reply to a previously sent command.
	FrameTypeResponse FrameType = 0
	// FrameTypeError is a broker-reported protocol error.
	FrameTypeError FrameType = 1
	// FrameTypeMessage is an application message delivered to a subscriber.
	FrameTypeMessage FrameType = 2
)

// String returns the string representation of the frame type.
func (t FrameType) String() string {
	switch t {
	case FrameTypeResponse:
		return "response"
	case FrameTypeError:
		return "error"
	case FrameTypeMessage:
		return "message"
	default:
		return "unknown"
	}
}

// Fixed literal payloads defined by the wire protocol.
var (
	// ResponseOK acknowledges SUB, PUB and most other commands.
	ResponseOK = []byte("OK")
	// ResponseHeartbeat is sent periodically by an idle broker and must be
	// answered with a NOP command.
	ResponseHeartbeat = []byte("_heartbeat_")
	// ResponseCloseWait acknowledges a CLS command.
	ResponseCloseWait = []byte("CLOSE_WAIT")
)

var (
	ErrInvalidTopicName   = errors.New("invalid topic name")
	ErrInvalidChannelName = errors.New("invalid channel name")
)

// Topic and channel names share the same grammar; channels may additionally
// carry an #ephemeral suffix.
var validNameRegex = regexp.MustCompile(`^[.a-zA-Z0-9_-]+(#ephemeral)?$`)

// ValidateTopicName validates a topic name: 1-64 characters drawn from
// [.a-zA-Z0-9_-], optionally suffixed with #ephemeral.
func ValidateTopicName(topic string) error {
	if len(topic) == 0 || len(topic) > 64 {
		return ErrInvalidTopicName
	}
	if !validNameRegex.MatchString(topic) {
		return ErrInvalidTopicName
	}
	return nil
}

// ValidateChannelName validates a channel name using the same grammar as
// topic names.
func ValidateChannelName(channel string) error {
	if len(channel) == 0 || len(channel) > 64 {
		return ErrInvalidChannelName
	}
	if !validNameRegex.MatchString(channel) {
		return ErrInvalidChannelName
	}
	return nil
}
