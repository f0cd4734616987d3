package nsqconn

import (
	"errors"
	"strconv"
	"time"
)

// EventHandler receives connection lifecycle events.
type EventHandler func(conn *Conn, event error)

// Sentinel events for the connection lifecycle - check with errors.Is().
var (
	// ErrConnected is emitted after a fully successful handshake.
	ErrConnected = errors.New("connected")

	// ErrDisconnected is emitted when the connection is retired gracefully.
	ErrDisconnected = errors.New("disconnected")

	// ErrConnectionLost is emitted when the socket fails mid-session.
	ErrConnectionLost = errors.New("connection lost")

	// ErrConnectFailed is emitted when a connect attempt fails.
	ErrConnectFailed = errors.New("connect failed")

	// ErrGivingUp is emitted when the connect attempt budget is exhausted
	// and the connection terminates fatally.
	ErrGivingUp = errors.New("connect attempts exhausted")

	// ErrBrokerError is emitted when the broker reports a protocol error
	// frame. It is not fatal by itself.
	ErrBrokerError = errors.New("broker error")
)

// Sentinel errors for operations - check with errors.Is().
var (
	// ErrClosed is returned when an operation is attempted on a terminated
	// connection.
	ErrClosed = errors.New("connection closed")

	// ErrNotConnected is returned when an operation requires an open
	// socket.
	ErrNotConnected = errors.New("not connected")

	// ErrAlreadyConnected is returned by Reconnect when the connection is
	// healthy and no prior connect failure occurred.
	ErrAlreadyConnected = errors.New("already connected")

	// ErrCallTimeout is returned when a blocking command call's own timeout
	// elapses before its correlated reply arrives. The correlation slot is
	// not removed; a reply arriving later is undeliverable and dropped.
	ErrCallTimeout = errors.New("command reply timeout")

	// ErrDrainTimeout is returned when the close sequence's in-flight poll
	// exceeds its grace period. The connection terminates regardless.
	ErrDrainTimeout = errors.New("drain timeout")

	// ErrHandshakeFailed is returned when the magic, IDENTIFY, or SUB step
	// of the handshake fails.
	ErrHandshakeFailed = errors.New("handshake failed")

	// ErrNoConnection is returned by message completion helpers when the
	// message is not bound to a connection.
	ErrNoConnection = errors.New("message has no connection")
)

// BrokerError contains the payload of a broker-reported error frame.
// Extract with errors.As().
type BrokerError struct {
	err  error
	Body []byte
}

func (e *BrokerError) Error() string { return "broker error: " + string(e.Body) }
func (e *BrokerError) Unwrap() error { return e.err }

// NewBrokerError creates a BrokerError from an error frame body.
func NewBrokerError(body []byte) *BrokerError {
	return &BrokerError{err: ErrBrokerError, Body: body}
}

// ConnectFailedError contains details about a failed connect attempt.
// Extract with errors.As().
type ConnectFailedError struct {
	err         error
	Attempt     int
	MaxAttempts int
	Cause       error
}

func (e *ConnectFailedError) Error() string {
	return "connect failed: " + e.Cause.Error()
}
func (e *ConnectFailedError) Unwrap() error { return e.err }

// NewConnectFailedError creates a ConnectFailedError.
func NewConnectFailedError(attempt, maxAttempts int, cause error) *ConnectFailedError {
	return &ConnectFailedError{
		err:         ErrConnectFailed,
		Attempt:     attempt,
		MaxAttempts: maxAttempts,
		Cause:       cause,
	}
}

// DrainResult carries the details of an expired drain grace period.
// Extract with errors.As().
type DrainResult struct {
	err      error
	InFlight int64
	Waited   time.Duration
}

func (e *DrainResult) Error() string {
	return "drain timed out with " + strconv.FormatInt(e.InFlight, 10) + " in flight"
}
func (e *DrainResult) Unwrap() error { return e.err }
