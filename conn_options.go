package nsqconn

import (
	"crypto/tls"
	"time"
)

// Version is the library version reported in the default user agent.
const Version = "0.4.0"

// connOptions holds configuration for a Conn.
type connOptions struct {
	// Identity sent during the handshake.
	clientID  string
	userAgent string

	// Timeouts.
	dialTimeout  time.Duration
	readTimeout  time.Duration
	writeTimeout time.Duration

	// Negotiation hints.
	heartbeatInterval   time.Duration
	outputBufferSize    int
	outputBufferTimeout time.Duration
	msgTimeout          time.Duration
	maxRdyCount         int64
	sampleRate          int32

	// Reconnect policy.
	maxConnectAttempts int
	discovery          bool

	// Collaborators.
	dialer   Dialer
	logger   Logger
	onEvent  EventHandler
	executor Executor
	connInfo ConnInfo
}

// defaultOptions returns options with sensible defaults.
func defaultOptions() *connOptions {
	return &connOptions{
		userAgent:           "nsqconn/" + Version,
		dialTimeout:         2 * time.Second,
		readTimeout:         60 * time.Second,
		writeTimeout:        5 * time.Second,
		heartbeatInterval:   30 * time.Second,
		outputBufferSize:    16384,
		outputBufferTimeout: 250 * time.Millisecond,
		msgTimeout:          60 * time.Second,
		maxRdyCount:         2500,
		maxConnectAttempts:  10,
		logger:              NewNoOpLogger(),
		connInfo:            NewMemoryConnInfo(),
	}
}

// Option configures a Conn.
type Option func(*connOptions)

// WithClientID sets the client identifier sent during the handshake.
// Defaults to the local hostname.
func WithClientID(id string) Option {
	return func(o *connOptions) {
		o.clientID = id
	}
}

// WithUserAgent sets the user agent string sent during the handshake.
func WithUserAgent(ua string) Option {
	return func(o *connOptions) {
		o.userAgent = ua
	}
}

// WithDialTimeout sets the timeout for establishing the socket.
func WithDialTimeout(d time.Duration) Option {
	return func(o *connOptions) {
		o.dialTimeout = d
	}
}

// WithReadTimeout sets the deadline applied to socket reads. It bounds the
// reader loop's wait for a frame length; an idle broker only sending
// heartbeats makes this expire and retry, so it should comfortably exceed
// the heartbeat interval.
func WithReadTimeout(d time.Duration) Option {
	return func(o *connOptions) {
		o.readTimeout = d
	}
}

// WithWriteTimeout sets the deadline applied to socket writes.
func WithWriteTimeout(d time.Duration) Option {
	return func(o *connOptions) {
		o.writeTimeout = d
	}
}

// WithHeartbeatInterval sets the heartbeat interval negotiated with the
// broker.
func WithHeartbeatInterval(d time.Duration) Option {
	return func(o *connOptions) {
		o.heartbeatInterval = d
	}
}

// WithOutputBuffering sets the broker-side output buffer hints negotiated
// during the handshake.
func WithOutputBuffering(size int, timeout time.Duration) Option {
	return func(o *connOptions) {
		o.outputBufferSize = size
		o.outputBufferTimeout = timeout
	}
}

// WithMsgTimeout sets the default per-message processing deadline requested
// during the handshake. The broker may override it in the identify reply.
func WithMsgTimeout(d time.Duration) Option {
	return func(o *connOptions) {
		o.msgTimeout = d
	}
}

// WithMaxRdyCount sets the ready-count ceiling assumed when the broker does
// not negotiate one in the identify reply. A negotiated value always wins.
func WithMaxRdyCount(n int64) Option {
	return func(o *connOptions) {
		if n > 0 {
			o.maxRdyCount = n
		}
	}
}

// WithSampleRate asks the broker to deliver only the given percentage of
// messages (0 disables sampling).
func WithSampleRate(rate int32) Option {
	return func(o *connOptions) {
		o.sampleRate = rate
	}
}

// WithMaxConnectAttempts sets the budget of consecutive failed connect
// attempts before the connection terminates fatally. Ignored when discovery
// is configured.
func WithMaxConnectAttempts(n int) Option {
	return func(o *connOptions) {
		o.maxConnectAttempts = n
	}
}

// WithDiscovery declares that an external discovery loop supervises this
// connection and will issue Reconnect requests. Connect failures are then
// tolerated unconditionally instead of being counted against the attempt
// budget.
func WithDiscovery() Option {
	return func(o *connOptions) {
		o.discovery = true
	}
}

// WithDialer sets the transport used to reach the broker.
// Defaults to a TCPDialer bounded by the dial timeout.
func WithDialer(d Dialer) Option {
	return func(o *connOptions) {
		o.dialer = d
	}
}

// WithTLS dials the broker over TLS with the given configuration.
func WithTLS(config *tls.Config) Option {
	return func(o *connOptions) {
		o.dialer = &TLSDialer{Config: config}
	}
}

// WithLogger sets the structured logger.
func WithLogger(l Logger) Option {
	return func(o *connOptions) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithEventHandler sets the handler receiving lifecycle events and broker
// error frames.
func WithEventHandler(h EventHandler) Option {
	return func(o *connOptions) {
		o.onEvent = h
	}
}

// WithExecutor sets the message-handling executor receiving decoded
// application messages. Required for subscriber connections.
func WithExecutor(e Executor) Option {
	return func(o *connOptions) {
		o.executor = e
	}
}

// WithHandler is shorthand for WithExecutor(ExecutorFunc(fn)).
func WithHandler(fn func(*Message) error) Option {
	return WithExecutor(ExecutorFunc(fn))
}

// WithConnInfo sets the shared stats store the connection mirrors its
// counters into. Defaults to a private in-memory store.
func WithConnInfo(ci ConnInfo) Option {
	return func(o *connOptions) {
		if ci != nil {
			o.connInfo = ci
		}
	}
}

func applyOptions(opts ...Option) *connOptions {
	options := defaultOptions()
	for _, opt := range opts {
		opt(options)
	}
	if options.dialer == nil {
		options.dialer = &TCPDialer{Timeout: options.dialTimeout}
	}
	return options
}
