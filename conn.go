package nsqconn

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"sync/atomic"
	"time"
)

// ConnState is the lifecycle state of a Conn.
type ConnState int32

const (
	// StateDisconnected means no socket is open.
	StateDisconnected ConnState = iota
	// StateConnecting means the socket is being established.
	StateConnecting
	// StateHandshaking means the magic preamble and IDENTIFY exchange are in
	// progress.
	StateHandshaking
	// StateSubscribing means the SUB command is awaiting its acknowledgment.
	StateSubscribing
	// StateReady means the connection serves normal command traffic.
	StateReady
	// StateDraining means a graceful close is in progress.
	StateDraining
	// StateTerminated means the connection is permanently retired.
	StateTerminated
)

// String returns the string representation of the state.
func (s ConnState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateHandshaking:
		return "handshaking"
	case StateSubscribing:
		return "subscribing"
	case StateReady:
		return "ready"
	case StateDraining:
		return "draining"
	case StateTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// DefaultCallTimeout bounds blocking command calls when the caller passes a
// non-positive timeout.
const DefaultCallTimeout = 5 * time.Second

var cmdRDY = []byte("RDY")

// Snapshot is a point-in-time diagnostic view of a Conn.
type Snapshot struct {
	State           ConnState
	Addr            string
	Topic           string
	Channel         string
	ConnectAttempts int
	MaxRdy          int64
	MsgTimeout      time.Duration
	PendingReplies  int
	QueuedCommands  int
	Stats           ConnStats
}

type callOp int

const (
	opCmd callOp = iota
	opConnect
	opReconnect
	opDone
	opSnapshot
	opStartDrain
	opTerminate
)

type connCall struct {
	op      callOp
	cmd     *Command
	kind    ReplyKind
	reply   chan []byte
	msg     *Message
	outcome Outcome
	delay   time.Duration
	resp    chan callResult
}

type callResult struct {
	queued     bool
	err        error
	snapshot   Snapshot
	msgTimeout time.Duration
}

// pendingReply is a command sent on the wire whose reply must be matched to
// the head of the correlation queue.
type pendingReply struct {
	kind  ReplyKind
	reply chan []byte // buffered; nil when the reply is discarded
}

// queuedCommand is a command accepted while no socket was open.
type queuedCommand struct {
	cmd   *Command
	kind  ReplyKind
	reply chan []byte
}

// frameEvent is the one-way notification a reader loop sends to the actor.
type frameEvent struct {
	gen   int
	frame Frame
	err   error
}

// Conn is one persistent connection to a single broker. All connection state
// (socket, queues, counters, lifecycle) is owned by a single goroutine and
// reachable only through its mailbox; the frame reader loop is the only
// other concurrent part and communicates exclusively by one-way events.
//
// A Conn with a channel configured subscribes during the handshake and
// receives application messages; without a channel it acts as a publisher.
type Conn struct {
	addr    string
	topic   string
	channel string
	id      string
	options *connOptions
	log     Logger

	calls  chan *connCall
	frames chan frameEvent
	done   chan struct{}

	state atomic.Int32

	// Actor-owned state below; touched only by run().
	sock            net.Conn
	readerGen       int
	connectAttempts int
	maxRdy          int64
	msgTimeout      time.Duration
	cmdRespQueue    []*pendingReply
	cmdQueue        []*queuedCommand
}

// Dial creates a connection to the broker at addr (host:port) and performs
// the initial connect and handshake. A non-empty channel makes the
// connection subscribe to (topic, channel); an empty channel yields a
// publisher connection.
//
// A failed initial attempt that remains retryable (attempt budget not
// exhausted, or discovery configured) returns both the live connection,
// which stays disconnected awaiting Reconnect, and the connect error. A
// fatal failure returns a nil connection.
func Dial(addr, topic, channel string, opts ...Option) (*Conn, error) {
	if channel != "" && topic == "" {
		return nil, ErrInvalidTopicName
	}
	if topic != "" {
		if err := ValidateTopicName(topic); err != nil {
			return nil, err
		}
	}
	if channel != "" {
		if err := ValidateChannelName(channel); err != nil {
			return nil, err
		}
	}

	options := applyOptions(opts...)

	c := &Conn{
		addr:       addr,
		topic:      topic,
		channel:    channel,
		id:         connID(addr, topic, channel),
		options:    options,
		log:        options.logger.WithFields(LogFields{"broker": addr, "topic": topic, "channel": channel}),
		calls:      make(chan *connCall),
		frames:     make(chan frameEvent),
		done:       make(chan struct{}),
		msgTimeout: options.msgTimeout,
	}

	go c.run()

	res, err := c.submit(&connCall{op: opConnect, resp: make(chan callResult, 1)})
	if err != nil {
		return nil, err
	}
	if res.err != nil {
		if c.State() == StateTerminated {
			return nil, res.err
		}
		return c, res.err
	}
	return c, nil
}

func connID(addr, topic, channel string) string {
	id := addr
	if topic != "" {
		id += "/" + topic
	}
	if channel != "" {
		id += "/" + channel
	}
	return id
}

// Addr returns the broker address.
func (c *Conn) Addr() string { return c.addr }

// Topic returns the configured topic, empty for pure publisher connections.
func (c *Conn) Topic() string { return c.topic }

// Channel returns the configured channel, empty for publisher connections.
func (c *Conn) Channel() string { return c.channel }

// ID returns the connection identity used as the stats store key.
func (c *Conn) ID() string { return c.id }

// State returns the current lifecycle state.
func (c *Conn) State() ConnState { return ConnState(c.state.Load()) }

// Call issues a command whose reply payload the caller blocks for, bounded
// by timeout (DefaultCallTimeout when non-positive). While disconnected the
// command is queued and the call keeps waiting; the reply arrives after the
// queue is flushed on reconnect, or the call times out.
//
// A timeout is local to the caller: the correlation slot stays in place and
// a reply arriving later is dropped.
func (c *Conn) Call(cmd *Command, timeout time.Duration) ([]byte, error) {
	call := &connCall{
		op:    opCmd,
		cmd:   cmd,
		kind:  ReplyExpected,
		reply: make(chan []byte, 1),
		resp:  make(chan callResult, 1),
	}
	res, err := c.submit(call)
	if err != nil {
		return nil, err
	}
	if res.err != nil {
		return nil, res.err
	}

	if timeout <= 0 {
		timeout = DefaultCallTimeout
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case body := <-call.reply:
		return body, nil
	case <-timer.C:
		return nil, ErrCallTimeout
	case <-c.done:
		return nil, ErrClosed
	}
}

// Send issues a command the broker never replies to (RDY, FIN, REQ, TOUCH,
// NOP). It returns true when no socket was open and the command was queued
// for the next reconnect instead of being sent.
func (c *Conn) Send(cmd *Command) (bool, error) {
	return c.send(cmd, ReplyNone, nil)
}

// SendIgnoreReply issues a command that does produce a wire reply which
// nobody waits for; the reply still occupies a correlation slot and is
// discarded on arrival. Useful for fire-and-forget publishes.
func (c *Conn) SendIgnoreReply(cmd *Command) (bool, error) {
	return c.send(cmd, ReplyDiscarded, nil)
}

func (c *Conn) send(cmd *Command, kind ReplyKind, reply chan []byte) (bool, error) {
	call := &connCall{op: opCmd, cmd: cmd, kind: kind, reply: reply, resp: make(chan callResult, 1)}
	res, err := c.submit(call)
	if err != nil {
		return false, err
	}
	return res.queued, res.err
}

// Done reports the completion outcome for an in-flight message: the
// matching FIN or REQ command is issued and the in-flight and completion
// counters are settled, exactly once per message.
func (c *Conn) Done(msg *Message, outcome Outcome, delay time.Duration) error {
	call := &connCall{op: opDone, msg: msg, outcome: outcome, delay: delay, resp: make(chan callResult, 1)}
	res, err := c.submit(call)
	if err != nil {
		return err
	}
	return res.err
}

// Reconnect requests a fresh connect attempt. It is honored only when at
// least one prior attempt failed; on a healthy connection it returns
// ErrAlreadyConnected without touching the socket.
func (c *Conn) Reconnect() error {
	res, err := c.submit(&connCall{op: opReconnect, resp: make(chan callResult, 1)})
	if err != nil {
		return err
	}
	return res.err
}

// Snapshot returns a point-in-time diagnostic view of the connection.
func (c *Conn) Snapshot() (Snapshot, error) {
	res, err := c.submit(&connCall{op: opSnapshot, resp: make(chan callResult, 1)})
	if err != nil {
		return Snapshot{}, err
	}
	return res.snapshot, nil
}

// Close gracefully retires the connection: it sends CLS and requires the
// CLOSE_WAIT acknowledgment, polls the stats store's in-flight gauge once
// per second bounded by the effective message timeout, then terminates the
// connection unconditionally. A clean drain returns nil; an expired grace
// period returns a DrainResult wrapping ErrDrainTimeout. Termination happens
// either way.
func (c *Conn) Close() error {
	call := &connCall{op: opStartDrain, reply: make(chan []byte, 1), resp: make(chan callResult, 1)}
	res, err := c.submit(call)
	if err != nil {
		if errors.Is(err, ErrClosed) {
			return nil
		}
		return err
	}
	if res.err != nil {
		c.terminate()
		if errors.Is(res.err, ErrNotConnected) {
			// No socket to send CLS on; nothing is in flight on the wire.
			return nil
		}
		return res.err
	}

	// Step 1: CLS must be acknowledged with the exact CLOSE_WAIT literal.
	// Failure here is surfaced, not retried; termination still proceeds.
	timer := time.NewTimer(DefaultCallTimeout)
	defer timer.Stop()

	select {
	case body := <-call.reply:
		if !bytes.Equal(body, ResponseCloseWait) {
			c.terminate()
			return fmt.Errorf("%w: unexpected close ack %q", ErrHandshakeFailed, body)
		}
	case <-timer.C:
		c.terminate()
		return ErrCallTimeout
	case <-c.done:
		return nil
	}

	// Step 2: wait out the in-flight messages, bounded by the message
	// timeout negotiated for this connection.
	grace := res.msgTimeout
	if grace <= 0 {
		grace = c.options.msgTimeout
	}
	start := time.Now()
	deadline := start.Add(grace)

	var stranded int64
	for {
		stats, _ := c.options.connInfo.Fetch(c.id)
		if stats.MessagesInFlight <= 0 {
			break
		}
		remaining := time.Until(deadline)
		if remaining <= 0 {
			stranded = stats.MessagesInFlight
			c.log.Warn("drain grace period expired", LogFields{"in_flight": stranded})
			break
		}
		if remaining > time.Second {
			remaining = time.Second
		}
		time.Sleep(remaining)
	}

	// Step 3: terminate regardless of the poll outcome.
	c.terminate()
	if stranded > 0 {
		return &DrainResult{err: ErrDrainTimeout, InFlight: stranded, Waited: time.Since(start)}
	}
	return nil
}

// terminate stops the actor. Safe to call multiple times.
func (c *Conn) terminate() {
	call := &connCall{op: opTerminate, resp: make(chan callResult, 1)}
	select {
	case c.calls <- call:
		<-call.resp
	case <-c.done:
	}
}

// submit delivers one call to the actor. Once the mailbox accepts the call
// the actor posts a result on every path, including the ones that retire it,
// so the wait is on the result alone; racing it against the done channel
// could drop a terminal error posted right after shutdown.
func (c *Conn) submit(call *connCall) (callResult, error) {
	select {
	case c.calls <- call:
	case <-c.done:
		return callResult{}, ErrClosed
	}
	return <-call.resp, nil
}

func (c *Conn) emit(event error) {
	if c.options.onEvent != nil {
		c.options.onEvent(c, event)
	}
}

func (c *Conn) setState(s ConnState) {
	c.state.Store(int32(s))
}

// run is the connection actor: the single goroutine owning all mutable
// connection state. It exits only through an opTerminate call or fatal
// connect-attempt exhaustion.
func (c *Conn) run() {
	for {
		select {
		case call := <-c.calls:
			if c.handleCall(call) {
				return
			}
		case ev := <-c.frames:
			c.handleReaderEvent(ev)
		}
	}
}

// handleCall serves one mailbox request. It returns true when the actor must
// stop.
func (c *Conn) handleCall(call *connCall) bool {
	switch call.op {
	case opCmd:
		call.resp <- c.handleCmd(call)
	case opConnect:
		res, stop := c.handleConnect()
		call.resp <- res
		return stop
	case opReconnect:
		if c.connectAttempts == 0 {
			call.resp <- callResult{err: ErrAlreadyConnected}
			return false
		}
		res, stop := c.handleConnect()
		call.resp <- res
		return stop
	case opDone:
		call.resp <- callResult{err: c.handleDone(call.msg, call.outcome, call.delay)}
	case opSnapshot:
		call.resp <- callResult{snapshot: c.buildSnapshot()}
	case opStartDrain:
		call.resp <- c.handleStartDrain(call)
	case opTerminate:
		c.shutdown(nil)
		call.resp <- callResult{}
		return true
	}
	return false
}

// handleCmd dispatches a command if a socket is open, otherwise queues it in
// arrival order for the next reconnect.
func (c *Conn) handleCmd(call *connCall) callResult {
	if c.sock == nil {
		c.cmdQueue = append(c.cmdQueue, &queuedCommand{cmd: call.cmd, kind: call.kind, reply: call.reply})
		return callResult{queued: true}
	}

	if err := c.dispatch(call.cmd, call.kind, call.reply); err != nil {
		// The write failed; keep the command so the flush after the next
		// reconnect delivers it.
		c.failConnection(err)
		c.cmdQueue = append(c.cmdQueue, &queuedCommand{cmd: call.cmd, kind: call.kind, reply: call.reply})
		return callResult{queued: true}
	}
	return callResult{}
}

// dispatch writes a command to the open socket, enqueues its correlation
// slot unless no reply is expected, and performs the immediate flow-control
// bookkeeping for RDY.
func (c *Conn) dispatch(cmd *Command, kind ReplyKind, reply chan []byte) error {
	if err := c.writeCommand(cmd); err != nil {
		return err
	}

	if kind != ReplyNone {
		c.cmdRespQueue = append(c.cmdRespQueue, &pendingReply{kind: kind, reply: reply})
	}

	// RDY is never acknowledged individually, so the ready-count mirrors
	// update on send.
	if bytes.Equal(cmd.Name, cmdRDY) && len(cmd.Params) > 0 {
		if n, err := strconv.ParseInt(string(cmd.Params[0]), 10, 64); err == nil {
			c.statsUpdate(func(s *ConnStats) {
				s.RdyCount = n
				s.LastRdy = n
			})
		}
	}

	return nil
}

func (c *Conn) writeCommand(cmd *Command) error {
	if c.options.writeTimeout > 0 {
		c.sock.SetWriteDeadline(time.Now().Add(c.options.writeTimeout))
	}
	_, err := cmd.Encode(c.sock)
	return err
}

// handleConnect performs one full connect attempt: dial, magic, IDENTIFY,
// and SUB when a channel is configured. Returns stop=true when the attempt
// budget is exhausted and the actor terminates.
func (c *Conn) handleConnect() (callResult, bool) {
	c.setState(StateConnecting)
	c.log.Debug("connecting", LogFields{"attempt": c.connectAttempts + 1})

	ctx, cancel := context.WithTimeout(context.Background(), c.options.dialTimeout)
	sock, err := c.options.dialer.Dial(ctx, c.addr)
	cancel()
	if err != nil {
		return c.connectFailed(err)
	}

	if err := c.handshake(sock); err != nil {
		sock.Close()
		return c.connectFailed(err)
	}

	c.sock = sock
	c.readerGen++
	go c.readLoop(sock, c.readerGen)

	c.connectAttempts = 0
	c.setState(StateReady)
	c.statsUpdate(func(s *ConnStats) {
		s.MaxRdy = c.maxRdy
	})
	c.log.Info("connected", LogFields{"max_rdy": c.maxRdy, "msg_timeout": c.msgTimeout})
	c.emit(ErrConnected)

	c.flushQueued()
	return callResult{}, false
}

// handshake runs the fixed startup sequence on a fresh socket, bounded by a
// single overall deadline. The reader loop does not exist yet; each step
// reads its one reply synchronously, bypassing the correlation queue.
func (c *Conn) handshake(sock net.Conn) error {
	deadline := time.Now().Add(c.options.dialTimeout + c.options.readTimeout)
	sock.SetDeadline(deadline)
	defer sock.SetDeadline(time.Time{})

	c.setState(StateHandshaking)

	if _, err := sock.Write(ProtocolMagic); err != nil {
		return fmt.Errorf("%w: magic: %v", ErrHandshakeFailed, err)
	}

	body, err := buildIdentifyRequest(c.options).Encode()
	if err != nil {
		return fmt.Errorf("%w: identify body: %v", ErrHandshakeFailed, err)
	}
	if _, err := Identify(body).Encode(sock); err != nil {
		return fmt.Errorf("%w: identify: %v", ErrHandshakeFailed, err)
	}

	frame, err := ReadFrame(sock)
	if err != nil {
		return fmt.Errorf("%w: identify reply: %v", ErrHandshakeFailed, err)
	}
	if frame.Type != FrameTypeResponse {
		return fmt.Errorf("%w: identify reply: %s frame %q", ErrHandshakeFailed, frame.Type, frame.Body)
	}

	resp, err := parseIdentifyResponse(frame.Body)
	if err != nil {
		return fmt.Errorf("%w: identify reply: %v", ErrHandshakeFailed, err)
	}

	if resp.AuthRequired {
		return fmt.Errorf("%w: broker requires authorization", ErrHandshakeFailed)
	}

	c.maxRdy = resp.MaxRdyCount
	if c.maxRdy <= 0 {
		c.maxRdy = c.options.maxRdyCount
	}
	c.msgTimeout = c.options.msgTimeout
	if resp.MsgTimeout > 0 {
		c.msgTimeout = time.Duration(resp.MsgTimeout) * time.Millisecond
	}

	if c.channel != "" {
		c.setState(StateSubscribing)
		if _, err := Subscribe(c.topic, c.channel).Encode(sock); err != nil {
			return fmt.Errorf("%w: subscribe: %v", ErrHandshakeFailed, err)
		}
		frame, err := ReadFrame(sock)
		if err != nil {
			return fmt.Errorf("%w: subscribe reply: %v", ErrHandshakeFailed, err)
		}
		if !frame.IsResponse(ResponseOK) {
			return fmt.Errorf("%w: subscribe reply: %s frame %q", ErrHandshakeFailed, frame.Type, frame.Body)
		}
	}

	return nil
}

// connectFailed applies the reconnect policy after a failed attempt. With
// discovery configured the failure is tolerated unconditionally; otherwise
// the attempt budget decides between waiting for an external reconnect
// trigger and fatal termination.
func (c *Conn) connectFailed(cause error) (callResult, bool) {
	c.connectAttempts++
	c.setState(StateDisconnected)
	c.log.Warn("connect failed", LogFields{"attempt": c.connectAttempts, "error": cause})
	c.emit(NewConnectFailedError(c.connectAttempts, c.options.maxConnectAttempts, cause))

	if c.options.discovery {
		return callResult{err: cause}, false
	}

	if c.connectAttempts >= c.options.maxConnectAttempts {
		c.log.Error("connect attempts exhausted", LogFields{"attempts": c.connectAttempts})
		c.shutdown(ErrGivingUp)
		return callResult{err: fmt.Errorf("%w: %v", ErrGivingUp, cause)}, true
	}

	return callResult{err: cause}, false
}

// flushQueued replays commands accepted while disconnected, in arrival
// order, before the mailbox serves anything newer.
func (c *Conn) flushQueued() {
	for len(c.cmdQueue) > 0 {
		q := c.cmdQueue[0]
		c.cmdQueue = c.cmdQueue[1:]
		if err := c.dispatch(q.cmd, q.kind, q.reply); err != nil {
			c.failConnection(err)
			c.cmdQueue = append([]*queuedCommand{q}, c.cmdQueue...)
			return
		}
	}
	c.cmdQueue = nil
}

// handleDone settles one in-flight message: issue the wire command matching
// the outcome and update the shared counters exactly once.
func (c *Conn) handleDone(msg *Message, outcome Outcome, delay time.Duration) error {
	var cmd *Command
	switch outcome {
	case OutcomeFinished, OutcomeFailed:
		cmd = Finish(msg.ID)
	case OutcomeRequeued, OutcomeRequeuedBackoff:
		cmd = Requeue(msg.ID, delay)
	default:
		return fmt.Errorf("unknown outcome %d", outcome)
	}

	var err error
	if c.sock != nil {
		if werr := c.dispatch(cmd, ReplyNone, nil); werr != nil {
			c.failConnection(werr)
			err = werr
		}
	} else {
		c.cmdQueue = append(c.cmdQueue, &queuedCommand{cmd: cmd, kind: ReplyNone})
	}

	c.statsUpdate(func(s *ConnStats) {
		s.MessagesInFlight--
		switch outcome {
		case OutcomeFinished:
			s.FinishedCount++
		case OutcomeFailed:
			s.FailedCount++
		case OutcomeRequeued:
			s.RequeuedCount++
		case OutcomeRequeuedBackoff:
			s.RequeuedCount++
			s.BackoffCount++
		}
	})

	return err
}

// handleStartDrain dispatches CLS and parks the caller's reply channel at
// the head of normal correlation. The caller owns the rest of the drain.
func (c *Conn) handleStartDrain(call *connCall) callResult {
	if c.sock == nil {
		return callResult{err: ErrNotConnected}
	}

	c.setState(StateDraining)
	if err := c.dispatch(StartClose(), ReplyExpected, call.reply); err != nil {
		c.failConnection(err)
		return callResult{err: err}
	}
	return callResult{msgTimeout: c.msgTimeout}
}

func (c *Conn) buildSnapshot() Snapshot {
	stats, _ := c.options.connInfo.Fetch(c.id)
	return Snapshot{
		State:           c.State(),
		Addr:            c.addr,
		Topic:           c.topic,
		Channel:         c.channel,
		ConnectAttempts: c.connectAttempts,
		MaxRdy:          c.maxRdy,
		MsgTimeout:      c.msgTimeout,
		PendingReplies:  len(c.cmdRespQueue),
		QueuedCommands:  len(c.cmdQueue),
		Stats:           stats,
	}
}

// handleReaderEvent routes one event from the reader loop. Events from a
// reader belonging to a discarded socket are dropped.
func (c *Conn) handleReaderEvent(ev frameEvent) {
	if ev.gen != c.readerGen {
		return
	}
	if ev.err != nil {
		c.failConnection(ev.err)
		return
	}

	frame := ev.frame
	switch {
	case frame.IsHeartbeat():
		// Answered immediately; never touches the correlation queue.
		if err := c.writeCommand(Nop()); err != nil {
			c.failConnection(err)
		}
	case frame.Type == FrameTypeResponse:
		c.routeResponse(frame.Body)
	case frame.Type == FrameTypeError:
		c.log.Warn("broker error frame", LogFields{"error": string(frame.Body)})
		c.emit(NewBrokerError(frame.Body))
	case frame.Type == FrameTypeMessage:
		c.handleMessage(frame.Body)
	default:
		c.failConnection(fmt.Errorf("unknown frame type %d", frame.Type))
	}
}

// routeResponse matches a response frame to the head of the correlation
// queue. An empty queue means the broker sent an unexpected reply; it is
// dropped without attempting desync recovery.
func (c *Conn) routeResponse(body []byte) {
	if len(c.cmdRespQueue) == 0 {
		c.log.Warn("response with no pending command", LogFields{"body": string(body)})
		return
	}

	pending := c.cmdRespQueue[0]
	c.cmdRespQueue = c.cmdRespQueue[1:]

	if pending.kind == ReplyExpected && pending.reply != nil {
		// Buffered channel: a caller that already timed out simply never
		// receives this.
		select {
		case pending.reply <- body:
		default:
		}
	}
}

// handleMessage decodes an application message, performs the flow-control
// and in-flight bookkeeping, and hands it to the executor. The in-flight
// decrement happens later, exactly once, via Done.
func (c *Conn) handleMessage(body []byte) {
	msg, err := DecodeMessage(body)
	if err != nil {
		c.failConnection(err)
		return
	}

	msg.conn = c
	msg.BrokerAddr = c.addr
	msg.timeout = c.msgTimeout

	c.statsUpdate(func(s *ConnStats) {
		s.RdyCount--
		s.MessagesInFlight++
		s.LastMsgTimestamp = time.Now()
	})

	if c.options.executor == nil {
		c.log.Error("message received without executor", LogFields{"id": msg.ID.String()})
		c.handleDone(msg, OutcomeFailed, 0)
		return
	}
	c.options.executor.Submit(msg)
}

// failConnection tears down the current socket after a transport or framing
// failure. Pending correlated callers are abandoned (they time out), the
// failure counts as one failed connect attempt so an external Reconnect is
// honorable, and the actor waits disconnected.
func (c *Conn) failConnection(cause error) {
	if c.sock == nil {
		return
	}
	c.sock.Close()
	c.sock = nil
	c.readerGen++
	c.cmdRespQueue = nil
	c.connectAttempts++
	c.setState(StateDisconnected)
	c.log.Warn("connection lost", LogFields{"error": cause})
	c.emit(fmt.Errorf("%w: %v", ErrConnectionLost, cause))
}

// shutdown retires the actor. Waiting callers observe ErrClosed through the
// done channel; in-flight correlated calls are not finished gracefully.
func (c *Conn) shutdown(event error) {
	if c.sock != nil {
		c.sock.Close()
		c.sock = nil
	}
	c.readerGen++
	c.cmdRespQueue = nil
	c.cmdQueue = nil
	c.setState(StateTerminated)
	if event != nil {
		c.emit(event)
	} else {
		c.emit(ErrDisconnected)
	}
	close(c.done)
}

func (c *Conn) statsUpdate(fn func(*ConnStats)) {
	c.options.connInfo.Update(c.id, fn)
}

// readLoop is the frame reader: a blocking-read loop that decodes frames
// and forwards each as a one-way event to the actor. It never touches
// connection state; only the actor writes to the socket.
func (c *Conn) readLoop(sock net.Conn, gen int) {
	var lenBuf [4]byte

	for {
		sock.SetReadDeadline(time.Now().Add(c.options.readTimeout))

		n, err := io.ReadFull(sock, lenBuf[:])
		if err != nil {
			var nerr net.Error
			if n == 0 && errors.As(err, &nerr) && nerr.Timeout() {
				// Idle broker; keep waiting for the next length prefix.
				continue
			}
			// A partial length prefix cannot be resynchronized.
			c.deliver(frameEvent{gen: gen, err: err})
			return
		}

		size := binary.BigEndian.Uint32(lenBuf[:])
		if size > MaxFrameSize {
			c.deliver(frameEvent{gen: gen, err: ErrFrameTooLarge})
			return
		}

		// The payload read shares the deadline set before the length read;
		// any failure here leaves a partial frame on the wire and is fatal.
		payload := make([]byte, size)
		if _, err := io.ReadFull(sock, payload); err != nil {
			c.deliver(frameEvent{gen: gen, err: err})
			return
		}

		frame, err := UnpackFrame(payload)
		if err != nil {
			c.deliver(frameEvent{gen: gen, err: err})
			return
		}

		if !c.deliver(frameEvent{gen: gen, frame: frame}) {
			return
		}
	}
}

func (c *Conn) deliver(ev frameEvent) bool {
	select {
	case c.frames <- ev:
		return true
	case <-c.done:
		return false
	}
}
