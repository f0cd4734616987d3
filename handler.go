package nsqconn

// Outcome is the completion result reported for an in-flight message.
type Outcome int

const (
	// OutcomeFinished marks successful processing; FIN is sent.
	OutcomeFinished Outcome = iota
	// OutcomeFailed marks permanent failure; the message is finished on the
	// wire so the broker stops redelivering it, and the failure counter is
	// incremented.
	OutcomeFailed
	// OutcomeRequeued asks the broker to redeliver the message.
	OutcomeRequeued
	// OutcomeRequeuedBackoff requeues and additionally flags a backoff
	// condition in the stats store.
	OutcomeRequeuedBackoff
)

// String returns the string representation of the outcome.
func (o Outcome) String() string {
	switch o {
	case OutcomeFinished:
		return "finished"
	case OutcomeFailed:
		return "failed"
	case OutcomeRequeued:
		return "requeued"
	case OutcomeRequeuedBackoff:
		return "requeued-backoff"
	default:
		return "unknown"
	}
}

// Executor runs user callback logic for received application messages. The
// connection hands each decoded message to Submit and expects a completion
// outcome to be reported later through the message's Finish/Fail/Requeue
// helpers (or Conn.Done directly). Submit must not block: the connection's
// event loop calls it inline.
type Executor interface {
	Submit(msg *Message)
}

// ExecutorFunc adapts a handler function to the Executor interface. Each
// message is processed on its own goroutine; a nil error finishes the
// message and a non-nil error requeues it with the broker-default delay.
type ExecutorFunc func(msg *Message) error

// Submit runs the handler on a new goroutine and settles the message from
// the returned error.
func (f ExecutorFunc) Submit(msg *Message) {
	go func() {
		if err := f(msg); err != nil {
			msg.Requeue(0)
			return
		}
		msg.Finish()
	}()
}
