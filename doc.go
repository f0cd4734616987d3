// Package nsqconn implements the per-broker connection engine of an
// NSQ-protocol client: one TCP (or TLS, Unix socket, WebSocket, QUIC,
// proxied) connection to a single broker, with the full connection lifecycle
// around it.
//
// # Connection model
//
// A Conn owns exactly one socket. All connection state lives on a single
// goroutine reachable only through its mailbox; a dedicated reader loop
// decodes length-prefixed frames and forwards them as one-way events. Only
// the actor writes to the socket, so commands go out in exact submission
// order and replies are matched FIFO against the correlation queue.
//
//	conn, err := nsqconn.Dial("127.0.0.1:4150", "events", "archive",
//	    nsqconn.WithHandler(func(msg *nsqconn.Message) error {
//	        return process(msg.Body)
//	    }),
//	)
//	defer conn.Close()
//
//	conn.Send(nsqconn.Ready(10))
//
// An empty channel makes a publisher connection (no SUB step):
//
//	conn, err := nsqconn.Dial("127.0.0.1:4150", "", "",
//	    nsqconn.WithEventHandler(onEvent),
//	)
//	body, err := conn.Call(nsqconn.Publish("events", payload), 5*time.Second)
//
// # Handshake
//
// Dial writes the protocol magic, negotiates features with IDENTIFY (the
// broker may override the max ready count and message timeout), and, when a
// channel is configured, subscribes and requires the literal "OK" ack. Only
// then is the reader loop started and queued commands flushed.
//
// # Disconnection and reconnect
//
// Commands issued while disconnected are queued in order and replayed on
// the next successful handshake. Connect failures are counted; an external
// supervisor triggers Reconnect, and the budget set by
// WithMaxConnectAttempts bounds how many consecutive failures are tolerated
// unless WithDiscovery marks the connection as externally supervised.
//
// # Stats
//
// Flow-control and in-flight counters are mirrored into a shared ConnInfo
// store keyed by connection identity, updated through atomic
// read-modify-write closures so the connection and the message-handling
// executor never lose each other's updates.
package nsqconn
