package core

import (
	"net"
	"time"
)

// TimerKind distinguishes the two timers a Connection owns.
type TimerKind int

const (
	// TimerReconnect arms when a connection needs to be retried.
	TimerReconnect TimerKind = iota
	// TimerRequest bounds the oldest in-flight request on a connection.
	TimerRequest
)

// TimerHandle is an opaque reference to an armed timer, returned by
// EventLoop.ArmTimer and later passed to EventLoop.CancelTimer.
type TimerHandle any

// EventLoop is the host runtime's socket/timer registration surface. The
// core never blocks and performs no I/O itself; it asks the event loop to
// watch a connection's socket and to arm or cancel relative timers, and
// expects the corresponding On* methods on Connection to be called back
// when those events fire.
type EventLoop interface {
	// Register expresses interest in readable/writable readiness for c's
	// socket. Called with writable=true when a send would block and
	// again with writable=false when the writable event arrives.
	Register(c *Connection, readable, writable bool)
	// Unregister withdraws all interest in c's socket.
	Unregister(c *Connection)
	// ArmTimer schedules a single relative timer for c. Re-arming an
	// already-handled kind is the caller's responsibility; ArmTimer
	// itself always creates a fresh handle.
	ArmTimer(kind TimerKind, c *Connection, d time.Duration) TimerHandle
	// CancelTimer cancels a timer previously returned by ArmTimer. It is
	// a no-op if the timer already fired or was already canceled.
	CancelTimer(h TimerHandle)
}

// Resolver resolves a hostname to an address asynchronously.
type Resolver interface {
	Resolve(host string, cb func(ip net.IP, err error))
}

// Transport is the nonblocking socket surface the core drives.
type Transport interface {
	// Dial opens a nonblocking connection to ip:port for c. cb is called
	// once the connect completes or fails.
	Dial(c *Connection, ip net.IP, port uint16, cb func(err error))
	// Send attempts to write as many of lines, in order, as the socket
	// will currently accept without blocking. n is the number of
	// entries of lines fully written; wouldBlock is true if the socket
	// could not accept everything and the caller should wait for a
	// writable event before retrying the remainder.
	Send(c *Connection, lines [][]byte) (n int, wouldBlock bool, err error)
	// Recv reads whatever is currently available into buf, returning the
	// number of bytes read. Zero bytes with a nil error means EOF.
	Recv(c *Connection, buf []byte) (n int, err error)
	// Close tears down c's socket.
	Close(c *Connection) error
}

// Registration is the chat server's user-registration entry point.
type Registration interface {
	// Admit resumes registration for a client that has been authorized
	// (or fail-open admitted).
	Admit(cl Client)
	// Reject disconnects a client with a human-readable reason.
	Reject(cl Client, reason string)
}

// OperatorNotify broadcasts a formatted protocol-violation notice.
type OperatorNotify interface {
	Violation(format string, args ...any)
}

// RequestHandle is an opaque, comparable reference to one pending request.
// It carries no exported fields or methods; Client implementations store
// it verbatim and hand it back on Request().
type RequestHandle = *request

// Client is the external, mutable client object the core reads and
// writes. Implementations wrap whatever the chat server's own client type
// looks like.
type Client interface {
	// Name returns the client's current nickname.
	Name() string
	// Username returns the provisional username supplied at connect time.
	Username() string
	SetUsername(string)
	SetRealUsername(string)
	SetHost(string)
	// SourceIP returns the client's connecting IP address as text.
	SourceIP() string
	// Password returns any password the client supplied at connect time.
	Password() string
	// Info returns the client's gecos/realname field.
	Info() string
	SetAccount(string)
	SetHasAccount(bool)
	SetAuthorized(bool)
	// Request returns the client's pending request, or nil.
	Request() RequestHandle
	SetRequest(RequestHandle)
}
