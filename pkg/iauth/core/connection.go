package core

import (
	"errors"
	"io"
	"net"
	"strings"
	"time"

	"github.com/brookline/iauth/pkg/iauth/common"
	"github.com/brookline/iauth/pkg/iauth/proto"
)

// now is overridden in tests so reconnect-shortening math is deterministic.
var now = time.Now

// errRequestTimeout is an internal teardown cause, never surfaced outside
// the package.
var errRequestTimeout = errors.New("request response timed out")

// Connection owns one transport socket, its timers, its outbound queue,
// its inbound line buffer, and its request list, per spec.md §3.
type Connection struct {
	reg *Registry
	cfg ConnConfig

	// closing is orthogonal to the connect/teardown sequence below: it is
	// set by the registry (ConnectOrUpdate, MarkAllClosing) and acted on
	// only by CloseUnused; Connection merely reports it through IsClosing.
	closing bool

	blocked           bool
	handshakeComplete bool
	announceExisting  bool

	reqs requestList

	outq [][]byte
	in   *proto.Splitter

	reconn       *retimer
	reconnTimer  TimerHandle
	reconnActive bool
	reconnExpiry time.Time

	reqTimer       TimerHandle
	reqTimerActive bool

	recvBytesMod, recvKB, recvMB uint32
	sentBytesMod, sentKB, sentMB uint32
	recvTotal, sentTotal         uint64
	recvMsgs, sentMsgs           uint64
}

// Host and Port identify this connection within the registry.
func (c *Connection) Host() string { return c.cfg.Host }
func (c *Connection) Port() uint16 { return c.cfg.Port }

// IsReady reports whether the connection has completed its handshake and
// may carry requests.
func (c *Connection) IsReady() bool { return c.handshakeComplete }

// IsClosing reports the orthogonal Closing flag.
func (c *Connection) IsClosing() bool { return c.closing }

// RequestCount returns the number of requests currently on this
// connection's list.
func (c *Connection) RequestCount() int { return len(c.reqs.all()) }

// PendingOutbound returns the lines still queued to be sent, each without
// its trailing terminator, for inspection in tests and diagnostics.
func (c *Connection) PendingOutbound() []string {
	out := make([]string, len(c.outq))
	for i, l := range c.outq {
		out[i] = strings.TrimRight(string(l), "\r\n")
	}
	return out
}

// ByteCounters returns the received/sent megabyte, kilobyte, and
// sub-kilobyte registers, per spec.md §4.6.
func (c *Connection) ByteCounters() (recvMB, recvKB, recvB, sentMB, sentKB, sentB uint32) {
	return c.recvMB, c.recvKB, c.recvBytesMod, c.sentMB, c.sentKB, c.sentBytesMod
}

// RecvTotal and SentTotal are raw lifetime byte counts, kept alongside the
// three-register representation so invariant 5 of spec.md §8 can be
// checked directly: recvMB*2^20 + recvKB*2^10 + recvB must equal RecvTotal.
func (c *Connection) RecvTotal() uint64 { return c.recvTotal }
func (c *Connection) SentTotal() uint64 { return c.sentTotal }

// newConnection constructs and immediately begins connecting a Connection
// owned by reg. The connection announces EndUsers on its handshake when reg
// already holds other connections; the flag is set before connecting since
// the handshake can complete synchronously.
func newConnection(reg *Registry, cfg ConnConfig) *Connection {
	c := &Connection{reg: reg, cfg: cfg, in: proto.NewSplitter(), reconn: newRetimer(cfg.ReconnectDelay)}
	c.announceExisting = len(reg.conns) > 0
	c.reqs.init()
	c.beginConnect()
	return c
}

func (c *Connection) beginConnect() {
	if ip := net.ParseIP(c.cfg.Host); ip != nil {
		c.onResolved(ip, nil)
		return
	}
	c.reg.collab.Resolver.Resolve(c.cfg.Host, c.onResolved)
}

func (c *Connection) onResolved(ip net.IP, err error) {
	if err != nil {
		c.reg.collab.Logger.Warn("iauth: dns resolution failed", "host", c.cfg.Host, "err", err)
		c.scheduleReconnect()
		return
	}
	c.reg.collab.Transport.Dial(c, ip, c.cfg.Port, c.onDialComplete)
}

func (c *Connection) onDialComplete(err error) {
	if err != nil {
		c.reg.collab.Logger.Warn("iauth: connect failed", "host", c.cfg.Host, "port", c.cfg.Port, "err", err)
		c.teardown(err)
		return
	}
	c.reg.collab.EventLoop.Register(c, true, false)
	c.onHandshake()
}

// onHandshake sends the greeting, the optional EndUsers marker, and
// re-sends every already-queued request, per spec.md §4.1.
func (c *Connection) onHandshake() {
	c.handshakeComplete = true
	c.enqueueLine(proto.Greeting(c.reg.cfg.ServerName, c.cfg.Password))
	if c.announceExisting {
		c.enqueueLine(proto.EndUsersLine)
	}
	for _, r := range c.reqs.all() {
		c.sendRequest(r)
	}
	c.flush()
}

// sendRequest implements spec.md §4.3's send_request: defer while the
// handshake isn't done, arm the shared request timer if nothing else has,
// and enqueue the FullAuth line.
func (c *Connection) sendRequest(r *request) {
	if !c.handshakeComplete {
		return
	}
	if !c.reqTimerActive {
		c.reqTimer = c.reg.collab.EventLoop.ArmTimer(TimerRequest, c, c.cfg.RequestTimeout)
		c.reqTimerActive = true
		r.timed = true
	} else {
		r.timed = false
	}
	f := proto.FullAuth{
		ID:   r.id,
		Nick: r.client.Name(),
		User: r.client.Username(),
		Host: hostFieldFor(r.client),
		IP:   r.client.SourceIP(),
		Pass: r.client.Password(),
		Info: r.client.Info(),
	}
	c.enqueueLine(f.Encode())
	c.flush()
	r.sent = true
}

// hostFieldFor returns the value sent in FullAuth's host field. Client has
// no getter for a provisional hostname (only SetHost, which the authority's
// verdict fills in), so the client's source IP text is sent in that field;
// a resolved hostname is never sent.
func hostFieldFor(cl Client) string {
	return cl.SourceIP()
}

// disposeRequest unlinks r, cancels the request-timeout timer if r armed
// it, and clears the client's back-pointer, per spec.md §4.3.
func (c *Connection) disposeRequest(r *request) {
	if r.timed && c.reqTimerActive {
		c.reg.collab.EventLoop.CancelTimer(c.reqTimer)
		c.reqTimerActive = false
	}
	r.unlink()
	if r.client != nil {
		r.client.SetRequest(nil)
	}
}

func (c *Connection) enqueueLine(line string) {
	c.outq = append(c.outq, []byte(line+"\r\n"))
}

// flush attempts to drain the outbound queue. Per spec.md §5's backpressure
// rule, it is a no-op while blocked; OnWritable clears that flag and calls
// flush again.
func (c *Connection) flush() {
	if c.blocked || len(c.outq) == 0 {
		return
	}
	n, wouldBlock, err := c.reg.collab.Transport.Send(c, c.outq)
	if err != nil {
		c.teardown(err)
		return
	}
	for _, sent := range c.outq[:n] {
		c.accountSent(len(sent))
	}
	c.sentMsgs += uint64(n)
	c.outq = c.outq[n:]
	if wouldBlock {
		c.blocked = true
		c.reg.collab.EventLoop.Register(c, true, true)
	}
}

// OnWritable is called by the host runtime when c's socket becomes
// writable after having blocked.
func (c *Connection) OnWritable() {
	c.blocked = false
	c.reg.collab.EventLoop.Register(c, true, false)
	c.flush()
}

// OnReadable is called by the host runtime when c's socket has data
// available.
func (c *Connection) OnReadable() {
	var buf [4096]byte
	n, err := c.reg.collab.Transport.Recv(c, buf[:])
	if err != nil {
		c.teardown(err)
		return
	}
	if n == 0 {
		c.teardown(io.EOF)
		return
	}
	c.accountRecv(n)
	lines := c.in.Feed(buf[:n])
	c.recvMsgs += uint64(len(lines))
	for _, line := range lines {
		c.dispatch(line)
	}
}

func (c *Connection) dispatch(line string) {
	cmd, args := proto.Parse(line)
	switch strings.ToLower(cmd) {
	case "doneauth":
		c.handleDoneAuth(args)
	case "badauth":
		c.handleBadAuth(args)
		// Unknown command names are silently ignored: the authority may
		// be newer than this client.
	}
}

func (c *Connection) handleDoneAuth(args []string) {
	d, err := proto.DecodeDoneAuth(args)
	if err != nil {
		c.reportViolation("DoneAuth", err, strings.Join(args, " "))
		return
	}
	r := c.reqs.findByID(d.ID)
	if r == nil {
		c.reportViolation("DoneAuth", common.ErrUnknownRequest, d.ID)
		return
	}
	cl := r.client
	cl.SetUsername(d.Username)
	cl.SetRealUsername(d.Username)
	cl.SetHost(d.Hostname)
	if d.HasAccount {
		cl.SetAccount(d.Account)
		cl.SetHasAccount(true)
	}
	cl.SetAuthorized(true)
	c.disposeRequest(r)
	c.reg.collab.Registration.Admit(cl)
}

func (c *Connection) handleBadAuth(args []string) {
	b, err := proto.DecodeBadAuth(args)
	if err != nil {
		if errors.Is(err, proto.ErrEmptyArg) {
			err = common.ErrEmptyReason
		}
		c.reportViolation("BadAuth", err, strings.Join(args, " "))
		return
	}
	r := c.reqs.findByID(b.ID)
	if r == nil {
		c.reportViolation("BadAuth", common.ErrUnknownRequest, b.ID)
		return
	}
	cl := r.client
	c.disposeRequest(r)
	c.reg.collab.Registration.Reject(cl, b.Reason)
}

func (c *Connection) reportViolation(cmd string, err error, detail string) {
	v := &ProtocolViolation{Command: cmd, Detail: detail, Err: err}
	c.reg.collab.OperatorNotify.Violation("%s", v.Error())
}

// OnTimerExpire is called by the host runtime when one of c's timers
// fires.
func (c *Connection) OnTimerExpire(kind TimerKind) {
	switch kind {
	case TimerReconnect:
		c.reconnActive = false
		c.beginConnect()
	case TimerRequest:
		c.reqTimerActive = false
		c.reg.collab.Logger.Warn("iauth: request timed out, reconnecting", "host", c.cfg.Host, "port", c.cfg.Port)
		c.teardown(errRequestTimeout)
	}
}

// teardown moves the connection to Disconnecting, then Idle, and schedules
// a reconnect. The request list is left untouched so queued requests
// survive the reconnect, per spec.md §4.1 and §4.4.
func (c *Connection) teardown(err error) {
	c.handshakeComplete = false
	c.blocked = false
	c.outq = nil
	if c.reqTimerActive {
		c.reg.collab.EventLoop.CancelTimer(c.reqTimer)
		c.reqTimerActive = false
	}
	_ = c.reg.collab.Transport.Close(c)
	c.reg.collab.EventLoop.Unregister(c)
	c.scheduleReconnect()
}

// scheduleReconnect (re)arms the reconnect timer with the connection's
// currently configured delay.
func (c *Connection) scheduleReconnect() {
	if c.reconnActive {
		c.reg.collab.EventLoop.CancelTimer(c.reconnTimer)
	}
	d := c.reconn.next()
	c.reconnTimer = c.reg.collab.EventLoop.ArmTimer(TimerReconnect, c, d)
	c.reconnExpiry = now().Add(d)
	c.reconnActive = true
}

// shortenReconnect implements spec.md §4.2's "never extend" rule: a
// pending reconnect's expiry is brought forward if the candidate delay
// would fire sooner, and left alone otherwise.
func (c *Connection) shortenReconnect(newDelay time.Duration) {
	if !c.reconnActive {
		return
	}
	candidate := now().Add(newDelay)
	if candidate.Before(c.reconnExpiry) {
		c.reg.collab.EventLoop.CancelTimer(c.reconnTimer)
		c.reconnTimer = c.reg.collab.EventLoop.ArmTimer(TimerReconnect, c, newDelay)
		c.reconnExpiry = candidate
	}
}

func (c *Connection) accountRecv(n int) {
	c.recvTotal += uint64(n)
	carryBytes(&c.recvBytesMod, &c.recvKB, &c.recvMB, n)
}

func (c *Connection) accountSent(n int) {
	c.sentTotal += uint64(n)
	carryBytes(&c.sentBytesMod, &c.sentKB, &c.sentMB, n)
}

// carryBytes implements the explicit double carry spec.md §9 asks for: the
// bytes-modulo-kilobyte register rolls into kilobytes, and the kilobytes
// register rolls into megabytes, on every call.
func carryBytes(bytesMod, kb, mb *uint32, n int) {
	*bytesMod += uint32(n)
	*kb += *bytesMod >> 10
	*bytesMod &= 1023
	*mb += *kb >> 10
	*kb &= 1023
}
