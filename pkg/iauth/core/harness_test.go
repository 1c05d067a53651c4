package core

import (
	"fmt"
	"io"
	"log/slog"
	"net"
	"time"
)

// fakeEventLoop is a single-threaded stand-in for the host runtime. It
// never actually sleeps; tests decide when a timer "fires" by calling fire,
// which looks the live handle up in armed and calls the Connection's
// OnTimerExpire directly.
type fakeEventLoop struct {
	registered map[*Connection]struct{ readable, writable bool }
	armed      map[TimerHandle]armedTimer
	next       int
}

type armedTimer struct {
	kind TimerKind
	conn *Connection
	d    time.Duration
	live bool
}

func newFakeEventLoop() *fakeEventLoop {
	return &fakeEventLoop{
		registered: map[*Connection]struct{ readable, writable bool }{},
		armed:      map[TimerHandle]armedTimer{},
	}
}

func (f *fakeEventLoop) Register(c *Connection, readable, writable bool) {
	f.registered[c] = struct{ readable, writable bool }{readable, writable}
}

func (f *fakeEventLoop) Unregister(c *Connection) {
	delete(f.registered, c)
}

func (f *fakeEventLoop) ArmTimer(kind TimerKind, c *Connection, d time.Duration) TimerHandle {
	f.next++
	h := f.next
	f.armed[h] = armedTimer{kind: kind, conn: c, d: d, live: true}
	return h
}

func (f *fakeEventLoop) CancelTimer(h TimerHandle) {
	if t, ok := f.armed[h]; ok {
		t.live = false
		f.armed[h] = t
	}
}

// fire triggers the most recently armed live timer of kind for c, as if it
// had expired.
func (f *fakeEventLoop) fire(c *Connection, kind TimerKind) bool {
	var target TimerHandle
	newest := 0
	for h, t := range f.armed {
		if t.conn == c && t.kind == kind && t.live && h.(int) > newest {
			target = h
			newest = h.(int)
		}
	}
	if target == nil {
		return false
	}
	t := f.armed[target]
	t.live = false
	f.armed[target] = t
	c.OnTimerExpire(kind)
	return true
}

func (f *fakeEventLoop) liveCount() int {
	n := 0
	for _, t := range f.armed {
		if t.live {
			n++
		}
	}
	return n
}

// fakeResolver resolves synchronously using a preconfigured table.
type fakeResolver struct {
	ips map[string]net.IP
	err map[string]error
}

func newFakeResolver() *fakeResolver {
	return &fakeResolver{ips: map[string]net.IP{}, err: map[string]error{}}
}

func (r *fakeResolver) Resolve(host string, cb func(ip net.IP, err error)) {
	if err, ok := r.err[host]; ok {
		cb(nil, err)
		return
	}
	if ip, ok := r.ips[host]; ok {
		cb(ip, nil)
		return
	}
	cb(net.ParseIP("127.0.0.1"), nil)
}

// fakeTransport records every line handed to Send and lets tests queue
// bytes to be returned from Recv.
type fakeTransport struct {
	dialErr  error
	sent     map[*Connection][]string
	inbound  map[*Connection][][]byte
	closed   map[*Connection]bool
	sendErr  map[*Connection]error
	blockNow map[*Connection]bool
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		sent:     map[*Connection][]string{},
		inbound:  map[*Connection][][]byte{},
		closed:   map[*Connection]bool{},
		sendErr:  map[*Connection]error{},
		blockNow: map[*Connection]bool{},
	}
}

func (t *fakeTransport) Dial(c *Connection, ip net.IP, port uint16, cb func(err error)) {
	cb(t.dialErr)
}

func (t *fakeTransport) Send(c *Connection, lines [][]byte) (int, bool, error) {
	if err := t.sendErr[c]; err != nil {
		return 0, false, err
	}
	for _, l := range lines {
		t.sent[c] = append(t.sent[c], string(l))
	}
	return len(lines), t.blockNow[c], nil
}

func (t *fakeTransport) queueRecv(c *Connection, data []byte) {
	t.inbound[c] = append(t.inbound[c], data)
}

func (t *fakeTransport) Recv(c *Connection, buf []byte) (int, error) {
	q := t.inbound[c]
	if len(q) == 0 {
		return 0, io.EOF
	}
	data := q[0]
	t.inbound[c] = q[1:]
	n := copy(buf, data)
	return n, nil
}

func (t *fakeTransport) Close(c *Connection) error {
	t.closed[c] = true
	return nil
}

// fakeRegistration records Admit/Reject calls.
type fakeRegistration struct {
	admitted []Client
	rejected []string
}

func (r *fakeRegistration) Admit(cl Client) { r.admitted = append(r.admitted, cl) }
func (r *fakeRegistration) Reject(cl Client, reason string) {
	r.rejected = append(r.rejected, cl.Name()+": "+reason)
}

// fakeOperatorNotify records every violation message formatted.
type fakeOperatorNotify struct {
	messages []string
}

func (o *fakeOperatorNotify) Violation(format string, args ...any) {
	o.messages = append(o.messages, fmt.Sprintf(format, args...))
}

// fakeClient is a minimal in-memory Client implementation for tests.
type fakeClient struct {
	name       string
	username   string
	realUser   string
	host       string
	ip         string
	pass       string
	info       string
	account    string
	hasAccount bool
	authorized bool
	req        RequestHandle
}

func (c *fakeClient) Name() string          { return c.name }
func (c *fakeClient) Username() string      { return c.username }
func (c *fakeClient) SetUsername(u string)  { c.username = u }
func (c *fakeClient) SetRealUsername(u string) { c.realUser = u }
func (c *fakeClient) SetHost(h string)      { c.host = h }
func (c *fakeClient) SourceIP() string      { return c.ip }
func (c *fakeClient) Password() string      { return c.pass }
func (c *fakeClient) Info() string          { return c.info }
func (c *fakeClient) SetAccount(a string)   { c.account = a }
func (c *fakeClient) SetHasAccount(b bool)  { c.hasAccount = b }
func (c *fakeClient) SetAuthorized(b bool)  { c.authorized = b }
func (c *fakeClient) Request() RequestHandle { return c.req }
func (c *fakeClient) SetRequest(h RequestHandle) { c.req = h }

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newHarness(serverName string) (*Registry, *fakeEventLoop, *fakeResolver, *fakeTransport, *fakeRegistration, *fakeOperatorNotify) {
	el := newFakeEventLoop()
	res := newFakeResolver()
	tr := newFakeTransport()
	regn := &fakeRegistration{}
	opn := &fakeOperatorNotify{}
	reg, err := NewRegistry(RegistryConfig{ServerName: serverName}, Collaborators{
		EventLoop:      el,
		Resolver:       res,
		Transport:      tr,
		Registration:   regn,
		OperatorNotify: opn,
		Logger:         discardLogger(),
	})
	if err != nil {
		panic(err)
	}
	return reg, el, res, tr, regn, opn
}
