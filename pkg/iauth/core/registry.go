package core

import (
	"fmt"
	"log/slog"

	"github.com/brookline/iauth/pkg/iauth/common"
	"github.com/brookline/iauth/pkg/iauth/proto"
)

// Collaborators bundles every dependency the core needs injected from the
// host runtime. NewRegistry panics if EventLoop, Resolver, Transport,
// Registration, or OperatorNotify is nil, since a missing collaborator there
// is a wiring bug the caller should see at startup rather than on first use.
// Logger is the exception: a nil Logger falls back to a discard logger
// rather than panicking, since logging has a reasonable zero value and
// silence is an acceptable default for a caller that doesn't want any.
type Collaborators struct {
	EventLoop      EventLoop
	Resolver       Resolver
	Transport      Transport
	Registration   Registration
	OperatorNotify OperatorNotify
	Logger         *slog.Logger
}

func (c *Collaborators) validate() {
	if c.EventLoop == nil || c.Resolver == nil || c.Transport == nil ||
		c.Registration == nil || c.OperatorNotify == nil {
		panic("core: Collaborators has a nil dependency")
	}
	if c.Logger == nil {
		c.Logger = common.NewDefaultLogger()
	}
}

// Registry is the process-wide owner of every authority connection, per
// spec.md §3. It holds at most one connection per (host, port) pair and
// tracks which one is the "active" connection new requests go to.
type Registry struct {
	cfg      RegistryConfig
	collab   Collaborators
	conns    []*Connection
	activeAt int // index into conns of the active connection, or -1
	ids      common.IDAllocator
}

// NewRegistry constructs a Registry. cfg is validated; collaborators are
// checked for completeness.
func NewRegistry(cfg RegistryConfig, collab Collaborators) (*Registry, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	collab.validate()
	return &Registry{cfg: cfg, collab: collab, activeAt: -1}, nil
}

// Active returns the current active connection, or nil if none exists.
func (reg *Registry) Active() *Connection {
	if reg.activeAt < 0 {
		return nil
	}
	return reg.conns[reg.activeAt]
}

// Connections returns every connection the registry currently owns, active
// or not, in the order they were created.
func (reg *Registry) Connections() []*Connection {
	out := make([]*Connection, len(reg.conns))
	copy(out, reg.conns)
	return out
}

func (reg *Registry) find(host string, port uint16) *Connection {
	for _, c := range reg.conns {
		if c.Host() == host && c.Port() == port {
			return c
		}
	}
	return nil
}

// ConnectOrUpdate implements spec.md §4.2: it creates a new connection for
// (host, port) if none exists, or updates the existing one's configuration
// in place. Either way the connection becomes (or remains) active, and its
// predecessor, if any and distinct, is marked Closing. A connection whose
// reconnect timer is already pending never has its wait extended by this
// call, only ever shortened.
func (reg *Registry) ConnectOrUpdate(cfg ConnConfig) (*Connection, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	prev := reg.Active()

	if existing := reg.find(cfg.Host, cfg.Port); existing != nil {
		existing.cfg = cfg
		existing.reconn = newRetimer(cfg.ReconnectDelay)
		existing.shortenReconnect(cfg.ReconnectDelay)
		existing.closing = false
		existing.announceExisting = true
		reg.makeActive(existing)
		if prev != nil && prev != existing {
			prev.closing = true
		}
		return existing, nil
	}

	announceExisting := len(reg.conns) > 0
	c := newConnection(reg, cfg)
	c.announceExisting = announceExisting
	reg.conns = append(reg.conns, c)
	reg.makeActive(c)
	if prev != nil {
		prev.closing = true
	}
	return c, nil
}

func (reg *Registry) makeActive(c *Connection) {
	for i, existing := range reg.conns {
		if existing == c {
			reg.activeAt = i
			return
		}
	}
}

// MarkAllClosing flags every current connection, including the active one,
// as Closing. It is used when the server is told its whole authority set
// has been withdrawn, per spec.md §4.7.
func (reg *Registry) MarkAllClosing() {
	for _, c := range reg.conns {
		c.closing = true
	}
	reg.activeAt = -1
}

// CloseUnused implements spec.md §4.8: every connection flagged Closing
// that is not the active connection is drained. If it has no pending
// requests it is closed immediately; otherwise its requests are migrated
// to the active connection if one exists, or fail-open admitted if none
// does.
func (reg *Registry) CloseUnused() {
	active := reg.Active()
	kept := reg.conns[:0]
	for _, c := range reg.conns {
		if !c.closing || c == active {
			kept = append(kept, c)
			continue
		}
		reg.drain(c, active)
	}
	reg.conns = kept
	if active != nil {
		reg.makeActive(active)
	}
}

// drain empties c of its pending requests, migrating them onto successor
// if one exists, or fail-open admitting their clients directly onto the
// server if it does not, then tears c's transport down for good.
func (reg *Registry) drain(c *Connection, successor *Connection) {
	if successor != nil {
		migrated := c.reqs.all()
		for _, r := range migrated {
			r.conn = successor
			r.sent = false
			r.timed = false
		}
		c.reqs.spliceOnto(&successor.reqs)
		if successor.handshakeComplete {
			for _, r := range migrated {
				successor.sendRequest(r)
			}
		}
	} else {
		for _, r := range c.reqs.all() {
			cl := r.client
			c.disposeRequest(r)
			reg.collab.Logger.Warn("iauth: no successor connection, admitting without authorization", "client", cl.Name())
			reg.collab.Registration.Admit(cl)
		}
	}

	if c.reconnActive {
		reg.collab.EventLoop.CancelTimer(c.reconnTimer)
		c.reconnActive = false
	}
	if c.reqTimerActive {
		reg.collab.EventLoop.CancelTimer(c.reqTimer)
		c.reqTimerActive = false
	}
	_ = reg.collab.Transport.Close(c)
	reg.collab.EventLoop.Unregister(c)
}

// StartClient implements spec.md §4.3: it allocates a correlation id,
// links a new request onto the active connection's list, and sends it
// immediately if the connection is ready. If there is no active
// connection, it returns ErrNoActiveConnection and the caller is expected
// to fail open.
func (reg *Registry) StartClient(cl Client) (RequestHandle, error) {
	active := reg.Active()
	if active == nil {
		return nil, common.ErrNoActiveConnection
	}
	r := &request{client: cl, conn: active, id: reg.ids.New()}
	active.reqs.pushBack(r)
	cl.SetRequest(r)
	active.sendRequest(r)
	return r, nil
}

// ExitClient implements spec.md §4.4 and resolves Open Question #3: it
// disposes the request through the connection that actually owns it
// (request.conn), which may differ from the registry's current active
// connection after a rotation, and sends ExitUser on that same
// connection only if the request had in fact been sent and the connection
// is ready.
func (reg *Registry) ExitClient(h RequestHandle) error {
	if h == nil {
		return nil
	}
	r := h
	conn := r.conn
	if conn == nil {
		return fmt.Errorf("iauth: request has no owning connection")
	}
	wasSent := r.sent
	id := r.id
	conn.disposeRequest(r)
	if wasSent && conn.handshakeComplete {
		conn.enqueueLine(proto.ExitUser{ID: id}.Encode())
		conn.flush()
	}
	return nil
}
