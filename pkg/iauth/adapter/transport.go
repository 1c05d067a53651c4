package adapter

import (
	"fmt"
	"net"
	"time"

	"github.com/brookline/iauth/pkg/iauth/core"
)

// sockState is the per-connection real-socket bookkeeping the Transport
// keeps alongside a *core.Connection. It is only ever touched from the
// pump goroutine: the background reader goroutine hands each chunk over by
// posting a job onto the pump that sets staged.
type sockState struct {
	conn    net.Conn
	staged  []byte
	lastErr error
}

// Transport implements core.Transport over real TCP sockets. Each
// connection gets one background reader goroutine performing blocking
// reads; results are staged and delivered to the core via a pump job that
// triggers Connection.OnReadable, which then calls back into Recv to
// collect exactly what was staged.
type Transport struct {
	rt          *Runtime
	DialTimeout time.Duration

	socks map[*core.Connection]*sockState
}

// NewTransport returns a core.Transport backed by real TCP sockets.
func NewTransport(rt *Runtime) *Transport {
	return &Transport{rt: rt, DialTimeout: 10 * time.Second, socks: map[*core.Connection]*sockState{}}
}

func (t *Transport) Dial(c *core.Connection, ip net.IP, port uint16, cb func(err error)) {
	addr := net.JoinHostPort(ip.String(), fmt.Sprintf("%d", port))
	go func() {
		conn, err := net.DialTimeout("tcp", addr, t.DialTimeout)
		t.rt.Submit(func() {
			if err != nil {
				cb(err)
				return
			}
			t.socks[c] = &sockState{conn: conn}
			t.startReader(c, conn)
			cb(nil)
		})
	}()
}

// startReader launches the background goroutine that performs blocking
// reads for c's socket and stages each chunk before waking the core.
func (t *Transport) startReader(c *core.Connection, conn net.Conn) {
	go func() {
		buf := make([]byte, 4096)
		for {
			n, err := conn.Read(buf)
			if n > 0 {
				chunk := make([]byte, n)
				copy(chunk, buf[:n])
				done := make(chan struct{})
				t.rt.Submit(func() {
					defer close(done)
					if st, ok := t.socks[c]; ok {
						st.staged = chunk
						c.OnReadable()
					}
				})
				<-done
			}
			if err != nil {
				t.rt.Submit(func() {
					if st, ok := t.socks[c]; ok {
						st.lastErr = err
						c.OnReadable() // surfaces the error through the next Recv call
					}
				})
				return
			}
		}
	}()
}

func (t *Transport) Send(c *core.Connection, lines [][]byte) (int, bool, error) {
	st, ok := t.socks[c]
	if !ok {
		return 0, false, fmt.Errorf("iauth/adapter: send on unknown connection")
	}
	n := 0
	for _, line := range lines {
		if _, err := st.conn.Write(line); err != nil {
			return n, false, err
		}
		n++
	}
	return n, false, nil
}

func (t *Transport) Recv(c *core.Connection, buf []byte) (int, error) {
	st, ok := t.socks[c]
	if !ok {
		return 0, fmt.Errorf("iauth/adapter: recv on unknown connection")
	}
	if len(st.staged) == 0 {
		if st.lastErr != nil {
			return 0, st.lastErr
		}
		return 0, nil
	}
	n := copy(buf, st.staged)
	st.staged = st.staged[n:]
	return n, nil
}

func (t *Transport) Close(c *core.Connection) error {
	st, ok := t.socks[c]
	if !ok {
		return nil
	}
	delete(t.socks, c)
	return st.conn.Close()
}
