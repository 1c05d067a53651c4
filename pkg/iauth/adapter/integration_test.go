package adapter

import (
	"bufio"
	"context"
	"io"
	"log/slog"
	"net"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/brookline/iauth/pkg/iauth/core"
)

// fakeAuthority is a minimal stand-in for the real iauth daemon: it accepts
// one connection, reads the greeting and the FullAuth request, and replies
// with a canned DoneAuth verdict. Failures here are logged rather than
// asserted, since this runs on its own goroutine; a failure simply leaves
// the client unauthorized and the test's own deadline loop reports that.
func fakeAuthority(t *testing.T, ln net.Listener, verdict func(id string) string) {
	conn, err := ln.Accept()
	if err != nil {
		t.Logf("fakeAuthority: accept: %v", err)
		return
	}
	defer conn.Close()

	r := bufio.NewReader(conn)

	greeting, err := r.ReadString('\n')
	if err != nil || !strings.HasPrefix(greeting, "Server ") {
		t.Logf("fakeAuthority: bad greeting %q (err=%v)", greeting, err)
		return
	}

	line, err := r.ReadString('\n')
	if err != nil {
		t.Logf("fakeAuthority: read FullAuth: %v", err)
		return
	}
	fields := strings.Fields(line)
	if len(fields) < 2 || fields[0] != "FullAuth" {
		t.Logf("fakeAuthority: unexpected line %q", line)
		return
	}
	id := fields[1]

	if _, err := conn.Write([]byte(verdict(id) + "\r\n")); err != nil {
		t.Logf("fakeAuthority: write verdict: %v", err)
		return
	}

	// Keep the connection open briefly so the client has time to process
	// the reply before the listener goroutine tears it down.
	time.Sleep(100 * time.Millisecond)
}

func TestAdapterEndToEndAuthorizes(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	host, portStr, err := net.SplitHostPort(ln.Addr().String())
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)

	go fakeAuthority(t, ln, func(id string) string {
		return "DoneAuth " + id + " alice host.example oper acctname"
	})

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	rt := NewRuntime(logger)

	reg, err := core.NewRegistry(core.RegistryConfig{ServerName: "hub.example"}, core.Collaborators{
		EventLoop:      rt,
		Resolver:       NewResolver(rt),
		Transport:      NewTransport(rt),
		Registration:   &LogRegistration{Logger: logger},
		OperatorNotify: &LogOperatorNotify{Logger: logger},
		Logger:         logger,
	})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	go rt.Run(ctx)

	_, err = SubmitWait(rt, func() (*core.Connection, error) {
		return reg.ConnectOrUpdate(core.ConnConfig{
			Host:           host,
			Port:           uint16(port),
			ReconnectDelay: time.Second,
			RequestTimeout: 2 * time.Second,
		})
	})
	require.NoError(t, err)

	cl := NewDemoClient("alice", "alice", "203.0.113.9", "", "Alice A")
	_, err = SubmitWait(rt, func() (core.RequestHandle, error) {
		return reg.StartClient(cl)
	})
	require.NoError(t, err)

	deadline := time.After(3 * time.Second)
	for !cl.Authorized() {
		select {
		case <-deadline:
			t.Fatal("timed out waiting for authorization")
		case <-time.After(10 * time.Millisecond):
		}
	}

	require.Equal(t, "alice", cl.ResolvedUsername())
	require.Equal(t, "host.example", cl.ResolvedHost())
	require.Equal(t, "acctname", cl.Account())
}
