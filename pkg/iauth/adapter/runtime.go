// Package adapter wires pkg/iauth/core's single-threaded state machine to
// real sockets, real DNS, and real timers. Every core.Connection method is
// reachable only from the pump goroutine started by Run, so the core
// itself never needs a lock: concurrency lives entirely in this package,
// the way the teacher's client.Run/handleStream goroutines carry the
// concurrency for a synchronous yamux session underneath them.
package adapter

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/brookline/iauth/pkg/iauth/core"
)

// job is a closure queued onto the pump. Every call into core passes
// through exactly one of these, so core never observes concurrent calls.
type job func()

// Runtime implements core.EventLoop and bridges real goroutines (socket
// readers/writers, DNS lookups, timers) back onto a single pump goroutine.
type Runtime struct {
	Logger *slog.Logger

	pump   chan job
	group  *errgroup.Group
	ctx    context.Context
	cancel context.CancelFunc

	timers map[core.TimerHandle]*time.Timer
	nextID uint64
}

// NewRuntime constructs a Runtime. Its context is live immediately, so
// Submit/SubmitWait may safely be called before Run starts the pump loop;
// queued jobs simply wait in the channel until Run begins draining it.
func NewRuntime(logger *slog.Logger) *Runtime {
	ctx, cancel := context.WithCancel(context.Background())
	return &Runtime{
		Logger: logger,
		pump:   make(chan job, 64),
		ctx:    ctx,
		cancel: cancel,
		timers: map[core.TimerHandle]*time.Timer{},
	}
}

// Run links external to cancel this runtime, then drains the pump until
// canceled. Callers typically run this in its own goroutine and use
// Submit/SubmitWait to drive the registry from elsewhere.
func (rt *Runtime) Run(external context.Context) error {
	group, ctx := errgroup.WithContext(rt.ctx)
	rt.group = group

	group.Go(func() error {
		select {
		case <-external.Done():
			rt.cancel()
			return external.Err()
		case <-ctx.Done():
			return ctx.Err()
		}
	})

	group.Go(func() error {
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case j := <-rt.pump:
				j()
			}
		}
	})

	return group.Wait()
}

// Stop cancels the pump loop.
func (rt *Runtime) Stop() {
	if rt.cancel != nil {
		rt.cancel()
	}
}

// Submit queues j to run on the pump goroutine; j runs asynchronously with
// respect to Submit's return. Submit blocks only while the pump's 64-slot
// queue is full, and returns without queuing j once the runtime is canceled.
func (rt *Runtime) Submit(j job) {
	select {
	case rt.pump <- j:
	case <-rt.ctx.Done():
	}
}

// result pairs a value with an error so SubmitWait can deliver both over
// one channel.
type result[T any] struct {
	val T
	err error
}

// SubmitWait queues f and blocks until it has run on the pump goroutine,
// returning whatever it computed. Used by code driving the registry (e.g.
// the demo CLI) to call StartClient/ExitClient/ConnectOrUpdate safely from
// outside the pump goroutine.
func SubmitWait[T any](rt *Runtime, f func() (T, error)) (T, error) {
	done := make(chan result[T], 1)
	rt.Submit(func() {
		v, err := f()
		done <- result[T]{val: v, err: err}
	})
	select {
	case r := <-done:
		return r.val, r.err
	case <-rt.ctx.Done():
		var zero T
		return zero, rt.ctx.Err()
	}
}

// Register is a no-op: this adapter's Transport drives reads and writes
// with dedicated goroutines rather than readiness polling, so there is no
// separate interest set to track. It exists to satisfy core.EventLoop.
func (rt *Runtime) Register(c *core.Connection, readable, writable bool) {}

// Unregister is likewise a no-op for the same reason.
func (rt *Runtime) Unregister(c *core.Connection) {}

// ArmTimer starts a real time.Timer whose firing is delivered back onto
// the pump as a job calling c.OnTimerExpire.
func (rt *Runtime) ArmTimer(kind core.TimerKind, c *core.Connection, d time.Duration) core.TimerHandle {
	rt.nextID++
	id := rt.nextID
	t := time.AfterFunc(d, func() {
		rt.Submit(func() {
			if _, ok := rt.timers[id]; ok {
				delete(rt.timers, id)
				c.OnTimerExpire(kind)
			}
		})
	})
	rt.timers[id] = t
	return id
}

// CancelTimer stops a timer armed by ArmTimer. It is a no-op if the timer
// already fired or was already canceled.
func (rt *Runtime) CancelTimer(h core.TimerHandle) {
	id, ok := h.(uint64)
	if !ok {
		return
	}
	if t, ok := rt.timers[id]; ok {
		t.Stop()
		delete(rt.timers, id)
	}
}
