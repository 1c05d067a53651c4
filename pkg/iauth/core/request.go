package core

import "strings"

// request is one outstanding authorization query for one client. It is
// reachable from exactly one connection's requestList at a time; conn
// tracks that owning connection directly so ExitClient can dispose a
// request through its actual owner even if the registry's active
// connection has since changed (see DESIGN.md's note on this open
// question).
type request struct {
	prev, next *request
	client     Client
	conn       *Connection
	id         string
	timed      bool
	sent       bool
}

// requestList is an intrusive doubly-linked list with a sentinel head, so
// append, remove, and splice-onto-another-list are all O(1).
type requestList struct {
	sentinel request
}

func (l *requestList) init() {
	l.sentinel.next = &l.sentinel
	l.sentinel.prev = &l.sentinel
}

func (l *requestList) empty() bool {
	return l.sentinel.next == &l.sentinel
}

func (l *requestList) pushBack(r *request) {
	r.prev = l.sentinel.prev
	r.next = &l.sentinel
	l.sentinel.prev.next = r
	l.sentinel.prev = r
}

// unlink removes r from whatever list it is currently linked into. It is
// a no-op if called twice.
func (r *request) unlink() {
	if r.prev == nil && r.next == nil {
		return
	}
	r.prev.next = r.next
	r.next.prev = r.prev
	r.prev, r.next = nil, nil
}

func (l *requestList) findByID(id string) *request {
	for r := l.sentinel.next; r != &l.sentinel; r = r.next {
		if strings.EqualFold(r.id, id) {
			return r
		}
	}
	return nil
}

// all returns a snapshot slice of the list's requests in order, safe to
// range over while mutating the list itself (e.g. disposing entries).
func (l *requestList) all() []*request {
	var out []*request
	for r := l.sentinel.next; r != &l.sentinel; r = r.next {
		out = append(out, r)
	}
	return out
}

// spliceOnto moves every request in l onto the tail of dst, preserving
// order, and leaves l empty.
func (l *requestList) spliceOnto(dst *requestList) {
	if l.empty() {
		return
	}
	first := l.sentinel.next
	last := l.sentinel.prev

	dst.sentinel.prev.next = first
	first.prev = dst.sentinel.prev
	last.next = &dst.sentinel
	dst.sentinel.prev = last

	l.init()
}
