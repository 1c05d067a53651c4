package adapter

import (
	"context"
	"net"
)

// Resolver resolves hostnames with the standard library's resolver on a
// background goroutine, delivering the result back onto the pump.
type Resolver struct {
	rt *Runtime
}

// NewResolver returns a core.Resolver backed by net.DefaultResolver.
func NewResolver(rt *Runtime) *Resolver {
	return &Resolver{rt: rt}
}

func (r *Resolver) Resolve(host string, cb func(ip net.IP, err error)) {
	go func() {
		addrs, err := net.DefaultResolver.LookupIPAddr(context.Background(), host)
		r.rt.Submit(func() {
			if err != nil {
				cb(nil, err)
				return
			}
			if len(addrs) == 0 {
				cb(nil, &net.DNSError{Err: "no addresses found", Name: host})
				return
			}
			cb(addrs[0].IP, nil)
		})
	}()
}
