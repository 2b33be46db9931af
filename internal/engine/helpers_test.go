package engine

import (
	"context"
	"net"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// listenLoopback returns an accepting listener's port, closed at test cleanup.
func listenLoopback(t *testing.T) uint16 {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	t.Cleanup(func() { _ = l.Close() })
	go func() {
		for {
			conn, err := l.Accept()
			if err != nil {
				return
			}
			_ = conn.Close()
		}
	}()
	return uint16(l.Addr().(*net.TCPAddr).Port)
}

// closedLoopbackPort returns a port that was just released and refuses connections.
func closedLoopbackPort(t *testing.T) uint16 {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	port := uint16(l.Addr().(*net.TCPAddr).Port)
	_ = l.Close()
	return port
}

func ipAddr(s string) net.IPAddr {
	return net.IPAddr{IP: net.ParseIP(s)}
}

// redirectProber sends policy ports to real loopback ports so tests can use
// privileged port numbers in policies.
type redirectProber struct {
	inner Prober
	ports map[uint16]uint16
}

func (p *redirectProber) Accepts(ctx context.Context, address net.IPAddr, port uint16) bool {
	if mapped, ok := p.ports[port]; ok {
		port = mapped
	}
	return p.inner.Accepts(ctx, address, port)
}

// fakeProber answers from a table after an optional per-port delay and tracks
// peak concurrency and per-port call counts.
type fakeProber struct {
	open   map[uint16]bool
	delay  func(port uint16) time.Duration
	mu     sync.Mutex
	calls  map[uint16]int
	active atomic.Int64
	peak   atomic.Int64
}

func newFakeProber(open map[uint16]bool) *fakeProber {
	return &fakeProber{open: open, calls: make(map[uint16]int)}
}

func (p *fakeProber) Accepts(_ context.Context, _ net.IPAddr, port uint16) bool {
	n := p.active.Add(1)
	defer p.active.Add(-1)
	for {
		peak := p.peak.Load()
		if n <= peak || p.peak.CompareAndSwap(peak, n) {
			break
		}
	}

	p.mu.Lock()
	p.calls[port]++
	p.mu.Unlock()

	if p.delay != nil {
		time.Sleep(p.delay(port))
	}
	return p.open[port]
}

func (p *fakeProber) callCount(port uint16) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls[port]
}

// mapResolver resolves names from a table; anything else fails.
type mapResolver map[string]string

func (m mapResolver) Resolve(_ context.Context, name string) (net.IPAddr, error) {
	if addr, ok := m[name]; ok {
		return ipAddr(addr), nil
	}
	return net.IPAddr{}, &net.DNSError{Err: "no such host", Name: name, IsNotFound: true}
}
