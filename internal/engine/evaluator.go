package engine

import (
	"context"
	"log/slog"
	"net"
	"strconv"
	"time"

	"port-policy-auditor/internal/model"
)

// DefaultProbeTimeout bounds a single TCP connect.
const DefaultProbeTimeout = time.Second

// Prober reports whether address:port accepted a TCP connection.
type Prober interface {
	Accepts(ctx context.Context, address net.IPAddr, port uint16) bool
}

// DialFunc matches (*net.Dialer).DialContext so tests can stand in for a peer.
type DialFunc func(ctx context.Context, network, address string) (net.Conn, error)

// TCPProber completes a three-way handshake and closes the connection at once.
// Nothing is written or read. A connect still pending after Timeout counts as
// not accepted, the same as a refusal.
type TCPProber struct {
	Timeout time.Duration
	Dial    DialFunc
}

func NewTCPProber(timeout time.Duration) *TCPProber {
	if timeout <= 0 {
		timeout = DefaultProbeTimeout
	}
	return &TCPProber{
		Timeout: timeout,
		Dial:    (&net.Dialer{}).DialContext,
	}
}

func (p *TCPProber) Accepts(ctx context.Context, address net.IPAddr, port uint16) bool {
	target := net.JoinHostPort(address.String(), strconv.Itoa(int(port)))
	dial := p.Dial
	if dial == nil {
		dial = (&net.Dialer{}).DialContext
	}
	if p.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.Timeout)
		defer cancel()
	}

	start := time.Now()
	conn, err := dial(ctx, "tcp", target)
	if err != nil {
		slog.Debug("Connect failed", "target", target, "rtt", time.Since(start), "error", err)
		return false
	}
	_ = conn.Close()
	slog.Debug("Connect succeeded", "target", target, "rtt", time.Since(start))
	return true
}

// Evaluator probes one port and classifies the outcome against its expectation.
type Evaluator struct {
	prober Prober
}

func NewEvaluator(prober Prober) *Evaluator {
	return &Evaluator{prober: prober}
}

func (e *Evaluator) Evaluate(ctx context.Context, address net.IPAddr, port uint16, expected bool) model.Verdict {
	return model.Classify(e.prober.Accepts(ctx, address, port), expected)
}
