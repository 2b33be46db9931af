package engine

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/semaphore"

	"port-policy-auditor/internal/model"
)

// DefaultMaxSockets caps probes in flight across the whole run.
const DefaultMaxSockets = 256

// ConsistencyError means the fan-in did not receive exactly one verdict per
// policy port. It is a coordination bug and must abort the run.
type ConsistencyError struct {
	Server     string
	Dispatched int
	Collected  int
	Detail     string
}

func (e *ConsistencyError) Error() string {
	return fmt.Sprintf("internal consistency fault for %s: dispatched %d probes, collected %d results: %s",
		e.Server, e.Dispatched, e.Collected, e.Detail)
}

type portResult struct {
	port    uint16
	verdict model.Verdict
}

// Coordinator checks every port of one server's policy concurrently. Sockets
// are limited fleet-wide by a shared semaphore.
type Coordinator struct {
	evaluator *Evaluator
	sockets   *semaphore.Weighted
	completed atomic.Uint64
}

func NewCoordinator(evaluator *Evaluator, maxSockets int64) *Coordinator {
	if maxSockets <= 0 {
		maxSockets = DefaultMaxSockets
	}
	return &Coordinator{
		evaluator: evaluator,
		sockets:   semaphore.NewWeighted(maxSockets),
	}
}

// Completed returns the number of probes finished so far.
func (c *Coordinator) Completed() uint64 {
	return c.completed.Load()
}

// CheckServer returns a report holding exactly one verdict per policy port. It
// blocks until every dispatched probe has reported. ctx only gates waiting for a
// socket slot; probes already running finish on their own timeout.
func (c *Coordinator) CheckServer(ctx context.Context, name string, address net.IPAddr, policy model.PortPolicy) (*model.ServerReport, error) {
	ports := policy.Ports()
	results := make(chan portResult, len(ports))
	probeCtx := context.WithoutCancel(ctx)

	var wg sync.WaitGroup
	dispatched := 0
	for _, port := range ports {
		if err := c.sockets.Acquire(ctx, 1); err != nil {
			wg.Wait()
			return nil, fmt.Errorf("check %s port %d: %w", name, port, err)
		}
		dispatched++
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer c.sockets.Release(1)
			verdict := c.evaluator.Evaluate(probeCtx, address, port, policy[port])
			c.completed.Add(1)
			results <- portResult{port: port, verdict: verdict}
		}()
	}

	collected := make([]portResult, 0, dispatched)
	for range dispatched {
		collected = append(collected, <-results)
	}

	report, err := assemble(name, address, policy, collected)
	if err != nil {
		return nil, err
	}
	slog.Debug("Server checked", "server", name, "address", address.String(), "ports", len(report.Verdicts))
	return report, nil
}

// assemble builds the port->verdict map and fails if results do not cover the
// policy exactly once.
func assemble(name string, address net.IPAddr, policy model.PortPolicy, results []portResult) (*model.ServerReport, error) {
	fault := func(detail string) error {
		return &ConsistencyError{Server: name, Dispatched: len(policy), Collected: len(results), Detail: detail}
	}
	if len(results) != len(policy) {
		return nil, fault("result count does not match policy size")
	}

	verdicts := make(map[uint16]model.Verdict, len(results))
	for _, r := range results {
		if _, ok := policy[r.port]; !ok {
			return nil, fault(fmt.Sprintf("port %d is not in the policy", r.port))
		}
		if _, dup := verdicts[r.port]; dup {
			return nil, fault(fmt.Sprintf("port %d reported twice", r.port))
		}
		verdicts[r.port] = r.verdict
	}

	return &model.ServerReport{
		Address:  address,
		Name:     name,
		Verdicts: verdicts,
	}, nil
}
