package engine

import (
	"context"
	"log/slog"
	"net"
	"runtime"

	"golang.org/x/sync/errgroup"

	"port-policy-auditor/internal/model"
)

// Resolver turns a server name into a single address.
type Resolver interface {
	Resolve(ctx context.Context, name string) (net.IPAddr, error)
}

// Runner walks every role and server and gathers a FleetReport. Servers are
// checked concurrently but reported in declaration order.
type Runner struct {
	resolver    Resolver
	coordinator *Coordinator
	workers     int
}

func NewRunner(resolver Resolver, coordinator *Coordinator, workers int) *Runner {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	return &Runner{
		resolver:    resolver,
		coordinator: coordinator,
		workers:     workers,
	}
}

// Completed returns the number of probes finished so far.
func (r *Runner) Completed() uint64 {
	return r.coordinator.Completed()
}

// Run never stops early for unresolved servers or violations. It only returns
// an error for a consistency fault or when ctx ends before all probes started.
func (r *Runner) Run(ctx context.Context, roles []model.Role) (*model.FleetReport, error) {
	reports := make([]model.RoleReport, len(roles))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.workers)

	for i, role := range roles {
		policy := role.Policy()
		reports[i] = model.RoleReport{
			Name:    role.Name,
			Policy:  policy,
			Servers: make([]model.ServerResult, len(role.Servers)),
		}
		slog.Info("Checking role", "role", role.Name, "servers", len(role.Servers), "ports", len(policy))

		for j, name := range role.Servers {
			slot := &reports[i].Servers[j]
			g.Go(func() error {
				result, err := r.checkServer(gctx, name, policy)
				if err != nil {
					return err
				}
				*slot = result
				return nil
			})
		}
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	report := model.NewFleetReport(reports)
	slog.Info("Fleet checked", "roles", len(roles), "violations", len(report.Violations), "unresolved", len(report.Unresolved()))
	return report, nil
}

func (r *Runner) checkServer(ctx context.Context, name string, policy model.PortPolicy) (model.ServerResult, error) {
	address, err := r.resolver.Resolve(ctx, name)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		slog.Warn("Server did not resolve, skipping its ports", "server", name, "error", err)
		return &model.UnresolvedServer{Name: name, Err: err}, nil
	}

	report, err := r.coordinator.CheckServer(ctx, name, address, policy)
	if err != nil {
		return nil, err
	}
	return report, nil
}
