package model

import (
	"maps"
	"slices"
)

// FleetReport is the ordered result of one run across every role and server.
type FleetReport struct {
	Roles      []RoleReport
	Violations []Violation
}

// NewFleetReport derives the violation list from roles, keeping role and server
// order and sorting ports within a server.
func NewFleetReport(roles []RoleReport) *FleetReport {
	report := &FleetReport{Roles: roles}
	for _, role := range roles {
		for _, result := range role.Servers {
			server, ok := result.(*ServerReport)
			if !ok {
				continue
			}
			for _, port := range slices.Sorted(maps.Keys(server.Verdicts)) {
				verdict := server.Verdicts[port]
				if !verdict.IsViolation() {
					continue
				}
				report.Violations = append(report.Violations, Violation{
					Role:     role.Name,
					Address:  server.Address,
					Server:   server.Name,
					Port:     port,
					Expected: verdict.Expected,
					Actual:   verdict.Actual,
				})
			}
		}
	}
	return report
}

// AllPorts returns the sorted union of every role's policy ports.
func (f *FleetReport) AllPorts() []uint16 {
	seen := make(map[uint16]struct{})
	for _, role := range f.Roles {
		for port := range role.Policy {
			seen[port] = struct{}{}
		}
	}
	return slices.Sorted(maps.Keys(seen))
}

// VerdictFor returns the verdict a server got for port, or NotApplicable when
// the port is outside its policy or the server was never probed.
func VerdictFor(result ServerResult, port uint16) Verdict {
	server, ok := result.(*ServerReport)
	if !ok {
		return NotApplicableVerdict()
	}
	if verdict, ok := server.Verdicts[port]; ok {
		return verdict
	}
	return NotApplicableVerdict()
}

func (f *FleetReport) Unresolved() []*UnresolvedServer {
	var unresolved []*UnresolvedServer
	for _, role := range f.Roles {
		for _, result := range role.Servers {
			if u, ok := result.(*UnresolvedServer); ok {
				unresolved = append(unresolved, u)
			}
		}
	}
	return unresolved
}

// Failures counts violations plus servers that could not be resolved.
func (f *FleetReport) Failures() int {
	return len(f.Violations) + len(f.Unresolved())
}
