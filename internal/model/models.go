package model

import (
	"maps"
	"net"
	"slices"

	"port-policy-auditor/pkg/wellknown"
)

// PortPolicy maps a TCP port to whether it is expected to accept connections.
type PortPolicy map[uint16]bool

// Ports returns the policy's ports in ascending order.
func (p PortPolicy) Ports() []uint16 {
	return slices.Sorted(maps.Keys(p))
}

// Services is the declared service section of a role.
type Services struct {
	SSH        *bool           `yaml:"ssh,omitempty" json:"ssh,omitempty"`
	HTTP       *bool           `yaml:"http,omitempty" json:"http,omitempty"`
	HTTPS      *bool           `yaml:"https,omitempty" json:"https,omitempty"`
	MariaDB    *bool           `yaml:"mariadb,omitempty" json:"mariadb,omitempty"`
	PostgreSQL *bool           `yaml:"postgresql,omitempty" json:"postgresql,omitempty"`
	Other      map[uint16]bool `yaml:"other,omitempty" json:"other,omitempty"`
}

// Policy merges the explicit port map with the named services. Named services
// are applied after the explicit map, in a fixed order, so they win on collision.
func (s Services) Policy() PortPolicy {
	policy := make(PortPolicy, len(s.Other)+5)
	maps.Copy(policy, s.Other)

	named := []struct {
		name    string
		enabled *bool
	}{
		{wellknown.SSH, s.SSH},
		{wellknown.HTTP, s.HTTP},
		{wellknown.HTTPS, s.HTTPS},
		{wellknown.MariaDB, s.MariaDB},
		{wellknown.PostgreSQL, s.PostgreSQL},
	}
	for _, svc := range named {
		if svc.enabled == nil {
			continue
		}
		policy[wellknown.MustTCPPort(svc.name)] = *svc.enabled
	}
	return policy
}

type Role struct {
	Name     string   `yaml:"name" json:"name"`
	Servers  []string `yaml:"servers" json:"servers"`
	Services Services `yaml:"services" json:"services"`
}

func (r Role) Policy() PortPolicy {
	return r.Services.Policy()
}

// ServerResult is either a *ServerReport or an *UnresolvedServer.
type ServerResult interface {
	ServerName() string
	isServerResult()
}

// ServerReport holds one verdict per probed port of a resolved server.
type ServerReport struct {
	Address  net.IPAddr
	Name     string
	Verdicts map[uint16]Verdict
}

func (s *ServerReport) ServerName() string { return s.Name }
func (*ServerReport) isServerResult()      {}

// UnresolvedServer marks a server whose name could not be resolved. None of its
// ports are probed.
type UnresolvedServer struct {
	Name string
	Err  error
}

func (u *UnresolvedServer) ServerName() string { return u.Name }
func (*UnresolvedServer) isServerResult()      {}

type RoleReport struct {
	Name    string
	Policy  PortPolicy
	Servers []ServerResult
}

type Violation struct {
	Role     string
	Address  net.IPAddr
	Server   string
	Port     uint16
	Expected bool
	Actual   bool
}
