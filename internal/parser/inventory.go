package parser

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"

	"port-policy-auditor/internal/model"
	"port-policy-auditor/internal/utils"
)

// DefaultMaxHosts caps how many servers one CIDR entry may expand to.
const DefaultMaxHosts = 1024

type inventoryFile struct {
	Roles []model.Role `yaml:"roles"`
}

// ParseInventory reads roles from YAML. The document is either a list of roles
// or a mapping with a "roles" key.
func ParseInventory(r io.Reader) ([]model.Role, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("could not read inventory: %w", err)
	}

	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("could not parse inventory: %w", err)
	}
	if len(doc.Content) == 0 {
		return nil, errors.New("inventory is empty")
	}

	var roles []model.Role
	root := doc.Content[0]
	switch root.Kind {
	case yaml.SequenceNode:
		err = root.Decode(&roles)
	case yaml.MappingNode:
		var file inventoryFile
		err = root.Decode(&file)
		roles = file.Roles
	default:
		return nil, fmt.Errorf("inventory must be a list of roles or a mapping with 'roles', got line %d", root.Line)
	}
	if err != nil {
		return nil, fmt.Errorf("could not decode roles: %w", err)
	}

	if err := validateRoles(roles); err != nil {
		return nil, err
	}
	return roles, nil
}

func validateRoles(roles []model.Role) error {
	seen := make(map[string]bool, len(roles))
	for i, role := range roles {
		if strings.TrimSpace(role.Name) == "" {
			return fmt.Errorf("role #%d has no name", i+1)
		}
		if seen[role.Name] {
			return fmt.Errorf("role '%s' is declared twice", role.Name)
		}
		seen[role.Name] = true
		for j, server := range role.Servers {
			if strings.TrimSpace(server) == "" {
				return fmt.Errorf("role '%s': server #%d is empty", role.Name, j+1)
			}
		}
	}
	return nil
}

// ExpandServers replaces CIDR server entries with one entry per address. Blocks
// larger than maxHosts are rejected.
func ExpandServers(roles []model.Role, maxHosts uint64) ([]model.Role, error) {
	expanded := make([]model.Role, 0, len(roles))
	for _, role := range roles {
		servers := make([]string, 0, len(role.Servers))
		for _, server := range role.Servers {
			if !strings.Contains(server, "/") {
				servers = append(servers, server)
				continue
			}
			_, cidr, err := net.ParseCIDR(server)
			if err != nil {
				return nil, fmt.Errorf("role '%s': invalid server block '%s': %w", role.Name, server, err)
			}
			if size := utils.CIDRSize(cidr); size > maxHosts {
				return nil, fmt.Errorf("role '%s': server block %s has %d addresses, limit is %d", role.Name, server, size, maxHosts)
			}
			ips := utils.ExpandCIDR(cidr)
			for _, ip := range ips {
				servers = append(servers, ip.String())
			}
			slog.Debug("Expanded server block", "role", role.Name, "block", server, "addresses", len(ips))
		}
		role.Servers = servers
		expanded = append(expanded, role)
	}
	return expanded, nil
}

// SelectRoles keeps only the named roles, in inventory order. An empty filter
// keeps everything; a name that matches no role is an error.
func SelectRoles(roles []model.Role, names []string) ([]model.Role, error) {
	if len(names) == 0 {
		return roles, nil
	}
	var selected []model.Role
	for _, role := range roles {
		if slices.Contains(names, role.Name) {
			selected = append(selected, role)
		}
	}
	for _, name := range names {
		if !slices.ContainsFunc(selected, func(r model.Role) bool { return r.Name == name }) {
			return nil, fmt.Errorf("role '%s' not found in inventory", name)
		}
	}
	return selected, nil
}
