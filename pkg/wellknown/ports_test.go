package wellknown

import (
	"testing"
)

func TestGetServiceReturnsDNSAliases(t *testing.T) {
	// This test ensures DNS aliases map to the expected port/protocol entries.
	entries, ok := GetService("dns")
	if !ok {
		t.Fatalf("expected dns to be present in well-known service registry")
	}
	if !containsPort(entries, 53, TCP) || !containsPort(entries, 53, UDP) {
		t.Fatalf("expected DNS to include port 53 over tcp and udp, got %#v", entries)
	}
}

func TestRoleServiceNamesResolveToTCPPorts(t *testing.T) {
	// This test pins the ports behind every service name a role can declare.
	want := map[string]uint16{
		SSH:        22,
		HTTP:       80,
		HTTPS:      443,
		MariaDB:    3306,
		PostgreSQL: 5432,
	}
	for name, port := range want {
		got, ok := TCPPort(name)
		if !ok {
			t.Fatalf("expected %s to be registered", name)
		}
		if got != port {
			t.Errorf("expected %s on port %d, got %d", name, port, got)
		}
	}
}

func TestTCPPortIgnoresUDPOnlyServices(t *testing.T) {
	// This test confirms a UDP-only service has no TCP port.
	if _, ok := GetService("ntp"); !ok {
		t.Fatalf("expected ntp to be registered")
	}
	if _, ok := TCPPort("ntp"); ok {
		t.Fatalf("expected ntp to have no tcp port")
	}
}

func TestGetServiceReturnsFalseForUnknown(t *testing.T) {
	// This test validates the registry returns false for unknown services.
	_, ok := GetService("definitely-not-a-service")
	if ok {
		t.Fatalf("expected unknown service to return ok=false")
	}
}

func TestMustTCPPortPanicsForUnknown(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatalf("expected panic for unknown service")
		}
	}()
	MustTCPPort("definitely-not-a-service")
}

func containsPort(entries []ServiceEntry, port uint16, protocol Protocol) bool {
	// Helper keeps entry inspection readable for multiple service assertions.
	for _, entry := range entries {
		if entry.Port == port && entry.Protocol == protocol {
			return true
		}
	}
	return false
}
