package wellknown

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"log"
	"strconv"
	"strings"

	_ "embed"
)

//go:embed well_known_ports.csv
var wellKnownPortsData string

type Protocol string

const (
	TCP Protocol = "tcp"
	UDP Protocol = "udp"
)

// Service names a role's services section can declare.
const (
	SSH        = "ssh"
	HTTP       = "http"
	HTTPS      = "https"
	MariaDB    = "mariadb"
	PostgreSQL = "postgresql"
)

type ServiceEntry struct {
	Protocol Protocol
	Port     uint16
}

var serviceRegistry map[string][]ServiceEntry

// aliases maps an extra lookup name onto a registry name.
var aliases = map[string]string{
	"DNS":      "DOMAIN",
	"MARIADB":  "MYSQL",
	"POSTGRES": "POSTGRESQL",
}

func init() {
	serviceRegistry = make(map[string][]ServiceEntry)
	reader := csv.NewReader(bytes.NewBufferString(wellKnownPortsData))
	reader.TrimLeadingSpace = true
	// Skip header
	if _, err := reader.Read(); err != nil {
		log.Fatalf("Failed to read header from embedded well_known_ports.csv: %v", err)
	}

	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			log.Fatalf("Failed to parse embedded well_known_ports.csv: %v", err)
		}
		if len(record) < 3 {
			continue
		}

		port, err := strconv.ParseUint(record[0], 10, 16)
		if err != nil {
			continue
		}

		register(record[1], ServiceEntry{Protocol: TCP, Port: uint16(port)})
		register(record[2], ServiceEntry{Protocol: UDP, Port: uint16(port)})
	}

	for alias, name := range aliases {
		serviceRegistry[alias] = append(serviceRegistry[alias], serviceRegistry[name]...)
	}
}

func register(name string, entry ServiceEntry) {
	name = strings.TrimSpace(name)
	if name == "" || name == "N/A" {
		return
	}
	key := strings.ToUpper(name)
	serviceRegistry[key] = append(serviceRegistry[key], entry)
}

// GetService returns the registered ports for a well-known service name.
func GetService(name string) ([]ServiceEntry, bool) {
	entry, ok := serviceRegistry[strings.ToUpper(name)]
	return entry, ok
}

// TCPPort returns the TCP port of a well-known service.
func TCPPort(name string) (uint16, bool) {
	entries, ok := GetService(name)
	if !ok {
		return 0, false
	}
	for _, entry := range entries {
		if entry.Protocol == TCP {
			return entry.Port, true
		}
	}
	return 0, false
}

// MustTCPPort is TCPPort for names compiled into the binary; an unknown name
// is a programming error.
func MustTCPPort(name string) uint16 {
	port, ok := TCPPort(name)
	if !ok {
		panic(fmt.Sprintf("wellknown: no tcp port registered for %q", name))
	}
	return port
}
