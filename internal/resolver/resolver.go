package resolver

import (
	"context"
	"fmt"
	"net"
	"strings"
	"time"
)

// DefaultLookupTimeout bounds a single name lookup.
const DefaultLookupTimeout = 5 * time.Second

// ResolutionError reports a server name that did not resolve to any address.
type ResolutionError struct {
	Name string
	Err  error
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("resolve %s: %v", e.Name, e.Err)
}

func (e *ResolutionError) Unwrap() error {
	return e.Err
}

// LookupFunc matches (*net.Resolver).LookupIPAddr so tests can inject answers.
type LookupFunc func(ctx context.Context, host string) ([]net.IPAddr, error)

// DNSResolver resolves a server name to the first address the system resolver
// returns. Lookups are not retried.
type DNSResolver struct {
	Timeout time.Duration
	Lookup  LookupFunc
}

func New(timeout time.Duration) *DNSResolver {
	if timeout <= 0 {
		timeout = DefaultLookupTimeout
	}
	return &DNSResolver{
		Timeout: timeout,
		Lookup:  net.DefaultResolver.LookupIPAddr,
	}
}

// Resolve returns name's first address, zone included, so link-local answers
// stay dialable. Literal IPs (with an optional %zone) are returned as-is.
func (r *DNSResolver) Resolve(ctx context.Context, name string) (net.IPAddr, error) {
	host, zone, _ := strings.Cut(name, "%")
	if ip := net.ParseIP(host); ip != nil {
		return net.IPAddr{IP: ip, Zone: zone}, nil
	}

	lookup := r.Lookup
	if lookup == nil {
		lookup = net.DefaultResolver.LookupIPAddr
	}
	if r.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.Timeout)
		defer cancel()
	}

	addrs, err := lookup(ctx, name)
	if err != nil {
		return net.IPAddr{}, &ResolutionError{Name: name, Err: err}
	}
	if len(addrs) == 0 {
		return net.IPAddr{}, &ResolutionError{Name: name, Err: fmt.Errorf("no addresses found for %s", name)}
	}
	return addrs[0], nil
}
