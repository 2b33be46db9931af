package utils

import (
	"math"
	"net"
)

// Inc increments an IP address.
func Inc(ip net.IP) {
	for j := len(ip) - 1; j >= 0; j-- {
		ip[j]++
		if ip[j] > 0 {
			break
		}
	}
}

// CIDRSize returns the number of addresses in a CIDR network, saturating at
// math.MaxUint64 for very large IPv6 prefixes.
func CIDRSize(cidr *net.IPNet) uint64 {
	ones, bits := cidr.Mask.Size()
	if bits-ones >= 64 {
		return math.MaxUint64
	}
	return 1 << (bits - ones)
}

// ExpandCIDR lists every address in cidr, network and broadcast included.
func ExpandCIDR(cidr *net.IPNet) []net.IP {
	var ips []net.IP
	for ip := cidr.IP.Mask(cidr.Mask); cidr.Contains(ip); Inc(ip) {
		ipCopy := make(net.IP, len(ip))
		copy(ipCopy, ip)
		ips = append(ips, ipCopy)
	}
	return ips
}
