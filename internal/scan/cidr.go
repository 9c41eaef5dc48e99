package scan

import (
	"encoding/binary"
	"fmt"
	"net"
)

// ExpandCIDR converts CIDR notation to the list of host addresses it
// contains. A bare IP expands to itself. Network and broadcast addresses
// are skipped for /24 and wider ranges, and maxHosts guards against
// accidentally sweeping an enormous range.
func ExpandCIDR(cidr string, maxHosts int) ([]string, error) {
	_, ipNet, err := net.ParseCIDR(cidr)
	if err != nil {
		// Try parsing as single IP
		ip := net.ParseIP(cidr)
		if ip != nil {
			return []string{ip.String()}, nil
		}
		return nil, err
	}

	ip := ipNet.IP.To4()
	if ip == nil {
		return nil, fmt.Errorf("only IPv4 ranges supported")
	}

	mask := ipNet.Mask
	networkInt := binary.BigEndian.Uint32(ip)
	maskInt := binary.BigEndian.Uint32(mask)

	firstIP := networkInt & maskInt
	lastIP := firstIP | ^maskInt

	ones, bits := mask.Size()
	if ones <= 24 && bits == 32 {
		firstIP++
		lastIP--
	}

	if maxHosts > 0 && lastIP-firstIP+1 > uint32(maxHosts) {
		return nil, fmt.Errorf("range expands to %d hosts (max %d)", lastIP-firstIP+1, maxHosts)
	}

	ips := make([]string, 0, lastIP-firstIP+1)
	for i := firstIP; i <= lastIP; i++ {
		ipBytes := make([]byte, 4)
		binary.BigEndian.PutUint32(ipBytes, i)
		ips = append(ips, net.IP(ipBytes).String())
	}

	return ips, nil
}
