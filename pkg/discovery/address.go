package discovery

import (
	"encoding/binary"
	"fmt"
	"net"
	"net/netip"
	"sort"
	"strconv"
)

const (
	// ServiceOperational is the DNS-SD service of commissioned nodes.
	ServiceOperational = "_matter._tcp"
	DefaultDomain      = "local."
)

// OperationalInstanceName returns "<CompressedFabricID>-<NodeID>", each
// as 16 uppercase hex digits.
func OperationalInstanceName(compressedFabricID [8]byte, nodeID uint64) string {
	return fmt.Sprintf("%016X-%016X", binary.BigEndian.Uint64(compressedFabricID[:]), nodeID)
}

// ParseOperationalInstanceName is the inverse of OperationalInstanceName.
// Lowercase hex digits are accepted.
func ParseOperationalInstanceName(name string) ([8]byte, uint64, error) {
	var cfid [8]byte
	if len(name) != 33 || name[16] != '-' {
		return cfid, 0, ErrInvalidInstanceName
	}
	f, err := strconv.ParseUint(name[:16], 16, 64)
	if err != nil {
		return cfid, 0, ErrInvalidInstanceName
	}
	n, err := strconv.ParseUint(name[17:], 16, 64)
	if err != nil {
		return cfid, 0, ErrInvalidInstanceName
	}
	binary.BigEndian.PutUint64(cfid[:], f)
	return cfid, n, nil
}

// sortByPreference orders IPv6 global, then ULA, then link-local, then
// IPv4. Loopback and multicast addresses sort last.
func sortByPreference(ips []netip.Addr) {
	sort.SliceStable(ips, func(i, j int) bool {
		return ipPriority(ips[i]) < ipPriority(ips[j])
	})
}

func ipPriority(ip netip.Addr) int {
	switch {
	case !ip.IsValid():
		return 99
	case ip.IsMulticast():
		return 90
	case ip.IsLoopback():
		return 80
	case ip.Is4():
		return 50
	case ip.IsPrivate():
		return 1
	case ip.IsGlobalUnicast():
		return 0
	case ip.IsLinkLocalUnicast():
		return 2
	}
	return 10
}

// collectIPs converts zeroconf's address lists, dropping unparsable ones.
func collectIPs(lists ...[]net.IP) []netip.Addr {
	var out []netip.Addr
	for _, l := range lists {
		for _, ip := range l {
			a, ok := netip.AddrFromSlice(ip)
			if !ok {
				continue
			}
			out = append(out, a.Unmap())
		}
	}
	return out
}
