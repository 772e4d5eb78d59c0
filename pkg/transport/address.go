package transport

import (
	"encoding/binary"
	"fmt"
	"net"
	"net/netip"
	"strings"
)

const (
	// DefaultPort is the operational UDP and TCP port.
	DefaultPort uint16 = 5540
	// MaxPeerDestinations bounds the resolved IPs kept for one peer.
	MaxPeerDestinations = 3
)

// Destination is one resolved IP for a peer, with the interface to reach
// it through. Interface is empty when any interface will do.
type Destination struct {
	IP        netip.Addr
	Interface string
}

func (d Destination) String() string {
	if d.Interface == "" {
		return d.IP.String()
	}
	return d.IP.String() + "%" + d.Interface
}

// PeerAddress identifies how to reach a peer. It is a value type: copy it
// freely. IP transports carry up to MaxPeerDestinations destinations and a
// port; other transports carry an opaque ID (BLE connection handle, NFC
// short id, Wi-Fi PAF peer id).
type PeerAddress struct {
	typ    Type
	port   uint16
	dests  [MaxPeerDestinations]Destination
	ndests int
	id     uint64
}

// UDPPeer returns the address of a UDP peer.
func UDPPeer(ip netip.Addr, port uint16, iface string) PeerAddress {
	return ipAddress(TypeUDP, ip, port, iface)
}

// TCPPeer returns the address of a TCP peer.
func TCPPeer(ip netip.Addr, port uint16, iface string) PeerAddress {
	return ipAddress(TypeTCP, ip, port, iface)
}

func ipAddress(t Type, ip netip.Addr, port uint16, iface string) PeerAddress {
	a := PeerAddress{typ: t, port: port, ndests: 1}
	a.dests[0] = Destination{IP: ip.Unmap().WithZone(""), Interface: iface}
	return a
}

// BLE returns the address of a BLE peer identified by its connection.
func BLE(conn uint64) PeerAddress { return PeerAddress{typ: TypeBLE, id: conn} }

// NFC returns the address of an NFC peer.
func NFC(shortID uint16) PeerAddress { return PeerAddress{typ: TypeNFC, id: uint64(shortID)} }

// WiFiPAF returns the address of a Wi-Fi PAF peer.
func WiFiPAF(remoteID uint64) PeerAddress { return PeerAddress{typ: TypeWiFiPAF, id: remoteID} }

// Multicast returns the UDP address of a group: the IPv6 multicast address
// FF35:0040:FD<fabric id>00:<group id> on the default port.
func Multicast(fabricID uint64, groupID uint16) PeerAddress {
	var b [16]byte
	b[0], b[1], b[2], b[3], b[4] = 0xFF, 0x35, 0x00, 0x40, 0xFD
	binary.BigEndian.PutUint64(b[5:], fabricID)
	binary.BigEndian.PutUint16(b[14:], groupID)
	return UDPPeer(netip.AddrFrom16(b), DefaultPort, "")
}

// FromNetAddr converts a received datagram source into a PeerAddress.
func FromNetAddr(addr net.Addr) (PeerAddress, error) {
	switch a := addr.(type) {
	case *net.UDPAddr:
		ap := a.AddrPort()
		return UDPPeer(ap.Addr(), ap.Port(), a.Zone), nil
	case *net.TCPAddr:
		ap := a.AddrPort()
		return TCPPeer(ap.Addr(), ap.Port(), a.Zone), nil
	}
	return PeerAddress{}, ErrInvalidAddress
}

// AppendDestination adds another resolved IP for the same peer.
func (a *PeerAddress) AppendDestination(ip netip.Addr, iface string) error {
	if !a.typ.IsIP() {
		return ErrInvalidAddress
	}
	if a.ndests == MaxPeerDestinations {
		return ErrTooManyDestinations
	}
	a.dests[a.ndests] = Destination{IP: ip.Unmap().WithZone(""), Interface: iface}
	a.ndests++
	return nil
}

func (a PeerAddress) Type() Type { return a.typ }

// IsInitialized reports whether a transport type has been set.
func (a PeerAddress) IsInitialized() bool { return a.typ != TypeUndefined }

func (a PeerAddress) Port() uint16 { return a.port }

// ID returns the opaque identifier of a non-IP peer.
func (a PeerAddress) ID() uint64 { return a.id }

// Destinations returns a copy of the destination list in append order.
func (a PeerAddress) Destinations() []Destination {
	return append([]Destination(nil), a.dests[:a.ndests]...)
}

// UDPAddr returns destination i as a socket address.
func (a PeerAddress) UDPAddr(i int) *net.UDPAddr {
	if i >= a.ndests {
		return nil
	}
	d := a.dests[i]
	return &net.UDPAddr{IP: d.IP.AsSlice(), Port: int(a.port), Zone: d.Interface}
}

// IsMulticast reports whether a UDP address targets a multicast group.
func (a PeerAddress) IsMulticast() bool {
	return a.typ == TypeUDP && a.ndests > 0 && a.dests[0].IP.IsMulticast()
}

// Equal compares transport, port and destinations in order for IP
// transports, and the opaque id otherwise.
func (a PeerAddress) Equal(b PeerAddress) bool {
	if a.typ != b.typ {
		return false
	}
	if !a.typ.IsIP() {
		return a.id == b.id
	}
	if a.port != b.port || a.ndests != b.ndests {
		return false
	}
	for i := 0; i < a.ndests; i++ {
		if a.dests[i] != b.dests[i] {
			return false
		}
	}
	return true
}

// String renders the first destination and a "+N more" suffix for the rest.
func (a PeerAddress) String() string {
	var sb strings.Builder
	sb.WriteString(a.typ.String())
	switch {
	case a.typ.IsIP():
		if a.ndests == 0 {
			sb.WriteString(":<none>")
			break
		}
		fmt.Fprintf(&sb, ":[%s]:%d", a.dests[0], a.port)
		if a.ndests > 1 {
			fmt.Fprintf(&sb, " (+%d more)", a.ndests-1)
		}
	case a.typ != TypeUndefined:
		fmt.Fprintf(&sb, ":%#x", a.id)
	}
	return sb.String()
}
