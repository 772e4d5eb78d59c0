// Package discovery resolves operational Matter nodes through DNS-SD.
package discovery

import (
	"context"
	"errors"
	"net/netip"
	"time"

	"github.com/grandcat/zeroconf"
	"github.com/pion/logging"

	"github.com/backkem/matter-core/pkg/transport"
)

// DefaultLookupTimeout applies when the caller's context has no deadline.
const DefaultLookupTimeout = 5 * time.Second

var (
	ErrServiceNotFound     = errors.New("discovery: service not found")
	ErrTimeout             = errors.New("discovery: operation timed out")
	ErrInvalidInstanceName = errors.New("discovery: invalid instance name format")
	ErrNoAddresses         = errors.New("discovery: service has no usable address")
)

// MDNSResolver looks up one service instance. Implementations deliver
// entries on the channel until ctx is done and may close it then.
type MDNSResolver interface {
	Lookup(ctx context.Context, instance, service, domain string, entries chan<- *zeroconf.ServiceEntry) error
}

// zeroconfResolver creates a fresh zeroconf client for every lookup; a
// zeroconf.Resolver shuts its sockets down once its context ends.
type zeroconfResolver struct{}

func (zeroconfResolver) Lookup(ctx context.Context, instance, service, domain string, entries chan<- *zeroconf.ServiceEntry) error {
	r, err := zeroconf.NewResolver(nil)
	if err != nil {
		return err
	}
	return r.Lookup(ctx, instance, service, domain, entries)
}

// ResolverConfig configures a Resolver.
type ResolverConfig struct {
	// MDNSResolver defaults to grandcat/zeroconf.
	MDNSResolver MDNSResolver

	// LookupTimeout defaults to DefaultLookupTimeout.
	LookupTimeout time.Duration

	// Interface scopes link-local destinations, e.g. "eth0".
	Interface string

	LoggerFactory logging.LoggerFactory
}

// Resolver turns operational instance names into peer addresses.
type Resolver struct {
	mdns    MDNSResolver
	timeout time.Duration
	iface   string
	log     logging.LeveledLogger
}

// NewResolver returns a resolver using zeroconf unless config supplies a lookup.
func NewResolver(config ResolverConfig) *Resolver {
	r := &Resolver{
		mdns:    config.MDNSResolver,
		timeout: config.LookupTimeout,
		iface:   config.Interface,
	}
	if r.mdns == nil {
		r.mdns = zeroconfResolver{}
	}
	if r.timeout == 0 {
		r.timeout = DefaultLookupTimeout
	}
	if config.LoggerFactory != nil {
		r.log = config.LoggerFactory.NewLogger("discovery")
	}
	return r
}

// ResolveNode resolves the node identified by its compressed fabric id and
// node id.
func (r *Resolver) ResolveNode(ctx context.Context, compressedFabricID [8]byte, nodeID uint64) (transport.PeerAddress, error) {
	return r.Resolve(ctx, OperationalInstanceName(compressedFabricID, nodeID))
}

// Resolve looks up the _matter._tcp instance and returns a UDP peer address
// holding its best addresses, at most transport.MaxPeerDestinations of them.
// Entries without addresses are skipped while the lookup runs.
func (r *Resolver) Resolve(ctx context.Context, instance string) (transport.PeerAddress, error) {
	if _, _, err := ParseOperationalInstanceName(instance); err != nil {
		return transport.PeerAddress{}, err
	}
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}
	lookupCtx, stop := context.WithCancel(ctx)
	defer stop()

	entries := make(chan *zeroconf.ServiceEntry, 4)
	if err := r.mdns.Lookup(lookupCtx, instance, ServiceOperational, DefaultDomain, entries); err != nil {
		return transport.PeerAddress{}, err
	}

	for {
		select {
		case e, ok := <-entries:
			if !ok {
				return transport.PeerAddress{}, ErrServiceNotFound
			}
			if e == nil || e.Instance != instance {
				continue
			}
			addr, err := r.peerAddress(e)
			if errors.Is(err, ErrNoAddresses) {
				continue
			}
			if err == nil && r.log != nil {
				r.log.Debugf("resolved %s to %s", instance, addr)
			}
			return addr, err
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return transport.PeerAddress{}, ErrTimeout
			}
			return transport.PeerAddress{}, ctx.Err()
		}
	}
}

func (r *Resolver) peerAddress(e *zeroconf.ServiceEntry) (transport.PeerAddress, error) {
	if e.Port <= 0 || e.Port > 0xFFFF {
		return transport.PeerAddress{}, ErrNoAddresses
	}
	ips := collectIPs(e.AddrIPv6, e.AddrIPv4)
	if len(ips) == 0 {
		return transport.PeerAddress{}, ErrNoAddresses
	}
	sortByPreference(ips)

	addr := transport.UDPPeer(ips[0], uint16(e.Port), r.zone(ips[0]))
	for _, ip := range ips[1:] {
		if err := addr.AppendDestination(ip, r.zone(ip)); err != nil {
			if errors.Is(err, transport.ErrTooManyDestinations) {
				break
			}
			return transport.PeerAddress{}, err
		}
	}
	return addr, nil
}

func (r *Resolver) zone(ip netip.Addr) string {
	if ip.IsLinkLocalUnicast() {
		return r.iface
	}
	return ""
}
