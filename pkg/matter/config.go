package matter

import (
	"net"

	"github.com/benbjohnson/clock"
	"github.com/pion/logging"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/backkem/matter-core/pkg/config"
	"github.com/backkem/matter-core/pkg/crypto"
	"github.com/backkem/matter-core/pkg/im"
	"github.com/backkem/matter-core/pkg/session"
)

// NodeConfig holds everything NewNode needs. Only Config is required.
type NodeConfig struct {
	// Config sizes the pools and names the listen address.
	Config config.Config

	// LocalNodeID is the operational node id of this node.
	LocalNodeID uint64

	// Conn replaces the socket opened on Config.ListenAddress, e.g. with
	// one end of a transport.Pipe.
	Conn net.PacketConn

	// Source answers incoming Read Requests. Optional.
	Source im.AttributeSource

	// GroupKeys enables group sessions. Optional.
	GroupKeys crypto.GroupKeyProvider

	// OnSessionEstablished is told about sessions a peer paired into
	// through OpenPairingWindow. It runs with the stack lock held.
	OnSessionEstablished func(s *session.Session)

	// Clock drives every timer. Nil selects the wall clock.
	Clock clock.Clock

	// Registerer receives the exchange and IM metrics. Optional.
	Registerer prometheus.Registerer

	// LoggerFactory defaults to one logging at Config.LogLevel.
	LoggerFactory logging.LoggerFactory
}

func (c *NodeConfig) applyDefaults() {
	if c.LoggerFactory == nil {
		c.LoggerFactory = c.Config.LoggerFactory()
	}
	if c.Clock == nil {
		c.Clock = clock.New()
	}
}
