package matter

import (
	"context"
	"crypto/rand"
	"net"
	"sync"

	"github.com/pion/logging"
	"go.uber.org/multierr"

	"github.com/backkem/matter-core/pkg/exchange"
	"github.com/backkem/matter-core/pkg/im"
	casesession "github.com/backkem/matter-core/pkg/securechannel/case"
	"github.com/backkem/matter-core/pkg/securechannel/pase"
	"github.com/backkem/matter-core/pkg/session"
	"github.com/backkem/matter-core/pkg/system"
	"github.com/backkem/matter-core/pkg/transport"
)

// DefaultPBKDFIterations is used by OpenPairingWindow when the caller
// passes no salt.
const DefaultPBKDFIterations = pase.PBKDFMinIterations

type pairResult struct {
	session *session.Session
	err     error
}

// Node is a running core stack. Its methods are safe for concurrent use;
// each takes the stack lock around the calls into the lower layers.
type Node struct {
	config NodeConfig
	log    logging.LeveledLogger

	mu    sync.Mutex
	state NodeState

	layer      *system.Layer
	udp        *transport.UDP
	sessions   *session.Manager
	exchanges  *exchange.Manager
	engine     *im.Engine
	pairing    *pase.Pairing
	resumption *casesession.Cache
	store      *casesession.BoltStore

	// pending receives the outcome of the PairPASE call in flight.
	// Guarded by the stack lock.
	pending chan pairResult
}

// NewNode assembles the stack. The transport does not read until Start.
func NewNode(config NodeConfig) (_ *Node, err error) {
	if err := config.Config.Validate(); err != nil {
		return nil, err
	}
	config.applyDefaults()
	lf := config.LoggerFactory
	c := config.Config

	n := &Node{
		config: config,
		state:  NodeStateInitialized,
		log:    lf.NewLogger("matter"),
	}
	defer func() {
		if err != nil {
			err = multierr.Append(err, n.release())
		}
	}()

	n.layer = system.NewLayer(system.Config{Clock: config.Clock, LoggerFactory: lf})
	n.sessions, err = session.NewManager(session.ManagerConfig{
		System:            n.layer,
		LocalNodeID:       config.LocalNodeID,
		MaxSessions:       c.MaxSecureSessions,
		MaxUnsecuredPeers: c.MaxUnsecuredPeers,
		GroupKeys:         config.GroupKeys,
		LoggerFactory:     lf,
	})
	if err != nil {
		return nil, err
	}
	n.udp, err = transport.NewUDP(transport.UDPConfig{
		Conn:           config.Conn,
		ListenAddr:     c.ListenAddress,
		MessageHandler: n.sessions.OnTransportMessage,
		LoggerFactory:  lf,
	})
	if err != nil {
		return nil, err
	}
	n.sessions.SetTransport(n.udp)

	n.exchanges, err = exchange.NewManager(exchange.ManagerConfig{
		Sessions:               n.sessions,
		MaxContexts:            c.MaxExchangeContexts,
		MaxUnsolicitedHandlers: c.MaxUnsolicitedHandlers,
		Registerer:             config.Registerer,
		LoggerFactory:          lf,
	})
	if err != nil {
		return nil, err
	}
	n.engine, err = im.NewEngine(im.EngineConfig{
		Exchanges:       n.exchanges,
		Source:          config.Source,
		MaxReadClients:  c.MaxReadClients,
		MaxReadHandlers: c.MaxReadHandlers,
		ResponseTimeout: c.IMMessageTimeout,
		Registerer:      config.Registerer,
		LoggerFactory:   lf,
	})
	if err != nil {
		return nil, err
	}
	n.pairing, err = pase.NewPairing(pase.PairingConfig{
		Sessions:      n.sessions,
		Exchanges:     n.exchanges,
		Delegate:      n,
		LoggerFactory: lf,
	})
	if err != nil {
		return nil, err
	}

	cacheConfig := casesession.CacheConfig{Capacity: c.CASESessionResumeCacheSize, Clock: config.Clock}
	if c.ResumptionStorePath != "" {
		if n.store, err = casesession.OpenBoltStore(c.ResumptionStorePath); err != nil {
			return nil, err
		}
		cacheConfig.Store = n.store
	}
	n.resumption = casesession.NewCache(cacheConfig)
	if n.store != nil {
		loaded, err := n.resumption.Load()
		if err != nil {
			return nil, err
		}
		n.log.Debugf("loaded %d resumption entries from %s", loaded, c.ResumptionStorePath)
	}
	return n, nil
}

// State returns the node's lifecycle state.
func (n *Node) State() NodeState {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.state
}

// SystemLayer exposes the stack lock for callers that drive the lower
// layers directly.
func (n *Node) SystemLayer() *system.Layer { return n.layer }

// LocalAddr is the address the node's UDP transport is bound to.
func (n *Node) LocalAddr() net.Addr { return n.udp.LocalAddr() }

// Resumption returns the CASE session resumption cache.
func (n *Node) Resumption() *casesession.Cache { return n.resumption }

// Start begins reading from the transport.
func (n *Node) Start() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	switch n.state {
	case NodeStateRunning:
		return ErrAlreadyStarted
	case NodeStateStopped:
		return ErrAlreadyStopped
	}
	if err := n.udp.Start(); err != nil {
		return err
	}
	n.state = NodeStateRunning
	n.log.Infof("node %#x started", n.config.LocalNodeID)
	return nil
}

// Close shuts the stack down and releases the socket and the resumption
// store. It returns every error encountered.
func (n *Node) Close() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.state == NodeStateStopped {
		return ErrAlreadyStopped
	}
	n.state = NodeStateStopped

	var err error
	n.layer.Lock()
	if n.pairing.InProgress() {
		n.pairing.Cancel()
	}
	n.pairing.StopWaitingForPairing()
	n.engine.Shutdown()
	err = multierr.Append(err, n.exchanges.Shutdown())
	n.sessions.Shutdown()
	n.layer.Unlock()

	err = multierr.Append(err, n.release())
	n.log.Info("node stopped")
	return err
}

// release closes what NewNode opened outside the stack lock's reach.
func (n *Node) release() error {
	var err error
	if n.udp != nil {
		err = multierr.Append(err, n.udp.Close())
	}
	if n.store != nil {
		err = multierr.Append(err, n.store.Close())
	}
	return err
}

func (n *Node) running() error {
	if n.State() != NodeStateRunning {
		return ErrNotStarted
	}
	return nil
}

// OpenPairingWindow lets commissioners that know passcode pair with this
// node. A nil salt picks a random 32 byte salt and DefaultPBKDFIterations.
func (n *Node) OpenPairingWindow(passcode uint32, salt []byte, iterations uint32) error {
	if salt == nil {
		salt = make([]byte, pase.PBKDFMaxSaltLength)
		if _, err := rand.Read(salt); err != nil {
			return err
		}
		iterations = DefaultPBKDFIterations
	}
	v, err := pase.GenerateVerifier(passcode, salt, iterations)
	if err != nil {
		return err
	}
	return n.layer.WithLock(func() error {
		return n.pairing.WaitForPairing(v, salt, iterations)
	})
}

// ClosePairingWindow stops accepting new handshakes.
func (n *Node) ClosePairingWindow() {
	_ = n.layer.WithLock(func() error {
		n.pairing.StopWaitingForPairing()
		return nil
	})
}

// PairPASE runs a PASE handshake with the device at peer and returns the
// installed session. Cancelling ctx abandons the handshake.
func (n *Node) PairPASE(ctx context.Context, peer transport.PeerAddress, passcode uint32) (*session.Session, error) {
	if err := n.running(); err != nil {
		return nil, err
	}
	done := make(chan pairResult, 1)
	err := n.layer.WithLock(func() error {
		if n.pending != nil {
			return ErrPairingInProgress
		}
		if err := n.pairing.Pair(peer, passcode); err != nil {
			return err
		}
		n.pending = done
		return nil
	})
	if err != nil {
		return nil, err
	}

	select {
	case r := <-done:
		return r.session, r.err
	case <-ctx.Done():
		n.layer.Lock()
		if n.pending == done {
			n.pairing.Cancel()
		}
		n.layer.Unlock()
		// The outcome may have landed before the lock was taken.
		select {
		case r := <-done:
			if r.err == nil {
				return r.session, nil
			}
		default:
		}
		return nil, ctx.Err()
	}
}

// OnSessionEstablished implements pase.SessionEstablishmentDelegate.
func (n *Node) OnSessionEstablished(s *session.Session) {
	if n.pending != nil {
		n.pending <- pairResult{session: s}
		n.pending = nil
		return
	}
	if n.config.OnSessionEstablished != nil {
		n.config.OnSessionEstablished(s)
	}
}

// OnSessionEstablishmentError implements pase.SessionEstablishmentDelegate.
func (n *Node) OnSessionEstablishmentError(err error) {
	if n.pending != nil {
		n.pending <- pairResult{err: err}
		n.pending = nil
		return
	}
	n.log.Warnf("peer pairing failed: %v", err)
}
