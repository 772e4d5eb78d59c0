package im

import (
	"fmt"
	"time"

	"github.com/pion/logging"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/backkem/matter-core/pkg/exchange"
	imsg "github.com/backkem/matter-core/pkg/im/message"
	"github.com/backkem/matter-core/pkg/message"
)

// Pool sizes of an Engine.
const (
	DefaultMaxReadClients  = 4
	DefaultMaxReadHandlers = 4
)

// EngineConfig configures an Engine.
type EngineConfig struct {
	// Exchanges carries every interaction. Required.
	Exchanges *exchange.Manager

	// Source answers incoming Read Requests. Without one the engine only
	// reads from others.
	Source AttributeSource

	MaxReadClients  int
	MaxReadHandlers int

	// MaxReportSize bounds each Report Data chunk. Defaults to
	// DefaultMaxPayload.
	MaxReportSize int

	// ResponseTimeout bounds each wait on a peer. Defaults to
	// DefaultMessageTimeout.
	ResponseTimeout time.Duration

	// Registerer receives the engine metrics. Optional.
	Registerer prometheus.Registerer

	LoggerFactory logging.LoggerFactory
}

// Engine owns the read client and read handler pools of a node. It is used
// with the stack lock held.
type Engine struct {
	exchanges  *exchange.Manager
	source     AttributeSource
	fragmenter *Fragmenter
	timeout    time.Duration

	clients  []ReadClient
	handlers []ReadHandler

	lf      logging.LoggerFactory
	metrics *engineMetrics
	log     logging.LeveledLogger
}

// NewEngine creates an engine bound to the exchange manager in config.
func NewEngine(config EngineConfig) (*Engine, error) {
	if config.Exchanges == nil {
		return nil, fmt.Errorf("%w: nil exchange manager", ErrInvalidArgument)
	}
	if config.MaxReadClients <= 0 {
		config.MaxReadClients = DefaultMaxReadClients
	}
	if config.MaxReadHandlers <= 0 {
		config.MaxReadHandlers = DefaultMaxReadHandlers
	}
	if config.ResponseTimeout <= 0 {
		config.ResponseTimeout = DefaultMessageTimeout
	}

	e := &Engine{
		exchanges:  config.Exchanges,
		source:     config.Source,
		fragmenter: NewFragmenter(config.MaxReportSize),
		timeout:    config.ResponseTimeout,
		clients:    make([]ReadClient, config.MaxReadClients),
		handlers:   make([]ReadHandler, config.MaxReadHandlers),
		lf:         config.LoggerFactory,
		metrics:    newEngineMetrics(),
	}
	if config.Registerer != nil {
		if err := e.metrics.register(config.Registerer); err != nil {
			return nil, err
		}
	}
	if e.lf != nil {
		e.log = e.lf.NewLogger("im")
	}
	for i := range e.handlers {
		e.handlers[i].engine = e
		if e.lf != nil {
			e.handlers[i].log = e.lf.NewLogger("im-handler")
		}
	}

	if e.source != nil {
		err := e.exchanges.RegisterUnsolicitedMessageHandlerForType(imsg.ProtocolID, uint8(imsg.OpcodeReadRequest), e, false)
		if err != nil {
			return nil, err
		}
	}
	return e, nil
}

// NewReadClient takes an initialized client from the pool. The client
// returns to the pool when it is shut down.
func (e *Engine) NewReadClient(delegate Delegate, catalog Catalog) (*ReadClient, error) {
	for i := range e.clients {
		c := &e.clients[i]
		if c.state != ReadClientStateUninitialized {
			continue
		}
		c.configure(e.timeout, e.lf)
		if err := c.Init(e.exchanges, delegate, catalog); err != nil {
			return nil, err
		}
		return c, nil
	}
	e.metrics.poolExhausted.WithLabelValues("client").Inc()
	return nil, ErrNoMemory
}

// ActiveReadClients returns the number of clients taken from the pool.
func (e *Engine) ActiveReadClients() int {
	n := 0
	for i := range e.clients {
		if e.clients[i].state != ReadClientStateUninitialized {
			n++
		}
	}
	return n
}

// ActiveReadHandlers returns the number of Read Requests being answered.
func (e *Engine) ActiveReadHandlers() int {
	n := 0
	for i := range e.handlers {
		if e.handlers[i].inUse {
			n++
		}
	}
	return n
}

// OnMessageReceived implements exchange.Delegate for unsolicited Read
// Requests. The exchange is handed to a free ReadHandler; when none is
// free the reader gets ResourceExhausted.
func (e *Engine) OnMessageReceived(ec *exchange.Context, pkt *message.MessageHeader, hdr *message.ProtocolHeader, payload []byte) error {
	for i := range e.handlers {
		h := &e.handlers[i]
		if h.inUse {
			continue
		}
		h.inUse = true
		ec.SetDelegate(h)
		return h.OnMessageReceived(ec, pkt, hdr, payload)
	}

	e.metrics.poolExhausted.WithLabelValues("handler").Inc()
	if e.log != nil {
		e.log.Warnf("exchange %d: no free read handler", ec.ExchangeID())
	}
	err := sendStatusResponse(ec, imsg.StatusResourceExhausted)
	ec.Close()
	return err
}

func (e *Engine) OnResponseTimeout(*exchange.Context) {}
func (e *Engine) OnExchangeClosing(*exchange.Context) {}

// Shutdown stops answering reads and aborts every interaction in flight.
// Read clients are shut down without delegate callbacks.
func (e *Engine) Shutdown() {
	if e.source != nil {
		_ = e.exchanges.UnregisterUnsolicitedMessageHandlerForType(imsg.ProtocolID, uint8(imsg.OpcodeReadRequest))
	}
	for i := range e.clients {
		if e.clients[i].state != ReadClientStateUninitialized {
			e.clients[i].Shutdown()
		}
	}
	for i := range e.handlers {
		if ec := e.handlers[i].ec; ec != nil {
			ec.Abort()
		}
	}
}

type engineMetrics struct {
	readRequests  prometheus.Counter
	chunksSent    prometheus.Counter
	poolExhausted *prometheus.CounterVec
}

func newEngineMetrics() *engineMetrics {
	return &engineMetrics{
		readRequests: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "matter",
			Subsystem: "im",
			Name:      "read_requests_total",
			Help:      "Read Requests answered.",
		}),
		chunksSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "matter",
			Subsystem: "im",
			Name:      "report_chunks_sent_total",
			Help:      "Report Data messages sent by read handlers.",
		}),
		poolExhausted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "matter",
			Subsystem: "im",
			Name:      "pool_exhausted_total",
			Help:      "Allocations that failed because a pool was exhausted.",
		}, []string{"pool"}),
	}
}

func (m *engineMetrics) register(reg prometheus.Registerer) error {
	for _, c := range []prometheus.Collector{m.readRequests, m.chunksSent, m.poolExhausted} {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}
