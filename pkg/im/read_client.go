package im

import (
	"fmt"
	"io"
	"time"

	"github.com/pion/logging"

	"github.com/backkem/matter-core/pkg/exchange"
	imsg "github.com/backkem/matter-core/pkg/im/message"
	"github.com/backkem/matter-core/pkg/message"
	"github.com/backkem/matter-core/pkg/session"
	"github.com/backkem/matter-core/pkg/tlv"
)

// DefaultMessageTimeout bounds the wait for each Report Data.
const DefaultMessageTimeout = 5 * time.Second

// Delegate receives the outcome of reads.
type Delegate interface {
	// EventStreamReceived gets the event reports of a final report, with
	// events positioned on the event report array.
	EventStreamReceived(ec *exchange.Context, events *tlv.Reader) error

	// ReportProcessed is called once a complete report was delivered. The
	// client is back in the Initialized state.
	ReportProcessed(c *ReadClient)

	// ReportError is called once per failed read. The client is back in
	// the Initialized state.
	ReportError(c *ReadClient, err error)
}

// AttributeStatusDelegate is optionally implemented by a Delegate that
// wants the status of attribute paths the peer reported no data for.
type AttributeStatusDelegate interface {
	AttributeStatusReceived(c *ReadClient, status *imsg.AttributeStatusIB)
}

// AttributePathParams names the attributes to read on a cluster instance
// of the Catalog. A nil Attribute reads every attribute of the cluster.
type AttributePathParams struct {
	Handle    ClusterDataHandle
	Attribute *imsg.AttributeID
	ListIndex *imsg.ListIndex
}

// EventPathParams names events to read. Nil fields are wildcards.
type EventPathParams struct {
	Endpoint *imsg.EndpointID
	Cluster  *imsg.ClusterID
	Event    *imsg.EventID
	IsUrgent bool
}

// ReadClientState is the lifecycle state of a ReadClient.
type ReadClientState int

const (
	// ReadClientStateUninitialized is a client before Init or after Shutdown.
	ReadClientStateUninitialized ReadClientState = iota
	// ReadClientStateInitialized is a bound client ready to send a read.
	ReadClientStateInitialized
	// ReadClientStateAwaitingResponse is a client with a read in flight.
	ReadClientStateAwaitingResponse
)

func (s ReadClientState) String() string {
	switch s {
	case ReadClientStateUninitialized:
		return "Uninitialized"
	case ReadClientStateInitialized:
		return "Initialized"
	case ReadClientStateAwaitingResponse:
		return "AwaitingResponse"
	}
	return "Unknown"
}

// ReadClientConfig configures a ReadClient.
type ReadClientConfig struct {
	// ResponseTimeout defaults to DefaultMessageTimeout.
	ResponseTimeout time.Duration
	// LoggerFactory is optional; nil disables logging.
	LoggerFactory logging.LoggerFactory
}

// ReadClient issues one read at a time and streams the reported attribute
// values into the sinks of a Catalog.
//
// All methods must be called with the stack lock held.
type ReadClient struct {
	exchanges *exchange.Manager
	delegate  Delegate
	catalog   Catalog

	ec    *exchange.Context
	state ReadClientState

	timeout time.Duration
	log     logging.LeveledLogger
}

// NewReadClient returns an Uninitialized client; call Init before use.
// Engine.NewReadClient hands out pooled clients that are already bound.
func NewReadClient(config ReadClientConfig) *ReadClient {
	c := &ReadClient{}
	c.configure(config.ResponseTimeout, config.LoggerFactory)
	return c
}

func (c *ReadClient) configure(timeout time.Duration, lf logging.LoggerFactory) {
	if timeout <= 0 {
		timeout = DefaultMessageTimeout
	}
	c.timeout = timeout
	if lf != nil {
		c.log = lf.NewLogger("im-read")
	}
}

// State returns the lifecycle state.
func (c *ReadClient) State() ReadClientState { return c.state }

// Exchange returns the exchange of the read in flight, if any.
func (c *ReadClient) Exchange() *exchange.Context { return c.ec }

// Init binds the client to an exchange manager, a delegate and a sink
// catalog.
func (c *ReadClient) Init(exchanges *exchange.Manager, delegate Delegate, catalog Catalog) error {
	if c.state != ReadClientStateUninitialized || exchanges == nil {
		return ErrIncorrectState
	}
	if c.timeout == 0 {
		c.timeout = DefaultMessageTimeout
	}
	c.exchanges = exchanges
	c.delegate = delegate
	c.catalog = catalog
	c.state = ReadClientStateInitialized
	return nil
}

// Shutdown aborts a read in flight without notifying the delegate and
// returns the client to the Uninitialized state.
func (c *ReadClient) Shutdown() {
	c.clearExchange()
	c.exchanges = nil
	c.delegate = nil
	c.catalog = nil
	c.state = ReadClientStateUninitialized
}

// SendReadRequest sends a Read Request on a new exchange over s. The
// outcome arrives through the delegate.
func (c *ReadClient) SendReadRequest(s *session.Session, eventPaths []EventPathParams, attributePaths []AttributePathParams) error {
	if c.state != ReadClientStateInitialized || c.delegate == nil || c.ec != nil {
		return ErrIncorrectState
	}
	if len(eventPaths) == 0 && len(attributePaths) == 0 {
		return fmt.Errorf("%w: no paths", ErrInvalidArgument)
	}

	req := imsg.ReadRequestMessage{FabricFiltered: true}
	for _, p := range eventPaths {
		path := imsg.EventPathIB{Endpoint: p.Endpoint, Cluster: p.Cluster, Event: p.Event}
		if p.IsUrgent {
			path.IsUrgent = imsg.Ptr(true)
		}
		req.EventRequests = append(req.EventRequests, path)
	}
	for _, p := range attributePaths {
		path, err := c.resolve(p)
		if err != nil {
			return err
		}
		req.AttributeRequests = append(req.AttributeRequests, path)
	}
	payload, err := imsg.Marshal(&req)
	if err != nil {
		return err
	}

	ec, err := c.exchanges.NewContext(s, c)
	if err != nil {
		return err
	}
	ec.SetResponseTimeout(c.timeout)
	if err := ec.SendMessage(imsg.ProtocolID, uint8(imsg.OpcodeReadRequest), payload, exchange.ExpectResponse); err != nil {
		ec.Abort()
		return err
	}
	c.ec = ec
	c.state = ReadClientStateAwaitingResponse
	if c.log != nil {
		c.log.Debugf("read request sent on exchange %d: %d attribute paths, %d event paths",
			ec.ExchangeID(), len(req.AttributeRequests), len(req.EventRequests))
	}
	return nil
}

func (c *ReadClient) resolve(p AttributePathParams) (imsg.AttributePathIB, error) {
	if c.catalog == nil {
		return imsg.AttributePathIB{}, fmt.Errorf("%w: no catalog", ErrIncorrectState)
	}
	endpoint, err := c.catalog.GetEndpointID(p.Handle)
	if err != nil {
		return imsg.AttributePathIB{}, err
	}
	cluster, err := c.catalog.GetClusterID(p.Handle)
	if err != nil {
		return imsg.AttributePathIB{}, err
	}
	return imsg.AttributePathIB{
		Endpoint:  &endpoint,
		Cluster:   &cluster,
		Attribute: p.Attribute,
		ListIndex: p.ListIndex,
	}, nil
}

// OnMessageReceived implements exchange.Delegate. Only Report Data is
// accepted, and only on the exchange of the read in flight. Any error
// ends the read: the delegate sees ReportError and the client returns to
// Initialized.
func (c *ReadClient) OnMessageReceived(ec *exchange.Context, _ *message.MessageHeader, hdr *message.ProtocolHeader, payload []byte) error {
	var err error
	switch {
	case hdr.HasMessageType(imsg.ProtocolID, uint8(imsg.OpcodeStatusResponse)):
		status, decodeErr := imsg.DecodeStatusResponse(payload)
		if decodeErr != nil {
			err = decodeErr
		} else {
			err = fmt.Errorf("%w: peer sent %w", ErrInvalidMessageType, status)
		}
	case !hdr.HasMessageType(imsg.ProtocolID, uint8(imsg.OpcodeReportData)):
		err = fmt.Errorf("%w: %s opcode %#02x", ErrInvalidMessageType, hdr.ProtocolID, hdr.ProtocolOpcode)
	case ec != c.ec:
		err = ErrIncorrectState
	default:
		err = c.ProcessReportData(payload)
	}
	if err == nil {
		return nil
	}

	if c.log != nil {
		c.log.Errorf("read on exchange %d failed: %v", ec.ExchangeID(), err)
	}
	if ec != c.ec {
		ec.Abort()
	}
	c.clearExchange()
	c.state = ReadClientStateInitialized
	if c.delegate != nil {
		c.delegate.ReportError(c, err)
	}
	return err
}

// ProcessReportData handles one Report Data payload. SuppressResponse and
// MoreChunkedMessages default to false when absent.
//
// While MoreChunkedMessages is set, the chunk's report lists are not
// delivered; the chunk is acknowledged and the client keeps waiting. The
// final chunk's lists go to the delegate and the sinks, after which the
// read completes with ReportProcessed.
func (c *ReadClient) ProcessReportData(payload []byte) error {
	r := tlv.NewReader(payload)
	if err := r.Next(); err != nil {
		return err
	}
	if r.Type() != tlv.ElementTypeStruct {
		return imsg.ErrInvalidType
	}
	if err := r.EnterContainer(); err != nil {
		return err
	}

	var suppressResponse, moreChunks bool
	var attributes, events *tlv.Reader
	for {
		err := r.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}
		if !r.Tag().IsContext() {
			continue
		}
		switch r.Tag().Number() {
		case imsg.ReportDataTagAttributeReports:
			attributes = r.Clone()
		case imsg.ReportDataTagEventReports:
			events = r.Clone()
		case imsg.ReportDataTagMoreChunkedMessages:
			moreChunks, err = r.Bool()
		case imsg.ReportDataTagSuppressResponse:
			suppressResponse, err = r.Bool()
		}
		if err != nil {
			return err
		}
	}
	if err := r.ExitContainer(); err != nil {
		return err
	}

	if moreChunks {
		if c.log != nil && (attributes != nil || events != nil) {
			c.log.Debugf("chunked report: reports of a non-final chunk are not delivered")
		}
		return c.sendStatusResponse(imsg.StatusSuccess, exchange.ExpectResponse)
	}

	if events != nil && c.delegate != nil {
		if err := c.delegate.EventStreamReceived(c.ec, events); err != nil {
			return err
		}
	}
	if attributes != nil {
		if err := c.ProcessAttributeDataList(attributes); err != nil {
			return err
		}
	}
	if !suppressResponse {
		if err := c.sendStatusResponse(imsg.StatusSuccess, 0); err != nil {
			return err
		}
	}

	c.clearExchange()
	c.state = ReadClientStateInitialized
	if c.delegate != nil {
		c.delegate.ReportProcessed(c)
	}
	return nil
}

// ProcessAttributeDataList walks the attribute report array under r and
// stores every attribute value in the sink of its cluster. The walk ends
// cleanly at the end of the array; any other error, a cluster missing
// from the catalog included, aborts the whole list.
func (c *ReadClient) ProcessAttributeDataList(r *tlv.Reader) error {
	if c.catalog == nil {
		return fmt.Errorf("%w: no catalog", ErrIncorrectState)
	}
	if t := r.Type(); t != tlv.ElementTypeArray && t != tlv.ElementTypeList {
		return imsg.ErrInvalidType
	}
	if err := r.EnterContainer(); err != nil {
		return err
	}
	for {
		err := r.Next()
		if err == io.EOF {
			return r.ExitContainer()
		}
		if err != nil {
			return err
		}

		var report imsg.AttributeReportIB
		if err := report.DecodeFrom(r); err != nil {
			return err
		}
		if st := report.AttributeStatus; st != nil {
			if d, ok := c.delegate.(AttributeStatusDelegate); ok {
				d.AttributeStatusReceived(c, st)
			} else if c.log != nil {
				c.log.Warnf("attribute %s: status %s", &st.Path, st.Status.Status)
			}
			continue
		}

		data := report.AttributeData
		if data.Path.Endpoint == nil || data.Path.Cluster == nil {
			return fmt.Errorf("%w: attribute path %s", imsg.ErrMissingField, &data.Path)
		}
		h, err := c.catalog.LocateClusterDataHandle(*data.Path.Endpoint, *data.Path.Cluster)
		if err != nil {
			return fmt.Errorf("attribute %s: %w", &data.Path, err)
		}
		sink, err := c.catalog.LocateClusterInstance(h)
		if err != nil {
			return err
		}
		value, err := data.Value()
		if err != nil {
			return err
		}
		if err := sink.StoreDataElement(&data.Path, value); err != nil {
			return err
		}
	}
}

func (c *ReadClient) sendStatusResponse(status imsg.Status, flags exchange.SendFlags) error {
	if c.ec == nil {
		return nil
	}
	payload, err := imsg.Marshal(&imsg.StatusResponseMessage{Status: status})
	if err != nil {
		return err
	}
	return c.ec.SendMessage(imsg.ProtocolID, uint8(imsg.OpcodeStatusResponse), payload, flags)
}

// OnResponseTimeout implements exchange.Delegate. The read is abandoned;
// retrying is up to the caller.
func (c *ReadClient) OnResponseTimeout(ec *exchange.Context) {
	if ec != c.ec {
		return
	}
	if c.log != nil {
		c.log.Warnf("read on exchange %d timed out", ec.ExchangeID())
	}
	c.clearExchange()
	c.state = ReadClientStateInitialized
	if c.delegate != nil {
		c.delegate.ReportError(c, ErrTimeout)
	}
}

// OnExchangeClosing implements exchange.Delegate. It only matters when
// the exchange is closed by someone else, e.g. at manager shutdown.
func (c *ReadClient) OnExchangeClosing(ec *exchange.Context) {
	if ec != c.ec {
		return
	}
	c.ec = nil
	c.state = ReadClientStateInitialized
	if c.delegate != nil {
		c.delegate.ReportError(c, ErrExchangeClosed)
	}
}

// clearExchange detaches before aborting so OnExchangeClosing ignores the
// exchange.
func (c *ReadClient) clearExchange() {
	ec := c.ec
	c.ec = nil
	if ec != nil {
		ec.Abort()
	}
}
