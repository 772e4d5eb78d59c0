package im

import (
	"fmt"

	"github.com/pion/logging"

	"github.com/backkem/matter-core/pkg/exchange"
	imsg "github.com/backkem/matter-core/pkg/im/message"
	"github.com/backkem/matter-core/pkg/message"
	"github.com/backkem/matter-core/pkg/tlv"
)

// ReadHandlerState is the lifecycle state of a ReadHandler.
type ReadHandlerState int

const (
	ReadHandlerStateIdle ReadHandlerState = iota
	ReadHandlerStateSendingReport
)

func (s ReadHandlerState) String() string {
	switch s {
	case ReadHandlerStateIdle:
		return "Idle"
	case ReadHandlerStateSendingReport:
		return "SendingReport"
	}
	return "Unknown"
}

// ReadHandler answers one Read Request on the exchange it was handed. The
// report goes out in chunks of at most the engine's report size, and each
// chunk waits for the reader's Status Response before the next is sent.
// The final chunk also asks for one, after which the exchange is closed.
//
// Handlers live in the engine's pool and are used with the stack lock held.
type ReadHandler struct {
	engine *Engine
	inUse  bool

	ec     *exchange.Context
	state  ReadHandlerState
	chunks []*imsg.ReportDataMessage
	next   int

	log logging.LeveledLogger
}

// State returns the handler's current state.
func (h *ReadHandler) State() ReadHandlerState { return h.state }

// OnMessageReceived implements exchange.Delegate.
func (h *ReadHandler) OnMessageReceived(ec *exchange.Context, _ *message.MessageHeader, hdr *message.ProtocolHeader, payload []byte) error {
	if hdr.ProtocolID != imsg.ProtocolID {
		ec.Close()
		return fmt.Errorf("%w: %s", ErrInvalidMessageType, hdr.ProtocolID)
	}
	switch op := imsg.Opcode(hdr.ProtocolOpcode); {
	case op == imsg.OpcodeReadRequest && h.state == ReadHandlerStateIdle:
		return h.handleReadRequest(ec, payload)
	case op == imsg.OpcodeStatusResponse && h.state == ReadHandlerStateSendingReport:
		return h.handleStatusResponse(payload)
	default:
		h.sendStatus(ec, imsg.StatusInvalidAction)
		ec.Close()
		return fmt.Errorf("%w: %s in state %s", ErrInvalidMessageType, op, h.state)
	}
}

func (h *ReadHandler) handleReadRequest(ec *exchange.Context, payload []byte) error {
	var req imsg.ReadRequestMessage
	if err := req.Decode(tlv.NewReader(payload)); err != nil {
		h.sendStatus(ec, imsg.StatusInvalidAction)
		ec.Close()
		return err
	}
	h.engine.metrics.readRequests.Inc()

	report := &imsg.ReportDataMessage{}
	for _, path := range req.AttributeRequests {
		for _, r := range h.engine.source.ReadAttributes(path) {
			if !filtered(&r, req.DataVersionFilters) {
				report.AttributeReports = append(report.AttributeReports, r)
			}
		}
	}
	for _, path := range req.EventRequests {
		report.EventReports = append(report.EventReports, imsg.EventReportIB{
			EventStatus: &imsg.EventStatusIB{Path: path, Status: imsg.StatusIB{Status: imsg.StatusUnsupportedEvent}},
		})
	}

	chunks, err := h.engine.fragmenter.FragmentReportData(report)
	if err != nil {
		h.sendStatus(ec, imsg.StatusResourceExhausted)
		ec.Close()
		return err
	}
	if h.log != nil {
		h.log.Debugf("exchange %d: %d attribute reports, %d event reports in %d chunks",
			ec.ExchangeID(), len(report.AttributeReports), len(report.EventReports), len(chunks))
	}

	h.ec = ec
	h.chunks = chunks
	h.next = 0
	h.state = ReadHandlerStateSendingReport
	ec.SetResponseTimeout(h.engine.timeout)
	return h.sendNextChunk()
}

func (h *ReadHandler) handleStatusResponse(payload []byte) error {
	status, err := imsg.DecodeStatusResponse(payload)
	if err != nil {
		h.ec.Close()
		return err
	}
	if !status.IsSuccess() {
		if h.log != nil {
			h.log.Warnf("exchange %d: reader answered %s, dropping report", h.ec.ExchangeID(), status)
		}
		h.ec.Close()
		return nil
	}
	if h.next == len(h.chunks) {
		h.ec.Close()
		return nil
	}
	return h.sendNextChunk()
}

func (h *ReadHandler) sendNextChunk() error {
	chunk := h.chunks[h.next]
	h.next++
	payload, err := imsg.Marshal(chunk)
	if err == nil {
		err = h.ec.SendMessage(imsg.ProtocolID, uint8(imsg.OpcodeReportData), payload, exchange.ExpectResponse)
	}
	if err != nil {
		h.ec.Abort()
		return err
	}
	h.engine.metrics.chunksSent.Inc()
	return nil
}

func (h *ReadHandler) sendStatus(ec *exchange.Context, status imsg.Status) {
	if err := sendStatusResponse(ec, status); err != nil && h.log != nil {
		h.log.Warnf("exchange %d: sending status %s: %v", ec.ExchangeID(), status, err)
	}
}

// OnResponseTimeout implements exchange.Delegate.
func (h *ReadHandler) OnResponseTimeout(ec *exchange.Context) {
	if h.log != nil {
		h.log.Warnf("exchange %d: no status response after chunk %d/%d", ec.ExchangeID(), h.next, len(h.chunks))
	}
	ec.Close()
}

// OnExchangeClosing implements exchange.Delegate. It returns the handler
// to the pool.
func (h *ReadHandler) OnExchangeClosing(*exchange.Context) {
	h.ec = nil
	h.chunks = nil
	h.next = 0
	h.state = ReadHandlerStateIdle
	h.inUse = false
}

// filtered reports whether r is data for a cluster the reader already
// holds at the current version.
func filtered(r *imsg.AttributeReportIB, filters []imsg.DataVersionFilterIB) bool {
	d := r.AttributeData
	if d == nil || d.Path.Endpoint == nil || d.Path.Cluster == nil {
		return false
	}
	for _, f := range filters {
		if f.Path.Endpoint != nil && *f.Path.Endpoint == *d.Path.Endpoint &&
			f.Path.Cluster != nil && *f.Path.Cluster == *d.Path.Cluster &&
			f.DataVersion == d.DataVersion {
			return true
		}
	}
	return false
}

func sendStatusResponse(ec *exchange.Context, status imsg.Status) error {
	payload, err := imsg.Marshal(&imsg.StatusResponseMessage{Status: status})
	if err != nil {
		return err
	}
	return ec.SendMessage(imsg.ProtocolID, uint8(imsg.OpcodeStatusResponse), payload, 0)
}
