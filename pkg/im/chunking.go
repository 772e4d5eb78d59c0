// Package im implements the read side of the Matter Interaction Model: a
// read client that streams reported attribute values into cluster data
// sinks, and a read handler that answers Read Requests from an attribute
// source in size-bounded chunks.
package im

import (
	"fmt"

	imsg "github.com/backkem/matter-core/pkg/im/message"
	"github.com/backkem/matter-core/pkg/tlv"
)

const (
	// DefaultMTU is the IPv6 minimum MTU.
	DefaultMTU = 1280

	// MessageHeaderOverhead is the room left for the message header,
	// payload header and MIC.
	MessageHeaderOverhead = 100

	// DefaultMaxPayload is the default Report Data size limit.
	DefaultMaxPayload = DefaultMTU - MessageHeaderOverhead
)

// arrayOverhead is a context-tagged array's start and end octets.
const arrayOverhead = 3

// Fragmenter splits a Report Data into chunks whose encoding fits in
// maxPayload. Sizes are exact, not estimated.
type Fragmenter struct {
	maxPayload int
}

// NewFragmenter returns a Fragmenter that caps each message at maxPayload bytes.
func NewFragmenter(maxPayload int) *Fragmenter {
	if maxPayload <= 0 {
		maxPayload = DefaultMaxPayload
	}
	return &Fragmenter{maxPayload: maxPayload}
}

func (f *Fragmenter) MaxPayload() int { return f.maxPayload }

// FragmentReportData splits msg. Every chunk but the last carries
// MoreChunkedMessages; SuppressResponse is kept on the last one only.
// Attribute reports precede event reports, and the order within each list
// is kept. A single report that cannot fit alone fails with
// ErrReportTooLarge.
func (f *Fragmenter) FragmentReportData(msg *imsg.ReportDataMessage) ([]*imsg.ReportDataMessage, error) {
	empty, err := imsg.Marshal(&imsg.ReportDataMessage{
		SubscriptionID:      msg.SubscriptionID,
		MoreChunkedMessages: true,
		SuppressResponse:    msg.SuppressResponse,
	})
	if err != nil {
		return nil, err
	}
	base := len(empty)

	var chunks []*imsg.ReportDataMessage
	cur := &imsg.ReportDataMessage{SubscriptionID: msg.SubscriptionID}
	size := base
	flush := func() {
		cur.MoreChunkedMessages = true
		chunks = append(chunks, cur)
		cur = &imsg.ReportDataMessage{SubscriptionID: msg.SubscriptionID}
		size = base
	}
	fit := func(n int, listEmpty bool) error {
		need := n
		if listEmpty {
			need += arrayOverhead
		}
		if size+need <= f.maxPayload {
			size += need
			return nil
		}
		if len(cur.AttributeReports) == 0 && len(cur.EventReports) == 0 {
			return ErrReportTooLarge
		}
		flush()
		if need = n + arrayOverhead; size+need > f.maxPayload {
			return ErrReportTooLarge
		}
		size += need
		return nil
	}

	for i := range msg.AttributeReports {
		n, err := encodedSize(&msg.AttributeReports[i])
		if err != nil {
			return nil, err
		}
		if err := fit(n, len(cur.AttributeReports) == 0); err != nil {
			return nil, fmt.Errorf("%w: attribute report %d is %d bytes", err, i, n)
		}
		cur.AttributeReports = append(cur.AttributeReports, msg.AttributeReports[i])
	}
	for i := range msg.EventReports {
		n, err := encodedSize(&msg.EventReports[i])
		if err != nil {
			return nil, err
		}
		if err := fit(n, len(cur.EventReports) == 0); err != nil {
			return nil, fmt.Errorf("%w: event report %d is %d bytes", err, i, n)
		}
		cur.EventReports = append(cur.EventReports, msg.EventReports[i])
	}

	cur.SuppressResponse = msg.SuppressResponse
	return append(chunks, cur), nil
}

type anonEncoder interface {
	Encode(w *tlv.Writer, tag tlv.Tag) error
}

func encodedSize(ib anonEncoder) (int, error) {
	w := tlv.NewWriter(0)
	if err := ib.Encode(w, tlv.Anonymous()); err != nil {
		return 0, err
	}
	b, err := w.Finish()
	return len(b), err
}
