package message

import (
	"github.com/backkem/matter-core/pkg/tlv"
)

// ReadRequestMessage asks for attribute and event data.
type ReadRequestMessage struct {
	AttributeRequests  []AttributePathIB
	EventRequests      []EventPathIB
	EventFilters       []EventFilterIB
	FabricFiltered     bool
	DataVersionFilters []DataVersionFilterIB
}

const (
	readReqTagAttributeRequests  = 0
	readReqTagEventRequests      = 1
	readReqTagEventFilters       = 2
	readReqTagFabricFiltered     = 3
	readReqTagDataVersionFilters = 4
)

func (m *ReadRequestMessage) Encode(w *tlv.Writer) error {
	return encodeSteps(
		func() error { return w.StartStructure(tlv.Anonymous()) },
		func() error {
			return encodeArray(w, readReqTagAttributeRequests, len(m.AttributeRequests), func(i int) error {
				return m.AttributeRequests[i].Encode(w, tlv.Anonymous())
			})
		},
		func() error {
			return encodeArray(w, readReqTagEventRequests, len(m.EventRequests), func(i int) error {
				return m.EventRequests[i].Encode(w, tlv.Anonymous())
			})
		},
		func() error {
			return encodeArray(w, readReqTagEventFilters, len(m.EventFilters), func(i int) error {
				return m.EventFilters[i].Encode(w, tlv.Anonymous())
			})
		},
		func() error { return w.PutBool(tlv.ContextTag(readReqTagFabricFiltered), m.FabricFiltered) },
		func() error {
			return encodeArray(w, readReqTagDataVersionFilters, len(m.DataVersionFilters), func(i int) error {
				return m.DataVersionFilters[i].Encode(w, tlv.Anonymous())
			})
		},
		func() error { return w.PutUint(tlv.ContextTag(tagRevision), Revision) },
		w.EndContainer,
	)
}

func (m *ReadRequestMessage) Decode(r *tlv.Reader) error {
	*m = ReadRequestMessage{}
	return decodeMessage(r, func(tag uint32) error {
		switch tag {
		case readReqTagAttributeRequests:
			return decodeArray(r, func() error {
				var p AttributePathIB
				if err := p.DecodeFrom(r); err != nil {
					return err
				}
				m.AttributeRequests = append(m.AttributeRequests, p)
				return nil
			})
		case readReqTagEventRequests:
			return decodeArray(r, func() error {
				var p EventPathIB
				if err := p.DecodeFrom(r); err != nil {
					return err
				}
				m.EventRequests = append(m.EventRequests, p)
				return nil
			})
		case readReqTagEventFilters:
			return decodeArray(r, func() error {
				var f EventFilterIB
				if err := f.DecodeFrom(r); err != nil {
					return err
				}
				m.EventFilters = append(m.EventFilters, f)
				return nil
			})
		case readReqTagFabricFiltered:
			v, err := r.Bool()
			m.FabricFiltered = v
			return err
		case readReqTagDataVersionFilters:
			return decodeArray(r, func() error {
				var f DataVersionFilterIB
				if err := f.DecodeFrom(r); err != nil {
					return err
				}
				m.DataVersionFilters = append(m.DataVersionFilters, f)
				return nil
			})
		}
		return nil
	})
}

// ReportDataMessage carries attribute and event reports. A report larger
// than one message is split into chunks, all but the last carrying
// MoreChunkedMessages.
type ReportDataMessage struct {
	SubscriptionID      *SubscriptionID
	AttributeReports    []AttributeReportIB
	EventReports        []EventReportIB
	MoreChunkedMessages bool
	SuppressResponse    bool
}

const (
	reportDataTagSubscriptionID      = 0
	reportDataTagAttributeReports    = 1
	reportDataTagEventReports        = 2
	reportDataTagMoreChunkedMessages = 3
	reportDataTagSuppressResponse    = 4
)

// Tags of the ReportData members, for encoders that stream reports.
const (
	ReportDataTagAttributeReports    = reportDataTagAttributeReports
	ReportDataTagEventReports        = reportDataTagEventReports
	ReportDataTagMoreChunkedMessages = reportDataTagMoreChunkedMessages
	ReportDataTagSuppressResponse    = reportDataTagSuppressResponse
	TagInteractionModelRevision      = tagRevision
)

func (m *ReportDataMessage) Encode(w *tlv.Writer) error {
	return encodeSteps(
		func() error { return w.StartStructure(tlv.Anonymous()) },
		func() error { return putOptionalUint(w, reportDataTagSubscriptionID, m.SubscriptionID) },
		func() error {
			return encodeArray(w, reportDataTagAttributeReports, len(m.AttributeReports), func(i int) error {
				return m.AttributeReports[i].Encode(w, tlv.Anonymous())
			})
		},
		func() error {
			return encodeArray(w, reportDataTagEventReports, len(m.EventReports), func(i int) error {
				return m.EventReports[i].Encode(w, tlv.Anonymous())
			})
		},
		func() error {
			if !m.MoreChunkedMessages {
				return nil
			}
			return w.PutBool(tlv.ContextTag(reportDataTagMoreChunkedMessages), true)
		},
		func() error {
			if !m.SuppressResponse {
				return nil
			}
			return w.PutBool(tlv.ContextTag(reportDataTagSuppressResponse), true)
		},
		func() error { return w.PutUint(tlv.ContextTag(tagRevision), Revision) },
		w.EndContainer,
	)
}

// Decode reads the whole message. Report lists are decoded eagerly; the
// read client walks them lazily instead.
func (m *ReportDataMessage) Decode(r *tlv.Reader) error {
	*m = ReportDataMessage{}
	return decodeMessage(r, func(tag uint32) error {
		switch tag {
		case reportDataTagSubscriptionID:
			return readOptionalUint(r, &m.SubscriptionID)
		case reportDataTagAttributeReports:
			return decodeArray(r, func() error {
				var a AttributeReportIB
				if err := a.DecodeFrom(r); err != nil {
					return err
				}
				m.AttributeReports = append(m.AttributeReports, a)
				return nil
			})
		case reportDataTagEventReports:
			return decodeArray(r, func() error {
				var e EventReportIB
				if err := e.DecodeFrom(r); err != nil {
					return err
				}
				m.EventReports = append(m.EventReports, e)
				return nil
			})
		case reportDataTagMoreChunkedMessages:
			v, err := r.Bool()
			m.MoreChunkedMessages = v
			return err
		case reportDataTagSuppressResponse:
			v, err := r.Bool()
			m.SuppressResponse = v
			return err
		}
		return nil
	})
}

// StatusResponseMessage acknowledges a report chunk or ends an interaction
// with a status.
type StatusResponseMessage struct {
	Status Status
}

func (m *StatusResponseMessage) Encode(w *tlv.Writer) error {
	return encodeSteps(
		func() error { return w.StartStructure(tlv.Anonymous()) },
		func() error { return w.PutUint(tlv.ContextTag(0), uint64(m.Status)) },
		func() error { return w.PutUint(tlv.ContextTag(tagRevision), Revision) },
		w.EndContainer,
	)
}

func (m *StatusResponseMessage) Decode(r *tlv.Reader) error {
	var seen bool
	err := decodeMessage(r, func(tag uint32) error {
		if tag == 0 {
			seen = true
			return readUint(r, &m.Status)
		}
		return nil
	})
	if err == nil && !seen {
		err = ErrMissingField
	}
	return err
}

// DecodeStatusResponse is a convenience for a payload holding only a
// StatusResponse.
func DecodeStatusResponse(payload []byte) (Status, error) {
	var m StatusResponseMessage
	if err := m.Decode(tlv.NewReader(payload)); err != nil {
		return 0, err
	}
	return m.Status, nil
}
