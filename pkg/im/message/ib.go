package message

import (
	"github.com/backkem/matter-core/pkg/tlv"
)

// StatusIB carries an Interaction Model status and an optional
// cluster-specific status.
type StatusIB struct {
	Status        Status
	ClusterStatus *uint8
}

const (
	statusTagStatus        = 0
	statusTagClusterStatus = 1
)

func (s *StatusIB) Encode(w *tlv.Writer, tag tlv.Tag) error {
	return encodeSteps(
		func() error { return w.StartStructure(tag) },
		func() error { return w.PutUint(tlv.ContextTag(statusTagStatus), uint64(s.Status)) },
		func() error { return putOptionalUint(w, statusTagClusterStatus, s.ClusterStatus) },
		w.EndContainer,
	)
}

func (s *StatusIB) DecodeFrom(r *tlv.Reader) error {
	*s = StatusIB{}
	var seen bool
	err := decodeContainer(r, tlv.ElementTypeStruct, func(tag uint32) error {
		switch tag {
		case statusTagStatus:
			seen = true
			return readUint(r, &s.Status)
		case statusTagClusterStatus:
			return readOptionalUint(r, &s.ClusterStatus)
		}
		return nil
	})
	if err == nil && !seen {
		err = ErrMissingField
	}
	return err
}

// AttributeStatusIB reports why an attribute path produced no data.
type AttributeStatusIB struct {
	Path   AttributePathIB
	Status StatusIB
}

const (
	attrStatusTagPath   = 0
	attrStatusTagStatus = 1
)

func (a *AttributeStatusIB) Encode(w *tlv.Writer, tag tlv.Tag) error {
	return encodeSteps(
		func() error { return w.StartStructure(tag) },
		func() error { return a.Path.Encode(w, tlv.ContextTag(attrStatusTagPath)) },
		func() error { return a.Status.Encode(w, tlv.ContextTag(attrStatusTagStatus)) },
		w.EndContainer,
	)
}

func (a *AttributeStatusIB) DecodeFrom(r *tlv.Reader) error {
	var path, status bool
	err := decodeContainer(r, tlv.ElementTypeStruct, func(tag uint32) error {
		switch tag {
		case attrStatusTagPath:
			path = true
			return a.Path.DecodeFrom(r)
		case attrStatusTagStatus:
			status = true
			return a.Status.DecodeFrom(r)
		}
		return nil
	})
	if err == nil && !(path && status) {
		err = ErrMissingField
	}
	return err
}

// AttributeDataIB carries one attribute value. Data holds the complete
// anonymous-tagged TLV encoding of the value.
type AttributeDataIB struct {
	DataVersion DataVersion
	Path        AttributePathIB
	Data        []byte
}

const (
	attrDataTagDataVersion = 0
	attrDataTagPath        = 1
	attrDataTagData        = 2
)

func (a *AttributeDataIB) Encode(w *tlv.Writer, tag tlv.Tag) error {
	return encodeSteps(
		func() error { return w.StartStructure(tag) },
		func() error { return w.PutUint(tlv.ContextTag(attrDataTagDataVersion), uint64(a.DataVersion)) },
		func() error { return a.Path.Encode(w, tlv.ContextTag(attrDataTagPath)) },
		func() error { return w.PutRaw(tlv.ContextTag(attrDataTagData), a.Data) },
		w.EndContainer,
	)
}

func (a *AttributeDataIB) DecodeFrom(r *tlv.Reader) error {
	*a = AttributeDataIB{}
	var path bool
	err := decodeContainer(r, tlv.ElementTypeStruct, func(tag uint32) (err error) {
		switch tag {
		case attrDataTagDataVersion:
			return readUint(r, &a.DataVersion)
		case attrDataTagPath:
			path = true
			return a.Path.DecodeFrom(r)
		case attrDataTagData:
			a.Data, err = rawElement(r)
		}
		return err
	})
	if err == nil && (!path || a.Data == nil) {
		err = ErrMissingField
	}
	return err
}

// Value returns a Reader positioned on the attribute value.
func (a *AttributeDataIB) Value() (*tlv.Reader, error) {
	r := tlv.NewReader(a.Data)
	if err := r.Next(); err != nil {
		return nil, err
	}
	return r, nil
}

// SetValue encodes the value written by encode, which must write exactly
// one anonymous element.
func (a *AttributeDataIB) SetValue(encode func(w *tlv.Writer) error) error {
	w := tlv.NewWriter(0)
	if err := encode(w); err != nil {
		return err
	}
	data, err := w.Finish()
	if err != nil {
		return err
	}
	a.Data = data
	return nil
}

// AttributeReportIB holds either an AttributeStatus or an AttributeData.
type AttributeReportIB struct {
	AttributeStatus *AttributeStatusIB
	AttributeData   *AttributeDataIB
}

const (
	attrReportTagAttributeStatus = 0
	attrReportTagAttributeData   = 1
)

func (a *AttributeReportIB) Encode(w *tlv.Writer, tag tlv.Tag) error {
	return encodeSteps(
		func() error { return w.StartStructure(tag) },
		func() error {
			if a.AttributeStatus == nil {
				return nil
			}
			return a.AttributeStatus.Encode(w, tlv.ContextTag(attrReportTagAttributeStatus))
		},
		func() error {
			if a.AttributeData == nil {
				return nil
			}
			return a.AttributeData.Encode(w, tlv.ContextTag(attrReportTagAttributeData))
		},
		w.EndContainer,
	)
}

func (a *AttributeReportIB) DecodeFrom(r *tlv.Reader) error {
	*a = AttributeReportIB{}
	err := decodeContainer(r, tlv.ElementTypeStruct, func(tag uint32) error {
		switch tag {
		case attrReportTagAttributeStatus:
			a.AttributeStatus = &AttributeStatusIB{}
			return a.AttributeStatus.DecodeFrom(r)
		case attrReportTagAttributeData:
			a.AttributeData = &AttributeDataIB{}
			return a.AttributeData.DecodeFrom(r)
		}
		return nil
	})
	if err == nil && (a.AttributeStatus == nil) == (a.AttributeData == nil) {
		err = ErrMissingField
	}
	return err
}

// Event priority levels.
const (
	EventPriorityDebug    uint8 = 0
	EventPriorityInfo     uint8 = 1
	EventPriorityCritical uint8 = 2
)

// EventDataIB carries one event record.
type EventDataIB struct {
	Path                 EventPathIB
	EventNumber          EventNumber
	Priority             uint8
	EpochTimestamp       *uint64
	SystemTimestamp      *uint64
	DeltaEpochTimestamp  *uint64
	DeltaSystemTimestamp *uint64
	Data                 []byte
}

const (
	eventDataTagPath = iota
	eventDataTagEventNumber
	eventDataTagPriority
	eventDataTagEpochTimestamp
	eventDataTagSystemTimestamp
	eventDataTagDeltaEpochTimestamp
	eventDataTagDeltaSystemTimestamp
	eventDataTagData
)

func (e *EventDataIB) Encode(w *tlv.Writer, tag tlv.Tag) error {
	return encodeSteps(
		func() error { return w.StartStructure(tag) },
		func() error { return e.Path.Encode(w, tlv.ContextTag(eventDataTagPath)) },
		func() error { return w.PutUint(tlv.ContextTag(eventDataTagEventNumber), uint64(e.EventNumber)) },
		func() error { return w.PutUint(tlv.ContextTag(eventDataTagPriority), uint64(e.Priority)) },
		func() error { return putOptionalUint(w, eventDataTagEpochTimestamp, e.EpochTimestamp) },
		func() error { return putOptionalUint(w, eventDataTagSystemTimestamp, e.SystemTimestamp) },
		func() error { return putOptionalUint(w, eventDataTagDeltaEpochTimestamp, e.DeltaEpochTimestamp) },
		func() error { return putOptionalUint(w, eventDataTagDeltaSystemTimestamp, e.DeltaSystemTimestamp) },
		func() error {
			if len(e.Data) == 0 {
				return nil
			}
			return w.PutRaw(tlv.ContextTag(eventDataTagData), e.Data)
		},
		w.EndContainer,
	)
}

func (e *EventDataIB) DecodeFrom(r *tlv.Reader) error {
	*e = EventDataIB{}
	var path, number, priority bool
	err := decodeContainer(r, tlv.ElementTypeStruct, func(tag uint32) (err error) {
		switch tag {
		case eventDataTagPath:
			path = true
			return e.Path.DecodeFrom(r)
		case eventDataTagEventNumber:
			number = true
			return readUint(r, &e.EventNumber)
		case eventDataTagPriority:
			priority = true
			return readUint(r, &e.Priority)
		case eventDataTagEpochTimestamp:
			return readOptionalUint(r, &e.EpochTimestamp)
		case eventDataTagSystemTimestamp:
			return readOptionalUint(r, &e.SystemTimestamp)
		case eventDataTagDeltaEpochTimestamp:
			return readOptionalUint(r, &e.DeltaEpochTimestamp)
		case eventDataTagDeltaSystemTimestamp:
			return readOptionalUint(r, &e.DeltaSystemTimestamp)
		case eventDataTagData:
			e.Data, err = rawElement(r)
		}
		return err
	})
	if err == nil && !(path && number && priority) {
		err = ErrMissingField
	}
	return err
}

// EventStatusIB reports why an event path produced no data.
type EventStatusIB struct {
	Path   EventPathIB
	Status StatusIB
}

func (e *EventStatusIB) Encode(w *tlv.Writer, tag tlv.Tag) error {
	return encodeSteps(
		func() error { return w.StartStructure(tag) },
		func() error { return e.Path.Encode(w, tlv.ContextTag(0)) },
		func() error { return e.Status.Encode(w, tlv.ContextTag(1)) },
		w.EndContainer,
	)
}

func (e *EventStatusIB) DecodeFrom(r *tlv.Reader) error {
	var path, status bool
	err := decodeContainer(r, tlv.ElementTypeStruct, func(tag uint32) error {
		switch tag {
		case 0:
			path = true
			return e.Path.DecodeFrom(r)
		case 1:
			status = true
			return e.Status.DecodeFrom(r)
		}
		return nil
	})
	if err == nil && !(path && status) {
		err = ErrMissingField
	}
	return err
}

// EventReportIB holds either an EventStatus or an EventData.
type EventReportIB struct {
	EventStatus *EventStatusIB
	EventData   *EventDataIB
}

func (e *EventReportIB) Encode(w *tlv.Writer, tag tlv.Tag) error {
	return encodeSteps(
		func() error { return w.StartStructure(tag) },
		func() error {
			if e.EventStatus == nil {
				return nil
			}
			return e.EventStatus.Encode(w, tlv.ContextTag(0))
		},
		func() error {
			if e.EventData == nil {
				return nil
			}
			return e.EventData.Encode(w, tlv.ContextTag(1))
		},
		w.EndContainer,
	)
}

func (e *EventReportIB) DecodeFrom(r *tlv.Reader) error {
	*e = EventReportIB{}
	err := decodeContainer(r, tlv.ElementTypeStruct, func(tag uint32) error {
		switch tag {
		case 0:
			e.EventStatus = &EventStatusIB{}
			return e.EventStatus.DecodeFrom(r)
		case 1:
			e.EventData = &EventDataIB{}
			return e.EventData.DecodeFrom(r)
		}
		return nil
	})
	if err == nil && (e.EventStatus == nil) == (e.EventData == nil) {
		err = ErrMissingField
	}
	return err
}

// DataVersionFilterIB lets a reader skip clusters whose data it already
// holds at the given version.
type DataVersionFilterIB struct {
	Path        ClusterPathIB
	DataVersion DataVersion
}

func (f *DataVersionFilterIB) Encode(w *tlv.Writer, tag tlv.Tag) error {
	return encodeSteps(
		func() error { return w.StartStructure(tag) },
		func() error { return f.Path.Encode(w, tlv.ContextTag(0)) },
		func() error { return w.PutUint(tlv.ContextTag(1), uint64(f.DataVersion)) },
		w.EndContainer,
	)
}

func (f *DataVersionFilterIB) DecodeFrom(r *tlv.Reader) error {
	*f = DataVersionFilterIB{}
	return decodeContainer(r, tlv.ElementTypeStruct, func(tag uint32) error {
		switch tag {
		case 0:
			return f.Path.DecodeFrom(r)
		case 1:
			return readUint(r, &f.DataVersion)
		}
		return nil
	})
}

// EventFilterIB limits event reports to numbers at or above EventMin.
type EventFilterIB struct {
	Node     *NodeID
	EventMin EventNumber
}

func (f *EventFilterIB) Encode(w *tlv.Writer, tag tlv.Tag) error {
	return encodeSteps(
		func() error { return w.StartStructure(tag) },
		func() error { return putOptionalUint(w, 0, f.Node) },
		func() error { return w.PutUint(tlv.ContextTag(1), uint64(f.EventMin)) },
		w.EndContainer,
	)
}

func (f *EventFilterIB) DecodeFrom(r *tlv.Reader) error {
	*f = EventFilterIB{}
	return decodeContainer(r, tlv.ElementTypeStruct, func(tag uint32) error {
		switch tag {
		case 0:
			return readOptionalUint(r, &f.Node)
		case 1:
			return readUint(r, &f.EventMin)
		}
		return nil
	})
}
