package message

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/backkem/matter-core/pkg/tlv"
)

func boolValue(v bool) []byte {
	if v {
		return []byte{0x09}
	}
	return []byte{0x08}
}

func TestStatusResponseWireLayout(t *testing.T) {
	data, err := Marshal(&StatusResponseMessage{Status: StatusSuccess})
	require.NoError(t, err)
	assert.Equal(t, []byte{0x15, 0x24, 0x00, 0x00, 0x24, 0xFF, Revision, 0x18}, data)

	status, err := DecodeStatusResponse(data)
	require.NoError(t, err)
	assert.Equal(t, StatusSuccess, status)

	_, err = DecodeStatusResponse([]byte{0x15, 0x18})
	assert.ErrorIs(t, err, ErrMissingField)
}

func TestAttributePathWireLayout(t *testing.T) {
	p := ConcreteAttributePath(1, 6, 0)
	w := tlv.NewWriter(0)
	require.NoError(t, p.Encode(w, tlv.Anonymous()))
	assert.Equal(t, []byte{
		0x17,
		0x24, 0x02, 0x01,
		0x24, 0x03, 0x06,
		0x24, 0x04, 0x00,
		0x18,
	}, w.Bytes())
	assert.True(t, p.IsConcrete())
	assert.Equal(t, "0x1/0x6/0x0", p.String())
}

func TestAttributePathWildcardsAndNullIndex(t *testing.T) {
	w := tlv.NewWriter(0)
	require.NoError(t, w.StartList(tlv.Anonymous()))
	require.NoError(t, w.PutUint(tlv.ContextTag(attrPathTagCluster), 0x0028))
	require.NoError(t, w.PutNull(tlv.ContextTag(attrPathTagListIndex)))
	require.NoError(t, w.PutString(tlv.ContextTag(9), "ignored"))
	require.NoError(t, w.EndContainer())

	r := tlv.NewReader(w.Bytes())
	require.NoError(t, r.Next())
	var p AttributePathIB
	require.NoError(t, p.DecodeFrom(r))
	assert.Nil(t, p.Endpoint)
	assert.Nil(t, p.ListIndex)
	require.NotNil(t, p.Cluster)
	assert.Equal(t, ClusterID(0x28), *p.Cluster)
	assert.False(t, p.IsConcrete())
	assert.Equal(t, "*/0x28/*", p.String())
}

func TestReadRequestRoundTrip(t *testing.T) {
	in := &ReadRequestMessage{
		AttributeRequests: []AttributePathIB{
			ConcreteAttributePath(1, 6, 0),
			{Cluster: Ptr(ClusterID(0x28))},
		},
		EventRequests: []EventPathIB{
			{Endpoint: Ptr(EndpointID(0)), Cluster: Ptr(ClusterID(0x28)), Event: Ptr(EventID(0)), IsUrgent: Ptr(true)},
		},
		EventFilters:   []EventFilterIB{{EventMin: 7}},
		FabricFiltered: true,
		DataVersionFilters: []DataVersionFilterIB{
			{Path: ClusterPathIB{Endpoint: Ptr(EndpointID(1)), Cluster: Ptr(ClusterID(6))}, DataVersion: 42},
		},
	}
	data, err := Marshal(in)
	require.NoError(t, err)

	var out ReadRequestMessage
	require.NoError(t, out.Decode(tlv.NewReader(data)))
	assert.Equal(t, in, &out)
}

func TestReadRequestOmitsEmptyLists(t *testing.T) {
	data, err := Marshal(&ReadRequestMessage{FabricFiltered: false})
	require.NoError(t, err)
	assert.Equal(t, []byte{0x15, 0x28, 0x03, 0x24, 0xFF, Revision, 0x18}, data)
}

func TestReportDataRoundTrip(t *testing.T) {
	data := AttributeDataIB{DataVersion: 3, Path: ConcreteAttributePath(1, 6, 0)}
	require.NoError(t, data.SetValue(func(w *tlv.Writer) error {
		return w.PutBool(tlv.Anonymous(), true)
	}))
	assert.Equal(t, boolValue(true), data.Data)

	in := &ReportDataMessage{
		SubscriptionID: Ptr(SubscriptionID(9)),
		AttributeReports: []AttributeReportIB{
			{AttributeData: &data},
			{AttributeStatus: &AttributeStatusIB{
				Path:   ConcreteAttributePath(1, 6, 0x4000),
				Status: StatusIB{Status: StatusUnsupportedAttribute},
			}},
		},
		EventReports: []EventReportIB{
			{EventData: &EventDataIB{
				Path:            EventPathIB{Endpoint: Ptr(EndpointID(0)), Cluster: Ptr(ClusterID(0x28)), Event: Ptr(EventID(0))},
				EventNumber:     100,
				Priority:        EventPriorityCritical,
				SystemTimestamp: Ptr(uint64(5000)),
				Data:            boolValue(false),
			}},
			{EventStatus: &EventStatusIB{
				Path:   EventPathIB{Endpoint: Ptr(EndpointID(2))},
				Status: StatusIB{Status: StatusUnsupportedEvent, ClusterStatus: Ptr(uint8(1))},
			}},
		},
		MoreChunkedMessages: true,
		SuppressResponse:    true,
	}
	encoded, err := Marshal(in)
	require.NoError(t, err)

	var out ReportDataMessage
	require.NoError(t, out.Decode(tlv.NewReader(encoded)))
	assert.Equal(t, in, &out)

	v, err := out.AttributeReports[0].AttributeData.Value()
	require.NoError(t, err)
	b, err := v.Bool()
	require.NoError(t, err)
	assert.True(t, b)
}

func TestReportDataFlagsDefaultFalse(t *testing.T) {
	var out ReportDataMessage
	require.NoError(t, out.Decode(tlv.NewReader([]byte{0x15, 0x18})))
	assert.False(t, out.MoreChunkedMessages)
	assert.False(t, out.SuppressResponse)
	assert.Empty(t, out.AttributeReports)
}

func TestDecodeRejectsMalformed(t *testing.T) {
	decodeReport := func(data []byte) error {
		var m ReportDataMessage
		return m.Decode(tlv.NewReader(data))
	}
	decodeRead := func(data []byte) error {
		var m ReadRequestMessage
		return m.Decode(tlv.NewReader(data))
	}
	path := ConcreteAttributePath(1, 6, 0)

	tests := []struct {
		name   string
		decode func([]byte) error
		build  []func(w *tlv.Writer) error
		want   error
	}{
		{
			name:   "attribute report with neither member",
			decode: decodeReport,
			build: []func(w *tlv.Writer) error{
				func(w *tlv.Writer) error { return w.StartStructure(tlv.Anonymous()) },
				func(w *tlv.Writer) error { return w.StartArray(tlv.ContextTag(reportDataTagAttributeReports)) },
				func(w *tlv.Writer) error { return w.StartStructure(tlv.Anonymous()) },
			},
			want: ErrMissingField,
		},
		{
			name:   "attribute data without a value",
			decode: decodeReport,
			build: []func(w *tlv.Writer) error{
				func(w *tlv.Writer) error { return w.StartStructure(tlv.Anonymous()) },
				func(w *tlv.Writer) error { return w.StartArray(tlv.ContextTag(reportDataTagAttributeReports)) },
				func(w *tlv.Writer) error { return w.StartStructure(tlv.Anonymous()) },
				func(w *tlv.Writer) error { return w.StartStructure(tlv.ContextTag(attrReportTagAttributeData)) },
				func(w *tlv.Writer) error { return path.Encode(w, tlv.ContextTag(attrDataTagPath)) },
			},
			want: ErrMissingField,
		},
		{
			name:   "path encoded as a structure",
			decode: decodeRead,
			build: []func(w *tlv.Writer) error{
				func(w *tlv.Writer) error { return w.StartStructure(tlv.Anonymous()) },
				func(w *tlv.Writer) error { return w.StartArray(tlv.ContextTag(readReqTagAttributeRequests)) },
				func(w *tlv.Writer) error { return w.StartStructure(tlv.Anonymous()) },
			},
			want: ErrInvalidType,
		},
		{
			name:   "top level array",
			decode: decodeRead,
			build: []func(w *tlv.Writer) error{
				func(w *tlv.Writer) error { return w.StartArray(tlv.Anonymous()) },
			},
			want: ErrInvalidType,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := tlv.NewWriter(0)
			for _, step := range tt.build {
				require.NoError(t, step(w))
			}
			for w.ContainerDepth() > 0 {
				require.NoError(t, w.EndContainer())
			}
			assert.ErrorIs(t, tt.decode(w.Bytes()), tt.want)
		})
	}
}

func TestNames(t *testing.T) {
	assert.Equal(t, "ReportData", OpcodeReportData.String())
	assert.Equal(t, "Opcode(0x7f)", Opcode(0x7f).String())
	assert.Equal(t, "UnsupportedAttribute", StatusUnsupportedAttribute.String())
	assert.Equal(t, "Status(0x02)", Status(0x02).String())
	assert.True(t, StatusSuccess.IsSuccess())
	assert.EqualError(t, StatusBusy, "im: status Busy")
}

func TestPathStrings(t *testing.T) {
	ev := EventPathIB{Endpoint: Ptr(EndpointID(0)), Cluster: Ptr(ClusterID(0x28)), Event: Ptr(EventID(0))}
	assert.Equal(t, "0x0/0x28/0x0", ev.String())
	assert.Equal(t, "0x2/*/*", (&EventPathIB{Endpoint: Ptr(EndpointID(2))}).String())

	attr := ConcreteAttributePath(0xFFFE, 0xFFF1FC01, 0xFFFC)
	assert.Equal(t, "0xfffe/0xfff1fc01/0xfffc", attr.String())
}
