package pase

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/backkem/matter-core/pkg/tlv"
)

func testRandom(seed byte) (r [RandomSize]byte) {
	for i := range r {
		r[i] = seed + byte(i)
	}
	return r
}

func TestPBKDFParamResponseParams(t *testing.T) {
	resp := &PBKDFParamResponse{
		InitiatorRandom:    testRandom(0),
		ResponderRandom:    testRandom(0x80),
		ResponderSessionID: 0xBEEF,
		PBKDFParams:        &PBKDFParameters{Iterations: 1000, Salt: testSalt},
	}
	data, err := resp.Encode()
	require.NoError(t, err)
	back, err := DecodePBKDFParamResponse(data)
	require.NoError(t, err)
	assert.Equal(t, resp, back)

	resp.PBKDFParams = nil
	data, err = resp.Encode()
	require.NoError(t, err)
	back, err = DecodePBKDFParamResponse(data)
	require.NoError(t, err)
	assert.Nil(t, back.PBKDFParams)
}

func TestSessionIDUsesTwoOctets(t *testing.T) {
	req := &PBKDFParamRequest{InitiatorRandom: testRandom(1), InitiatorSessionID: 1}
	data, err := req.Encode()
	require.NoError(t, err)

	r := tlv.NewReader(data)
	require.NoError(t, r.Next())
	require.NoError(t, r.EnterContainer())
	require.NoError(t, r.Expect(tlv.ContextTag(tagReqInitiatorRandom)))
	require.NoError(t, r.Expect(tlv.ContextTag(tagReqInitiatorSessionID)))
	assert.Equal(t, tlv.ElementTypeUInt16, r.Type())
}

// Session parameters and unknown members are skipped.
func TestDecodeSkipsUnknownMembers(t *testing.T) {
	w := tlv.NewWriter(0)
	random := testRandom(7)
	require.NoError(t, w.StartStructure(tlv.Anonymous()))
	require.NoError(t, w.PutBytes(tlv.ContextTag(1), random[:]))
	require.NoError(t, w.PutUint16(tlv.ContextTag(2), 42))
	require.NoError(t, w.PutUint(tlv.ContextTag(3), 0))
	require.NoError(t, w.PutBool(tlv.ContextTag(4), true))
	require.NoError(t, w.StartStructure(tlv.ContextTag(5)))
	require.NoError(t, w.PutUint(tlv.ContextTag(1), 5000))
	require.NoError(t, w.EndContainer())
	require.NoError(t, w.PutString(tlv.ContextTag(9), "future"))
	require.NoError(t, w.EndContainer())
	data, err := w.Finish()
	require.NoError(t, err)

	req, err := DecodePBKDFParamRequest(data)
	require.NoError(t, err)
	assert.Equal(t, random, req.InitiatorRandom)
	assert.Equal(t, uint16(42), req.InitiatorSessionID)
	assert.True(t, req.HasPBKDFParameters)
}

func TestPakeMessages(t *testing.T) {
	p2 := &Pake2{PB: []byte{4, 1, 2}, CB: []byte{9, 9}}
	data, err := p2.Encode()
	require.NoError(t, err)
	back, err := DecodePake2(data)
	require.NoError(t, err)
	assert.Equal(t, p2, back)

	// Pake2 without its confirmation is rejected.
	data, err = (&Pake1{PA: []byte{4, 1, 2}}).Encode()
	require.NoError(t, err)
	_, err = DecodePake2(data)
	assert.ErrorIs(t, err, ErrInvalidMessage)
}

func TestDecodeInvalidMessages(t *testing.T) {
	_, err := DecodePBKDFParamRequest(nil)
	assert.ErrorIs(t, err, ErrInvalidMessage)
	_, err = DecodePake1([]byte{0x15, 0x18})
	assert.ErrorIs(t, err, ErrInvalidMessage)

	// An array at top level is not a message.
	_, err = DecodePake3([]byte{0x16, 0x18})
	assert.ErrorIs(t, err, ErrInvalidMessage)

	// Short random.
	w := tlv.NewWriter(0)
	require.NoError(t, w.StartStructure(tlv.Anonymous()))
	require.NoError(t, w.PutBytes(tlv.ContextTag(1), []byte{1, 2, 3}))
	require.NoError(t, w.EndContainer())
	_, err = DecodePBKDFParamRequest(w.Bytes())
	assert.ErrorIs(t, err, ErrInvalidRandom)
}
