package tlv

import (
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// nested builds {0: 1, 1: [a, b], 2: {0: true}, 3: "x"}.
func nested(t *testing.T) []byte {
	t.Helper()
	w := NewWriter(0)
	require.NoError(t, w.StartStructure(Anonymous()))
	require.NoError(t, w.PutUint(ContextTag(0), 1))
	require.NoError(t, w.StartArray(ContextTag(1)))
	require.NoError(t, w.PutString(Anonymous(), "a"))
	require.NoError(t, w.PutString(Anonymous(), "b"))
	require.NoError(t, w.EndContainer())
	require.NoError(t, w.StartStructure(ContextTag(2)))
	require.NoError(t, w.PutBool(ContextTag(0), true))
	require.NoError(t, w.EndContainer())
	require.NoError(t, w.PutString(ContextTag(3), "x"))
	require.NoError(t, w.EndContainer())
	b, err := w.Finish()
	require.NoError(t, err)
	return b
}

func TestReaderSkipsUnenteredContainers(t *testing.T) {
	r := NewReader(nested(t))
	require.NoError(t, r.Next())
	require.NoError(t, r.EnterContainer())

	var seen []uint32
	for {
		err := r.Next()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		seen = append(seen, r.Tag().Number())
	}
	assert.Equal(t, []uint32{0, 1, 2, 3}, seen)

	require.NoError(t, r.ExitContainer())
	assert.Equal(t, 0, r.ContainerDepth())
	assert.Equal(t, io.EOF, r.Next())
}

func TestReaderExitContainerMidway(t *testing.T) {
	r := NewReader(nested(t))
	require.NoError(t, r.Next())
	require.NoError(t, r.EnterContainer())
	require.NoError(t, r.Expect(ContextTag(0)))
	require.NoError(t, r.Expect(ContextTag(1)))
	require.NoError(t, r.EnterContainer())
	require.NoError(t, r.Next())
	s, err := r.String()
	require.NoError(t, err)
	assert.Equal(t, "a", s)

	ct, ok := r.ContainerType()
	require.True(t, ok)
	assert.Equal(t, ElementTypeArray, ct)

	require.NoError(t, r.ExitContainer())
	require.NoError(t, r.Expect(ContextTag(2)))
	require.NoError(t, r.Expect(ContextTag(3)))
	require.NoError(t, r.ExitContainer())
	assert.Equal(t, io.EOF, r.Next())
}

func TestReaderCloneIsIndependent(t *testing.T) {
	r := NewReader(nested(t))
	require.NoError(t, r.Next())
	require.NoError(t, r.EnterContainer())
	require.NoError(t, r.Next())

	saved := *r
	require.NoError(t, r.Next())
	require.NoError(t, r.Next())
	assert.Equal(t, uint32(2), r.Tag().Number())

	v, err := saved.Uint()
	require.NoError(t, err)
	assert.Equal(t, uint64(1), v)
	require.NoError(t, saved.Next())
	assert.Equal(t, uint32(1), saved.Tag().Number())

	c := r.Clone()
	require.NoError(t, c.Next())
	assert.Equal(t, uint32(3), c.Tag().Number())
	assert.Equal(t, uint32(2), r.Tag().Number())
}

func TestReaderTypeMismatch(t *testing.T) {
	r := NewReader([]byte{0x04, 0x2a})
	require.NoError(t, r.Next())
	_, err := r.Int()
	assert.ErrorIs(t, err, ErrTypeMismatch)
	_, err = r.String()
	assert.ErrorIs(t, err, ErrTypeMismatch)
	v, err := r.Uint()
	require.NoError(t, err)
	assert.Equal(t, uint64(42), v)
}

func TestReaderErrors(t *testing.T) {
	tests := []struct {
		name string
		in   []byte
		want error
	}{
		{"truncated int16", []byte{0x01, 0x2a}, ErrUnexpectedEOF},
		{"truncated string", []byte{0x0c, 0x05, 'a'}, ErrUnexpectedEOF},
		{"truncated tag", []byte{0x24}, ErrUnexpectedEOF},
		{"reserved type", []byte{0x1f}, ErrInvalidElementType},
		{"stray end", []byte{0x18}, ErrUnexpectedEndOfContainer},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			r := NewReader(tc.in)
			assert.ErrorIs(t, r.Next(), tc.want)
		})
	}
}

func TestReaderUnterminatedContainer(t *testing.T) {
	r := NewReader([]byte{0x15, 0x24, 0x00, 0x01})
	require.NoError(t, r.Next())
	require.NoError(t, r.EnterContainer())
	require.NoError(t, r.Next())
	assert.ErrorIs(t, r.Next(), ErrUnexpectedEOF)
}

func TestReaderNoElement(t *testing.T) {
	r := NewReader(nil)
	_, err := r.Uint()
	assert.ErrorIs(t, err, ErrNoElement)
	assert.ErrorIs(t, r.EnterContainer(), ErrNoElement)
	assert.ErrorIs(t, r.ExitContainer(), ErrNotInContainer)
	assert.Equal(t, io.EOF, r.Next())
}

func TestReaderNarrowing(t *testing.T) {
	w := NewWriter(0)
	require.NoError(t, w.PutUint(Anonymous(), 70000))
	r := NewReader(w.Bytes())
	require.NoError(t, r.Next())
	_, err := r.Uint16()
	assert.ErrorIs(t, err, ErrOverflow)
	v, err := r.Uint32()
	require.NoError(t, err)
	assert.Equal(t, uint32(70000), v)
}
