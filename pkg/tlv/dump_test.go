package tlv

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDump(t *testing.T) {
	w := NewWriter(0)
	require.NoError(t, w.StartStructure(Anonymous()))
	require.NoError(t, w.PutUint(ContextTag(0), 0xFFF1))
	require.NoError(t, w.PutString(ContextTag(1), "Acme"))
	require.NoError(t, w.StartArray(ContextTag(2)))
	require.NoError(t, w.PutInt(Anonymous(), -3))
	require.NoError(t, w.PutBool(Anonymous(), true))
	require.NoError(t, w.PutNull(Anonymous()))
	require.NoError(t, w.EndContainer())
	require.NoError(t, w.PutBytes(ContextTag(3), []byte{0xCA, 0xFE}))
	require.NoError(t, w.PutFloat32(ContextTag(4), 1.5))
	require.NoError(t, w.EndContainer())
	b, err := w.Finish()
	require.NoError(t, err)

	r := NewReader(b)
	require.NoError(t, r.Next())
	var out strings.Builder
	require.NoError(t, Dump(&out, r))
	assert.Equal(t, `Struct {
  ctx:0 = 65521 (0xFFF1)
  ctx:1 = "Acme"
  ctx:2 = Array {
    -3
    true
    null
  }
  ctx:3 = hex:cafe
  ctx:4 = 1.5
}
`, out.String())
}

func TestDumpOmitsOwnTag(t *testing.T) {
	w := NewWriter(0)
	require.NoError(t, w.PutString(ContextTag(2), "Acme"))
	r := NewReader(w.Bytes())
	require.NoError(t, r.Next())
	var out strings.Builder
	require.NoError(t, Dump(&out, r))
	assert.Equal(t, "\"Acme\"\n", out.String())
}
