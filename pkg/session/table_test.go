package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tableSession(id uint16) *Session {
	return &Session{typ: SessionTypePASE, localSessionID: id}
}

func TestTableAllocateSequential(t *testing.T) {
	tbl := NewTable(3)
	for want := uint16(1); want <= 3; want++ {
		id, err := tbl.AllocateID()
		require.NoError(t, err)
		assert.Equal(t, want, id)
		require.NoError(t, tbl.Add(tableSession(id)))
	}
	_, err := tbl.AllocateID()
	assert.ErrorIs(t, err, ErrSessionTableFull)
	assert.ErrorIs(t, tbl.Add(tableSession(9)), ErrSessionTableFull)

	tbl.Remove(2)
	id, err := tbl.AllocateID()
	require.NoError(t, err)
	assert.Equal(t, uint16(4), id)
}

func TestTableAllocateWrapsAndSkipsLive(t *testing.T) {
	tbl := NewTable(2)
	require.NoError(t, tbl.Add(tableSession(1)))
	tbl.nextID = 0xFFFF

	id, err := tbl.AllocateID()
	require.NoError(t, err)
	assert.Equal(t, uint16(0xFFFF), id)

	// 0 is never handed out and 1 is live.
	id, err = tbl.AllocateID()
	require.NoError(t, err)
	assert.Equal(t, uint16(2), id)
}

func TestTableLookup(t *testing.T) {
	tbl := NewTable(0)
	assert.Equal(t, DefaultMaxSessions, tbl.Capacity())

	s := tableSession(5)
	s.fabricIndex, s.peerNodeID = 1, 0x99
	require.NoError(t, tbl.Add(s))
	assert.ErrorIs(t, tbl.Add(tableSession(5)), ErrDuplicateSession)
	assert.ErrorIs(t, tbl.Add(tableSession(0)), ErrInvalidSessionID)

	assert.Same(t, s, tbl.FindByLocalID(5))
	assert.Equal(t, []*Session{s}, tbl.FindByPeer(1, 0x99))
	assert.Empty(t, tbl.FindByPeer(2, 0x99))
	assert.Equal(t, 1, tbl.Count())
	assert.Same(t, s, tbl.Remove(5))
	assert.Nil(t, tbl.Remove(5))
}
