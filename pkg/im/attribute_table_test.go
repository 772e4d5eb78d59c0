package im

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	imsg "github.com/backkem/matter-core/pkg/im/message"
	"github.com/backkem/matter-core/pkg/tlv"
)

func putUint(v uint64) func(w *tlv.Writer) error {
	return func(w *tlv.Writer) error { return w.PutUint(tlv.Anonymous(), v) }
}

func TestAttributeTableConcreteRead(t *testing.T) {
	table := NewAttributeTable()
	require.NoError(t, table.Set(1, 0x0006, 0x0000, putUint(1)))

	reports := table.ReadAttributes(imsg.ConcreteAttributePath(1, 0x0006, 0x0000))
	require.Len(t, reports, 1)
	d := reports[0].AttributeData
	require.NotNil(t, d)
	assert.Equal(t, imsg.DataVersion(1), d.DataVersion)
	r, err := d.Value()
	require.NoError(t, err)
	v, err := r.Uint()
	require.NoError(t, err)
	assert.Equal(t, uint64(1), v)
}

func TestAttributeTableMissingPaths(t *testing.T) {
	table := NewAttributeTable()
	require.NoError(t, table.Set(1, 0x0006, 0x0000, putUint(1)))

	for _, tc := range []struct {
		path imsg.AttributePathIB
		want imsg.Status
	}{
		{imsg.ConcreteAttributePath(2, 0x0006, 0x0000), imsg.StatusUnsupportedEndpoint},
		{imsg.ConcreteAttributePath(1, 0x0008, 0x0000), imsg.StatusUnsupportedCluster},
		{imsg.ConcreteAttributePath(1, 0x0006, 0x0001), imsg.StatusUnsupportedAttribute},
	} {
		reports := table.ReadAttributes(tc.path)
		require.Len(t, reports, 1, tc.path.String())
		require.NotNil(t, reports[0].AttributeStatus, tc.path.String())
		assert.Equal(t, tc.want, reports[0].AttributeStatus.Status.Status, tc.path.String())
		assert.Equal(t, tc.path, reports[0].AttributeStatus.Path)
	}

	listed := imsg.ConcreteAttributePath(1, 0x0006, 0x0000)
	listed.ListIndex = imsg.Ptr[imsg.ListIndex](0)
	assert.Equal(t, imsg.StatusInvalidAction, table.ReadAttributes(listed)[0].AttributeStatus.Status.Status)
}

func TestAttributeTableWildcardOrder(t *testing.T) {
	table := NewAttributeTable()
	require.NoError(t, table.Set(2, 0x0006, 0x0000, putUint(4)))
	require.NoError(t, table.Set(1, 0x0028, 0x0002, putUint(3)))
	require.NoError(t, table.Set(1, 0x0006, 0x4001, putUint(2)))
	require.NoError(t, table.Set(1, 0x0006, 0x0000, putUint(1)))

	var paths []string
	for _, r := range table.ReadAttributes(imsg.AttributePathIB{}) {
		paths = append(paths, r.AttributeData.Path.String())
	}
	assert.Equal(t, []string{"0x1/0x6/0x0", "0x1/0x6/0x4001", "0x1/0x28/0x2", "0x2/0x6/0x0"}, paths)

	onOff := table.ReadAttributes(imsg.AttributePathIB{Cluster: imsg.Ptr[imsg.ClusterID](0x0006), Attribute: imsg.Ptr[imsg.AttributeID](0)})
	assert.Len(t, onOff, 2)
	assert.Empty(t, table.ReadAttributes(imsg.AttributePathIB{Endpoint: imsg.Ptr[imsg.EndpointID](9)}))
}

func TestAttributeTableDataVersion(t *testing.T) {
	table := NewAttributeTable()
	_, ok := table.DataVersion(1, 0x0006)
	assert.False(t, ok)

	require.NoError(t, table.Set(1, 0x0006, 0x0000, putUint(1)))
	require.NoError(t, table.Set(1, 0x0006, 0x0000, putUint(0)))
	v, ok := table.DataVersion(1, 0x0006)
	require.True(t, ok)
	assert.Equal(t, imsg.DataVersion(2), v)

	reports := table.ReadAttributes(imsg.ConcreteAttributePath(1, 0x0006, 0x0000))
	assert.Equal(t, v, reports[0].AttributeData.DataVersion)
}
