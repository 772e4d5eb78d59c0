package im

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	imsg "github.com/backkem/matter-core/pkg/im/message"
)

func TestErrorToStatus(t *testing.T) {
	for _, tc := range []struct {
		err  error
		want imsg.Status
	}{
		{nil, imsg.StatusSuccess},
		{ErrClusterNotFound, imsg.StatusUnsupportedCluster},
		{fmt.Errorf("wrapped: %w", ErrAttributeNotFound), imsg.StatusUnsupportedAttribute},
		{ErrNoMemory, imsg.StatusResourceExhausted},
		{ErrTimeout, imsg.StatusTimeout},
		{fmt.Errorf("%w: %w", ErrInvalidMessageType, imsg.StatusConstraintError), imsg.StatusConstraintError},
		{errors.New("other"), imsg.StatusFailure},
	} {
		assert.Equal(t, tc.want, ErrorToStatus(tc.err), "%v", tc.err)
	}
}

func TestStatusToErrorRoundTrip(t *testing.T) {
	assert.NoError(t, StatusToError(imsg.StatusSuccess))
	for _, s := range []imsg.Status{
		imsg.StatusUnsupportedEndpoint,
		imsg.StatusUnsupportedCluster,
		imsg.StatusBusy,
		imsg.StatusInvalidAction,
	} {
		assert.Equal(t, s, ErrorToStatus(StatusToError(s)))
	}
}

func TestMapCatalog(t *testing.T) {
	c := &MapCatalog{}
	a := c.Register(1, 0x0006, &recordingSink{})
	b := c.Register(2, 0x0006, &recordingSink{})
	assert.NotEqual(t, a, b)
	assert.Equal(t, a, c.Register(1, 0x0006, &recordingSink{}))

	h, err := c.LocateClusterDataHandle(2, 0x0006)
	require.NoError(t, err)
	assert.Equal(t, b, h)
	ep, err := c.GetEndpointID(h)
	require.NoError(t, err)
	assert.Equal(t, imsg.EndpointID(2), ep)

	_, err = c.LocateClusterDataHandle(3, 0x0006)
	assert.ErrorIs(t, err, ErrClusterNotFound)
	_, err = c.LocateClusterInstance(42)
	assert.ErrorIs(t, err, ErrClusterNotFound)
}
