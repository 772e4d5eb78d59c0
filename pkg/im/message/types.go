package message

type (
	NodeID         uint64
	EndpointID     uint16
	ClusterID      uint32
	AttributeID    uint32
	EventID        uint32
	ListIndex      uint16
	DataVersion    uint32
	EventNumber    uint64
	SubscriptionID uint32
)

// Ptr returns a pointer to v, for optional IB fields.
func Ptr[T any](v T) *T {
	return &v
}
