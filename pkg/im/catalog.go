package im

import (
	"fmt"
	"sync"

	imsg "github.com/backkem/matter-core/pkg/im/message"
	"github.com/backkem/matter-core/pkg/tlv"
)

// ClusterDataHandle is an application handle naming one cluster instance
// (an endpoint and cluster pair) in a Catalog.
type ClusterDataHandle uint16

// ClusterDataSink stores attribute values decoded from reports.
type ClusterDataSink interface {
	// StoreDataElement is called once per reported attribute. data is
	// positioned on the value.
	StoreDataElement(path *imsg.AttributePathIB, data *tlv.Reader) error
}

// Catalog resolves cluster instances to handles and sinks.
type Catalog interface {
	LocateClusterDataHandle(endpoint imsg.EndpointID, cluster imsg.ClusterID) (ClusterDataHandle, error)
	LocateClusterInstance(h ClusterDataHandle) (ClusterDataSink, error)
	GetEndpointID(h ClusterDataHandle) (imsg.EndpointID, error)
	GetClusterID(h ClusterDataHandle) (imsg.ClusterID, error)
}

type catalogEntry struct {
	endpoint imsg.EndpointID
	cluster  imsg.ClusterID
	sink     ClusterDataSink
}

// MapCatalog is a Catalog backed by a slice; handles are indices.
type MapCatalog struct {
	mu      sync.RWMutex
	entries []catalogEntry
}

// Register adds or replaces the sink of a cluster instance.
func (c *MapCatalog) Register(endpoint imsg.EndpointID, cluster imsg.ClusterID, sink ClusterDataSink) ClusterDataHandle {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := range c.entries {
		if c.entries[i].endpoint == endpoint && c.entries[i].cluster == cluster {
			c.entries[i].sink = sink
			return ClusterDataHandle(i)
		}
	}
	c.entries = append(c.entries, catalogEntry{endpoint: endpoint, cluster: cluster, sink: sink})
	return ClusterDataHandle(len(c.entries) - 1)
}

func (c *MapCatalog) LocateClusterDataHandle(endpoint imsg.EndpointID, cluster imsg.ClusterID) (ClusterDataHandle, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for i := range c.entries {
		if c.entries[i].endpoint == endpoint && c.entries[i].cluster == cluster {
			return ClusterDataHandle(i), nil
		}
	}
	return 0, fmt.Errorf("%w: endpoint %d cluster %#x", ErrClusterNotFound, endpoint, cluster)
}

func (c *MapCatalog) entry(h ClusterDataHandle) (catalogEntry, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if int(h) >= len(c.entries) {
		return catalogEntry{}, fmt.Errorf("%w: handle %d", ErrClusterNotFound, h)
	}
	return c.entries[h], nil
}

func (c *MapCatalog) LocateClusterInstance(h ClusterDataHandle) (ClusterDataSink, error) {
	e, err := c.entry(h)
	return e.sink, err
}

func (c *MapCatalog) GetEndpointID(h ClusterDataHandle) (imsg.EndpointID, error) {
	e, err := c.entry(h)
	return e.endpoint, err
}

func (c *MapCatalog) GetClusterID(h ClusterDataHandle) (imsg.ClusterID, error) {
	e, err := c.entry(h)
	return e.cluster, err
}

// SinkFunc adapts a function to ClusterDataSink.
type SinkFunc func(path *imsg.AttributePathIB, data *tlv.Reader) error

func (f SinkFunc) StoreDataElement(path *imsg.AttributePathIB, data *tlv.Reader) error {
	return f(path, data)
}
