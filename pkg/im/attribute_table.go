package im

import (
	"slices"
	"sync"

	imsg "github.com/backkem/matter-core/pkg/im/message"
	"github.com/backkem/matter-core/pkg/tlv"
)

// AttributeSource produces the reports answering one requested attribute
// path. A concrete path yields exactly one report; a wildcard path yields
// data for every match and nothing for misses.
type AttributeSource interface {
	ReadAttributes(path imsg.AttributePathIB) []imsg.AttributeReportIB
}

type attributeKey struct {
	endpoint  imsg.EndpointID
	cluster   imsg.ClusterID
	attribute imsg.AttributeID
}

func (k attributeKey) compare(o attributeKey) int {
	switch {
	case k.endpoint != o.endpoint:
		return int(k.endpoint) - int(o.endpoint)
	case k.cluster != o.cluster:
		if k.cluster < o.cluster {
			return -1
		}
		return 1
	case k.attribute < o.attribute:
		return -1
	case k.attribute > o.attribute:
		return 1
	}
	return 0
}

type clusterKey struct {
	endpoint imsg.EndpointID
	cluster  imsg.ClusterID
}

// AttributeTable is an in-memory AttributeSource holding encoded attribute
// values. Each cluster instance carries a data version that every Set
// bumps. It is safe for concurrent use.
type AttributeTable struct {
	mu       sync.RWMutex
	values   map[attributeKey][]byte
	versions map[clusterKey]imsg.DataVersion
}

// NewAttributeTable returns an empty table.
func NewAttributeTable() *AttributeTable {
	return &AttributeTable{
		values:   map[attributeKey][]byte{},
		versions: map[clusterKey]imsg.DataVersion{},
	}
}

// Set stores the value written by encode, which must write one element
// with an anonymous tag.
func (t *AttributeTable) Set(endpoint imsg.EndpointID, cluster imsg.ClusterID, attribute imsg.AttributeID, encode func(w *tlv.Writer) error) error {
	var data imsg.AttributeDataIB
	if err := data.SetValue(encode); err != nil {
		return err
	}
	t.SetRaw(endpoint, cluster, attribute, data.Data)
	return nil
}

// SetRaw stores an already encoded anonymous element.
func (t *AttributeTable) SetRaw(endpoint imsg.EndpointID, cluster imsg.ClusterID, attribute imsg.AttributeID, data []byte) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.values[attributeKey{endpoint, cluster, attribute}] = append([]byte(nil), data...)
	t.versions[clusterKey{endpoint, cluster}]++
}

// DataVersion returns the data version of a cluster instance.
func (t *AttributeTable) DataVersion(endpoint imsg.EndpointID, cluster imsg.ClusterID) (imsg.DataVersion, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	v, ok := t.versions[clusterKey{endpoint, cluster}]
	return v, ok
}

// ReadAttributes implements AttributeSource.
func (t *AttributeTable) ReadAttributes(path imsg.AttributePathIB) []imsg.AttributeReportIB {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if path.IsConcrete() {
		if path.ListIndex != nil {
			return []imsg.AttributeReportIB{statusReport(path, imsg.StatusInvalidAction)}
		}
		key := attributeKey{*path.Endpoint, *path.Cluster, *path.Attribute}
		if _, ok := t.values[key]; !ok {
			return []imsg.AttributeReportIB{statusReport(path, t.missing(key))}
		}
		return []imsg.AttributeReportIB{t.dataReport(key)}
	}

	var keys []attributeKey
	for k := range t.values {
		if (path.Endpoint == nil || *path.Endpoint == k.endpoint) &&
			(path.Cluster == nil || *path.Cluster == k.cluster) &&
			(path.Attribute == nil || *path.Attribute == k.attribute) {
			keys = append(keys, k)
		}
	}
	slices.SortFunc(keys, attributeKey.compare)

	reports := make([]imsg.AttributeReportIB, 0, len(keys))
	for _, k := range keys {
		reports = append(reports, t.dataReport(k))
	}
	return reports
}

func (t *AttributeTable) dataReport(k attributeKey) imsg.AttributeReportIB {
	return imsg.AttributeReportIB{AttributeData: &imsg.AttributeDataIB{
		DataVersion: t.versions[clusterKey{k.endpoint, k.cluster}],
		Path:        imsg.ConcreteAttributePath(k.endpoint, k.cluster, k.attribute),
		Data:        t.values[k],
	}}
}

// missing names the most specific part of key that does not exist.
func (t *AttributeTable) missing(key attributeKey) imsg.Status {
	var endpoint bool
	for ck := range t.versions {
		if ck.endpoint != key.endpoint {
			continue
		}
		endpoint = true
		if ck.cluster == key.cluster {
			return imsg.StatusUnsupportedAttribute
		}
	}
	if endpoint {
		return imsg.StatusUnsupportedCluster
	}
	return imsg.StatusUnsupportedEndpoint
}

func statusReport(path imsg.AttributePathIB, status imsg.Status) imsg.AttributeReportIB {
	return imsg.AttributeReportIB{AttributeStatus: &imsg.AttributeStatusIB{
		Path:   path,
		Status: imsg.StatusIB{Status: status},
	}}
}
