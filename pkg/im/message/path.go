package message

import (
	"fmt"

	"github.com/backkem/matter-core/pkg/tlv"
)

// AttributePathIB addresses one attribute, or many when fields are left
// nil as wildcards. It is encoded as a list.
type AttributePathIB struct {
	EnableTagCompression *bool
	Node                 *NodeID
	Endpoint             *EndpointID
	Cluster              *ClusterID
	Attribute            *AttributeID
	ListIndex            *ListIndex
}

const (
	attrPathTagEnableTagCompression = 0
	attrPathTagNode                 = 1
	attrPathTagEndpoint             = 2
	attrPathTagCluster              = 3
	attrPathTagAttribute            = 4
	attrPathTagListIndex            = 5
)

// ConcreteAttributePath is a fully resolved attribute address.
func ConcreteAttributePath(endpoint EndpointID, cluster ClusterID, attribute AttributeID) AttributePathIB {
	return AttributePathIB{Endpoint: &endpoint, Cluster: &cluster, Attribute: &attribute}
}

// IsConcrete reports whether the path names exactly one attribute.
func (p *AttributePathIB) IsConcrete() bool {
	return p.Endpoint != nil && p.Cluster != nil && p.Attribute != nil
}

func (p *AttributePathIB) String() string {
	return fmt.Sprintf("%s/%s/%s", optString(p.Endpoint), optString(p.Cluster), optString(p.Attribute))
}

func optString[T ~uint16 | ~uint32 | ~uint64](v *T) string {
	if v == nil {
		return "*"
	}
	return fmt.Sprintf("%#x", *v)
}

func (p *AttributePathIB) Encode(w *tlv.Writer, tag tlv.Tag) error {
	return encodeSteps(
		func() error { return w.StartList(tag) },
		func() error {
			if p.EnableTagCompression == nil {
				return nil
			}
			return w.PutBool(tlv.ContextTag(attrPathTagEnableTagCompression), *p.EnableTagCompression)
		},
		func() error { return putOptionalUint(w, attrPathTagNode, p.Node) },
		func() error { return putOptionalUint(w, attrPathTagEndpoint, p.Endpoint) },
		func() error { return putOptionalUint(w, attrPathTagCluster, p.Cluster) },
		func() error { return putOptionalUint(w, attrPathTagAttribute, p.Attribute) },
		func() error { return putOptionalUint(w, attrPathTagListIndex, p.ListIndex) },
		w.EndContainer,
	)
}

// DecodeFrom reads the list under r.
func (p *AttributePathIB) DecodeFrom(r *tlv.Reader) error {
	*p = AttributePathIB{}
	return decodeContainer(r, tlv.ElementTypeList, func(tag uint32) error {
		switch tag {
		case attrPathTagEnableTagCompression:
			v, err := r.Bool()
			if err != nil {
				return err
			}
			p.EnableTagCompression = &v
		case attrPathTagNode:
			return readOptionalUint(r, &p.Node)
		case attrPathTagEndpoint:
			return readOptionalUint(r, &p.Endpoint)
		case attrPathTagCluster:
			return readOptionalUint(r, &p.Cluster)
		case attrPathTagAttribute:
			return readOptionalUint(r, &p.Attribute)
		case attrPathTagListIndex:
			// Null addresses the whole list.
			if r.Type() == tlv.ElementTypeNull {
				p.ListIndex = nil
				return nil
			}
			return readOptionalUint(r, &p.ListIndex)
		}
		return nil
	})
}

// EventPathIB addresses events. It is encoded as a list.
type EventPathIB struct {
	Node     *NodeID
	Endpoint *EndpointID
	Cluster  *ClusterID
	Event    *EventID
	IsUrgent *bool
}

const (
	eventPathTagNode     = 0
	eventPathTagEndpoint = 1
	eventPathTagCluster  = 2
	eventPathTagEvent    = 3
	eventPathTagIsUrgent = 4
)

func (p *EventPathIB) String() string {
	return fmt.Sprintf("%s/%s/%s", optString(p.Endpoint), optString(p.Cluster), optString(p.Event))
}

func (p *EventPathIB) Encode(w *tlv.Writer, tag tlv.Tag) error {
	return encodeSteps(
		func() error { return w.StartList(tag) },
		func() error { return putOptionalUint(w, eventPathTagNode, p.Node) },
		func() error { return putOptionalUint(w, eventPathTagEndpoint, p.Endpoint) },
		func() error { return putOptionalUint(w, eventPathTagCluster, p.Cluster) },
		func() error { return putOptionalUint(w, eventPathTagEvent, p.Event) },
		func() error {
			if p.IsUrgent == nil {
				return nil
			}
			return w.PutBool(tlv.ContextTag(eventPathTagIsUrgent), *p.IsUrgent)
		},
		w.EndContainer,
	)
}

func (p *EventPathIB) DecodeFrom(r *tlv.Reader) error {
	*p = EventPathIB{}
	return decodeContainer(r, tlv.ElementTypeList, func(tag uint32) error {
		switch tag {
		case eventPathTagNode:
			return readOptionalUint(r, &p.Node)
		case eventPathTagEndpoint:
			return readOptionalUint(r, &p.Endpoint)
		case eventPathTagCluster:
			return readOptionalUint(r, &p.Cluster)
		case eventPathTagEvent:
			return readOptionalUint(r, &p.Event)
		case eventPathTagIsUrgent:
			v, err := r.Bool()
			if err != nil {
				return err
			}
			p.IsUrgent = &v
		}
		return nil
	})
}

// ClusterPathIB addresses a cluster instance.
type ClusterPathIB struct {
	Node     *NodeID
	Endpoint *EndpointID
	Cluster  *ClusterID
}

const (
	clusterPathTagNode     = 0
	clusterPathTagEndpoint = 1
	clusterPathTagCluster  = 2
)

func (p *ClusterPathIB) Encode(w *tlv.Writer, tag tlv.Tag) error {
	return encodeSteps(
		func() error { return w.StartList(tag) },
		func() error { return putOptionalUint(w, clusterPathTagNode, p.Node) },
		func() error { return putOptionalUint(w, clusterPathTagEndpoint, p.Endpoint) },
		func() error { return putOptionalUint(w, clusterPathTagCluster, p.Cluster) },
		w.EndContainer,
	)
}

func (p *ClusterPathIB) DecodeFrom(r *tlv.Reader) error {
	*p = ClusterPathIB{}
	return decodeContainer(r, tlv.ElementTypeList, func(tag uint32) error {
		switch tag {
		case clusterPathTagNode:
			return readOptionalUint(r, &p.Node)
		case clusterPathTagEndpoint:
			return readOptionalUint(r, &p.Endpoint)
		case clusterPathTagCluster:
			return readOptionalUint(r, &p.Cluster)
		}
		return nil
	})
}
