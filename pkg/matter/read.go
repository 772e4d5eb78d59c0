package matter

import (
	"context"

	"github.com/backkem/matter-core/pkg/exchange"
	"github.com/backkem/matter-core/pkg/im"
	imsg "github.com/backkem/matter-core/pkg/im/message"
	"github.com/backkem/matter-core/pkg/session"
	"github.com/backkem/matter-core/pkg/tlv"
)

// AttributePath names attributes of one cluster instance. A nil Attribute
// reads the whole cluster.
type AttributePath struct {
	Endpoint  imsg.EndpointID
	Cluster   imsg.ClusterID
	Attribute *imsg.AttributeID
}

// AttributeValue is one attribute of a completed read. Data holds the TLV
// element of the value when Status is success.
type AttributeValue struct {
	Path   imsg.AttributePathIB
	Status imsg.Status
	Data   []byte
}

// Reader returns a TLV reader positioned on the value.
func (v AttributeValue) Reader() (*tlv.Reader, error) {
	r := tlv.NewReader(v.Data)
	if err := r.Next(); err != nil {
		return nil, err
	}
	return r, nil
}

// readCollector is the delegate and sink of one Node.Read.
type readCollector struct {
	values []AttributeValue
	done   chan error
}

func (c *readCollector) StoreDataElement(path *imsg.AttributePathIB, data *tlv.Reader) error {
	raw, err := data.RawBytes()
	if err != nil {
		return err
	}
	c.values = append(c.values, AttributeValue{Path: *path, Status: imsg.StatusSuccess, Data: raw})
	return nil
}

func (c *readCollector) AttributeStatusReceived(_ *im.ReadClient, s *imsg.AttributeStatusIB) {
	c.values = append(c.values, AttributeValue{Path: s.Path, Status: s.Status.Status})
}

func (c *readCollector) EventStreamReceived(*exchange.Context, *tlv.Reader) error { return nil }
func (c *readCollector) ReportProcessed(*im.ReadClient)                           { c.done <- nil }
func (c *readCollector) ReportError(_ *im.ReadClient, err error)                  { c.done <- err }

// Read issues one Read Request over s and waits for the complete report.
// Values come back in report order; paths the peer could not serve carry
// their status and no data.
func (n *Node) Read(ctx context.Context, s *session.Session, paths ...AttributePath) ([]AttributeValue, error) {
	if err := n.running(); err != nil {
		return nil, err
	}
	if len(paths) == 0 {
		return nil, im.ErrInvalidArgument
	}

	col := &readCollector{done: make(chan error, 1)}
	catalog := &im.MapCatalog{}
	params := make([]im.AttributePathParams, 0, len(paths))
	for _, p := range paths {
		h := catalog.Register(p.Endpoint, p.Cluster, col)
		params = append(params, im.AttributePathParams{Handle: h, Attribute: p.Attribute})
	}

	var client *im.ReadClient
	err := n.layer.WithLock(func() error {
		c, err := n.engine.NewReadClient(col, catalog)
		if err != nil {
			return err
		}
		if err := c.SendReadRequest(s, nil, params); err != nil {
			c.Shutdown()
			return err
		}
		client = c
		return nil
	})
	if err != nil {
		return nil, err
	}
	defer n.layer.WithLock(func() error {
		client.Shutdown()
		return nil
	})

	select {
	case err := <-col.done:
		if err != nil {
			return nil, err
		}
		return col.values, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
