package main

import (
	"context"
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/backkem/matter-core/pkg/im"
	imsg "github.com/backkem/matter-core/pkg/im/message"
	"github.com/backkem/matter-core/pkg/reporting"
	"github.com/backkem/matter-core/pkg/tlv"
)

const (
	rootEndpoint  imsg.EndpointID = 0
	lightEndpoint imsg.EndpointID = 1

	clusterBasicInformation imsg.ClusterID = 0x0028
	clusterOnOff            imsg.ClusterID = 0x0006
	clusterLevelControl     imsg.ClusterID = 0x0008

	attrVendorName   imsg.AttributeID = 0x0001
	attrVendorID     imsg.AttributeID = 0x0002
	attrProductName  imsg.AttributeID = 0x0003
	attrProductID    imsg.AttributeID = 0x0004
	attrSerialNumber imsg.AttributeID = 0x000F
	attrOnOff        imsg.AttributeID = 0x0000
	attrCurrentLevel imsg.AttributeID = 0x0000

	maxLevel uint8 = 254
)

type deviceInfo struct {
	VendorName   string
	VendorID     uint16
	ProductName  string
	ProductID    uint16
	SerialNumber string
}

// light publishes its state into an AttributeTable. CurrentLevel goes
// through a quieter reporting attribute so small steps do not bump the
// cluster data version on every tick.
type light struct {
	mu       sync.Mutex
	table    *im.AttributeTable
	level    *reporting.QuieterReportingAttribute[uint8]
	quiet    reporting.SufficientChangePredicate[uint8]
	on       bool
	rampStep int
}

func newLight(table *im.AttributeTable, info deviceInfo, reportInterval time.Duration, clk clock.Clock) (*light, error) {
	basic := []struct {
		id  imsg.AttributeID
		put func(w *tlv.Writer) error
	}{
		{attrVendorName, func(w *tlv.Writer) error { return w.PutString(tlv.Anonymous(), info.VendorName) }},
		{attrVendorID, func(w *tlv.Writer) error { return w.PutUint16(tlv.Anonymous(), info.VendorID) }},
		{attrProductName, func(w *tlv.Writer) error { return w.PutString(tlv.Anonymous(), info.ProductName) }},
		{attrProductID, func(w *tlv.Writer) error { return w.PutUint16(tlv.Anonymous(), info.ProductID) }},
		{attrSerialNumber, func(w *tlv.Writer) error { return w.PutString(tlv.Anonymous(), info.SerialNumber) }},
	}
	for _, a := range basic {
		if err := table.Set(rootEndpoint, clusterBasicInformation, a.id, a.put); err != nil {
			return nil, err
		}
	}

	var off uint8
	l := &light{
		table:    table,
		level:    reporting.NewQuieterReportingAttribute(&off, clk),
		quiet:    reporting.SufficientTimeSinceLastDirty[uint8](reportInterval),
		rampStep: 16,
	}
	l.level.SetPolicy(reporting.MarkDirtyOnChangeToFromZero)
	if err := l.publishOnOff(); err != nil {
		return nil, err
	}
	if err := l.publishLevel(&off); err != nil {
		return nil, err
	}
	return l, nil
}

// SetLevel moves the light to level, nil meaning unknown. It reports
// whether CurrentLevel was republished.
func (l *light) SetLevel(level *uint8) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.level.SetValueWithPredicate(level, l.quiet)
	if on := level != nil && *level > 0; on != l.on {
		l.on = on
		if err := l.publishOnOff(); err != nil {
			return false, err
		}
	}
	if !l.level.WasMarkedDirty() {
		return false, nil
	}
	return true, l.publishLevel(level)
}

// Level returns the current level, nil when unknown.
func (l *light) Level() *uint8 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.level.Value()
}

func (l *light) publishOnOff() error {
	on := l.on
	return l.table.Set(lightEndpoint, clusterOnOff, attrOnOff, func(w *tlv.Writer) error {
		return w.PutBool(tlv.Anonymous(), on)
	})
}

func (l *light) publishLevel(level *uint8) error {
	return l.table.Set(lightEndpoint, clusterLevelControl, attrCurrentLevel, func(w *tlv.Writer) error {
		if level == nil {
			return w.PutNull(tlv.Anonymous())
		}
		return w.PutUint(tlv.Anonymous(), uint64(*level))
	})
}

// next returns the level after cur on a triangle ramp between 0 and
// maxLevel.
func (l *light) next(cur uint8) uint8 {
	v := int(cur) + l.rampStep
	switch {
	case v >= int(maxLevel):
		l.rampStep = -l.rampStep
		return maxLevel
	case v <= 0:
		l.rampStep = -l.rampStep
		return 0
	}
	return uint8(v)
}

// ramp steps the level every interval until ctx is done.
func (l *light) ramp(ctx context.Context, clk clock.Clock, interval time.Duration, onError func(error)) {
	t := clk.Ticker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}
		var cur uint8
		if v := l.Level(); v != nil {
			cur = *v
		}
		l.mu.Lock()
		n := l.next(cur)
		l.mu.Unlock()
		if _, err := l.SetLevel(&n); err != nil {
			onError(err)
		}
	}
}
