// Package reporting helps cluster servers decide when an attribute change
// is worth a report.
package reporting

import (
	"time"

	"github.com/benbjohnson/clock"
)

// Number is the value type of a QuieterReportingAttribute.
type Number interface {
	~int | ~int8 | ~int16 | ~int32 | ~int64 |
		~uint | ~uint8 | ~uint16 | ~uint32 | ~uint64 |
		~float32 | ~float64
}

// Policy selects the value transitions that always mark the attribute
// dirty.
type Policy uint8

const (
	MarkDirtyOnChangeToFromZero Policy = 1 << iota
	MarkDirtyOnDecrement
	MarkDirtyOnIncrement
)

func (p Policy) Has(flag Policy) bool { return p&flag != 0 }

// Candidate is what a SufficientChangePredicate judges.
type Candidate[T Number] struct {
	LastDirtyTime  time.Time
	LastDirtyValue *T
	NewValue       *T
	Now            time.Time
}

// SufficientChangePredicate decides whether a value that differs from the
// last dirty value should mark the attribute dirty.
type SufficientChangePredicate[T Number] func(c Candidate[T]) bool

// SufficientTimeSinceLastDirty accepts a change once at least d passed
// since the attribute was last marked dirty.
func SufficientTimeSinceLastDirty[T Number](d time.Duration) SufficientChangePredicate[T] {
	return func(c Candidate[T]) bool {
		return c.Now.Sub(c.LastDirtyTime) >= d
	}
}

// QuieterReportingAttribute holds a nullable attribute value and tracks
// whether changes should be reported. A nil value is null.
//
// A change to or from null always marks the attribute dirty. Other changes
// are judged by the policy, then by the optional predicate against the
// last dirty value.
type QuieterReportingAttribute[T Number] struct {
	value          *T
	lastDirtyValue *T
	lastDirtyTime  time.Time
	policy         Policy
	dirty          bool
	clock          clock.Clock
}

// NewQuieterReportingAttribute returns an attribute holding initial, which
// also counts as the last dirty value. A nil clk uses the wall clock.
func NewQuieterReportingAttribute[T Number](initial *T, clk clock.Clock) *QuieterReportingAttribute[T] {
	if clk == nil {
		clk = clock.New()
	}
	return &QuieterReportingAttribute[T]{
		value:          clone(initial),
		lastDirtyValue: clone(initial),
		lastDirtyTime:  clk.Now(),
		clock:          clk,
	}
}

// Value returns a copy of the current value, nil when null.
func (a *QuieterReportingAttribute[T]) Value() *T { return clone(a.value) }

func (a *QuieterReportingAttribute[T]) Policy() Policy { return a.policy }

// SetPolicy replaces the policy flags. Zero clears them.
func (a *QuieterReportingAttribute[T]) SetPolicy(p Policy) { a.policy = p }

// SetValue stores v and reports whether the change marked the attribute
// dirty.
func (a *QuieterReportingAttribute[T]) SetValue(v *T) bool {
	return a.SetValueWithPredicate(v, nil)
}

// SetValueWithPredicate is SetValue with an extra predicate consulted when
// v differs from the last dirty value.
func (a *QuieterReportingAttribute[T]) SetValueWithPredicate(v *T, sufficient SufficientChangePredicate[T]) bool {
	now := a.clock.Now()
	old := a.value

	dirty := (old == nil) != (v == nil)
	if old != nil && v != nil {
		switch {
		case a.policy.Has(MarkDirtyOnChangeToFromZero) && (*old == 0) != (*v == 0):
			dirty = true
		case a.policy.Has(MarkDirtyOnIncrement) && *v > *old:
			dirty = true
		case a.policy.Has(MarkDirtyOnDecrement) && *v < *old:
			dirty = true
		}
	}
	if !dirty && sufficient != nil && !equal(a.lastDirtyValue, v) {
		dirty = sufficient(Candidate[T]{
			LastDirtyTime:  a.lastDirtyTime,
			LastDirtyValue: clone(a.lastDirtyValue),
			NewValue:       clone(v),
			Now:            now,
		})
	}

	a.value = clone(v)
	if dirty {
		a.lastDirtyValue = clone(v)
		a.lastDirtyTime = now
		a.dirty = true
	}
	return dirty
}

// WasMarkedDirty reports whether a SetValue marked the attribute dirty
// since the previous call, and clears the flag.
func (a *QuieterReportingAttribute[T]) WasMarkedDirty() bool {
	d := a.dirty
	a.dirty = false
	return d
}

func clone[T any](v *T) *T {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

func equal[T Number](a, b *T) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
