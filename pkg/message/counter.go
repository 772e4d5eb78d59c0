package message

import (
	"crypto/rand"
	"encoding/binary"

	"go.uber.org/atomic"
)

const (
	// CounterWindowSize is the number of counters behind the maximum that
	// the reception bitmap tracks.
	CounterWindowSize = 32
	// counterInitMax bounds the random initial counter to [1, 2^28].
	counterInitMax = 1 << 28
)

// LocalCounter hands out outgoing message counters. Unicast session
// counters must not wrap; Next fails once the space is used up.
type LocalCounter struct {
	value     atomic.Uint32
	exhausted atomic.Bool
}

// NewLocalCounter starts at a random value in [1, 2^28].
func NewLocalCounter() *LocalCounter {
	var b [4]byte
	v := uint32(1)
	if _, err := rand.Read(b[:]); err == nil {
		v = binary.LittleEndian.Uint32(b[:])&(counterInitMax-1) + 1
	}
	return NewLocalCounterAt(v)
}

// NewLocalCounterAt starts at v, e.g. a persisted value.
func NewLocalCounterAt(v uint32) *LocalCounter {
	c := &LocalCounter{}
	c.value.Store(v)
	return c
}

// Next returns the current value and advances the counter.
func (c *LocalCounter) Next() (uint32, error) {
	if c.exhausted.Load() {
		return 0, ErrCounterExhausted
	}
	next := c.value.Inc()
	if next == 0 {
		c.exhausted.Store(true)
	}
	return next - 1, nil
}

// Value returns the counter that the next call to Next will return.
func (c *LocalCounter) Value() uint32 { return c.value.Load() }

// ReceptionMode selects the duplicate detection rules of a ReceptionState.
type ReceptionMode uint8

const (
	// ReceptionUnicast forbids rollover: counters above the maximum are new.
	ReceptionUnicast ReceptionMode = iota
	// ReceptionGroup compares counters modulo 2^32.
	ReceptionGroup
	// ReceptionUnencrypted compares modulo 2^32 and treats counters behind
	// the window as a rebooted peer rather than a duplicate.
	ReceptionUnencrypted
)

// ReceptionState is the sliding window of message counters seen from one
// peer. Lookups and updates are split so a receiver can drop duplicates
// before committing to them; both run under the stack lock.
type ReceptionState struct {
	mode        ReceptionMode
	max         uint32
	bitmap      uint32 // bit i set: counter max-i-1 seen
	initialized bool
}

// NewReceptionState returns a state that accepts any first counter.
func NewReceptionState(mode ReceptionMode) *ReceptionState {
	return &ReceptionState{mode: mode}
}

// NewSyncedReceptionState returns a state for a peer whose current counter
// is known; only counters after max are accepted.
func NewSyncedReceptionState(mode ReceptionMode, max uint32) *ReceptionState {
	return &ReceptionState{mode: mode, max: max, bitmap: 0xFFFFFFFF, initialized: true}
}

// Max returns the largest counter committed so far.
func (r *ReceptionState) Max() uint32 { return r.max }

// distance returns how far counter is ahead of max (positive) or behind it
// (negative) under the mode's arithmetic.
func (r *ReceptionState) distance(counter uint32) int64 {
	if r.mode == ReceptionUnicast {
		return int64(counter) - int64(r.max)
	}
	return int64(int32(counter - r.max))
}

// IsDuplicate reports whether counter has been seen, or is too old to tell.
// It does not modify the state.
func (r *ReceptionState) IsDuplicate(counter uint32) bool {
	if !r.initialized {
		return false
	}
	d := r.distance(counter)
	switch {
	case d > 0:
		return false
	case d == 0:
		return true
	case -d <= CounterWindowSize:
		return r.bitmap&(1<<(-d-1)) != 0
	default:
		return r.mode != ReceptionUnencrypted
	}
}

// Commit records counter as received.
func (r *ReceptionState) Commit(counter uint32) {
	if !r.initialized {
		r.max, r.bitmap, r.initialized = counter, 0, true
		return
	}
	d := r.distance(counter)
	switch {
	case d > 0:
		if d > CounterWindowSize {
			r.bitmap = 0
		} else {
			r.bitmap = r.bitmap<<uint(d) | 1<<(d-1)
		}
		r.max = counter
	case d == 0:
	case -d <= CounterWindowSize:
		r.bitmap |= 1 << (-d - 1)
	case r.mode == ReceptionUnencrypted:
		// A peer far behind has restarted; resynchronise on it.
		r.max, r.bitmap = counter, 0
	}
}
