// Package casesession keeps the resumption state of CASE sessions: a
// bounded cache of ResumptionEntry values keyed by resumption id, with
// optional write-through persistence.
package casesession

import (
	"cmp"
	"errors"
	"slices"
	"sync"

	"github.com/benbjohnson/clock"
	"go.uber.org/multierr"
)

// DefaultCapacity is the resumption cache size of a node.
const DefaultCapacity = 4

var ErrNotFound = errors.New("casesession: resumption entry not found")

// Store persists serialized entries by resumption id.
type Store interface {
	Put(id ResumptionID, data []byte) error
	Delete(id ResumptionID) error
	ForEach(fn func(id ResumptionID, data []byte) error) error
}

// CacheConfig configures a Cache.
type CacheConfig struct {
	// Capacity defaults to DefaultCapacity.
	Capacity int
	// Store receives every change when set.
	Store Store
	// Clock stamps entries added without a SetupTime.
	Clock clock.Clock
}

type slot struct {
	used  bool
	id    ResumptionID
	setup int64
	data  []byte
}

// Cache is a fixed-capacity table of serialized entries. When full, Add
// evicts the entry with the oldest setup time.
type Cache struct {
	mu    sync.Mutex
	slots []slot
	store Store
	clock clock.Clock
}

// NewCache returns an empty cache sized by config.Capacity.
func NewCache(config CacheConfig) *Cache {
	if config.Capacity <= 0 {
		config.Capacity = DefaultCapacity
	}
	if config.Clock == nil {
		config.Clock = clock.New()
	}
	return &Cache{
		slots: make([]slot, config.Capacity),
		store: config.Store,
		clock: config.Clock,
	}
}

func (c *Cache) Capacity() int { return len(c.slots) }

// Len returns the number of entries held.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for i := range c.slots {
		if c.slots[i].used {
			n++
		}
	}
	return n
}

// Add stores a copy of e, replacing an entry with the same resumption id.
// A zero SetupTime is stamped with the current time on the copy. It
// returns the id of the entry evicted to make room, if any.
//
// With a store, the new record is written before the evicted one is
// deleted, so a failed write leaves both untouched.
func (c *Cache) Add(e *ResumptionEntry) (evicted *ResumptionID, err error) {
	entry := *e
	if entry.SetupTime.IsZero() {
		entry.SetupTime = c.clock.Now()
	}
	data, err := entry.MarshalBinary()
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.store != nil {
		if err := c.store.Put(entry.ResumptionID, data); err != nil {
			return nil, err
		}
	}
	evicted = c.insert(entry.ResumptionID, entry.SetupTime.UnixMilli(), data)
	if evicted != nil && c.store != nil {
		return evicted, c.store.Delete(*evicted)
	}
	return evicted, nil
}

// insert places a record, evicting the oldest when full. c.mu is held.
func (c *Cache) insert(id ResumptionID, setup int64, data []byte) (evicted *ResumptionID) {
	i := c.find(id)
	if i < 0 {
		i = c.free()
	}
	if i < 0 {
		i = c.oldest()
		old := c.slots[i].id
		evicted = &old
	}
	c.slots[i] = slot{used: true, id: id, setup: setup, data: data}
	return evicted
}

// Get decodes the entry for id into a fresh value.
func (c *Cache) Get(id ResumptionID) (*ResumptionEntry, error) {
	c.mu.Lock()
	i := c.find(id)
	var data []byte
	if i >= 0 {
		data = c.slots[i].data
	}
	c.mu.Unlock()
	if i < 0 {
		return nil, ErrNotFound
	}
	e := &ResumptionEntry{}
	if err := e.UnmarshalBinary(data); err != nil {
		return nil, err
	}
	return e, nil
}

// FindByPeer returns the newest entry for a peer on a fabric.
func (c *Cache) FindByPeer(fabricIndex uint8, peerNodeID uint64) (*ResumptionEntry, error) {
	c.mu.Lock()
	var best *ResumptionEntry
	for i := range c.slots {
		if !c.slots[i].used {
			continue
		}
		e := &ResumptionEntry{}
		if err := e.UnmarshalBinary(c.slots[i].data); err != nil {
			continue
		}
		if e.FabricIndex == fabricIndex && e.PeerNodeID == peerNodeID &&
			(best == nil || e.SetupTime.After(best.SetupTime)) {
			best = e
		}
	}
	c.mu.Unlock()
	if best == nil {
		return nil, ErrNotFound
	}
	return best, nil
}

// Remove deletes the entry for id.
func (c *Cache) Remove(id ResumptionID) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	i := c.find(id)
	if i < 0 {
		return ErrNotFound
	}
	c.slots[i] = slot{}
	if c.store != nil {
		return c.store.Delete(id)
	}
	return nil
}

// Load fills the cache from its store, keeping the newest entries by
// setup time. Records that do not fit are deleted from the store;
// undecodable records are skipped.
func (c *Cache) Load() (int, error) {
	if c.store == nil {
		return 0, nil
	}
	type record struct {
		id    ResumptionID
		setup int64
		data  []byte
	}
	var records []record
	err := c.store.ForEach(func(id ResumptionID, data []byte) error {
		e := &ResumptionEntry{}
		if e.UnmarshalBinary(data) == nil {
			records = append(records, record{id, e.SetupTime.UnixMilli(), append([]byte(nil), data...)})
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	slices.SortStableFunc(records, func(a, b record) int { return cmp.Compare(a.setup, b.setup) })

	c.mu.Lock()
	defer c.mu.Unlock()
	for _, r := range records {
		if evicted := c.insert(r.id, r.setup, r.data); evicted != nil {
			err = multierr.Append(err, c.store.Delete(*evicted))
		}
	}
	n := 0
	for i := range c.slots {
		if c.slots[i].used {
			n++
		}
	}
	return n, err
}

func (c *Cache) find(id ResumptionID) int {
	for i := range c.slots {
		if c.slots[i].used && c.slots[i].id == id {
			return i
		}
	}
	return -1
}

func (c *Cache) free() int {
	for i := range c.slots {
		if !c.slots[i].used {
			return i
		}
	}
	return -1
}

// oldest returns the first full slot with the smallest setup time.
func (c *Cache) oldest() int {
	best := -1
	for i := range c.slots {
		if c.slots[i].used && (best < 0 || c.slots[i].setup < c.slots[best].setup) {
			best = i
		}
	}
	return best
}
