package session

const (
	// MinSessionID is the smallest secure session id. Id 0 marks the
	// unsecured session on the wire.
	MinSessionID uint16 = 1

	DefaultMaxSessions = 16
)

// Table is a fixed-capacity table of secure sessions indexed by local
// session id.
type Table struct {
	slots  []*Session
	nextID uint16
}

// NewTable creates a table holding at most capacity sessions.
func NewTable(capacity int) *Table {
	if capacity <= 0 {
		capacity = DefaultMaxSessions
	}
	return &Table{slots: make([]*Session, capacity), nextID: MinSessionID}
}

// AllocateID returns an unused session id in [1, 65535]. Ids are handed out
// sequentially, wrapping past 65535 and skipping ids still in use.
func (t *Table) AllocateID() (uint16, error) {
	if t.Count() >= len(t.slots) {
		return 0, ErrSessionTableFull
	}
	start := t.nextID
	for {
		id := t.nextID
		t.nextID++
		if t.nextID == 0 {
			t.nextID = MinSessionID
		}
		if t.FindByLocalID(id) == nil {
			return id, nil
		}
		if t.nextID == start {
			return 0, ErrSessionIDExhausted
		}
	}
}

// Add stores s in a free slot.
func (t *Table) Add(s *Session) error {
	if s == nil || s.localSessionID == 0 {
		return ErrInvalidSessionID
	}
	if t.FindByLocalID(s.localSessionID) != nil {
		return ErrDuplicateSession
	}
	for i, slot := range t.slots {
		if slot == nil {
			t.slots[i] = s
			return nil
		}
	}
	return ErrSessionTableFull
}

// Remove frees the slot of the session with the given id, if any.
func (t *Table) Remove(localSessionID uint16) *Session {
	for i, s := range t.slots {
		if s != nil && s.localSessionID == localSessionID {
			t.slots[i] = nil
			return s
		}
	}
	return nil
}

// FindByLocalID returns the live session with the given local id, or nil.
func (t *Table) FindByLocalID(localSessionID uint16) *Session {
	for _, s := range t.slots {
		if s != nil && s.localSessionID == localSessionID {
			return s
		}
	}
	return nil
}

// FindByPeer returns the sessions to a node on a fabric.
func (t *Table) FindByPeer(fabricIndex uint8, nodeID uint64) []*Session {
	var out []*Session
	for _, s := range t.slots {
		if s != nil && s.fabricIndex == fabricIndex && s.peerNodeID == nodeID {
			out = append(out, s)
		}
	}
	return out
}

// ForEach calls fn for every session until fn returns false.
func (t *Table) ForEach(fn func(*Session) bool) {
	for _, s := range t.slots {
		if s != nil && !fn(s) {
			return
		}
	}
}

// Count returns the number of occupied slots.
func (t *Table) Count() int {
	n := 0
	for _, s := range t.slots {
		if s != nil {
			n++
		}
	}
	return n
}

func (t *Table) Capacity() int { return len(t.slots) }
