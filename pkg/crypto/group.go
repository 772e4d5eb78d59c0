package crypto

import (
	"encoding/binary"
	"errors"
	"time"

	"github.com/benbjohnson/clock"
)

// Derivation labels. These strings are part of the wire contract and must
// not change.
var (
	groupKeyLabel     = []byte("GroupKey v1.0")
	groupKeyHashLabel = []byte("GroupKeyHash")
)

const (
	CompressedFabricIDSize = 8
	GroupSessionIDSize     = 2
)

var (
	ErrInvalidEpochKey  = errors.New("crypto: epoch key must be 16 bytes")
	ErrInvalidFabricID  = errors.New("crypto: compressed fabric id must be 8 bytes")
	ErrNoActiveEpochKey = errors.New("crypto: no active epoch key for group")
	ErrInvalidGroupKey  = errors.New("crypto: operational group key must be 16 bytes")
	ErrTooManyEpochKeys = errors.New("crypto: at most three epoch keys per key set")
)

// MaxEpochKeys is the size of a group key set.
const MaxEpochKeys = 3

// EpochKey is one key of a group key set, valid from StartTime until a key
// with a later start time becomes active.
type EpochKey struct {
	StartTime time.Time
	Key       []byte
}

// GroupKeyProvider resolves the epoch key currently in force for a group.
type GroupKeyProvider interface {
	CurrentEpochKey(fabricIndex uint8, groupID uint16) (EpochKey, error)
}

type groupRef struct {
	fabric uint8
	group  uint16
}

// StaticGroupKeyProvider keeps key sets in memory. It is not safe for
// concurrent mutation; callers serialise through the stack lock.
type StaticGroupKeyProvider struct {
	clock clock.Clock
	sets  map[groupRef][]EpochKey
}

// NewStaticGroupKeyProvider returns an empty provider reading time from c.
// A nil clock selects the wall clock.
func NewStaticGroupKeyProvider(c clock.Clock) *StaticGroupKeyProvider {
	if c == nil {
		c = clock.New()
	}
	return &StaticGroupKeyProvider{clock: c, sets: make(map[groupRef][]EpochKey)}
}

// SetKeySet replaces the key set of a group.
func (p *StaticGroupKeyProvider) SetKeySet(fabricIndex uint8, groupID uint16, keys ...EpochKey) error {
	if len(keys) > MaxEpochKeys {
		return ErrTooManyEpochKeys
	}
	for _, k := range keys {
		if len(k.Key) != SymmetricKeySize {
			return ErrInvalidEpochKey
		}
	}
	p.sets[groupRef{fabricIndex, groupID}] = append([]EpochKey(nil), keys...)
	return nil
}

// CurrentEpochKey returns the started key with the latest start time.
func (p *StaticGroupKeyProvider) CurrentEpochKey(fabricIndex uint8, groupID uint16) (EpochKey, error) {
	now := p.clock.Now()
	var (
		best  EpochKey
		found bool
	)
	for _, k := range p.sets[groupRef{fabricIndex, groupID}] {
		if k.StartTime.After(now) {
			continue
		}
		if !found || k.StartTime.After(best.StartTime) {
			best, found = k, true
		}
	}
	if !found {
		return EpochKey{}, ErrNoActiveEpochKey
	}
	return best, nil
}

// DeriveOperationalKey derives the operational key of a group from the
// epoch key the provider reports as active.
func DeriveOperationalKey(p GroupKeyProvider, fabricIndex uint8, groupID uint16) ([]byte, error) {
	epoch, err := p.CurrentEpochKey(fabricIndex, groupID)
	if err != nil {
		return nil, err
	}
	if len(epoch.Key) != SymmetricKeySize {
		return nil, ErrInvalidEpochKey
	}
	return HKDFSHA256(epoch.Key, groupKeyLabel, groupKeyLabel, SymmetricKeySize)
}

// DeriveGroupOperationalKey is the fabric-scoped variant of the derivation,
// salting with the compressed fabric identifier.
func DeriveGroupOperationalKey(epochKey, compressedFabricID []byte) ([]byte, error) {
	if len(epochKey) != SymmetricKeySize {
		return nil, ErrInvalidEpochKey
	}
	if len(compressedFabricID) != CompressedFabricIDSize {
		return nil, ErrInvalidFabricID
	}
	return HKDFSHA256(epochKey, compressedFabricID, groupKeyLabel, SymmetricKeySize)
}

// DeriveSessionID hashes an operational group key into the 16-bit session
// id carried by group messages. The two derived octets are little-endian.
func DeriveSessionID(operationalKey []byte) (uint16, error) {
	if len(operationalKey) != SymmetricKeySize {
		return 0, ErrInvalidGroupKey
	}
	h, err := HKDFSHA256(operationalKey, nil, groupKeyHashLabel, GroupSessionIDSize)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(h), nil
}
