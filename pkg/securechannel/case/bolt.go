package casesession

import (
	"time"

	bolt "go.etcd.io/bbolt"
	"go.uber.org/multierr"
)

var resumptionBucket = []byte("resumption")

// BoltStore keeps resumption entries in a bbolt file.
type BoltStore struct {
	db *bolt.DB
}

// OpenBoltStore opens or creates the store at path.
func OpenBoltStore(path string) (*BoltStore, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, err
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(resumptionBucket)
		return err
	})
	if err != nil {
		return nil, multierr.Append(err, db.Close())
	}
	return &BoltStore{db: db}, nil
}

func (s *BoltStore) Put(id ResumptionID, data []byte) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(resumptionBucket).Put(id[:], data)
	})
}

func (s *BoltStore) Delete(id ResumptionID) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(resumptionBucket).Delete(id[:])
	})
}

// ForEach calls fn for every stored record. The data slice is only valid
// during the call.
func (s *BoltStore) ForEach(fn func(id ResumptionID, data []byte) error) error {
	return s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(resumptionBucket).ForEach(func(k, v []byte) error {
			if len(k) != ResumptionIDSize {
				return nil
			}
			var id ResumptionID
			copy(id[:], k)
			return fn(id, v)
		})
	})
}

// Close flushes and closes the database file.
func (s *BoltStore) Close() error {
	return multierr.Combine(s.db.Sync(), s.db.Close())
}
