package cache

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"
)

const (
	boltFileMode = 0o600
	boltDirMode  = 0o755
)

var responsesBucket = []byte("responses")

// BoltStore persists entries in a bbolt file so the cache survives restarts.
type BoltStore struct {
	db *bolt.DB
}

// OpenBoltStore opens (or creates) the bbolt file at path.
func OpenBoltStore(path string) (*BoltStore, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, boltDirMode); err != nil {
			return nil, fmt.Errorf("create cache dir: %w", err)
		}
	}
	db, err := bolt.Open(path, boltFileMode, &bolt.Options{Timeout: 2 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open cache db: %w", err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(responsesBucket)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create cache bucket: %w", err)
	}
	return &BoltStore{db: db}, nil
}

func (s *BoltStore) Get(key string) (Entry, bool, error) {
	var (
		entry Entry
		found bool
	)
	err := s.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket(responsesBucket).Get([]byte(key))
		if raw == nil {
			return nil
		}
		found = true
		return json.Unmarshal(raw, &entry)
	})
	if err != nil {
		return Entry{}, false, fmt.Errorf("read cache entry %q: %w", key, err)
	}
	return entry, found, nil
}

func (s *BoltStore) Set(key string, entry Entry) error {
	payload, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(responsesBucket).Put([]byte(key), payload)
	})
}

func (s *BoltStore) DeletePrefix(prefix string) (int, error) {
	return s.deleteMatching(func(key, _ []byte) bool {
		return bytes.HasPrefix(key, []byte(prefix))
	}, []byte(prefix))
}

func (s *BoltStore) DeleteExpired(now time.Time) (int, error) {
	return s.deleteMatching(func(_, raw []byte) bool {
		var entry Entry
		if err := json.Unmarshal(raw, &entry); err != nil {
			return true
		}
		return !now.Before(entry.ExpiresAt)
	}, nil)
}

func (s *BoltStore) Clear() (int, error) {
	return s.deleteMatching(func(_, _ []byte) bool { return true }, nil)
}

func (s *BoltStore) Close() error {
	return s.db.Close()
}

// deleteMatching collects matching keys first and deletes them afterwards;
// deleting under a live cursor can skip neighbours.
func (s *BoltStore) deleteMatching(match func(key, value []byte) bool, seek []byte) (int, error) {
	removed := 0
	err := s.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(responsesBucket)
		var keys [][]byte
		c := bucket.Cursor()
		var k, v []byte
		if seek != nil {
			k, v = c.Seek(seek)
		} else {
			k, v = c.First()
		}
		for ; k != nil; k, v = c.Next() {
			if seek != nil && !bytes.HasPrefix(k, seek) {
				break
			}
			if match(k, v) {
				keys = append(keys, append([]byte(nil), k...))
			}
		}
		for _, key := range keys {
			if err := bucket.Delete(key); err != nil {
				return err
			}
		}
		removed = len(keys)
		return nil
	})
	return removed, err
}
