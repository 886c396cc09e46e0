package session

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	bolt "github.com/boltdb/bolt"

	"github.com/vipcontent/vipcheckout/internal/models"
)

const bucketName = "checkout_sessions"

type boltEntry struct {
	ExpiresAt time.Time               `json:"expires_at"`
	Snapshot  models.CheckoutSnapshot `json:"snapshot"`
}

// BoltStore keeps snapshots in an embedded BoltDB file, for single-instance
// deployments without Redis.
type BoltStore struct {
	db  *bolt.DB
	ttl time.Duration
	now func() time.Time
}

// NewBoltStore opens (or creates) the BoltDB file and ensures the bucket exists.
func NewBoltStore(path string, ttl time.Duration) (*BoltStore, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open session database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(bucketName))
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create session bucket: %w", err)
	}

	return &BoltStore{db: db, ttl: ttl, now: time.Now}, nil
}

func (s *BoltStore) Save(_ context.Context, snapshot *models.CheckoutSnapshot) error {
	payload, err := json.Marshal(boltEntry{ExpiresAt: s.now().Add(s.ttl), Snapshot: *snapshot})
	if err != nil {
		return fmt.Errorf("failed to encode checkout snapshot: %w", err)
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(bucketName)).Put([]byte(snapshot.ID), payload)
	})
}

func (s *BoltStore) Load(_ context.Context, id string) (*models.CheckoutSnapshot, error) {
	var entry *boltEntry
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket([]byte(bucketName)).Get([]byte(id))
		if v == nil {
			return nil
		}
		entry = &boltEntry{}
		return json.Unmarshal(v, entry)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load checkout snapshot: %w", err)
	}
	if entry == nil {
		return nil, models.ErrSessionNotFound
	}
	if s.now().After(entry.ExpiresAt) {
		_ = s.Delete(context.Background(), id)
		return nil, models.ErrSessionNotFound
	}
	return &entry.Snapshot, nil
}

func (s *BoltStore) Delete(_ context.Context, id string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(bucketName)).Delete([]byte(id))
	})
}

// Purge drops expired entries and returns how many were removed.
func (s *BoltStore) Purge() (int, error) {
	now := s.now()
	removed := 0
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucketName))
		var expired [][]byte
		err := b.ForEach(func(k, v []byte) error {
			var entry boltEntry
			if err := json.Unmarshal(v, &entry); err != nil || now.After(entry.ExpiresAt) {
				expired = append(expired, append([]byte(nil), k...))
			}
			return nil
		})
		if err != nil {
			return err
		}
		for _, k := range expired {
			if err := b.Delete(k); err != nil {
				return err
			}
		}
		removed = len(expired)
		return nil
	})
	return removed, err
}

// Close releases the database file lock.
func (s *BoltStore) Close() error {
	return s.db.Close()
}
