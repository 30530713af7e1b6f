// Package store persists availability knowledge across restarts. Entries that
// carry a file list are durable; entries recorded as uncached go stale after
// the configured recheck window and are pruned by the sweep job.
package store

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/dylanmazurek/resolvarr/internal/logger"
	"github.com/dylanmazurek/resolvarr/pkg/debrid/types"
	"github.com/rs/zerolog"
	bolt "go.etcd.io/bbolt"
)

var availabilityBucket = []byte("availability")

// Stats summarizes the store contents for the status endpoint.
type Stats struct {
	Cached   int `json:"cached"`
	Uncached int `json:"uncached"`
}

type Store struct {
	db            *bolt.DB
	recheckWindow time.Duration
	logger        zerolog.Logger
}

// Open opens (or creates) the availability database at path.
func Open(path string, recheckWindow time.Duration) (*Store, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening availability store: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(availabilityBucket)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("creating availability bucket: %w", err)
	}

	return &Store{
		db:            db,
		recheckWindow: recheckWindow,
		logger:        logger.New("store"),
	}, nil
}

// Get returns the known entries for the requested hashes. Entries with a file
// list are always returned; uncached entries are returned only while they are
// fresher than the recheck window, so stale negatives get re-queried.
func (s *Store) Get(hashes []string) (map[string]types.AvailabilityEntry, error) {
	known := make(map[string]types.AvailabilityEntry)

	err := s.db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(availabilityBucket)
		for _, hash := range hashes {
			raw := bucket.Get([]byte(hash))
			if raw == nil {
				continue
			}

			var entry types.AvailabilityEntry
			if err := json.Unmarshal(raw, &entry); err != nil {
				s.logger.Warn().Err(err).Str("hash", hash).Msg("dropping unreadable availability entry")
				continue
			}

			if !entry.IsCached() && time.Since(entry.CheckedAt) > s.recheckWindow {
				continue
			}

			known[hash] = entry
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return known, nil
}

// Merge writes entries through to the store. The merge is monotonic: an
// entry already cached with files is never replaced by an empty one, only its
// CheckedAt is refreshed.
func (s *Store) Merge(entries map[string]types.AvailabilityEntry) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(availabilityBucket)

		for hash, entry := range entries {
			if raw := bucket.Get([]byte(hash)); raw != nil {
				var existing types.AvailabilityEntry
				if err := json.Unmarshal(raw, &existing); err == nil {
					if existing.IsCached() && !entry.IsCached() {
						entry = existing
						entry.CheckedAt = time.Now()
					}
				}
			}

			data, err := json.Marshal(entry)
			if err != nil {
				return fmt.Errorf("encoding availability entry %s: %w", hash, err)
			}
			if err := bucket.Put([]byte(hash), data); err != nil {
				return fmt.Errorf("storing availability entry %s: %w", hash, err)
			}
		}
		return nil
	})
}

// Sweep deletes uncached entries older than the recheck window. Cached
// entries are durable and never swept.
func (s *Store) Sweep() error {
	var removed int

	err := s.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(availabilityBucket)
		cursor := bucket.Cursor()

		for key, raw := cursor.First(); key != nil; key, raw = cursor.Next() {
			var entry types.AvailabilityEntry
			if err := json.Unmarshal(raw, &entry); err != nil {
				if err := cursor.Delete(); err != nil {
					return err
				}
				removed++
				continue
			}

			if entry.IsCached() {
				continue
			}
			if time.Since(entry.CheckedAt) <= s.recheckWindow {
				continue
			}

			if err := cursor.Delete(); err != nil {
				return err
			}
			removed++
		}
		return nil
	})
	if err != nil {
		return err
	}

	if removed > 0 {
		s.logger.Debug().Int("removed", removed).Msg("swept stale availability entries")
	}
	return nil
}

// Stats counts the stored entries by kind.
func (s *Store) Stats() (Stats, error) {
	var stats Stats

	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(availabilityBucket).ForEach(func(_, raw []byte) error {
			var entry types.AvailabilityEntry
			if err := json.Unmarshal(raw, &entry); err != nil {
				return nil
			}
			if entry.IsCached() {
				stats.Cached++
			} else {
				stats.Uncached++
			}
			return nil
		})
	})

	return stats, err
}

func (s *Store) Close() error {
	return s.db.Close()
}
