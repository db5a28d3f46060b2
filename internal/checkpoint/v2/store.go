// Package v2 implements the exactly-once checkpoint store (C3): primary and
// range checkpoints keyed by stable strings, backed by an embedded ordered
// key-value store (go.etcd.io/bbolt, named in the moby-moby example's
// go.mod) with background garbage collection. Grounded on spec.md §4.2 and
// §6's KV-interface requirements (get/put/write-batch/snapshot/iterator),
// all of which bbolt's *bolt.DB/*bolt.Bucket/*bolt.Tx API provides
// natively, so no wrapper abstraction is introduced over it.
package v2

import (
	"fmt"
	"sync"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/open-logtail/logtailcore/clock"
	"github.com/open-logtail/logtailcore/internal/checkpoint/v2/pb"
	"github.com/open-logtail/logtailcore/internal/logger"
)

var bucketName = []byte("checkpoints")

// Store is the exactly-once checkpoint store, a thin domain layer over one
// bbolt bucket holding both primary and range checkpoint values.
type Store struct {
	db    *bolt.DB
	clock clock.Clock

	mu           sync.Mutex
	gcCandidates map[string]time.Time // primary key -> time marked
	lastScanned  string               // incremental-scan cursor
}

// Open opens (creating if necessary) the bbolt database at path and ensures
// the checkpoint bucket exists.
func Open(clk clock.Clock, path string) (*Store, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open checkpoint v2 store at %s: %w", path, err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketName)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create checkpoint bucket: %w", err)
	}
	return &Store{db: db, clock: clk, gcCandidates: make(map[string]time.Time)}, nil
}

// Close releases the underlying database file.
func (s *Store) Close() error {
	return s.db.Close()
}

// GetPrimary looks up the primary checkpoint at key. Reading a key marked
// for GC rescues it (spec.md §4.2 "bring-back").
func (s *Store) GetPrimary(key string) (*pb.PrimaryCheckpoint, bool, error) {
	var p pb.PrimaryCheckpoint
	found := false
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketName).Get([]byte(key))
		if v == nil {
			return nil
		}
		found = true
		return p.Unmarshal(v)
	})
	if err != nil {
		logger.Errorf("checkpoint v2: get primary %s failed: %v", key, err)
		return nil, false, fmt.Errorf("get primary %s: %w", key, err)
	}
	if found {
		s.BringBack(key)
	}
	return &p, found, nil
}

// SetPrimary writes the primary checkpoint at key.
func (s *Store) SetPrimary(key string, p *pb.PrimaryCheckpoint) error {
	data, err := p.Marshal()
	if err != nil {
		return fmt.Errorf("marshal primary %s: %w", key, err)
	}
	if err := s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketName).Put([]byte(key), data)
	}); err != nil {
		logger.Errorf("checkpoint v2: set primary %s failed: %v", key, err)
		return fmt.Errorf("set primary %s: %w", key, err)
	}
	return nil
}

// GetRange looks up the range checkpoint at key.
func (s *Store) GetRange(key string) (*pb.RangeCheckpoint, bool, error) {
	var r pb.RangeCheckpoint
	found := false
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketName).Get([]byte(key))
		if v == nil {
			return nil
		}
		found = true
		return r.Unmarshal(v)
	})
	if err != nil {
		logger.Errorf("checkpoint v2: get range %s failed: %v", key, err)
		return nil, false, fmt.Errorf("get range %s: %w", key, err)
	}
	return &r, found, nil
}

// SetRange writes the range checkpoint at key.
func (s *Store) SetRange(key string, r *pb.RangeCheckpoint) error {
	data, err := r.Marshal()
	if err != nil {
		return fmt.Errorf("marshal range %s: %w", key, err)
	}
	if err := s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketName).Put([]byte(key), data)
	}); err != nil {
		logger.Errorf("checkpoint v2: set range %s failed: %v", key, err)
		return fmt.Errorf("set range %s: %w", key, err)
	}
	return nil
}

// DeleteBatch removes every key in keys in a single bbolt transaction and
// returns how long the deletion took (callers use this for GC-round time
// budgeting).
func (s *Store) DeleteBatch(keys []string) (time.Duration, error) {
	start := s.clock.Now()
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketName)
		for _, k := range keys {
			if err := b.Delete([]byte(k)); err != nil {
				return err
			}
		}
		return nil
	})
	elapsed := s.clock.Now().Sub(start)
	if err != nil {
		logger.Errorf("checkpoint v2: delete batch of %d keys failed: %v", len(keys), err)
		return elapsed, fmt.Errorf("delete batch: %w", err)
	}
	return elapsed, nil
}

// MarkGC schedules primaryKey (and, by implication, its range checkpoints)
// for garbage collection. Idempotent: marking an already-marked key just
// refreshes nothing (the original mark time is kept, so the age threshold
// is measured from the first mark, not the most recent one).
func (s *Store) MarkGC(primaryKey string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, already := s.gcCandidates[primaryKey]; already {
		return
	}
	s.gcCandidates[primaryKey] = s.clock.Now()
}

// BringBack cancels a pending GC mark for primaryKey, invoked whenever any
// read hits it (spec.md §4.2 invariant: "a marked-GC key can be rescued by
// a subsequent read").
func (s *Store) BringBack(primaryKey string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.gcCandidates, primaryKey)
}

// PendingGC reports whether primaryKey is currently marked for GC.
func (s *Store) PendingGC(primaryKey string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.gcCandidates[primaryKey]
	return ok
}

// GCCandidateCount reports how many keys are currently marked, for tests
// and metrics.
func (s *Store) GCCandidateCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.gcCandidates)
}
