package v2

import (
	"context"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/open-logtail/logtailcore/internal/checkpoint/v2/pb"
	"github.com/open-logtail/logtailcore/internal/logger"
)

// ScannedPrimary is one surviving primary checkpoint emitted by a scan.
type ScannedPrimary struct {
	Key     string
	Primary pb.PrimaryCheckpoint
}

// V1Exists reports whether a V1 (legacy) checkpoint still exists for the
// given (configName, device, inode), used by FullScan's startup
// reconciliation to give V1 precedence, per spec.md §4.2.
type V1Exists func(configName string, device, inode uint64) bool

// FullScan implements the §4.2 "Full-scan reconciliation" used on startup:
// iterate the whole key space, deciding per key whether it is orphaned
// (scheduled for deletion) or should survive into the in-memory exactly-once
// state (out-of-scope collaborator QueueManager.initialize-exactly-once-queues
// in this core, surfaced here as ScannedPrimary). knownConfigs must be
// non-empty; an empty map causes every primary to be treated as orphaned.
func (s *Store) FullScan(knownConfigs map[string]struct{}, v1Exists V1Exists, expiry time.Duration, timeBudget time.Duration) ([]ScannedPrimary, []string, time.Duration, error) {
	start := s.clock.Now()
	neg := newNegativeCache(100)

	var survivors []ScannedPrimary
	var toDelete []string

	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketName).Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			if timeBudget > 0 && s.clock.Now().Sub(start) > timeBudget {
				break
			}
			key := string(k)

			if primaryKey, _, isRange := ParseRangeKey(key); isRange {
				if neg.Contains(primaryKey) {
					toDelete = append(toDelete, key)
					continue
				}
				if tx.Bucket(bucketName).Get([]byte(primaryKey)) == nil {
					neg.Add(primaryKey)
					toDelete = append(toDelete, key)
				}
				continue
			}

			// A primary key: decode it.
			var p pb.PrimaryCheckpoint
			if err := p.Unmarshal(v); err != nil {
				toDelete = append(toDelete, key)
				toDelete = AppendRangeKeys(key, maxPlausibleConcurrency, toDelete)
				logger.Errorf("checkpoint v2 scan: dropping unparseable primary %s: %v", key, err)
				continue
			}
			if _, known := knownConfigs[p.ConfigName]; !known {
				toDelete = append(toDelete, key)
				toDelete = AppendRangeKeys(key, int(p.Concurrency), toDelete)
				continue
			}
			if v1Exists != nil && v1Exists(p.ConfigName, p.Device, p.Inode) {
				// V1 takes precedence at startup: leave this primary's
				// ranges alone, but don't resurrect it into the
				// exactly-once working set either.
				continue
			}

			primaryAge := s.clock.Now().Sub(time.Unix(0, p.UpdateUnixNanos))
			if primaryAge >= expiry && rangesAllExpired(tx, key, int(p.Concurrency), expiry, s.clock.Now()) {
				toDelete = append(toDelete, key)
				toDelete = AppendRangeKeys(key, int(p.Concurrency), toDelete)
				continue
			}

			survivors = append(survivors, ScannedPrimary{Key: key, Primary: p})
		}
		return nil
	})
	elapsed := s.clock.Now().Sub(start)
	if err != nil {
		return nil, nil, elapsed, err
	}
	return survivors, toDelete, elapsed, nil
}

// maxPlausibleConcurrency bounds how many range keys FullScan tries to
// delete alongside an unparseable primary, since its real Concurrency
// field cannot be trusted.
const maxPlausibleConcurrency = 64

func rangesAllExpired(tx *bolt.Tx, primaryKey string, concurrency int, expiry time.Duration, now time.Time) bool {
	b := tx.Bucket(bucketName)
	for i := 0; i < concurrency; i++ {
		v := b.Get([]byte(RangeKey(primaryKey, i)))
		if v == nil {
			continue
		}
		var r pb.RangeCheckpoint
		if err := r.Unmarshal(v); err != nil {
			continue
		}
		if now.Sub(time.Unix(0, r.UpdateUnixNanos)) < expiry {
			return false
		}
	}
	return true
}

// IncrementalScan is the §4.2 "Incremental scan" used by the background GC
// loop: same orphan-detection logic as FullScan for range keys, but bounded
// by timeBudget and resumed from a process-local cursor that wraps to the
// beginning once the iterator falls off the end. It skips the V1-precedence
// and config-name checks, which only apply at startup reconciliation.
func (s *Store) IncrementalScan(timeBudget time.Duration) ([]string, time.Duration, error) {
	start := s.clock.Now()
	var toDelete []string

	s.mu.Lock()
	cursor := s.lastScanned
	s.mu.Unlock()

	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketName).Cursor()
		var k, v []byte
		if cursor == "" {
			k, v = c.First()
		} else {
			k, v = c.Seek([]byte(cursor))
			// Seek lands on cursor itself if present; advance past it so
			// the same key isn't rescanned every round.
			if k != nil && string(k) == cursor {
				k, v = c.Next()
			}
		}
		scanned := 0
		for ; ; k, v = c.Next() {
			if k == nil {
				// Fell off the end: wrap to the beginning.
				k, v = c.First()
				if k == nil {
					break // empty bucket
				}
			}
			if s.clock.Now().Sub(start) > timeBudget {
				s.mu.Lock()
				s.lastScanned = string(k)
				s.mu.Unlock()
				return nil
			}
			key := string(k)
			if primaryKey, _, isRange := ParseRangeKey(key); isRange {
				if tx.Bucket(bucketName).Get([]byte(primaryKey)) == nil {
					toDelete = append(toDelete, key)
				}
			} else {
				var p pb.PrimaryCheckpoint
				if err := p.Unmarshal(v); err != nil {
					toDelete = append(toDelete, key)
				}
			}
			scanned++
			s.mu.Lock()
			s.lastScanned = key
			s.mu.Unlock()
			if scanned >= maxIncrementalScanKeys {
				return nil
			}
		}
		return nil
	})
	elapsed := s.clock.Now().Sub(start)
	return toDelete, elapsed, err
}

// maxIncrementalScanKeys is a hard per-call backstop so a misconfigured
// zero time budget can't spin the GC goroutine forever on a huge bucket.
const maxIncrementalScanKeys = 100000

// GCLoopConfig tunes RunGCLoop, mirroring cfg.CheckpointConfig's V2 fields.
type GCLoopConfig struct {
	Interval       time.Duration
	CandidateAge   time.Duration
	RatePerRound   float64
	TimeBudget     time.Duration
	IncrementalBud time.Duration
}

// RunGCLoop runs the background GC thread (spec.md §4.2 "GC loop") until
// ctx is cancelled: every Interval, it sweeps marked-for-GC candidates
// older than CandidateAge (rate-limited to RatePerRound of the candidate
// set per round, bounded by TimeBudget), then runs a small incremental
// scan to sweep orphans the mark-based path never saw.
func (s *Store) RunGCLoop(ctx context.Context, cfg GCLoopConfig) {
	ticker := time.NewTicker(cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.gcRound(cfg)
		}
	}
}

func (s *Store) gcRound(cfg GCLoopConfig) {
	start := s.clock.Now()

	s.mu.Lock()
	candidates := make([]string, 0, len(s.gcCandidates))
	for k, markedAt := range s.gcCandidates {
		if start.Sub(markedAt) >= cfg.CandidateAge {
			candidates = append(candidates, k)
		}
	}
	s.mu.Unlock()

	limit := int(float64(len(candidates)) * cfg.RatePerRound)
	if limit < 1 && len(candidates) > 0 {
		limit = 1
	}
	if limit > len(candidates) {
		limit = len(candidates)
	}

	processed := 0
	for _, key := range candidates[:limit] {
		if s.clock.Now().Sub(start) > cfg.TimeBudget {
			break
		}
		p, found, err := s.getPrimaryNoBringBack(key)
		if err != nil {
			logger.Errorf("checkpoint v2 gc: read primary %s failed: %v", key, err)
			continue
		}
		if found {
			keys := AppendRangeKeys(key, int(p.Concurrency), []string{key})
			if _, err := s.DeleteBatch(keys); err != nil {
				logger.Errorf("checkpoint v2 gc: delete %s failed: %v", key, err)
				continue
			}
		}
		s.mu.Lock()
		delete(s.gcCandidates, key)
		s.mu.Unlock()
		processed++
	}

	orphans, _, err := s.IncrementalScan(cfg.IncrementalBud)
	if err != nil {
		logger.Errorf("checkpoint v2 gc: incremental scan failed: %v", err)
		return
	}
	if len(orphans) > 0 {
		if _, err := s.DeleteBatch(orphans); err != nil {
			logger.Errorf("checkpoint v2 gc: delete orphans failed: %v", err)
		}
	}
}

// getPrimaryNoBringBack reads a primary without cancelling a pending GC
// mark, since the GC round itself is the reader.
func (s *Store) getPrimaryNoBringBack(key string) (*pb.PrimaryCheckpoint, bool, error) {
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
	return &p, found, err
}
