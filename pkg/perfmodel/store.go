// Package perfmodel is the bbolt-backed execution-length history a
// scheduler-tree worker leaf consults to estimate how long a codelet will
// take on its architecture. Grounded on pkg/storage/boltdb.go's
// bucket-per-kind, JSON-value, db.Update/View pattern.
package perfmodel

import (
	"encoding/json"
	"fmt"
	"math"
	"path/filepath"

	bolt "go.etcd.io/bbolt"
)

var bucketMeasurements = []byte("measurements")

// sample is the running mean/variance accumulator for one (symbol, arch,
// footprint bucket) key, using Welford's online algorithm so repeated
// measurements never need to replay the whole history.
type sample struct {
	Count    int64   `json:"count"`
	Mean     float64 `json:"mean"`
	M2       float64 `json:"m2"` // sum of squared deviations from the mean
	LastSecs float64 `json:"last_secs"`
}

func (s *sample) variance() float64 {
	if s.Count < 2 {
		return 0
	}
	return s.M2 / float64(s.Count-1)
}

func (s *sample) observe(secs float64) {
	s.Count++
	delta := secs - s.Mean
	s.Mean += delta / float64(s.Count)
	s.M2 += delta * (secs - s.Mean)
	s.LastSecs = secs
}

// Mode selects how Store.Estimate treats a key with insufficient history.
type Mode int

const (
	// ModeOff reports only history already in the store: Estimate gives !ok
	// for a key with fewer than minSamples measurements, and Calibrating
	// stays true until some footprint bucket of the (symbol, arch) pair
	// holds minSamples.
	ModeOff Mode = iota
	// ModeOn is treated exactly like ModeOff by Estimate and Calibrating;
	// Record accepts measurements in every mode.
	ModeOn
	// ModeForce never reports ok, so every worker leaf reports
	// Calibrating regardless of history depth; used to force a fresh
	// round of measurements before trusting estimates again.
	ModeForce
)

// ParseMode maps the CALIBRATE env var's values ("", "0", "1", "force") onto
// a Mode, per spec.
func ParseMode(v string) Mode {
	switch v {
	case "force":
		return ModeForce
	case "1":
		return ModeOn
	default:
		return ModeOff
	}
}

const minSamples = 3

// footprintBucket quantizes a byte size into a power-of-two bucket so
// nearby task sizes share history instead of each allocating its own
// never-warmed key.
func footprintBucket(n uint64) uint64 {
	if n == 0 {
		return 0
	}
	return uint64(1) << uint(math.Ceil(math.Log2(float64(n))))
}

func key(symbol, arch string, footprintBytes uint64) []byte {
	return []byte(fmt.Sprintf("%s|%s|%d", symbol, arch, footprintBucket(footprintBytes)))
}

func keyPrefix(symbol, arch string) []byte {
	return []byte(fmt.Sprintf("%s|%s|", symbol, arch))
}

// Store is an append-only measurement log keyed by codelet symbol, worker
// architecture, and a quantized size footprint. It satisfies
// pkg/sched/tree.Estimator so a WorkerNode can consult it directly.
type Store struct {
	db   *bolt.DB
	mode Mode
}

// Open opens (creating if absent) the performance-model database under
// dataDir, mirroring storage.NewBoltStore's filepath.Join(dataDir, ...)
// convention.
func Open(dataDir string, mode Mode) (*Store, error) {
	path := filepath.Join(dataDir, "perfmodel.db")
	db, err := bolt.Open(path, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("perfmodel: open %s: %w", path, err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketMeasurements)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("perfmodel: init buckets: %w", err)
	}
	return &Store{db: db, mode: mode}, nil
}

func (s *Store) Close() error { return s.db.Close() }

// Record logs one completed execution's wall-clock length against its
// (symbol, arch, footprint) key.
func (s *Store) Record(symbol, arch string, footprintBytes uint64, secs float64) error {
	k := key(symbol, arch, footprintBytes)
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketMeasurements)
		var sm sample
		if raw := b.Get(k); raw != nil {
			if err := json.Unmarshal(raw, &sm); err != nil {
				return fmt.Errorf("perfmodel: decode %s: %w", k, err)
			}
		}
		sm.observe(secs)
		data, err := json.Marshal(&sm)
		if err != nil {
			return err
		}
		return b.Put(k, data)
	})
}

// Estimate implements pkg/sched/tree.Estimator. In ModeForce it always
// reports !ok so every leaf is treated as calibrating; in ModeOff/ModeOn it
// reports the recorded mean once minSamples measurements exist.
func (s *Store) Estimate(symbol, arch string, footprintBytes uint64) (float64, bool) {
	if s.mode == ModeForce {
		return 0, false
	}
	sm, ok := s.lookup(symbol, arch, footprintBytes)
	if !ok || sm.Count < minSamples {
		return 0, false
	}
	return sm.Mean, true
}

// Calibrating implements pkg/sched/tree.Estimator: true until at least one
// footprint bucket for this (symbol, arch) pair has accumulated minSamples
// measurements, or CALIBRATE=force is set. Unlike Estimate, this is not
// footprint-specific: a codelet is considered warmed up once any size class
// has enough history, matching the original's per-codelet-arch (not
// per-size) notion of "still calibrating".
func (s *Store) Calibrating(symbol, arch string) bool {
	if s.mode == ModeForce {
		return true
	}
	var warm bool
	_ = s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketMeasurements).Cursor()
		prefix := keyPrefix(symbol, arch)
		for k, v := c.Seek(prefix); k != nil && hasPrefix(k, prefix); k, v = c.Next() {
			var sm sample
			if err := json.Unmarshal(v, &sm); err != nil {
				continue
			}
			if sm.Count >= minSamples {
				warm = true
				return nil
			}
		}
		return nil
	})
	return !warm
}

func hasPrefix(k, prefix []byte) bool {
	return len(k) >= len(prefix) && string(k[:len(prefix)]) == string(prefix)
}

func (s *Store) lookup(symbol, arch string, footprintBytes uint64) (*sample, bool) {
	var sm sample
	var found bool
	_ = s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketMeasurements)
		raw := b.Get(key(symbol, arch, footprintBytes))
		if raw == nil {
			return nil
		}
		if err := json.Unmarshal(raw, &sm); err != nil {
			return nil
		}
		found = true
		return nil
	})
	return &sm, found
}

// Variance reports the sample variance of a key's recorded lengths; the
// scheduler does not consult it.
func (s *Store) Variance(symbol, arch string, footprintBytes uint64) (float64, bool) {
	sm, ok := s.lookup(symbol, arch, footprintBytes)
	if !ok {
		return 0, false
	}
	return sm.variance(), true
}
