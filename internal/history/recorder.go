package history

import (
	"context"
	"encoding/binary"
	"fmt"
	"time"

	"github.com/fxamacker/cbor/v2"
	"go.etcd.io/bbolt"
	"go.uber.org/zap"

	"github.com/nmdata575/cryptominer-pro/internal/miner"
)

var bucketHistory = []byte("history")

const (
	// DefaultInterval is how often a record is appended.
	DefaultInterval = time.Minute

	// DefaultMaxRecords caps the store: 7 days at the default interval.
	DefaultMaxRecords = 7 * 24 * 60
)

// Record is one persisted observation of the miner snapshot. The core
// itself persists nothing; this recorder is a collaborator that reads the
// public snapshot and writes it elsewhere.
type Record struct {
	At            int64   `cbor:"at"`
	State         string  `cbor:"state"`
	HashrateTotal float64 `cbor:"hashrate"`
	Accepted      uint64  `cbor:"accepted"`
	Rejected      uint64  `cbor:"rejected"`
	Stale         uint64  `cbor:"stale"`
	Lost          uint64  `cbor:"lost"`
	BlocksFound   uint64  `cbor:"blocks"`
	Difficulty    float64 `cbor:"difficulty"`
	Reconnects    uint64  `cbor:"reconnects"`
	CPUPercent    float64 `cbor:"cpu"`
	MemoryMB      float64 `cbor:"mem_mb"`
}

// Recorder appends snapshot records to a bolt bucket on a fixed interval,
// pruning the oldest entries beyond the cap.
type Recorder struct {
	db       *bbolt.DB
	source   func() miner.Snapshot
	logger   *zap.Logger
	interval time.Duration
	max      int
}

// Open creates or opens the history database at path.
func Open(path string, source func() miner.Snapshot, logger *zap.Logger) (*Recorder, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open history db: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketHistory)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create history bucket: %w", err)
	}

	return &Recorder{
		db:       db,
		source:   source,
		logger:   logger,
		interval: DefaultInterval,
		max:      DefaultMaxRecords,
	}, nil
}

// Run appends records until ctx is canceled.
func (r *Recorder) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if err := r.recordAt(now); err != nil {
				r.logger.Warn("history record failed", zap.Error(err))
			}
		}
	}
}

func (r *Recorder) recordAt(now time.Time) error {
	snap := r.source()
	rec := Record{
		At:            now.Unix(),
		State:         snap.State,
		HashrateTotal: snap.HashrateTotal,
		Accepted:      snap.Accepted,
		Rejected:      snap.Rejected,
		Stale:         snap.Stale,
		Lost:          snap.Lost,
		BlocksFound:   snap.BlocksFound,
		Difficulty:    snap.Difficulty,
		Reconnects:    snap.Reconnects,
		CPUPercent:    snap.CPUPercent,
		MemoryMB:      snap.MemoryMB,
	}

	value, err := cbor.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode record: %w", err)
	}

	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, uint64(now.UnixNano()))

	return r.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketHistory)
		if err := b.Put(key, value); err != nil {
			return err
		}

		// Prune oldest beyond the cap. Keys are time-ordered.
		count := 0
		c := b.Cursor()
		for k, _ := c.First(); k != nil; k, _ = c.Next() {
			count++
		}
		for ; count > r.max; count-- {
			k, _ := c.First()
			if k == nil {
				break
			}
			if err := b.Delete(k); err != nil {
				return err
			}
		}
		return nil
	})
}

// Records returns up to limit records, newest first.
func (r *Recorder) Records(limit int) ([]Record, error) {
	var out []Record
	err := r.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket(bucketHistory).Cursor()
		for k, v := c.Last(); k != nil && len(out) < limit; k, v = c.Prev() {
			var rec Record
			if err := cbor.Unmarshal(v, &rec); err != nil {
				return fmt.Errorf("decode record: %w", err)
			}
			out = append(out, rec)
		}
		return nil
	})
	return out, err
}

// Close closes the database.
func (r *Recorder) Close() error {
	return r.db.Close()
}
