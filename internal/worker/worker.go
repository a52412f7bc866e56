package worker

import (
	"math/big"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/nmdata575/cryptominer-pro/internal/algo"
	"github.com/nmdata575/cryptominer-pro/internal/job"
	"github.com/nmdata575/cryptominer-pro/pkg/util"
)

// Slice is one unit of nonce space assigned to a worker. Slices under the
// same (job, extranonce2, ntime) never overlap.
type Slice struct {
	WorkerID int
	Job      *job.Job

	Extranonce1 []byte
	Extranonce2 []byte

	// Nonce range, half-open. NonceEnd is a uint64 so the full 32-bit
	// domain can be expressed as [0, 1<<32).
	NonceStart uint32
	NonceEnd   uint64

	// NTime is the base timestamp for the slice; the worker may roll it
	// forward within bounds.
	NTime uint32

	// Target is the share target in force when the slice was issued.
	// Difficulty changes apply only to later slices.
	Target *big.Int
}

// Candidate is a nonce that met the slice's share target.
type Candidate struct {
	Job         *job.Job
	Extranonce2 []byte
	NTime       uint32
	Nonce       uint32
	Hash        [32]byte
	MeetsShare  bool
	MeetsBlock  bool
}

// Source issues slices. The coordinator implements it; ok is false while
// the session has no subscription to mine against.
type Source interface {
	NextSlice(workerID int, j *job.Job) (Slice, bool)
}

// Counters are per-worker telemetry, written by the owning worker only.
type Counters struct {
	HashesDone atomic.Uint64
	LastSample atomic.Int64 // unix nanoseconds
}

const (
	// idleWait is the pause when no job or slice is available.
	idleWait = 50 * time.Millisecond

	// preemptionInterval is the gap between checks of the generation
	// counter and run flag that the batch sizes below are sized to stay
	// under. The worker counts hashes, not time: no clock enforces it.
	preemptionInterval = 250 * time.Millisecond

	// Batch sizes between preemption checks. RandomX is orders of
	// magnitude slower per hash than scrypt.
	batchScrypt  = 1024
	batchRandomX = 16
)

// Config wires a pool to its collaborators. Job and Generation are owned by
// the coordinator; workers only read them.
type Config struct {
	Workers    int
	Factory    algo.Factory
	Source     Source
	Job        *atomic.Pointer[job.Job]
	Generation *atomic.Uint64
	Candidates chan<- Candidate

	RollNTime    bool
	MaxNTimeRoll uint32 // seconds beyond the job's ntime, typically 60
	MaxClockSkew uint32 // seconds beyond wall clock, typically 7200

	// OnError is invoked on fatal per-worker failures (hasher resource
	// errors). The worker stops afterwards.
	OnError func(workerID int, err error)
}

// Pool runs a fixed set of hashing workers on dedicated goroutines. Workers
// never perform I/O; they communicate through atomics and the candidate
// channel only.
type Pool struct {
	cfg    Config
	logger *zap.Logger
	batch  uint64

	counters []*Counters
	running  atomic.Bool
	dropped  atomic.Uint64
	wg       sync.WaitGroup
}

// NewPool creates a pool; Start spawns the workers.
func NewPool(cfg Config, logger *zap.Logger) *Pool {
	if cfg.MaxNTimeRoll == 0 {
		cfg.MaxNTimeRoll = 60
	}
	if cfg.MaxClockSkew == 0 {
		cfg.MaxClockSkew = 7200
	}

	batch := uint64(batchScrypt)
	if cfg.Factory.Algorithm() == algo.RandomX {
		batch = batchRandomX
	}

	counters := make([]*Counters, cfg.Workers)
	for i := range counters {
		counters[i] = &Counters{}
	}

	return &Pool{
		cfg:      cfg,
		logger:   logger,
		batch:    batch,
		counters: counters,
	}
}

// Counters exposes the per-worker counters for the telemetry sampler.
func (p *Pool) Counters() []*Counters { return p.counters }

// Dropped returns candidates discarded because the channel was full.
func (p *Pool) Dropped() uint64 { return p.dropped.Load() }

// Start creates one hasher per worker and launches the worker goroutines.
// Hasher creation failures are resource errors and fail the whole start.
func (p *Pool) Start() error {
	hashers := make([]algo.Hasher, p.cfg.Workers)
	for i := range hashers {
		h, err := p.cfg.Factory.New()
		if err != nil {
			for _, created := range hashers[:i] {
				created.Close()
			}
			return err
		}
		hashers[i] = h
	}

	p.running.Store(true)
	for i, h := range hashers {
		p.wg.Add(1)
		go p.worker(i, h)
	}

	p.logger.Info("worker pool started",
		zap.Int("workers", p.cfg.Workers),
		zap.String("algorithm", p.cfg.Factory.Algorithm().String()),
	)
	return nil
}

// Stop flags the workers down and joins them. Workers observe the flag at
// their next preemption check.
func (p *Pool) Stop() {
	p.running.Store(false)
	p.wg.Wait()
	p.logger.Info("worker pool stopped")
}

func (p *Pool) worker(id int, h algo.Hasher) {
	defer p.wg.Done()
	defer h.Close()

	for p.running.Load() {
		j := p.cfg.Job.Load()
		if j == nil {
			time.Sleep(idleWait)
			continue
		}

		s, ok := p.cfg.Source.NextSlice(id, j)
		if !ok {
			time.Sleep(idleWait)
			continue
		}

		if err := p.runSlice(id, h, s); err != nil {
			p.logger.Error("worker failed", zap.Int("worker", id), zap.Error(err))
			if p.cfg.OnError != nil {
				p.cfg.OnError(id, err)
			}
			return
		}
	}
}

// runSlice hashes one slice, rolling ntime within bounds when the nonce
// space is exhausted. Returns a non-nil error only on fatal hasher failure.
func (p *Pool) runSlice(id int, h algo.Hasher, s Slice) error {
	j := s.Job
	gen := p.cfg.Generation.Load()
	ctr := p.counters[id]

	// The coinbase and merkle root are fixed for the slice; only the
	// header prefix changes when ntime rolls.
	coinbase := job.AssembleCoinbase(j.Coinbase1, s.Extranonce1, s.Extranonce2, j.Coinbase2)
	root := job.MerkleRoot(util.DoubleSHA256(coinbase), j.MerkleBranch)
	seed := j.Seed()

	ntime := s.NTime
	for {
		header := j.HeaderPrefix(root, ntime)

		var done uint64
		for n := uint64(s.NonceStart); n < s.NonceEnd; n++ {
			job.SetNonce(header, uint32(n))
			hash, err := h.Hash(seed, header)
			if err != nil {
				ctr.HashesDone.Add(done)
				return err
			}
			done++

			if util.HashMeetsTarget(hash, s.Target) {
				cand := Candidate{
					Job:         j,
					Extranonce2: s.Extranonce2,
					NTime:       ntime,
					Nonce:       uint32(n),
					Hash:        hash,
					MeetsShare:  true,
					MeetsBlock:  j.BlockTarget != nil && util.HashMeetsTarget(hash, j.BlockTarget),
				}
				// Never block the hashing loop on a full channel.
				select {
				case p.cfg.Candidates <- cand:
				default:
					p.dropped.Add(1)
				}
			}

			// The batch size keeps the gap between checks well under the
			// preemption bound at realistic hash rates.
			if done%p.batch == 0 {
				ctr.HashesDone.Add(done)
				ctr.LastSample.Store(time.Now().UnixNano())
				done = 0

				if !p.running.Load() ||
					p.cfg.Generation.Load() != gen ||
					p.cfg.Job.Load() != j {
					return nil
				}
			}
		}
		ctr.HashesDone.Add(done)
		ctr.LastSample.Store(time.Now().UnixNano())

		// Nonce space exhausted: roll ntime if allowed, else hand back
		// for a fresh slice with a new extranonce2.
		if !p.cfg.RollNTime {
			return nil
		}
		next := ntime + 1
		if next > j.NTime+p.cfg.MaxNTimeRoll {
			return nil
		}
		if int64(next) > time.Now().Unix()+int64(p.cfg.MaxClockSkew) {
			return nil
		}
		ntime = next
	}
}
