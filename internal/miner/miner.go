package miner

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"math/big"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/nmdata575/cryptominer-pro/internal/algo"
	"github.com/nmdata575/cryptominer-pro/internal/coin"
	"github.com/nmdata575/cryptominer-pro/internal/control"
	"github.com/nmdata575/cryptominer-pro/internal/job"
	"github.com/nmdata575/cryptominer-pro/internal/metrics"
	"github.com/nmdata575/cryptominer-pro/internal/stratum"
	"github.com/nmdata575/cryptominer-pro/internal/worker"
)

const candidateBuffer = 256

// Config selects what and where to mine. Everything is passed explicitly;
// nothing is read from the environment.
type Config struct {
	Coin     *coin.Definition
	PoolHost string
	PoolPort int
	User     string
	Pass     string

	Workers    int
	MaxWorkers int

	RollNTime      bool
	RandomXFullMem bool
	MaxInflight    int
	UserAgent      string
}

func (c Config) validate() error {
	if c.Coin == nil {
		return errors.New("coin definition is required")
	}
	if c.PoolHost == "" || c.PoolPort == 0 {
		return errors.New("pool host and port are required")
	}
	if c.User == "" {
		return errors.New("pool user is required")
	}
	if c.Workers < 1 {
		return fmt.Errorf("worker count %d below minimum of 1", c.Workers)
	}
	max := c.MaxWorkers
	if max == 0 {
		max = runtime.NumCPU()
	}
	if c.Workers > max {
		return fmt.Errorf("worker count %d above cap of %d", c.Workers, max)
	}
	return nil
}

// LastError is the most recent failure, kept for the snapshot so operators
// can diagnose without attaching a debugger.
type LastError struct {
	Kind    string    `json:"kind"`
	Message string    `json:"message"`
	At      time.Time `json:"at"`
}

// Miner is the coordinator: it owns the lifecycle, the current-job slot and
// the preemption generation, bridges the stratum session to the worker pool,
// and routes found nonces back as submissions.
type Miner struct {
	cfg    Config
	logger *zap.Logger

	mu         sync.Mutex
	running    bool
	cancel     context.CancelFunc
	client     *stratum.Client
	pool       *worker.Pool
	factory    algo.Factory
	sampler    *control.Sampler
	candidates chan worker.Candidate
	wg         sync.WaitGroup
	startedAt  time.Time

	controller *control.Controller

	curJob atomic.Pointer[job.Job]
	gen    atomic.Uint64

	// Slice issue state, refreshed on SessionUp and DifficultyChanged.
	sliceMu      sync.Mutex
	sessionReady bool
	extranonce1  []byte
	en2size      int
	shareTarget  *big.Int
	difficulty   float64
	en2counter   uint64

	accepted  atomic.Uint64
	rejected  atomic.Uint64
	stale     atomic.Uint64
	submitted atomic.Uint64
	blocks    atomic.Uint64

	lastError atomic.Pointer[LastError]
}

// New creates a miner. Start connects and begins hashing.
func New(cfg Config, logger *zap.Logger) (*Miner, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &Miner{
		cfg:        cfg,
		logger:     logger,
		controller: control.NewController(maxWorkers(cfg)),
	}, nil
}

func maxWorkers(cfg Config) int {
	if cfg.MaxWorkers > 0 {
		return cfg.MaxWorkers
	}
	return runtime.NumCPU()
}

// Start brings up the session, the worker pool and the telemetry loops.
// At most one session is active per miner.
func (m *Miner) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return errors.New("miner already running")
	}

	factory, err := algo.NewFactory(m.cfg.Coin.Algo,
		algo.Options{RandomXFullMem: m.cfg.RandomXFullMem}, m.logger)
	if err != nil {
		return err
	}

	client := stratum.NewClient(stratum.Config{
		Host:        m.cfg.PoolHost,
		Port:        m.cfg.PoolPort,
		User:        m.cfg.User,
		Pass:        m.cfg.Pass,
		UserAgent:   m.cfg.UserAgent,
		Diff1:       m.cfg.Coin.Diff1,
		MaxInflight: m.cfg.MaxInflight,
	}, m.logger.Named("stratum"))

	candidates := make(chan worker.Candidate, candidateBuffer)
	pool := worker.NewPool(worker.Config{
		Workers:    m.cfg.Workers,
		Factory:    factory,
		Source:     m,
		Job:        &m.curJob,
		Generation: &m.gen,
		Candidates: candidates,
		RollNTime:  m.cfg.RollNTime,
		OnError: func(workerID int, err error) {
			m.setLastError("resource", err.Error())
			m.logger.Error("fatal worker error, stopping",
				zap.Int("worker", workerID), zap.Error(err))
			go m.Stop()
		},
	}, m.logger.Named("workers"))

	if err := pool.Start(); err != nil {
		factory.Close()
		m.setLastError("resource", err.Error())
		return fmt.Errorf("start worker pool: %w", err)
	}

	runCtx, cancel := context.WithCancel(ctx)

	m.client = client
	m.pool = pool
	m.factory = factory
	m.candidates = candidates
	m.cancel = cancel
	m.sampler = control.NewSampler(pool.Counters(), m.logger.Named("telemetry"))
	m.startedAt = time.Now()
	m.running = true

	m.wg.Add(4)
	go func() {
		defer m.wg.Done()
		client.Run(runCtx)
	}()
	go func() {
		defer m.wg.Done()
		m.eventLoop()
	}()
	go func() {
		defer m.wg.Done()
		m.candidateLoop()
	}()
	go func() {
		defer m.wg.Done()
		m.controlLoop(runCtx)
	}()

	go m.sampler.Run(runCtx)

	m.logger.Info("miner started",
		zap.String("coin", m.cfg.Coin.CoinID),
		zap.String("algorithm", m.cfg.Coin.Algo.String()),
		zap.String("pool", fmt.Sprintf("%s:%d", m.cfg.PoolHost, m.cfg.PoolPort)),
		zap.Int("workers", m.cfg.Workers),
	)
	return nil
}

// Stop tears the session and the workers down. The coordinator's share
// counters (accepted, rejected, stale, submitted, blocks) survive for the
// next Start; the session counters (reconnects, lost, rate limited) start
// over with the new session.
func (m *Miner) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	m.running = false
	cancel := m.cancel
	pool := m.pool
	factory := m.factory
	candidates := m.candidates
	m.mu.Unlock()

	// Order matters: unblock workers, close the socket, join everything.
	m.gen.Add(1)
	cancel()
	pool.Stop()
	close(candidates)
	m.wg.Wait()
	factory.Close()

	m.curJob.Store(nil)
	m.sliceMu.Lock()
	m.sessionReady = false
	m.extranonce1 = nil
	m.en2size = 0
	m.sliceMu.Unlock()

	m.logger.Info("miner stopped")
}

// Restart stops and starts with the same configuration.
func (m *Miner) Restart(ctx context.Context) error {
	m.Stop()
	return m.Start(ctx)
}

// NextSlice implements worker.Source. Every slice gets a session-unique
// extranonce2 and the full 32-bit nonce range, so two slices can never
// overlap within the same (job, extranonce2, ntime).
func (m *Miner) NextSlice(workerID int, j *job.Job) (worker.Slice, bool) {
	m.sliceMu.Lock()
	defer m.sliceMu.Unlock()

	if !m.sessionReady || m.en2size == 0 {
		return worker.Slice{}, false
	}

	m.en2counter++
	en2 := make([]byte, m.en2size)
	putCounter(en2, m.en2counter)

	// New slices take the current target; the job's own target only
	// covers the gap before the first set_difficulty.
	target := m.shareTarget
	if target == nil {
		target = j.ShareTarget
	}

	return worker.Slice{
		WorkerID:    workerID,
		Job:         j,
		Extranonce1: append([]byte(nil), m.extranonce1...),
		Extranonce2: en2,
		NonceStart:  0,
		NonceEnd:    1 << 32,
		NTime:       j.NTime,
		Target:      target,
	}, true
}

// putCounter writes the low bytes of a counter big-endian into buf.
func putCounter(buf []byte, v uint64) {
	var full [8]byte
	binary.BigEndian.PutUint64(full[:], v)
	copy(buf, full[8-len(buf):])
}

func (m *Miner) eventLoop() {
	for ev := range m.client.Events() {
		switch ev := ev.(type) {
		case stratum.SessionUp:
			m.sliceMu.Lock()
			m.extranonce1 = ev.Extranonce1
			m.en2size = ev.Extranonce2Size
			m.sessionReady = true
			m.sliceMu.Unlock()
			// Slices issued under the old subscription are invalid.
			m.gen.Add(1)

		case stratum.JobNotification:
			j := ev.Job
			prev := m.curJob.Swap(j)
			if j.CleanJobs || prev == nil {
				m.gen.Add(1)
			}
			m.logger.Info("new job",
				zap.String("job_id", j.ID),
				zap.Bool("clean", j.CleanJobs),
				zap.Uint64("seq", j.Seq),
			)

		case stratum.DifficultyChanged:
			m.sliceMu.Lock()
			m.difficulty = ev.Difficulty
			m.shareTarget = ev.Target
			m.sliceMu.Unlock()
			metrics.Difficulty.Set(ev.Difficulty)

		case stratum.ShareResult:
			m.handleShareResult(ev)

		case stratum.ServerMessage:
			m.logger.Debug("server message",
				zap.String("method", ev.Method),
				zap.Any("params", ev.Params),
			)

		case stratum.Disconnected:
			m.sliceMu.Lock()
			m.sessionReady = false
			m.sliceMu.Unlock()
			m.gen.Add(1)

			kind := "network"
			var se *stratum.SessionError
			if errors.As(ev.Err, &se) {
				kind = se.Kind.String()
			}
			if ev.Err != nil {
				m.setLastError(kind, ev.Err.Error())
			}
			metrics.Reconnects.Inc()

			if ev.Fatal {
				m.logger.Error("session failed permanently, stopping", zap.Error(ev.Err))
				go m.Stop()
			}
		}
	}
}

func (m *Miner) handleShareResult(ev stratum.ShareResult) {
	switch {
	case ev.Lost:
		metrics.SharesLost.Inc()
		metrics.SubmissionResults.WithLabelValues("lost").Inc()

	case ev.Accepted:
		m.accepted.Add(1)
		metrics.SharesAccepted.Inc()
		metrics.SubmissionResults.WithLabelValues("accepted").Inc()

	case ev.Kind == stratum.KindStale:
		// Expected after clean-job preemption; tracked separately from
		// rejects.
		m.stale.Add(1)
		metrics.SharesStale.Inc()
		metrics.SubmissionResults.WithLabelValues("stale").Inc()

	default:
		m.rejected.Add(1)
		metrics.SharesRejected.Inc()
		metrics.SubmissionResults.WithLabelValues(ev.Kind.String()).Inc()
		m.setLastError(ev.Kind.String(), ev.Reason)
	}
}

func (m *Miner) candidateLoop() {
	for c := range m.candidates {
		if !c.MeetsShare {
			continue
		}

		if c.MeetsBlock {
			m.blocks.Add(1)
			metrics.BlocksFound.Inc()
			m.logger.Info("BLOCK CANDIDATE found",
				zap.String("job_id", c.Job.ID),
				zap.Uint32("nonce", c.Nonce),
			)
		}

		id, err := m.client.Submit(c.Job.ID, c.Extranonce2, c.NTime, c.Nonce)
		switch {
		case err == nil:
			m.submitted.Add(1)
			m.logger.Debug("share submitted",
				zap.Uint64("rpc_id", id),
				zap.String("job_id", c.Job.ID),
				zap.Uint32("nonce", c.Nonce),
			)
		case errors.Is(err, stratum.ErrRateLimited):
			metrics.SharesRateLimited.Inc()
			metrics.SubmissionResults.WithLabelValues("rate_limited").Inc()
		case errors.Is(err, stratum.ErrNotMining):
			// Session dropped between find and submit; the share dies
			// with it.
		default:
			m.setLastError("network", err.Error())
		}
	}
}

// controlLoop feeds the adaptive controller and the uptime gauge.
func (m *Miner) controlLoop(ctx context.Context) {
	ticker := time.NewTicker(control.EvaluateInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			metrics.UptimeSeconds.Set(now.Sub(m.startedAt).Seconds())
			metrics.InflightSubmissions.Set(float64(m.client.Inflight()))

			s := m.sampler.Latest()
			rec := m.controller.Evaluate(now, s.CPUPercent, s.Total,
				m.accepted.Load(), m.rejected.Load(), m.cfg.Workers)
			if rec.Threads != m.cfg.Workers {
				m.logger.Info("controller recommendation",
					zap.Int("threads", rec.Threads),
					zap.String("reason", rec.Reason),
				)
			}
		}
	}
}

func (m *Miner) setLastError(kind, msg string) {
	m.lastError.Store(&LastError{Kind: kind, Message: msg, At: time.Now()})
}
