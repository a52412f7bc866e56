package control

import (
	"context"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/process"
	"go.uber.org/zap"

	"github.com/nmdata575/cryptominer-pro/internal/metrics"
	"github.com/nmdata575/cryptominer-pro/internal/worker"
)

const (
	// SampleInterval is how often telemetry is collected.
	SampleInterval = 500 * time.Millisecond

	// windowSamples sizes the rolling hashrate window: 5 seconds at the
	// sample interval.
	windowSamples = 10
)

// Sample is one telemetry observation.
type Sample struct {
	At         time.Time
	PerWorker  []float64 // H/s over the rolling window
	Total      float64
	CPUPercent float64
	MemoryRSS  uint64
}

type ringPoint struct {
	at     time.Time
	counts []uint64
}

// Sampler computes rolling hashrates from the per-worker atomic counters
// and reads CPU/memory from the OS.
type Sampler struct {
	counters []*worker.Counters
	logger   *zap.Logger
	proc     *process.Process

	mu     sync.RWMutex
	ring   []ringPoint
	latest Sample
}

// NewSampler creates a sampler over the pool's counters.
func NewSampler(counters []*worker.Counters, logger *zap.Logger) *Sampler {
	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		logger.Warn("process telemetry unavailable", zap.Error(err))
		proc = nil
	}
	return &Sampler{
		counters: counters,
		logger:   logger,
		proc:     proc,
	}
}

// Run samples until ctx is canceled.
func (s *Sampler) Run(ctx context.Context) {
	ticker := time.NewTicker(SampleInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			s.sampleAt(now)
		}
	}
}

// Latest returns the most recent sample. The zero Sample is returned before
// the first collection.
func (s *Sampler) Latest() Sample {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.latest
}

func (s *Sampler) sampleAt(now time.Time) {
	counts := make([]uint64, len(s.counters))
	for i, c := range s.counters {
		counts[i] = c.HashesDone.Load()
	}

	s.mu.Lock()
	s.ring = append(s.ring, ringPoint{at: now, counts: counts})
	if len(s.ring) > windowSamples+1 {
		s.ring = s.ring[1:]
	}

	sample := Sample{At: now, PerWorker: make([]float64, len(counts))}
	oldest := s.ring[0]
	if dt := now.Sub(oldest.at).Seconds(); dt > 0 {
		for i := range counts {
			sample.PerWorker[i] = float64(counts[i]-oldest.counts[i]) / dt
			sample.Total += sample.PerWorker[i]
		}
	}

	sample.CPUPercent = s.cpuPercent()
	sample.MemoryRSS = s.memoryRSS()
	s.latest = sample
	s.mu.Unlock()

	metrics.HashrateTotal.Set(sample.Total)
	for i, hr := range sample.PerWorker {
		metrics.HashrateWorker.WithLabelValues(strconv.Itoa(i)).Set(hr)
	}
	metrics.CPUPercent.Set(sample.CPUPercent)
	metrics.MemoryRSS.Set(float64(sample.MemoryRSS))
}

// cpuPercent reads host CPU utilization since the previous call.
func (s *Sampler) cpuPercent() float64 {
	percents, err := cpu.Percent(0, false)
	if err != nil || len(percents) == 0 {
		return 0
	}
	return percents[0]
}

func (s *Sampler) memoryRSS() uint64 {
	if s.proc == nil {
		return 0
	}
	info, err := s.proc.MemoryInfo()
	if err != nil || info == nil {
		return 0
	}
	return info.RSS
}
