package miner

import (
	"fmt"
	"time"

	"github.com/nmdata575/cryptominer-pro/internal/control"
	"github.com/nmdata575/cryptominer-pro/internal/stratum"
)

// WorkerStatus is one worker's view in the snapshot.
type WorkerStatus struct {
	ID       int     `json:"id"`
	Hashrate float64 `json:"hashrate"`
}

// Snapshot is the read-only status structure exposed to external
// collaborators (HTTP shell, CLI, log reporter). All fields are copies;
// holding a Snapshot never blocks the miner.
type Snapshot struct {
	State     string `json:"state"`
	Coin      string `json:"coin"`
	Algorithm string `json:"algorithm"`

	JobID     string `json:"jobId"`
	JobNTime  string `json:"jobNtime"`
	CleanJobs bool   `json:"cleanJobs"`

	Difficulty float64 `json:"difficulty"`
	Target     string  `json:"target"`

	Workers       []WorkerStatus `json:"workers"`
	HashrateTotal float64        `json:"hashrateTotal"`

	Accepted    uint64 `json:"accepted"`
	Rejected    uint64 `json:"rejected"`
	Stale       uint64 `json:"stale"`
	Lost        uint64 `json:"lost"`
	RateLimited uint64 `json:"rateLimited"`
	Submitted   uint64 `json:"submitted"`
	BlocksFound uint64 `json:"blocksFound"`
	Inflight    int    `json:"inflight"`

	CPUPercent float64 `json:"cpuPercent"`
	MemoryMB   float64 `json:"memoryMb"`

	UptimeSeconds float64 `json:"uptimeSeconds"`
	Reconnects    uint64  `json:"reconnects"`

	Recommendation control.Recommendation `json:"recommendation"`
	LastError      *LastError             `json:"lastError,omitempty"`
}

// Snapshot assembles the current status. Counter reads are individually
// atomic; the snapshot as a whole is consistent to within one sample period.
func (m *Miner) Snapshot() Snapshot {
	snap := Snapshot{
		State:     stratum.StateDisconnected.String(),
		Coin:      m.cfg.Coin.CoinID,
		Algorithm: m.cfg.Coin.Algo.String(),

		Accepted:    m.accepted.Load(),
		Rejected:    m.rejected.Load(),
		Stale:       m.stale.Load(),
		Submitted:   m.submitted.Load(),
		BlocksFound: m.blocks.Load(),

		Recommendation: m.controller.Latest(),
		LastError:      m.lastError.Load(),
	}

	m.mu.Lock()
	client := m.client
	sampler := m.sampler
	running := m.running
	startedAt := m.startedAt
	m.mu.Unlock()

	if running {
		snap.UptimeSeconds = time.Since(startedAt).Seconds()
	}

	if client != nil {
		snap.State = client.State().String()
		snap.Reconnects = client.Reconnects()
		snap.Lost = client.Lost()
		snap.RateLimited = client.RateLimited()
		snap.Inflight = client.Inflight()
	}

	if j := m.curJob.Load(); j != nil {
		snap.JobID = j.ID
		snap.JobNTime = fmt.Sprintf("%08x", j.NTime)
		snap.CleanJobs = j.CleanJobs
	}

	m.sliceMu.Lock()
	snap.Difficulty = m.difficulty
	if m.shareTarget != nil {
		snap.Target = fmt.Sprintf("%064x", m.shareTarget)
	}
	m.sliceMu.Unlock()

	if sampler != nil {
		s := sampler.Latest()
		snap.HashrateTotal = s.Total
		snap.CPUPercent = s.CPUPercent
		snap.MemoryMB = float64(s.MemoryRSS) / (1024 * 1024)
		snap.Workers = make([]WorkerStatus, len(s.PerWorker))
		for i, hr := range s.PerWorker {
			snap.Workers[i] = WorkerStatus{ID: i, Hashrate: hr}
		}
	}

	return snap
}
