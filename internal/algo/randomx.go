package algo

import (
	"bytes"
	"fmt"
	"runtime"
	"sync"
	"time"

	"go.uber.org/zap"
)

// randomXFactory shares one cache (and dataset, in full-memory mode) across
// all hashers it creates. The cache is keyed by the job seed; a seed change
// rotates the cache and dataset.
type randomXFactory struct {
	fullMem bool
	logger  *zap.Logger

	mu      sync.Mutex
	seed    []byte
	cache   *randomxCache
	dataset *randomxDataset
	epoch   uint64

	// The previous generation is retained for one rotation so hashers
	// mid-switch keep a live cache under their VM.
	prevCache   *randomxCache
	prevDataset *randomxDataset
}

func newRandomXFactory(fullMem bool, logger *zap.Logger) *randomXFactory {
	return &randomXFactory{
		fullMem: fullMem,
		logger:  logger,
	}
}

func (f *randomXFactory) Algorithm() Algorithm { return RandomX }

func (f *randomXFactory) New() (Hasher, error) {
	return &randomXHasher{f: f}, nil
}

func (f *randomXFactory) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.releasePrev()
	if f.dataset != nil {
		f.dataset.close()
		f.dataset = nil
	}
	if f.cache != nil {
		f.cache.close()
		f.cache = nil
	}
	f.seed = nil
}

func (f *randomXFactory) releasePrev() {
	if f.prevDataset != nil {
		f.prevDataset.close()
		f.prevDataset = nil
	}
	if f.prevCache != nil {
		f.prevCache.close()
		f.prevCache = nil
	}
}

// ensure (re)initializes the cache and dataset for seed and returns them
// together with the current epoch. Dataset initialization is expensive
// (seconds in full-memory mode) and runs on the calling worker thread,
// never on the session I/O task.
func (f *randomXFactory) ensure(seed []byte) (*randomxCache, *randomxDataset, uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.cache != nil && bytes.Equal(f.seed, seed) {
		return f.cache, f.dataset, f.epoch, nil
	}

	start := time.Now()
	cache, err := newRandomXCache(seed)
	if err != nil {
		return nil, nil, 0, fmt.Errorf("alloc randomx cache: %w", err)
	}

	var dataset *randomxDataset
	if f.fullMem {
		dataset, err = newRandomXDataset(cache, runtime.NumCPU())
		if err != nil {
			cache.close()
			return nil, nil, 0, fmt.Errorf("alloc randomx dataset: %w", err)
		}
	}

	f.releasePrev()
	f.prevCache, f.prevDataset = f.cache, f.dataset
	f.cache, f.dataset = cache, dataset
	f.seed = append([]byte(nil), seed...)
	f.epoch++

	f.logger.Info("randomx generation initialized",
		zap.Uint64("epoch", f.epoch),
		zap.Bool("full_mem", f.fullMem),
		zap.Bool("native", randomxAvailable()),
		zap.Duration("took", time.Since(start)),
	)

	return f.cache, f.dataset, f.epoch, nil
}

// randomXHasher owns one VM. The VM is rebuilt when the seed changes.
type randomXHasher struct {
	f     *randomXFactory
	vm    *randomxVM
	epoch uint64
	seed  []byte
}

func (h *randomXHasher) Hash(seed, header []byte) ([32]byte, error) {
	if h.vm == nil || !bytes.Equal(h.seed, seed) {
		cache, dataset, epoch, err := h.f.ensure(seed)
		if err != nil {
			return [32]byte{}, err
		}
		if h.vm != nil {
			h.vm.close()
			h.vm = nil
		}
		vm, err := newRandomXVM(cache, dataset)
		if err != nil {
			return [32]byte{}, fmt.Errorf("create randomx vm: %w", err)
		}
		h.vm = vm
		h.epoch = epoch
		h.seed = append(h.seed[:0], seed...)
	}

	return h.vm.calcHash(header), nil
}

func (h *randomXHasher) Close() {
	if h.vm != nil {
		h.vm.close()
		h.vm = nil
	}
}

// RandomXNative reports whether the native librandomx implementation is
// compiled in. Unless the package is built with cgo and the randomx build
// tag, a deterministic stand-in is used, which is suitable for development
// and protocol testing only.
func RandomXNative() bool {
	return randomxAvailable()
}
