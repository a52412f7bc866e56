//go:build !cgo || !randomx

package algo

import (
	"crypto/sha256"
	"errors"
)

// Without the randomx build tag (and cgo) there is no librandomx. These
// types keep the package compiling and provide a deterministic, seed-keyed
// stand-in hash so the protocol and worker paths can be exercised. The
// stand-in is NOT RandomX; shares produced with it are only valid against a
// pool that uses the same stand-in (i.e. the in-process test pool).
// Build with `-tags randomx` and librandomx installed for real mining.

func randomxAvailable() bool { return false }

type randomxCache struct {
	seed []byte
}

func newRandomXCache(seed []byte) (*randomxCache, error) {
	if len(seed) == 0 {
		return nil, errors.New("randomx seed must not be empty")
	}
	return &randomxCache{seed: append([]byte(nil), seed...)}, nil
}

func (c *randomxCache) close() {}

type randomxDataset struct{}

func newRandomXDataset(cache *randomxCache, threads int) (*randomxDataset, error) {
	if cache == nil {
		return nil, errors.New("randomx dataset requires an initialized cache")
	}
	return &randomxDataset{}, nil
}

func (d *randomxDataset) close() {}

type randomxVM struct {
	seed []byte
}

func newRandomXVM(cache *randomxCache, _ *randomxDataset) (*randomxVM, error) {
	if cache == nil {
		return nil, errors.New("randomx vm requires an initialized cache")
	}
	return &randomxVM{seed: cache.seed}, nil
}

func (vm *randomxVM) calcHash(input []byte) [32]byte {
	h := sha256.New()
	h.Write(vm.seed)
	h.Write(input)
	first := h.Sum(nil)
	return sha256.Sum256(first)
}

func (vm *randomxVM) close() {}
