//go:build cgo && randomx

package algo

/*
#cgo LDFLAGS: -lrandomx -lstdc++ -lm
#include <stdlib.h>
#include <randomx.h>
*/
import "C"
import (
	"errors"
	"sync"
	"unsafe"
)

func randomxAvailable() bool { return true }

type randomxCache struct {
	ptr *C.randomx_cache
}

func newRandomXCache(seed []byte) (*randomxCache, error) {
	if len(seed) == 0 {
		return nil, errors.New("randomx seed must not be empty")
	}

	flags := C.randomx_get_flags()
	ptr := C.randomx_alloc_cache(flags)
	if ptr == nil {
		return nil, errors.New("randomx_alloc_cache failed")
	}

	seedPtr := C.CBytes(seed)
	defer C.free(seedPtr)
	C.randomx_init_cache(ptr, seedPtr, C.size_t(len(seed)))

	return &randomxCache{ptr: ptr}, nil
}

func (c *randomxCache) close() {
	if c.ptr != nil {
		C.randomx_release_cache(c.ptr)
		c.ptr = nil
	}
}

type randomxDataset struct {
	ptr *C.randomx_dataset
}

// newRandomXDataset allocates and initializes the full dataset, splitting
// item initialization across the given number of OS threads.
func newRandomXDataset(cache *randomxCache, threads int) (*randomxDataset, error) {
	if cache == nil || cache.ptr == nil {
		return nil, errors.New("randomx dataset requires an initialized cache")
	}
	if threads < 1 {
		threads = 1
	}

	flags := C.randomx_get_flags() | C.RANDOMX_FLAG_FULL_MEM
	ptr := C.randomx_alloc_dataset(flags)
	if ptr == nil {
		return nil, errors.New("randomx_alloc_dataset failed")
	}

	itemCount := uint64(C.randomx_dataset_item_count())
	perThread := itemCount / uint64(threads)

	var wg sync.WaitGroup
	for i := 0; i < threads; i++ {
		start := uint64(i) * perThread
		count := perThread
		if i == threads-1 {
			count = itemCount - start
		}
		wg.Add(1)
		go func(start, count uint64) {
			defer wg.Done()
			C.randomx_init_dataset(ptr, cache.ptr, C.ulong(start), C.ulong(count))
		}(start, count)
	}
	wg.Wait()

	return &randomxDataset{ptr: ptr}, nil
}

func (d *randomxDataset) close() {
	if d.ptr != nil {
		C.randomx_release_dataset(d.ptr)
		d.ptr = nil
	}
}

type randomxVM struct {
	ptr *C.randomx_vm
}

// newRandomXVM creates a VM bound to the cache, and to the dataset when one
// is present (full-memory mode).
func newRandomXVM(cache *randomxCache, dataset *randomxDataset) (*randomxVM, error) {
	if cache == nil || cache.ptr == nil {
		return nil, errors.New("randomx vm requires an initialized cache")
	}

	flags := C.randomx_get_flags()
	var datasetPtr *C.randomx_dataset
	if dataset != nil && dataset.ptr != nil {
		flags |= C.RANDOMX_FLAG_FULL_MEM
		datasetPtr = dataset.ptr
	}

	ptr := C.randomx_create_vm(flags, cache.ptr, datasetPtr)
	if ptr == nil {
		return nil, errors.New("randomx_create_vm failed")
	}

	return &randomxVM{ptr: ptr}, nil
}

func (vm *randomxVM) calcHash(input []byte) [32]byte {
	var out [32]byte
	var inPtr unsafe.Pointer
	if len(input) > 0 {
		inPtr = unsafe.Pointer(&input[0])
	}
	C.randomx_calculate_hash(vm.ptr, inPtr, C.size_t(len(input)), unsafe.Pointer(&out[0]))
	return out
}

func (vm *randomxVM) close() {
	if vm.ptr != nil {
		C.randomx_destroy_vm(vm.ptr)
		vm.ptr = nil
	}
}
