package algo

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/nmdata575/cryptominer-pro/pkg/util"
)

// Algorithm identifies a proof-of-work hashing algorithm.
type Algorithm string

const (
	SHA256d Algorithm = "sha256d"
	Scrypt  Algorithm = "scrypt"
	RandomX Algorithm = "randomx"
)

func (a Algorithm) String() string {
	return string(a)
}

// Parse returns the Algorithm for a string, or an error for unknown names.
func Parse(s string) (Algorithm, error) {
	switch Algorithm(s) {
	case SHA256d, Scrypt, RandomX:
		return Algorithm(s), nil
	}
	return "", fmt.Errorf("unknown algorithm %q", s)
}

// Hasher evaluates the proof-of-work for a single header. Hashers are not
// safe for concurrent use; each worker owns one.
type Hasher interface {
	// Hash evaluates the algorithm over header under the given seed.
	// Scrypt and sha256d ignore the seed; RandomX reinitializes its
	// cache/dataset when the seed changes.
	Hash(seed, header []byte) ([32]byte, error)

	// Close releases any per-hasher resources.
	Close()
}

// Factory creates per-worker hashers for one algorithm. RandomX hashers
// created by the same factory share one cache/dataset.
type Factory interface {
	Algorithm() Algorithm
	New() (Hasher, error)
	Close()
}

// Options tunes factory construction.
type Options struct {
	// RandomXFullMem selects full-dataset mode (~2 GiB) over light mode.
	RandomXFullMem bool
}

// NewFactory returns a hasher factory for the given algorithm.
func NewFactory(a Algorithm, opts Options, logger *zap.Logger) (Factory, error) {
	switch a {
	case SHA256d:
		return statelessFactory{algo: SHA256d}, nil
	case Scrypt:
		return statelessFactory{algo: Scrypt}, nil
	case RandomX:
		return newRandomXFactory(opts.RandomXFullMem, logger), nil
	}
	return nil, fmt.Errorf("unknown algorithm %q", a)
}

// statelessFactory serves algorithms whose hashers carry no state.
type statelessFactory struct {
	algo Algorithm
}

func (f statelessFactory) Algorithm() Algorithm { return f.algo }

func (f statelessFactory) New() (Hasher, error) {
	switch f.algo {
	case SHA256d:
		return sha256dHasher{}, nil
	default:
		return scryptHasher{}, nil
	}
}

func (f statelessFactory) Close() {}

type sha256dHasher struct{}

func (sha256dHasher) Hash(_, header []byte) ([32]byte, error) {
	return util.DoubleSHA256(header), nil
}

func (sha256dHasher) Close() {}

type scryptHasher struct{}

func (scryptHasher) Hash(_, header []byte) ([32]byte, error) {
	return ScryptHash(header), nil
}

func (scryptHasher) Close() {}
