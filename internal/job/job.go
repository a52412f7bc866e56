package job

import (
	"encoding/hex"
	"fmt"
	"math/big"
	"time"

	"github.com/nmdata575/cryptominer-pro/pkg/util"
)

// Job is one unit of work from a mining.notify notification. Immutable once
// constructed; workers share it through an atomic pointer.
type Job struct {
	// ID is the pool's job identifier, echoed verbatim on submit.
	ID string

	// PrevHash is the previous block hash in internal header byte order.
	// The stratum wire form is word-swapped; the swap is applied once at
	// decode time, never during hashing.
	PrevHash [32]byte

	Coinbase1 []byte
	Coinbase2 []byte

	// MerkleBranch holds the sibling hashes from the coinbase up to the
	// root, bottom-up.
	MerkleBranch [][32]byte

	Version uint32
	NBits   uint32
	NTime   uint32

	// CleanJobs forces immediate abandonment of in-flight work.
	CleanJobs bool

	// ShareTarget is the pool share target in force when this job was
	// received. Slices issued later under a new difficulty carry the new
	// target; this one never changes.
	ShareTarget *big.Int

	// BlockTarget is the network target decoded from NBits.
	BlockTarget *big.Int

	ReceivedAt time.Time
	Seq        uint64
}

// FromNotifyParams decodes the positional mining.notify params:
// [job_id, prev_hash, coinbase1, coinbase2, merkle_branch, version, nbits,
// ntime, clean_jobs]. All hex fields are decoded here, at the boundary.
func FromNotifyParams(params []interface{}) (*Job, error) {
	if len(params) != 9 {
		return nil, fmt.Errorf("mining.notify expects 9 params, got %d", len(params))
	}

	j := &Job{ReceivedAt: time.Now()}

	var ok bool
	if j.ID, ok = params[0].(string); !ok {
		return nil, fmt.Errorf("job_id is not a string")
	}

	prevHex, ok := params[1].(string)
	if !ok {
		return nil, fmt.Errorf("prev_hash is not a string")
	}
	prev, err := hex.DecodeString(prevHex)
	if err != nil {
		return nil, fmt.Errorf("decode prev_hash: %w", err)
	}
	if len(prev) != 32 {
		return nil, fmt.Errorf("prev_hash is %d bytes, want 32", len(prev))
	}
	// Stratum word order -> internal header order.
	util.SwapWords4(prev)
	copy(j.PrevHash[:], prev)

	if j.Coinbase1, err = decodeHexParam(params[2], "coinbase1"); err != nil {
		return nil, err
	}
	if j.Coinbase2, err = decodeHexParam(params[3], "coinbase2"); err != nil {
		return nil, err
	}

	branches, ok := params[4].([]interface{})
	if !ok {
		return nil, fmt.Errorf("merkle_branch is not an array")
	}
	j.MerkleBranch = make([][32]byte, 0, len(branches))
	for i, b := range branches {
		bHex, ok := b.(string)
		if !ok {
			return nil, fmt.Errorf("merkle branch %d is not a string", i)
		}
		raw, err := hex.DecodeString(bHex)
		if err != nil {
			return nil, fmt.Errorf("decode merkle branch %d: %w", i, err)
		}
		if len(raw) != 32 {
			return nil, fmt.Errorf("merkle branch %d is %d bytes, want 32", i, len(raw))
		}
		var h [32]byte
		copy(h[:], raw)
		j.MerkleBranch = append(j.MerkleBranch, h)
	}

	if j.Version, err = decodeUint32Param(params[5], "version"); err != nil {
		return nil, err
	}
	if j.NBits, err = decodeUint32Param(params[6], "nbits"); err != nil {
		return nil, err
	}
	if j.NTime, err = decodeUint32Param(params[7], "ntime"); err != nil {
		return nil, err
	}

	if j.CleanJobs, ok = params[8].(bool); !ok {
		return nil, fmt.Errorf("clean_jobs is not a bool")
	}

	j.BlockTarget = util.CompactToTarget(j.NBits)

	return j, nil
}

func decodeHexParam(p interface{}, name string) ([]byte, error) {
	s, ok := p.(string)
	if !ok {
		return nil, fmt.Errorf("%s is not a string", name)
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", name, err)
	}
	return b, nil
}

func decodeUint32Param(p interface{}, name string) (uint32, error) {
	s, ok := p.(string)
	if !ok {
		return 0, fmt.Errorf("%s is not a string", name)
	}
	v, err := util.HexToUint32BE(s)
	if err != nil {
		return 0, fmt.Errorf("decode %s: %w", name, err)
	}
	return v, nil
}

// Seed returns the RandomX cache seed for this job: the previous block hash
// in internal byte order.
func (j *Job) Seed() []byte {
	return j.PrevHash[:]
}

// Summary is a compact description for logs and the status snapshot.
func (j *Job) Summary() string {
	return fmt.Sprintf("%s@%08x", j.ID, j.NTime)
}
