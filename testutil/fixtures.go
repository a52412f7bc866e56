package testutil

import (
	"math/big"
	"strings"
)

// EasyTarget returns a target every hash meets.
func EasyTarget() *big.Int {
	return new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))
}

// NotifyParams builds a minimal, valid mining.notify params array for the
// given job id.
func NotifyParams(jobID string, clean bool) []interface{} {
	return []interface{}{
		jobID,
		strings.Repeat("00", 32),
		"01020304",
		"0a0b0c0d",
		[]interface{}{},
		"00000001",
		"1d00ffff",
		"66000000",
		clean,
	}
}
