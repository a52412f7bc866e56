package coin

import (
	"fmt"
	"math/big"

	"github.com/nmdata575/cryptominer-pro/internal/algo"
)

// Definition describes one supported coin: its proof-of-work algorithm and
// the difficulty-1 target used to translate pool difficulty into a share
// target.
type Definition struct {
	Name               string
	Symbol             string
	CoinID             string
	Algo               algo.Algorithm
	Diff1              *big.Int
	DefaultPoolPort    int
	TargetBlockTimeSec int
}

var (
	// scryptDiff1 is the conventional scrypt pool difficulty-1 target
	// (0xffff << 224), the constant Litecoin pool software has used since
	// cgminer.
	scryptDiff1 = mustTarget("0000ffff00000000000000000000000000000000000000000000000000000000")

	// sha256dDiff1 is Bitcoin's difficulty-1 target (0xffff << 208).
	sha256dDiff1 = mustTarget("00000000ffff0000000000000000000000000000000000000000000000000000")

	// randomxDiff1 is 2^256 - 1. Monero-family pools derive targets as
	// base/difficulty with the full 256-bit range as base; expressing it
	// as a diff1 target keeps the translation in one code path.
	randomxDiff1 = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))
)

func mustTarget(hexStr string) *big.Int {
	t, ok := new(big.Int).SetString(hexStr, 16)
	if !ok {
		panic("invalid target constant: " + hexStr)
	}
	return t
}

// Coins maps coin ID strings to their full definitions.
var Coins = map[string]*Definition{
	"ltc": {
		Name:               "Litecoin",
		Symbol:             "LTC",
		CoinID:             "ltc",
		Algo:               algo.Scrypt,
		Diff1:              scryptDiff1,
		DefaultPoolPort:    3333,
		TargetBlockTimeSec: 150,
	},
	"doge": {
		Name:               "Dogecoin",
		Symbol:             "DOGE",
		CoinID:             "doge",
		Algo:               algo.Scrypt,
		Diff1:              scryptDiff1,
		DefaultPoolPort:    3333,
		TargetBlockTimeSec: 60,
	},
	"vtc": {
		Name:               "Vertcoin",
		Symbol:             "VTC",
		CoinID:             "vtc",
		Algo:               algo.Scrypt,
		Diff1:              scryptDiff1,
		DefaultPoolPort:    3333,
		TargetBlockTimeSec: 150,
	},
	"btc": {
		Name:               "Bitcoin",
		Symbol:             "BTC",
		CoinID:             "btc",
		Algo:               algo.SHA256d,
		Diff1:              sha256dDiff1,
		DefaultPoolPort:    3333,
		TargetBlockTimeSec: 600,
	},
	"xmr": {
		Name:               "Monero",
		Symbol:             "XMR",
		CoinID:             "xmr",
		Algo:               algo.RandomX,
		Diff1:              randomxDiff1,
		DefaultPoolPort:    4444,
		TargetBlockTimeSec: 120,
	},
	"wow": {
		Name:               "Wownero",
		Symbol:             "WOW",
		CoinID:             "wow",
		Algo:               algo.RandomX,
		Diff1:              randomxDiff1,
		DefaultPoolPort:    4444,
		TargetBlockTimeSec: 300,
	},
}

// Get returns the Definition for a coin ID.
func Get(coinID string) (*Definition, error) {
	if c, ok := Coins[coinID]; ok {
		return c, nil
	}
	return nil, fmt.Errorf("unsupported coin %q", coinID)
}

// List returns all supported coin IDs in a stable display order.
func List() []string {
	return []string{"ltc", "doge", "vtc", "btc", "xmr", "wow"}
}
