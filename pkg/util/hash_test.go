package util

import (
	"bytes"
	"encoding/hex"
	"math"
	"math/big"
	"testing"
)

func TestDoubleSHA256(t *testing.T) {
	// Well-known sha256d("hello") value.
	got := DoubleSHA256([]byte("hello"))
	want := "9595c9df90075148eb06860365df33584b75bff782a510c6cd4883a419833d50"
	if hex.EncodeToString(got[:]) != want {
		t.Errorf("DoubleSHA256 = %x, want %s", got, want)
	}
}

func TestReverseBytes(t *testing.T) {
	in := []byte{1, 2, 3, 4}
	out := ReverseBytes(in)
	if !bytes.Equal(out, []byte{4, 3, 2, 1}) {
		t.Errorf("ReverseBytes = %v", out)
	}
	// Input must not be mutated
	if !bytes.Equal(in, []byte{1, 2, 3, 4}) {
		t.Error("ReverseBytes mutated its input")
	}
}

func TestSwapWords4(t *testing.T) {
	b := []byte{1, 2, 3, 4, 5, 6, 7, 8}
	SwapWords4(b)
	if !bytes.Equal(b, []byte{4, 3, 2, 1, 8, 7, 6, 5}) {
		t.Errorf("SwapWords4 = %v", b)
	}

	// Applying twice is the identity
	SwapWords4(b)
	if !bytes.Equal(b, []byte{1, 2, 3, 4, 5, 6, 7, 8}) {
		t.Errorf("SwapWords4 twice = %v, want identity", b)
	}
}

func TestCompactToTarget_Diff1(t *testing.T) {
	// 0x1d00ffff is Bitcoin's difficulty-1 compact target.
	target := CompactToTarget(0x1d00ffff)
	want, _ := new(big.Int).SetString(
		"00000000ffff0000000000000000000000000000000000000000000000000000", 16)
	if target.Cmp(want) != 0 {
		t.Errorf("CompactToTarget(0x1d00ffff) = %064x, want %064x", target, want)
	}
}

func TestTargetCompactRoundTrip(t *testing.T) {
	for _, compact := range []uint32{0x1d00ffff, 0x207fffff, 0x1b0404cb} {
		got := TargetToCompact(CompactToTarget(compact))
		if got != compact {
			t.Errorf("round trip of %08x = %08x", compact, got)
		}
	}
}

func TestDifficultyTargetRoundTrip(t *testing.T) {
	diff1 := CompactToTarget(0x1d00ffff)
	for _, d := range []float64{1.0, 2.0, 0.5, 16.25, 65536, 1e6} {
		got := TargetToDifficulty(DifficultyToTarget(d, diff1), diff1)
		// Within 1 ULP of the original difficulty.
		if got != d && math.Nextafter(got, d) != d {
			t.Errorf("difficulty round trip of %v = %v", d, got)
		}
	}
}

func TestDifficultyToTarget_Zero(t *testing.T) {
	diff1 := CompactToTarget(0x1d00ffff)
	if DifficultyToTarget(0, diff1).Cmp(diff1) != 0 {
		t.Error("difficulty 0 should return diff1 unchanged")
	}
}

func TestHashMeetsTarget(t *testing.T) {
	// A hash of all zeros meets any positive target.
	var zero [32]byte
	if !HashMeetsTarget(zero, big.NewInt(1)) {
		t.Error("zero hash should meet target 1")
	}

	// A hash of all 0xff meets only the maximum target.
	var max [32]byte
	for i := range max {
		max[i] = 0xff
	}
	maxTarget := new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))
	if !HashMeetsTarget(max, maxTarget) {
		t.Error("max hash should meet max target")
	}
	if HashMeetsTarget(max, big.NewInt(1)) {
		t.Error("max hash should not meet target 1")
	}
}

func TestHashMeetsTarget_LittleEndian(t *testing.T) {
	// Only the last byte set: interpreted little-endian this is a huge
	// integer, so it must fail a small target even though the leading
	// bytes are zero.
	var h [32]byte
	h[31] = 0x01
	small, _ := new(big.Int).SetString("ffffffffffffffff", 16)
	if HashMeetsTarget(h, small) {
		t.Error("high little-endian byte should fail a small target")
	}

	// Only the first byte set: little-endian value is 1.
	var lo [32]byte
	lo[0] = 0x01
	if !HashMeetsTarget(lo, big.NewInt(1)) {
		t.Error("hash with value 1 should meet target 1")
	}
}

func TestHexToHashRoundTrip(t *testing.T) {
	s := "00000000000000003fa0d845513ea5014a7859d411f5f4a91eaab24eb47a18f3"
	h, err := HexToHash(s)
	if err != nil {
		t.Fatal(err)
	}
	if HashToHex(h) != s {
		t.Errorf("round trip = %s, want %s", HashToHex(h), s)
	}
}
