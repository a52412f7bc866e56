package job

import (
	"strings"
	"testing"

	"github.com/nmdata575/cryptominer-pro/pkg/util"
)

func sampleNotifyParams() []interface{} {
	return []interface{}{
		"abc",
		strings.Repeat("00", 32),
		"01020304",
		"0a0b0c0d",
		[]interface{}{},
		"00000001",
		"1d00ffff",
		"66000000",
		true,
	}
}

func TestFromNotifyParams(t *testing.T) {
	j, err := FromNotifyParams(sampleNotifyParams())
	if err != nil {
		t.Fatal(err)
	}

	if j.ID != "abc" {
		t.Errorf("ID = %q", j.ID)
	}
	if j.Version != 1 {
		t.Errorf("Version = %d", j.Version)
	}
	if j.NBits != 0x1d00ffff {
		t.Errorf("NBits = %08x", j.NBits)
	}
	if j.NTime != 0x66000000 {
		t.Errorf("NTime = %08x", j.NTime)
	}
	if !j.CleanJobs {
		t.Error("CleanJobs = false")
	}
	if len(j.MerkleBranch) != 0 {
		t.Errorf("MerkleBranch len = %d", len(j.MerkleBranch))
	}
	if j.BlockTarget.Cmp(util.CompactToTarget(0x1d00ffff)) != 0 {
		t.Error("BlockTarget not derived from nbits")
	}
}

func TestFromNotifyParams_PrevHashWordSwap(t *testing.T) {
	params := sampleNotifyParams()
	// Each 4-byte word arrives byte-swapped on the wire.
	params[1] = "04030201" + strings.Repeat("00", 28)

	j, err := FromNotifyParams(params)
	if err != nil {
		t.Fatal(err)
	}
	want := [32]byte{0x01, 0x02, 0x03, 0x04}
	if j.PrevHash != want {
		t.Errorf("PrevHash[0:4] = %x, want %x", j.PrevHash[:4], want[:4])
	}
}

func TestFromNotifyParams_Errors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(p []interface{}) []interface{}
	}{
		{"short", func(p []interface{}) []interface{} { return p[:8] }},
		{"bad job id", func(p []interface{}) []interface{} { p[0] = 42.0; return p }},
		{"bad prevhash hex", func(p []interface{}) []interface{} { p[1] = "zz"; return p }},
		{"short prevhash", func(p []interface{}) []interface{} { p[1] = "0000"; return p }},
		{"bad branch", func(p []interface{}) []interface{} { p[4] = []interface{}{"xyz"}; return p }},
		{"short branch", func(p []interface{}) []interface{} { p[4] = []interface{}{"00"}; return p }},
		{"bad version", func(p []interface{}) []interface{} { p[5] = "123"; return p }},
		{"bad clean", func(p []interface{}) []interface{} { p[8] = "true"; return p }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := FromNotifyParams(tt.mutate(sampleNotifyParams())); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestSeed(t *testing.T) {
	j, err := FromNotifyParams(sampleNotifyParams())
	if err != nil {
		t.Fatal(err)
	}
	if len(j.Seed()) != 32 {
		t.Errorf("seed length = %d", len(j.Seed()))
	}
}
