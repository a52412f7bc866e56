package job

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/nmdata575/cryptominer-pro/pkg/util"
)

func testJob() *Job {
	j := &Job{
		ID:        "t1",
		Coinbase1: []byte{0x01, 0x02},
		Coinbase2: []byte{0x03, 0x04},
		Version:   1,
		NBits:     0x1d00ffff,
		NTime:     0x66000000,
	}
	j.PrevHash[0] = 0xaa
	return j
}

func TestAssembleCoinbase(t *testing.T) {
	got := AssembleCoinbase([]byte{1}, []byte{2}, []byte{3}, []byte{4})
	if !bytes.Equal(got, []byte{1, 2, 3, 4}) {
		t.Errorf("AssembleCoinbase = %v", got)
	}
}

func TestMerkleRoot_EmptyBranch(t *testing.T) {
	cb := util.DoubleSHA256([]byte("coinbase"))
	if MerkleRoot(cb, nil) != cb {
		t.Error("empty branch must return the coinbase hash")
	}
}

func TestMerkleRoot_Fold(t *testing.T) {
	cb := util.DoubleSHA256([]byte("coinbase"))
	var sibling [32]byte
	for i := range sibling {
		sibling[i] = byte(i)
	}

	// One level: sha256d(cb ∥ sibling).
	want := util.DoubleSHA256(append(append([]byte{}, cb[:]...), sibling[:]...))
	got := MerkleRoot(cb, [][32]byte{sibling})
	if got != want {
		t.Errorf("MerkleRoot = %x, want %x", got, want)
	}
}

func TestBuildHeader_Layout(t *testing.T) {
	j := testJob()
	header := j.BuildHeader([]byte{0xe1}, []byte{0xe2}, j.NTime, 0xdeadbeef)

	if len(header) != HeaderLen {
		t.Fatalf("header length = %d", len(header))
	}
	if binary.LittleEndian.Uint32(header[0:4]) != j.Version {
		t.Error("version field")
	}
	if !bytes.Equal(header[4:36], j.PrevHash[:]) {
		t.Error("prev hash field")
	}
	if binary.LittleEndian.Uint32(header[68:72]) != j.NTime {
		t.Error("ntime field")
	}
	if binary.LittleEndian.Uint32(header[72:76]) != j.NBits {
		t.Error("nbits field")
	}
	if binary.LittleEndian.Uint32(header[76:80]) != 0xdeadbeef {
		t.Error("nonce field")
	}

	// The merkle root must equal folding the (empty) branch over the
	// coinbase hash.
	cb := AssembleCoinbase(j.Coinbase1, []byte{0xe1}, []byte{0xe2}, j.Coinbase2)
	root := util.DoubleSHA256(cb)
	if !bytes.Equal(header[36:68], root[:]) {
		t.Error("merkle root field")
	}
}

func TestBuildHeader_Idempotent(t *testing.T) {
	j := testJob()
	a := j.BuildHeader([]byte{1, 2, 3, 4}, []byte{5, 6, 7, 8}, j.NTime, 42)
	b := j.BuildHeader([]byte{1, 2, 3, 4}, []byte{5, 6, 7, 8}, j.NTime, 42)
	if !bytes.Equal(a, b) {
		t.Error("same inputs produced different headers")
	}
}

func TestSetNonce(t *testing.T) {
	j := testJob()
	header := j.BuildHeader(nil, nil, j.NTime, 0)
	SetNonce(header, 7)
	if binary.LittleEndian.Uint32(header[76:80]) != 7 {
		t.Error("SetNonce did not write the nonce")
	}
}
