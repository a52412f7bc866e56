package util

import (
	"bytes"
	"testing"
)

func TestHexToUint32BE(t *testing.T) {
	tests := []struct {
		in      string
		want    uint32
		wantErr bool
	}{
		{"1d00ffff", 0x1d00ffff, false},
		{"00000001", 1, false},
		{"66000000", 0x66000000, false},
		{"zzzz", 0, true},
		{"001d00ffff", 0, true}, // wrong length
	}

	for _, tt := range tests {
		got, err := HexToUint32BE(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("HexToUint32BE(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if !tt.wantErr && got != tt.want {
			t.Errorf("HexToUint32BE(%q) = %08x, want %08x", tt.in, got, tt.want)
		}
	}
}

func TestUint32ToHexBE(t *testing.T) {
	if got := Uint32ToHexBE(0x1d00ffff); got != "1d00ffff" {
		t.Errorf("Uint32ToHexBE = %s", got)
	}
	if got, err := HexToUint32BE(Uint32ToHexBE(0xdeadbeef)); err != nil || got != 0xdeadbeef {
		t.Errorf("round trip = %08x, %v", got, err)
	}
}

func TestHexBEToLE(t *testing.T) {
	got, err := HexBEToLE("01020304", 4)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, []byte{4, 3, 2, 1}) {
		t.Errorf("HexBEToLE = %v", got)
	}

	if _, err := HexBEToLE("0102", 4); err == nil {
		t.Error("expected length error")
	}
}
