package algo

import (
	"bytes"
	"encoding/hex"
	"testing"

	xscrypt "golang.org/x/crypto/scrypt"
)

// RFC 7914 section 12 test vectors.
func TestScryptKey_RFC7914(t *testing.T) {
	tests := []struct {
		password string
		salt     string
		n, r, p  int
		want     string
	}{
		{
			password: "", salt: "", n: 16, r: 1, p: 1,
			want: "77d6576238657b203b19ca42c18a0497f16b4844e3074ae8dfdffa3fede21442" +
				"fcd0069ded0948f8326a753a0fc81f17e8d3e0fb2e0d3628cf35e20c38d18906",
		},
		{
			password: "password", salt: "NaCl", n: 1024, r: 8, p: 16,
			want: "fdbabe1c9d3472007856e7190d01e9fe7c6ad7cbc8237830e77376634b373162" +
				"2eaf30d92e22a3886ff109279d9830dac727afb94a83ee6d8360cbdfa2cc0640",
		},
		{
			password: "pleaseletmein", salt: "SodiumChloride", n: 16384, r: 8, p: 1,
			want: "7023bdcb3afd7348461c06cd81fd38ebfda8fbba904f8e3ea9b543f6545da1f2" +
				"d5432955613f0fcf62d49705242a9af9e61e85dc0d651e40dfcf017b45575887",
		},
	}

	for _, tt := range tests {
		got, err := ScryptKey([]byte(tt.password), []byte(tt.salt), tt.n, tt.r, tt.p, 64)
		if err != nil {
			t.Fatalf("ScryptKey(%q, %q): %v", tt.password, tt.salt, err)
		}
		if hex.EncodeToString(got) != tt.want {
			t.Errorf("ScryptKey(%q, %q, %d, %d, %d) =\n%x\nwant\n%s",
				tt.password, tt.salt, tt.n, tt.r, tt.p, got, tt.want)
		}
	}
}

func TestScryptKey_InvalidParams(t *testing.T) {
	if _, err := ScryptKey(nil, nil, 15, 1, 1, 32); err == nil {
		t.Error("N=15 should be rejected")
	}
	if _, err := ScryptKey(nil, nil, 1, 1, 1, 32); err == nil {
		t.Error("N=1 should be rejected")
	}
	if _, err := ScryptKey(nil, nil, 16, 0, 1, 32); err == nil {
		t.Error("r=0 should be rejected")
	}
}

// Cross-check the in-repo implementation against golang.org/x/crypto/scrypt
// over header-shaped inputs at the Litecoin parameters.
func TestScryptHash_MatchesReference(t *testing.T) {
	headers := [][]byte{
		make([]byte, 80),
		bytes.Repeat([]byte{0xab}, 80),
	}

	// A header with structure: counted bytes.
	h := make([]byte, 80)
	for i := range h {
		h[i] = byte(i)
	}
	headers = append(headers, h)

	for _, header := range headers {
		want, err := xscrypt.Key(header, header, 1024, 1, 1, 32)
		if err != nil {
			t.Fatal(err)
		}
		got := ScryptHash(header)
		if !bytes.Equal(got[:], want) {
			t.Errorf("ScryptHash(%x...) =\n%x\nwant\n%x", header[:8], got, want)
		}
	}
}

func TestScryptHash_Deterministic(t *testing.T) {
	header := bytes.Repeat([]byte{0x42}, 80)
	a := ScryptHash(header)
	b := ScryptHash(header)
	if a != b {
		t.Error("same header produced different hashes")
	}

	header[79]++
	c := ScryptHash(header)
	if a == c {
		t.Error("different header produced same hash")
	}
}

func BenchmarkScryptHash(b *testing.B) {
	header := bytes.Repeat([]byte{0x42}, 80)
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		ScryptHash(header)
	}
}
