package algo

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"math/bits"

	"golang.org/x/crypto/pbkdf2"
)

// Scrypt parameters used by Litecoin-family coins: the 80-byte block header
// is both password and salt, yielding a 32-byte output.
const (
	scryptN = 1024
	scryptR = 1
	scryptP = 1
)

// ScryptHash computes Scrypt(1024,1,1) over a block header, header-as-salt.
func ScryptHash(header []byte) [32]byte {
	out, err := ScryptKey(header, header, scryptN, scryptR, scryptP, 32)
	if err != nil {
		// Parameters are compile-time constants and valid.
		panic(err)
	}
	var h [32]byte
	copy(h[:], out)
	return h
}

// ScryptKey derives a key per RFC 7914. n must be a power of two greater
// than 1; r and p must be positive.
func ScryptKey(password, salt []byte, n, r, p, keyLen int) ([]byte, error) {
	if n <= 1 || n&(n-1) != 0 {
		return nil, fmt.Errorf("scrypt: N must be a power of two greater than 1, got %d", n)
	}
	if r <= 0 || p <= 0 {
		return nil, fmt.Errorf("scrypt: r and p must be positive, got r=%d p=%d", r, p)
	}

	b := pbkdf2.Key(password, salt, 1, p*128*r, sha256.New)

	v := make([]uint32, 32*n*r)
	xy := make([]uint32, 64*r)
	for i := 0; i < p; i++ {
		roMix(b[i*128*r:(i+1)*128*r], r, n, v, xy)
	}

	return pbkdf2.Key(password, b, 1, keyLen, sha256.New), nil
}

// roMix performs scryptROMix in place on a 128*r-byte block. v and xy are
// scratch space of 32*n*r and 64*r words.
func roMix(b []byte, r, n int, v, xy []uint32) {
	x := xy[:32*r]
	y := xy[32*r : 64*r]

	for i := range x {
		x[i] = binary.LittleEndian.Uint32(b[4*i:])
	}

	for i := 0; i < n; i++ {
		copy(v[i*32*r:], x)
		blockMix(x, y, r)
		x, y = y, x
	}

	for i := 0; i < n; i++ {
		// Integerify: first word of the last 64-byte sub-block, mod n.
		j := int(x[32*r-16] & uint32(n-1))
		xorWords(x, v[j*32*r:(j+1)*32*r])
		blockMix(x, y, r)
		x, y = y, x
	}

	for i, w := range x {
		binary.LittleEndian.PutUint32(b[4*i:], w)
	}
}

// blockMix performs scryptBlockMix: in is 2r 64-byte sub-blocks, out receives
// the salsa-mixed sub-blocks with even blocks in the front half and odd
// blocks in the back half.
func blockMix(in, out []uint32, r int) {
	var x [16]uint32
	copy(x[:], in[(2*r-1)*16:])

	for i := 0; i < 2*r; i++ {
		xorWords(x[:], in[i*16:(i+1)*16])
		salsa208(&x)
		if i%2 == 0 {
			copy(out[(i/2)*16:], x[:])
		} else {
			copy(out[(r+i/2)*16:], x[:])
		}
	}
}

func xorWords(dst, src []uint32) {
	for i := range dst {
		dst[i] ^= src[i]
	}
}

// salsa208 applies the Salsa20/8 core to a 64-byte block in place.
func salsa208(b *[16]uint32) {
	x := *b

	for i := 0; i < 8; i += 2 {
		// Column rounds
		x[4] ^= bits.RotateLeft32(x[0]+x[12], 7)
		x[8] ^= bits.RotateLeft32(x[4]+x[0], 9)
		x[12] ^= bits.RotateLeft32(x[8]+x[4], 13)
		x[0] ^= bits.RotateLeft32(x[12]+x[8], 18)

		x[9] ^= bits.RotateLeft32(x[5]+x[1], 7)
		x[13] ^= bits.RotateLeft32(x[9]+x[5], 9)
		x[1] ^= bits.RotateLeft32(x[13]+x[9], 13)
		x[5] ^= bits.RotateLeft32(x[1]+x[13], 18)

		x[14] ^= bits.RotateLeft32(x[10]+x[6], 7)
		x[2] ^= bits.RotateLeft32(x[14]+x[10], 9)
		x[6] ^= bits.RotateLeft32(x[2]+x[14], 13)
		x[10] ^= bits.RotateLeft32(x[6]+x[2], 18)

		x[3] ^= bits.RotateLeft32(x[15]+x[11], 7)
		x[7] ^= bits.RotateLeft32(x[3]+x[15], 9)
		x[11] ^= bits.RotateLeft32(x[7]+x[3], 13)
		x[15] ^= bits.RotateLeft32(x[11]+x[7], 18)

		// Row rounds
		x[1] ^= bits.RotateLeft32(x[0]+x[3], 7)
		x[2] ^= bits.RotateLeft32(x[1]+x[0], 9)
		x[3] ^= bits.RotateLeft32(x[2]+x[1], 13)
		x[0] ^= bits.RotateLeft32(x[3]+x[2], 18)

		x[6] ^= bits.RotateLeft32(x[5]+x[4], 7)
		x[7] ^= bits.RotateLeft32(x[6]+x[5], 9)
		x[4] ^= bits.RotateLeft32(x[7]+x[6], 13)
		x[5] ^= bits.RotateLeft32(x[4]+x[7], 18)

		x[11] ^= bits.RotateLeft32(x[10]+x[9], 7)
		x[8] ^= bits.RotateLeft32(x[11]+x[10], 9)
		x[9] ^= bits.RotateLeft32(x[8]+x[11], 13)
		x[10] ^= bits.RotateLeft32(x[9]+x[8], 18)

		x[12] ^= bits.RotateLeft32(x[15]+x[14], 7)
		x[13] ^= bits.RotateLeft32(x[12]+x[15], 9)
		x[14] ^= bits.RotateLeft32(x[13]+x[12], 13)
		x[15] ^= bits.RotateLeft32(x[14]+x[13], 18)
	}

	for i := range b {
		b[i] += x[i]
	}
}
