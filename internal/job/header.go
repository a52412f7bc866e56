package job

import (
	"encoding/binary"

	"github.com/nmdata575/cryptominer-pro/pkg/util"
)

// HeaderLen is the serialized block header length.
const HeaderLen = 80

// AssembleCoinbase concatenates coinbase1 ∥ extranonce1 ∥ extranonce2 ∥
// coinbase2 into the full coinbase transaction bytes.
func AssembleCoinbase(coinbase1, extranonce1, extranonce2, coinbase2 []byte) []byte {
	out := make([]byte, 0, len(coinbase1)+len(extranonce1)+len(extranonce2)+len(coinbase2))
	out = append(out, coinbase1...)
	out = append(out, extranonce1...)
	out = append(out, extranonce2...)
	out = append(out, coinbase2...)
	return out
}

// MerkleRoot folds the merkle branch over the coinbase hash bottom-up:
// acc <- sha256d(acc ∥ branch[i]). An empty branch returns the coinbase
// hash itself.
func MerkleRoot(coinbaseHash [32]byte, branch [][32]byte) [32]byte {
	acc := coinbaseHash
	buf := make([]byte, 64)
	for _, b := range branch {
		copy(buf[:32], acc[:])
		copy(buf[32:], b[:])
		acc = util.DoubleSHA256(buf)
	}
	return acc
}

// HeaderPrefix returns an 80-byte header buffer with the first 76 bytes set:
// version(4) ∥ prev_hash(32) ∥ merkle_root(32) ∥ ntime(4) ∥ nbits(4).
// Integer fields are little-endian; the last four bytes are left zero for
// the caller to fill with SetNonce, which lets a worker reuse the buffer
// across its whole nonce slice.
func (j *Job) HeaderPrefix(merkleRoot [32]byte, ntime uint32) []byte {
	buf := make([]byte, HeaderLen)
	binary.LittleEndian.PutUint32(buf[0:4], j.Version)
	copy(buf[4:36], j.PrevHash[:])
	copy(buf[36:68], merkleRoot[:])
	binary.LittleEndian.PutUint32(buf[68:72], ntime)
	binary.LittleEndian.PutUint32(buf[72:76], j.NBits)
	return buf
}

// SetNonce writes the nonce into an 80-byte header buffer.
func SetNonce(header []byte, nonce uint32) {
	binary.LittleEndian.PutUint32(header[76:80], nonce)
}

// BuildHeader assembles the complete 80-byte header for the given
// extranonces, ntime and nonce.
func (j *Job) BuildHeader(extranonce1, extranonce2 []byte, ntime, nonce uint32) []byte {
	coinbase := AssembleCoinbase(j.Coinbase1, extranonce1, extranonce2, j.Coinbase2)
	root := MerkleRoot(util.DoubleSHA256(coinbase), j.MerkleBranch)
	header := j.HeaderPrefix(root, ntime)
	SetNonce(header, nonce)
	return header
}
