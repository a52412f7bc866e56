package util

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
)

// HexToBytes decodes a hex string to bytes, returning an error if invalid.
func HexToBytes(s string) ([]byte, error) {
	return hex.DecodeString(s)
}

// BytesToHex encodes bytes to a hex string.
func BytesToHex(b []byte) string {
	return hex.EncodeToString(b)
}

// HexToUint32BE decodes a big-endian hex string (as carried by Stratum for
// version, nbits and ntime) into a uint32.
func HexToUint32BE(s string) (uint32, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return 0, fmt.Errorf("invalid hex %q: %w", s, err)
	}
	if len(b) != 4 {
		return 0, fmt.Errorf("expected 4 bytes, got %d", len(b))
	}
	return binary.BigEndian.Uint32(b), nil
}

// Uint32ToHexBE encodes a uint32 as a big-endian hex string, the form Stratum
// expects for the ntime and nonce fields of mining.submit.
func Uint32ToHexBE(v uint32) string {
	b := make([]byte, 4)
	binary.BigEndian.PutUint32(b, v)
	return hex.EncodeToString(b)
}

// HexBEToLE decodes a big-endian hex string of the expected byte length and
// reverses it to little-endian byte order.
func HexBEToLE(hexStr string, expectedLen int) ([]byte, error) {
	b, err := hex.DecodeString(hexStr)
	if err != nil {
		return nil, fmt.Errorf("invalid hex %q: %w", hexStr, err)
	}
	if len(b) != expectedLen {
		return nil, fmt.Errorf("expected %d bytes, got %d", expectedLen, len(b))
	}
	return ReverseBytes(b), nil
}
