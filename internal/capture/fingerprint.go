package capture

import (
	"encoding/hex"

	"golang.org/x/crypto/blake2b"
)

// SampleStride is the distance between sampled bytes.
const SampleStride = 1000

// Fingerprint hashes every SampleStride-th byte of pix (offsets 0, 1000,
// 2000, ...) and returns the first 16 bytes of the digest as 32 hex chars.
func Fingerprint(pix []byte) string {
	sample := make([]byte, 0, len(pix)/SampleStride+1)
	for i := 0; i < len(pix); i += SampleStride {
		sample = append(sample, pix[i])
	}
	sum := blake2b.Sum256(sample)
	return hex.EncodeToString(sum[:16])
}
