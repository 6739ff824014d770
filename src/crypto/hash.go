package crypto

import (
	"crypto/sha256"
)

// DigestLength is the size in bytes of digests produced by this package.
const DigestLength = sha256.Size

// SHA256 returns the SHA256 hash of the data.
func SHA256(data []byte) []byte {
	sum := sha256.Sum256(data)
	return sum[:]
}

// Digest returns the SHA256 hash of the data as a fixed-size array, suitable
// for use as a map key.
func Digest(data []byte) [DigestLength]byte {
	return sha256.Sum256(data)
}

// SimpleHashFromTwoHashes returns the SHA256 hash of the concatenation of left
// and right data.
func SimpleHashFromTwoHashes(left []byte, right []byte) []byte {
	var hasher = sha256.New()
	hasher.Write(left)
	hasher.Write(right)
	return hasher.Sum(nil)
}
