// Package seed derives reproducible task seeds and the synthetic fixtures
// built from them.
package seed

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"math/rand"
	"time"
)

// Length is the number of hex characters kept from the digest.
const Length = 16

// ShortLength is the prefix substituted for the {seed} placeholder.
const ShortLength = 8

// BucketLayout formats the hourly UTC bucket a seed is valid for.
const BucketLayout = "2006-01-02-15"

// GenerateSeed returns the first Length hex characters of
// sha256(identity + ":" + bucket). It is a pure function.
func GenerateSeed(identity, bucket string) string {
	sum := sha256.Sum256([]byte(identity + ":" + bucket))
	return hex.EncodeToString(sum[:])[:Length]
}

// Bucket returns the hourly UTC bucket containing t.
func Bucket(t time.Time) string {
	return t.UTC().Format(BucketLayout)
}

// BucketStart parses a bucket string back into the first instant of that hour.
func BucketStart(bucket string) (time.Time, error) {
	return time.ParseInLocation(BucketLayout, bucket, time.UTC)
}

// Short returns the prefix used in briefs and assertions.
func Short(s string) string {
	if len(s) <= ShortLength {
		return s
	}
	return s[:ShortLength]
}

// NewRand returns a generator seeded only from s. The global math/rand
// source is never touched, so concurrent task generation cannot interfere.
func NewRand(s string) *rand.Rand {
	sum := sha256.Sum256([]byte(s))
	return rand.New(rand.NewSource(int64(binary.BigEndian.Uint64(sum[:8]))))
}
