// Package fingerprint derives stable content-addressed identifiers used as cache and lookup keys.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// fieldSeparator joins normalized parts. It never survives normalization inside a part.
const fieldSeparator = "\x1f"

// String returns the hex sha256 of s after whitespace normalization.
// Runs of whitespace collapse to a single space and the result is trimmed,
// so reflowed text hashes identically. Empty input is valid.
func String(s string) string {
	return sum([]byte(Normalize(s)))
}

// Bytes returns the hex sha256 of raw content without normalization.
func Bytes(b []byte) string {
	return sum(b)
}

// Fields fingerprints an ordered list of parts. Each part is normalized on its own.
func Fields(parts ...string) string {
	normalized := make([]string, 0, len(parts))
	for _, part := range parts {
		normalized = append(normalized, Normalize(part))
	}
	return sum([]byte(strings.Join(normalized, fieldSeparator)))
}

// Normalize collapses whitespace runs into single spaces and trims the ends.
func Normalize(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// Short returns the first n characters of a fingerprint for log output.
func Short(fp string, n int) string {
	if n <= 0 || len(fp) <= n {
		return fp
	}
	return fp[:n]
}

func sum(b []byte) string {
	h := sha256.Sum256(b)
	return hex.EncodeToString(h[:])
}
