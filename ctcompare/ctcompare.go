// Package ctcompare provides the constant-time comparison primitive used by
// the developer key-hash check (spec §4.10, property P7). It exists as its
// own package so every caller goes through one audited choke point rather
// than reaching for bytes.Equal by habit.
package ctcompare

import "crypto/subtle"

// Equal reports whether a and b hold the same bytes, in time independent of
// where the first differing byte falls. Unlike bytes.Equal it still runs the
// full comparison when the lengths already differ, it just folds the length
// mismatch into the same constant-time result instead of short-circuiting.
func Equal(a, b []byte) bool {
	if len(a) != len(b) {
		// Compare a against itself so the call shape (and rough timing) is
		// the same as the equal-length path; the result is forced false.
		subtle.ConstantTimeCompare(a, a)
		return false
	}
	return subtle.ConstantTimeCompare(a, b) == 1
}

// Equal32 is the fixed-size form used for the 256-bit developer key hash.
func Equal32(a, b [32]byte) bool {
	return subtle.ConstantTimeCompare(a[:], b[:]) == 1
}
