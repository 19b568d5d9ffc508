// Package measure implements the Boot-State Measurer (C9): the fixed
// mapping from (developer, recovery) to the 20-byte digest extended into a
// platform measurement register (spec §4.9, P5).
package measure

import "crypto/sha1" //nolint:gosec // digest format is fixed by spec, not a security choice made here

// Digest is the 20-byte boot-state fingerprint (spec §3 "Boot-State
// Fingerprint").
type Digest [sha1.Size]byte

// KeyblockMode derives the third fingerprint component: 0 iff recovery,
// else 1 (spec §3, §4.9).
func KeyblockMode(recovery bool) byte {
	if recovery {
		return 0
	}
	return 1
}

// BootStateDigest computes the SHA-1 of the three concatenated policy bytes
// developer ∥ recovery ∥ keyblock_mode (spec §4.9), bit-exact with the
// table in spec.md by construction rather than by a lookup table — a wrong
// table entry would be a visible discrepancy, not a silent mismatch.
func BootStateDigest(developer, recovery bool) Digest {
	var in [3]byte
	in[0] = boolByte(developer)
	in[1] = boolByte(recovery)
	in[2] = KeyblockMode(recovery)
	return sha1.Sum(in[:])
}

func boolByte(b bool) byte {
	if b {
		return 1
	}
	return 0
}
