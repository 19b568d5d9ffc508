package fixture

import (
	"fmt"
	"os"

	"github.com/edsrzf/mmap-go"
)

func openRW(path string) (*os.File, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("fixture: opening %s: %w", path, err)
	}
	return f, nil
}

// CorruptByte flips one byte in an in-memory buffer at offset, for negative-
// path tests that want a single-bit/byte corruption (bad signature, bad
// hash, out-of-range field) without rebuilding the whole fixture.
func CorruptByte(buf []byte, offset int, value byte) {
	buf[offset] = value
}

// CorruptFile patches `to` over the first occurrence of byte pattern `from`
// in the file at path, adapted from the teacher's patch.go HexPatch: same
// mmap-and-scan approach, generalized from a CLI hex-patch operation to a
// fixture corruption helper tests can call directly instead of shelling
// out. Returns false if the pattern wasn't found.
func CorruptFile(path string, from, to []byte) (bool, error) {
	if len(from) == 0 || len(from) != len(to) {
		return false, fmt.Errorf("fixture: from/to must be equal-length, non-empty (from=%d, to=%d)", len(from), len(to))
	}

	f, err := openRW(path)
	if err != nil {
		return false, err
	}
	defer f.Close()

	m, err := mmap.Map(f, mmap.RDWR, 0)
	if err != nil {
		return false, fmt.Errorf("fixture: mapping %s: %w", path, err)
	}
	defer m.Unmap()

	for i := 0; i+len(from) <= len(m); i++ {
		if m[i] != from[0] {
			continue
		}
		match := true
		for j := range from {
			if m[i+j] != from[j] {
				match = false
				break
			}
		}
		if match {
			copy(m[i:i+len(to)], to)
			return true, nil
		}
	}
	return false, nil
}
