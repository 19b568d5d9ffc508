package measure_test

import (
	"crypto/sha1"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/chromiumboot/vbkernel/measure"
)

func TestKeyblockMode(t *testing.T) {
	require.Equal(t, byte(0), measure.KeyblockMode(true))
	require.Equal(t, byte(1), measure.KeyblockMode(false))
}

func TestBootStateDigestMatchesFormula(t *testing.T) {
	for _, tc := range []struct {
		developer, recovery bool
	}{
		{false, false},
		{true, false},
		{false, true},
		{true, true},
	} {
		want := sha1.Sum([]byte{boolByte(tc.developer), boolByte(tc.recovery), measure.KeyblockMode(tc.recovery)})
		got := measure.BootStateDigest(tc.developer, tc.recovery)
		require.Equal(t, want, [sha1.Size]byte(got))
	}
}

func TestBootStateDigestDistinctForDistinctInputs(t *testing.T) {
	a := measure.BootStateDigest(false, false)
	b := measure.BootStateDigest(true, false)
	c := measure.BootStateDigest(false, true)
	require.NotEqual(t, a, b)
	require.NotEqual(t, a, c)
	require.NotEqual(t, b, c)
}

func boolByte(b bool) byte {
	if b {
		return 1
	}
	return 0
}
