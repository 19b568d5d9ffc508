package ctcompare_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/chromiumboot/vbkernel/ctcompare"
)

func TestEqual(t *testing.T) {
	require.True(t, ctcompare.Equal([]byte("abc"), []byte("abc")))
	require.False(t, ctcompare.Equal([]byte("abc"), []byte("abd")))
	require.False(t, ctcompare.Equal([]byte("abc"), []byte("ab")))
	require.False(t, ctcompare.Equal(nil, []byte("a")))
	require.True(t, ctcompare.Equal(nil, nil))
}

func TestEqual32(t *testing.T) {
	var a, b [32]byte
	a[0] = 1
	b[0] = 1
	require.True(t, ctcompare.Equal32(a, b))
	b[0] = 2
	require.False(t, ctcompare.Equal32(a, b))
}
