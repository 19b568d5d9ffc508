package fixture_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/chromiumboot/vbkernel/cryptoprim"
	"github.com/chromiumboot/vbkernel/diskio/fixture"
)

func TestNewKeyPacksAndUnpacks(t *testing.T) {
	k, err := fixture.NewKey(5)
	require.NoError(t, err)

	packed := k.Packed()
	require.NotEmpty(t, packed)

	dk, err := cryptoprim.UnpackKey(packed, false)
	require.NoError(t, err)
	require.Equal(t, uint32(5), dk.Header.KeyVersion)
	require.Equal(t, uint32(cryptoprim.AlgRSA2048SHA256), dk.Header.Algorithm)
}

func TestKeyHashIsDeterministic(t *testing.T) {
	k, err := fixture.NewKey(1)
	require.NoError(t, err)

	h1 := k.Hash()
	h2 := k.Hash()
	require.Equal(t, h1, h2)
}

func TestDistinctKeysHaveDistinctHashes(t *testing.T) {
	k1, err := fixture.NewKey(1)
	require.NoError(t, err)
	k2, err := fixture.NewKey(1)
	require.NoError(t, err)

	require.NotEqual(t, k1.Hash(), k2.Hash())
}
