package fixture_test

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/chromiumboot/vbkernel/diskio/fixture"
)

func TestCompressDecompressRoundTrip(t *testing.T) {
	payload := bytes.Repeat([]byte("bootloader-blob-content"), 200)

	for _, format := range []fixture.CompressionFormat{fixture.FormatNone, fixture.FormatXZ, fixture.FormatLZ4} {
		compressed, err := fixture.CompressBootloader(format, payload)
		require.NoError(t, err)

		decompressed, err := fixture.DecompressBootloader(format, compressed)
		require.NoError(t, err)
		require.Equal(t, payload, decompressed)
	}
}

func TestCompressXZAndLZ4ActuallyShrinkRepetitiveData(t *testing.T) {
	payload := bytes.Repeat([]byte("aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"), 1000)

	xzOut, err := fixture.CompressBootloader(fixture.FormatXZ, payload)
	require.NoError(t, err)
	require.Less(t, len(xzOut), len(payload))

	lz4Out, err := fixture.CompressBootloader(fixture.FormatLZ4, payload)
	require.NoError(t, err)
	require.Less(t, len(lz4Out), len(payload))
}

func TestDecompressUnknownFormat(t *testing.T) {
	_, err := fixture.DecompressBootloader(fixture.CompressionFormat(99), []byte("x"))
	require.Error(t, err)
}
