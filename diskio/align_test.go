package diskio_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/chromiumboot/vbkernel/diskio"
)

func TestAlignTo(t *testing.T) {
	require.Equal(t, uint64(512), diskio.AlignTo(1, 512))
	require.Equal(t, uint64(512), diskio.AlignTo(512, 512))
	require.Equal(t, uint64(1024), diskio.AlignTo(513, 512))
	require.Equal(t, uint64(0), diskio.AlignTo(0, 512))
}

func TestAlignPadding(t *testing.T) {
	require.Equal(t, uint64(511), diskio.AlignPadding(1, 512))
	require.Equal(t, uint64(0), diskio.AlignPadding(512, 512))
	require.Equal(t, uint64(511), diskio.AlignPadding(513, 512))
}
