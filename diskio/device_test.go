package diskio_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/chromiumboot/vbkernel/diskio"
)

func TestOpenDeviceRegularFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "disk.img")
	require.NoError(t, os.WriteFile(path, make([]byte, 4096), 0o644))

	d, err := diskio.OpenDevice(path)
	require.NoError(t, err)
	defer d.Close()

	require.Equal(t, uint64(diskio.DefaultLBASize), d.BytesPerLBA)
	require.Equal(t, uint64(4096), d.TotalBytes)
	require.Equal(t, uint64(8), d.LBACount())
}

func TestOpenDeviceMissingFile(t *testing.T) {
	_, err := diskio.OpenDevice(filepath.Join(t.TempDir(), "nope.img"))
	require.Error(t, err)
}
