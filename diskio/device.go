package diskio

import (
	"os"

	"github.com/chromiumboot/vbkernel/diskio/stub"
)

// DefaultLBASize is the sector size assumed for disk images and regular
// files that don't expose real block-device geometry.
const DefaultLBASize = 512

// Device is a DiskHandle (scan.DiskHandle) backed by a single on-disk file:
// either a raw block device node or a flat disk-image file used by tests
// and the fixture builder.
type Device struct {
	Path        string
	File        *os.File
	BytesPerLBA uint64
	TotalBytes  uint64
}

// OpenDevice opens path and stats it through the stub package (stub.Stat);
// a stat failure is returned as an error. The stat result is not inspected:
// no block-device geometry is probed, BytesPerLBA is always DefaultLBASize,
// and TotalBytes is the size os.File.Stat reports for path.
func OpenDevice(path string) (*Device, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}

	var st stub.Stat_t
	if err := stub.Stat(path, &st); err != nil {
		f.Close()
		return nil, err
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}

	d := &Device{
		Path:        path,
		File:        f,
		BytesPerLBA: DefaultLBASize,
		TotalBytes:  uint64(info.Size()),
	}
	return d, nil
}

func (d *Device) Close() error {
	return d.File.Close()
}

// LBACount reports the device's total size in units of BytesPerLBA,
// rounding down; callers pass this as scan.LoadParams.StreamingLBACount or
// GPTLBACount depending on which region they describe.
func (d *Device) LBACount() uint64 {
	return d.TotalBytes / d.BytesPerLBA
}
