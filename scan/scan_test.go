package scan_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/chromiumboot/vbkernel/bootctx"
	"github.com/chromiumboot/vbkernel/cryptoprim"
	"github.com/chromiumboot/vbkernel/diskio"
	"github.com/chromiumboot/vbkernel/diskio/fixture"
	"github.com/chromiumboot/vbkernel/scan"
)

// buildFixturePartition assembles a keyblock+preamble+body partition image
// and pads it well past scan.PrefixSize, since the candidate's first read
// must fill the entire pre-read window in one shot.
func buildFixturePartition(t *testing.T, subkey, dataKey *fixture.Key, flags uint32, kernelVersion uint32, body []byte) []byte {
	t.Helper()
	part, err := fixture.BuildKernelPartition(fixture.KernelPartitionSpec{
		Keyblock: fixture.KeyblockSpec{Subkey: subkey, DataKey: dataKey, Flags: flags},
		Preamble: fixture.PreambleSpec{
			DataKey:           dataKey,
			KernelVersion:     kernelVersion,
			BootloaderAddress: 0x2000,
			BootloaderSize:    64,
			Body:              body,
		},
	})
	require.NoError(t, err)
	if len(part) < 2*scan.PrefixSize {
		padded := make([]byte, 2*scan.PrefixSize)
		copy(padded, part)
		part = padded
	}
	return part
}

func writeFixtureDisk(t *testing.T, parts ...[]byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "disk.img")
	_, err := fixture.BuildDiskImage(path, fixture.DiskImageSpec{KernelPartitions: parts})
	require.NoError(t, err)
	return path
}

func openFixtureDisk(t *testing.T, path string) (*diskio.Device, *diskio.GPTTable, *diskio.MmapStreamer) {
	t.Helper()
	dev, err := diskio.OpenDevice(path)
	require.NoError(t, err)
	t.Cleanup(func() { dev.Close() })

	streamer, err := diskio.NewMmapStreamer(dev)
	require.NoError(t, err)
	t.Cleanup(func() { streamer.Close() })

	return dev, diskio.NewGPTTable(dev), streamer
}

func loadParams(dev *diskio.Device, table *diskio.GPTTable, streamer *diskio.MmapStreamer) scan.LoadParams {
	return scan.LoadParams{
		Disk:              dev,
		BytesPerLBA:       diskio.DefaultLBASize,
		StreamingLBACount: dev.LBACount(),
		GPTLBACount:       dev.LBACount(),
		Table:             table,
		Streamer:          streamer,
	}
}

func TestLoadKernelSignedNormalMode(t *testing.T) {
	subkey, err := fixture.NewKey(1)
	require.NoError(t, err)
	dataKey, err := fixture.NewKey(1)
	require.NoError(t, err)

	part := buildFixturePartition(t, subkey, dataKey, cryptoprim.KeyblockDeveloper0|cryptoprim.KeyblockRecovery0, 7, []byte("kernel body bytes"))
	dev, table, streamer := openFixtureDisk(t, writeFixtureDisk(t, part))

	store := diskio.NewMemStore()
	bc := bootctx.New(0, store, store, 128*1024)

	p := loadParams(dev, table, streamer)
	p.FirmwareSubkey = subkey.Packed()
	res, err := scan.LoadKernel(context.Background(), bc, p)
	require.NoError(t, err)
	require.True(t, res.KernelSigned)
	require.Equal(t, uint32(1<<16|7), res.CompositeVersion)
	// res.Body is signed-data || detached-signature; only the former
	// reproduces the original body bytes verbatim.
	require.Equal(t, []byte("kernel body bytes"), res.Body[:len("kernel body bytes")])
}

func TestLoadKernelRecoveryFallsBackToHash(t *testing.T) {
	subkey, err := fixture.NewKey(1)
	require.NoError(t, err)
	dataKey, err := fixture.NewKey(1)
	require.NoError(t, err)

	part := buildFixturePartition(t, subkey, dataKey, cryptoprim.KeyblockDeveloper0|cryptoprim.KeyblockRecovery1, 2, []byte("recovery body"))

	// Corrupt the keyblock's detached signature bytes only, before the
	// partition is ever written to disk, forcing the hash-only fallback
	// that recovery mode allows (spec §8 scenario 3).
	hdr, err := cryptoprim.ParseKeyblockHeader(part)
	require.NoError(t, err)
	part[hdr.Signature.Offset] ^= 0xFF

	dev, table, streamer := openFixtureDisk(t, writeFixtureDisk(t, part))

	store := diskio.NewMemStore()
	bc := bootctx.New(bootctx.FlagRecovery, store, store, 128*1024)

	p := loadParams(dev, table, streamer)
	p.RecoveryKey = subkey.Packed()
	res, err := scan.LoadKernel(context.Background(), bc, p)
	require.NoError(t, err)
	require.False(t, res.KernelSigned)
}

func TestLoadKernelRejectsRollback(t *testing.T) {
	subkey, err := fixture.NewKey(1)
	require.NoError(t, err)
	dataKey, err := fixture.NewKey(1)
	require.NoError(t, err)

	part := buildFixturePartition(t, subkey, dataKey, cryptoprim.KeyblockDeveloper0|cryptoprim.KeyblockRecovery0, 3, []byte("old kernel"))
	dev, table, streamer := openFixtureDisk(t, writeFixtureDisk(t, part))

	store := diskio.NewMemStore()
	require.NoError(t, store.SetKernelVersion(uint32(1<<16|9))) // secured counter ahead of this candidate
	bc := bootctx.New(0, store, store, 128*1024)

	p := loadParams(dev, table, streamer)
	p.FirmwareSubkey = subkey.Packed()
	_, err = scan.LoadKernel(context.Background(), bc, p)
	require.Error(t, err)
}

// markTryRecorder wraps a PartitionTable and counts MarkTry calls.
type markTryRecorder struct {
	scan.PartitionTable
	tries int
}

func (r *markTryRecorder) MarkTry(ctx context.Context, entry *scan.PartitionEntry) error {
	r.tries++
	return r.PartitionTable.MarkTry(ctx, entry)
}

func TestLoadKernelNoFailBootSkipsMarkTry(t *testing.T) {
	subkey, err := fixture.NewKey(1)
	require.NoError(t, err)
	dataKey, err := fixture.NewKey(1)
	require.NoError(t, err)

	part := buildFixturePartition(t, subkey, dataKey, cryptoprim.KeyblockDeveloper0|cryptoprim.KeyblockRecovery0, 1, []byte("body"))
	dev, table, streamer := openFixtureDisk(t, writeFixtureDisk(t, part))

	store := diskio.NewMemStore()
	bc := bootctx.New(bootctx.FlagNoFailBoot, store, store, 128*1024)

	p := loadParams(dev, table, streamer)
	rec := &markTryRecorder{PartitionTable: table}
	p.Table = rec
	p.FirmwareSubkey = subkey.Packed()
	res, err := scan.LoadKernel(context.Background(), bc, p)
	require.NoError(t, err)
	require.True(t, res.KernelSigned)
	require.Zero(t, rec.tries, "NOFAIL_BOOT must skip MarkTry")
}

// TestLoadKernelCounterAdvancesToMinimumComposite exercises spec §8
// scenario 6 / property P4: with two signed candidates of differing
// composite version, the Counter-Update Decider must publish the lower
// composite, not the one the scanner happened to pick first.
func TestLoadKernelCounterAdvancesToMinimumComposite(t *testing.T) {
	subkey, err := fixture.NewKey(1)
	require.NoError(t, err)
	dataKey, err := fixture.NewKey(1)
	require.NoError(t, err)

	flags := cryptoprim.KeyblockDeveloper0 | cryptoprim.KeyblockRecovery0
	higher := buildFixturePartition(t, subkey, dataKey, flags, 7, []byte("higher version body"))
	lower := buildFixturePartition(t, subkey, dataKey, flags, 3, []byte("lower version body"))

	dev, table, streamer := openFixtureDisk(t, writeFixtureDisk(t, higher, lower))

	store := diskio.NewMemStore()
	bc := bootctx.New(0, store, store, 128*1024)

	p := loadParams(dev, table, streamer)
	p.FirmwareSubkey = subkey.Packed()
	res, err := scan.LoadKernel(context.Background(), bc, p)
	require.NoError(t, err)

	// The scanner picks the first candidate it fully verifies...
	require.True(t, res.KernelSigned)
	require.Equal(t, uint32(1<<16|7), res.CompositeVersion)

	// ...but the counter decider must advance to the minimum composite
	// across every signed candidate it saw, not just the chosen one.
	require.Equal(t, uint32(1<<16|3), bc.Shared.KernelVersion)
}

func TestLoadKernelAllCandidatesInvalid(t *testing.T) {
	part := make([]byte, 2*scan.PrefixSize) // zeroed: bad keyblock magic
	dev, table, streamer := openFixtureDisk(t, writeFixtureDisk(t, part))

	store := diskio.NewMemStore()
	bc := bootctx.New(0, store, store, 128*1024)

	_, err := scan.LoadKernel(context.Background(), bc, loadParams(dev, table, streamer))
	require.Error(t, err)
}
