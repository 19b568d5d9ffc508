package fixture

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"os"

	"github.com/google/uuid"
)

const (
	lbaSize        = 512
	gptHeaderLBA   = 1
	gptEntriesLBA  = 2
	gptEntryCount  = 32
	gptEntrySize   = 128
	firstUsableLBA = gptEntriesLBA + (gptEntryCount*gptEntrySize)/lbaSize + 1
)

// chromeOSKernelGUID matches diskio.chromeOSKernelGUID; duplicated here
// since the disk-image encoder and the GPT reader are intentionally
// separate (build vs. parse), the way an encoder/decoder pair usually is.
var chromeOSKernelGUID = uuid.MustParse("FE3A2A5D-4F32-41A7-B725-ACCC3285A309")

// DiskImageSpec lays out a GPT disk image carrying one or more
// ChromeOS-kernel-typed partitions, back to back in entry-array order —
// enough for the Partition Scanner's multi-candidate logic (lowest-
// composite-version tracking across several signed kernels) to have
// something real to scan.
type DiskImageSpec struct {
	KernelPartitions [][]byte // each element: full keyblock+preamble+body bytes for one partition
}

// BuildDiskImage writes a GPT disk image containing one ChromeOS-kernel-
// typed partition per spec.KernelPartitions entry, each sized to exactly
// hold its data (LBA-aligned) and laid out back to back starting at
// firstUsableLBA. Returns each partition's starting LBA, in the same
// order as spec.KernelPartitions, for callers that want to cross-check
// against what GPTTable reports.
func BuildDiskImage(path string, spec DiskImageSpec) (startLBAs []uint64, err error) {
	if len(spec.KernelPartitions) == 0 {
		return nil, fmt.Errorf("fixture: disk image needs at least one kernel partition")
	}
	if len(spec.KernelPartitions) > gptEntryCount {
		return nil, fmt.Errorf("fixture: %d kernel partitions exceeds the %d-entry GPT array", len(spec.KernelPartitions), gptEntryCount)
	}

	startLBAs = make([]uint64, len(spec.KernelPartitions))
	partitionLBAs := make([]uint64, len(spec.KernelPartitions))
	lba := uint64(firstUsableLBA)
	for i, part := range spec.KernelPartitions {
		n := (uint64(len(part)) + lbaSize - 1) / lbaSize
		startLBAs[i] = lba
		partitionLBAs[i] = n
		lba += n
	}
	totalLBAs := lba + 1 // +1 trailing LBA for the (unused) backup header

	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("fixture: creating disk image: %w", err)
	}
	defer f.Close()

	if err := f.Truncate(int64(totalLBAs) * lbaSize); err != nil {
		return nil, fmt.Errorf("fixture: sizing disk image: %w", err)
	}

	typeGUID := uuidToMixedEndian(chromeOSKernelGUID)
	entries := make([]byte, gptEntryCount*gptEntrySize)
	for i, part := range spec.KernelPartitions {
		entry := entries[i*gptEntrySize : (i+1)*gptEntrySize]
		entryGUID := uuidToMixedEndian(uuid.New())
		copy(entry[0:16], typeGUID[:])
		copy(entry[16:32], entryGUID[:])
		binary.LittleEndian.PutUint64(entry[32:40], startLBAs[i])
		binary.LittleEndian.PutUint64(entry[40:48], startLBAs[i]+partitionLBAs[i]-1)
		binary.LittleEndian.PutUint64(entry[48:56], 0) // attributes: priority, tries and successful bit all start at 0

		if _, err := f.WriteAt(part, int64(startLBAs[i]*lbaSize)); err != nil {
			return nil, fmt.Errorf("fixture: writing kernel partition %d: %w", i, err)
		}
	}

	if _, err := f.WriteAt(entries, gptEntriesLBA*lbaSize); err != nil {
		return nil, fmt.Errorf("fixture: writing GPT entries: %w", err)
	}

	entryArrayCRC := crc32.ChecksumIEEE(entries)

	hdr := make([]byte, 92)
	copy(hdr[0:8], "EFI PART")
	binary.LittleEndian.PutUint32(hdr[8:12], 0x00010000) // revision 1.0
	binary.LittleEndian.PutUint32(hdr[12:16], 92)         // header size
	binary.LittleEndian.PutUint64(hdr[24:32], gptHeaderLBA)
	binary.LittleEndian.PutUint64(hdr[40:48], firstUsableLBA)
	binary.LittleEndian.PutUint64(hdr[48:56], totalLBAs-1)
	binary.LittleEndian.PutUint64(hdr[72:80], gptEntriesLBA)
	binary.LittleEndian.PutUint32(hdr[80:84], gptEntryCount)
	binary.LittleEndian.PutUint32(hdr[84:88], gptEntrySize)
	binary.LittleEndian.PutUint32(hdr[88:92], entryArrayCRC)

	headerCRC := crc32.ChecksumIEEE(hdr)
	binary.LittleEndian.PutUint32(hdr[16:20], headerCRC)

	if _, err := f.WriteAt(hdr, gptHeaderLBA*lbaSize); err != nil {
		return nil, fmt.Errorf("fixture: writing GPT header: %w", err)
	}

	return startLBAs, nil
}

func uuidToMixedEndian(u uuid.UUID) [16]byte {
	var out [16]byte
	out[0], out[1], out[2], out[3] = u[3], u[2], u[1], u[0]
	out[4], out[5] = u[5], u[4]
	out[6], out[7] = u[7], u[6]
	copy(out[8:], u[8:])
	return out
}
