package diskio

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"

	"github.com/google/uuid"

	"github.com/chromiumboot/vbkernel/scan"
)

// chromeOSKernelGUID is the GPT partition type GUID ChromeOS uses to mark
// kernel partitions (FE3A2A5D-4F32-41A7-B725-ACCC3285A309); only entries
// with this type are offered to the scanner as candidates.
var chromeOSKernelGUID = uuid.MustParse("FE3A2A5D-4F32-41A7-B725-ACCC3285A309")

const (
	gptHeaderLBA      = 1
	gptEntrySize      = 128
	gptSignature      = "EFI PART"
	attrSuccessfulBit = 1 << 56
	attrTriesShift    = 52
	attrTriesMask     = 0xF
	attrPriorityShift = 48
	attrPriorityMask  = 0xF
)

// gptHeader mirrors the on-disk UEFI GPT header layout needed to locate the
// partition entry array; fields after PartitionEntryCRC32 (reserved
// padding) are not modeled since nothing here needs them.
type gptHeader struct {
	Signature            [8]byte
	Revision             uint32
	HeaderSize           uint32
	HeaderCRC32          uint32
	Reserved             uint32
	CurrentLBA           uint64
	BackupLBA            uint64
	FirstUsableLBA       uint64
	LastUsableLBA        uint64
	DiskGUID             [16]byte
	PartitionEntryLBA    uint64
	NumPartitionEntries  uint32
	SizeOfPartitionEntry uint32
	PartitionEntryCRC32  uint32
}

// gptEntryRaw mirrors one 128-byte GPT partition entry.
type gptEntryRaw struct {
	TypeGUID   [16]byte
	UniqueGUID [16]byte
	FirstLBA   uint64
	LastLBA    uint64
	Attributes uint64
	NameUTF16  [72]byte
}

// GPTTable implements scan.PartitionTable directly against a *Device,
// reading the primary GPT header and entry array and exposing only
// ChromeOS-kernel-typed entries, in priority order (highest GPT priority
// attribute first), as spec §6's "iterate kernel-type partitions" calls
// for. It is a minimal from-scratch reader/writer grounded in the shape of
// the teacher's header-parsing style (bootimg.go's fixed-layout structs
// decoded with encoding/binary) rather than any single teacher routine,
// since partition-table parsing itself is out of spec-scope (spec §1
// Non-goals) and the teacher has no GPT code of its own.
type GPTTable struct {
	device *Device

	entries []gptCandidate
	cursor  int
}

type gptCandidate struct {
	entry      scan.PartitionEntry
	rawOffset  int64 // byte offset of this entry's 128 bytes in the device
	attributes uint64
}

func NewGPTTable(d *Device) *GPTTable {
	return &GPTTable{device: d}
}

// Init reads the primary GPT at gptHeaderLBA of the table's own device. Only
// bytesPerLBA is used (0 means DefaultLBASize); disk, streamingLBACount,
// gptLBACount and bootFlags (including EXTERNAL_GPT) are ignored.
func (t *GPTTable) Init(ctx context.Context, disk scan.DiskHandle, bytesPerLBA, streamingLBACount, gptLBACount uint64, bootFlags scan.BootFlag) error {
	if bytesPerLBA == 0 {
		bytesPerLBA = DefaultLBASize
	}

	hdrBuf := make([]byte, bytesPerLBA)
	if _, err := t.device.File.ReadAt(hdrBuf, int64(gptHeaderLBA*bytesPerLBA)); err != nil {
		return fmt.Errorf("reading GPT header: %w", err)
	}
	var hdr gptHeader
	if err := binary.Read(bytes.NewReader(hdrBuf), binary.LittleEndian, &hdr); err != nil {
		return fmt.Errorf("decoding GPT header: %w", err)
	}
	if string(hdr.Signature[:]) != gptSignature {
		return fmt.Errorf("not a GPT disk: bad signature %q", hdr.Signature)
	}

	entryArrayOffset := int64(hdr.PartitionEntryLBA * bytesPerLBA)
	entrySize := int64(hdr.SizeOfPartitionEntry)
	if entrySize == 0 {
		entrySize = gptEntrySize
	}

	var candidates []gptCandidate
	for i := uint32(0); i < hdr.NumPartitionEntries; i++ {
		off := entryArrayOffset + int64(i)*entrySize
		raw := make([]byte, gptEntrySize)
		if _, err := t.device.File.ReadAt(raw, off); err != nil {
			return fmt.Errorf("reading GPT entry %d: %w", i, err)
		}
		var e gptEntryRaw
		if err := binary.Read(bytes.NewReader(raw), binary.LittleEndian, &e); err != nil {
			return fmt.Errorf("decoding GPT entry %d: %w", i, err)
		}
		typeGUID := uuid.UUID(guidFromMixedEndian(e.TypeGUID))
		if typeGUID != chromeOSKernelGUID {
			continue
		}
		startByte := e.FirstLBA * bytesPerLBA
		sizeBytes := (e.LastLBA - e.FirstLBA + 1) * bytesPerLBA
		candidates = append(candidates, gptCandidate{
			entry: scan.PartitionEntry{
				Index:     i,
				GUID:      guidFromMixedEndian(e.UniqueGUID),
				StartByte: startByte,
				SizeBytes: sizeBytes,
			},
			rawOffset:  off,
			attributes: e.Attributes,
		})
	}

	priority := func(a uint64) uint64 { return (a >> attrPriorityShift) & attrPriorityMask }
	for i := 1; i < len(candidates); i++ {
		for j := i; j > 0 && priority(candidates[j].attributes) > priority(candidates[j-1].attributes); j-- {
			candidates[j], candidates[j-1] = candidates[j-1], candidates[j]
		}
	}

	t.entries = candidates
	t.cursor = 0
	return nil
}

func (t *GPTTable) Next(ctx context.Context) (*scan.PartitionEntry, bool, error) {
	if t.cursor >= len(t.entries) {
		return nil, false, nil
	}
	e := t.entries[t.cursor].entry
	t.cursor++
	return &e, true, nil
}

func (t *GPTTable) find(entry *scan.PartitionEntry) *gptCandidate {
	for i := range t.entries {
		if t.entries[i].entry.Index == entry.Index {
			return &t.entries[i]
		}
	}
	return nil
}

func (t *GPTTable) MarkBad(ctx context.Context, entry *scan.PartitionEntry) error {
	c := t.find(entry)
	if c == nil {
		return fmt.Errorf("unknown partition index %d", entry.Index)
	}
	c.attributes &^= uint64(attrPriorityMask) << attrPriorityShift
	c.attributes &^= uint64(attrTriesMask) << attrTriesShift
	return nil
}

func (t *GPTTable) MarkTry(ctx context.Context, entry *scan.PartitionEntry) error {
	c := t.find(entry)
	if c == nil {
		return fmt.Errorf("unknown partition index %d", entry.Index)
	}
	if c.attributes&attrSuccessfulBit != 0 {
		return nil
	}
	tries := (c.attributes >> attrTriesShift) & attrTriesMask
	if tries > 0 {
		tries--
	}
	c.attributes &^= uint64(attrTriesMask) << attrTriesShift
	c.attributes |= tries << attrTriesShift
	return nil
}

// WriteAndFree flushes every candidate's (possibly updated) attribute word
// back to disk. Called exactly once per scan (spec §8 P8).
func (t *GPTTable) WriteAndFree(ctx context.Context) error {
	for _, c := range t.entries {
		var attrBuf [8]byte
		binary.LittleEndian.PutUint64(attrBuf[:], c.attributes)
		attrOffset := c.rawOffset + 16 + 16 + 8 + 8 // past TypeGUID, UniqueGUID, FirstLBA, LastLBA
		if _, err := t.device.File.WriteAt(attrBuf[:], attrOffset); err != nil {
			return fmt.Errorf("writing back GPT attributes for entry: %w", err)
		}
	}
	return nil
}

// guidFromMixedEndian converts a GPT on-disk GUID (whose first three fields
// are little-endian) into a stable [16]byte in the byte order uuid.UUID
// expects, so two GUIDs decoded from the same wire bytes always compare
// equal regardless of where they came from.
func guidFromMixedEndian(raw [16]byte) [16]byte {
	var out [16]byte
	out[0], out[1], out[2], out[3] = raw[3], raw[2], raw[1], raw[0]
	out[4], out[5] = raw[5], raw[4]
	out[6], out[7] = raw[7], raw[6]
	copy(out[8:], raw[8:])
	return out
}
