// Package scan implements the Partition Scanner (C7) and the
// Counter-Update Decider (C8): the state machine that drives the Keyblock/
// Preamble/Body verifiers across every kernel candidate on a disk and
// decides which partition to boot and whether the secured counter should
// advance.
//
// The partition-table parser and the raw storage stream are explicitly out
// of spec-scope (spec §1 Non-goals) and modeled here purely as collaborator
// interfaces (spec §6, §9 "Partition iteration: model as an iterator that
// borrows the partition-table handle for the scan's lifetime"); package
// diskio supplies a concrete (minimal) implementation for tests and the CLI.
package scan

import "context"

// DiskHandle is an opaque identifier for the storage device (spec §6).
type DiskHandle any

// BootFlag is the "boot_flags" input bitset (spec §6), distinct from
// bootctx.Flag — it governs how the partition table itself is located and
// parsed, not the verification policy.
type BootFlag uint32

const BootFlagExternalGPT BootFlag = 1 << 0

// PartitionEntry is the scanner's view of one partition-table row: enough
// to open a stream over it and to report it back to the caller. Index is
// 0-based, the underlying partition-table library's convention (spec §9
// "cgptlib is 0-based, GPT is 1-based"); the scanner converts to the
// 1-based external contract at its own boundary.
type PartitionEntry struct {
	Index     uint32
	GUID      [16]byte
	StartByte uint64
	SizeBytes uint64
}

// PartitionTable is the collaborator interface for the on-disk partition
// table (spec §6): {init, iterate-kernel-entries, mark-entry-bad,
// mark-entry-try, current-guid, write-and-free}. CurrentGUID is folded into
// PartitionEntry.GUID instead of a separate call, since Go iterators can
// return it directly without an extra round trip.
type PartitionTable interface {
	// Init prepares iteration over kernel-type partitions on disk,
	// honoring the given geometry and boot flags (e.g. EXTERNAL_GPT).
	Init(ctx context.Context, disk DiskHandle, bytesPerLBA, streamingLBACount, gptLBACount uint64, bootFlags BootFlag) error
	// Next yields the next kernel candidate, or ok==false once exhausted.
	Next(ctx context.Context) (entry *PartitionEntry, ok bool, err error)
	// MarkBad records that entry failed verification.
	MarkBad(ctx context.Context, entry *PartitionEntry) error
	// MarkTry records that entry was selected and should be given a boot
	// try (skipped when the context's NOFAIL_BOOT flag is set).
	MarkTry(ctx context.Context, entry *PartitionEntry) error
	// WriteAndFree flushes any pending table mutations and releases the
	// table's resources. Called exactly once, on every exit path (spec
	// §8 P8), regardless of how the scan ended.
	WriteAndFree(ctx context.Context) error
}

// Stream is the collaborator interface for raw partition byte access (spec
// §6): {open, read, close}, narrowed to the read/close half a caller that
// already has a Stream needs.
type Stream interface {
	Read(ctx context.Context, n int, buf []byte) (int, error)
	Close() error
}

// Streamer opens a Stream over a byte range of the disk.
type Streamer interface {
	Open(ctx context.Context, disk DiskHandle, startByte, sizeBytes uint64) (Stream, error)
}
