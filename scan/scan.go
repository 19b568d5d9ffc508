package scan

import (
	"context"

	"github.com/chromiumboot/vbkernel/bootctx"
	"github.com/chromiumboot/vbkernel/policy"
	"github.com/chromiumboot/vbkernel/rollback"
	"github.com/chromiumboot/vbkernel/verify"
	"github.com/chromiumboot/vbkernel/verrors"
)

// PrefixSize is the fixed pre-read window (spec §4.5, §9 "Pre-read-then-
// verify buffer"): large enough to hold keyblock+preamble and, in the
// common case, the start of the body, while bounding the work arena.
const PrefixSize = 64 * 1024

// LoadParams is the external input to LoadKernel (spec §6).
type LoadParams struct {
	Disk              DiskHandle
	BytesPerLBA       uint64
	StreamingLBACount uint64
	GPTLBACount       uint64
	BootFlags         BootFlag

	// KernelBuffer is the optional preallocated load target; if nil, the
	// preamble's declared load address and size determine the buffer
	// (spec §6) — in this in-memory module that just means "allocate a
	// fresh buffer", since there is no physical load address to honor.
	KernelBuffer []byte

	// FirmwareSubkey is the expected subkey for Normal/Developer mode,
	// established by firmware verification; RecoveryKey is the recovery
	// root key used instead in Recovery mode (spec §4.3 "Input").
	FirmwareSubkey []byte
	RecoveryKey    []byte

	Table    PartitionTable
	Streamer Streamer
}

// CandidateTelemetry is a supplemented (not spec-required) per-candidate
// timing record — see SPEC_FULL.md §3 "Telemetry hook". It never feeds back
// into verification decisions.
type CandidateTelemetry struct {
	Index         uint32
	ElapsedMillis int64
	Outcome       string
}

// Result is the external output of LoadKernel (spec §6), plus the
// supplemented telemetry and loaded body bytes.
type Result struct {
	PartitionNumber   uint32 // 1-based
	PartitionGUID     [16]byte
	BootloaderAddress uint64
	BootloaderSize    uint32
	Flags             uint32
	KernelSigned      bool
	CompositeVersion  uint32
	Body              []byte
	Telemetry         []CandidateTelemetry
}

// LoadKernel runs the Partition Scanner (C7) end to end: iterate candidates,
// verify each through C3→C4→(C5), apply the Counter-Update Decider (C8),
// and report the chosen partition. Partition-table state is written back
// and released on every exit path (spec §8 P8).
func LoadKernel(ctx context.Context, bc *bootctx.Context, p LoadParams) (*Result, error) {
	mode := policy.Resolve(bc)
	requireSigned := policy.RequireSigned(bc)

	subkeyBuf := p.FirmwareSubkey
	if mode == policy.Recovery {
		subkeyBuf = p.RecoveryKey
	}

	if err := p.Table.Init(ctx, p.Disk, p.BytesPerLBA, p.StreamingLBACount, p.GPTLBACount, p.BootFlags); err != nil {
		return nil, err
	}

	var (
		result       Result
		found        bool
		sawCandidate bool
		lowest       = rollback.SentinelUnset
		telemetry    []CandidateTelemetry
		loopErr      error
	)

scanLoop:
	for {
		entry, ok, err := p.Table.Next(ctx)
		if err != nil {
			loopErr = err
			break
		}
		if !ok {
			break
		}
		sawCandidate = true

		t0 := bc.Clock()
		outcome, cerr := tryCandidate(ctx, bc, &p, entry, subkeyBuf, mode, requireSigned, found)
		t1 := bc.Clock()

		label := "ok"
		if cerr != nil {
			if kind, ok := verrors.KindOf(cerr); ok {
				label = string(kind)
			} else {
				label = "error"
			}
		} else if outcome.vblockOnly {
			label = "vblock-only"
		}
		telemetry = append(telemetry, CandidateTelemetry{Index: entry.Index, ElapsedMillis: t1 - t0, Outcome: label})

		if cerr != nil {
			bc.Debugf("candidate %d rejected: %v", entry.Index, cerr)
			if err := p.Table.MarkBad(ctx, entry); err != nil {
				bc.Warnf("marking candidate %d bad: %v", entry.Index, err)
			}
			continue
		}

		if outcome.signed && outcome.composite < lowest {
			lowest = outcome.composite
		}

		if outcome.vblockOnly {
			continue
		}

		// Full success: this candidate becomes the chosen kernel.
		found = true
		result = Result{
			PartitionNumber:   entry.Index + 1, // cgptlib 0-based -> external 1-based (spec §9 OQ2)
			PartitionGUID:     entry.GUID,
			BootloaderAddress: outcome.bootloaderAddress,
			BootloaderSize:    outcome.bootloaderSize,
			Flags:             outcome.flags,
			KernelSigned:      outcome.signed,
			CompositeVersion:  outcome.composite,
			Body:              outcome.body,
		}

		if !bc.Flags.Has(bootctx.FlagNoFailBoot) {
			if err := p.Table.MarkTry(ctx, entry); err != nil {
				bc.Warnf("marking candidate %d try: %v", entry.Index, err)
			}
		}

		// Early-exit conditions (spec §4.7): recovery mode, or a self-signed
		// (unsigned) kernel, never benefits from scanning further for a
		// lower version — rollback protection doesn't apply to either.
		if mode == policy.Recovery || !outcome.signed {
			break scanLoop
		}
		secured, err := bc.SecureCounter.KernelVersion()
		if err == nil && outcome.composite == secured {
			// Counter already matches; no advance possible, stop.
			break scanLoop
		}
		// Otherwise keep scanning, vblock-only (spec §9 OQ1), to find a
		// possibly-lower-versioned signed candidate for the counter
		// decider.
	}

	if err := p.Table.WriteAndFree(ctx); err != nil {
		bc.Warnf("partition table write-back failed: %v", err)
	}

	if loopErr != nil {
		return nil, loopErr
	}

	if !found {
		if sawCandidate {
			return nil, verrors.New(verrors.KindInvalidKernelFound, "no candidate partition verified")
		}
		return nil, verrors.New(verrors.KindNoKernelFound, "no kernel candidates found")
	}

	// C8: publish the lowest signed composite version as the counter
	// target, only if it's actually higher than what's already secured.
	if lowest != rollback.SentinelUnset {
		secured, err := bc.SecureCounter.KernelVersion()
		if err == nil && lowest > secured {
			bc.Shared.KernelVersion = lowest
		}
	}

	result.Telemetry = telemetry
	return &result, nil
}

type candidateOutcome struct {
	vblockOnly        bool
	signed            bool
	composite         uint32
	bootloaderAddress uint64
	bootloaderSize    uint32
	flags             uint32
	body              []byte
}

// tryCandidate runs C3→C4→(C5) against one partition, as one arena-scoped
// sub-call (spec §5: nested verifiers acquire a local view and release on
// return).
func tryCandidate(ctx context.Context, bc *bootctx.Context, p *LoadParams, entry *PartitionEntry, subkeyBuf []byte, mode policy.Mode, requireSigned bool, vblockOnly bool) (candidateOutcome, error) {
	mark := bc.Work.Mark()
	defer bc.Work.Reset(mark)

	stream, err := p.Streamer.Open(ctx, p.Disk, entry.StartByte, entry.SizeBytes)
	if err != nil {
		return candidateOutcome{}, verrors.Wrap(verrors.KindLoadPartitionReadKeyblock, "opening partition stream", err)
	}
	defer stream.Close()

	prefix, err := bc.Work.Alloc(PrefixSize)
	if err != nil {
		return candidateOutcome{}, verrors.Wrap(verrors.KindLoadPartitionReadPrefix, "allocating prefix buffer", err)
	}
	n, err := stream.Read(ctx, PrefixSize, prefix)
	if err != nil || n < PrefixSize {
		return candidateOutcome{}, verrors.Wrap(verrors.KindLoadPartitionReadPrefix, "short read of vblock prefix", err)
	}

	kbRes, err := verify.KeyblockVerify(bc, prefix, subkeyBuf, mode, requireSigned)
	if err != nil {
		return candidateOutcome{}, err
	}

	preRes, err := verify.PreambleVerify(bc, prefix[kbRes.Header.KeyblockSize:], kbRes.DataKey, kbRes.DataKey.Header.KeyVersion, mode, requireSigned)
	if err != nil {
		return candidateOutcome{}, err
	}

	out := candidateOutcome{
		signed:            kbRes.Signed,
		composite:         preRes.Composite,
		bootloaderAddress: preRes.Header.BootloaderAddress,
		bootloaderSize:    preRes.Header.BootloaderSize,
		flags:             preRes.Header.Flags,
	}

	if vblockOnly {
		out.vblockOnly = true
		return out, nil
	}

	adapter := &streamReader{ctx: ctx, s: stream}
	body, err := verify.BodyVerify(prefix, kbRes.Header.KeyblockSize, preRes.Header, kbRes.DataKey, p.KernelBuffer, adapter)
	if err != nil {
		return candidateOutcome{}, err
	}
	out.body = body
	return out, nil
}

type streamReader struct {
	ctx context.Context
	s   Stream
}

func (r *streamReader) Read(n int, buf []byte) (int, error) {
	return r.s.Read(r.ctx, n, buf)
}
