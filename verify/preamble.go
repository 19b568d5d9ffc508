package verify

import (
	"github.com/chromiumboot/vbkernel/bootctx"
	"github.com/chromiumboot/vbkernel/cryptoprim"
	"github.com/chromiumboot/vbkernel/policy"
	"github.com/chromiumboot/vbkernel/rollback"
	"github.com/chromiumboot/vbkernel/verrors"
)

// PreambleResult is the output of PreambleVerify: the composite version and
// the fields the scanner/caller need out of the preamble header.
type PreambleResult struct {
	Composite  uint32
	Header     cryptoprim.PreambleHeader
}

// PreambleVerify runs the C4 algorithm (spec §4.4) against a buffer starting
// exactly at the preamble (i.e. keyblock_size bytes into the partition).
func PreambleVerify(ctx *bootctx.Context, buf []byte, dataKey *cryptoprim.PackedKey, keyVersion uint32, mode policy.Mode, requireSigned bool) (*PreambleResult, error) {
	hdr, err := cryptoprim.ParsePreambleHeader(buf)
	if err != nil {
		return nil, err
	}

	if err := cryptoprim.VerifyPreambleSignature(buf, hdr, dataKey); err != nil {
		return nil, err
	}

	if !rollback.InRange16(hdr.KernelVersion) {
		return nil, verrors.New(verrors.KindPreambleVersionRange, "kernel_version exceeds 0xFFFF")
	}

	composite := rollback.Composite(keyVersion, hdr.KernelVersion)

	if requireSigned && mode != policy.Recovery {
		secured, err := ctx.SecureCounter.KernelVersion()
		if err == nil && rollback.CompositeRollback(composite, secured) {
			return nil, verrors.New(verrors.KindPreambleVersionRollback, "composite version below secured counter")
		}
	}

	return &PreambleResult{Composite: composite, Header: hdr}, nil
}
