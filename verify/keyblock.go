// Package verify implements the Keyblock Verifier (C3), Preamble Verifier
// (C4), and Body Verifier (C5), plus the developer key-hash check (C10,
// folded into KeyblockVerify per spec §4.3 step 7).
package verify

import (
	"github.com/chromiumboot/vbkernel/bootctx"
	"github.com/chromiumboot/vbkernel/cryptoprim"
	"github.com/chromiumboot/vbkernel/ctcompare"
	"github.com/chromiumboot/vbkernel/policy"
	"github.com/chromiumboot/vbkernel/rollback"
	"github.com/chromiumboot/vbkernel/verrors"
)

// KeyblockResult is the output of KeyblockVerify: whether keyblock_flags
// allow the current boot mode (Valid), whether it counts as "signed" for
// rollback-enforcement purposes, and the unpacked data key for the preamble
// stage.
type KeyblockResult struct {
	Valid    bool
	Signed   bool
	DataKey  *cryptoprim.PackedKey
	Header   cryptoprim.KeyblockHeader
}

// KeyblockVerify runs the full C3 algorithm (spec §4.3) against a buffer
// containing a keyblock at offset 0.
//
// subkeyBuf is the expected subkey's packed bytes — from firmware
// verification in Normal/Developer mode, or the recovery root key in
// Recovery mode (spec §4.3 "Input"). mode and requireSigned are provided by
// the caller (policy.Resolve / policy.RequireSigned) rather than recomputed
// here, since the scanner consults both once per candidate and for several
// components.
func KeyblockVerify(ctx *bootctx.Context, buf []byte, subkeyBuf []byte, mode policy.Mode, requireSigned bool) (*KeyblockResult, error) {
	// Step 2: clear any prior "kernel signed" flag before this candidate is
	// judged.
	ctx.Shared.KernelSigned = false

	// Step 1: unpack the subkey, tagging it for hardware-crypto offload if
	// the platform allows it.
	subkey, err := cryptoprim.UnpackKey(subkeyBuf, ctx.Flags.Has(bootctx.FlagHWCryptoAllowed))
	if err != nil {
		return nil, verrors.Wrap(verrors.KindVblockKeyblockSig, "unpacking subkey", err)
	}

	hdr, err := cryptoprim.ParseKeyblockHeader(buf)
	if err != nil {
		return nil, err
	}

	res := &KeyblockResult{Header: hdr}

	// Step 3/4: attempt signature verification first; fall back to hash-only
	// when policy allows it. Recovery mode always allows the hash-only
	// fallback regardless of requireSigned — spec §4.3 step 6 calls out an
	// explicit "unless in recovery" bypass for version checks, and the
	// worked example in spec §8 scenario 3 (bad signature, valid hash, in
	// Recovery) only holds together if the same bypass applies to the
	// signature/hash fallback. See DESIGN.md for this reading.
	allowHashOnly := mode == policy.Recovery || !requireSigned
	signed := true
	if sigErr := cryptoprim.VerifyKeyblockSignature(buf, hdr, subkey); sigErr != nil {
		if !allowHashOnly {
			return nil, sigErr
		}
		if hashErr := cryptoprim.VerifyKeyblockHash(buf, hdr); hashErr != nil {
			// Hash failure is always fatal, even in recovery: a keyblock
			// must at minimum be internally consistent.
			return nil, hashErr
		}
		signed = false
	}

	// Step 5: keyblock_flags against the current mode.
	flagsOK, flagKind := checkModeFlags(hdr.KeyblockFlags, ctx.Flags.Has(bootctx.FlagDeveloper), ctx.Flags.Has(bootctx.FlagRecovery))
	if !flagsOK {
		res.Valid = false
		if requireSigned {
			return nil, verrors.New(flagKind, "keyblock flags forbid current boot mode")
		}
		signed = false
	} else {
		res.Valid = true
	}

	dataKey, err := cryptoprim.KeyblockDataKey(buf, hdr, ctx.Flags.Has(bootctx.FlagHWCryptoAllowed))
	if err != nil {
		return nil, err
	}
	res.DataKey = dataKey

	// Step 6: key-version range check always applies, even in recovery —
	// spec property P6 rejects key_version > 0xFFFF "regardless of mode".
	// Only the rollback-against-the-secured-counter comparison that follows
	// it is the part spec §4.3 step 6 skips "unless in recovery"; range
	// validity isn't a monotonicity check, it's a wire-format bound. See
	// DESIGN.md for this reading.
	if !rollback.InRange16(dataKey.Header.KeyVersion) {
		if requireSigned {
			return nil, verrors.New(verrors.KindKeyblockVerRange, "data key version exceeds 0xFFFF")
		}
		signed = false
	} else if mode != policy.Recovery {
		secured, secErr := ctx.SecureCounter.KernelVersion()
		if secErr == nil && rollback.KeyRollback(dataKey.Header.KeyVersion, secured) {
			if requireSigned {
				return nil, verrors.New(verrors.KindKeyblockVerRollback, "data key version below secured counter")
			}
			signed = false
		}
	}

	// Step 7: developer FWMP key-hash check, independent of the "signed"
	// state computed so far (C10).
	if mode == policy.Developer {
		useHash, _ := ctx.SecureCounter.FWMPFlag("use-key-hash")
		if useHash {
			pinned, ok, hashErr := ctx.SecureCounter.DevKeyHash()
			if hashErr == nil && ok {
				got := cryptoprim.DataKeyHash(buf, hdr.DataKeyHdr)
				if !ctcompare.Equal32(got, pinned) {
					return nil, verrors.New(verrors.KindVblockDevKeyHash, "developer data key hash mismatch")
				}
			}
		}
	}

	// Step 8: record "kernel signed" only if nothing above downgraded it.
	res.Signed = signed
	if signed {
		ctx.Shared.KernelSigned = true
	}
	return res, nil
}

// checkModeFlags validates keyblock_flags against the current developer/
// recovery switch state (spec §6 flag bits: developer-0 0x1, developer-1
// 0x2, recovery-0 0x4, recovery-1 0x8). The "-0"/"-1" suffixes mean "allowed
// when the corresponding switch is off/on"; both the developer-appropriate
// bit and the recovery-appropriate bit must be set (spec §4.3 step 5: "the
// appropriate developer-N and recovery-N bits must be set").
func checkModeFlags(flags uint32, developer, recovery bool) (bool, verrors.Kind) {
	devBit := cryptoprim.KeyblockDeveloper0
	if developer {
		devBit = cryptoprim.KeyblockDeveloper1
	}
	recBit := cryptoprim.KeyblockRecovery0
	if recovery {
		recBit = cryptoprim.KeyblockRecovery1
	}
	if flags&devBit == 0 {
		return false, verrors.KindKeyblockDevFlag
	}
	if flags&recBit == 0 {
		return false, verrors.KindKeyblockRecFlag
	}
	return true, ""
}
