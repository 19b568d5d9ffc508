// Package policy implements the Boot-Mode Resolver (C1) and the Policy
// Oracle (C2): the pure, mode-and-flag-only decisions every other component
// consults before doing any cryptography.
package policy

import "github.com/chromiumboot/vbkernel/bootctx"

// Mode is the resolved boot mode (spec §4.1).
type Mode int

const (
	Normal Mode = iota
	Recovery
	Developer
)

func (m Mode) String() string {
	switch m {
	case Recovery:
		return "recovery"
	case Developer:
		return "developer"
	default:
		return "normal"
	}
}

// Resolve classifies the current boot from context flags. Priority:
// recovery dominates developer dominates normal (spec §4.1) — a platform
// that somehow has both bits set is treated as recovery, never as a
// developer-mode recovery hybrid.
func Resolve(ctx *bootctx.Context) Mode {
	switch {
	case ctx.Flags.Has(bootctx.FlagRecovery):
		return Recovery
	case ctx.Flags.Has(bootctx.FlagDeveloper):
		return Developer
	default:
		return Normal
	}
}

// RequireSigned is the single authoritative predicate for "must the
// keyblock signature verify?" (spec §4.2). The keyblock verifier and the
// preamble verifier take this value (and with it decide whether to call the
// rollback gate) rather than re-deriving it.
//
// True when any of:
//   - mode != Developer (Normal and Recovery both return true; in Recovery
//     verify.KeyblockVerify still accepts a hash-only keyblock as unsigned,
//     and no rollback check is made)
//   - the FWMP flag "enable-official-only" is set
//   - the NV flag "dev-boot-signed-only" is set
func RequireSigned(ctx *bootctx.Context) bool {
	if Resolve(ctx) != Developer {
		return true
	}
	if official, err := ctx.SecureCounter.FWMPFlag("enable-official-only"); err == nil && official {
		return true
	}
	if devSignedOnly, err := ctx.NVStore.Flag("dev-boot-signed-only"); err == nil && devSignedOnly {
		return true
	}
	return false
}
