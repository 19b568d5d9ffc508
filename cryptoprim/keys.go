// Package cryptoprim models the packed-key/keyblock/preamble wire formats
// and the signature/hash primitives the pipeline verifies against them.
// spec.md marks the actual RSA/SHA primitives out of scope (external
// collaborators); this package supplies a concrete stdlib-backed
// implementation so the rest of the module has something real to verify
// against in tests, while keeping the wire layout and dispatch shape the
// spec actually cares about (Packed Key / Keyblock / Preamble headers,
// Algorithm tagged variant).
//
// The struct layouts are grounded in the teacher's AVB structures
// (bootimg.go: AvbVBMetaImageHeader / AvbFooter) — a signed header carrying
// algorithm tag, hash/signature/key offsets+sizes, and a rollback index —
// generalized to spec.md's Packed Key / Keyblock / Preamble shapes.
package cryptoprim

import (
	"bytes"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/binary"
	"fmt"

	"github.com/chromiumboot/vbkernel/verrors"
)

// Algorithm is the packed-key algorithm tag. Dispatch on it is a switch over
// a closed set (spec Design Notes §9: "model as a tagged variant ... not
// runtime polymorphism over an open class"), deliberately not the teacher's
// DynImgHdrInterface-style open interface.
type Algorithm uint32

const (
	AlgInvalid        Algorithm = 0
	AlgRSA2048SHA256   Algorithm = 1
	AlgRSA4096SHA256   Algorithm = 2
	AlgRSA8192SHA256   Algorithm = 3
)

func (a Algorithm) String() string {
	switch a {
	case AlgRSA2048SHA256:
		return "rsa2048-sha256"
	case AlgRSA4096SHA256:
		return "rsa4096-sha256"
	case AlgRSA8192SHA256:
		return "rsa8192-sha256"
	default:
		return "invalid"
	}
}

func (a Algorithm) valid() bool {
	switch a {
	case AlgRSA2048SHA256, AlgRSA4096SHA256, AlgRSA8192SHA256:
		return true
	default:
		return false
	}
}

// PackedKeyHeader is the fixed header preceding algorithm-specific key
// material (spec §3 "Packed Key"). KeyVersion and KeySize/KeyOffset are kept
// as 32-bit wire fields (matching vboot_reference's on-disk vb2_packed_key)
// even though the spec's invariant bounds KeyVersion to 0xFFFF — that bound
// is an explicit runtime check (see verify.KeyblockVerify), not a consequence of the
// wire field's width.
type PackedKeyHeader struct {
	Algorithm  uint32
	KeyVersion uint32
	KeySize    uint32
	KeyOffset  uint32
}

const packedKeyHeaderSize = 16

// PackedKey is an unpacked key ready for use by the verifier: the header,
// the raw key material, and whether hardware-crypto offload is available
// for operations against it (spec §5: "an orthogonal capability flag passed
// down into each unpacked key; it affects the primitive used but not the
// algorithm's observable behavior").
type PackedKey struct {
	Header   PackedKeyHeader
	Material []byte // raw algorithm-specific bytes, length == Header.KeySize
	HWCrypto bool

	rsaPub *rsa.PublicKey // lazily parsed
}

// UnpackKey parses a packed key from buf at offset 0 and validates the
// invariant key_offset+key_size ⊆ buf (spec §3).
func UnpackKey(buf []byte, hwCryptoAllowed bool) (*PackedKey, error) {
	if len(buf) < packedKeyHeaderSize {
		return nil, verrors.New(verrors.KindPackedKeyRange, "buffer too small for packed key header")
	}
	var hdr PackedKeyHeader
	if err := binary.Read(bytes.NewReader(buf[:packedKeyHeaderSize]), binary.LittleEndian, &hdr); err != nil {
		return nil, verrors.Wrap(verrors.KindPackedKeyRange, "decoding packed key header", err)
	}
	if !Algorithm(hdr.Algorithm).valid() {
		return nil, verrors.New(verrors.KindPackedKeyRange, fmt.Sprintf("unsupported algorithm %d", hdr.Algorithm))
	}
	end := uint64(hdr.KeyOffset) + uint64(hdr.KeySize)
	if end > uint64(len(buf)) {
		return nil, verrors.New(verrors.KindPackedKeyRange, "key_offset+key_size exceeds buffer")
	}
	k := &PackedKey{
		Header:   hdr,
		Material: buf[hdr.KeyOffset:end],
		HWCrypto: hwCryptoAllowed,
	}
	return k, nil
}

// rsaPublicKey lazily parses Material as a PKIX-encoded RSA public key. Real
// vboot_reference packs raw RSA moduli/exponents in a custom binary layout;
// this module uses the stdlib x509 PKIX encoding instead so the primitive is
// exercised with real crypto/rsa verification rather than a hand-rolled
// modular-exponentiation routine.
func (k *PackedKey) rsaPublicKey() (*rsa.PublicKey, error) {
	if k.rsaPub != nil {
		return k.rsaPub, nil
	}
	pub, err := x509.ParsePKIXPublicKey(k.Material)
	if err != nil {
		return nil, fmt.Errorf("cryptoprim: parsing packed key material: %w", err)
	}
	rsaPub, ok := pub.(*rsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("cryptoprim: packed key material is not an RSA public key")
	}
	k.rsaPub = rsaPub
	return rsaPub, nil
}

// DataKeyHash returns the 256-bit hash of the raw key material located at
// the header's declared offset/size within keyBuf, for the developer
// key-hash check (spec §4.3 step 7, §4.10).
func DataKeyHash(keyBuf []byte, hdr PackedKeyHeader) [32]byte {
	end := uint64(hdr.KeyOffset) + uint64(hdr.KeySize)
	return sha256.Sum256(keyBuf[hdr.KeyOffset:end])
}
