package cryptoprim

import (
	"bytes"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/binary"

	"github.com/chromiumboot/vbkernel/verrors"
)

// Keyblock flag bits (spec §6, bit-exact).
const (
	KeyblockDeveloper0 uint32 = 0x1
	KeyblockDeveloper1 uint32 = 0x2
	KeyblockRecovery0  uint32 = 0x4
	KeyblockRecovery1  uint32 = 0x8
)

var keyblockMagic = [8]byte{'V', 'B', 'L', 'O', 'C', 'K', 0, 0}

// SigDescriptor locates a detached signature or hash within the signed
// payload that follows a header, mirroring the teacher's AvbVBMetaImageHeader
// hash/signature offset+size pairs.
type SigDescriptor struct {
	Algorithm uint32
	Size      uint32
	Offset    uint32
}

// KeyblockHeader is the fixed portion of a Keyblock (spec §3). The embedded
// data key's own header follows at a fixed offset; its key material, and the
// keyblock's signature/hash bytes, live in the variable-length payload after
// KeyblockHeader.
type KeyblockHeader struct {
	Magic         [8]byte
	KeyblockSize  uint64
	Signature     SigDescriptor
	Hash          SigDescriptor
	KeyblockFlags uint32
	DataKeyHdr    PackedKeyHeader
}

const keyblockHeaderSize = 8 + 8 + 12 + 12 + 4 + packedKeyHeaderSize

// ParseKeyblockHeader decodes the fixed header at offset 0 of buf.
func ParseKeyblockHeader(buf []byte) (KeyblockHeader, error) {
	var hdr KeyblockHeader
	if len(buf) < keyblockHeaderSize {
		return hdr, verrors.New(verrors.KindVblockKeyblockHash, "buffer too small for keyblock header")
	}
	if err := binary.Read(bytes.NewReader(buf[:keyblockHeaderSize]), binary.LittleEndian, &hdr); err != nil {
		return hdr, verrors.Wrap(verrors.KindVblockKeyblockHash, "decoding keyblock header", err)
	}
	if hdr.Magic != keyblockMagic {
		return hdr, verrors.New(verrors.KindVblockKeyblockHash, "bad keyblock magic")
	}
	return hdr, nil
}

// signedRegion is buf from offset 0 (the fixed header, including the flags
// field and the data key header, is part of the signed region) up to the
// declared KeyblockSize, clamped to len(buf). signedRegionExcludingSig then
// cuts off the signature/hash bytes themselves.
func signedRegion(buf []byte, hdr KeyblockHeader) []byte {
	end := uint64(hdr.KeyblockSize)
	if end > uint64(len(buf)) {
		end = uint64(len(buf))
	}
	return buf[:end]
}

// VerifyKeyblockSignature verifies the keyblock's RSA signature under
// subkey. The signed payload covers everything up to (but not including)
// the detached signature bytes themselves.
func VerifyKeyblockSignature(buf []byte, hdr KeyblockHeader, subkey *PackedKey) error {
	sigEnd := uint64(hdr.Signature.Offset) + uint64(hdr.Signature.Size)
	if sigEnd > uint64(len(buf)) {
		return verrors.New(verrors.KindVblockKeyblockSig, "signature descriptor out of range")
	}
	sig := buf[hdr.Signature.Offset:sigEnd]
	signed := signedRegionExcludingSig(buf, hdr)

	pub, err := subkey.rsaPublicKey()
	if err != nil {
		return verrors.Wrap(verrors.KindVblockKeyblockSig, "parsing subkey", err)
	}
	digest := sha256.Sum256(signed)
	if err := rsa.VerifyPKCS1v15(pub, 0, digest[:], sig); err != nil {
		return verrors.Wrap(verrors.KindVblockKeyblockSig, "RSA signature check failed", err)
	}
	_ = subkey.HWCrypto // hardware offload would be dispatched here; behavior is identical either way (spec §5)
	return nil
}

// VerifyKeyblockHash verifies the keyblock's plain SHA-256 hash (the
// self-signed / unsigned fallback path, spec §4.3 step 4).
func VerifyKeyblockHash(buf []byte, hdr KeyblockHeader) error {
	hashEnd := uint64(hdr.Hash.Offset) + uint64(hdr.Hash.Size)
	if hashEnd > uint64(len(buf)) || hdr.Hash.Size != sha256.Size {
		return verrors.New(verrors.KindVblockKeyblockHash, "hash descriptor out of range")
	}
	want := buf[hdr.Hash.Offset:hashEnd]
	signed := signedRegionExcludingSig(buf, hdr)
	got := sha256.Sum256(signed)
	if !bytes.Equal(got[:], want) {
		return verrors.New(verrors.KindVblockKeyblockHash, "keyblock hash mismatch")
	}
	return nil
}

// signedRegionExcludingSig is signedRegion with the trailing detached
// signature/hash bytes carved out, since those aren't part of what they
// themselves cover.
func signedRegionExcludingSig(buf []byte, hdr KeyblockHeader) []byte {
	region := signedRegion(buf, hdr)
	cut := len(region)
	if int(hdr.Signature.Offset) < cut && hdr.Signature.Offset != 0 {
		cut = int(hdr.Signature.Offset)
	}
	if hdr.Hash.Offset != 0 && int(hdr.Hash.Offset) < cut {
		cut = int(hdr.Hash.Offset)
	}
	return region[:cut]
}

// KeyblockDataKey unpacks the embedded data key from the keyblock buffer.
func KeyblockDataKey(buf []byte, hdr KeyblockHeader, hwCryptoAllowed bool) (*PackedKey, error) {
	end := uint64(hdr.DataKeyHdr.KeyOffset) + uint64(hdr.DataKeyHdr.KeySize)
	if end > uint64(len(buf)) {
		return nil, verrors.New(verrors.KindPackedKeyRange, "data key offset/size out of range")
	}
	return &PackedKey{
		Header:   hdr.DataKeyHdr,
		Material: buf[hdr.DataKeyHdr.KeyOffset:end],
		HWCrypto: hwCryptoAllowed,
	}, nil
}
