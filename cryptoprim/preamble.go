package cryptoprim

import (
	"bytes"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/binary"

	"github.com/chromiumboot/vbkernel/verrors"
)

// BodySignature describes the detached signature over the kernel body,
// carried in the preamble but verified later, against the body itself, by
// VerifyBody (spec §4.5, C5). DataSize is the signed body length — the
// value spec §4.5 calls "the signature's data_size" when sizing the
// destination buffer. The signature bytes themselves are expected
// immediately after the DataSize body bytes on disk.
type BodySignature struct {
	Algorithm uint32
	DataSize  uint64
	SigSize   uint32
}

// PreambleHeader is the Kernel Preamble header (spec §3), laid out
// immediately after the keyblock. Like PackedKeyHeader, KernelVersion is a
// 32-bit wire field whose 0xFFFF bound is an explicit runtime check, not a
// consequence of the field width — grounded in the same
// AvbVBMetaImageHeader-style "rollback index" field the teacher's AVB
// header carries.
type PreambleHeader struct {
	PreambleSize      uint64
	KernelVersion     uint32
	BodyLoadAddress   uint64
	BootloaderAddress uint64
	BootloaderSize    uint32
	Signature         SigDescriptor // the preamble's own signature, under the keyblock's data key
	Body              BodySignature
	Flags             uint32
}

const preambleHeaderSize = 8 + 4 + 8 + 8 + 4 + 12 + (4 + 8 + 4) + 4

// ParsePreambleHeader decodes a preamble header at the start of buf (buf is
// expected to start exactly at the preamble, i.e. keyblock_size bytes into
// the partition).
func ParsePreambleHeader(buf []byte) (PreambleHeader, error) {
	var hdr PreambleHeader
	if len(buf) < preambleHeaderSize {
		return hdr, verrors.New(verrors.KindPreambleSig, "buffer too small for preamble header")
	}
	if err := binary.Read(bytes.NewReader(buf[:preambleHeaderSize]), binary.LittleEndian, &hdr); err != nil {
		return hdr, verrors.Wrap(verrors.KindPreambleSig, "decoding preamble header", err)
	}
	return hdr, nil
}

// VerifyPreambleSignature verifies the preamble's own signed region
// (everything up to PreambleSize, short of the detached signature bytes
// located by hdr.Signature) under the keyblock's data key.
func VerifyPreambleSignature(buf []byte, hdr PreambleHeader, dataKey *PackedKey) error {
	end := uint64(hdr.PreambleSize)
	if end > uint64(len(buf)) {
		return verrors.New(verrors.KindPreambleSig, "preamble_size exceeds buffer")
	}
	sigEnd := uint64(hdr.Signature.Offset) + uint64(hdr.Signature.Size)
	if sigEnd > end {
		return verrors.New(verrors.KindPreambleSig, "preamble signature descriptor out of range")
	}
	signed := buf[:hdr.Signature.Offset]
	sig := buf[hdr.Signature.Offset:sigEnd]

	pub, err := dataKey.rsaPublicKey()
	if err != nil {
		return verrors.Wrap(verrors.KindPreambleSig, "parsing data key", err)
	}
	digest := sha256.Sum256(signed)
	if err := rsa.VerifyPKCS1v15(pub, 0, digest[:], sig); err != nil {
		return verrors.Wrap(verrors.KindPreambleSig, "RSA signature check failed", err)
	}
	return nil
}

// VerifyBody verifies the kernel body bytes against the preamble's body
// signature descriptor under the data key (spec §4.5, C5). body must be
// exactly bodySig.DataSize+bodySig.SigSize bytes: the signed data followed
// by its detached signature.
func VerifyBody(body []byte, bodySig BodySignature, dataKey *PackedKey) error {
	want := bodySig.DataSize + uint64(bodySig.SigSize)
	if uint64(len(body)) != want {
		return verrors.New(verrors.KindLoadPartitionVerifyBody, "body length does not match data_size+sig_size")
	}
	signed := body[:bodySig.DataSize]
	sig := body[bodySig.DataSize:]

	pub, err := dataKey.rsaPublicKey()
	if err != nil {
		return verrors.Wrap(verrors.KindLoadPartitionVerifyBody, "parsing data key", err)
	}
	digest := sha256.Sum256(signed)
	if err := rsa.VerifyPKCS1v15(pub, 0, digest[:], sig); err != nil {
		return verrors.Wrap(verrors.KindLoadPartitionVerifyBody, "body signature mismatch", err)
	}
	return nil
}
