package fixture

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/binary"
	"fmt"

	"github.com/chromiumboot/vbkernel/cryptoprim"
)

const preambleHeaderSize = 64 // 8+4+8+8+4+12+(4+8+4)+4, mirrors cryptoprim's unexported constant

// PreambleSpec describes the preamble+body a test wants built.
type PreambleSpec struct {
	DataKey           *Key
	KernelVersion     uint32
	BodyLoadAddress   uint64
	BootloaderAddress uint64
	BootloaderSize    uint32
	Flags             uint32
	Body              []byte // the signed kernel body payload (pre-signature)
}

// Build returns the concatenated preamble bytes followed by the full body
// (signed data + detached signature), ready to place immediately after a
// keyblock in a partition image.
func (s PreambleSpec) Build() (preamble []byte, body []byte, err error) {
	sigSize := uint32(256)

	hdr := cryptoprim.PreambleHeader{
		KernelVersion:     s.KernelVersion,
		BodyLoadAddress:   s.BodyLoadAddress,
		BootloaderAddress: s.BootloaderAddress,
		BootloaderSize:    s.BootloaderSize,
		Body: cryptoprim.BodySignature{
			Algorithm: uint32(cryptoprim.AlgRSA2048SHA256),
			DataSize:  uint64(len(s.Body)),
			SigSize:   sigSize,
		},
		Flags: s.Flags,
	}
	hdr.Signature = cryptoprim.SigDescriptor{
		Algorithm: uint32(cryptoprim.AlgRSA2048SHA256),
		Size:      sigSize,
		Offset:    preambleHeaderSize,
	}
	hdr.PreambleSize = uint64(preambleHeaderSize) + uint64(sigSize)

	buf := make([]byte, hdr.PreambleSize)
	putPreambleHeader(buf, hdr)

	signed := buf[:hdr.Signature.Offset]
	digest := sha256.Sum256(signed)
	sig, err := rsa.SignPKCS1v15(rand.Reader, s.DataKey.Private, 0, digest[:])
	if err != nil {
		return nil, nil, fmt.Errorf("fixture: signing preamble: %w", err)
	}
	copy(buf[hdr.Signature.Offset:uint64(hdr.Signature.Offset)+uint64(sigSize)], sig)

	bodyDigest := sha256.Sum256(s.Body)
	bodySig, err := rsa.SignPKCS1v15(rand.Reader, s.DataKey.Private, 0, bodyDigest[:])
	if err != nil {
		return nil, nil, fmt.Errorf("fixture: signing body: %w", err)
	}
	fullBody := make([]byte, len(s.Body)+len(bodySig))
	copy(fullBody, s.Body)
	copy(fullBody[len(s.Body):], bodySig)

	return buf, fullBody, nil
}

func putPreambleHeader(buf []byte, hdr cryptoprim.PreambleHeader) {
	binary.LittleEndian.PutUint64(buf[0:8], hdr.PreambleSize)
	binary.LittleEndian.PutUint32(buf[8:12], hdr.KernelVersion)
	binary.LittleEndian.PutUint64(buf[12:20], hdr.BodyLoadAddress)
	binary.LittleEndian.PutUint64(buf[20:28], hdr.BootloaderAddress)
	binary.LittleEndian.PutUint32(buf[28:32], hdr.BootloaderSize)
	putSigDescriptor(buf[32:44], hdr.Signature)
	binary.LittleEndian.PutUint32(buf[44:48], hdr.Body.Algorithm)
	binary.LittleEndian.PutUint64(buf[48:56], hdr.Body.DataSize)
	binary.LittleEndian.PutUint32(buf[56:60], hdr.Body.SigSize)
	binary.LittleEndian.PutUint32(buf[60:64], hdr.Flags)
}
