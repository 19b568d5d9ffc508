package fixture

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/binary"
	"fmt"

	"github.com/chromiumboot/vbkernel/cryptoprim"
)

const keyblockHeaderSize = 60 // 8 + 8 + 12 + 12 + 4 + 16, mirrors cryptoprim's unexported constant

// KeyblockSpec describes the keyblock a test wants built: which subkey
// signs it (or nil for an unsigned/hash-only keyblock), the embedded data
// key, and the flag bits to carry.
type KeyblockSpec struct {
	Subkey  *Key // nil builds a keyblock with no valid signature, hash only
	DataKey *Key
	Flags   uint32
}

// BuildKeyblock serializes hdr fields, the data key material, and both a
// real RSA-PKCS1v15 signature (if Subkey is set) and a real SHA-256 hash
// over the signed region, exactly mirroring cryptoprim's parse/verify
// layout so the two are inverses of each other.
func BuildKeyblock(spec KeyblockSpec) ([]byte, error) {
	material := spec.DataKey.Packed()[16:] // strip the packed-key's own header; keyblock carries its own
	dataKeyOffset := uint32(keyblockHeaderSize)
	dataKeyHdr := cryptoprim.PackedKeyHeader{
		Algorithm:  uint32(cryptoprim.AlgRSA2048SHA256),
		KeyVersion: spec.DataKey.Version,
		KeySize:    uint32(len(material)),
		KeyOffset:  dataKeyOffset,
	}

	sigSize := uint32(256) // RSA-2048 PKCS1v15 signature size
	hashSize := uint32(sha256.Size)

	sigOffset := dataKeyOffset + dataKeyHdr.KeySize
	hashOffset := sigOffset + sigSize
	total := hashOffset + hashSize

	buf := make([]byte, total)
	hdr := cryptoprim.KeyblockHeader{
		KeyblockSize:  uint64(total),
		Signature:     cryptoprim.SigDescriptor{Algorithm: uint32(cryptoprim.AlgRSA2048SHA256), Size: sigSize, Offset: sigOffset},
		Hash:          cryptoprim.SigDescriptor{Algorithm: uint32(cryptoprim.AlgRSA2048SHA256), Size: hashSize, Offset: hashOffset},
		KeyblockFlags: spec.Flags,
		DataKeyHdr:    dataKeyHdr,
	}
	copy(hdr.Magic[:], "VBLOCK\x00\x00")
	putKeyblockHeader(buf, hdr)
	copy(buf[dataKeyOffset:sigOffset], material)

	signed := buf[:sigOffset] // everything short of the sig/hash bytes themselves

	h := sha256.Sum256(signed)
	copy(buf[hashOffset:hashOffset+hashSize], h[:])

	if spec.Subkey != nil {
		sig, err := rsa.SignPKCS1v15(rand.Reader, spec.Subkey.Private, 0, h[:])
		if err != nil {
			return nil, fmt.Errorf("fixture: signing keyblock: %w", err)
		}
		copy(buf[sigOffset:sigOffset+sigSize], sig)
	}

	return buf, nil
}

func putKeyblockHeader(buf []byte, hdr cryptoprim.KeyblockHeader) {
	copy(buf[0:8], hdr.Magic[:])
	binary.LittleEndian.PutUint64(buf[8:16], hdr.KeyblockSize)
	putSigDescriptor(buf[16:28], hdr.Signature)
	putSigDescriptor(buf[28:40], hdr.Hash)
	binary.LittleEndian.PutUint32(buf[40:44], hdr.KeyblockFlags)
	putPackedKeyHeader(buf[44:60], hdr.DataKeyHdr)
}

func putSigDescriptor(buf []byte, d cryptoprim.SigDescriptor) {
	binary.LittleEndian.PutUint32(buf[0:4], d.Algorithm)
	binary.LittleEndian.PutUint32(buf[4:8], d.Size)
	binary.LittleEndian.PutUint32(buf[8:12], d.Offset)
}
