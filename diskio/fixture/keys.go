// Package fixture builds synthetic signed kernel partitions and disk
// images for tests and the CLI's "make-fixture" helper. Nothing here is
// part of the verification pipeline itself; it is the mirror-image
// encoder for cryptoprim/verify/scan's decoders.
package fixture

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/binary"
	"fmt"

	"github.com/chromiumboot/vbkernel/cryptoprim"
)

// Key is a fixture RSA keypair plus its packed-key wire encoding.
type Key struct {
	Private *rsa.PrivateKey
	Version uint32

	packed []byte // PackedKeyHeader + PKIX material
}

// NewKey generates a fresh RSA-2048 keypair and packs it, ready to embed in
// a keyblock or to use as a firmware subkey / recovery key.
func NewKey(version uint32) (*Key, error) {
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		return nil, fmt.Errorf("fixture: generating key: %w", err)
	}
	material, err := x509.MarshalPKIXPublicKey(&priv.PublicKey)
	if err != nil {
		return nil, fmt.Errorf("fixture: marshaling public key: %w", err)
	}

	hdr := cryptoprim.PackedKeyHeader{
		Algorithm:  uint32(cryptoprim.AlgRSA2048SHA256),
		KeyVersion: version,
		KeySize:    uint32(len(material)),
		KeyOffset:  16,
	}
	buf := make([]byte, 16+len(material))
	putPackedKeyHeader(buf, hdr)
	copy(buf[16:], material)

	return &Key{Private: priv, Version: version, packed: buf}, nil
}

// Packed returns the wire-encoded packed key (header + PKIX material).
func (k *Key) Packed() []byte {
	return k.packed
}

// Hash returns the SHA-256 of the packed key's raw material (the bytes after
// its 16-byte header), the value a developer key-hash check compares against.
func (k *Key) Hash() [32]byte {
	return sha256.Sum256(k.packed[16:])
}

func putPackedKeyHeader(buf []byte, hdr cryptoprim.PackedKeyHeader) {
	binary.LittleEndian.PutUint32(buf[0:4], hdr.Algorithm)
	binary.LittleEndian.PutUint32(buf[4:8], hdr.KeyVersion)
	binary.LittleEndian.PutUint32(buf[8:12], hdr.KeySize)
	binary.LittleEndian.PutUint32(buf[12:16], hdr.KeyOffset)
}
