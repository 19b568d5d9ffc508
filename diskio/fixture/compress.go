package fixture

import (
	"bytes"
	"fmt"
	"io"

	"github.com/pierrec/lz4/v4"
	"github.com/ulikunitz/xz"
)

// CompressionFormat names a body-blob compression scheme a fixture can
// apply to the bootloader payload before embedding it, mirroring the
// teacher's compress.go Encoder/Decoder split (format_t-driven dispatch)
// generalized from boot-image ramdisk compression to bootloader-blob
// compression.
type CompressionFormat int

const (
	FormatNone CompressionFormat = iota
	FormatXZ
	FormatLZ4
)

// CompressBootloader compresses data with format, for tests that want to
// exercise a realistic compressed-bootloader-blob fixture; the scanner
// itself never decompresses anything (compression is fixture-only, spec
// §1 Non-goals: bootloader content is opaque past its address/size).
func CompressBootloader(format CompressionFormat, data []byte) ([]byte, error) {
	switch format {
	case FormatNone:
		return data, nil
	case FormatXZ:
		var buf bytes.Buffer
		w, err := xz.NewWriter(&buf)
		if err != nil {
			return nil, fmt.Errorf("fixture: xz writer: %w", err)
		}
		if _, err := w.Write(data); err != nil {
			return nil, fmt.Errorf("fixture: xz compress: %w", err)
		}
		if err := w.Close(); err != nil {
			return nil, fmt.Errorf("fixture: xz close: %w", err)
		}
		return buf.Bytes(), nil
	case FormatLZ4:
		var buf bytes.Buffer
		w := lz4.NewWriter(&buf)
		if _, err := w.Write(data); err != nil {
			return nil, fmt.Errorf("fixture: lz4 compress: %w", err)
		}
		if err := w.Close(); err != nil {
			return nil, fmt.Errorf("fixture: lz4 close: %w", err)
		}
		return buf.Bytes(), nil
	default:
		return nil, fmt.Errorf("fixture: unknown compression format %d", format)
	}
}

// DecompressBootloader is CompressBootloader's inverse, used by tests that
// assert round-trip fidelity of a compressed fixture blob.
func DecompressBootloader(format CompressionFormat, data []byte) ([]byte, error) {
	switch format {
	case FormatNone:
		return data, nil
	case FormatXZ:
		r, err := xz.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("fixture: xz reader: %w", err)
		}
		return io.ReadAll(r)
	case FormatLZ4:
		r := lz4.NewReader(bytes.NewReader(data))
		return io.ReadAll(r)
	default:
		return nil, fmt.Errorf("fixture: unknown compression format %d", format)
	}
}
