package verify

import (
	"io"

	"github.com/chromiumboot/vbkernel/cryptoprim"
	"github.com/chromiumboot/vbkernel/verrors"
)

// BodyReader pulls additional body bytes directly from the partition
// stream, picking up where the pre-read prefix left off. It is the narrow
// slice of the spec §6 Stream API ("read(stream, nbytes, buf)") that the
// body verifier needs.
type BodyReader interface {
	Read(n int, buf []byte) (int, error)
}

// BodyVerify implements C5 (spec §4.5): given the scanner's pre-read 64 KiB
// prefix (which contains keyblock+preamble+however much of the body fit),
// the preamble's body-signature descriptor, and a stream positioned to
// continue reading the partition past the prefix, assembles the full body
// into dest (or a freshly allocated buffer sized by the signature's
// data_size+sig_size if dest is nil) and verifies it.
//
// keyblockSize + preamble.PreambleSize is the body's byte offset within the
// partition; it must not exceed len(prefix) — the spec explicitly refuses
// arbitrary gaps between preamble and body (BODY_OFFSET).
func BodyVerify(prefix []byte, keyblockSize uint64, preamble cryptoprim.PreambleHeader, dataKey *cryptoprim.PackedKey, dest []byte, rd BodyReader) ([]byte, error) {
	bodyOffset := keyblockSize + preamble.PreambleSize
	if bodyOffset > uint64(len(prefix)) {
		return nil, verrors.New(verrors.KindBodyOffset, "body offset exceeds pre-read prefix")
	}

	total := preamble.Body.DataSize + uint64(preamble.Body.SigSize)
	if dest == nil {
		if total > 1<<32 {
			return nil, verrors.New(verrors.KindBodySize, "declared body size implausibly large")
		}
		dest = make([]byte, total)
	} else if uint64(len(dest)) != total {
		return nil, verrors.New(verrors.KindBodySize, "caller buffer does not match data_size+sig_size")
	}

	already := prefix[bodyOffset:]
	n := copy(dest, already)

	for n < len(dest) {
		want := len(dest) - n
		got, err := rd.Read(want, dest[n:])
		if got > 0 {
			n += got
		}
		if err != nil {
			if err == io.EOF && n == len(dest) {
				break
			}
			return nil, verrors.Wrap(verrors.KindLoadPartitionReadBody, "streaming kernel body", err)
		}
		if got == 0 {
			return nil, verrors.New(verrors.KindLoadPartitionReadBody, "short read streaming kernel body")
		}
	}

	if err := cryptoprim.VerifyBody(dest, preamble.Body, dataKey); err != nil {
		return nil, err
	}
	return dest, nil
}
