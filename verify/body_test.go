package verify_test

import (
	"io"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/chromiumboot/vbkernel/cryptoprim"
	"github.com/chromiumboot/vbkernel/diskio/fixture"
	"github.com/chromiumboot/vbkernel/verify"
)

func mustParsePreamble(t *testing.T, pre []byte) cryptoprim.PreambleHeader {
	t.Helper()
	hdr, err := cryptoprim.ParsePreambleHeader(pre)
	require.NoError(t, err)
	return hdr
}

// chunkReader splits data into fixed-size reads, simulating a streaming
// partition reader that hands back less than the caller asked for.
type chunkReader struct {
	data  []byte
	pos   int
	chunk int
}

func (r *chunkReader) Read(n int, buf []byte) (int, error) {
	if r.pos >= len(r.data) {
		return 0, io.EOF
	}
	want := n
	if want > r.chunk {
		want = r.chunk
	}
	if want > len(buf) {
		want = len(buf)
	}
	avail := len(r.data) - r.pos
	if want > avail {
		want = avail
	}
	copy(buf[:want], r.data[r.pos:r.pos+want])
	r.pos += want
	return want, nil
}

func TestBodyVerifyPrefixOnly(t *testing.T) {
	dataKey, err := fixture.NewKey(1)
	require.NoError(t, err)
	body := make([]byte, 1024)
	for i := range body {
		body[i] = byte(i)
	}
	pre, fullBody, err := fixture.PreambleSpec{DataKey: dataKey, KernelVersion: 1, Body: body}.Build()
	require.NoError(t, err)

	kbSize := uint64(64) // pretend the keyblock occupies the first 64 bytes
	prefix := make([]byte, kbSize)
	prefix = append(prefix, pre...)
	prefix = append(prefix, fullBody...) // whole body already in the "pre-read" prefix

	hdr := mustParsePreamble(t, pre)
	dk := mustUnpack(t, dataKey)

	got, err := verify.BodyVerify(prefix, kbSize, hdr, dk, nil, &chunkReader{})
	require.NoError(t, err)
	require.Equal(t, fullBody, got)
}

func TestBodyVerifyStreamsRemainder(t *testing.T) {
	dataKey, err := fixture.NewKey(1)
	require.NoError(t, err)
	body := make([]byte, 4096)
	for i := range body {
		body[i] = byte(i * 7)
	}
	pre, fullBody, err := fixture.PreambleSpec{DataKey: dataKey, KernelVersion: 1, Body: body}.Build()
	require.NoError(t, err)

	kbSize := uint64(64)
	partial := 100 // only this many body bytes are in the pre-read prefix
	prefix := make([]byte, kbSize)
	prefix = append(prefix, pre...)
	prefix = append(prefix, fullBody[:partial]...)

	hdr := mustParsePreamble(t, pre)
	dk := mustUnpack(t, dataKey)

	rd := &chunkReader{data: fullBody[partial:], chunk: 37}
	got, err := verify.BodyVerify(prefix, kbSize, hdr, dk, nil, rd)
	require.NoError(t, err)
	require.Equal(t, fullBody, got)
}

func TestBodyVerifyRejectsBodyOffsetPastPrefix(t *testing.T) {
	dataKey, err := fixture.NewKey(1)
	require.NoError(t, err)
	pre, _, err := fixture.PreambleSpec{DataKey: dataKey, KernelVersion: 1, Body: []byte("x")}.Build()
	require.NoError(t, err)
	hdr := mustParsePreamble(t, pre)
	dk := mustUnpack(t, dataKey)

	shortPrefix := make([]byte, 4) // far too small to contain keyblock+preamble
	_, err = verify.BodyVerify(shortPrefix, 64, hdr, dk, nil, &chunkReader{})
	require.Error(t, err)
}
