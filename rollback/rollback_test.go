package rollback_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/chromiumboot/vbkernel/rollback"
)

func TestComposite(t *testing.T) {
	require.Equal(t, uint32(0x0002_0003), rollback.Composite(2, 3))
	require.Equal(t, uint32(2), rollback.UpperHalf(0x0002_0003))
	require.Equal(t, uint32(3), rollback.LowerHalf(0x0002_0003))
}

func TestCompositeMasksKernelVersion(t *testing.T) {
	// kernel_version above 0xFFFF is masked away, not an error at this layer
	// (InRange16 is the explicit guard callers use before trusting it).
	require.Equal(t, uint32(0x0001_0000), rollback.Composite(1, 0x1_0000))
}

func TestInRange16(t *testing.T) {
	require.True(t, rollback.InRange16(0xFFFF))
	require.False(t, rollback.InRange16(0x10000))
}

func TestKeyRollback(t *testing.T) {
	secured := rollback.Composite(5, 10)
	require.True(t, rollback.KeyRollback(4, secured))
	require.False(t, rollback.KeyRollback(5, secured))
	require.False(t, rollback.KeyRollback(6, secured))
}

func TestCompositeRollback(t *testing.T) {
	secured := rollback.Composite(5, 10)
	require.True(t, rollback.CompositeRollback(rollback.Composite(5, 9), secured))
	require.False(t, rollback.CompositeRollback(rollback.Composite(5, 10), secured))
	require.False(t, rollback.CompositeRollback(rollback.Composite(5, 11), secured))
	require.False(t, rollback.CompositeRollback(rollback.Composite(6, 0), secured))
}

func TestSentinelUnset(t *testing.T) {
	require.Equal(t, uint32(0xFFFFFFFF), rollback.SentinelUnset)
}
