package linkcode

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestCreateAndClaim(t *testing.T) {
	r := New()
	code, err := r.Create("11111111-2222-3333-4444-555555555555", "America/New_York")
	require.NoError(t, err)
	require.Len(t, code, codeLen)

	e, ok := r.Claim(code)
	require.True(t, ok)
	require.Equal(t, "America/New_York", e.Timezone)

	_, ok = r.Claim(code)
	require.False(t, ok, "a claimed code cannot be claimed twice")
}

func TestDuplicatePendingUUID(t *testing.T) {
	r := New()
	uuid := "11111111-2222-3333-4444-555555555555"
	_, err := r.Create(uuid, "Europe/London")
	require.NoError(t, err)

	_, err = r.Create(uuid, "Europe/London")
	require.ErrorIs(t, err, ErrUUIDPending)
}

func TestExpiry(t *testing.T) {
	r := NewWithTTL(20 * time.Millisecond)
	code, err := r.Create("11111111-2222-3333-4444-555555555555", "UTC")
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		_, ok := r.Claim(code)
		return !ok
	}, time.Second, 5*time.Millisecond)

	require.Equal(t, 0, r.Len())
}

func TestPending(t *testing.T) {
	r := New()
	uuid := "11111111-2222-3333-4444-555555555555"
	require.False(t, r.Pending(uuid))
	_, err := r.Create(uuid, "UTC")
	require.NoError(t, err)
	require.True(t, r.Pending(uuid))
}
