package wire

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRoundTrip(t *testing.T) {
	body := []byte(`{"userId":1}`)
	raw, err := Build(1, FlagGunzip, body)
	require.NoError(t, err)

	p, err := Parse(raw)
	require.NoError(t, err)
	require.Equal(t, byte(1), p.RequestType)
	require.Equal(t, FlagGunzip, p.Flags)
	require.Equal(t, body, p.Body)
}

func TestParseEmptyBody(t *testing.T) {
	raw, err := Build(0, 0, nil)
	require.NoError(t, err)
	p, err := Parse(raw)
	require.NoError(t, err)
	require.Empty(t, p.Body)
}

func TestParseBadMagic(t *testing.T) {
	raw := []byte{'x', 'y', 7, 0, 0, 0, 0}
	_, err := Parse(raw)
	require.ErrorIs(t, err, ErrBadMagic)
}

func TestParseBadHeaderLen(t *testing.T) {
	for _, hl := range []byte{6, 8} {
		raw := []byte{'t', 'z', hl, 0, 0, 0, 0}
		_, err := Parse(raw)
		require.ErrorIs(t, err, ErrBadHeaderLen)
	}
}

func TestParseContentLenOverrun(t *testing.T) {
	raw := []byte{'t', 'z', 7, 0, 0, 0, 10} // claims 10 bytes body, has 0
	_, err := Parse(raw)
	require.ErrorIs(t, err, ErrBadContentLen)
}

func TestParseReservedBits(t *testing.T) {
	raw := []byte{'t', 'z', 7, 0, 0x10, 0, 0}
	_, err := Parse(raw)
	require.ErrorIs(t, err, ErrReservedBits)
}

func TestParseDualAEAD(t *testing.T) {
	raw := []byte{'t', 'z', 7, 0, byte(FlagAESGCM | FlagChaChaPoly), 0, 0}
	_, err := Parse(raw)
	require.ErrorIs(t, err, ErrDualAEAD)
}

func TestBuildRejectsOversizedBody(t *testing.T) {
	_, err := Build(0, 0, make([]byte, MaxBodyLen+1))
	require.ErrorIs(t, err, ErrBodyTooLarge)
}

func TestHeaderIsAAD(t *testing.T) {
	p := Packet{RequestType: 4, Flags: FlagAESGCM, Body: []byte("hello")}
	h := p.Header()
	require.Len(t, h, HeaderLen)
	require.Equal(t, byte('t'), h[0])
	require.Equal(t, byte('z'), h[1])
	require.Equal(t, byte(HeaderLen), h[2])
}
