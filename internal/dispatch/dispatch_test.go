package dispatch

import (
	"net"
	"testing"

	"github.com/Restitutor/DiscordTZ/internal/handlers"
	"github.com/Restitutor/DiscordTZ/internal/wire"
	"github.com/stretchr/testify/require"
)

type fakeClient struct{ addr net.Addr }

func (f *fakeClient) Send(byte, []byte) (int, error) { return 0, nil }
func (f *fakeClient) Close() error                   { return nil }
func (f *fakeClient) Peer() net.Addr                 { return f.addr }
func (f *fakeClient) Flags() wire.Flags              { return 0 }

func TestLookupKnownTypes(t *testing.T) {
	for _, rt := range []byte{0, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13} {
		_, ok := Lookup(rt)
		require.True(t, ok, "request type %d should be registered", rt)
	}
}

func TestLookupUnknownType(t *testing.T) {
	_, ok := Lookup(200)
	require.False(t, ok)
}

func TestDispatchUnknownTypeIsBadRequest(t *testing.T) {
	client := &fakeClient{addr: &net.TCPAddr{IP: net.ParseIP("203.0.113.1")}}
	ctx := &handlers.Context{Client: client, Data: map[string]interface{}{}}
	resp := Dispatch(250, ctx)
	require.Equal(t, 400, resp.Code)
}

func TestDispatchPing(t *testing.T) {
	client := &fakeClient{addr: &net.TCPAddr{IP: net.ParseIP("203.0.113.1")}}
	ctx := &handlers.Context{Client: client, Data: map[string]interface{}{}}
	resp := Dispatch(0, ctx)
	require.Equal(t, 200, resp.Code)
	require.Equal(t, "Pong", resp.Message)
}
