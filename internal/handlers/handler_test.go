package handlers

import (
	"context"
	"database/sql"
	"net"
	"path/filepath"
	"testing"

	_ "modernc.org/sqlite"

	"github.com/Restitutor/DiscordTZ/internal/crypto"
	"github.com/Restitutor/DiscordTZ/internal/linkcode"
	"github.com/Restitutor/DiscordTZ/internal/store"
	"github.com/Restitutor/DiscordTZ/internal/transport"
	"github.com/Restitutor/DiscordTZ/internal/vault"
	"github.com/Restitutor/DiscordTZ/internal/wire"
	"github.com/stretchr/testify/require"
)

type fakeClient struct {
	flags wire.Flags
	addr  net.Addr
	sent  []byte
	code  byte
}

func (f *fakeClient) Send(requestType byte, jsonBody []byte) (int, error) {
	f.code = requestType
	f.sent = jsonBody
	return len(jsonBody), nil
}
func (f *fakeClient) Close() error      { return nil }
func (f *fakeClient) Peer() net.Addr    { return f.addr }
func (f *fakeClient) Flags() wire.Flags { return f.flags }

var _ transport.Client = (*fakeClient)(nil)

func testVaultKey() []byte { return make([]byte, 32) }

func newTestServices(t *testing.T) Services {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "p.sqlite3"), "", 0)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	v, err := vault.Open(db)
	require.NoError(t, err)

	return Services{
		Store:     s,
		Vault:     v,
		VaultKey:  testVaultKey(),
		LinkCodes: linkcode.New(),
	}
}

func provisionKey(t *testing.T, svc Services, perms vault.Permission) string {
	t.Helper()
	key := vault.APIKey{Owner: 1, Permissions: perms, ValidUntil: "INFINITE", KeyID: "testkey"}
	envelope, err := vault.Encode(key, svc.VaultKey)
	require.NoError(t, err)
	require.NoError(t, svc.Vault.AddPending(context.Background(), envelope, "msg"))
	require.NoError(t, svc.Vault.Promote(context.Background(), envelope))
	return envelope
}

func publicPeer() net.Addr {
	return &net.TCPAddr{IP: net.ParseIP("8.8.8.8"), Port: 9999}
}

func encryptedFlags() wire.Flags {
	return wire.FlagAESGCM
}

func TestPingHandler(t *testing.T) {
	svc := newTestServices(t)
	client := &fakeClient{flags: 0, addr: publicPeer()}
	ctx := &Context{Client: client, Data: map[string]interface{}{}, Services: svc}
	resp := Ping.Process(ctx)
	require.Equal(t, 200, resp.Code)
	require.Equal(t, "Pong", resp.Message)
}

func TestAPIRequestRejectsMissingKey(t *testing.T) {
	svc := newTestServices(t)
	client := &fakeClient{flags: encryptedFlags(), addr: publicPeer()}
	ctx := &Context{Client: client, Data: map[string]interface{}{"userId": float64(1)}, Services: svc}
	resp := TimezoneByUserId.Process(ctx)
	require.Equal(t, 403, resp.Code)
}

func TestTimezoneByUserIdHappyPath(t *testing.T) {
	svc := newTestServices(t)
	require.NoError(t, svc.Store.SetTimezone(context.Background(), 555, "Europe/Prague", ""))
	envelope := provisionKey(t, svc, vault.DiscordID)

	client := &fakeClient{flags: encryptedFlags(), addr: publicPeer()}
	ctx := &Context{
		Client: client,
		Data:   map[string]interface{}{"userId": float64(555), "apiKey": envelope},
		Services: svc,
	}
	resp := TimezoneByUserId.Process(ctx)
	require.Equal(t, 200, resp.Code)
	require.Equal(t, "Europe/Prague", resp.Message)
}

func TestTimezoneByUserIdNotFound(t *testing.T) {
	svc := newTestServices(t)
	envelope := provisionKey(t, svc, vault.DiscordID)
	client := &fakeClient{flags: encryptedFlags(), addr: publicPeer()}
	ctx := &Context{
		Client:   client,
		Data:     map[string]interface{}{"userId": float64(999), "apiKey": envelope},
		Services: svc,
	}
	resp := TimezoneByUserId.Process(ctx)
	require.Equal(t, 404, resp.Code)
}

func TestUnencryptedRejectedForPublicPeer(t *testing.T) {
	svc := newTestServices(t)
	client := &fakeClient{flags: 0, addr: publicPeer()}
	ctx := &Context{Client: client, Data: map[string]interface{}{"userId": float64(1)}, Services: svc}
	resp := TimezoneByUserId.Process(ctx)
	require.Equal(t, 400, resp.Code)
}

func TestLinkPostHappyPathAndDuplicate(t *testing.T) {
	svc := newTestServices(t)
	envelope := provisionKey(t, svc, vault.UUIDPost)
	uuid := "11111111-2222-3333-4444-555555555555"

	client := &fakeClient{flags: encryptedFlags(), addr: publicPeer()}
	ctx := &Context{
		Client:   client,
		Data:     map[string]interface{}{"uuid": uuid, "timezone": "Europe/Prague", "apiKey": envelope},
		Services: svc,
	}
	resp := LinkPost.Process(ctx)
	require.Equal(t, 200, resp.Code)
	code, ok := resp.Message.(string)
	require.True(t, ok)
	require.Len(t, code, 6)

	ctx2 := &Context{
		Client:   client,
		Data:     map[string]interface{}{"uuid": uuid, "timezone": "Europe/Prague", "apiKey": envelope},
		Services: svc,
	}
	resp2 := LinkPost.Process(ctx2)
	require.Equal(t, 409, resp2.Code)
}

func TestLinkPostInvalidUUID(t *testing.T) {
	svc := newTestServices(t)
	envelope := provisionKey(t, svc, vault.UUIDPost)
	client := &fakeClient{flags: encryptedFlags(), addr: publicPeer()}
	ctx := &Context{
		Client:   client,
		Data:     map[string]interface{}{"uuid": "not-a-uuid", "timezone": "UTC", "apiKey": envelope},
		Services: svc,
	}
	resp := LinkPost.Process(ctx)
	require.Equal(t, 400, resp.Code)
}

func TestGeoGuardNoOpWithoutLocator(t *testing.T) {
	// Services.Geo is nil in these tests (no .mmdb fixture available),
	// so GeoGuard must pass every request through rather than failing
	// closed.
	svc := newTestServices(t)
	client := &fakeClient{flags: 0, addr: publicPeer()}
	ctx := &Context{Client: client, Data: map[string]interface{}{}, Services: svc}
	resp := Ping.Process(ctx)
	require.Equal(t, 200, resp.Code)
}

func TestAESCBCStillUsableByVaultEnvelope(t *testing.T) {
	// sanity: crypto.CBCEncrypt/Decrypt used transitively by vault.Encode/Decode
	ct, err := crypto.CBCEncrypt(testVaultKey(), []byte("hello"))
	require.NoError(t, err)
	pt, err := crypto.CBCDecrypt(testVaultKey(), ct)
	require.NoError(t, err)
	require.Equal(t, "hello", string(pt))
}
