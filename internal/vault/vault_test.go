package vault

import (
	"context"
	"database/sql"
	"testing"

	_ "modernc.org/sqlite"

	"github.com/stretchr/testify/require"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func testKey() []byte {
	return make([]byte, 32)
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	key := APIKey{Owner: 12345, Permissions: DiscordID | MinecraftUUID, ValidUntil: "INFINITE", KeyID: "abc123"}
	envelope, err := Encode(key, testKey())
	require.NoError(t, err)

	decoded, err := Decode(envelope, testKey())
	require.NoError(t, err)
	require.Equal(t, key, decoded)
}

func TestHasPermissions(t *testing.T) {
	key := APIKey{Permissions: DiscordID | UUIDPost}
	require.True(t, key.HasPermissions(DiscordID))
	require.True(t, key.HasPermissions(DiscordID|UUIDPost))
	require.False(t, key.HasPermissions(IPAddress))
}

func TestPendingPromoteApprove(t *testing.T) {
	v, err := Open(openTestDB(t))
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, v.AddPending(ctx, "env-1", "msg-1"))

	envelope, err := v.ByMsgID(ctx, "msg-1")
	require.NoError(t, err)
	require.Equal(t, "env-1", envelope)

	valid, err := v.IsValid(ctx, "env-1")
	require.NoError(t, err)
	require.False(t, valid)

	require.NoError(t, v.Promote(ctx, "env-1"))

	valid, err = v.IsValid(ctx, "env-1")
	require.NoError(t, err)
	require.True(t, valid)

	_, err = v.ByMsgID(ctx, "msg-1")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestDrop(t *testing.T) {
	v, err := Open(openTestDB(t))
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, v.AddPending(ctx, "env-2", "msg-2"))
	require.NoError(t, v.Drop(ctx, "env-2"))

	_, err = v.ByMsgID(ctx, "msg-2")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestPromoteMissingPending(t *testing.T) {
	v, err := Open(openTestDB(t))
	require.NoError(t, err)
	require.ErrorIs(t, v.Promote(context.Background(), "nope"), ErrNotFound)
}
