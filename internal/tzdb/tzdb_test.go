package tzdb

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNormalize(t *testing.T) {
	require.Equal(t, "America/New_York", Normalize("America/New York"))
	require.Equal(t, "Europe/London", Normalize("Europe/London"))
}

func TestValid(t *testing.T) {
	require.True(t, Valid("America/New_York"))
	require.True(t, Valid("America/New York"))
	require.True(t, Valid("UTC"))
	require.False(t, Valid("Not/AZone"))
	require.False(t, Valid("Local"))
	require.False(t, Valid(""))
}

func TestLoad(t *testing.T) {
	loc, err := Load("Europe/London")
	require.NoError(t, err)
	require.Equal(t, "Europe/London", loc.String())
}
