package geoip

import (
	"net"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBlocked(t *testing.T) {
	require.True(t, Blocked("CN"))
	require.True(t, Blocked("TW"))
	require.False(t, Blocked("US"))
}

func TestIsPrivateSubnet(t *testing.T) {
	cases := []struct {
		ip      string
		private bool
	}{
		{"10.0.0.1", true},
		{"172.16.5.5", true},
		{"192.168.1.1", true},
		{"127.0.0.1", true},
		{"169.254.1.1", true},
		{"100.64.0.1", true},
		{"8.8.8.8", false},
		{"1.1.1.1", false},
	}
	for _, c := range cases {
		require.Equal(t, c.private, IsPrivateSubnet(net.ParseIP(c.ip)), c.ip)
	}
}
