package scan

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExpandCIDR(t *testing.T) {
	tests := []struct {
		name    string
		cidr    string
		max     int
		want    int
		wantErr bool
	}{
		{name: "slash 24 skips network and broadcast", cidr: "192.168.1.0/24", max: 1024, want: 254},
		{name: "slash 28 keeps all addresses", cidr: "10.0.0.0/28", max: 1024, want: 16},
		{name: "single ip", cidr: "10.0.0.5", max: 1024, want: 1},
		{name: "over host cap", cidr: "10.0.0.0/16", max: 1024, wantErr: true},
		{name: "garbage", cidr: "not-an-ip", max: 1024, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ips, err := ExpandCIDR(tt.cidr, tt.max)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Len(t, ips, tt.want)
		})
	}
}

func TestExpandCIDRBounds(t *testing.T) {
	ips, err := ExpandCIDR("192.168.1.0/24", 1024)
	require.NoError(t, err)

	assert.Equal(t, "192.168.1.1", ips[0], "network address skipped")
	assert.Equal(t, "192.168.1.254", ips[len(ips)-1], "broadcast address skipped")
}

func TestExpandCIDRRejectsIPv6(t *testing.T) {
	_, err := ExpandCIDR("2001:db8::/64", 1024)
	require.Error(t, err)
}
