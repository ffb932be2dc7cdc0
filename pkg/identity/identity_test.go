package identity

import (
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNodeID(t *testing.T) {
	mac, err := net.ParseMAC("A4:CF:12:00:0B:22")
	require.NoError(t, err)
	assert.Equal(t, "a4cf12000b22", NodeID(mac))
}

func TestResolve_Configured(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"A4:CF:12:00:11:22", "a4cf12001122", false},
		{"a4-cf-12-00-11-22", "a4cf12001122", false},
		{"a4cf.1200.1122", "a4cf12001122", false},
		{"a4cf12001122", "", true},
		{"zz:cf:12:00:11:22", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := Resolve(tt.in, "ignored0")
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestResolve_UnknownInterface(t *testing.T) {
	_, err := Resolve("", "does-not-exist0")
	assert.Error(t, err)
}

func TestPick(t *testing.T) {
	lo := net.Interface{Name: "lo", Flags: net.FlagUp | net.FlagLoopback, HardwareAddr: net.HardwareAddr{1, 2, 3, 4, 5, 6}}
	down := net.Interface{Name: "eth1", HardwareAddr: net.HardwareAddr{2, 2, 2, 2, 2, 2}}
	tun := net.Interface{Name: "tun0", Flags: net.FlagUp}
	eth := net.Interface{Name: "eth0", Flags: net.FlagUp, HardwareAddr: net.HardwareAddr{0xa4, 0xcf, 0x12, 0, 0x11, 0x22}}

	mac, err := pick([]net.Interface{lo, down, tun, eth})
	require.NoError(t, err)
	assert.Equal(t, "a4cf12001122", NodeID(mac))

	_, err = pick([]net.Interface{lo, down, tun})
	assert.ErrorIs(t, err, ErrNoHardwareAddr)
}
