package supervisor

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScanCollectsRepliesWithinTheWindow(t *testing.T) {
	// GIVEN a fake device listening on loopback
	deviceConn, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.ParseIP("127.0.0.1")})
	require.NoError(t, err)
	defer func() {
		_ = deviceConn.Close()
	}()
	devicePort := deviceConn.LocalAddr().(*net.UDPAddr).Port

	go func() {
		buffer := make([]byte, 512)
		_, source, err := deviceConn.ReadFromUDP(buffer)
		if err != nil {
			return
		}
		// replies go back to the probe's source address
		_, _ = deviceConn.WriteToUDP([]byte("A|CT|"+leftMac+"|N|60001|60002|v2.7"), source)
		_, _ = deviceConn.WriteToUDP([]byte("B|CT|"+rightMac+"|N|v1.1"), source)
	}()

	config := createTestConfig()
	config.Network.ListenerPort = 0
	config.Network.BroadcastAddress = "127.0.0.1"
	config.Network.BroadcastPort = devicePort

	// WHEN
	discoveries, err := Scan(config, 300*time.Millisecond)

	// THEN both devices are reported, ordered by MAC
	assert.NoError(t, err)
	require.Len(t, discoveries, 2)

	assert.Equal(t, leftMac, discoveries[0].Mac)
	assert.False(t, discoveries[0].Bootloader)
	assert.Equal(t, 60002, discoveries[0].MosiPort)
	assert.Equal(t, "v2.7", discoveries[0].Version)
	assert.Equal(t, "127.0.0.1", discoveries[0].IP)

	assert.Equal(t, rightMac, discoveries[1].Mac)
	assert.True(t, discoveries[1].Bootloader)
	assert.Equal(t, "v1.1", discoveries[1].Version)
}

func TestScanIgnoresForeignReplies(t *testing.T) {
	// GIVEN a fake device from another fleet
	deviceConn, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.ParseIP("127.0.0.1")})
	require.NoError(t, err)
	defer func() {
		_ = deviceConn.Close()
	}()
	devicePort := deviceConn.LocalAddr().(*net.UDPAddr).Port

	go func() {
		buffer := make([]byte, 512)
		_, source, err := deviceConn.ReadFromUDP(buffer)
		if err != nil {
			return
		}
		_, _ = deviceConn.WriteToUDP([]byte("A|XX|"+strayMac+"|N|60001|60002|v2.7"), source)
	}()

	config := createTestConfig()
	config.Network.ListenerPort = 0
	config.Network.BroadcastAddress = "127.0.0.1"
	config.Network.BroadcastPort = devicePort

	// WHEN
	discoveries, err := Scan(config, 200*time.Millisecond)

	// THEN
	assert.NoError(t, err)
	assert.Empty(t, discoveries)
}
