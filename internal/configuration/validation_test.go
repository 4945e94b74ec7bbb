package configuration

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// helper function to create a configuration that passes validation
func createValidConfig() Configuration {
	return Configuration{
		Grid: GridConfig{
			Rows:    2,
			Columns: 2,
			Layers:  1,
		},
		MaxFans:    4,
		MaxRpm:     11500,
		DcDecimals: 2,
		Devices: []DeviceConfig{
			{
				Name:       "alpha",
				Mac:        "00:80:e1:38:00:2a",
				MaxFans:    4,
				Row:        0,
				Column:     0,
				RowSpan:    2,
				ColumnSpan: 2,
				Mapping:    "0,1,2,3",
			},
		},
		Network: NetworkConfig{
			BroadcastAddress: LimitedBroadcast,
			BroadcastPort:    65000,
			ListenerPort:     65001,
			ExchangePort:     65002,
			BroadcastPeriod:  1 * time.Second,
			ExchangePeriod:   100 * time.Millisecond,
			LivenessFactor:   4,
			MaxTimeouts:      10,
			Passcode:         "CT",
			MaxFrameLength:   512,
			StopTimeout:      500 * time.Millisecond,
			CommandQueueSize: 64,
		},
	}
}

func TestValidateValidConfig(t *testing.T) {
	// GIVEN
	config := createValidConfig()

	// WHEN
	err := validateConfig(&config)

	// THEN
	assert.NoError(t, err)
}

func TestValidateRejectsEmptyGrid(t *testing.T) {
	// GIVEN
	config := createValidConfig()
	config.Grid.Rows = 0

	// WHEN
	err := validateConfig(&config)

	// THEN
	assert.Error(t, err)
}

func TestValidateRejectsBadBroadcastAddress(t *testing.T) {
	// GIVEN
	config := createValidConfig()
	config.Network.BroadcastAddress = "10.0.0"

	// WHEN
	err := validateConfig(&config)

	// THEN
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "broadcast address")
}

func TestValidateRejectsDuplicateMac(t *testing.T) {
	// GIVEN two devices sharing a MAC
	config := createValidConfig()
	config.Grid.Columns = 4
	config.Devices = []DeviceConfig{
		{
			Name: "alpha", Mac: "00:80:e1:38:00:2a", MaxFans: 4,
			Row: 0, Column: 0, RowSpan: 2, ColumnSpan: 2,
			Mapping: "0,1,2,3",
		},
		{
			Name: "beta", Mac: "00:80:e1:38:00:2a", MaxFans: 4,
			Row: 0, Column: 2, RowSpan: 2, ColumnSpan: 2,
			Mapping: "0,1,2,3",
		},
	}

	// WHEN
	err := validateConfig(&config)

	// THEN
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate MAC")
}

func TestValidateRejectsShortMac(t *testing.T) {
	// GIVEN
	config := createValidConfig()
	config.Devices[0].Mac = "00:80:e1"

	// WHEN
	err := validateConfig(&config)

	// THEN
	assert.Error(t, err)
}

func TestValidateReportsAllMappingViolations(t *testing.T) {
	// GIVEN a mapping that is both too short and out of range
	config := createValidConfig()
	config.Grid.Columns = 4
	config.Devices = []DeviceConfig{
		{
			Name: "alpha", Mac: "00:80:e1:38:00:2a", MaxFans: 4,
			Row: 0, Column: 0, RowSpan: 2, ColumnSpan: 2,
			Mapping: "0,1,2",
		},
		{
			Name: "beta", Mac: "00:80:e1:38:00:2b", MaxFans: 4,
			Row: 0, Column: 2, RowSpan: 2, ColumnSpan: 2,
			Mapping: "0,1,2,9",
		},
	}

	// WHEN
	err := validateConfig(&config)

	// THEN both devices' violations appear in one report
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "alpha")
	assert.Contains(t, err.Error(), "beta")
}

func TestValidateRejectsDeviceFanCountOverStride(t *testing.T) {
	// GIVEN a device claiming more fans than the profile stride
	config := createValidConfig()
	config.Devices[0].MaxFans = 8

	// WHEN
	err := validateConfig(&config)

	// THEN
	assert.Error(t, err)
}

func TestBroadcastAddressValidation(t *testing.T) {
	// GIVEN
	valid := []BroadcastAddress{LimitedBroadcast, "192.168.1.255", "10.0.0.255"}
	invalid := []BroadcastAddress{"", "broadcast", "192.168.1", "192.168.1.256", "a.b.c.d"}

	// THEN
	for _, address := range valid {
		assert.NoError(t, address.Validate())
	}
	for _, address := range invalid {
		assert.Error(t, address.Validate())
	}
}

func TestBroadcastAddressHost(t *testing.T) {
	// GIVEN
	limited := BroadcastAddress(LimitedBroadcast)
	subnet := BroadcastAddress("192.168.1.255")

	// THEN
	assert.Equal(t, "255.255.255.255", limited.Host())
	assert.Equal(t, "192.168.1.255", subnet.Host())
	assert.True(t, limited.IsLimited())
	assert.False(t, subnet.IsLimited())
}
