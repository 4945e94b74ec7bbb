package fleet

import (
	"testing"
	"time"

	"github.com/markusressel/fangrid/internal/grid"
	"github.com/stretchr/testify/assert"
)

// helper function to create a registry with two placed devices
func createTestRegistry() Registry {
	seeds := []Device{
		{
			Name:    "left",
			Mac:     "00:80:e1:38:00:2a",
			MaxFans: 2,
			Placement: grid.Placement{
				Row: 0, Column: 0, RowSpan: 2, ColumnSpan: 1,
			},
		},
		{
			Name:    "right",
			Mac:     "00:80:e1:38:00:2b",
			MaxFans: 2,
			Placement: grid.Placement{
				Row: 0, Column: 1, RowSpan: 2, ColumnSpan: 1,
			},
		},
	}
	return NewRegistry(2, seeds)
}

func testAddress() Address {
	return Address{IP: "192.168.1.21", MisoPort: 60001, MosiPort: 60002}
}

func TestDevicesStartUnknown(t *testing.T) {
	// GIVEN
	registry := createTestRegistry()

	// THEN
	for _, device := range registry.Devices() {
		assert.Equal(t, StateUnknown, device.State)
	}
	assert.Equal(t, 4, registry.TotalFanCount())
	assert.Equal(t, 2, registry.PlacedCount())
}

func TestActivateMovesFleetToDiscovering(t *testing.T) {
	// GIVEN
	registry := createTestRegistry()

	// WHEN
	registry.Activate()

	// THEN
	for _, device := range registry.Devices() {
		assert.Equal(t, StateDiscovering, device.State)
	}
}

func TestDiscoveryConnectsKnownDevice(t *testing.T) {
	// GIVEN
	registry := createTestRegistry()
	registry.Activate()

	// WHEN
	device, changed := registry.MarkDiscovered("00:80:e1:38:00:2a", testAddress(), "v2.7")

	// THEN
	assert.True(t, changed)
	assert.Equal(t, StateConnected, device.State)
	assert.Equal(t, "192.168.1.21", device.Address.IP)
	assert.Equal(t, "v2.7", device.Version)
}

func TestDiscoveryIgnoresConnectedDevice(t *testing.T) {
	// GIVEN a device that is already connected
	registry := createTestRegistry()
	registry.Activate()
	registry.MarkDiscovered("00:80:e1:38:00:2a", testAddress(), "v2.7")

	// WHEN the same device replies again with a different address
	other := Address{IP: "192.168.1.99", MisoPort: 1, MosiPort: 2}
	device, changed := registry.MarkDiscovered("00:80:e1:38:00:2a", other, "v2.7")

	// THEN the reply is ignored
	assert.False(t, changed)
	assert.Equal(t, "192.168.1.21", device.Address.IP)
}

func TestReconnectAfterTimeoutUpdatesAddress(t *testing.T) {
	// GIVEN a timed out device whose IP changed across a reboot
	registry := createTestRegistry()
	registry.Activate()
	registry.MarkDiscovered("00:80:e1:38:00:2a", testAddress(), "v2.7")
	registry.MarkTimedOut("00:80:e1:38:00:2a")

	// WHEN
	rebooted := Address{IP: "192.168.1.42", MisoPort: 60001, MosiPort: 60002}
	device, changed := registry.MarkDiscovered("00:80:e1:38:00:2a", rebooted, "v2.8")

	// THEN the MAC keyed the device back in under its new address
	assert.True(t, changed)
	assert.Equal(t, StateConnected, device.State)
	assert.Equal(t, "192.168.1.42", device.Address.IP)
}

func TestUnknownMacIsNotTouched(t *testing.T) {
	// GIVEN
	registry := createTestRegistry()
	registry.Activate()

	// WHEN
	_, changed := registry.MarkDiscovered("ff:ff:ff:ff:ff:ff", testAddress(), "v2.7")

	// THEN
	assert.False(t, changed)
	assert.Len(t, registry.Devices(), 2)
}

func TestRegisterAvailableListsUnplacedDevice(t *testing.T) {
	// GIVEN
	registry := createTestRegistry()
	registry.Activate()

	// WHEN
	device := registry.RegisterAvailable("ff:ff:ff:ff:ff:fe", "zephyr", 21, testAddress(), "v2.7")

	// THEN it is a member without a K range
	assert.Equal(t, StateAvailable, device.State)
	assert.False(t, device.Placed())
	assert.Len(t, registry.Devices(), 3)
	assert.Equal(t, 4, registry.TotalFanCount())

	// WHEN registered again
	again := registry.RegisterAvailable("ff:ff:ff:ff:ff:fe", "other", 21, testAddress(), "v2.7")

	// THEN the first registration wins
	assert.Equal(t, "zephyr", again.Name)
	assert.Len(t, registry.Devices(), 3)
}

func TestSweepTimesOutSilentDevices(t *testing.T) {
	// GIVEN one connected device that went silent and one that kept talking
	start := time.Now()
	window := 4 * time.Second
	registry := createTestRegistry()
	registry.Activate()
	registry.MarkDiscovered("00:80:e1:38:00:2a", testAddress(), "v2.7")
	registry.MarkDiscovered("00:80:e1:38:00:2b", testAddress(), "v2.7")
	registry.Heartbeat("00:80:e1:38:00:2b", start.Add(window))

	// WHEN the sweep runs one second past the first device's window
	degraded := registry.SweepTimedOut(start.Add(window+1*time.Second), window)

	// THEN only the silent device degrades
	assert.Len(t, degraded, 1)
	assert.Equal(t, "00:80:e1:38:00:2a", degraded[0].Mac)
	first, _ := registry.Device("00:80:e1:38:00:2a")
	assert.Equal(t, StateTimedOut, first.State)
	second, _ := registry.Device("00:80:e1:38:00:2b")
	assert.Equal(t, StateConnected, second.State)
}

func TestBeginDiscoveryReentersTimedOutDevices(t *testing.T) {
	// GIVEN
	registry := createTestRegistry()
	registry.Activate()
	registry.MarkDiscovered("00:80:e1:38:00:2a", testAddress(), "v2.7")
	registry.MarkTimedOut("00:80:e1:38:00:2a")

	// WHEN
	registry.BeginDiscovery()

	// THEN the device cycles back without operator action
	device, _ := registry.Device("00:80:e1:38:00:2a")
	assert.Equal(t, StateDiscovering, device.State)
}

func TestDegradeAllTimesOutEverything(t *testing.T) {
	// GIVEN a fleet in mixed states
	registry := createTestRegistry()
	registry.Activate()
	registry.MarkDiscovered("00:80:e1:38:00:2a", testAddress(), "v2.7")

	// WHEN the watchdog degrades the fleet
	degraded := registry.DegradeAll()

	// THEN both the connected and the still discovering device timed out
	assert.Len(t, degraded, 2)
	for _, device := range registry.Devices() {
		assert.Equal(t, StateTimedOut, device.State)
	}
}

func TestMissCounterEscalation(t *testing.T) {
	// GIVEN
	registry := createTestRegistry()
	registry.Activate()
	registry.MarkDiscovered("00:80:e1:38:00:2a", testAddress(), "v2.7")

	// WHEN misses accumulate
	assert.Equal(t, 1, registry.RecordMiss("00:80:e1:38:00:2a"))
	assert.Equal(t, 2, registry.RecordMiss("00:80:e1:38:00:2a"))

	// THEN a heartbeat resets the counter
	assert.True(t, registry.Heartbeat("00:80:e1:38:00:2a", time.Now()))
	assert.Equal(t, 1, registry.RecordMiss("00:80:e1:38:00:2a"))
}

func TestStateChangeEventsAreEmitted(t *testing.T) {
	// GIVEN
	registry := createTestRegistry()

	// WHEN
	registry.Activate()

	// THEN one event per activated device is observable
	events := registry.Events()
	first := <-events
	assert.Equal(t, EventStateChanged, first.Kind)
	assert.Equal(t, StateDiscovering, first.Device.State)
	second := <-events
	assert.Equal(t, StateDiscovering, second.Device.State)
}

func TestLinkDownEvent(t *testing.T) {
	// GIVEN
	registry := createTestRegistry()

	// WHEN
	registry.EmitLinkDown()

	// THEN
	event := <-registry.Events()
	assert.Equal(t, EventLinkDown, event.Kind)
}

func TestKRange(t *testing.T) {
	// GIVEN
	registry := createTestRegistry()

	// WHEN
	device, _ := registry.Device("00:80:e1:38:00:2b")
	start, end := device.KRange(registry.Stride())

	// THEN
	assert.Equal(t, 2, start)
	assert.Equal(t, 4, end)
}
