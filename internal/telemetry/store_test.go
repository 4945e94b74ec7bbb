package telemetry

import (
	"testing"

	"github.com/markusressel/fangrid/internal/grid"
	"github.com/stretchr/testify/assert"
)

// helper function to create a store for two devices with four fans each
func createTestStore() Store {
	return NewStore(2, 4)
}

func TestIngestStoresLatestSample(t *testing.T) {
	// GIVEN
	store := createTestStore()

	// WHEN
	accepted := store.Ingest(0, 1, []int{1200, 1300, 1400, 1500}, []float64{0.2, 0.3, 0.4, 0.5})

	// THEN
	assert.True(t, accepted)
	rpm, ok := store.Rpm(2)
	assert.True(t, ok)
	assert.Equal(t, 1400, rpm)
	duty, ok := store.Duty(3)
	assert.True(t, ok)
	assert.InDelta(t, 0.5, duty, 0.0001)
}

func TestSecondDeviceWritesItsOwnRange(t *testing.T) {
	// GIVEN
	store := createTestStore()
	store.Ingest(0, 1, []int{1200, 1300, 1400, 1500}, []float64{0.2, 0.3, 0.4, 0.5})

	// WHEN
	store.Ingest(1, 1, []int{2100, 2200, 2300, 2400}, []float64{0.6, 0.7, 0.8, 0.9})

	// THEN the first device's range is untouched
	rpm, _ := store.Rpm(0)
	assert.Equal(t, 1200, rpm)
	rpm, _ = store.Rpm(4)
	assert.Equal(t, 2100, rpm)
	assert.Equal(t, 8, store.SizeK())
}

func TestStaleFrameIsDropped(t *testing.T) {
	// GIVEN
	store := createTestStore()
	store.Ingest(0, 5, []int{1200, 1300, 1400, 1500}, []float64{0.2, 0.3, 0.4, 0.5})

	// WHEN an older frame arrives out of order
	accepted := store.Ingest(0, 4, []int{1, 1, 1, 1}, []float64{0.1, 0.1, 0.1, 0.1})

	// THEN
	assert.False(t, accepted)
	rpm, _ := store.Rpm(0)
	assert.Equal(t, 1200, rpm)
	assert.Equal(t, uint64(5), store.DataIndex(0))
}

func TestResetDeviceAcceptsRestartedCounter(t *testing.T) {
	// GIVEN a device that rebooted and restarted its frame counter
	store := createTestStore()
	store.Ingest(0, 500, []int{1200, 1300, 1400, 1500}, []float64{0.2, 0.3, 0.4, 0.5})

	// WHEN
	store.ResetDevice(0)
	accepted := store.Ingest(0, 1, []int{900, 900, 900, 900}, []float64{0.1, 0.1, 0.1, 0.1})

	// THEN
	assert.True(t, accepted)
	rpm, _ := store.Rpm(0)
	assert.Equal(t, 900, rpm)
}

func TestResetDeviceKeepsBaseline(t *testing.T) {
	// GIVEN
	store := createTestStore()
	store.Ingest(0, 1, []int{1200, 1300, 1400, 1500}, []float64{0.2, 0.3, 0.4, 0.5})

	// WHEN
	store.ResetDevice(0)

	// THEN the sample is padded again but the duty survives for prefill
	sample := store.Sample(0)
	assert.Equal(t, TagNoData, sample.Tag)
	baseline := store.DutyBaseline()
	assert.InDelta(t, 0.2, baseline[0], 0.0001)
}

func TestShortVectorLeavesTrailingSlotsPadded(t *testing.T) {
	// GIVEN a device that drives fewer fans than the fleet stride
	store := createTestStore()

	// WHEN
	store.Ingest(0, 1, []int{1200, 1300}, []float64{0.2, 0.3})

	// THEN
	assert.Equal(t, TagValue, store.Sample(1).Tag)
	assert.Equal(t, TagNoData, store.Sample(2).Tag)
	rpms, _ := store.WireVectors()
	assert.Equal(t, grid.Pad, rpms[2])
}

func TestMarkDisconnectedWritesRipSentinels(t *testing.T) {
	// GIVEN
	store := createTestStore()
	store.Ingest(0, 1, []int{1200, 1300, 1400, 1500}, []float64{0.2, 0.3, 0.4, 0.5})
	store.Ingest(1, 1, []int{2100, 2200, 2300, 2400}, []float64{0.6, 0.7, 0.8, 0.9})

	// WHEN
	store.MarkDisconnected(0)

	// THEN the device's K range reads RIP, the other device is untouched
	rpms, duties := store.WireVectors()
	for k := 0; k < 4; k++ {
		assert.Equal(t, Rip, rpms[k])
		assert.InDelta(t, float64(Rip), duties[k], 0.0001)
	}
	assert.Equal(t, 2100, rpms[4])
	assert.InDelta(t, 0.6, duties[4], 0.0001)
}

func TestDisconnectKeepsBaseline(t *testing.T) {
	// GIVEN
	store := createTestStore()
	store.Ingest(0, 1, []int{1200, 1300, 1400, 1500}, []float64{0.2, 0.3, 0.4, 0.5})

	// WHEN
	store.MarkDisconnected(0)

	// THEN the wire reads RIP but the prefill baseline keeps the last duty
	_, ok := store.Duty(1)
	assert.False(t, ok)
	baseline := store.DutyBaseline()
	assert.InDelta(t, 0.3, baseline[1], 0.0001)
}

func TestMarkFleetDisconnected(t *testing.T) {
	// GIVEN
	store := createTestStore()
	store.Ingest(0, 1, []int{1200, 1300, 1400, 1500}, []float64{0.2, 0.3, 0.4, 0.5})
	store.Ingest(1, 1, []int{2100, 2200, 2300, 2400}, []float64{0.6, 0.7, 0.8, 0.9})

	// WHEN
	store.MarkFleetDisconnected()

	// THEN
	rpms, _ := store.WireVectors()
	for _, rpm := range rpms {
		assert.Equal(t, Rip, rpm)
	}
}

func TestFreshStoreReadsPad(t *testing.T) {
	// GIVEN
	store := createTestStore()

	// THEN
	rpms, duties := store.WireVectors()
	for k := 0; k < store.SizeK(); k++ {
		assert.Equal(t, grid.Pad, rpms[k])
		assert.InDelta(t, float64(grid.Pad), duties[k], 0.0001)
	}
	baseline := store.DutyBaseline()
	assert.InDelta(t, 0.0, baseline[0], 0.0001)
}

func TestSnapshotIsIndependent(t *testing.T) {
	// GIVEN
	store := createTestStore()
	store.Ingest(0, 1, []int{1200, 1300, 1400, 1500}, []float64{0.2, 0.3, 0.4, 0.5})

	// WHEN
	snapshot := store.Snapshot()
	snapshot[0].Rpm = 1

	// THEN the store is unaffected
	rpm, _ := store.Rpm(0)
	assert.Equal(t, 1200, rpm)
}

func TestOutOfRangeAccess(t *testing.T) {
	// GIVEN
	store := createTestStore()

	// THEN
	assert.Equal(t, TagNoData, store.Sample(-1).Tag)
	assert.Equal(t, TagNoData, store.Sample(100).Tag)
	assert.False(t, store.Ingest(5, 1, []int{1}, []float64{0.1}))
	assert.Equal(t, uint64(0), store.DataIndex(5))
}
