package grid

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCheckPassesForValidLayouts(t *testing.T) {
	// GIVEN
	dims, stride, devices := createTwoDeviceLayout()
	m, err := NewMapper(dims, stride, devices)
	assert.NoError(t, err)

	// WHEN
	violations := Check(m)

	// THEN
	assert.Empty(t, violations)
}

func TestCheckDetectsDoubleAssignedFan(t *testing.T) {
	// GIVEN a device driving two layers of the same cell with one fan,
	// which overwrites the fan's KG entry and breaks the bijection
	dims := Dimensions{Rows: 1, Columns: 1, Layers: 2}
	devices := []Device{
		{
			Name:    "doubled",
			MaxFans: 2,
			Placement: Placement{
				Row: 0, Column: 0,
				RowSpan: 1, ColumnSpan: 1,
			},
			Mapping: "0-0",
		},
	}
	m, err := NewMapper(dims, 2, devices)
	assert.NoError(t, err)

	// WHEN
	violations := Check(m)

	// THEN
	assert.NotEmpty(t, violations)
}

func TestValidateDevicesCollectsAllViolations(t *testing.T) {
	// GIVEN two devices that are each broken in their own way
	dims := Dimensions{Rows: 2, Columns: 2, Layers: 1}
	devices := []Device{
		{
			Name:    "short",
			MaxFans: 2,
			Placement: Placement{
				Row: 0, Column: 0,
				RowSpan: 2, ColumnSpan: 1,
			},
			Mapping: "0",
		},
		{
			Name:    "overhang",
			MaxFans: 2,
			Placement: Placement{
				Row: 1, Column: 1,
				RowSpan: 2, ColumnSpan: 1,
			},
			Mapping: "0,1",
		},
	}

	// WHEN
	violations := ValidateDevices(dims, 2, devices)

	// THEN both problems are reported, not just the first
	assert.Len(t, violations, 2)
}

func TestValidateDevicesAcceptsValidProfile(t *testing.T) {
	// GIVEN
	dims, stride, devices := createTwoLayerLayout()

	// WHEN
	violations := ValidateDevices(dims, stride, devices)

	// THEN
	assert.Empty(t, violations)
}
