package persistence

import (
	"testing"

	"github.com/markusressel/fangrid/internal/fleet"
	"github.com/stretchr/testify/assert"
)

const (
	dbTestingPath = "./test.db"
)

func createTestAddress() fleet.Address {
	return fleet.Address{
		IP:       "192.168.1.21",
		MisoPort: 60001,
		MosiPort: 60002,
	}
}

func TestPersistence_SaveDeviceName(t *testing.T) {
	// GIVEN
	p := NewPersistence(dbTestingPath)

	// WHEN
	err := p.SaveDeviceName("00:80:e1:38:00:2a", "zephyr")

	// THEN
	assert.NoError(t, err)
}

func TestPersistence_LoadDeviceName(t *testing.T) {
	// GIVEN
	p := NewPersistence(dbTestingPath)
	err := p.SaveDeviceName("00:80:e1:38:00:2b", "boreas")
	assert.NoError(t, err)

	// WHEN
	name, err := p.LoadDeviceName("00:80:e1:38:00:2b")

	// THEN
	assert.NoError(t, err)
	assert.Equal(t, "boreas", name)
}

func TestPersistence_LoadDeviceName_Unknown(t *testing.T) {
	// GIVEN
	p := NewPersistence(dbTestingPath)

	// WHEN
	name, err := p.LoadDeviceName("ff:ff:ff:ff:ff:f0")

	// THEN
	assert.Error(t, err)
	assert.Empty(t, name)
}

func TestPersistence_DeleteDeviceName(t *testing.T) {
	// GIVEN
	p := NewPersistence(dbTestingPath)
	_ = p.SaveDeviceName("00:80:e1:38:00:2c", "notos")

	// WHEN
	err := p.DeleteDeviceName("00:80:e1:38:00:2c")
	assert.NoError(t, err)

	// THEN
	_, err = p.LoadDeviceName("00:80:e1:38:00:2c")
	assert.Error(t, err)
}

func TestPersistence_LoadDeviceNames(t *testing.T) {
	// GIVEN
	p := NewPersistence(dbTestingPath)
	assert.NoError(t, p.SaveDeviceName("00:80:e1:38:00:2d", "eurus"))
	assert.NoError(t, p.SaveDeviceName("00:80:e1:38:00:2e", "aeolus"))

	// WHEN
	names, err := p.LoadDeviceNames()

	// THEN
	assert.NoError(t, err)
	assert.Equal(t, "eurus", names["00:80:e1:38:00:2d"])
	assert.Equal(t, "aeolus", names["00:80:e1:38:00:2e"])
}

func TestPersistence_SaveDeviceAddress(t *testing.T) {
	// GIVEN
	p := NewPersistence(dbTestingPath)

	// WHEN
	err := p.SaveDeviceAddress("00:80:e1:38:00:2a", createTestAddress())

	// THEN
	assert.NoError(t, err)
}

func TestPersistence_LoadDeviceAddress(t *testing.T) {
	// GIVEN
	p := NewPersistence(dbTestingPath)
	expected := createTestAddress()
	err := p.SaveDeviceAddress("00:80:e1:38:00:2f", expected)
	assert.NoError(t, err)

	// WHEN
	address, err := p.LoadDeviceAddress("00:80:e1:38:00:2f")

	// THEN
	assert.NoError(t, err)
	assert.Equal(t, expected, address)
}

func TestPersistence_DeleteDeviceAddress(t *testing.T) {
	// GIVEN
	p := NewPersistence(dbTestingPath)
	_ = p.SaveDeviceAddress("00:80:e1:38:00:30", createTestAddress())

	// WHEN
	err := p.DeleteDeviceAddress("00:80:e1:38:00:30")
	assert.NoError(t, err)

	// THEN
	_, err = p.LoadDeviceAddress("00:80:e1:38:00:30")
	assert.Error(t, err)
}
