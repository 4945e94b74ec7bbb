package grid

import "fmt"

// MappingArityError reports a mapping string whose cell entry count does not
// match the area of the device's span.
type MappingArityError struct {
	Device   string
	Entries  int
	Expected int
}

func (e *MappingArityError) Error() string {
	return fmt.Sprintf("device %s: mapping has %d cell entries, span requires %d",
		e.Device, e.Entries, e.Expected)
}

// MappingLayerOverflowError reports a cell entry that assigns more layers than
// the grid has.
type MappingLayerOverflowError struct {
	Device string
	Entry  string
	Layers int
}

func (e *MappingLayerOverflowError) Error() string {
	return fmt.Sprintf("device %s: mapping entry '%s' exceeds the %d grid layer(s)",
		e.Device, e.Entry, e.Layers)
}

// FanIndexOutOfRangeError reports a mapping entry naming a fan the device does
// not have.
type FanIndexOutOfRangeError struct {
	Device  string
	Entry   string
	Fan     string
	MaxFans int
}

func (e *FanIndexOutOfRangeError) Error() string {
	return fmt.Sprintf("device %s: mapping entry '%s' names fan '%s', valid range is [0, %d)",
		e.Device, e.Entry, e.Fan, e.MaxFans)
}
