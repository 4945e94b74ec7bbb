package configuration

import "github.com/markusressel/fangrid/internal/grid"

type GridConfig struct {
	Rows    int `json:"rows"`
	Columns int `json:"columns"`
	Layers  int `json:"layers"`
}

// DeviceConfig describes one slave controller and its placement in the grid.
// MaxFans may be left at 0 to inherit the profile-wide value.
type DeviceConfig struct {
	Name    string `json:"name"`
	Mac     string `json:"mac"`
	MaxFans int    `json:"maxFans"`

	Row        int `json:"row"`
	Column     int `json:"column"`
	RowSpan    int `json:"rowSpan"`
	ColumnSpan int `json:"columnSpan"`

	// Mapping assigns local fan indices to the cells of the device's span,
	// one comma-separated entry per cell in row-major order, each entry a
	// dash-separated fan index per layer ("" = unassigned).
	Mapping string `json:"mapping"`
}

func (c *Configuration) GridDimensions() grid.Dimensions {
	return grid.Dimensions{
		Rows:    c.Grid.Rows,
		Columns: c.Grid.Columns,
		Layers:  c.Grid.Layers,
	}
}

func (c *Configuration) GridDevices() []grid.Device {
	devices := make([]grid.Device, 0, len(c.Devices))
	for _, device := range c.Devices {
		devices = append(devices, grid.Device{
			Name:    device.Name,
			Mac:     device.Mac,
			MaxFans: device.MaxFans,
			Placement: grid.Placement{
				Row:        device.Row,
				Column:     device.Column,
				RowSpan:    device.RowSpan,
				ColumnSpan: device.ColumnSpan,
			},
			Mapping: device.Mapping,
		})
	}
	return devices
}
