package grid

import (
	"fmt"
	"strconv"
	"strings"
)

// Pad marks an index that has no counterpart in the other index space:
// a fan not placed in the grid, or a grid cell with no fan assigned.
// The value is part of the wire contract with the slave controllers.
const Pad = -69

type Dimensions struct {
	Rows    int `json:"rows"`
	Columns int `json:"columns"`
	Layers  int `json:"layers"`
}

func (d Dimensions) CellCount() int {
	return d.Rows * d.Columns
}

type Placement struct {
	Row        int `json:"row"`
	Column     int `json:"column"`
	RowSpan    int `json:"rowSpan"`
	ColumnSpan int `json:"columnSpan"`
}

// Device is the mapper's view of one slave controller: where its span sits in
// the grid and which local fan drives which cell/layer.
type Device struct {
	Name      string
	Mac       string
	MaxFans   int
	Placement Placement
	Mapping   string
}

// Mapper translates between the flat K index space (device ordinal x fan) and
// the flat G index space (layer x row x column). All queries are O(1) and free
// of side effects once the mapper is built.
type Mapper interface {
	SizeK() int
	SizeG() int
	Dims() Dimensions

	// IndexKG returns the G index driven by fan k, or Pad.
	IndexKG(k int) int
	// IndexGK returns the K index owning grid position g, or Pad.
	IndexGK(g int) int
	// IndexG flattens a grid position into its G index, or Pad when out
	// of bounds.
	IndexG(layer int, row int, col int) int

	LayerOf(g int) int
	CellOf(g int) (row int, col int)
	DeviceOf(k int) int
	FanOf(k int) int

	// TupleKG resolves a (device ordinal, local fan) pair to its grid
	// position, or (Pad, Pad, Pad) if the fan is unmapped.
	TupleKG(device int, fan int) (layer int, row int, col int)
}

type mapper struct {
	dims   Dimensions
	stride int

	kg []int
	gk []int
}

// NewMapper builds the KG/GK translation from the ordered device list.
// The stride is the profile-wide maximum fan count and fixes each device's
// K offset at ordinal*stride regardless of how many fans it actually drives.
func NewMapper(dims Dimensions, stride int, devices []Device) (Mapper, error) {
	if dims.Rows < 1 || dims.Columns < 1 || dims.Layers < 1 {
		return nil, fmt.Errorf("invalid grid dimensions %dx%dx%d", dims.Rows, dims.Columns, dims.Layers)
	}
	if stride < 1 {
		return nil, fmt.Errorf("invalid fan stride %d", stride)
	}

	m := &mapper{
		dims:   dims,
		stride: stride,
		kg:     newPadded(len(devices) * stride),
		gk:     newPadded(dims.CellCount() * dims.Layers),
	}

	for ordinal, device := range devices {
		cells, err := parseMapping(device, dims.Layers)
		if err != nil {
			return nil, err
		}

		placement := device.Placement
		baseK := ordinal * stride
		for cellIndex, layerFans := range cells {
			row := placement.Row + cellIndex/placement.ColumnSpan
			col := placement.Column + cellIndex%placement.ColumnSpan
			if row < 0 || row >= dims.Rows || col < 0 || col >= dims.Columns {
				return nil, fmt.Errorf("device %s: cell (%d, %d) lies outside the %dx%d grid",
					device.Name, row, col, dims.Rows, dims.Columns)
			}

			for layer, fan := range layerFans {
				if fan == Pad {
					continue
				}
				k := baseK + fan
				g := layer*dims.CellCount() + row*dims.Columns + col
				m.kg[k] = g
				m.gk[g] = k
			}
		}
	}

	return m, nil
}

func newPadded(size int) []int {
	indices := make([]int, size)
	for i := range indices {
		indices[i] = Pad
	}
	return indices
}

// parseMapping splits a device mapping string into one fan index per
// (cell, layer), using Pad for unassigned positions.
func parseMapping(device Device, layers int) ([][]int, error) {
	placement := device.Placement
	expected := placement.RowSpan * placement.ColumnSpan

	entries := strings.Split(device.Mapping, ",")
	if len(entries) != expected {
		return nil, &MappingArityError{
			Device:   device.Name,
			Entries:  len(entries),
			Expected: expected,
		}
	}

	cells := make([][]int, len(entries))
	for cellIndex, entry := range entries {
		fields := strings.Split(entry, "-")
		if len(fields) > layers {
			return nil, &MappingLayerOverflowError{
				Device: device.Name,
				Entry:  entry,
				Layers: layers,
			}
		}

		layerFans := make([]int, layers)
		for i := range layerFans {
			layerFans[i] = Pad
		}
		for layer, field := range fields {
			field = strings.TrimSpace(field)
			if field == "" {
				continue
			}
			fan, err := strconv.Atoi(field)
			if err != nil || fan < 0 || fan >= device.MaxFans {
				return nil, &FanIndexOutOfRangeError{
					Device:  device.Name,
					Entry:   entry,
					Fan:     field,
					MaxFans: device.MaxFans,
				}
			}
			layerFans[layer] = fan
		}
		cells[cellIndex] = layerFans
	}

	return cells, nil
}

func (m *mapper) SizeK() int {
	return len(m.kg)
}

func (m *mapper) Dims() Dimensions {
	return m.dims
}

func (m *mapper) SizeG() int {
	return len(m.gk)
}

func (m *mapper) IndexKG(k int) int {
	if k < 0 || k >= len(m.kg) {
		return Pad
	}
	return m.kg[k]
}

func (m *mapper) IndexGK(g int) int {
	if g < 0 || g >= len(m.gk) {
		return Pad
	}
	return m.gk[g]
}

func (m *mapper) IndexG(layer int, row int, col int) int {
	if layer < 0 || layer >= m.dims.Layers {
		return Pad
	}
	if row < 0 || row >= m.dims.Rows || col < 0 || col >= m.dims.Columns {
		return Pad
	}
	return layer*m.dims.CellCount() + row*m.dims.Columns + col
}

func (m *mapper) LayerOf(g int) int {
	return g / m.dims.CellCount()
}

func (m *mapper) CellOf(g int) (int, int) {
	cell := g % m.dims.CellCount()
	return cell / m.dims.Columns, cell % m.dims.Columns
}

func (m *mapper) DeviceOf(k int) int {
	return k / m.stride
}

func (m *mapper) FanOf(k int) int {
	return k % m.stride
}

func (m *mapper) TupleKG(device int, fan int) (int, int, int) {
	g := m.IndexKG(device*m.stride + fan)
	if g == Pad {
		return Pad, Pad, Pad
	}
	row, col := m.CellOf(g)
	return m.LayerOf(g), row, col
}
