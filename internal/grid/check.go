package grid

import "fmt"

// Check verifies the KG/GK bijection of a built mapper from both sides and
// returns every violation found, so a broken profile is reported as a whole
// instead of failing at the first bad index.
func Check(m Mapper) []string {
	var violations []string

	for k := 0; k < m.SizeK(); k++ {
		g := m.IndexKG(k)
		if g == Pad {
			continue
		}
		if g < 0 || g >= m.SizeG() {
			violations = append(violations,
				fmt.Sprintf("K %d maps to G %d, outside [0, %d)", k, g, m.SizeG()))
			continue
		}
		if back := m.IndexGK(g); back != k {
			violations = append(violations,
				fmt.Sprintf("K %d maps to G %d, but G %d maps back to K %d", k, g, g, back))
		}
	}

	for g := 0; g < m.SizeG(); g++ {
		k := m.IndexGK(g)
		if k == Pad {
			continue
		}
		if k < 0 || k >= m.SizeK() {
			violations = append(violations,
				fmt.Sprintf("G %d maps to K %d, outside [0, %d)", g, k, m.SizeK()))
			continue
		}
		if back := m.IndexKG(k); back != g {
			violations = append(violations,
				fmt.Sprintf("G %d maps to K %d, but K %d maps back to G %d", g, k, k, back))
		}
	}

	return violations
}

// ValidateDevices runs every per-device mapping check without stopping at the
// first failure and, if the device list is structurally sound, builds the
// mapper and appends any bijection violations. The returned list is empty for
// a valid profile.
func ValidateDevices(dims Dimensions, stride int, devices []Device) []string {
	var violations []string

	for _, device := range devices {
		if _, err := parseMapping(device, dims.Layers); err != nil {
			violations = append(violations, err.Error())
		}

		placement := device.Placement
		if placement.RowSpan < 1 || placement.ColumnSpan < 1 {
			violations = append(violations,
				fmt.Sprintf("device %s: span %dx%d is empty", device.Name, placement.RowSpan, placement.ColumnSpan))
		}
		if placement.Row < 0 || placement.Column < 0 ||
			placement.Row+placement.RowSpan > dims.Rows ||
			placement.Column+placement.ColumnSpan > dims.Columns {
			violations = append(violations,
				fmt.Sprintf("device %s: span at (%d, %d) sized %dx%d exceeds the %dx%d grid",
					device.Name, placement.Row, placement.Column,
					placement.RowSpan, placement.ColumnSpan, dims.Rows, dims.Columns))
		}
		if device.MaxFans > stride {
			violations = append(violations,
				fmt.Sprintf("device %s: %d fans exceed the profile stride %d", device.Name, device.MaxFans, stride))
		}
	}

	if len(violations) > 0 {
		return violations
	}

	m, err := NewMapper(dims, stride, devices)
	if err != nil {
		return append(violations, err.Error())
	}
	return append(violations, Check(m)...)
}
