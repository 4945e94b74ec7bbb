package fleet

import (
	"time"

	"github.com/markusressel/fangrid/internal/grid"
)

// State is the liveness state of a device. Devices cycle
// Unknown -> Discovering -> Connected -> (Disconnected | TimedOut) ->
// Discovering for the lifetime of the process; there is no terminal state.
type State string

const (
	// StateUnknown is the initial state of every configured device.
	StateUnknown State = "unknown"
	// StateDiscovering marks a device the probe loop is trying to acquire.
	StateDiscovering State = "discovering"
	// StateConnected marks a device with a live exchange.
	StateConnected State = "connected"
	// StateUpdating marks a device sitting in its bootloader during a
	// firmware update. Control vector pushes are suppressed for it.
	StateUpdating State = "updating"
	// StateDisconnected marks a device that acknowledged a disconnect or was
	// stopped by the operator.
	StateDisconnected State = "disconnected"
	// StateTimedOut marks a device that went silent past the liveness window.
	StateTimedOut State = "timedOut"
	// StateAvailable marks a discovered device that is not part of the
	// profile. It is listed but owns no K range.
	StateAvailable State = "available"
)

// IsConnected reports whether the device currently has a live link.
func (s State) IsConnected() bool {
	return s == StateConnected || s == StateUpdating
}

// CanDiscover reports whether a discovery reply may (re)connect the device.
func (s State) CanDiscover() bool {
	switch s {
	case StateUnknown, StateDiscovering, StateDisconnected, StateTimedOut, StateUpdating:
		return true
	}
	return false
}

// Address is the volatile network location of a device, rediscovered on every
// connection. The MAC stays the stable key.
type Address struct {
	IP       string `json:"ip"`
	MisoPort int    `json:"misoPort"`
	MosiPort int    `json:"mosiPort"`
}

type Device struct {
	Name    string `json:"name"`
	Mac     string `json:"mac"`
	MaxFans int    `json:"maxFans"`

	// Ordinal is the device's position in profile registration order and
	// fixes its K range. Available devices carry -1.
	Ordinal   int            `json:"ordinal"`
	Placement grid.Placement `json:"placement"`

	State    State     `json:"state"`
	Address  Address   `json:"address"`
	Version  string    `json:"version"`
	LastSeen time.Time `json:"lastSeen"`

	// Misses counts exchange periods without a valid inbound frame, for
	// timeout escalation. Reset by any valid frame.
	Misses int `json:"-"`
}

// Placed reports whether the device owns a K range in the control vector.
func (d Device) Placed() bool {
	return d.Ordinal >= 0
}

// KRange returns the device's half-open K index range for the given profile
// stride, or (0, 0) for unplaced devices.
func (d Device) KRange(stride int) (int, int) {
	if !d.Placed() {
		return 0, 0
	}
	start := d.Ordinal * stride
	return start, start + stride
}
