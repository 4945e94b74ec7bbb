package fleet

import (
	"sync"
	"time"

	cmap "github.com/orcaman/concurrent-map/v2"
)

type EventKind string

const (
	// EventStateChanged reports a single device liveness transition.
	EventStateChanged EventKind = "stateChanged"
	// EventLinkDown reports that the link worker died and the whole fleet
	// was degraded at once.
	EventLinkDown EventKind = "linkDown"
)

type Event struct {
	Kind   EventKind `json:"kind"`
	Device Device    `json:"device"`
}

// Registry owns the set of known devices, their grid placement and their
// liveness state. Members are keyed by MAC; timeout and disconnect never
// remove a member, only profile changes do.
type Registry interface {
	// Activate moves every configured device from Unknown into Discovering.
	Activate()
	// BeginDiscovery re-enters Discovering for every device that dropped to
	// Disconnected or TimedOut, so the next probe cycle can re-acquire it.
	BeginDiscovery()

	Devices() []Device
	Device(mac string) (Device, bool)
	PlacedCount() int
	Stride() int
	// TotalFanCount is the length of the control and feedback vectors.
	TotalFanCount() int

	// MarkDiscovered records a discovery reply: the device's volatile address
	// is updated and it becomes Connected. Replies for already connected
	// devices are ignored.
	MarkDiscovered(mac string, address Address, version string) (Device, bool)
	// RegisterAvailable lists a discovered MAC that is not in the profile.
	RegisterAvailable(mac string, name string, maxFans int, address Address, version string) Device

	// Heartbeat refreshes the liveness timestamp and clears the miss counter.
	// Any valid inbound frame counts, not just dedicated keepalives.
	Heartbeat(mac string, now time.Time) bool
	// RecordMiss bumps the device's exchange miss counter and returns it.
	RecordMiss(mac string) int

	MarkDisconnected(mac string) (Device, bool)
	MarkTimedOut(mac string) (Device, bool)
	MarkUpdating(mac string) (Device, bool)

	// SweepTimedOut degrades every Connected device whose last frame is older
	// than the window and returns the degraded devices.
	SweepTimedOut(now time.Time, window time.Duration) []Device
	// DegradeAll times out every Connected, Updating and Discovering device.
	// Used by the watchdog when the link worker dies.
	DegradeAll() []Device

	EmitLinkDown()
	Events() <-chan Event
}

type registry struct {
	stride  int
	devices cmap.ConcurrentMap[string, Device]

	// placed holds profile-ordered MACs, available the discovery-ordered
	// rest; both are append-only after construction
	placed      []string
	availableMu sync.Mutex
	available   []string

	events chan Event
}

func NewRegistry(stride int, seeds []Device) Registry {
	r := &registry{
		stride:  stride,
		devices: cmap.New[Device](),
		events:  make(chan Event, 64),
	}
	for ordinal, seed := range seeds {
		seed.Ordinal = ordinal
		seed.State = StateUnknown
		r.devices.Set(seed.Mac, seed)
		r.placed = append(r.placed, seed.Mac)
	}
	return r
}

func (r *registry) Activate() {
	for _, mac := range r.placed {
		r.transition(mac, func(d Device) (Device, bool) {
			if d.State != StateUnknown {
				return d, false
			}
			d.State = StateDiscovering
			return d, true
		})
	}
}

func (r *registry) BeginDiscovery() {
	for _, mac := range r.macs() {
		r.transition(mac, func(d Device) (Device, bool) {
			if d.State != StateDisconnected && d.State != StateTimedOut {
				return d, false
			}
			d.State = StateDiscovering
			return d, true
		})
	}
}

func (r *registry) Devices() []Device {
	macs := r.macs()
	devices := make([]Device, 0, len(macs))
	for _, mac := range macs {
		if device, ok := r.devices.Get(mac); ok {
			devices = append(devices, device)
		}
	}
	return devices
}

func (r *registry) Device(mac string) (Device, bool) {
	return r.devices.Get(mac)
}

func (r *registry) PlacedCount() int {
	return len(r.placed)
}

func (r *registry) Stride() int {
	return r.stride
}

func (r *registry) TotalFanCount() int {
	return len(r.placed) * r.stride
}

func (r *registry) MarkDiscovered(mac string, address Address, version string) (Device, bool) {
	return r.transition(mac, func(d Device) (Device, bool) {
		if d.State == StateConnected {
			return d, false
		}
		if !d.State.CanDiscover() && d.State != StateAvailable {
			return d, false
		}
		d.Address = address
		d.Version = version
		d.LastSeen = time.Now()
		d.Misses = 0
		if d.Placed() {
			d.State = StateConnected
		} else {
			d.State = StateAvailable
		}
		return d, true
	})
}

func (r *registry) RegisterAvailable(mac string, name string, maxFans int, address Address, version string) Device {
	if existing, ok := r.devices.Get(mac); ok {
		return existing
	}
	device := Device{
		Name:     name,
		Mac:      mac,
		MaxFans:  maxFans,
		Ordinal:  -1,
		State:    StateAvailable,
		Address:  address,
		Version:  version,
		LastSeen: time.Now(),
	}
	r.devices.Set(mac, device)

	r.availableMu.Lock()
	r.available = append(r.available, mac)
	r.availableMu.Unlock()

	r.emit(Event{Kind: EventStateChanged, Device: device})
	return device
}

func (r *registry) Heartbeat(mac string, now time.Time) bool {
	return r.mutate(mac, func(d Device) Device {
		d.LastSeen = now
		d.Misses = 0
		return d
	})
}

func (r *registry) RecordMiss(mac string) int {
	misses := 0
	r.mutate(mac, func(d Device) Device {
		d.Misses++
		misses = d.Misses
		return d
	})
	return misses
}

func (r *registry) MarkDisconnected(mac string) (Device, bool) {
	return r.transition(mac, func(d Device) (Device, bool) {
		if !d.State.IsConnected() {
			return d, false
		}
		d.State = StateDisconnected
		return d, true
	})
}

func (r *registry) MarkTimedOut(mac string) (Device, bool) {
	return r.transition(mac, func(d Device) (Device, bool) {
		if !d.State.IsConnected() && d.State != StateDiscovering {
			return d, false
		}
		d.State = StateTimedOut
		return d, true
	})
}

func (r *registry) MarkUpdating(mac string) (Device, bool) {
	return r.transition(mac, func(d Device) (Device, bool) {
		d.State = StateUpdating
		return d, true
	})
}

func (r *registry) SweepTimedOut(now time.Time, window time.Duration) []Device {
	var degraded []Device
	for _, mac := range r.placed {
		device, ok := r.transition(mac, func(d Device) (Device, bool) {
			if d.State != StateConnected {
				return d, false
			}
			if now.Sub(d.LastSeen) <= window {
				return d, false
			}
			d.State = StateTimedOut
			return d, true
		})
		if ok {
			degraded = append(degraded, device)
		}
	}
	return degraded
}

func (r *registry) DegradeAll() []Device {
	var degraded []Device
	for _, mac := range r.macs() {
		device, ok := r.transition(mac, func(d Device) (Device, bool) {
			if !d.State.IsConnected() && d.State != StateDiscovering {
				return d, false
			}
			d.State = StateTimedOut
			return d, true
		})
		if ok {
			degraded = append(degraded, device)
		}
	}
	return degraded
}

func (r *registry) EmitLinkDown() {
	r.emit(Event{Kind: EventLinkDown})
}

func (r *registry) Events() <-chan Event {
	return r.events
}

// mutate applies fn atomically to an existing device. Unknown MACs are left
// untouched; members are never removed at runtime, so the existence check
// cannot go stale.
func (r *registry) mutate(mac string, fn func(Device) Device) bool {
	if _, ok := r.devices.Get(mac); !ok {
		return false
	}
	r.devices.Upsert(mac, Device{}, func(_ bool, current Device, _ Device) Device {
		return fn(current)
	})
	return true
}

// transition applies fn atomically and emits a state change event when fn
// reports a change.
func (r *registry) transition(mac string, fn func(Device) (Device, bool)) (Device, bool) {
	changed := false
	var result Device
	ok := r.mutate(mac, func(current Device) Device {
		updated, didChange := fn(current)
		result = updated
		changed = didChange
		return updated
	})
	if !ok {
		return Device{}, false
	}
	if changed {
		r.emit(Event{Kind: EventStateChanged, Device: result})
	}
	return result, changed
}

func (r *registry) macs() []string {
	r.availableMu.Lock()
	defer r.availableMu.Unlock()
	macs := make([]string, 0, len(r.placed)+len(r.available))
	macs = append(macs, r.placed...)
	macs = append(macs, r.available...)
	return macs
}

// emit never blocks; when the observer is slow the oldest queued event is
// dropped in favor of the new one.
func (r *registry) emit(event Event) {
	select {
	case r.events <- event:
	default:
		select {
		case <-r.events:
		default:
		}
		select {
		case r.events <- event:
		default:
		}
	}
}
