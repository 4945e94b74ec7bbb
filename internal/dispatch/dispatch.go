package dispatch

import (
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/markusressel/fangrid/internal/configuration"
	"github.com/markusressel/fangrid/internal/fleet"
	"github.com/markusressel/fangrid/internal/protocol"
	"github.com/markusressel/fangrid/internal/ui"
)

type Channel int

const (
	// ChannelListener frames leave on the discovery socket, broadcast or
	// unicast to a device's listener port.
	ChannelListener Channel = iota
	// ChannelExchange frames are sequenced per device by the link worker
	// and leave on the exchange socket.
	ChannelExchange
)

// Envelope is one outbound frame waiting in the send queue.
type Envelope struct {
	Channel Channel
	// Mac selects the per-device sequence counter for exchange frames.
	Mac  string
	IP   string
	Port int
	Body []byte
}

// Command codes are kept numerically compatible with the legacy control
// surface.
type Command int

const (
	CommandAdd           Command = 3031
	CommandDisconnect    Command = 3032
	CommandReboot        Command = 3033
	CommandShutdown      Command = 3035
	CommandUpdateStart   Command = 3036
	CommandUpdateStop    Command = 3037
	CommandStop          Command = 3038
	CommandBroadcastMode Command = 3039
	CommandBroadcastIP   Command = 3040
	CommandChase         Command = 3043
)

// Broadcast mode values, legacy-compatible.
const (
	BroadcastModeAll      = 8391
	BroadcastModeTargeted = 8392
)

// Target selects the devices an operation applies to. An empty MAC list
// means every registered device.
type Target struct {
	Macs []string
}

func All() Target {
	return Target{}
}

func Single(mac string) Target {
	return Target{Macs: []string{mac}}
}

func Subset(macs ...string) Target {
	return Target{Macs: macs}
}

// Stager stores firmware binaries where devices can fetch them.
type Stager interface {
	Stage(filename string, blob []byte) (int64, error)
	Clear() error
}

// Dispatcher frames commands and queues them for the link worker. Every
// operation is fire-and-forget: no acknowledgement, no retry. While the
// link worker is down all operations are silent no-ops.
type Dispatcher struct {
	registry fleet.Registry
	codec    *protocol.Codec
	flash    *Flash
	stager   Stager

	listenerPort  int
	broadcastPort int

	broadcastMu   sync.RWMutex
	broadcastHost string
	targeted      bool

	active  atomic.Bool
	dropped atomic.Uint64
	outbox  chan Envelope
}

func NewDispatcher(
	registry fleet.Registry,
	codec *protocol.Codec,
	flash *Flash,
	stager Stager,
	config configuration.NetworkConfig,
) *Dispatcher {
	queueSize := config.CommandQueueSize
	if queueSize <= 0 {
		queueSize = 64
	}
	return &Dispatcher{
		registry:      registry,
		codec:         codec,
		flash:         flash,
		stager:        stager,
		listenerPort:  config.ListenerPort,
		broadcastPort: config.BroadcastPort,
		broadcastHost: config.BroadcastAddress.Host(),
		outbox:        make(chan Envelope, queueSize),
	}
}

// SetActive is flipped by the supervisor around the link worker lifecycle.
func (d *Dispatcher) SetActive(active bool) {
	d.active.Store(active)
}

func (d *Dispatcher) Active() bool {
	return d.active.Load()
}

// Outbox is drained by the link worker's send pump.
func (d *Dispatcher) Outbox() <-chan Envelope {
	return d.outbox
}

// Dropped counts frames sacrificed to a full queue.
func (d *Dispatcher) Dropped() uint64 {
	return d.dropped.Load()
}

// SendProbe emits one discovery round: a single broadcast probe, or one
// targeted probe per not-yet-connected device in targeted mode.
func (d *Dispatcher) SendProbe() {
	if !d.active.Load() {
		return
	}
	if d.targetedMode() {
		for _, device := range d.registry.Devices() {
			if !device.Placed() || !device.State.CanDiscover() {
				continue
			}
			d.enqueueBroadcast(d.codec.TargetedProbe(device.Mac, d.listenerPort))
		}
		return
	}
	d.enqueueBroadcast(d.codec.Probe(d.listenerPort))
}

// SendControlVector pushes a dense K-indexed duty vector. The vector must
// cover the whole fleet, the dispatcher neither pads nor truncates. Each
// connected device receives its own K range; devices in firmware update
// are skipped.
func (d *Dispatcher) SendControlVector(vector []float64, target Target) error {
	if !d.active.Load() {
		return nil
	}
	if len(vector) != d.registry.TotalFanCount() {
		return fmt.Errorf("control vector length %d does not match fleet fan count %d", len(vector), d.registry.TotalFanCount())
	}
	stride := d.registry.Stride()
	for _, device := range d.resolve(target) {
		if !device.Placed() || device.State != fleet.StateConnected {
			continue
		}
		start, end := device.KRange(stride)
		body, err := d.codec.DutyVector(vector[start:end])
		if err != nil {
			return err
		}
		d.enqueueExchange(device, body)
	}
	return nil
}

// SendDutySingle drives one duty cycle into the fans selected by the
// device-local mask, the legacy single-value path.
func (d *Dispatcher) SendDutySingle(duty float64, selection string, target Target) {
	if !d.active.Load() {
		return
	}
	for _, device := range d.resolve(target) {
		if device.State != fleet.StateConnected {
			continue
		}
		d.enqueueExchange(device, d.codec.DutySingle(duty, selection))
	}
}

// SendModeCommand starts the on-device chase mode driving fans toward a
// target RPM. A target of zero returns the fans to duty cycle control.
// The payload is opaque here, the device's own controller interprets it.
func (d *Dispatcher) SendModeCommand(fanID int, targetRpm float64, target Target) {
	if !d.active.Load() {
		return
	}
	if len(target.Macs) == 0 {
		d.enqueueBroadcast(d.codec.Chase(fanID, targetRpm))
		return
	}
	for _, device := range d.resolve(target) {
		d.enqueueBroadcast(d.codec.ChaseTargeted(device.Mac, fanID, targetRpm))
	}
}

// StartFirmwareUpdate stages the binary on the firmware server, arms the
// flash state consulted by the link worker and reboots the targets into
// their bootloaders.
func (d *Dispatcher) StartFirmwareUpdate(version string, filename string, blob []byte, target Target) error {
	if !d.active.Load() {
		return nil
	}
	size, err := d.stager.Stage(filename, blob)
	if err != nil {
		return err
	}
	d.flash.Arm(version, filename, size)
	ui.Info("Firmware %s staged as %s (%d bytes), rebooting targets", version, filename, size)

	if len(target.Macs) == 0 {
		d.enqueueBroadcast(d.codec.Reboot())
		return nil
	}
	for _, device := range d.resolve(target) {
		d.enqueueBroadcast(d.codec.RebootTargeted(device.Mac))
	}
	return nil
}

// StopFirmwareUpdate disarms the rollout mid-flight and launches any
// bootloader still waiting for an update frame.
func (d *Dispatcher) StopFirmwareUpdate(target Target) {
	if !d.active.Load() {
		return
	}
	d.flash.Disarm()
	if err := d.stager.Clear(); err != nil {
		ui.Warning("Could not clear staged firmware: %v", err)
	}

	if len(target.Macs) == 0 {
		d.enqueueBroadcast(d.codec.Launch())
		return
	}
	for _, device := range d.resolve(target) {
		if device.Address.IP == "" {
			continue
		}
		d.enqueueListener(device.Address.IP, d.codec.Launch())
	}
}

// BroadcastIP points discovery at a different broadcast target. Accepts a
// dotted quad or the limited broadcast marker.
func (d *Dispatcher) BroadcastIP(address string) error {
	candidate := configuration.BroadcastAddress(address)
	if err := candidate.Validate(); err != nil {
		return err
	}
	d.broadcastMu.Lock()
	d.broadcastHost = candidate.Host()
	d.broadcastMu.Unlock()
	ui.Info("Broadcast target set to %s", candidate.Host())
	return nil
}

// SendGeneric dispatches a numeric command code with string arguments, the
// path the command API surfaces. Firmware updates and backend lifecycle
// codes are handled by their dedicated entry points.
func (d *Dispatcher) SendGeneric(code Command, target Target, payload []string) error {
	if !d.active.Load() {
		return nil
	}
	switch code {
	case CommandAdd:
		for _, device := range d.resolve(target) {
			if !device.State.CanDiscover() {
				continue
			}
			d.enqueueBroadcast(d.codec.TargetedProbe(device.Mac, d.listenerPort))
		}
	case CommandDisconnect:
		for _, device := range d.resolve(target) {
			if device.State.IsConnected() {
				d.enqueueExchange(device, d.codec.Bye())
			} else if device.Address.IP != "" {
				d.enqueueListener(device.Address.IP, d.codec.Disconnect())
			}
		}
	case CommandReboot:
		if len(target.Macs) == 0 {
			d.enqueueBroadcast(d.codec.Reboot())
			break
		}
		for _, device := range d.resolve(target) {
			d.enqueueBroadcast(d.codec.RebootTargeted(device.Mac))
		}
	case CommandShutdown:
		// fleet-wide by definition, targets are ignored
		d.enqueueBroadcast(d.codec.Disconnect())
	case CommandBroadcastMode:
		if len(payload) < 1 {
			return fmt.Errorf("broadcast mode command needs a mode argument")
		}
		mode, err := strconv.Atoi(payload[0])
		if err != nil || (mode != BroadcastModeAll && mode != BroadcastModeTargeted) {
			return fmt.Errorf("broadcast mode %q is invalid", payload[0])
		}
		d.setTargetedMode(mode == BroadcastModeTargeted)
	case CommandBroadcastIP:
		if len(payload) < 1 {
			return fmt.Errorf("broadcast IP command needs an address argument")
		}
		return d.BroadcastIP(payload[0])
	case CommandChase:
		if len(payload) < 2 {
			return fmt.Errorf("chase command needs a fan ID and a target RPM")
		}
		fanID, err := strconv.Atoi(payload[0])
		if err != nil {
			return fmt.Errorf("chase fan ID %q is invalid", payload[0])
		}
		targetRpm, err := strconv.ParseFloat(payload[1], 64)
		if err != nil {
			return fmt.Errorf("chase target RPM %q is invalid", payload[1])
		}
		d.SendModeCommand(fanID, targetRpm, target)
	default:
		return fmt.Errorf("unsupported command code %d", code)
	}
	return nil
}

// EnqueueExchange queues a raw exchange body for one device. The link
// worker uses this for maintenance frames; commands use the Send methods.
func (d *Dispatcher) EnqueueExchange(device fleet.Device, body []byte) {
	if !d.active.Load() {
		return
	}
	d.enqueueExchange(device, body)
}

// EnqueueListener queues a raw listener channel frame for one address.
func (d *Dispatcher) EnqueueListener(ip string, frame []byte) {
	if !d.active.Load() {
		return
	}
	d.enqueueListener(ip, frame)
}

// BroadcastHost returns the current discovery target address.
func (d *Dispatcher) BroadcastHost() string {
	d.broadcastMu.RLock()
	defer d.broadcastMu.RUnlock()
	return d.broadcastHost
}

func (d *Dispatcher) resolve(target Target) []fleet.Device {
	if len(target.Macs) == 0 {
		return d.registry.Devices()
	}
	devices := make([]fleet.Device, 0, len(target.Macs))
	for _, mac := range target.Macs {
		if device, ok := d.registry.Device(mac); ok {
			devices = append(devices, device)
		}
	}
	return devices
}

func (d *Dispatcher) targetedMode() bool {
	d.broadcastMu.RLock()
	defer d.broadcastMu.RUnlock()
	return d.targeted
}

func (d *Dispatcher) setTargetedMode(targeted bool) {
	d.broadcastMu.Lock()
	defer d.broadcastMu.Unlock()
	d.targeted = targeted
}

func (d *Dispatcher) enqueueBroadcast(frame []byte) {
	d.broadcastMu.RLock()
	host := d.broadcastHost
	d.broadcastMu.RUnlock()
	d.enqueueListener(host, frame)
}

func (d *Dispatcher) enqueueListener(ip string, frame []byte) {
	d.enqueue(Envelope{
		Channel: ChannelListener,
		IP:      ip,
		Port:    d.broadcastPort,
		Body:    frame,
	})
}

func (d *Dispatcher) enqueueExchange(device fleet.Device, body []byte) {
	d.enqueue(Envelope{
		Channel: ChannelExchange,
		Mac:     device.Mac,
		IP:      device.Address.IP,
		Port:    device.Address.MosiPort,
		Body:    body,
	})
}

// enqueue never blocks; when the queue is full the oldest frame is
// sacrificed so the newest command wins.
func (d *Dispatcher) enqueue(envelope Envelope) {
	select {
	case d.outbox <- envelope:
		return
	default:
	}
	select {
	case <-d.outbox:
		d.dropped.Add(1)
		ui.Debug("Outbound queue full, dropped oldest frame (%d dropped total)", d.dropped.Load())
	default:
	}
	select {
	case d.outbox <- envelope:
	default:
		d.dropped.Add(1)
	}
}
