package protocol

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Exchange channel keywords a device may send back.
const (
	KeywordTelemetry = "T"
	KeywordKeepalive = "P"
	KeywordError     = "E"
)

// Codec builds and parses the ASCII pipe-separated frames spoken by the
// embedded controllers. The grammar is legacy-compatible, do not change
// field order or separators.
type Codec struct {
	passcode   string
	dcDecimals int
	maxLength  int
}

func NewCodec(passcode string, dcDecimals int, maxFrameLength int) *Codec {
	return &Codec{
		passcode:   passcode,
		dcDecimals: dcDecimals,
		maxLength:  maxFrameLength,
	}
}

// Probe is the periodic discovery broadcast. Devices answer it on the
// given listener port.
func (c *Codec) Probe(listenerPort int) []byte {
	return []byte(fmt.Sprintf("N|%s|%d", c.passcode, listenerPort))
}

// TargetedProbe wraps the probe payload for a single MAC, used in targeted
// broadcast mode where a full broadcast probe is undesirable.
func (c *Codec) TargetedProbe(mac string, listenerPort int) []byte {
	return []byte(fmt.Sprintf("J|%s|%s|%d", c.passcode, mac, listenerPort))
}

// Launch tells a device sitting in its bootloader to start the application.
func (c *Codec) Launch() []byte {
	return []byte("L|" + c.passcode)
}

// Reboot requests a device reset over the listener channel.
func (c *Codec) Reboot() []byte {
	return []byte("R|" + c.passcode)
}

// RebootTargeted addresses the reset at one MAC over broadcast, usable
// even when the device's IP is not known yet.
func (c *Codec) RebootTargeted(mac string) []byte {
	return []byte(fmt.Sprintf("r|%s|%s", c.passcode, mac))
}

// Disconnect tells a device to drop its connection state.
func (c *Codec) Disconnect() []byte {
	return []byte("X|" + c.passcode)
}

// FirmwareUpdate announces a staged firmware binary to a device bootloader.
func (c *Codec) FirmwareUpdate(listenerPort int, httpPort int, filename string, size int64) ([]byte, error) {
	frame := []byte(fmt.Sprintf("U|%s|%d|%d|%s|%d", c.passcode, listenerPort, httpPort, filename, size))
	if len(frame) > c.maxLength {
		return nil, fmt.Errorf("firmware frame length %d exceeds maximum %d", len(frame), c.maxLength)
	}
	return frame, nil
}

// Chase broadcasts an on-device RPM chase target.
func (c *Codec) Chase(fanID int, targetRpm float64) []byte {
	return []byte(fmt.Sprintf("C|%s|%d|%s", c.passcode, fanID, formatRpm(targetRpm)))
}

// ChaseTargeted addresses the chase target at one MAC.
func (c *Codec) ChaseTargeted(mac string, fanID int, targetRpm float64) []byte {
	return []byte(fmt.Sprintf("c|%s|%d|%s|%s", c.passcode, fanID, formatRpm(targetRpm), mac))
}

// ChaseSelection carries a per-fan selection mask along with the target.
func (c *Codec) ChaseSelection(fanID int, targetRpm float64, selection string) []byte {
	return []byte(fmt.Sprintf("CS|%s|%d|%s|%s", c.passcode, fanID, formatRpm(targetRpm), selection))
}

// Exchange channel bodies are built without their sequence prefix. The
// link worker owns the per-device counters and applies them with Stamp
// right before the frame leaves.

// Handshake opens an exchange connection. The first block carries the
// network parameters, the second the fan array parameters.
func (c *Codec) Handshake(misoPort int, mosiPort int, exchangePeriod time.Duration, broadcastPeriod time.Duration, maxTimeouts int, maxFans int, maxRpm int) []byte {
	return []byte(fmt.Sprintf("H|%d,%d,%d,%d,%d|%d,%d,%d",
		misoPort,
		mosiPort,
		exchangePeriod.Milliseconds(),
		broadcastPeriod.Milliseconds(),
		maxTimeouts,
		maxFans,
		maxRpm,
		c.dcDecimals,
	))
}

// DutySingle drives one duty cycle into the fans marked '1' in the
// device-local selection mask.
func (c *Codec) DutySingle(duty float64, selection string) []byte {
	return []byte(fmt.Sprintf("S|D:%s:%s", c.formatDuty(duty), selection))
}

// DutyVector drives one duty cycle per device-local fan.
func (c *Codec) DutyVector(duties []float64) ([]byte, error) {
	formatted := make([]string, len(duties))
	for i, duty := range duties {
		formatted[i] = c.formatDuty(duty)
	}
	body := []byte("S|F:" + strings.Join(formatted, ","))
	if len(body) > c.maxLength {
		return nil, fmt.Errorf("duty vector frame length %d exceeds maximum %d", len(body), c.maxLength)
	}
	return body, nil
}

// Ping asks a silent device for an immediate reply.
func (c *Codec) Ping() []byte {
	return []byte("Q")
}

// Keepalive keeps an idle exchange connection open.
func (c *Codec) Keepalive() []byte {
	return []byte("P")
}

// Bye closes the exchange connection of one device.
func (c *Codec) Bye() []byte {
	return []byte("X")
}

// Stamp prefixes an exchange body with its outbound sequence number.
func (c *Codec) Stamp(sequence uint64, body []byte) []byte {
	return append([]byte(strconv.FormatUint(sequence, 10)+"|"), body...)
}

func (c *Codec) formatDuty(duty float64) string {
	return strconv.FormatFloat(duty, 'f', c.dcDecimals, 64)
}

func formatRpm(rpm float64) string {
	return strconv.FormatFloat(rpm, 'f', -1, 64)
}
