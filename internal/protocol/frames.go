package protocol

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrWrongPasscode marks frames from devices configured for a different
// fleet. They are logged and dropped, never answered.
var ErrWrongPasscode = errors.New("wrong passcode")

// ListenerReply is a discovery channel answer, either from a running
// application or from a bootloader waiting for firmware.
type ListenerReply struct {
	Bootloader bool
	Mac        string
	MisoPort   int
	MosiPort   int
	Version    string
	// Error carries a device reported problem. The reply is still keyed
	// to its MAC so the device can be surfaced.
	Error string
}

// ExchangeFrame is one sequenced inbound frame on the exchange channel.
type ExchangeFrame struct {
	Sequence uint64
	Keyword  string
	Fields   []string
}

// TelemetryFrame is the decoded payload of a KeywordTelemetry frame.
type TelemetryFrame struct {
	DataIndex uint64
	Rpms      []int
	Duties    []float64
}

func (c *Codec) ParseListenerReply(datagram []byte) (ListenerReply, error) {
	reply := ListenerReply{}
	fields := strings.Split(clean(datagram), "|")
	if len(fields) < 4 {
		return reply, fmt.Errorf("listener frame has %d fields, need at least 4", len(fields))
	}

	kind := fields[0]
	if kind != "A" && kind != "B" {
		return reply, fmt.Errorf("unknown listener frame kind %q", kind)
	}
	if fields[1] != c.passcode {
		return reply, fmt.Errorf("%w: got %q", ErrWrongPasscode, fields[1])
	}
	if len(fields[2]) != 17 {
		return reply, fmt.Errorf("MAC %q is invalid, must be 17 characters", fields[2])
	}
	reply.Bootloader = kind == "B"
	reply.Mac = fields[2]

	switch fields[3] {
	case "N":
		if reply.Bootloader {
			if len(fields) < 5 {
				return reply, fmt.Errorf("bootloader reply has %d fields, need 5", len(fields))
			}
			reply.Version = fields[4]
			return reply, nil
		}
		if len(fields) < 7 {
			return reply, fmt.Errorf("application reply has %d fields, need 7", len(fields))
		}
		misoPort, err := parsePort(fields[4])
		if err != nil {
			return reply, err
		}
		mosiPort, err := parsePort(fields[5])
		if err != nil {
			return reply, err
		}
		reply.MisoPort = misoPort
		reply.MosiPort = mosiPort
		reply.Version = fields[6]
		return reply, nil
	case KeywordError:
		reply.Error = strings.Join(fields[4:], "|")
		return reply, nil
	default:
		return reply, fmt.Errorf("unknown listener reply status %q", fields[3])
	}
}

func (c *Codec) ParseExchangeFrame(datagram []byte) (ExchangeFrame, error) {
	frame := ExchangeFrame{}
	fields := strings.Split(clean(datagram), "|")
	if len(fields) < 2 {
		return frame, fmt.Errorf("exchange frame has %d fields, need at least 2", len(fields))
	}
	sequence, err := strconv.ParseUint(fields[0], 10, 64)
	if err != nil {
		return frame, fmt.Errorf("exchange sequence %q is not a number", fields[0])
	}
	if fields[1] == "" {
		return frame, errors.New("exchange frame has an empty keyword")
	}
	frame.Sequence = sequence
	frame.Keyword = fields[1]
	frame.Fields = fields[2:]
	return frame, nil
}

func (c *Codec) DecodeTelemetry(frame ExchangeFrame) (TelemetryFrame, error) {
	telemetry := TelemetryFrame{}
	if frame.Keyword != KeywordTelemetry {
		return telemetry, fmt.Errorf("frame keyword %q is not telemetry", frame.Keyword)
	}
	if len(frame.Fields) < 3 {
		return telemetry, fmt.Errorf("telemetry frame has %d payload fields, need 3", len(frame.Fields))
	}

	dataIndex, err := strconv.ParseUint(frame.Fields[0], 10, 64)
	if err != nil {
		return telemetry, fmt.Errorf("telemetry data index %q is not a number", frame.Fields[0])
	}
	telemetry.DataIndex = dataIndex

	for _, field := range strings.Split(frame.Fields[1], ",") {
		rpm, err := strconv.Atoi(strings.TrimSpace(field))
		if err != nil {
			return telemetry, fmt.Errorf("telemetry RPM %q is not a number", field)
		}
		telemetry.Rpms = append(telemetry.Rpms, rpm)
	}
	for _, field := range strings.Split(frame.Fields[2], ",") {
		duty, err := strconv.ParseFloat(strings.TrimSpace(field), 64)
		if err != nil {
			return telemetry, fmt.Errorf("telemetry duty cycle %q is not a number", field)
		}
		telemetry.Duties = append(telemetry.Duties, duty)
	}
	return telemetry, nil
}

func parsePort(field string) (int, error) {
	port, err := strconv.Atoi(field)
	if err != nil || port < 1 || port > 65535 {
		return 0, fmt.Errorf("port %q is invalid", field)
	}
	return port, nil
}

// clean strips padding some firmware versions append to their datagrams.
func clean(datagram []byte) string {
	return strings.TrimSpace(strings.TrimRight(string(datagram), "\x00"))
}
