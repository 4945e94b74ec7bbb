package supervisor

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"syscall"
	"time"

	"github.com/markusressel/fangrid/internal/dispatch"
	"github.com/markusressel/fangrid/internal/fleet"
	"github.com/markusressel/fangrid/internal/protocol"
	"github.com/markusressel/fangrid/internal/ui"
)

func (s *Supervisor) openSockets() error {
	s.socketMu.Lock()
	defer s.socketMu.Unlock()

	listenerConn, err := net.ListenUDP("udp4", &net.UDPAddr{Port: s.config.Network.ListenerPort})
	if err != nil {
		return fmt.Errorf("cannot bind listener port %d: %w", s.config.Network.ListenerPort, err)
	}
	if err = enableBroadcast(listenerConn); err != nil {
		_ = listenerConn.Close()
		return err
	}
	exchangeConn, err := net.ListenUDP("udp4", &net.UDPAddr{Port: s.config.Network.ExchangePort})
	if err != nil {
		_ = listenerConn.Close()
		return fmt.Errorf("cannot bind exchange port %d: %w", s.config.Network.ExchangePort, err)
	}
	s.listenerConn = listenerConn
	s.exchangeConn = exchangeConn
	return nil
}

func (s *Supervisor) closeSockets() {
	s.socketMu.Lock()
	defer s.socketMu.Unlock()
	if s.listenerConn != nil {
		_ = s.listenerConn.Close()
		s.listenerConn = nil
	}
	if s.exchangeConn != nil {
		_ = s.exchangeConn.Close()
		s.exchangeConn = nil
	}
}

func (s *Supervisor) sockets() (listener *net.UDPConn, exchange *net.UDPConn) {
	s.socketMu.Lock()
	defer s.socketMu.Unlock()
	return s.listenerConn, s.exchangeConn
}

// enableBroadcast allows sending probes to the limited broadcast address.
func enableBroadcast(conn *net.UDPConn) error {
	raw, err := conn.SyscallConn()
	if err != nil {
		return err
	}
	var sockErr error
	err = raw.Control(func(fd uintptr) {
		sockErr = syscall.SetsockoptInt(int(fd), syscall.SOL_SOCKET, syscall.SO_BROADCAST, 1)
	})
	if err != nil {
		return err
	}
	return sockErr
}

func (s *Supervisor) receiveListener(ctx context.Context) error {
	conn, _ := s.sockets()
	if conn == nil {
		return errors.New("listener socket is not open")
	}
	buffer := make([]byte, s.config.Network.MaxFrameLength)
	for {
		length, source, err := conn.ReadFromUDP(buffer)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			s.workerFailed.Store(true)
			return fmt.Errorf("listener receive failed: %w", err)
		}
		datagram := make([]byte, length)
		copy(datagram, buffer[:length])
		s.handleListenerDatagram(datagram, source.IP.String())
	}
}

func (s *Supervisor) receiveExchange(ctx context.Context) error {
	_, conn := s.sockets()
	if conn == nil {
		return errors.New("exchange socket is not open")
	}
	buffer := make([]byte, s.config.Network.MaxFrameLength)
	for {
		length, source, err := conn.ReadFromUDP(buffer)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			s.workerFailed.Store(true)
			return fmt.Errorf("exchange receive failed: %w", err)
		}
		datagram := make([]byte, length)
		copy(datagram, buffer[:length])
		s.handleExchangeDatagram(datagram, source.IP.String())
	}
}

func (s *Supervisor) sendPump(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case envelope := <-s.dispatcher.Outbox():
			s.transmit(envelope)
		}
	}
}

// transmit writes a single queued envelope to the wire. Exchange frames
// get their sequence number stamped here, right before the send, so the
// per device counters stay gapless regardless of queueing order.
func (s *Supervisor) transmit(envelope dispatch.Envelope) {
	listenerConn, exchangeConn := s.sockets()
	ip := net.ParseIP(envelope.IP)
	if ip == nil {
		ui.Warning("Dropping frame for unresolvable address %q", envelope.IP)
		return
	}
	address := &net.UDPAddr{IP: ip, Port: envelope.Port}

	conn := listenerConn
	frame := envelope.Body
	if envelope.Channel == dispatch.ChannelExchange {
		conn = exchangeConn
		frame = s.codec.Stamp(s.nextSequence(envelope.Mac), envelope.Body)
	}
	if conn == nil {
		return
	}
	if _, err := conn.WriteToUDP(frame, address); err != nil {
		ui.Debug("Send to %s failed: %v", address, err)
	}
}

func (s *Supervisor) nextSequence(mac string) uint64 {
	s.seqMu.Lock()
	defer s.seqMu.Unlock()
	s.outSequences[mac]++
	return s.outSequences[mac]
}

// resetSequences restarts both counters of a device, done whenever a new
// exchange is handshaked after the device rebooted or reconnected.
func (s *Supervisor) resetSequences(mac string) {
	s.seqMu.Lock()
	defer s.seqMu.Unlock()
	s.outSequences[mac] = 0
	s.inSequences[mac] = 0
}

// admitInbound drops duplicated and reordered exchange frames. Sequence
// numbers only ever move forward within one exchange session.
func (s *Supervisor) admitInbound(mac string, sequence uint64) bool {
	s.seqMu.Lock()
	defer s.seqMu.Unlock()
	if sequence <= s.inSequences[mac] {
		return false
	}
	s.inSequences[mac] = sequence
	return true
}

func (s *Supervisor) handleListenerDatagram(datagram []byte, sourceIP string) {
	reply, err := s.codec.ParseListenerReply(datagram)
	if err != nil {
		if errors.Is(err, protocol.ErrWrongPasscode) {
			ui.Warning("Dropping discovery reply from %s: %v", sourceIP, err)
		} else {
			ui.Debug("Ignoring malformed listener datagram from %s: %v", sourceIP, err)
		}
		return
	}

	if reply.Error != "" {
		ui.Warning("Device %s at %s reports: %s", reply.Mac, sourceIP, reply.Error)
		return
	}

	if reply.Bootloader {
		s.handleBootloader(reply, sourceIP)
		return
	}
	s.handleApplication(reply, sourceIP)
}

// handleBootloader deals with devices answering from their bootloader.
// Without an armed rollout they are booted into the application, with
// one they are pointed at the staged firmware image.
func (s *Supervisor) handleBootloader(reply protocol.ListenerReply, sourceIP string) {
	version, filename, size, armed := s.flash.Details()
	if !armed {
		s.dispatcher.EnqueueListener(sourceIP, s.codec.Launch())
		return
	}
	frame, err := s.codec.FirmwareUpdate(s.config.Network.ListenerPort, s.config.Firmware.HttpPort, filename, size)
	if err != nil {
		ui.Error("Cannot frame firmware update command: %v", err)
		return
	}
	if _, ok := s.registry.Device(reply.Mac); ok {
		s.registry.MarkUpdating(reply.Mac)
	}
	s.dispatcher.EnqueueListener(sourceIP, frame)
	ui.Info("Bootloader %s at %s is fetching firmware %s", reply.Mac, sourceIP, version)
}

func (s *Supervisor) handleApplication(reply protocol.ListenerReply, sourceIP string) {
	if version, _, _, armed := s.flash.Details(); armed && reply.Version != version {
		// wrong application version while a rollout is armed, send the
		// device back into its bootloader
		s.dispatcher.EnqueueListener(sourceIP, s.codec.Reboot())
		return
	}

	address := fleet.Address{IP: sourceIP, MisoPort: reply.MisoPort, MosiPort: reply.MosiPort}

	if _, known := s.registry.Device(reply.Mac); !known {
		s.registerAvailable(reply, address)
		return
	}

	device, changed := s.registry.MarkDiscovered(reply.Mac, address, reply.Version)
	if !changed {
		return
	}
	s.ipToMac.Set(sourceIP, reply.Mac)
	if err := s.persistence.SaveDeviceAddress(reply.Mac, address); err != nil {
		ui.Warning("Could not persist address of %s: %v", reply.Mac, err)
	}
	if !device.Placed() {
		ui.Info("Known device %s (%s) came back at %s", device.Name, device.Mac, sourceIP)
		return
	}

	s.store.ResetDevice(device.Ordinal)
	s.resetSequences(device.Mac)
	s.dispatcher.EnqueueExchange(device, s.codec.Handshake(
		s.config.Network.ExchangePort,
		s.config.Network.ExchangePort,
		s.config.Network.ExchangePeriod,
		s.config.Network.BroadcastPeriod,
		s.config.Network.MaxTimeouts,
		s.config.MaxFans,
		s.config.MaxRpm,
	))
	ui.Success("Device %s (%s) connected from %s running %s", device.Name, device.Mac, sourceIP, device.Version)
}

// registerAvailable tracks a device that answered the probe but has no
// slot in the grid. It can be placed later without another discovery.
func (s *Supervisor) registerAvailable(reply protocol.ListenerReply, address fleet.Address) {
	name, err := s.persistence.LoadDeviceName(reply.Mac)
	if err != nil || name == "" {
		name = fleet.NewDeviceName()
		if err = s.persistence.SaveDeviceName(reply.Mac, name); err != nil {
			ui.Warning("Could not persist name of %s: %v", reply.Mac, err)
		}
	}
	device := s.registry.RegisterAvailable(reply.Mac, name, s.config.MaxFans, address, reply.Version)
	s.ipToMac.Set(address.IP, reply.Mac)
	ui.Info("Unlisted device discovered: %s (%s) at %s", device.Name, device.Mac, address.IP)
}

func (s *Supervisor) handleExchangeDatagram(datagram []byte, sourceIP string) {
	mac, ok := s.ipToMac.Get(sourceIP)
	if !ok {
		ui.Debug("Ignoring exchange datagram from unknown source %s", sourceIP)
		return
	}
	frame, err := s.codec.ParseExchangeFrame(datagram)
	if err != nil {
		ui.Debug("Ignoring malformed exchange datagram from %s: %v", sourceIP, err)
		return
	}
	if !s.admitInbound(mac, frame.Sequence) {
		return
	}
	s.registry.Heartbeat(mac, time.Now())

	switch frame.Keyword {
	case protocol.KeywordTelemetry:
		s.ingestTelemetry(mac, frame)
	case protocol.KeywordKeepalive:
		// heartbeat is already recorded
	case protocol.KeywordError:
		ui.Warning("Device %s reports: %s", mac, strings.Join(frame.Fields, "|"))
	default:
		ui.Debug("Unknown exchange keyword %q from %s", frame.Keyword, mac)
	}
}

func (s *Supervisor) ingestTelemetry(mac string, frame protocol.ExchangeFrame) {
	telemetryFrame, err := s.codec.DecodeTelemetry(frame)
	if err != nil {
		ui.Debug("Dropping telemetry from %s: %v", mac, err)
		return
	}
	device, ok := s.registry.Device(mac)
	if !ok || !device.Placed() {
		return
	}
	s.store.Ingest(device.Ordinal, telemetryFrame.DataIndex, telemetryFrame.Rpms, telemetryFrame.Duties)
}

// broadcastDisconnect tells all devices on the segment to drop their
// connection state. Written directly because it runs during shutdown,
// after the send pump may already be gone.
func (s *Supervisor) broadcastDisconnect() {
	listenerConn, _ := s.sockets()
	if listenerConn == nil {
		return
	}
	ip := net.ParseIP(s.dispatcher.BroadcastHost())
	if ip == nil {
		return
	}
	address := &net.UDPAddr{IP: ip, Port: s.config.Network.BroadcastPort}
	// repeated because the channel is lossy
	for i := 0; i < 2; i++ {
		_, _ = listenerConn.WriteToUDP(s.codec.Disconnect(), address)
	}
}
