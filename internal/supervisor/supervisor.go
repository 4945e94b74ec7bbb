package supervisor

import (
	"context"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/markusressel/fangrid/internal/configuration"
	"github.com/markusressel/fangrid/internal/dispatch"
	"github.com/markusressel/fangrid/internal/fleet"
	"github.com/markusressel/fangrid/internal/persistence"
	"github.com/markusressel/fangrid/internal/protocol"
	"github.com/markusressel/fangrid/internal/telemetry"
	"github.com/markusressel/fangrid/internal/ui"
	"github.com/oklog/run"
	cmap "github.com/orcaman/concurrent-map/v2"
)

// Supervisor owns the network path to the fleet: both UDP sockets, the
// discovery loop and the liveness machinery. Everything else talks to
// devices through the dispatcher's queue only.
type Supervisor struct {
	config      configuration.Configuration
	registry    fleet.Registry
	store       telemetry.Store
	dispatcher  *dispatch.Dispatcher
	codec       *protocol.Codec
	flash       *dispatch.Flash
	persistence persistence.Persistence

	mu     sync.Mutex
	active bool
	cancel context.CancelFunc
	done   chan struct{}

	socketMu     sync.Mutex
	listenerConn *net.UDPConn
	exchangeConn *net.UDPConn

	// maps source IPs to MACs for exchange channel demultiplexing
	ipToMac cmap.ConcurrentMap[string, string]

	seqMu        sync.Mutex
	outSequences map[string]uint64
	inSequences  map[string]uint64

	workerFailed atomic.Bool
}

func NewSupervisor(
	config configuration.Configuration,
	registry fleet.Registry,
	store telemetry.Store,
	dispatcher *dispatch.Dispatcher,
	codec *protocol.Codec,
	flash *dispatch.Flash,
	persistence persistence.Persistence,
) *Supervisor {
	return &Supervisor{
		config:       config,
		registry:     registry,
		store:        store,
		dispatcher:   dispatcher,
		codec:        codec,
		flash:        flash,
		persistence:  persistence,
		ipToMac:      cmap.New[string](),
		outSequences: map[string]uint64{},
		inSequences:  map[string]uint64{},
	}
}

// Start brings up the link worker. Starting an already running supervisor
// logs and does nothing.
func (s *Supervisor) Start() error {
	s.mu.Lock()
	if s.active {
		s.mu.Unlock()
		ui.Warning("Fleet link is already running")
		return nil
	}

	if err := s.openSockets(); err != nil {
		s.mu.Unlock()
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	s.cancel = cancel
	s.done = done
	s.active = true
	s.workerFailed.Store(false)
	s.mu.Unlock()

	s.registry.Activate()
	s.dispatcher.SetActive(true)
	ui.Info("Fleet link started, probing %s:%d", s.dispatcher.BroadcastHost(), s.config.Network.BroadcastPort)

	go func() {
		defer close(done)
		if err := s.run(ctx); err != nil {
			ui.Error("Fleet link terminated: %v", err)
		}
		s.dispatcher.SetActive(false)
		s.mu.Lock()
		s.active = false
		s.mu.Unlock()
	}()
	return nil
}

// Stop tears the link worker down. The join is bounded: workers that do
// not come back within the stop timeout lose their sockets, which
// unblocks any hung receive. Stopping an inactive supervisor is a no-op.
func (s *Supervisor) Stop() {
	s.mu.Lock()
	if !s.active {
		s.mu.Unlock()
		ui.Debug("Fleet link is already stopped")
		return
	}
	cancel := s.cancel
	done := s.done
	s.mu.Unlock()

	// best effort goodbye so devices drop their connection state quickly
	s.broadcastDisconnect()

	cancel()
	select {
	case <-done:
	case <-time.After(s.stopTimeout()):
		ui.Warning("Link worker did not stop within %s, closing sockets", s.stopTimeout())
		s.closeSockets()
		<-done
	}

	for _, device := range s.registry.Devices() {
		if device.State.IsConnected() {
			s.registry.MarkDisconnected(device.Mac)
			if device.Placed() {
				s.store.MarkDisconnected(device.Ordinal)
			}
		}
	}
	ui.Info("Fleet link stopped")
}

func (s *Supervisor) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

func (s *Supervisor) run(ctx context.Context) error {
	defer s.closeSockets()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var g run.Group
	{
		// discovery probes, liveness sweeps and exchange servicing
		g.Add(func() error {
			return s.maintenanceLoop(ctx)
		}, func(err error) {
			cancel()
		})
	}
	{
		// discovery reply receive loop
		g.Add(func() error {
			return s.receiveListener(ctx)
		}, func(err error) {
			cancel()
			s.closeSockets()
		})
	}
	{
		// telemetry receive loop
		g.Add(func() error {
			return s.receiveExchange(ctx)
		}, func(err error) {
			cancel()
			s.closeSockets()
		})
	}
	{
		// send pump draining the outbound queue
		g.Add(func() error {
			return s.sendPump(ctx)
		}, func(err error) {
			cancel()
		})
	}
	{
		// watchdog: when a socket loop dies underneath us the fleet must
		// not keep showing stale Connected states
		g.Add(func() error {
			<-ctx.Done()
			if s.workerFailed.Load() {
				ui.Error("Link worker died, marking the whole fleet as timed out")
				s.registry.DegradeAll()
				s.store.MarkFleetDisconnected()
				s.registry.EmitLinkDown()
			}
			return nil
		}, func(err error) {
			cancel()
		})
	}
	return g.Run()
}

func (s *Supervisor) maintenanceLoop(ctx context.Context) error {
	probeTick := time.Tick(s.config.Network.BroadcastPeriod)
	exchangeTick := time.Tick(s.config.Network.ExchangePeriod)

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-probeTick:
			s.registry.BeginDiscovery()
			s.dispatcher.SendProbe()
			s.sweep()
		case <-exchangeTick:
			s.serviceExchanges()
		}
	}
}

// sweep degrades connected devices that have been silent for longer than
// the liveness window and poisons their telemetry.
func (s *Supervisor) sweep() {
	window := time.Duration(s.config.Network.LivenessFactor) * s.config.Network.BroadcastPeriod
	for _, device := range s.registry.SweepTimedOut(time.Now(), window) {
		s.store.MarkDisconnected(device.Ordinal)
		ui.Warning("Device %s (%s) timed out, nothing received for %s", device.Name, device.Mac, window)
	}
}

// serviceExchanges keeps every connected device's exchange alive. Devices
// count master silence against their own timeout, so each period every
// connection sees at least a keepalive. Silent devices are pinged and
// eventually dropped.
func (s *Supervisor) serviceExchanges() {
	now := time.Now()
	for _, device := range s.registry.Devices() {
		if !device.Placed() || device.State != fleet.StateConnected {
			continue
		}
		if now.Sub(device.LastSeen) <= s.config.Network.ExchangePeriod {
			s.dispatcher.EnqueueExchange(device, s.codec.Keepalive())
			continue
		}
		misses := s.registry.RecordMiss(device.Mac)
		switch {
		case misses > s.config.Network.MaxTimeouts:
			ui.Warning("Device %s (%s) missed %d exchanges, dropping the connection", device.Name, device.Mac, misses)
			s.dispatcher.EnqueueExchange(device, s.codec.Bye())
			s.registry.MarkTimedOut(device.Mac)
			s.store.MarkDisconnected(device.Ordinal)
		case misses >= s.config.Network.MaxTimeouts-1:
			s.dispatcher.EnqueueExchange(device, s.codec.Ping())
		default:
			s.dispatcher.EnqueueExchange(device, s.codec.Keepalive())
		}
	}
}

func (s *Supervisor) stopTimeout() time.Duration {
	if s.config.Network.StopTimeout <= 0 {
		return 500 * time.Millisecond
	}
	return s.config.Network.StopTimeout
}
