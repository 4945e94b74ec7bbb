package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/markusressel/fangrid/internal/configuration"
	"github.com/markusressel/fangrid/internal/fleet"
	"github.com/markusressel/fangrid/internal/telemetry"
	"github.com/markusressel/fangrid/internal/ui"
)

// Bridge mirrors the fleet state onto an MQTT broker: periodic telemetry
// snapshots plus retained per-device state topics. Consumers are home
// automation and dashboards, so everything is plain JSON at QoS 0.
type Bridge struct {
	config   configuration.BridgeConfig
	registry fleet.Registry
	store    telemetry.Store

	client mqtt.Client
}

func NewBridge(config configuration.BridgeConfig, registry fleet.Registry, store telemetry.Store) *Bridge {
	return &Bridge{
		config:   config,
		registry: registry,
		store:    store,
	}
}

// Run connects to the broker and publishes snapshots until the context is
// cancelled. Reconnects are left to the client's auto reconnect.
func (b *Bridge) Run(ctx context.Context) error {
	options := mqtt.NewClientOptions().
		AddBroker(b.config.Broker).
		SetClientID("fangrid").
		SetUsername(b.config.Username).
		SetPassword(b.config.Password).
		SetAutoReconnect(true).
		SetConnectRetry(true)

	b.client = mqtt.NewClient(options)
	if token := b.client.Connect(); token.Wait() && token.Error() != nil {
		return fmt.Errorf("cannot connect to broker %s: %w", b.config.Broker, token.Error())
	}
	defer b.client.Disconnect(250)
	ui.Info("Bridge connected to %s", b.config.Broker)

	tick := time.Tick(b.config.PublishPeriod)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-tick:
			b.publishTelemetry()
			b.publishFleet()
		}
	}
}

// PublishEvent pushes a single device state change as a retained message,
// so late subscribers see the current state immediately.
func (b *Bridge) PublishEvent(event fleet.Event) {
	if b.client == nil || !b.client.IsConnectionOpen() {
		return
	}
	if event.Kind == fleet.EventLinkDown {
		b.publish(b.topic("link"), "down", true)
		return
	}
	b.publish(b.topic("fleet", event.Device.Mac, "state"), string(event.Device.State), true)
}

func (b *Bridge) publishTelemetry() {
	type wireTelemetry struct {
		Rpms   []int     `json:"rpms"`
		Duties []float64 `json:"duties"`
	}
	rpms, duties := b.store.WireVectors()
	b.publishJson(b.topic("telemetry"), wireTelemetry{Rpms: rpms, Duties: duties})
}

func (b *Bridge) publishFleet() {
	b.publishJson(b.topic("fleet"), b.registry.Devices())
}

func (b *Bridge) publishJson(topic string, payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		ui.Warning("Cannot marshal payload for %s: %v", topic, err)
		return
	}
	b.publish(topic, string(data), false)
}

func (b *Bridge) publish(topic string, payload string, retained bool) {
	token := b.client.Publish(topic, 0, retained, payload)
	go func() {
		if token.Wait() && token.Error() != nil {
			ui.Debug("Publish to %s failed: %v", topic, token.Error())
		}
	}()
}

func (b *Bridge) topic(parts ...string) string {
	topic := b.config.TopicRoot
	for _, part := range parts {
		topic += "/" + part
	}
	return topic
}
