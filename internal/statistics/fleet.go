package statistics

import (
	"github.com/markusressel/fangrid/internal/fleet"
	"github.com/prometheus/client_golang/prometheus"
)

const fleetSubsystem = "fleet"

type FleetCollector struct {
	registry  fleet.Registry
	connected *prometheus.Desc
	misses    *prometheus.Desc
}

func NewFleetCollector(registry fleet.Registry) *FleetCollector {
	return &FleetCollector{
		registry: registry,
		connected: prometheus.NewDesc(prometheus.BuildFQName(namespace, fleetSubsystem, "connected"),
			"Whether the device currently has a live exchange",
			[]string{"mac", "name"}, nil,
		),
		misses: prometheus.NewDesc(prometheus.BuildFQName(namespace, fleetSubsystem, "missed_exchanges"),
			"Consecutive exchange periods without a frame from the device",
			[]string{"mac", "name"}, nil,
		),
	}
}

func (collector *FleetCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- collector.connected
	ch <- collector.misses
}

// Collect implements required collect function for all prometheus collectors
func (collector *FleetCollector) Collect(ch chan<- prometheus.Metric) {
	for _, device := range collector.registry.Devices() {
		connected := 0.0
		if device.State.IsConnected() {
			connected = 1.0
		}
		ch <- prometheus.MustNewConstMetric(collector.connected, prometheus.GaugeValue, connected, device.Mac, device.Name)
		ch <- prometheus.MustNewConstMetric(collector.misses, prometheus.GaugeValue, float64(device.Misses), device.Mac, device.Name)
	}
}
