package statistics

import (
	"strconv"

	"github.com/markusressel/fangrid/internal/telemetry"
	"github.com/prometheus/client_golang/prometheus"
)

const telemetrySubsystem = "telemetry"

type TelemetryCollector struct {
	store telemetry.Store
	rpm   *prometheus.Desc
	duty  *prometheus.Desc
}

func NewTelemetryCollector(store telemetry.Store) *TelemetryCollector {
	return &TelemetryCollector{
		store: store,
		rpm: prometheus.NewDesc(prometheus.BuildFQName(namespace, telemetrySubsystem, "rpm"),
			"Last reported RPM of the fan",
			[]string{"k"}, nil,
		),
		duty: prometheus.NewDesc(prometheus.BuildFQName(namespace, telemetrySubsystem, "duty"),
			"Last reported duty cycle of the fan",
			[]string{"k"}, nil,
		),
	}
}

func (collector *TelemetryCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- collector.rpm
	ch <- collector.duty
}

// Collect implements required collect function for all prometheus collectors.
// Fans without a live reading are absent from the scrape instead of
// exporting a sentinel.
func (collector *TelemetryCollector) Collect(ch chan<- prometheus.Metric) {
	for k, sample := range collector.store.Snapshot() {
		if sample.Tag != telemetry.TagValue {
			continue
		}
		label := strconv.Itoa(k)
		ch <- prometheus.MustNewConstMetric(collector.rpm, prometheus.GaugeValue, float64(sample.Rpm), label)
		ch <- prometheus.MustNewConstMetric(collector.duty, prometheus.GaugeValue, sample.Duty, label)
	}
}
