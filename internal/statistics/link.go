package statistics

import (
	"github.com/markusressel/fangrid/internal/dispatch"
	"github.com/prometheus/client_golang/prometheus"
)

const linkSubsystem = "link"

type LinkCollector struct {
	dispatcher *dispatch.Dispatcher
	dropped    *prometheus.Desc
}

func NewLinkCollector(dispatcher *dispatch.Dispatcher) *LinkCollector {
	return &LinkCollector{
		dispatcher: dispatcher,
		dropped: prometheus.NewDesc(prometheus.BuildFQName(namespace, linkSubsystem, "dropped_frames_total"),
			"Outbound frames sacrificed because the send queue was full",
			nil, nil,
		),
	}
}

func (collector *LinkCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- collector.dropped
}

// Collect implements required collect function for all prometheus collectors
func (collector *LinkCollector) Collect(ch chan<- prometheus.Metric) {
	ch <- prometheus.MustNewConstMetric(collector.dropped, prometheus.CounterValue, float64(collector.dispatcher.Dropped()))
}
