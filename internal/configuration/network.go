package configuration

import "time"

type NetworkConfig struct {
	// BroadcastAddress is the discovery probe target, either a dotted quad
	// subnet broadcast address or "<broadcast>" for the limited broadcast.
	BroadcastAddress BroadcastAddress `json:"broadcastAddress"`
	BroadcastPort    int              `json:"broadcastPort"`
	ListenerPort     int              `json:"listenerPort"`
	ExchangePort     int              `json:"exchangePort"`

	BroadcastPeriod time.Duration `json:"broadcastPeriod"`
	ExchangePeriod  time.Duration `json:"exchangePeriod"`

	// LivenessFactor scales BroadcastPeriod into the telemetry staleness
	// window after which a connected device is considered timed out.
	LivenessFactor int `json:"livenessFactor"`
	MaxTimeouts    int `json:"maxTimeouts"`

	Passcode       string `json:"passcode"`
	MaxFrameLength int    `json:"maxFrameLength"`

	StopTimeout      time.Duration `json:"stopTimeout"`
	CommandQueueSize int           `json:"commandQueueSize"`
}
