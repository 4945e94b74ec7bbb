package configuration

import "time"

type ApiConfig struct {
	Enabled bool   `json:"enabled"`
	Host    string `json:"host"`
	Port    int    `json:"port"`
}

type StatisticsConfig struct {
	Enabled bool `json:"enabled"`
	Port    int  `json:"port"`
}

type BridgeConfig struct {
	Enabled       bool          `json:"enabled"`
	Broker        string        `json:"broker"`
	TopicRoot     string        `json:"topicRoot"`
	Username      string        `json:"username"`
	Password      string        `json:"password"`
	PublishPeriod time.Duration `json:"publishPeriod"`
}

type FirmwareConfig struct {
	HttpPort   int    `json:"httpPort"`
	StagingDir string `json:"stagingDir"`
}
