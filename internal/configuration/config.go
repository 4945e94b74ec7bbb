package configuration

import (
	"os"
	"time"

	"github.com/markusressel/fangrid/internal/ui"
	"github.com/mitchellh/go-homedir"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

type Configuration struct {
	DbPath string `json:"dbPath"`

	Grid       GridConfig     `json:"grid"`
	MaxFans    int            `json:"maxFans"`
	MaxRpm     int            `json:"maxRpm"`
	DcDecimals int            `json:"dcDecimals"`
	Devices    []DeviceConfig `json:"devices"`

	Network    NetworkConfig    `json:"network"`
	Api        ApiConfig        `json:"api"`
	Statistics StatisticsConfig `json:"statistics"`
	Bridge     BridgeConfig     `json:"bridge"`
	Firmware   FirmwareConfig   `json:"firmware"`
}

var CurrentConfig Configuration

// InitConfig reads in config file and ENV variables if set.
func InitConfig(cfgFile string) {
	viper.SetConfigName("fangrid")

	if cfgFile != "" {
		// Use config file from the flag.
		viper.SetConfigFile(cfgFile)
	} else {
		// Find home directory.
		home, err := homedir.Dir()
		if err != nil {
			ui.Error("Couldn't detect home directory: %v", err)
			os.Exit(1)
		}

		viper.AddConfigPath(".")
		viper.AddConfigPath(home)
		viper.AddConfigPath("/etc/fangrid/")
	}

	viper.AutomaticEnv() // read in environment variables that match

	setDefaultValues()
}

func setDefaultValues() {
	viper.SetDefault("dbpath", "/etc/fangrid/fangrid.db")

	viper.SetDefault("grid.rows", 1)
	viper.SetDefault("grid.columns", 1)
	viper.SetDefault("grid.layers", 1)
	viper.SetDefault("MaxFans", 21)
	viper.SetDefault("MaxRpm", 11500)
	viper.SetDefault("DcDecimals", 2)
	viper.SetDefault("devices", []DeviceConfig{})

	viper.SetDefault("network.broadcastAddress", "<broadcast>")
	viper.SetDefault("network.broadcastPort", 65000)
	viper.SetDefault("network.listenerPort", 65001)
	viper.SetDefault("network.exchangePort", 65002)
	viper.SetDefault("network.broadcastPeriod", 1*time.Second)
	viper.SetDefault("network.exchangePeriod", 100*time.Millisecond)
	viper.SetDefault("network.livenessFactor", 4)
	viper.SetDefault("network.maxTimeouts", 10)
	viper.SetDefault("network.passcode", "CT")
	viper.SetDefault("network.maxFrameLength", 512)
	viper.SetDefault("network.stopTimeout", 500*time.Millisecond)
	viper.SetDefault("network.commandQueueSize", 64)

	viper.SetDefault("api.enabled", false)
	viper.SetDefault("api.host", "localhost")
	viper.SetDefault("api.port", 9001)

	viper.SetDefault("statistics.enabled", false)
	viper.SetDefault("statistics.port", 9000)

	viper.SetDefault("bridge.enabled", false)
	viper.SetDefault("bridge.topicRoot", "fangrid")
	viper.SetDefault("bridge.publishPeriod", 5*time.Second)

	viper.SetDefault("firmware.httpPort", 8030)
	viper.SetDefault("firmware.stagingDir", "/tmp/fangrid/firmware")
}

// DetectConfigFile reads the detected config file and returns its path.
func DetectConfigFile() string {
	if err := viper.ReadInConfig(); err != nil {
		// config file is required, so we fail here
		ui.Fatal("Error reading config file, %s", err)
	}
	// this is only populated _after_ ReadInConfig()
	return viper.ConfigFileUsed()
}

func DetectAndReadConfigFile() string {
	return DetectConfigFile()
}

// LoadConfig parses the config file into CurrentConfig.
func LoadConfig() {
	err := viper.Unmarshal(
		&CurrentConfig,
		viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
			broadcastAddressHookFunc(),
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)),
	)
	if err != nil {
		ui.Fatal("unable to decode into struct, %v", err)
	}

	// devices without an explicit fan count inherit the profile-wide one
	for i := range CurrentConfig.Devices {
		if CurrentConfig.Devices[i].MaxFans == 0 {
			CurrentConfig.Devices[i].MaxFans = CurrentConfig.MaxFans
		}
	}
}
