package configuration

import (
	"errors"
	"fmt"
	"strings"

	"github.com/markusressel/fangrid/internal/grid"
	"golang.org/x/exp/slices"
)

func Validate() error {
	return validateConfig(&CurrentConfig)
}

func validateConfig(config *Configuration) error {
	err := validateGrid(config)
	if err != nil {
		return err
	}
	err = validateNetwork(config)
	if err != nil {
		return err
	}
	return validateDevices(config)
}

func validateGrid(config *Configuration) error {
	g := config.Grid
	if g.Rows < 1 || g.Columns < 1 || g.Layers < 1 {
		return errors.New(fmt.Sprintf("Grid: dimensions %dx%dx%d are invalid, all must be >= 1", g.Rows, g.Columns, g.Layers))
	}
	if config.MaxFans < 1 {
		return errors.New(fmt.Sprintf("Grid: maxFans %d is invalid, must be >= 1", config.MaxFans))
	}
	if config.MaxRpm < 1 {
		return errors.New(fmt.Sprintf("Grid: maxRpm %d is invalid, must be >= 1", config.MaxRpm))
	}
	if config.DcDecimals < 0 || config.DcDecimals > 6 {
		return errors.New(fmt.Sprintf("Grid: dcDecimals %d is invalid, must be within [0, 6]", config.DcDecimals))
	}
	return nil
}

func validateNetwork(config *Configuration) error {
	n := config.Network

	if err := n.BroadcastAddress.Validate(); err != nil {
		return errors.New(fmt.Sprintf("Network: %s", err.Error()))
	}
	for _, port := range []int{n.BroadcastPort, n.ListenerPort, n.ExchangePort} {
		if port <= 0 || port > 65535 {
			return errors.New(fmt.Sprintf("Network: port %d is invalid, must be within [1, 65535]", port))
		}
	}
	if n.BroadcastPeriod <= 0 || n.ExchangePeriod <= 0 {
		return errors.New("Network: broadcastPeriod and exchangePeriod must be positive")
	}
	if n.LivenessFactor < 1 {
		return errors.New(fmt.Sprintf("Network: livenessFactor %d is invalid, must be >= 1", n.LivenessFactor))
	}
	if n.MaxTimeouts < 1 {
		return errors.New(fmt.Sprintf("Network: maxTimeouts %d is invalid, must be >= 1", n.MaxTimeouts))
	}
	if len(n.Passcode) <= 0 {
		return errors.New("Network: passcode must not be empty")
	}
	if n.MaxFrameLength < 128 {
		return errors.New(fmt.Sprintf("Network: maxFrameLength %d is too small, must be >= 128", n.MaxFrameLength))
	}
	if n.CommandQueueSize < 1 {
		return errors.New(fmt.Sprintf("Network: commandQueueSize %d is invalid, must be >= 1", n.CommandQueueSize))
	}
	return nil
}

func validateDevices(config *Configuration) error {
	var macs []string
	for _, device := range config.Devices {
		if len(device.Mac) != 17 {
			return errors.New(fmt.Sprintf("Device %s: MAC '%s' is not 17 characters", device.Name, device.Mac))
		}
		if slices.Contains(macs, device.Mac) {
			return errors.New(fmt.Sprintf("Device %s: duplicate MAC '%s'", device.Name, device.Mac))
		}
		macs = append(macs, device.Mac)

		maxFans := device.MaxFans
		if maxFans < 1 || maxFans > config.MaxFans {
			return errors.New(fmt.Sprintf("Device %s: maxFans %d is invalid, must be within [1, %d]", device.Name, maxFans, config.MaxFans))
		}
	}

	// the mapping checks are collected in full so a broken profile reports
	// every violation at once
	violations := grid.ValidateDevices(config.GridDimensions(), config.MaxFans, config.GridDevices())
	if len(violations) > 0 {
		return errors.New(fmt.Sprintf("Device mapping validation failed:\n  %s", strings.Join(violations, "\n  ")))
	}

	return nil
}
