package fleet

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/guptarohit/asciigraph"
	"github.com/markusressel/fangrid/internal/configuration"
	"github.com/markusressel/fangrid/internal/grid"
	"github.com/markusressel/fangrid/internal/telemetry"
	"github.com/markusressel/fangrid/internal/ui"
	"github.com/markusressel/fangrid/internal/util"
	"github.com/spf13/cobra"
)

var (
	watchFanIndex int
	watchSamples  int
)

// wireTelemetry mirrors the /telemetry/wire/ payload of the daemon.
type wireTelemetry struct {
	Rpms   []int     `json:"rpms"`
	Duties []float64 `json:"duties"`
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Follow the RPM of one fan and draw it as a graph",
	Long: `Polls the telemetry endpoint of a running fangrid daemon and
draws the smoothed RPM series of a single fan index`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		configPath := configuration.DetectConfigFile()
		ui.Info("Using configuration file at: %s", configPath)
		configuration.LoadConfig()

		if err := configuration.Validate(); err != nil {
			ui.Fatal(err.Error())
		}

		config := configuration.CurrentConfig
		if !config.Api.Enabled {
			ui.Fatal("The REST api must be enabled to watch a running daemon")
		}

		url := fmt.Sprintf("http://%s:%d/telemetry/wire/", config.Api.Host, config.Api.Port)
		window := util.CreateRollingWindow(10)

		var series []float64
		var lastDuty float64
		ticker := time.NewTicker(config.Network.ExchangePeriod)
		defer ticker.Stop()

		for len(series) < watchSamples {
			<-ticker.C

			data, err := fetchWireTelemetry(url)
			if err != nil {
				return err
			}
			if watchFanIndex < 0 || watchFanIndex >= len(data.Rpms) {
				return fmt.Errorf("fan index %d is outside the fleet, have %d fans", watchFanIndex, len(data.Rpms))
			}

			rpm := data.Rpms[watchFanIndex]
			if rpm == grid.Pad {
				return fmt.Errorf("fan index %d is not mapped to any grid cell", watchFanIndex)
			}
			if rpm == telemetry.Rip {
				// the owning device is down, keep the sample at zero so
				// the outage stays visible in the graph
				rpm = 0
			}

			window.Append(float64(rpm))
			series = append(series, util.GetWindowAvg(window))
			lastDuty = data.Duties[watchFanIndex]
		}

		ui.Printfln("Fan %d: min %.0f rpm, max %.0f rpm, avg %.0f rpm, duty %.2f",
			watchFanIndex, util.Min(series), util.Max(series), util.Avg(series), lastDuty)

		caption := fmt.Sprintf("RPM (smoothed, %d samples)", watchSamples)
		graph := asciigraph.Plot(series, asciigraph.Height(15), asciigraph.Width(100), asciigraph.Caption(caption))
		ui.Printfln(graph)

		return nil
	},
}

func fetchWireTelemetry(url string) (wireTelemetry, error) {
	data := wireTelemetry{}

	response, err := http.Get(url)
	if err != nil {
		return data, fmt.Errorf("cannot reach the daemon at %s: %w", url, err)
	}
	defer func() {
		_ = response.Body.Close()
	}()
	if response.StatusCode != http.StatusOK {
		return data, fmt.Errorf("unexpected status %s from %s", response.Status, url)
	}

	err = json.NewDecoder(response.Body).Decode(&data)
	return data, err
}

func init() {
	watchCmd.Flags().IntVarP(
		&watchFanIndex,
		"fan", "f",
		0,
		"Fan index within the fleet-wide control vector",
	)
	watchCmd.Flags().IntVarP(
		&watchSamples,
		"samples", "n",
		60,
		"Number of samples to collect before drawing",
	)
	Command.AddCommand(watchCmd)
}
