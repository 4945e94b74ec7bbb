package cmd

import (
	"bytes"
	"fmt"

	"github.com/markusressel/fangrid/cmd/global"
	"github.com/markusressel/fangrid/internal/configuration"
	"github.com/markusressel/fangrid/internal/supervisor"
	"github.com/markusressel/fangrid/internal/ui"
	"github.com/mgutz/ansi"
	"github.com/spf13/cobra"
	"github.com/tomlazar/table"
)

var detectCmd = &cobra.Command{
	Use:   "detect",
	Short: "Detect devices",
	Long:  `Broadcasts a probe and prints every controller that answers as a list`,
	Run: func(cmd *cobra.Command, args []string) {
		configPath := configuration.DetectConfigFile()
		ui.Info("Using configuration file at: %s", configPath)
		configuration.LoadConfig()

		config := configuration.CurrentConfig
		window := 2 * config.Network.BroadcastPeriod
		ui.Info("Probing %s:%d...", config.Network.BroadcastAddress.Host(), config.Network.BroadcastPort)

		discoveries, err := supervisor.Scan(config, window)
		if err != nil {
			ui.Fatal("Scan failed: %v", err)
		}

		if len(discoveries) == 0 {
			ui.Printfln("No devices found.")
			return
		}

		// === Print detected devices ===
		tableConfig := &table.Config{
			ShowIndex:       false,
			Color:           !global.NoColor,
			AlternateColors: true,
			TitleColorCode:  ansi.ColorCode("white+buf"),
			AltColorCodes: []string{
				ansi.ColorCode("white"),
				ansi.ColorCode("white:236"),
			},
		}

		var rows [][]string
		for _, discovery := range discoveries {
			kind := "app"
			ports := fmt.Sprintf("%d/%d", discovery.MisoPort, discovery.MosiPort)
			if discovery.Bootloader {
				kind = "bootloader"
				ports = "-"
			}
			status := "ok"
			if len(discovery.Error) > 0 {
				status = discovery.Error
			}
			rows = append(rows, []string{
				discovery.Mac, discovery.IP, kind, discovery.Version, ports, status,
			})
		}

		deviceTable := table.Table{
			Headers: []string{"MAC", "IP", "Type", "Version", "Miso/Mosi", "Status"},
			Rows:    rows,
		}

		var buf bytes.Buffer
		if tableErr := deviceTable.WriteTable(&buf, tableConfig); tableErr != nil {
			ui.Fatal("Error printing table: %v", tableErr)
		}
		ui.Printfln(buf.String())
	},
}

func init() {
	rootCmd.AddCommand(detectCmd)
}
