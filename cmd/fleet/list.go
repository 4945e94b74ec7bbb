package fleet

import (
	"bytes"
	"fmt"
	"strconv"

	"github.com/markusressel/fangrid/cmd/global"
	"github.com/markusressel/fangrid/internal/configuration"
	"github.com/markusressel/fangrid/internal/grid"
	"github.com/markusressel/fangrid/internal/ui"
	"github.com/mgutz/ansi"
	"github.com/spf13/cobra"
	"github.com/tomlazar/table"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "Print the configured fleet and its grid mapping",
	RunE: func(cmd *cobra.Command, args []string) error {
		configPath := configuration.DetectConfigFile()
		ui.Info("Using configuration file at: %s", configPath)
		configuration.LoadConfig()

		if err := configuration.Validate(); err != nil {
			ui.Fatal(err.Error())
		}

		config := configuration.CurrentConfig
		mapper, err := grid.NewMapper(config.GridDimensions(), config.MaxFans, config.GridDevices())
		if err != nil {
			return err
		}

		dims := mapper.Dims()
		ui.Printfln("Grid: %d rows, %d columns, %d layers (%d fans per device)",
			dims.Rows, dims.Columns, dims.Layers, config.MaxFans)

		var rows [][]string
		for ordinal, device := range config.Devices {
			kStart := ordinal * config.MaxFans
			kEnd := kStart + config.MaxFans

			mapped := 0
			for k := kStart; k < kEnd; k++ {
				if mapper.IndexKG(k) != grid.Pad {
					mapped++
				}
			}

			placement := fmt.Sprintf("%dx%d at (%d,%d)",
				device.RowSpan, device.ColumnSpan, device.Row, device.Column)
			kRange := fmt.Sprintf("%d..%d", kStart, kEnd-1)

			rows = append(rows, []string{
				strconv.Itoa(ordinal),
				device.Name,
				device.Mac,
				placement,
				kRange,
				fmt.Sprintf("%d/%d", mapped, config.MaxFans),
			})
		}

		deviceTable := table.Table{
			Headers: []string{"Ordinal", "Name", "MAC", "Placement", "K", "Mapped"},
			Rows:    rows,
		}

		var buf bytes.Buffer
		tableErr := deviceTable.WriteTable(&buf, &table.Config{
			ShowIndex:       false,
			Color:           !global.NoColor,
			AlternateColors: true,
			TitleColorCode:  ansi.ColorCode("white+buf"),
			AltColorCodes: []string{
				ansi.ColorCode("white"),
				ansi.ColorCode("white:236"),
			},
		})
		if tableErr != nil {
			panic(tableErr)
		}
		ui.Printfln(buf.String())

		return nil
	},
}

func init() {
	Command.AddCommand(listCmd)
}
