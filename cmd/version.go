package cmd

import (
	"github.com/markusressel/fangrid/internal/ui"
	"github.com/spf13/cobra"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number of fangrid",
	Long:  `All software has versions. This is fangrid's`,
	Run: func(cmd *cobra.Command, args []string) {
		ui.Printfln("0.4.1")
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
