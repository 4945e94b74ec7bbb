package fleet

import (
	"github.com/spf13/cobra"
)

var Command = &cobra.Command{
	Use:              "fleet",
	Short:            "Fleet related commands",
	Long:             ``,
	TraverseChildren: true,
}
