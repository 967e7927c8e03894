package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/funcsea/appbackend/internal/utilities"
)

var versionCmd = cobra.Command{
	Use:   "version",
	Short: "Print the build version",
	Run: func(cmd *cobra.Command, _ []string) {
		fmt.Fprintln(cmd.OutOrStdout(), utilities.VersionString())
	},
}
