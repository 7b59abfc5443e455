package main

import (
	"fmt"
	"strings"

	"github.com/aretw0/softbus"
	"github.com/spf13/cobra"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number of softbus",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "softbus version %s\n", strings.TrimSpace(softbus.Version))
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
