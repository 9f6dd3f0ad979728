package main

import (
	"fmt"
	"strings"

	"github.com/aretw0/pipetree"
	"github.com/spf13/cobra"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number of pipetree",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "pipetree version %s\n", strings.TrimSpace(pipetree.Version))
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
