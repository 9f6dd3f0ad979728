package main

import (
	"github.com/aretw0/pipetree/internal/cli"
	"github.com/spf13/cobra"
)

// runCmd represents the run command
var runCmd = &cobra.Command{
	Use:   "run <script.yaml>",
	Short: "Play a command script against a fresh engine",
	Long: `Sends the commands of a YAML script one by one and prints the resulting
projections. String values like ${collect} refer to the node with that item id
or to an earlier command aliased with "as".`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		logger, err := newLogger(cmd)
		if err != nil {
			return err
		}
		format, _ := cmd.Flags().GetString("format")
		keepGoing, _ := cmd.Flags().GetBool("keep-going")

		script, err := cli.LoadScript(args[0])
		if err != nil {
			return err
		}

		engine, cleanup, err := cli.CreateEngine(engineOptions(cmd), logger)
		if err != nil {
			return err
		}
		defer cleanup()

		_, runErr := cli.RunScript(cmd.Context(), engine, script, keepGoing, logger)
		if err := cli.RenderProjections(cmd.OutOrStdout(), engine.Projections(), format); err != nil {
			return err
		}
		return runErr
	},
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringP("format", "f", cli.FormatText, "Output format: text, json or mermaid")
	runCmd.Flags().Bool("keep-going", false, "Continue after a failed command")
}
