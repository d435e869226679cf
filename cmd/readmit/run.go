package main

import (
	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Migrate, import and analyze in one pass",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := runMigrate(cmd, args); err != nil {
			return err
		}
		if err := runImport(cmd, args); err != nil {
			return err
		}
		return runAnalyze(cmd, args)
	},
}

func init() {
	addImportFlags(runCmd)
	addAnalyzeFlags(runCmd)
	rootCmd.AddCommand(runCmd)
}
