package main

import (
	"github.com/spf13/cobra"

	"gradegate/internal/platform/config"
)

var rootCmd = &cobra.Command{
	Use:          "gradegate",
	Short:        "Approval-gated grade placement service",
	Long:         "gradegate scores learner responses, proposes grade-level changes for supervisor approval, and streams live dashboards.",
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "Path to a YAML config file (environment variables take precedence)")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(migrateCmd)
}

func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	return config.Load(path)
}
