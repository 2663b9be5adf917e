package cmd

import (
	"context"
	"fmt"

	"civisync/core/civi"
	"civisync/core/config"
	"civisync/core/logger"
	"civisync/core/sync"

	"github.com/spf13/cobra"
)

// probeCmd checks connectivity and credentials against the configured
// CiviCRM instance.
var probeCmd = &cobra.Command{
	Use:   "probe",
	Short: "Check connectivity to the CiviCRM instance",
	Long:  `Performs a minimal authenticated API call and reports whether the configured endpoint and credentials work.`,
	RunE:  runProbe,
}

func init() {
	RootCmd.AddCommand(probeCmd)
}

func runProbe(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfig(".")
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	l, err := logger.New(&cfg.Log)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	eng := sync.NewEngine(civi.NewClient(cfg.Civi, l), nil, l)
	if !eng.Probe(context.Background()) {
		return fmt.Errorf("probe failed for %s", cfg.Civi.RestURL())
	}

	l.Info("Probe succeeded")
	return nil
}
