package cmd

import (
	"context"
	"fmt"
	"os"

	"civisync/core/civi"
	"civisync/core/config"
	"civisync/core/database"
	"civisync/core/logger"
	"civisync/core/source"
	"civisync/core/storage"
	"civisync/core/sync"
	"civisync/feature/banking"
	"civisync/feature/sepa"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	// Source selection flags, exactly one must be set.
	importFile   string
	importObject string
	importTable  string
)

// importCmd is the parent command for all import pipelines.
var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Import records into CiviCRM",
	Long: `Import records from a CSV file, an object storage object, or a
database staging table. Each subcommand runs one import pipeline.`,
}

// importSepaCmd imports SEPA mandates with their backing contributions.
var importSepaCmd = &cobra.Command{
	Use:   "sepa",
	Short: "Import SEPA mandates",
	Long: `Imports SEPA mandates. Each record creates or updates a recurring
contribution, its first contribution and the mandate linking them.

Examples:
  # Import from a CSV file
  civisync import sepa --file mandates.csv

  # Import from the configured storage bucket
  civisync import sepa --object exports/mandates.csv

  # Import from a database staging table
  civisync import sepa --table sepa_staging`,
	RunE: runImportSepa,
}

// importAccountsCmd imports bank accounts for the CiviBanking extension.
var importAccountsCmd = &cobra.Command{
	Use:   "accounts",
	Short: "Import bank accounts",
	Long: `Imports bank accounts and their IBAN or national account references.

Examples:
  civisync import accounts --file accounts.csv
  civisync import accounts --table account_staging`,
	RunE: runImportAccounts,
}

func init() {
	importCmd.PersistentFlags().StringVar(&importFile, "file", "", "CSV file to import")
	importCmd.PersistentFlags().StringVar(&importObject, "object", "", "Object storage key to import")
	importCmd.PersistentFlags().StringVar(&importTable, "table", "", "Database staging table to import")

	importCmd.AddCommand(importSepaCmd)
	importCmd.AddCommand(importAccountsCmd)
	RootCmd.AddCommand(importCmd)
}

func runImportSepa(cmd *cobra.Command, args []string) error {
	cfg, l, eng, err := buildEngine()
	if err != nil {
		return err
	}

	src, cleanup, err := buildSource(cfg, l)
	if err != nil {
		return err
	}
	defer cleanup()

	params := sepa.Params{
		CreditorID:          cfg.Import.SepaCreditorID,
		PaymentInstrumentID: cfg.Import.PaymentInstrumentID,
		PaymentProcessorID:  cfg.Import.PaymentProcessorID,
	}
	return sepa.Import(context.Background(), eng, src, params, l)
}

func runImportAccounts(cmd *cobra.Command, args []string) error {
	cfg, l, eng, err := buildEngine()
	if err != nil {
		return err
	}

	src, cleanup, err := buildSource(cfg, l)
	if err != nil {
		return err
	}
	defer cleanup()

	params := banking.Params{Mode: banking.Mode(cfg.Import.ReferenceMode)}
	return banking.Import(context.Background(), eng, src, params, l)
}

// buildEngine loads the configuration and wires up logger, API client and
// synchronization engine.
func buildEngine() (*config.Config, *zap.Logger, *sync.Engine, error) {
	cfg, err := config.LoadConfig(".")
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to load config: %w", err)
	}

	l, err := logger.New(&cfg.Log)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	eng := sync.NewEngine(civi.NewClient(cfg.Civi, l), nil, l)
	return cfg, l, eng, nil
}

// buildSource opens the record source selected by the flags. The returned
// cleanup releases the underlying handle and is safe to call always.
func buildSource(cfg *config.Config, l *zap.Logger) (source.Source, func(), error) {
	selected := 0
	for _, flag := range []string{importFile, importObject, importTable} {
		if flag != "" {
			selected++
		}
	}
	if selected != 1 {
		return nil, nil, fmt.Errorf("exactly one of --file, --object or --table must be given")
	}

	switch {
	case importFile != "":
		f, err := os.Open(importFile)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open import file: %w", err)
		}
		src, err := source.NewCSVSource(f)
		if err != nil {
			f.Close()
			return nil, nil, err
		}
		return src, func() { f.Close() }, nil

	case importObject != "":
		client, err := storage.NewClient(cfg.Storage)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to connect to storage: %w", err)
		}
		src, err := source.NewStorageSource(context.Background(), client, cfg.Storage.Bucket, importObject)
		if err != nil {
			return nil, nil, err
		}
		return src, func() {}, nil

	default:
		db, err := database.Connect(cfg.Database)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		src, err := source.NewDatabaseSource(db, importTable)
		if err != nil {
			return nil, nil, err
		}
		l.Info("Reading records from staging table", zap.String("table", importTable))
		return src, func() {}, nil
	}
}
