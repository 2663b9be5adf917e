// Package logger provides a structured logging facility based on Zap.
//
// It offers a configured logger instance that supports different environments
// (development vs production) and carries the import-run correlation fields
// used throughout the importer.
//
// # Run Awareness
//
// Every import run is assigned a run id. The WithRun helper attaches it to a
// logger so that all records, API calls and skip warnings belonging to one
// batch can be correlated after the fact.
//
// # Configuration
//
// The package supports configuration for:
//   - Level: debug, info, warn, error
//   - Encoding: json (production) or console (development)
//
// # Usage
//
//	log, _ := logger.New(&logger.Config{Level: "info"})
//	log.Info("Import started")
//
//	// In a pipeline:
//	l := logger.WithRun(log, runID)
//	l.Warn("Record skipped", zap.Error(err))
package logger
