// Package config provides configuration management for the importer.
//
// It utilizes Viper for loading configuration from environment variables and
// an optional .env file, with defaults taken from struct tags.
//
// # Configuration Structure
//
// The Config struct is the central repository for all application settings, divided into subsections:
//   - Civi: CiviCRM REST endpoint and credentials
//   - Import: pipeline parameters (creditor, payment instrument/processor, reference mode)
//   - Database: MySQL staging database connection details
//   - Storage: S3/MinIO credentials and bucket settings
//   - Log: Logging level and format
//
// # Usage
//
//	cfg, err := config.LoadConfig(".")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.Civi.RestURL())
package config
