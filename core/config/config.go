package config

import (
	"reflect"
	"strings"

	"civisync/core/civi"
	"civisync/core/database"
	"civisync/core/logger"
	"civisync/core/storage"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all configuration for the application.
// It is divided into partial configurations for better modularity.
type Config struct {
	// Civi holds configuration for the CiviCRM REST API.
	Civi civi.Config `mapstructure:"civi"`
	// Import holds the import pipeline parameters.
	Import ImportConfig `mapstructure:"import"`
	// Storage holds configuration for the object storage (e.g., S3, Minio).
	Storage storage.Config `mapstructure:"storage"`
	// Log holds configuration for the logger.
	Log logger.Config `mapstructure:"log"`
	// Database holds configuration for the database connection.
	Database database.Config `mapstructure:"database"`
}

// ImportConfig holds the pipeline parameters. The SEPA identifiers are
// required by the SEPA import and validated there, not here.
type ImportConfig struct {
	// SepaCreditorID is the creditor imported mandates belong to.
	SepaCreditorID int64 `mapstructure:"sepa_creditor_id" default:"0"`
	// PaymentInstrumentID is applied to imported contributions.
	PaymentInstrumentID int64 `mapstructure:"payment_instrument_id" default:"0"`
	// PaymentProcessorID is applied to imported contributions.
	PaymentProcessorID int64 `mapstructure:"payment_processor_id" default:"0"`
	// ReferenceMode is the bank account reference handling mode
	// (update, overwrite).
	ReferenceMode string `mapstructure:"reference_mode" default:"update"`
}

// LoadConfig loads configuration from environment variables and .env file.
func LoadConfig(path string) (*Config, error) {
	// 1. Load .env file if it exists
	// We construct the path to .env
	envPath := path + "/.env"
	if path == "." {
		envPath = ".env"
	}

	// Ignore error if file doesn't exist (e.g. production)
	_ = godotenv.Overload(envPath)

	v := viper.New()

	// Recursively parse struct tags to set default values
	bindValues(v, Config{}, "")

	// Map environment variables to nested keys (e.g. CIVI_URL -> civi.url)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, err
	}

	return &config, nil
}

// bindValues uses reflection to iterate over the struct and set default values in Viper
// based on the 'default' and 'mapstructure' tags.
func bindValues(v *viper.Viper, iface any, prefix string) {
	t := reflect.TypeOf(iface)

	// If it's a pointer, get the element
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}

	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		tag := field.Tag.Get("mapstructure")

		// Skip if no tag
		if tag == "" {
			continue
		}

		// Build the key
		key := tag
		if prefix != "" {
			key = prefix + "." + tag
		}

		// If it's a nested struct, recurse
		if field.Type.Kind() == reflect.Struct {
			bindValues(v, reflect.New(field.Type).Elem().Interface(), key)
			continue
		}

		defaultValue := field.Tag.Get("default")
		// Always set default (even if empty) to register the key for AutomaticEnv
		v.SetDefault(key, defaultValue)
	}
}
