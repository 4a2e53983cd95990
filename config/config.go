// Package config loads the storeops configuration from a YAML file and the
// environment.
package config

import (
	"errors"
	"io/fs"
	"os"
	"slices"

	"github.com/spf13/viper"
)

// LogConfig is the configuration for logging.
type LogConfig struct {
	Level string `mapstructure:"level" yaml:"level"` // The minimum level to emit (debug, info, warn, error)
}

// DocConfig is the configuration for the document store connection.
//
// WARNING: This data type contains sensitive fields and should not be logged.
type DocConfig struct {
	URI      string `mapstructure:"uri" yaml:"uri"`           // Secret: The document store connection string, may embed credentials
	Database string `mapstructure:"database" yaml:"database"` // The default database for operations
}

// RelConfig is the configuration for the relational store connection.
//
// WARNING: This data type contains sensitive fields and should not be logged.
type RelConfig struct {
	DSN string `mapstructure:"dsn" yaml:"dsn"` // Secret: The PostgreSQL DSN, may embed credentials
}

// RunnerConfig is the configuration for run execution.
type RunnerConfig struct {
	Policy        string `mapstructure:"policy" yaml:"policy"`                 // The failure policy (fail-fast or best-effort)
	RetryAttempts uint   `mapstructure:"retry_attempts" yaml:"retry_attempts"` // Retry attempts per operation, 0 disables retries
}

// ReportConfig is the configuration for execution report persistence.
type ReportConfig struct {
	File string `mapstructure:"file" yaml:"file"` // Path of the JSON lines report file, empty keeps reports in memory only
}

// Config wraps the entire storeops configuration.
type Config struct {
	Log    LogConfig    `mapstructure:"log" yaml:"log"`
	Doc    DocConfig    `mapstructure:"doc" yaml:"doc"`
	Rel    RelConfig    `mapstructure:"rel" yaml:"rel"`
	Runner RunnerConfig `mapstructure:"runner" yaml:"runner"`
	Report ReportConfig `mapstructure:"report" yaml:"report"`
}

// Load loads the config from the file path, falling back to env vars if the
// file does not exist. If the file exists, any env vars that are set will
// override the values loaded from the file.
func Load(filePath string) (*Config, error) {
	v := newViper()
	v.SetConfigFile(filePath)

	if err := bindEnvs(v); err != nil {
		return nil, err
	}

	// If the config file exists, we continue to read it, otherwise we fallback
	// to using environment variables
	if _, err := os.Stat(filePath); !errors.Is(err, fs.ErrNotExist) {
		if err := v.ReadInConfig(); err != nil {
			return nil, err
		}
	}

	cfg := &Config{}
	err := v.Unmarshal(cfg)

	return cfg, err
}

// LoadEnv loads the config from the environment variables.
func LoadEnv() (*Config, error) {
	v := newViper()

	if err := bindEnvs(v); err != nil {
		return nil, err
	}

	cfg := &Config{}
	err := v.Unmarshal(cfg)

	return cfg, err
}

// LoadFile loads the config from a file.
func LoadFile(filePath string) (*Config, error) {
	v := newViper()
	v.SetConfigFile(filePath)

	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}

	cfg := &Config{}
	err := v.Unmarshal(cfg)

	return cfg, err
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetDefault("log.level", "info")
	v.SetDefault("doc.database", "demo")
	v.SetDefault("runner.policy", "fail-fast")
	v.SetDefault("runner.retry_attempts", 0)

	return v
}

// envBindings defines how environment variables map to configuration keys
// used by Viper. Each entry maps a config key (as used in the struct, e.g.
// "doc.uri") to the environment variable names that can provide its value,
// checked in order.
var envBindings = map[string][]string{
	"log.level":             {"STOREOPS_LOG_LEVEL"},
	"doc.uri":               {"STOREOPS_DOC_URI", "MONGODB_URI"},
	"doc.database":          {"STOREOPS_DOC_DATABASE"},
	"rel.dsn":               {"STOREOPS_REL_DSN", "DATABASE_URL"},
	"runner.policy":         {"STOREOPS_RUNNER_POLICY"},
	"runner.retry_attempts": {"STOREOPS_RUNNER_RETRY_ATTEMPTS"},
	"report.file":           {"STOREOPS_REPORT_FILE"},
}

// bindEnvs binds the environment variables to the viper instance.
func bindEnvs(v *viper.Viper) error {
	for key, envs := range envBindings {
		// Prepend the env key to the start of the arguments
		inputs := slices.Insert(envs, 0, key)

		if err := v.BindEnv(inputs...); err != nil {
			return err
		}
	}

	return nil
}
