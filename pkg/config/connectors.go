// Connector-specific configuration sections of a migration run.

package config

import (
	"strconv"

	"github.com/ajitpratap0/snowlift/pkg/errors"
)

// SourceConfig describes the operational PostgreSQL database
type SourceConfig struct {
	Host     string `mapstructure:"host" yaml:"host" json:"host"`
	Port     string `mapstructure:"port" yaml:"port" json:"port"`
	User     string `mapstructure:"user" yaml:"user" json:"user"`
	Password string `mapstructure:"password" yaml:"password" json:"password"`
	Database string `mapstructure:"database" yaml:"database" json:"database"`
	SSLMode  string `mapstructure:"sslmode" yaml:"sslmode" json:"sslmode"`
}

// PortNumber parses Port. Validate guarantees it succeeds on a validated config.
func (s *SourceConfig) PortNumber() (uint16, error) {
	n, err := strconv.ParseUint(s.Port, 10, 16)
	if err != nil || n == 0 {
		return 0, errors.Newf(errors.ErrorTypeInvalidConfigFormat, "invalid POSTGRES_PORT %q", s.Port)
	}
	return uint16(n), nil
}

// WarehouseConfig describes the Snowflake target
type WarehouseConfig struct {
	User      string `mapstructure:"user" yaml:"user" json:"user"`
	Password  string `mapstructure:"password" yaml:"password" json:"password"`
	Account   string `mapstructure:"account" yaml:"account" json:"account"`
	Database  string `mapstructure:"database" yaml:"database" json:"database"`
	Schema    string `mapstructure:"schema" yaml:"schema" json:"schema"`
	Warehouse string `mapstructure:"warehouse" yaml:"warehouse" json:"warehouse"`
	Role      string `mapstructure:"role" yaml:"role" json:"role"`
	// Table is the fixed load target. It is never derived from data.
	Table string `mapstructure:"table" yaml:"table" json:"table"`
	// Purge removes the staged file from the table stage after a successful COPY
	Purge bool `mapstructure:"purge" yaml:"purge" json:"purge"`
}

// MigrationConfig holds the extraction query
type MigrationConfig struct {
	Query string `mapstructure:"query" yaml:"query" json:"query"`
}

// StagingConfig controls where and how the staged artifact is written
type StagingConfig struct {
	Dir         string `mapstructure:"dir" yaml:"dir" json:"dir"`
	Compression string `mapstructure:"compression" yaml:"compression" json:"compression"`
}

// TransformConfig describes the external transformation command (dbt by default)
type TransformConfig struct {
	Enabled     bool   `mapstructure:"enabled" yaml:"enabled" json:"enabled"`
	Command     string `mapstructure:"command" yaml:"command" json:"command"`
	Subcommand  string `mapstructure:"subcommand" yaml:"subcommand" json:"subcommand"`
	ProjectDir  string `mapstructure:"project_dir" yaml:"project_dir" json:"project_dir"`
	ProfilesDir string `mapstructure:"profiles_dir" yaml:"profiles_dir" json:"profiles_dir"`
	Target      string `mapstructure:"target" yaml:"target" json:"target"`
}

// BackupConfig controls the pg_dump collaborator and its optional off-site copies
type BackupConfig struct {
	Dir                string `mapstructure:"dir" yaml:"dir" json:"dir"`
	Command            string `mapstructure:"command" yaml:"command" json:"command"`
	Compression        string `mapstructure:"compression" yaml:"compression" json:"compression"`
	S3Bucket           string `mapstructure:"s3_bucket" yaml:"s3_bucket" json:"s3_bucket"`
	S3Prefix           string `mapstructure:"s3_prefix" yaml:"s3_prefix" json:"s3_prefix"`
	S3Region           string `mapstructure:"s3_region" yaml:"s3_region" json:"s3_region"`
	GCSBucket          string `mapstructure:"gcs_bucket" yaml:"gcs_bucket" json:"gcs_bucket"`
	GCSPrefix          string `mapstructure:"gcs_prefix" yaml:"gcs_prefix" json:"gcs_prefix"`
	GCSCredentialsFile string `mapstructure:"gcs_credentials_file" yaml:"gcs_credentials_file" json:"gcs_credentials_file"`
}

// ObservabilityConfig holds logging, metrics and tracing switches
type ObservabilityConfig struct {
	LogLevel       string `mapstructure:"log_level" yaml:"log_level" json:"log_level"`
	LogFormat      string `mapstructure:"log_format" yaml:"log_format" json:"log_format"`
	MetricsFile    string `mapstructure:"metrics_file" yaml:"metrics_file" json:"metrics_file"`
	TracingEnabled bool   `mapstructure:"tracing_enabled" yaml:"tracing_enabled" json:"tracing_enabled"`
}
