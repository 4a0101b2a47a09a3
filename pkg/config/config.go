package config

import (
	"strings"

	"github.com/spf13/viper"

	"github.com/ajitpratap0/snowlift/pkg/errors"
)

const (
	// DefaultQuery is used when MIGRATION_QUERY is not set
	DefaultQuery = "SELECT * FROM employee"
	// DefaultTable is the warehouse table loaded when SNOWFLAKE_TABLE is not set
	DefaultTable = "employee"
	// DefaultBackupDir is where pg_dump output lands when BACKUP_DIR is not set
	DefaultBackupDir = "data"
)

// Config is the single configuration value built once at startup and passed
// by pointer into every component of a run.
type Config struct {
	Source        SourceConfig        `mapstructure:"source" yaml:"source" json:"source"`
	Warehouse     WarehouseConfig     `mapstructure:"warehouse" yaml:"warehouse" json:"warehouse"`
	Migration     MigrationConfig     `mapstructure:"migration" yaml:"migration" json:"migration"`
	Staging       StagingConfig       `mapstructure:"staging" yaml:"staging" json:"staging"`
	Transform     TransformConfig     `mapstructure:"transform" yaml:"transform" json:"transform"`
	Backup        BackupConfig        `mapstructure:"backup" yaml:"backup" json:"backup"`
	Observability ObservabilityConfig `mapstructure:"observability" yaml:"observability" json:"observability"`
	Schedule      string              `mapstructure:"schedule" yaml:"schedule" json:"schedule"`
}

// binding maps a viper key to the environment variable that feeds it
type binding struct {
	key string
	env string
}

var bindings = []binding{
	{"source.host", "POSTGRES_HOST"},
	{"source.port", "POSTGRES_PORT"},
	{"source.user", "POSTGRES_USER"},
	{"source.password", "POSTGRES_PASSWORD"},
	{"source.database", "POSTGRES_DATABASE"},
	{"source.sslmode", "POSTGRES_SSLMODE"},
	{"warehouse.user", "SNOWFLAKE_USER"},
	{"warehouse.password", "SNOWFLAKE_PASSWORD"},
	{"warehouse.account", "SNOWFLAKE_ACCOUNT"},
	{"warehouse.database", "SNOWFLAKE_DATABASE"},
	{"warehouse.schema", "SNOWFLAKE_SCHEMA"},
	{"warehouse.warehouse", "SNOWFLAKE_WAREHOUSE"},
	{"warehouse.role", "SNOWFLAKE_ROLE"},
	{"warehouse.table", "SNOWFLAKE_TABLE"},
	{"warehouse.purge", "SNOWFLAKE_PURGE"},
	{"migration.query", "MIGRATION_QUERY"},
	{"staging.dir", "STAGING_DIR"},
	{"staging.compression", "STAGING_COMPRESSION"},
	{"transform.enabled", "TRANSFORM_ENABLED"},
	{"transform.command", "TRANSFORM_COMMAND"},
	{"transform.subcommand", "TRANSFORM_SUBCOMMAND"},
	{"transform.project_dir", "TRANSFORM_PROJECT_DIR"},
	{"transform.profiles_dir", "TRANSFORM_PROFILES_DIR"},
	{"transform.target", "TRANSFORM_TARGET"},
	{"backup.dir", "BACKUP_DIR"},
	{"backup.command", "BACKUP_COMMAND"},
	{"backup.compression", "BACKUP_COMPRESSION"},
	{"backup.s3_bucket", "BACKUP_S3_BUCKET"},
	{"backup.s3_prefix", "BACKUP_S3_PREFIX"},
	{"backup.s3_region", "BACKUP_S3_REGION"},
	{"backup.gcs_bucket", "BACKUP_GCS_BUCKET"},
	{"backup.gcs_prefix", "BACKUP_GCS_PREFIX"},
	{"backup.gcs_credentials_file", "BACKUP_GCS_CREDENTIALS_FILE"},
	{"observability.log_level", "LOG_LEVEL"},
	{"observability.log_format", "LOG_FORMAT"},
	{"observability.metrics_file", "METRICS_FILE"},
	{"observability.tracing_enabled", "TRACING_ENABLED"},
	{"schedule", "SCHEDULE"},
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("source.sslmode", "prefer")
	v.SetDefault("warehouse.table", DefaultTable)
	v.SetDefault("warehouse.purge", false)
	v.SetDefault("migration.query", DefaultQuery)
	v.SetDefault("staging.compression", "none")
	v.SetDefault("transform.enabled", true)
	v.SetDefault("transform.command", "dbt")
	v.SetDefault("transform.subcommand", "run")
	v.SetDefault("backup.dir", DefaultBackupDir)
	v.SetDefault("backup.command", "pg_dump")
	v.SetDefault("backup.compression", "none")
	v.SetDefault("observability.log_level", "info")
	v.SetDefault("observability.log_format", "json")
}

// Load builds a Config from the process environment, optionally layered over
// a YAML file. Environment variables win over file values. Load performs no
// validation; call Validate before opening any connection.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	for _, b := range bindings {
		if err := v.BindEnv(b.key, b.env); err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeInternal, "failed to bind environment variable").
				WithDetail("env", b.env)
		}
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeFile, "failed to read config file").
				WithDetail("path", path)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeInvalidConfigFormat, "failed to decode configuration")
	}

	cfg.Migration.Query = strings.TrimSpace(cfg.Migration.Query)
	if cfg.Migration.Query == "" {
		cfg.Migration.Query = DefaultQuery
	}
	if cfg.Warehouse.Table == "" {
		cfg.Warehouse.Table = DefaultTable
	}

	return cfg, nil
}

// Values returns the configuration keyed by environment variable name
func (c *Config) Values() map[string]string {
	return map[string]string{
		"POSTGRES_HOST":      c.Source.Host,
		"POSTGRES_PORT":      c.Source.Port,
		"POSTGRES_USER":      c.Source.User,
		"POSTGRES_PASSWORD":  c.Source.Password,
		"POSTGRES_DATABASE":  c.Source.Database,
		"SNOWFLAKE_USER":     c.Warehouse.User,
		"SNOWFLAKE_PASSWORD": c.Warehouse.Password,
		"SNOWFLAKE_ACCOUNT":  c.Warehouse.Account,
		"SNOWFLAKE_DATABASE": c.Warehouse.Database,
		"SNOWFLAKE_SCHEMA":   c.Warehouse.Schema,
		"SNOWFLAKE_TABLE":    c.Warehouse.Table,
	}
}

// Redacted returns a copy safe for printing
func (c *Config) Redacted() *Config {
	out := *c
	if out.Source.Password != "" {
		out.Source.Password = redactedValue
	}
	if out.Warehouse.Password != "" {
		out.Warehouse.Password = redactedValue
	}
	return &out
}

const redactedValue = "********"
