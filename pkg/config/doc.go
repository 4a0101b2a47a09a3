// Package config provides configuration loading and validation for snowlift.
//
// A single Config value is constructed once at startup and passed by pointer
// into each component. Values come from the process environment (a .env file
// is honoured by the CLI), optionally layered over a YAML file:
//
//	cfg, err := config.Load("snowlift.yaml")
//	if err != nil {
//		return err
//	}
//	if err := cfg.Validate(); err != nil {
//		// missing_configuration or invalid_configuration_format
//		return err
//	}
//
// # Validation
//
// Validate is pure. It reports every missing required key at once, and when
// nothing is missing it reports every format violation at once, so a
// misconfigured run fails before any connection is attempted.
//
// # Environment
//
// Required: POSTGRES_HOST, POSTGRES_PORT, POSTGRES_USER, POSTGRES_PASSWORD,
// POSTGRES_DATABASE, SNOWFLAKE_USER, SNOWFLAKE_PASSWORD, SNOWFLAKE_ACCOUNT,
// SNOWFLAKE_DATABASE, SNOWFLAKE_SCHEMA.
//
// Optional: MIGRATION_QUERY (default "SELECT * FROM employee"),
// SNOWFLAKE_TABLE (default "employee"), SNOWFLAKE_WAREHOUSE, SNOWFLAKE_ROLE,
// SNOWFLAKE_PURGE, POSTGRES_SSLMODE, STAGING_DIR, STAGING_COMPRESSION,
// TRANSFORM_*, BACKUP_*, LOG_LEVEL, LOG_FORMAT, METRICS_FILE,
// TRACING_ENABLED, SCHEDULE.
package config
