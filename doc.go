// Package snowlift moves the result of one query from an operational
// PostgreSQL database into a Snowflake table, then hands off to a
// transformation tool such as dbt.
//
// A run is a single forward pass:
//
//	validate -> extract -> stage -> load -> transform
//
// Configuration is validated before any connection is opened. The query
// result is held in memory, written to a CSV file (optionally compressed),
// uploaded to the table stage with PUT and ingested with COPY INTO. The
// staged file is removed whatever the load outcome. The transformation runs
// only after a successful load, and its failure does not undo the load.
//
// A separate backup command dumps the source database with pg_dump and can
// copy the dump to S3 or GCS.
//
// # Layout
//
//   - cmd/snowlift: command line (run, backup, schedule, config, inspect, version)
//   - internal/pipeline: the stage sequence and its outcome report
//   - internal/app: wiring of configuration into concrete collaborators
//   - internal/schedule: cron scheduling for unattended runs
//   - pkg/config: environment and YAML configuration with validation
//   - pkg/connector/sources/postgresql: query extraction over pgx
//   - pkg/staging: CSV serialization of extracted datasets
//   - pkg/connector/destinations/snowflake: PUT and COPY INTO over gosnowflake
//   - pkg/transform: the post-load transformation command
//   - pkg/backup: pg_dump and off-site copies
//   - pkg/errors, pkg/logger, pkg/metrics, pkg/observability: ambient support
//
// # Quick Start
//
//	export POSTGRES_HOST=localhost POSTGRES_PORT=5432 POSTGRES_USER=etl \
//	    POSTGRES_PASSWORD=... POSTGRES_DATABASE=hr
//	export SNOWFLAKE_USER=loader SNOWFLAKE_PASSWORD=... \
//	    SNOWFLAKE_ACCOUNT=abc123.east-1 SNOWFLAKE_DATABASE=ANALYTICS SNOWFLAKE_SCHEMA=RAW
//
//	snowlift config validate
//	snowlift run
//
// The exit status is 0 when the run succeeds or the query returns no rows,
// and 1 when any stage fails.
package snowlift
