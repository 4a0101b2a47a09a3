package config

import (
	"regexp"
	"strings"

	"github.com/ajitpratap0/snowlift/pkg/errors"
)

// SourceKeys are required by every command that touches PostgreSQL
var SourceKeys = []string{
	"POSTGRES_HOST", "POSTGRES_PORT", "POSTGRES_USER", "POSTGRES_PASSWORD", "POSTGRES_DATABASE",
}

// WarehouseKeys are required by the migration run
var WarehouseKeys = []string{
	"SNOWFLAKE_USER", "SNOWFLAKE_PASSWORD", "SNOWFLAKE_ACCOUNT", "SNOWFLAKE_DATABASE", "SNOWFLAKE_SCHEMA",
}

var (
	// AccountPattern is an alphanumeric segment, optionally followed by a dot
	// and a segment that may also contain hyphens (e.g. abc123.east-1).
	AccountPattern = regexp.MustCompile(`^[a-zA-Z0-9]+(\.[a-zA-Z0-9\-]+)?$`)

	identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_$]*$`)
)

var (
	stagingCodecs = map[string]bool{"none": true, "gzip": true, "zstd": true}
	backupCodecs  = map[string]bool{"none": true, "gzip": true, "zstd": true, "lz4": true}
)

// RequireKeys checks every key in order and reports all of the absent or
// empty ones in a single MissingConfiguration error.
func RequireKeys(values map[string]string, keys ...string) error {
	if err := requireKeys(values, keys...); err != nil {
		return err
	}
	return nil
}

func requireKeys(values map[string]string, keys ...string) *errors.Error {
	var missing []string
	for _, key := range keys {
		if strings.TrimSpace(values[key]) == "" {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		return errors.MissingConfiguration(missing)
	}
	return nil
}

// ValidateAccount checks a Snowflake account identifier against AccountPattern
func ValidateAccount(account string) error {
	if !AccountPattern.MatchString(account) {
		return errors.Newf(errors.ErrorTypeInvalidConfigFormat, "invalid SNOWFLAKE_ACCOUNT format: %q", account).
			WithDetail("value", account)
	}
	return nil
}

// ValidateIdentifier checks that name is a plain unquoted SQL identifier
func ValidateIdentifier(key, name string) error {
	if !identifierPattern.MatchString(name) {
		return errors.Newf(errors.ErrorTypeInvalidConfigFormat, "invalid %s identifier: %q", key, name).
			WithDetail("value", name)
	}
	return nil
}

// Validate checks everything a migration run needs. It performs no I/O.
// Missing keys take precedence: when any are absent the MissingConfiguration
// error is returned, carrying the format violations of the keys that are
// present under the "violations" detail. Otherwise every format violation is
// reported together.
func (c *Config) Validate() error {
	keys := append(append([]string{}, SourceKeys...), WarehouseKeys...)
	missing := requireKeys(c.Values(), keys...)

	var violations []string
	check := func(err error) {
		if err != nil {
			var e *errors.Error
			if errors.As(err, &e) {
				violations = append(violations, e.Message)
			} else {
				violations = append(violations, err.Error())
			}
		}
	}

	check(c.validateSourceFormat())
	if strings.TrimSpace(c.Warehouse.Account) != "" {
		check(ValidateAccount(c.Warehouse.Account))
	}
	check(ValidateIdentifier("SNOWFLAKE_TABLE", c.Warehouse.Table))
	if !stagingCodecs[strings.ToLower(c.Staging.Compression)] && c.Staging.Compression != "" {
		check(errors.Newf(errors.ErrorTypeInvalidConfigFormat, "unsupported STAGING_COMPRESSION %q", c.Staging.Compression))
	}
	if c.Transform.Enabled && strings.TrimSpace(c.Transform.Command) == "" {
		check(errors.New(errors.ErrorTypeInvalidConfigFormat, "TRANSFORM_COMMAND must not be empty when transforms are enabled"))
	}

	if missing != nil {
		return withViolations(missing, violations)
	}
	return formatError(violations)
}

// ValidateSource checks only what the backup command needs
func (c *Config) ValidateSource() error {
	missing := requireKeys(c.Values(), SourceKeys...)

	var violations []string
	if err := c.validateSourceFormat(); err != nil {
		violations = append(violations, err.(*errors.Error).Message)
	}
	if !backupCodecs[strings.ToLower(c.Backup.Compression)] && c.Backup.Compression != "" {
		violations = append(violations, "unsupported BACKUP_COMPRESSION \""+c.Backup.Compression+"\"")
	}

	if missing != nil {
		return withViolations(missing, violations)
	}
	return formatError(violations)
}

// validateSourceFormat leaves an empty port to the missing-key check
func (c *Config) validateSourceFormat() error {
	if strings.TrimSpace(c.Source.Port) == "" {
		return nil
	}
	_, err := c.Source.PortNumber()
	return err
}

func withViolations(missing *errors.Error, violations []string) error {
	if len(violations) > 0 {
		return missing.WithDetail(errors.DetailViolations, violations)
	}
	return missing
}

func formatError(violations []string) error {
	switch len(violations) {
	case 0:
		return nil
	case 1:
		return errors.New(errors.ErrorTypeInvalidConfigFormat, violations[0]).
			WithDetail(errors.DetailViolations, violations)
	default:
		return errors.New(errors.ErrorTypeInvalidConfigFormat, strings.Join(violations, "; ")).
			WithDetail(errors.DetailViolations, violations)
	}
}
