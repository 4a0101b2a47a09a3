package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/snowlift/pkg/errors"
)

func setRequiredEnv(t *testing.T) {
	t.Helper()
	env := map[string]string{
		"POSTGRES_HOST":      "db.internal",
		"POSTGRES_PORT":      "5432",
		"POSTGRES_USER":      "etl",
		"POSTGRES_PASSWORD":  "pg-secret",
		"POSTGRES_DATABASE":  "hr",
		"SNOWFLAKE_USER":     "loader",
		"SNOWFLAKE_PASSWORD": "sf-secret",
		"SNOWFLAKE_ACCOUNT":  "abc123.east-1",
		"SNOWFLAKE_DATABASE": "ANALYTICS",
		"SNOWFLAKE_SCHEMA":   "RAW",
	}
	for k, v := range env {
		t.Setenv(k, v)
	}
}

func validConfig() *Config {
	return &Config{
		Source: SourceConfig{
			Host: "db.internal", Port: "5432", User: "etl", Password: "pg-secret", Database: "hr",
		},
		Warehouse: WarehouseConfig{
			User: "loader", Password: "sf-secret", Account: "abc123.east-1",
			Database: "ANALYTICS", Schema: "RAW", Table: "employee",
		},
		Migration: MigrationConfig{Query: DefaultQuery},
		Staging:   StagingConfig{Compression: "none"},
		Transform: TransformConfig{Enabled: true, Command: "dbt", Subcommand: "run"},
		Backup:    BackupConfig{Dir: DefaultBackupDir, Compression: "none"},
	}
}

func TestLoadFromEnvironment(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("MIGRATION_QUERY", "  SELECT id, name FROM staff  ")
	t.Setenv("TRANSFORM_ENABLED", "false")
	t.Setenv("SNOWFLAKE_PURGE", "true")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "db.internal", cfg.Source.Host)
	assert.Equal(t, "5432", cfg.Source.Port)
	assert.Equal(t, "prefer", cfg.Source.SSLMode)
	assert.Equal(t, "abc123.east-1", cfg.Warehouse.Account)
	assert.Equal(t, DefaultTable, cfg.Warehouse.Table)
	assert.True(t, cfg.Warehouse.Purge)
	assert.Equal(t, "SELECT id, name FROM staff", cfg.Migration.Query)
	assert.False(t, cfg.Transform.Enabled)
	assert.Equal(t, "dbt", cfg.Transform.Command)
	assert.Equal(t, DefaultBackupDir, cfg.Backup.Dir)
	assert.NoError(t, cfg.Validate())
}

func TestLoadDefaultQuery(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, DefaultQuery, cfg.Migration.Query)
	assert.True(t, cfg.Transform.Enabled)
}

func TestLoadFileEnvWins(t *testing.T) {
	setRequiredEnv(t)

	path := filepath.Join(t.TempDir(), "snowlift.yaml")
	content := "warehouse:\n  table: payroll\n  account: fromfile\nstaging:\n  compression: gzip\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "payroll", cfg.Warehouse.Table)
	assert.Equal(t, "gzip", cfg.Staging.Compression)
	assert.Equal(t, "abc123.east-1", cfg.Warehouse.Account)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeFile))
}

func TestRequireKeysListsEveryMissingKey(t *testing.T) {
	tests := []struct {
		name    string
		values  map[string]string
		missing []string
	}{
		{
			name:    "all missing",
			values:  map[string]string{},
			missing: append(append([]string{}, SourceKeys...), WarehouseKeys...),
		},
		{
			name: "first and last missing",
			values: func() map[string]string {
				v := validConfig().Values()
				v["POSTGRES_HOST"] = ""
				delete(v, "SNOWFLAKE_SCHEMA")
				return v
			}(),
			missing: []string{"POSTGRES_HOST", "SNOWFLAKE_SCHEMA"},
		},
		{
			name: "whitespace counts as empty",
			values: func() map[string]string {
				v := validConfig().Values()
				v["SNOWFLAKE_PASSWORD"] = "   "
				v["POSTGRES_PORT"] = ""
				return v
			}(),
			missing: []string{"POSTGRES_PORT", "SNOWFLAKE_PASSWORD"},
		},
	}

	keys := append(append([]string{}, SourceKeys...), WarehouseKeys...)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := RequireKeys(tt.values, keys...)
			require.Error(t, err)
			assert.True(t, errors.IsType(err, errors.ErrorTypeMissingConfig))
			assert.Equal(t, tt.missing, errors.MissingKeys(err))
			for _, k := range tt.missing {
				assert.Contains(t, err.Error(), k)
			}
		})
	}

	assert.NoError(t, RequireKeys(validConfig().Values(), keys...))
}

func TestValidateAccount(t *testing.T) {
	valid := []string{"abc123", "abc123.east-1", "XY12.us-west-2", "a.b"}
	invalid := []string{"", "abc_123", ".east-1", "abc.", "a.b.c", "abc-1", "abc 123", "abc123.east_1"}

	for _, account := range valid {
		t.Run("valid "+account, func(t *testing.T) {
			assert.NoError(t, ValidateAccount(account))
		})
	}
	for _, account := range invalid {
		t.Run("invalid "+account, func(t *testing.T) {
			err := ValidateAccount(account)
			require.Error(t, err)
			assert.True(t, errors.IsType(err, errors.ErrorTypeInvalidConfigFormat))
			assert.Contains(t, err.Error(), account)
		})
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		errType errors.ErrorType
		contain []string
	}{
		{
			name:   "valid",
			mutate: func(c *Config) {},
		},
		{
			name: "missing keys reported before format",
			mutate: func(c *Config) {
				c.Source.User = ""
				c.Warehouse.Account = "bad_account"
			},
			errType: errors.ErrorTypeMissingConfig,
			contain: []string{"POSTGRES_USER"},
		},
		{
			name:    "bad account",
			mutate:  func(c *Config) { c.Warehouse.Account = "bad_account" },
			errType: errors.ErrorTypeInvalidConfigFormat,
			contain: []string{"bad_account"},
		},
		{
			name: "all format violations collected",
			mutate: func(c *Config) {
				c.Source.Port = "postgres"
				c.Warehouse.Account = "a.b.c"
				c.Warehouse.Table = "employee; DROP TABLE x"
				c.Staging.Compression = "brotli"
			},
			errType: errors.ErrorTypeInvalidConfigFormat,
			contain: []string{"POSTGRES_PORT", "a.b.c", "SNOWFLAKE_TABLE", "brotli"},
		},
		{
			name:    "port out of range",
			mutate:  func(c *Config) { c.Source.Port = "70000" },
			errType: errors.ErrorTypeInvalidConfigFormat,
			contain: []string{"70000"},
		},
		{
			name: "transform enabled without command",
			mutate: func(c *Config) {
				c.Transform.Command = " "
			},
			errType: errors.ErrorTypeInvalidConfigFormat,
			contain: []string{"TRANSFORM_COMMAND"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.errType == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Equal(t, tt.errType, errors.TypeOf(err))
			for _, s := range tt.contain {
				assert.Contains(t, err.Error(), s)
			}
		})
	}
}

func TestValidateMissingKeysCarryViolations(t *testing.T) {
	cfg := validConfig()
	cfg.Source.User = ""
	cfg.Source.Port = ""
	cfg.Warehouse.Account = "bad_account"
	cfg.Staging.Compression = "brotli"

	err := cfg.Validate()
	require.Error(t, err)
	assert.Equal(t, errors.ErrorTypeMissingConfig, errors.TypeOf(err))
	assert.Equal(t, []string{"POSTGRES_PORT", "POSTGRES_USER"}, errors.MissingKeys(err))

	violations := errors.Violations(err)
	require.Len(t, violations, 2)
	assert.Contains(t, violations[0], "bad_account")
	assert.Contains(t, violations[1], "brotli")

	cfg = validConfig()
	cfg.Warehouse.Schema = ""
	err = cfg.Validate()
	assert.Equal(t, []string{"SNOWFLAKE_SCHEMA"}, errors.MissingKeys(err))
	assert.Empty(t, errors.Violations(err))
}

func TestValidateSource(t *testing.T) {
	cfg := validConfig()
	cfg.Warehouse = WarehouseConfig{}
	assert.NoError(t, cfg.ValidateSource())

	cfg.Backup.Compression = "rar"
	err := cfg.ValidateSource()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rar")

	cfg.Source.Password = ""
	err = cfg.ValidateSource()
	assert.Equal(t, []string{"POSTGRES_PASSWORD"}, errors.MissingKeys(err))
	require.Len(t, errors.Violations(err), 1)
	assert.Contains(t, errors.Violations(err)[0], "rar")
}

func TestRedactedAndRender(t *testing.T) {
	cfg := validConfig()

	out, err := Render(cfg, "yaml")
	require.NoError(t, err)
	assert.NotContains(t, string(out), "pg-secret")
	assert.NotContains(t, string(out), "sf-secret")
	assert.Contains(t, string(out), "abc123.east-1")

	out, err = Render(cfg, "json")
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(out), `"account": "abc123.east-1"`))
	assert.NotContains(t, string(out), "sf-secret")

	// the input is left untouched
	assert.Equal(t, "pg-secret", cfg.Source.Password)

	_, err = Render(cfg, "toml")
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "out.yaml")
	require.NoError(t, Save(path, cfg))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "employee")
}
