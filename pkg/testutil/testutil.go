// Package testutil provides testing utilities for snowlift
package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"github.com/ajitpratap0/snowlift/pkg/models"
)

// TestLogger creates a test logger that writes to the test output.
func TestLogger(t *testing.T) *zap.Logger {
	return zaptest.NewLogger(t)
}

// TestContext creates a test context with a 30-second timeout.
// The caller must call the returned cancel function to avoid leaks.
func TestContext(_ *testing.T) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 30*time.Second)
}

// Dataset builds a dataset from rows aligned to columns
func Dataset(t *testing.T, columns []string, rows ...[]interface{}) *models.Dataset {
	t.Helper()
	ds := models.NewDataset(columns...)
	for _, row := range rows {
		require.NoError(t, ds.Append(row...))
	}
	return ds
}
