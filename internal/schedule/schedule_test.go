package schedule

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/ajitpratap0/snowlift/pkg/errors"
)

func TestAddValidExpressions(t *testing.T) {
	s := New(zaptest.NewLogger(t))

	for _, expr := range []string{"0 2 * * *", "@daily", "@every 1h", "*/15 * * * 1-5"} {
		require.NoError(t, s.Add("migration", expr, func(context.Context) {}), expr)
	}
	assert.Equal(t, 4, s.Len())
}

func TestAddInvalidExpression(t *testing.T) {
	s := New(zaptest.NewLogger(t))

	err := s.Add("migration", "every day at noon", func(context.Context) {})
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeInvalidConfigFormat))
	assert.Zero(t, s.Len())
}

func TestRunStopsOnCancel(t *testing.T) {
	s := New(zaptest.NewLogger(t))
	require.NoError(t, s.Add("noop", "@hourly", func(context.Context) {}))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("scheduler did not stop")
	}
}

func TestJobRunsWithSkipIfStillRunning(t *testing.T) {
	s := New(zaptest.NewLogger(t))

	started := make(chan struct{}, 10)
	release := make(chan struct{})
	require.NoError(t, s.Add("slow", "@every 1s", func(ctx context.Context) {
		started <- struct{}{}
		select {
		case <-release:
		case <-ctx.Done():
		}
	}))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool { return len(started) == 1 }, 5*time.Second, 10*time.Millisecond, "job never started")
	<-started

	// a second tick passes while the first run is still blocked
	time.Sleep(1500 * time.Millisecond)
	assert.Len(t, started, 0)

	close(release)
	cancel()
	<-done
}
