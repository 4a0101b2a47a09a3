package testutil

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"github.com/ajitpratap0/snowlift/pkg/config"
)

// IntegrationEnv must be set for suites that talk to real databases
const IntegrationEnv = "SNOWLIFT_INTEGRATION"

// IntegrationTestSuite runs against the databases described by the process
// environment. It is skipped unless IntegrationEnv is set and the
// configuration validates.
type IntegrationTestSuite struct {
	suite.Suite
	ctx       context.Context
	cancel    context.CancelFunc
	cfg       *config.Config
	logger    *zap.Logger
	startTime time.Time
}

// SetupSuite runs before all tests in the suite
func (s *IntegrationTestSuite) SetupSuite() {
	IntegrationTest(s.T())

	cfg, err := config.Load(os.Getenv("SNOWLIFT_CONFIG"))
	s.Require().NoError(err)
	if err := cfg.Validate(); err != nil {
		s.T().Skipf("integration configuration incomplete: %v", err)
	}
	cfg.Staging.Dir = s.T().TempDir()
	cfg.Backup.Dir = s.T().TempDir()

	s.cfg = cfg
	s.logger = zaptest.NewLogger(s.T())
	s.ctx, s.cancel = context.WithTimeout(context.Background(), 5*time.Minute)
	s.startTime = time.Now()
}

// TearDownSuite runs after all tests in the suite
func (s *IntegrationTestSuite) TearDownSuite() {
	if s.cancel != nil {
		s.cancel()
	}
	s.T().Logf("integration suite completed in %v", time.Since(s.startTime))
}

// Context returns the suite context
func (s *IntegrationTestSuite) Context() context.Context {
	return s.ctx
}

// Config returns a copy of the validated configuration
func (s *IntegrationTestSuite) Config() *config.Config {
	c := *s.cfg
	return &c
}

// Logger returns the suite logger
func (s *IntegrationTestSuite) Logger() *zap.Logger {
	return s.logger
}

// IntegrationTest skips the test in short mode or when IntegrationEnv is unset
func IntegrationTest(t *testing.T) {
	t.Helper()
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}
	if os.Getenv(IntegrationEnv) == "" {
		t.Skipf("Skipping integration test: %s not set", IntegrationEnv)
	}
}
