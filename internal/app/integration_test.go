package app

import (
	"os"
	"testing"

	"github.com/stretchr/testify/suite"

	"github.com/ajitpratap0/snowlift/internal/pipeline"
	"github.com/ajitpratap0/snowlift/pkg/connector/sources/postgresql"
	"github.com/ajitpratap0/snowlift/pkg/metrics"
	"github.com/ajitpratap0/snowlift/pkg/testutil"
)

type migrationSuite struct {
	testutil.IntegrationTestSuite
}

func TestMigrationIntegration(t *testing.T) {
	suite.Run(t, new(migrationSuite))
}

func (s *migrationSuite) TestSourceReachable() {
	cfg := s.Config()
	e, err := postgresql.Open(s.Context(), &cfg.Source, s.Logger())
	s.Require().NoError(err)
	s.NoError(e.Close())
}

func (s *migrationSuite) TestRunWithoutTransform() {
	cfg := s.Config()
	cfg.Transform.Enabled = false

	report := Migration(cfg, s.Logger(), metrics.NewRecorder(), nil).Run(s.Context())
	s.Require().NoError(report.Err)
	s.Contains([]pipeline.Outcome{pipeline.OutcomeSuccess, pipeline.OutcomeExtractionEmpty}, report.Outcome)
	if report.Outcome == pipeline.OutcomeSuccess {
		s.Equal(int64(report.RowsExtracted), report.RowsLoaded)
	}

	entries, err := os.ReadDir(cfg.Staging.Dir)
	s.Require().NoError(err)
	s.Empty(entries, "staged file left behind")
}

func (s *migrationSuite) TestBackup() {
	res, err := Backup(s.Context(), s.Config(), s.Logger(), metrics.NewRecorder())
	s.Require().NoError(err)
	s.FileExists(res.Path)
	s.Positive(res.Bytes)
}
