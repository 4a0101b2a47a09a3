// Package schedule runs jobs on cron expressions. At most one instance of a
// job runs at a time; a tick that fires while the previous run is still in
// progress is skipped.
package schedule

import (
	"context"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/ajitpratap0/snowlift/pkg/errors"
	"github.com/ajitpratap0/snowlift/pkg/logger"
)

// Job is one scheduled unit of work
type Job func(ctx context.Context)

// Scheduler wraps a cron instance
type Scheduler struct {
	cron   *cron.Cron
	ctx    context.Context
	cancel context.CancelFunc
	logger *zap.Logger
}

// New creates a scheduler. Expressions use the standard five-field format
// and the @hourly / @daily / @every descriptors.
func New(log *zap.Logger) *Scheduler {
	l := logger.Component(log, "scheduler")
	cl := cronLogger{l.Sugar()}

	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cron: cron.New(
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		ctx:    ctx,
		cancel: cancel,
		logger: l,
	}
}

// Add registers job under name on expr
func (s *Scheduler) Add(name, expr string, job Job) error {
	_, err := s.cron.AddFunc(expr, func() {
		s.logger.Info("scheduled job starting", zap.String("job", name))
		job(s.ctx)
		s.logger.Info("scheduled job finished", zap.String("job", name))
	})
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeInvalidConfigFormat, "invalid schedule expression").
			WithDetail("job", name).
			WithDetail("expression", expr)
	}
	s.logger.Info("job scheduled", zap.String("job", name), zap.String("expression", expr))
	return nil
}

// Len returns the number of registered jobs
func (s *Scheduler) Len() int {
	return len(s.cron.Entries())
}

// Run starts the scheduler and blocks until ctx is done, then waits for
// running jobs to finish. Running jobs see their context cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	s.cron.Start()
	s.logger.Info("scheduler started", zap.Int("jobs", s.Len()))

	<-ctx.Done()

	s.logger.Info("scheduler stopping")
	s.cancel()
	<-s.cron.Stop().Done()
	s.logger.Info("scheduler stopped")
}

// cronLogger adapts zap to cron.Logger
type cronLogger struct {
	s *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.s.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.s.Errorw(msg, append(keysAndValues, "error", err)...)
}
