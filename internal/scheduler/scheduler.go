// Package scheduler runs background jobs on cron schedules.
package scheduler

import (
	"context"
	"sync"

	"github.com/robfig/cron/v3"

	applogger "FinRank/pkg/logger"
)

// JobFunc is one schedulable unit of work. The context is cancelled
// when the scheduler stops.
type JobFunc func(ctx context.Context) error

// Scheduler manages cron-driven jobs. Jobs run on the cron goroutine
// pool; overlap control is the job's own responsibility.
type Scheduler struct {
	cron *cron.Cron
	l    *applogger.Logger

	mu     sync.Mutex
	ctx    context.Context
	cancel context.CancelFunc
}

func New(l *applogger.Logger) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cron:   cron.New(cron.WithSeconds()),
		l:      l,
		ctx:    ctx,
		cancel: cancel,
	}
}

// AddJob registers fn under the given six-field cron spec.
// Schedule examples:
//   - "0 */5 * * * *"  - every 5 minutes
//   - "@every 30s"     - every 30 seconds
//   - "0 0 9 * * MON-FRI" - 9 AM weekdays
func (s *Scheduler) AddJob(spec, name string, fn JobFunc) error {
	_, err := s.cron.AddFunc(spec, func() {
		s.mu.Lock()
		ctx := s.ctx
		s.mu.Unlock()
		if ctx.Err() != nil {
			return
		}

		s.l.Debug("scheduler: running job", applogger.String("job", name))
		if err := fn(ctx); err != nil {
			s.l.Error("scheduler: job failed",
				applogger.String("job", name),
				applogger.Error(err))
			return
		}
		s.l.Debug("scheduler: job completed", applogger.String("job", name))
	})
	if err != nil {
		return err
	}

	s.l.Info("scheduler: job registered",
		applogger.String("job", name),
		applogger.String("schedule", spec))
	return nil
}

func (s *Scheduler) Start() {
	s.cron.Start()
	s.l.Info("scheduler: started")
}

// Stop cancels the job context and waits for in-flight jobs to return.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	s.cancel()
	s.mu.Unlock()

	<-s.cron.Stop().Done()
	s.l.Info("scheduler: stopped")
}
