package monitoring

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"

	"github.com/isdelr/mealie-backup/internal/services"
)

// Scheduler runs backups on a cron schedule. Runs never overlap: each one
// finishes before the next tick is computed.
type Scheduler struct {
	backupSvc  services.BackupServiceProvider
	schedule   cron.Schedule
	runOnStart bool
	now        func() time.Time

	ctx     context.Context
	cancel  context.CancelFunc
	stopped chan struct{}
}

// NewScheduler creates a scheduler for a standard five-field cron expression.
func NewScheduler(backupSvc services.BackupServiceProvider, expr string, runOnStart bool) (*Scheduler, error) {
	schedule, err := cron.ParseStandard(expr)
	if err != nil {
		return nil, fmt.Errorf("invalid schedule %q: %w", expr, err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		backupSvc:  backupSvc,
		schedule:   schedule,
		runOnStart: runOnStart,
		now:        time.Now,
		ctx:        ctx,
		cancel:     cancel,
		stopped:    make(chan struct{}),
	}, nil
}

// Run starts the scheduler loop and blocks until Stop is called.
func (s *Scheduler) Run() {
	defer close(s.stopped)
	log.Info().Msg("Starting backup scheduler")

	if s.runOnStart {
		s.execute()
	}

	for {
		next := s.schedule.Next(s.now())
		log.Info().Time("next_run", next).Msg("Next backup scheduled")
		timer := time.NewTimer(next.Sub(s.now()))

		select {
		case <-s.ctx.Done():
			timer.Stop()
			log.Info().Msg("Stopping backup scheduler")
			return
		case <-timer.C:
			s.execute()
		}
	}
}

// Stop cancels any run in progress and waits for the loop to exit.
func (s *Scheduler) Stop() {
	s.cancel()
	<-s.stopped
}

func (s *Scheduler) execute() {
	if s.ctx.Err() != nil {
		return
	}
	summary, err := s.backupSvc.Run(s.ctx)
	if err != nil {
		// Already recorded by the backup service; keep the daemon alive.
		log.Warn().Err(err).Str("run_id", summary.RunID).Msg("Scheduled backup run failed")
		return
	}
	log.Info().Str("run_id", summary.RunID).Str("backup", summary.Backup).Msg("Scheduled backup run finished")
}
