package billing

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"lang_gateway/internal/utils"
)

// Scheduler runs ReportAll on a cron schedule. A run still in progress when the next
// one is due causes that next run to be skipped.
type Scheduler struct {
	reconciler *Reconciler
	spec       string
	timeout    time.Duration
	c          *cron.Cron
	logger     *utils.Logger
}

// NewScheduler creates a scheduler for spec (e.g. "@every 3h" or "0 */3 * * *")
func NewScheduler(reconciler *Reconciler, spec string, timeout time.Duration) *Scheduler {
	if timeout <= 0 {
		timeout = 10 * time.Minute
	}
	return &Scheduler{
		reconciler: reconciler,
		spec:       spec,
		timeout:    timeout,
		c:          cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DefaultLogger))),
		logger:     utils.NewLogger("scheduler"),
	}
}

// Start schedules the reconciliation job
func (s *Scheduler) Start() error {
	if _, err := s.c.AddFunc(s.spec, s.run); err != nil {
		return fmt.Errorf("invalid reconcile schedule %q: %w", s.spec, err)
	}
	s.c.Start()
	s.logger.Info("Reconciliation scheduled", "schedule", s.spec)
	return nil
}

// Stop stops scheduling and waits for a running job to finish
func (s *Scheduler) Stop() {
	<-s.c.Stop().Done()
}

func (s *Scheduler) run() {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	if _, err := s.reconciler.ReportAll(ctx); err != nil {
		s.logger.Error("Reconciliation run failed", "error", err)
	}
}
