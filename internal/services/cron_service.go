package services

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// CronService schedules the reconciliation sweep
type CronService struct {
	cron     *cron.Cron
	sweeper  *ReconciliationService
	schedule string
	entryID  cron.EntryID
	logger   *logrus.Logger
}

// NewCronService creates a new CronService. schedule uses seconds precision:
// second minute hour day month weekday.
func NewCronService(sweeper *ReconciliationService, schedule string, logger *logrus.Logger) *CronService {
	cl := cronLogger{logger: logger}
	c := cron.New(
		cron.WithSeconds(),
		cron.WithLogger(cl),
		// A tick that arrives while the previous sweep still runs is dropped
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)

	return &CronService{
		cron:     c,
		sweeper:  sweeper,
		schedule: schedule,
		logger:   logger,
	}
}

// Start registers the sweep and starts the scheduler
func (s *CronService) Start() error {
	id, err := s.cron.AddFunc(s.schedule, s.reconciliationJob)
	if err != nil {
		return fmt.Errorf("failed to schedule reconciliation sweep: %w", err)
	}
	s.entryID = id

	s.cron.Start()
	s.logger.WithField("schedule", s.schedule).Info("✓ Cron service started (reconciliation sweep)")
	return nil
}

// Stop stops the scheduler and waits for a running sweep to finish
func (s *CronService) Stop() {
	s.logger.Info("Stopping cron service...")
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.logger.Info("✓ Cron service stopped")
}

func (s *CronService) reconciliationJob() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	report := s.sweeper.RunSweep(ctx)
	if report.Skipped {
		s.logger.WithField("reason", report.SkipReason).Debug("[CRON] Reconciliation sweep skipped")
	}
}

// RunSweepNow runs the sweep immediately (admin trigger). It shares the
// in-flight guard with scheduled runs.
func (s *CronService) RunSweepNow(ctx context.Context) *SweepReport {
	s.logger.Info("[MANUAL] Running reconciliation sweep now...")
	return s.sweeper.RunSweep(ctx)
}

// GetJobStatus returns the scheduler state and the last sweep report
func (s *CronService) GetJobStatus() map[string]interface{} {
	status := map[string]interface{}{
		"schedule":    s.schedule,
		"running":     false,
		"last_report": s.sweeper.LastReport(),
	}

	if s.entryID != 0 {
		entry := s.cron.Entry(s.entryID)
		if entry.Valid() {
			status["running"] = true
			status["next_run"] = entry.Next
			status["prev_run"] = entry.Prev
		}
	}
	return status
}

// cronLogger routes robfig/cron's logging into logrus
type cronLogger struct {
	logger *logrus.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.WithFields(kvFields(keysAndValues)).Debug("[CRON] " + msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.WithError(err).WithFields(kvFields(keysAndValues)).Error("[CRON] " + msg)
}

func kvFields(keysAndValues []interface{}) logrus.Fields {
	fields := logrus.Fields{}
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		fields[fmt.Sprint(keysAndValues[i])] = keysAndValues[i+1]
	}
	return fields
}
