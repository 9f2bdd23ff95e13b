package services

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/roomdesk/reservation-backend/internal/database"
	"github.com/roomdesk/reservation-backend/internal/models"
	"github.com/roomdesk/reservation-backend/pkg/notify"
	"github.com/sirupsen/logrus"
)

// SweepLeaseKey is the cross-process lease taken before each sweep
const SweepLeaseKey = "reservation:sweep"

// Locker hands out cross-process leases. Optional.
type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (token string, ok bool, err error)
	Release(ctx context.Context, key, token string) error
}

// ReconciliationConfig holds sweep tuning
type ReconciliationConfig struct {
	BatchSize    int           // max rows per pass
	ReminderLead time.Duration // how far ahead reminders fire
	LockTTL      time.Duration // lease TTL when a Locker is configured
	Clock        func() time.Time
}

// DefaultReconciliationConfig returns default sweep tuning
func DefaultReconciliationConfig() ReconciliationConfig {
	return ReconciliationConfig{
		BatchSize:    100,
		ReminderLead: 15 * time.Minute,
		LockTTL:      55 * time.Second,
		Clock:        time.Now,
	}
}

// SweepReport summarizes one sweep
type SweepReport struct {
	StartedAt  time.Time `json:"started_at"`
	DurationMs int64     `json:"duration_ms"`
	Cancelled  int       `json:"cancelled"`
	Completed  int       `json:"completed"`
	Reminded   int       `json:"reminded"`
	Failed     int       `json:"failed"`
	Skipped    bool      `json:"skipped"`
	SkipReason string    `json:"skip_reason,omitempty"`
}

// ReconciliationService is the Reconciliation Scheduler's sweep. Runs never
// overlap within a process; with a Locker they never overlap across processes.
type ReconciliationService struct {
	store    database.SweepStore
	notifier notify.Sink
	audit    *AuditService
	locker   Locker
	config   ReconciliationConfig
	logger   *logrus.Logger

	running atomic.Bool
	mu      sync.RWMutex
	last    *SweepReport
}

// NewReconciliationService creates the sweep. locker may be nil.
func NewReconciliationService(
	store database.SweepStore,
	notifier notify.Sink,
	audit *AuditService,
	locker Locker,
	config ReconciliationConfig,
	logger *logrus.Logger,
) *ReconciliationService {
	defaults := DefaultReconciliationConfig()
	if config.BatchSize < 1 {
		config.BatchSize = defaults.BatchSize
	}
	if config.ReminderLead <= 0 {
		config.ReminderLead = defaults.ReminderLead
	}
	if config.LockTTL <= 0 {
		config.LockTTL = defaults.LockTTL
	}
	if config.Clock == nil {
		config.Clock = time.Now
	}
	return &ReconciliationService{
		store:    store,
		notifier: notifier,
		audit:    audit,
		locker:   locker,
		config:   config,
		logger:   logger,
	}
}

// RunSweep performs the three passes once. It returns a skipped report when a
// sweep is already running here or holds the lease elsewhere.
func (s *ReconciliationService) RunSweep(ctx context.Context) *SweepReport {
	now := s.config.Clock()
	report := &SweepReport{StartedAt: now}

	if !s.running.CompareAndSwap(false, true) {
		report.Skipped, report.SkipReason = true, "sweep already running"
		return report
	}
	defer s.running.Store(false)

	if s.locker != nil {
		token, ok, err := s.locker.Acquire(ctx, SweepLeaseKey, s.config.LockTTL)
		if err != nil {
			// Redis down: sweep anyway, every write is conditional
			s.logger.WithError(err).Warn("Sweep lease unavailable, running without it")
		} else if !ok {
			report.Skipped, report.SkipReason = true, "lease held by another instance"
			return report
		} else {
			defer func() {
				if err := s.locker.Release(context.WithoutCancel(ctx), SweepLeaseKey, token); err != nil {
					s.logger.WithError(err).Warn("Failed to release sweep lease")
				}
			}()
		}
	}

	s.cancelStalePending(ctx, now, report)
	s.completeFinished(ctx, now, report)
	s.sendReminders(ctx, now, report)

	report.DurationMs = s.config.Clock().Sub(now).Milliseconds()

	s.mu.Lock()
	s.last = report
	s.mu.Unlock()

	if report.Cancelled+report.Completed+report.Reminded+report.Failed > 0 {
		s.logger.WithFields(logrus.Fields{
			"cancelled": report.Cancelled,
			"completed": report.Completed,
			"reminded":  report.Reminded,
			"failed":    report.Failed,
		}).Info("Reconciliation sweep finished")
	}
	return report
}

// LastReport returns the most recent non-skipped report, or nil
func (s *ReconciliationService) LastReport() *SweepReport {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.last == nil {
		return nil
	}
	r := *s.last
	return &r
}

// cancelStalePending cancels PENDING bookings whose start has passed. No stock
// was checked out, so nothing is credited.
func (s *ReconciliationService) cancelStalePending(ctx context.Context, now time.Time, report *SweepReport) {
	bookings, err := s.store.ListStalePending(ctx, now, s.config.BatchSize)
	if err != nil {
		s.logger.WithError(err).WithField("pass", "auto_cancel").Error("Failed to list stale bookings")
		report.Failed++
		return
	}

	for i := range bookings {
		b := &bookings[i]
		ok, err := s.store.CancelIfStalePending(ctx, b.ID, now)
		if err != nil {
			s.rowFailed(err, "auto_cancel", b, report)
			continue
		}
		if !ok {
			continue
		}
		report.Cancelled++
		b.Status = models.BookingStatusCancelled

		s.audit.Record(ctx, SystemActor, AuditEvent{
			Action:    models.AuditActionCancel,
			BookingID: b.ID,
			From:      statusPtr(models.BookingStatusPending),
			To:        statusPtr(models.BookingStatusCancelled),
			Details:   map[string]interface{}{"reason": "not approved before start"},
		})
		s.notify(ctx, b, notify.EventBookingAutoCancelled, notify.SeverityWarning,
			fmt.Sprintf("Your booking request for %s was not approved in time and has been cancelled", formatWindow(b)))
	}
}

// completeFinished completes APPROVED bookings that ended and borrowed nothing.
// Bookings with facility lines wait for an explicit return.
func (s *ReconciliationService) completeFinished(ctx context.Context, now time.Time, report *SweepReport) {
	bookings, err := s.store.ListFinishedWithoutFacilities(ctx, now, s.config.BatchSize)
	if err != nil {
		s.logger.WithError(err).WithField("pass", "auto_complete").Error("Failed to list finished bookings")
		report.Failed++
		return
	}

	for i := range bookings {
		b := &bookings[i]
		ok, err := s.store.CompleteIfFinished(ctx, b.ID, now)
		if err != nil {
			s.rowFailed(err, "auto_complete", b, report)
			continue
		}
		if !ok {
			continue
		}
		report.Completed++
		b.Status = models.BookingStatusCompleted

		s.audit.Record(ctx, SystemActor, AuditEvent{
			Action:    models.AuditActionComplete,
			BookingID: b.ID,
			From:      statusPtr(models.BookingStatusApproved),
			To:        statusPtr(models.BookingStatusCompleted),
			Details:   map[string]interface{}{"reason": "ended without borrowed facilities"},
		})
		s.notify(ctx, b, notify.EventBookingAutoCompleted, notify.SeveritySuccess,
			fmt.Sprintf("Your booking for %s has been completed", formatWindow(b)))
	}
}

// sendReminders notifies owners of APPROVED bookings starting within the lead
// time. The flag is set before the notification so a retried sweep never
// sends twice.
func (s *ReconciliationService) sendReminders(ctx context.Context, now time.Time, report *SweepReport) {
	bookings, err := s.store.ListDueReminders(ctx, now, now.Add(s.config.ReminderLead), s.config.BatchSize)
	if err != nil {
		s.logger.WithError(err).WithField("pass", "reminder").Error("Failed to list due reminders")
		report.Failed++
		return
	}

	for i := range bookings {
		b := &bookings[i]
		ok, err := s.store.MarkReminderSent(ctx, b.ID)
		if err != nil {
			s.rowFailed(err, "reminder", b, report)
			continue
		}
		if !ok {
			continue
		}
		report.Reminded++
		b.ReminderSent = true

		minutes := int(b.StartTime.Sub(now).Round(time.Minute).Minutes())
		s.notify(ctx, b, notify.EventBookingReminder, notify.SeverityInfo,
			fmt.Sprintf("Reminder: your booking %s starts in %d minutes", formatWindow(b), minutes))
	}
}

func (s *ReconciliationService) rowFailed(err error, pass string, b *models.Booking, report *SweepReport) {
	report.Failed++
	s.logger.WithError(err).WithFields(logrus.Fields{
		"pass":       pass,
		"booking_id": b.ID,
	}).Error("Sweep row failed, continuing")
}

func (s *ReconciliationService) notify(ctx context.Context, b *models.Booking, event string, severity notify.Severity, message string) {
	dispatchNotification(ctx, s.notifier, s.logger, b, event, severity, message, s.config.Clock())
}
