package notify

import (
	"context"

	"github.com/sirupsen/logrus"
)

// LogSink writes notifications to the log. Used when no broker is configured.
type LogSink struct {
	logger *logrus.Logger
}

// NewLogSink creates a LogSink
func NewLogSink(logger *logrus.Logger) *LogSink {
	return &LogSink{logger: logger}
}

func (s *LogSink) Notify(_ context.Context, n Notification) error {
	s.logger.WithFields(logrus.Fields{
		"user_id":    n.UserID,
		"booking_id": n.BookingID,
		"event":      n.Event,
		"severity":   n.Severity,
	}).Info(n.Message)
	return nil
}
