package services

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSweeper() *ReconciliationService {
	return NewReconciliationService(newMemStore(), nil, nil, nil, DefaultReconciliationConfig(), quietLogger())
}

func TestCronService_StartAndStatus(t *testing.T) {
	svc := NewCronService(newTestSweeper(), "0 */5 * * * *", quietLogger())
	require.NoError(t, svc.Start())
	defer svc.Stop()

	status := svc.GetJobStatus()
	assert.Equal(t, "0 */5 * * * *", status["schedule"])
	assert.Equal(t, true, status["running"])
	assert.Contains(t, status, "next_run")
}

func TestCronService_InvalidSchedule(t *testing.T) {
	svc := NewCronService(newTestSweeper(), "every five minutes", quietLogger())
	assert.Error(t, svc.Start())

	status := svc.GetJobStatus()
	assert.Equal(t, false, status["running"])
	assert.NotContains(t, status, "next_run")
}

func TestCronService_RunSweepNowRecordsReport(t *testing.T) {
	sweeper := newTestSweeper()
	svc := NewCronService(sweeper, "0 */5 * * * *", quietLogger())

	report := svc.RunSweepNow(context.Background())
	require.NotNil(t, report)
	assert.False(t, report.Skipped)
	assert.Equal(t, sweeper.LastReport(), svc.GetJobStatus()["last_report"])
}

func TestKVFields(t *testing.T) {
	fields := kvFields([]interface{}{"entry", 3, "now", "t", "dangling"})
	assert.Len(t, fields, 2)
	assert.Equal(t, 3, fields["entry"])

	// cronLogger must not panic on an error entry
	cronLogger{logger: quietLogger()}.Error(errors.New("boom"), "panic recovered", "job", "sweep")
}
