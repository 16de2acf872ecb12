package schedule

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/daemonflow/daemonflow/internal/platform/logger"
)

type discardLogger struct{}

func (discardLogger) Debug(string, ...interface{})                     {}
func (discardLogger) Info(string, ...interface{})                      {}
func (discardLogger) Warn(string, ...interface{})                      {}
func (discardLogger) Error(string, ...interface{})                     {}
func (discardLogger) Fatal(string, ...interface{})                     {}
func (l discardLogger) WithFields(map[string]interface{}) logger.Logger { return l }
func (l discardLogger) WithContext(context.Context) logger.Logger       { return l }

func TestAddRejectsMissingName(t *testing.T) {
	s := New(nil, discardLogger{})
	err := s.Add(Entry{CronExpr: "*/5 * * * * *", WorkflowName: "wf", RegistryID: "reg"})
	require.Error(t, err)
	assert.ErrorContains(t, err, "name")
}

func TestAddRejectsInvalidCronExpression(t *testing.T) {
	s := New(nil, discardLogger{})
	err := s.Add(Entry{Name: "nightly", CronExpr: "not-a-cron", WorkflowName: "wf", RegistryID: "reg"})
	require.Error(t, err)
	assert.ErrorContains(t, err, "cron_expr")
}

func TestAddAcceptsWellFormedEntry(t *testing.T) {
	s := New(nil, discardLogger{})
	err := s.Add(Entry{Name: "nightly", CronExpr: "0 0 3 * * *", WorkflowName: "wf", RegistryID: "reg"})
	require.NoError(t, err)
}

func TestStartAndStopAreIdempotent(t *testing.T) {
	s := New(nil, discardLogger{})
	require.NoError(t, s.Add(Entry{Name: "once-a-year", CronExpr: "0 0 0 1 1 *", WorkflowName: "wf", RegistryID: "reg"}))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s.Start(ctx)
	s.Start(ctx) // second Start is a no-op, must not panic or double-register
	assert.True(t, s.running)

	s.Stop()
	s.Stop() // second Stop is a no-op
	assert.False(t, s.running)
}
