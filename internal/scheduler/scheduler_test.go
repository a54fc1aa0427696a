package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/streamspace-dev/pluginrt/internal/plugin"
)

type countingRunner struct {
	count atomic.Int32
}

func (r *countingRunner) RunCronJob(ctx context.Context, job plugin.CronJobDef) {
	r.count.Add(1)
}

func TestScheduleRunsJobOnTick(t *testing.T) {
	s := New()
	defer s.Stop()

	runner := &countingRunner{}
	err := s.Schedule("alpha", plugin.CronJobDef{Name: "heartbeat", Expr: "@every 10ms"}, runner)
	require.NoError(t, err)

	require.Eventually(t, func() bool { return runner.count.Load() >= 2 }, 500*time.Millisecond, 10*time.Millisecond)
}

func TestRescheduleReplacesPriorEntry(t *testing.T) {
	s := New()
	defer s.Stop()

	slow := &countingRunner{}
	require.NoError(t, s.Schedule("beta", plugin.CronJobDef{Name: "job", Expr: "@every 1h"}, slow))

	fast := &countingRunner{}
	require.NoError(t, s.Schedule("beta", plugin.CronJobDef{Name: "job", Expr: "@every 10ms"}, fast))

	require.Eventually(t, func() bool { return fast.count.Load() >= 2 }, 500*time.Millisecond, 10*time.Millisecond)
	require.EqualValues(t, 0, slow.count.Load())
}

func TestInvalidCronExpressionReturnsError(t *testing.T) {
	s := New()
	defer s.Stop()

	err := s.Schedule("gamma", plugin.CronJobDef{Name: "bad", Expr: "not-a-cron-expr"}, &countingRunner{})
	require.Error(t, err)
}

func TestRemovePluginStopsItsJobs(t *testing.T) {
	s := New()
	defer s.Stop()

	runner := &countingRunner{}
	require.NoError(t, s.Schedule("delta", plugin.CronJobDef{Name: "job", Expr: "@every 10ms"}, runner))

	require.Eventually(t, func() bool { return runner.count.Load() >= 1 }, 500*time.Millisecond, 10*time.Millisecond)
	s.RemovePlugin("delta")

	seenAfterRemoval := runner.count.Load()
	time.Sleep(60 * time.Millisecond)
	require.Equal(t, seenAfterRemoval, runner.count.Load())
}
