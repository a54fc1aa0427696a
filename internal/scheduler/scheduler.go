// Package scheduler runs each plugin's declared cron jobs on a single
// shared cron.Cron instance, namespaced per plugin so RemovePlugin can
// tear down exactly the jobs that plugin registered. Grounded on the
// teacher's internal/plugins/scheduler.go per-plugin scheduler wrapping
// a shared global cron instance; generalized from a log.Printf-wrapped
// func() job body to a context-carrying, telemetry-traced plugin.CronJobDef.
package scheduler

import (
	"context"

	"github.com/robfig/cron/v3"

	"github.com/streamspace-dev/pluginrt/internal/logger"
	"github.com/streamspace-dev/pluginrt/internal/plugin"
)

// Runner executes one of a plugin's declared cron jobs within that
// plugin's own telemetry scope. *server.Server satisfies this without
// internal/scheduler importing internal/server.
type Runner interface {
	RunCronJob(ctx context.Context, job plugin.CronJobDef)
}

// Scheduler owns one shared cron.Cron instance and tracks which entry
// ids belong to which plugin, so a plugin's jobs can be torn down as a
// unit without disturbing any other plugin's schedule.
type Scheduler struct {
	cron    *cron.Cron
	entries map[string]map[string]cron.EntryID // plugin -> job name -> entry id
}

// New builds and starts a Scheduler. Stop must be called to release the
// underlying goroutine.
func New() *Scheduler {
	s := &Scheduler{
		cron:    cron.New(),
		entries: map[string]map[string]cron.EntryID{},
	}
	s.cron.Start()
	return s
}

// Schedule registers job under pluginName on its Expr's schedule,
// invoking runner.RunCronJob on each tick. A second Schedule call for
// the same (pluginName, job.Name) pair replaces the prior entry,
// matching the teacher's overwrite-on-reschedule behavior.
func (s *Scheduler) Schedule(pluginName string, job plugin.CronJobDef, runner Runner) error {
	if existing, ok := s.entries[pluginName]; ok {
		if id, ok := existing[job.Name]; ok {
			s.cron.Remove(id)
			delete(existing, job.Name)
		}
	}

	id, err := s.cron.AddFunc(job.Expr, func() {
		runner.RunCronJob(context.Background(), job)
	})
	if err != nil {
		logger.Plugin().Error().Err(err).Str("plugin", pluginName).Str("job", job.Name).Msg("invalid cron expression")
		return err
	}

	if s.entries[pluginName] == nil {
		s.entries[pluginName] = map[string]cron.EntryID{}
	}
	s.entries[pluginName][job.Name] = id
	return nil
}

// RemovePlugin tears down every job scheduled for pluginName.
func (s *Scheduler) RemovePlugin(pluginName string) {
	for _, id := range s.entries[pluginName] {
		s.cron.Remove(id)
	}
	delete(s.entries, pluginName)
}

// Stop drains the underlying cron instance. In-flight jobs run to
// completion; no new ticks fire after it returns.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}
