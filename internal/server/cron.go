package server

import (
	"context"

	"github.com/streamspace-dev/pluginrt/internal/plugin"
	"github.com/streamspace-dev/pluginrt/internal/telemetry"
)

// RunCronJob invokes one of this plugin's declared cron jobs within its
// own trace span, recovering a panic as onError rather than letting it
// escape to the scheduler — the same propagation policy as lifecycle
// hooks (spec.md §7).
func (s *Server) RunCronJob(ctx context.Context, job plugin.CronJobDef) {
	_, _ = telemetry.Trace(ctx, s.telemetry, "plugin."+s.desc.Name+".cron."+job.Name,
		func(ctx context.Context, span *telemetry.Span) (any, error) {
			defer s.recoverInto(ctx, "cron job "+job.Name)
			if err := job.Run(ctx, methodRuntime{s}); err != nil {
				s.telemetry.Error(ctx, telemetry.LogInput{Message: "cron job failed", Error: err, Attributes: map[string]any{"job": job.Name}})
				s.runOnError(ctx, err)
			}
			return nil, nil
		},
	)
}
