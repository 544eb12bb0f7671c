package services

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"formfiller/internal/executor"
	"formfiller/internal/models"
	"formfiller/internal/store"
)

// DefaultRunTimeout is how long a run may stay running before it is
// considered lost.
const DefaultRunTimeout = 30 * time.Minute

// StatusSync reconciles replay history with reality: runs left running by a
// previous process, or running far too long, are closed as interrupted.
type StatusSync struct {
	runs    store.RunStore
	timeout time.Duration
	log     *zap.Logger
	now     func() time.Time
}

func NewStatusSync(runs store.RunStore, timeout time.Duration, log *zap.Logger) *StatusSync {
	if timeout <= 0 {
		timeout = DefaultRunTimeout
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &StatusSync{runs: runs, timeout: timeout, log: log.Named("status_sync"), now: time.Now}
}

// Recover closes every run that started before boot; nothing from an earlier
// process can still be replaying.
func (s *StatusSync) Recover(ctx context.Context, boot time.Time) int {
	return s.close(ctx, boot, "interrupted by a restart")
}

// Sync closes runs that exceeded the timeout.
func (s *StatusSync) Sync(ctx context.Context) int {
	return s.close(ctx, s.now().Add(-s.timeout), "timed out after "+s.timeout.String())
}

// Job adapts Sync to the scheduler.
func (s *StatusSync) Job() func() {
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		s.Sync(ctx)
	}
}

func (s *StatusSync) close(ctx context.Context, before time.Time, reason string) int {
	stale, err := s.runs.StaleRuns(ctx, before)
	if err != nil {
		s.log.Error("query stale runs failed", zap.Error(err))
		return 0
	}

	fixed := 0
	for i := range stale {
		run := &stale[i]
		now := s.now()
		run.EndTime = &now
		run.Duration = now.Sub(run.StartTime).Milliseconds()
		run.Status = models.RunInterrupted
		run.Skipped = run.Total - run.Succeeded - run.Failed
		raw, _ := json.Marshal([]executor.ExecutionLog{{Timestamp: now, Level: "error", Message: reason, StepIndex: -1}})
		run.Logs = string(raw)

		if err := s.runs.UpdateRun(ctx, run); err != nil {
			s.log.Error("closing stale run failed", zap.Uint("run", run.ID), zap.Error(err))
			continue
		}
		fixed++
	}
	if fixed > 0 {
		s.log.Info("stale runs closed", zap.Int("count", fixed), zap.String("reason", reason))
	}
	return fixed
}
