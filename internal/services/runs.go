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

// RunTracker keeps the run history of profile replays.
type RunTracker struct {
	runs store.RunStore
	log  *zap.Logger
	now  func() time.Time
}

func NewRunTracker(runs store.RunStore, log *zap.Logger) *RunTracker {
	if log == nil {
		log = zap.NewNop()
	}
	return &RunTracker{runs: runs, log: log.Named("runs"), now: time.Now}
}

// Begin stores a running run for total actions.
func (t *RunTracker) Begin(ctx context.Context, profileID, url string, total int) (*models.Run, error) {
	run := &models.Run{
		ProfileID: profileID,
		URL:       url,
		Status:    models.RunRunning,
		Total:     total,
		StartTime: t.now(),
	}
	if err := t.runs.CreateRun(ctx, run); err != nil {
		return nil, err
	}
	return run, nil
}

// Finish closes run with the replay outcome. A replay that never started
// (err != nil) is cancelled with every action skipped.
func (t *RunTracker) Finish(run *models.Run, result *executor.Result, err error) {
	log := t.log.With(zap.Uint("run", run.ID), zap.String("profile", run.ProfileID))
	end := t.now()
	run.EndTime = &end
	run.Duration = end.Sub(run.StartTime).Milliseconds()

	var logs []executor.ExecutionLog
	switch {
	case err != nil:
		log.Warn("replay failed", zap.Error(err))
		run.Status = models.RunCancelled
		run.Skipped = run.Total
		logs = []executor.ExecutionLog{{Timestamp: end, Level: "error", Message: err.Error(), StepIndex: -1}}
	default:
		run.Status = models.RunCompleted
		if result.Cancelled {
			run.Status = models.RunCancelled
		}
		run.Succeeded = result.Succeeded
		run.Failed = result.Failed
		run.Skipped = result.Skipped
		logs = result.Logs
		log.Info("replay finished", zap.String("summary", result.Summary()))
	}
	if raw, err := json.Marshal(logs); err == nil {
		run.Logs = string(raw)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := t.runs.UpdateRun(ctx, run); err != nil {
		log.Error("saving run failed", zap.Error(err))
	}
}
