package services

import (
	"context"
	"errors"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"formfiller/internal/executor"
	"formfiller/internal/models"
	"formfiller/internal/store"
)

type countingSweeper struct {
	calls atomic.Int32
	ttl   atomic.Int64
}

func (c *countingSweeper) Sweep(ttl time.Duration) int {
	c.calls.Add(1)
	c.ttl.Store(int64(ttl))
	return 0
}

func TestSchedulerRunsJanitor(t *testing.T) {
	s := NewScheduler(nil)
	sw := &countingSweeper{}
	require.NoError(t, s.Add("janitor", "@every 1s", SessionJanitor(sw, time.Minute)))
	_, ok := s.Next("janitor")
	assert.True(t, ok)

	s.Start()
	defer s.Stop()
	assert.Eventually(t, func() bool { return sw.calls.Load() > 0 }, 3*time.Second, 20*time.Millisecond)
	assert.Equal(t, int64(time.Minute), sw.ttl.Load())
}

func TestSchedulerReplaceAndRemove(t *testing.T) {
	s := NewScheduler(nil)
	assert.Error(t, s.Add("bad", "every now and then", func() {}))

	require.NoError(t, s.Add("job", "@hourly", func() {}))
	require.NoError(t, s.Add("job", "@daily", func() {}))
	assert.Len(t, s.cron.Entries(), 1, "a name holds one entry")

	s.Remove("job")
	_, ok := s.Next("job")
	assert.False(t, ok)
	assert.Empty(t, s.cron.Entries())
}

func TestStatusSync(t *testing.T) {
	st, err := store.OpenSQLite(filepath.Join(t.TempDir(), "runs.db"))
	require.NoError(t, err)
	defer st.Close()
	ctx := context.Background()

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	stuck := &models.Run{ProfileID: "p1", Status: models.RunRunning, Total: 4, Succeeded: 1, StartTime: now.Add(-2 * time.Hour)}
	fresh := &models.Run{ProfileID: "p1", Status: models.RunRunning, Total: 2, StartTime: now.Add(-time.Minute)}
	require.NoError(t, st.CreateRun(ctx, stuck))
	require.NoError(t, st.CreateRun(ctx, fresh))

	sync := NewStatusSync(st, 0, nil)
	sync.now = func() time.Time { return now }

	assert.Equal(t, 1, sync.Sync(ctx))
	assert.Equal(t, 0, sync.Sync(ctx), "closed runs stay closed")

	runs, err := st.ListRuns(ctx, "p1", 10)
	require.NoError(t, err)
	byID := map[uint]models.Run{}
	for _, r := range runs {
		byID[r.ID] = r
	}
	got := byID[stuck.ID]
	assert.Equal(t, models.RunInterrupted, got.Status)
	assert.Equal(t, 3, got.Skipped)
	assert.Contains(t, got.Logs, "timed out after 30m0s")
	assert.Equal(t, models.RunRunning, byID[fresh.ID].Status)

	assert.Equal(t, 1, sync.Recover(ctx, now))
	runs, err = st.ListRuns(ctx, "p1", 10)
	require.NoError(t, err)
	for _, r := range runs {
		assert.Equal(t, models.RunInterrupted, r.Status)
	}
}

func TestRunTracker(t *testing.T) {
	st, err := store.OpenSQLite(filepath.Join(t.TempDir(), "runs.db"))
	require.NoError(t, err)
	defer st.Close()
	ctx := context.Background()

	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	tracker := NewRunTracker(st, nil)
	tracker.now = func() time.Time { return start }

	ok, err := tracker.Begin(ctx, "p1", "https://example.test", 3)
	require.NoError(t, err)
	assert.Equal(t, models.RunRunning, ok.Status)

	tracker.now = func() time.Time { return start.Add(1500 * time.Millisecond) }
	tracker.Finish(ok, &executor.Result{Total: 3, Succeeded: 2, Failed: 1, Logs: []executor.ExecutionLog{{Level: "info", Message: "step"}}}, nil)

	lost, err := tracker.Begin(ctx, "p1", "https://example.test", 2)
	require.NoError(t, err)
	tracker.Finish(lost, nil, errors.New("session gone"))

	runs, err := st.ListRuns(ctx, "p1", 10)
	require.NoError(t, err)
	require.Len(t, runs, 2)

	assert.Equal(t, models.RunCancelled, runs[0].Status)
	assert.Equal(t, 2, runs[0].Skipped)
	assert.Contains(t, runs[0].Logs, "session gone")

	assert.Equal(t, models.RunCompleted, runs[1].Status)
	assert.Equal(t, 2, runs[1].Succeeded)
	assert.Equal(t, 1, runs[1].Failed)
	assert.Equal(t, int64(1500), runs[1].Duration)
	assert.Contains(t, runs[1].Logs, `"message":"step"`)
}
