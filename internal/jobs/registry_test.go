package jobs

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/prooflab/cardproof-backend/internal/platform/apierr"
	"github.com/prooflab/cardproof-backend/internal/platform/logger"
)

func testLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New("test")
	require.NoError(t, err)
	return log
}

func newTestJob() *Job {
	return NewJob(uuid.New(), "card.ai", "", 1024, Options{})
}

func TestSubmitAndStatus(t *testing.T) {
	t.Parallel()
	r := NewRegistry(4, time.Hour, testLogger(t))
	j := newTestJob()
	require.NoError(t, r.Submit(j))

	v, err := r.Status(j.ID)
	require.NoError(t, err)
	require.Equal(t, StateQueued, v.State)
	require.Equal(t, 0, v.Progress)
	require.Equal(t, 1, r.QueueDepth())
}

func TestStatusUnknownID(t *testing.T) {
	t.Parallel()
	r := NewRegistry(4, time.Hour, testLogger(t))
	_, err := r.Status(uuid.New())
	require.Equal(t, apierr.KindNotFound, apierr.KindOf(err))
}

func TestSubmitQueueFullLeavesNoTrace(t *testing.T) {
	t.Parallel()
	r := NewRegistry(1, time.Hour, testLogger(t))
	require.NoError(t, r.Submit(newTestJob()))

	rejected := newTestJob()
	err := r.Submit(rejected)
	require.Equal(t, apierr.KindQueueFull, apierr.KindOf(err))

	_, statusErr := r.Status(rejected.ID)
	require.Equal(t, apierr.KindNotFound, apierr.KindOf(statusErr), "rejected job must not be reachable")
}

func TestSubmitRejectsDuplicateJobID(t *testing.T) {
	t.Parallel()
	r := NewRegistry(4, time.Hour, testLogger(t))
	first := newTestJob()
	require.NoError(t, r.Submit(first))

	dup := NewJob(first.ID, "other.ai", "", 2048, Options{})
	err := r.Submit(dup)
	require.Equal(t, apierr.KindInvalidRequest, apierr.KindOf(err))

	// The original record survives untouched.
	got, ok := r.Get(first.ID)
	require.True(t, ok)
	require.Same(t, first, got)
	require.Equal(t, 1, r.QueueDepth())
}

func TestResultStates(t *testing.T) {
	t.Parallel()
	r := NewRegistry(4, time.Hour, testLogger(t))

	queued := newTestJob()
	require.NoError(t, r.Submit(queued))
	_, err := r.Result(queued.ID)
	require.Equal(t, apierr.KindNotReady, apierr.KindOf(err))

	done := newTestJob()
	require.NoError(t, r.Submit(done))
	require.True(t, done.MarkRunning())
	require.True(t, done.Succeed("/tmp/results/x"))
	dir, err := r.Result(done.ID)
	require.NoError(t, err)
	require.Equal(t, "/tmp/results/x", dir)

	failed := newTestJob()
	require.NoError(t, r.Submit(failed))
	require.True(t, failed.MarkRunning())
	require.True(t, failed.Fail(apierr.New(apierr.KindRendererFailed, "agent exited")))
	_, err = r.Result(failed.ID)
	require.Equal(t, apierr.KindRendererFailed, apierr.KindOf(err))
}

func TestCancelQueuedJobIsImmediate(t *testing.T) {
	t.Parallel()
	r := NewRegistry(4, time.Hour, testLogger(t))
	j := newTestJob()
	require.NoError(t, r.Submit(j))

	require.NoError(t, r.Cancel(j.ID))
	require.Equal(t, StateCancelled, j.State())

	// The stale slot is still drained by a worker, which must skip it.
	got, err := r.Dequeue(context.Background())
	require.NoError(t, err)
	require.False(t, got.MarkRunning())
}

func TestCancelTerminalJobIsNoOp(t *testing.T) {
	t.Parallel()
	r := NewRegistry(4, time.Hour, testLogger(t))
	j := newTestJob()
	require.NoError(t, r.Submit(j))
	require.True(t, j.MarkRunning())
	require.True(t, j.Succeed("/tmp/out"))

	require.NoError(t, r.Cancel(j.ID))
	require.Equal(t, StateSucceeded, j.State())
}

func TestProgressIsMonotonic(t *testing.T) {
	t.Parallel()
	j := newTestJob()
	require.True(t, j.MarkRunning())
	j.SetProgress(40)
	j.SetProgress(20)
	require.Equal(t, 40, j.Progress())
	j.SetProgress(150)
	require.Equal(t, 100, j.Progress())
}

func TestProgressIgnoredWhenNotRunning(t *testing.T) {
	t.Parallel()
	j := newTestJob()
	j.SetProgress(50)
	require.Equal(t, 0, j.Progress())
}

func TestDPIDefaultsOnSubmit(t *testing.T) {
	t.Parallel()
	j := NewJob(uuid.New(), "card.ai", "", 1, Options{DPI: -3})
	require.Equal(t, 600, j.Options.DPI)
}

func TestReapEvictsExpiredTerminalJobs(t *testing.T) {
	t.Parallel()
	r := NewRegistry(8, time.Minute, testLogger(t))

	expired := newTestJob()
	require.NoError(t, r.Submit(expired))
	require.True(t, expired.MarkRunning())
	require.True(t, expired.Succeed(""))

	active := newTestJob()
	require.NoError(t, r.Submit(active))

	n := r.Reap(time.Now().Add(2 * time.Minute))
	require.Equal(t, 1, n)

	_, err := r.Status(expired.ID)
	require.Equal(t, apierr.KindNotFound, apierr.KindOf(err))
	_, err = r.Status(active.ID)
	require.NoError(t, err)
}

func TestDequeueHonorsContext(t *testing.T) {
	t.Parallel()
	r := NewRegistry(1, time.Hour, testLogger(t))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := r.Dequeue(ctx)
	require.ErrorIs(t, err, context.Canceled)
}
