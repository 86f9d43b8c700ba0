package jobs

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/prooflab/cardproof-backend/internal/doc"
	"github.com/prooflab/cardproof-backend/internal/plan"
	"github.com/prooflab/cardproof-backend/internal/platform/apierr"
)

// fakeRenderer probes a canned document and materializes every planned asset,
// or fails/stalls on demand.
type fakeRenderer struct {
	probeErr  error
	renderErr error
	stall     bool

	mu       sync.Mutex
	rendered int
}

func (f *fakeRenderer) Probe(ctx context.Context, jobID, input, outDir string) (*doc.Document, error) {
	if f.probeErr != nil {
		return nil, f.probeErr
	}
	return &doc.Document{
		Name: "card",
		Artboards: []doc.Artboard{
			{Name: "front", Bounds: doc.Rect{Right: 89, Bottom: 51}},
		},
		Layers: []doc.Layer{{
			Name: "front_layer_0", Visible: true,
			Drawables: []doc.Drawable{
				{Name: "bg", Visible: true, Opacity: 1, Bounds: doc.Rect{Right: 89, Bottom: 51}},
			},
		}},
	}, nil
}

func (f *fakeRenderer) Render(ctx context.Context, jobID, input, outDir string, p plan.Plan) error {
	if f.stall {
		<-ctx.Done()
		return ctx.Err()
	}
	if f.renderErr != nil {
		return f.renderErr
	}
	for _, card := range p.Cards {
		for _, a := range card.Assets {
			if err := os.WriteFile(filepath.Join(outDir, a.Name), []byte("px"), 0o644); err != nil {
				return err
			}
		}
	}
	f.mu.Lock()
	f.rendered++
	f.mu.Unlock()
	return nil
}

type captureNotifier struct {
	mu    sync.Mutex
	views []View
}

func (c *captureNotifier) JobEvent(id uuid.UUID, v View) {
	c.mu.Lock()
	c.views = append(c.views, v)
	c.mu.Unlock()
}

func (c *captureNotifier) snapshot() []View {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]View(nil), c.views...)
}

func newTestPool(t *testing.T, r *Registry, fake *fakeRenderer, timeout time.Duration, notify Notifier) *Pool {
	t.Helper()
	return NewPool(r, func() Renderer { return fake }, t.TempDir(), timeout, 1, notify, testLogger(t))
}

func runPool(t *testing.T, p *Pool) (stop func()) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = p.Run(ctx)
		close(done)
	}()
	return func() {
		cancel()
		<-done
	}
}

func waitTerminal(t *testing.T, j *Job) State {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if s := j.State(); s.Terminal() {
			return s
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("job %s never reached a terminal state (state=%s)", j.ID, j.State())
	return ""
}

func TestPoolRunsJobToSuccess(t *testing.T) {
	t.Parallel()
	r := NewRegistry(4, time.Hour, testLogger(t))
	notify := &captureNotifier{}
	pool := newTestPool(t, r, &fakeRenderer{}, 30*time.Second, notify)
	stop := runPool(t, pool)
	defer stop()

	j := newTestJob()
	require.NoError(t, r.Submit(j))
	require.Equal(t, StateSucceeded, waitTerminal(t, j))
	require.Equal(t, 100, j.Progress())

	dir := j.ResultDir()
	require.NotEmpty(t, dir)
	if _, err := os.Stat(filepath.Join(dir, "manifest.json")); err != nil {
		t.Fatalf("manifest missing: %v", err)
	}

	views := notify.snapshot()
	require.NotEmpty(t, views)
	last := 0
	for _, v := range views {
		require.GreaterOrEqual(t, v.Progress, last, "progress events must be monotonic")
		last = v.Progress
	}
}

func TestPoolFailureWritesDiagnosticAndPurges(t *testing.T) {
	t.Parallel()
	r := NewRegistry(4, time.Hour, testLogger(t))
	fake := &fakeRenderer{renderErr: apierr.New(apierr.KindRendererFailed, "agent exited with code 9")}
	pool := newTestPool(t, r, fake, 30*time.Second, nil)
	stop := runPool(t, pool)
	defer stop()

	j := newTestJob()
	require.NoError(t, r.Submit(j))
	require.Equal(t, StateFailed, waitTerminal(t, j))
	require.Equal(t, apierr.KindRendererFailed, j.Err().Kind)

	dir := filepath.Join(pool.resultRoot, j.ID.String())
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1, "only the diagnostic may survive a failure")

	raw, err := os.ReadFile(filepath.Join(dir, "failure.json"))
	require.NoError(t, err)
	var diag map[string]string
	require.NoError(t, json.Unmarshal(raw, &diag))
	require.Equal(t, string(apierr.KindRendererFailed), diag["code"])
}

func TestPoolProbeFailureFailsJob(t *testing.T) {
	t.Parallel()
	r := NewRegistry(4, time.Hour, testLogger(t))
	fake := &fakeRenderer{probeErr: apierr.New(apierr.KindRendererFailed, "cannot open document")}
	pool := newTestPool(t, r, fake, 30*time.Second, nil)
	stop := runPool(t, pool)
	defer stop()

	j := newTestJob()
	require.NoError(t, r.Submit(j))
	require.Equal(t, StateFailed, waitTerminal(t, j))
	require.Equal(t, apierr.KindRendererFailed, j.Err().Kind)
}

func TestPoolTimesOutStalledRender(t *testing.T) {
	t.Parallel()
	r := NewRegistry(4, time.Hour, testLogger(t))
	pool := newTestPool(t, r, &fakeRenderer{stall: true}, 100*time.Millisecond, nil)
	stop := runPool(t, pool)
	defer stop()

	j := newTestJob()
	require.NoError(t, r.Submit(j))
	require.Equal(t, StateTimedOut, waitTerminal(t, j))
	require.Equal(t, apierr.KindTimeout, j.Err().Kind)

	dir := filepath.Join(pool.resultRoot, j.ID.String())
	if _, err := os.Stat(filepath.Join(dir, "failure.json")); err != nil {
		t.Fatalf("timeout diagnostic missing: %v", err)
	}
}

func TestPoolCancelRunningJobRemovesResults(t *testing.T) {
	t.Parallel()
	r := NewRegistry(4, time.Hour, testLogger(t))
	pool := newTestPool(t, r, &fakeRenderer{stall: true}, time.Hour, nil)
	stop := runPool(t, pool)
	defer stop()

	j := newTestJob()
	require.NoError(t, r.Submit(j))

	deadline := time.Now().Add(5 * time.Second)
	for j.State() != StateRunning && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	require.Equal(t, StateRunning, j.State())

	require.NoError(t, r.Cancel(j.ID))
	require.Equal(t, StateCancelled, waitTerminal(t, j))

	dir := filepath.Join(pool.resultRoot, j.ID.String())
	_, err := os.Stat(dir)
	require.True(t, os.IsNotExist(err), "cancelled job must leave no results behind")
}

func TestPoolSkipsJobCancelledWhileQueued(t *testing.T) {
	t.Parallel()
	r := NewRegistry(4, time.Hour, testLogger(t))
	fake := &fakeRenderer{}

	cancelled := newTestJob()
	require.NoError(t, r.Submit(cancelled))
	require.NoError(t, r.Cancel(cancelled.ID))

	live := newTestJob()
	require.NoError(t, r.Submit(live))

	pool := newTestPool(t, r, fake, 30*time.Second, nil)
	stop := runPool(t, pool)
	defer stop()

	require.Equal(t, StateSucceeded, waitTerminal(t, live))
	require.Equal(t, StateCancelled, cancelled.State())

	fake.mu.Lock()
	defer fake.mu.Unlock()
	require.Equal(t, 1, fake.rendered, "the cancelled slot must be drained without rendering")
}
