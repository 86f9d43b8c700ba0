package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/prooflab/cardproof-backend/internal/classify"
	"github.com/prooflab/cardproof-backend/internal/doc"
	"github.com/prooflab/cardproof-backend/internal/manifest"
	"github.com/prooflab/cardproof-backend/internal/plan"
	"github.com/prooflab/cardproof-backend/internal/platform/apierr"
	"github.com/prooflab/cardproof-backend/internal/platform/logger"
)

// Renderer abstracts the rasterizer driver so the pool can be tested without
// spawning the external agent.
type Renderer interface {
	Probe(ctx context.Context, jobID, input, outDir string) (*doc.Document, error)
	Render(ctx context.Context, jobID, input, outDir string, p plan.Plan) error
}

// Notifier receives job snapshots for the optional push channel.
type Notifier interface {
	JobEvent(id uuid.UUID, v View)
}

// Pool runs N long-lived workers, each owning one rasterizer slot and one job
// at a time.
type Pool struct {
	registry   *Registry
	newDriver  func() Renderer
	resultRoot string
	timeout    time.Duration
	workers    int
	notify     Notifier
	log        *logger.Logger
}

func NewPool(registry *Registry, newDriver func() Renderer, resultRoot string, timeout time.Duration, workers int, notify Notifier, log *logger.Logger) *Pool {
	if workers < 1 {
		workers = 1
	}
	return &Pool{
		registry:   registry,
		newDriver:  newDriver,
		resultRoot: resultRoot,
		timeout:    timeout,
		workers:    workers,
		notify:     notify,
		log:        log.With("component", "WorkerPool"),
	}
}

// Run blocks until ctx ends, keeping at most N jobs Running at once.
func (p *Pool) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	p.log.Info("Starting worker pool", "workers", p.workers)
	for i := 0; i < p.workers; i++ {
		workerID := i + 1
		g.Go(func() error {
			return p.runLoop(ctx, workerID)
		})
	}
	return g.Wait()
}

func (p *Pool) runLoop(ctx context.Context, workerID int) error {
	driver := p.newDriver()
	log := p.log.With("worker_id", workerID)
	for {
		job, err := p.registry.Dequeue(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				log.Info("Worker loop stopped")
				return nil
			}
			return err
		}
		// A job cancelled while queued still occupies its slot; drain and skip.
		if !job.MarkRunning() {
			continue
		}
		p.runJob(ctx, driver, job, log)
	}
}

// Progress checkpoints per work phase. Rendering is the bulk of wall time.
const (
	pctIngest   = 15
	pctPlanned  = 55
	pctRendered = 90
	pctAssembly = 98
)

func (p *Pool) runJob(parent context.Context, driver Renderer, job *Job, log *logger.Logger) {
	log = log.With("job_id", job.ID)
	start := time.Now()

	resultDir := filepath.Join(p.resultRoot, job.ID.String())
	if err := os.MkdirAll(resultDir, 0o755); err != nil {
		p.finishFail(job, resultDir, apierr.Wrap(apierr.KindInternal, err), log)
		return
	}

	ctx, cancel := context.WithTimeout(parent, p.timeout)
	defer cancel()
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-job.CancelRequested():
			cancel()
		case <-stop:
		}
	}()

	err := func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				log.Error("Job pipeline panic", "panic", r)
				err = apierr.Newf(apierr.KindInternal, "pipeline panic: %v", r)
			}
		}()
		return p.pipeline(ctx, driver, job, resultDir)
	}()

	switch {
	case err == nil:
		job.Succeed(resultDir)
		p.emit(job)
		log.Info("Job succeeded", "duration_ms", time.Since(start).Milliseconds())
	case job.CancelPending():
		// Cancelled mid-flight: no partial results left behind.
		_ = os.RemoveAll(resultDir)
		job.MarkCancelled()
		p.emit(job)
		log.Info("Job cancelled")
	case errors.Is(err, context.DeadlineExceeded):
		p.purgeAssets(resultDir)
		p.writeFailure(resultDir, apierr.KindTimeout, "job deadline exceeded")
		job.TimeOut()
		p.emit(job)
		log.Warn("Job timed out", "timeout", p.timeout)
	default:
		p.finishFail(job, resultDir, apierr.From(err), log)
	}
}

func (p *Pool) pipeline(ctx context.Context, driver Renderer, job *Job, resultDir string) error {
	p.progress(job, 2)

	tree, err := driver.Probe(ctx, job.ID.String(), job.SourcePath, resultDir)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	p.progress(job, pctIngest)

	buckets := classify.Classify(tree)
	exportPlan := plan.Build(tree, buckets, job.Options.DPI)
	p.progress(job, pctPlanned)

	if err := driver.Render(ctx, job.ID.String(), job.SourcePath, resultDir, exportPlan); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	p.progress(job, pctRendered)

	m, err := manifest.Assemble(job.ID.String(), tree, buckets, exportPlan, resultDir)
	if err != nil {
		return err
	}
	if err := m.Write(resultDir); err != nil {
		return apierr.Wrap(apierr.KindInternal, err)
	}
	p.progress(job, pctAssembly)
	return nil
}

func (p *Pool) progress(job *Job, pct int) {
	job.SetProgress(pct)
	p.emit(job)
}

func (p *Pool) emit(job *Job) {
	if p.notify != nil {
		p.notify.JobEvent(job.ID, job.View())
	}
}

func (p *Pool) finishFail(job *Job, resultDir string, err *apierr.Error, log *logger.Logger) {
	p.purgeAssets(resultDir)
	p.writeFailure(resultDir, err.Kind, err.Message)
	job.Fail(err)
	p.emit(job)
	log.Warn("Job failed", "kind", err.Kind, "error", err.Message)
}

// purgeAssets removes partial outputs but keeps the directory so the failure
// diagnostic has somewhere to live.
func (p *Pool) purgeAssets(resultDir string) {
	entries, err := os.ReadDir(resultDir)
	if err != nil {
		return
	}
	for _, e := range entries {
		_ = os.RemoveAll(filepath.Join(resultDir, e.Name()))
	}
}

// writeFailure leaves a short machine-readable diagnostic in the otherwise
// empty result directory.
func (p *Pool) writeFailure(resultDir string, kind apierr.Kind, msg string) {
	payload, err := json.Marshal(map[string]string{
		"code":    string(kind),
		"message": msg,
	})
	if err != nil {
		return
	}
	_ = os.WriteFile(filepath.Join(resultDir, "failure.json"), payload, 0o644)
}
