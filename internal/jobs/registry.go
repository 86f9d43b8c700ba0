package jobs

import (
	"context"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/prooflab/cardproof-backend/internal/platform/apierr"
	"github.com/prooflab/cardproof-backend/internal/platform/logger"
)

// Registry owns every job in process memory and the bounded FIFO queue the
// workers pull from. Admission is atomic: a job is reachable by id from the
// moment Submit returns success until Reap evicts it.
type Registry struct {
	mu    sync.RWMutex
	jobs  map[uuid.UUID]*Job
	queue chan *Job
	ttl   time.Duration
	log   *logger.Logger
}

func NewRegistry(queueCapacity int, ttl time.Duration, log *logger.Logger) *Registry {
	if queueCapacity < 1 {
		queueCapacity = 1
	}
	return &Registry{
		jobs:  make(map[uuid.UUID]*Job),
		queue: make(chan *Job, queueCapacity),
		ttl:   ttl,
		log:   log.With("component", "JobRegistry"),
	}
}

// Submit admits the job or rejects with queue_full. Id uniqueness is enforced
// here, under the same lock that registers the job, so two concurrent
// submissions proposing the same id cannot both win. The job is only
// registered once the queue accepted it, so a rejected submission leaves no
// trace.
func (r *Registry) Submit(j *Job) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.jobs[j.ID]; exists {
		return apierr.New(apierr.KindInvalidRequest, "job id already in use")
	}
	select {
	case r.queue <- j:
		r.jobs[j.ID] = j
		r.log.Info("Job queued", "job_id", j.ID, "filename", j.SourceFilename, "bytes", j.SourceBytes)
		return nil
	default:
		return apierr.New(apierr.KindQueueFull, "job queue is full")
	}
}

func (r *Registry) Get(id uuid.UUID) (*Job, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	j, ok := r.jobs[id]
	return j, ok
}

func (r *Registry) Status(id uuid.UUID) (View, error) {
	j, ok := r.Get(id)
	if !ok {
		return View{}, apierr.New(apierr.KindNotFound, "unknown job id")
	}
	return j.View(), nil
}

// Result returns the job's result directory iff it succeeded; otherwise the
// typed error distinguishes not-ready from failed.
func (r *Registry) Result(id uuid.UUID) (string, error) {
	j, ok := r.Get(id)
	if !ok {
		return "", apierr.New(apierr.KindNotFound, "unknown job id")
	}
	switch j.State() {
	case StateSucceeded:
		return j.ResultDir(), nil
	case StateFailed, StateTimedOut, StateCancelled:
		if e := j.Err(); e != nil {
			return "", e
		}
		return "", apierr.New(apierr.KindInternal, "job failed without error record")
	default:
		return "", apierr.New(apierr.KindNotReady, "job has not completed")
	}
}

// Cancel marks a queued job Cancelled immediately or signals a running
// worker; terminal jobs are untouched. The queue slot of a cancelled queued
// job is drained (and skipped) by the next idle worker.
func (r *Registry) Cancel(id uuid.UUID) error {
	j, ok := r.Get(id)
	if !ok {
		return apierr.New(apierr.KindNotFound, "unknown job id")
	}
	j.RequestCancel()
	return nil
}

// Dequeue blocks until a job is available or ctx ends.
func (r *Registry) Dequeue(ctx context.Context) (*Job, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case j := <-r.queue:
		return j, nil
	}
}

func (r *Registry) QueueDepth() int    { return len(r.queue) }
func (r *Registry) QueueCapacity() int { return cap(r.queue) }

// Reap evicts terminal jobs whose TTL has lapsed and removes their on-disk
// artifacts.
func (r *Registry) Reap(now time.Time) int {
	r.mu.Lock()
	var evict []*Job
	for id, j := range r.jobs {
		done := j.CompletedAt()
		if done == nil || !j.State().Terminal() {
			continue
		}
		if done.Add(r.ttl).Before(now) {
			delete(r.jobs, id)
			evict = append(evict, j)
		}
	}
	r.mu.Unlock()

	for _, j := range evict {
		j.mu.Lock()
		dir := j.resultDir
		j.mu.Unlock()
		if dir != "" {
			_ = os.RemoveAll(dir)
		}
		if j.SourcePath != "" {
			_ = os.Remove(j.SourcePath)
		}
		r.log.Info("Job reaped", "job_id", j.ID)
	}
	return len(evict)
}

// RunReaper ticks until ctx ends.
func (r *Registry) RunReaper(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case now := <-ticker.C:
			r.Reap(now)
		}
	}
}
