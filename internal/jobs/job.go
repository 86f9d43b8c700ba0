// Package jobs holds the job lifecycle: the per-job record and state machine,
// the in-process registry with its bounded FIFO queue, and the worker pool
// that runs classification, planning, rendering, and manifest assembly.
package jobs

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/prooflab/cardproof-backend/internal/platform/apierr"
)

type State string

const (
	StateQueued    State = "queued"
	StateRunning   State = "running"
	StateSucceeded State = "succeeded"
	StateFailed    State = "failed"
	StateTimedOut  State = "timed_out"
	StateCancelled State = "cancelled"
)

func (s State) Terminal() bool {
	switch s {
	case StateSucceeded, StateFailed, StateTimedOut, StateCancelled:
		return true
	default:
		return false
	}
}

// Options are the client-supplied processing knobs.
type Options struct {
	DPI           int  `json:"dpi"`
	ExtractVector bool `json:"extractVector"`
	EnableOCG     bool `json:"enableOcg"`
}

// Job is one submission. All mutation after creation goes through the
// transition methods, serialized by the record's own lock so status polling
// scales with concurrent jobs.
type Job struct {
	ID             uuid.UUID
	SourceFilename string
	SourcePath     string
	SourceBytes    int64
	SubmittedAt    time.Time
	Options        Options

	mu          sync.Mutex
	state       State
	progress    int
	startedAt   *time.Time
	completedAt *time.Time
	err         *apierr.Error
	resultDir   string
	cancelCh    chan struct{}
	cancelled   bool
}

func NewJob(id uuid.UUID, filename, sourcePath string, size int64, opts Options) *Job {
	if opts.DPI <= 0 {
		opts.DPI = 600
	}
	return &Job{
		ID:             id,
		SourceFilename: filename,
		SourcePath:     sourcePath,
		SourceBytes:    size,
		SubmittedAt:    time.Now().UTC(),
		Options:        opts,
		state:          StateQueued,
		cancelCh:       make(chan struct{}),
	}
}

// View is a read-only snapshot served over HTTP.
type View struct {
	JobID       string     `json:"jobId"`
	State       State      `json:"state"`
	Progress    int        `json:"progress"`
	SubmittedAt time.Time  `json:"submittedAt"`
	StartedAt   *time.Time `json:"startedAt,omitempty"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
	Error       *ViewError `json:"error,omitempty"`
	Warning     string     `json:"warning,omitempty"`
}

type ViewError struct {
	Kind    apierr.Kind `json:"kind"`
	Message string      `json:"message"`
}

func (j *Job) View() View {
	j.mu.Lock()
	defer j.mu.Unlock()
	v := View{
		JobID:       j.ID.String(),
		State:       j.state,
		Progress:    j.progress,
		SubmittedAt: j.SubmittedAt,
		StartedAt:   j.startedAt,
		CompletedAt: j.completedAt,
	}
	if j.err != nil {
		v.Error = &ViewError{Kind: j.err.Kind, Message: j.err.Message}
	}
	return v
}

func (j *Job) State() State {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.state
}

// ResultDir is non-empty iff the job succeeded.
func (j *Job) ResultDir() string {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.state != StateSucceeded {
		return ""
	}
	return j.resultDir
}

func (j *Job) Err() *apierr.Error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.err
}

func (j *Job) CompletedAt() *time.Time {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.completedAt
}

// MarkRunning transitions Queued -> Running. It refuses the transition when
// the job was cancelled while waiting in the queue.
func (j *Job) MarkRunning() bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.state != StateQueued {
		return false
	}
	now := time.Now().UTC()
	j.state = StateRunning
	j.startedAt = &now
	return true
}

// SetProgress updates progress monotonically; only a Running job moves.
func (j *Job) SetProgress(pct int) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.state != StateRunning {
		return
	}
	if pct < 0 {
		pct = 0
	}
	if pct > 100 {
		pct = 100
	}
	if pct > j.progress {
		j.progress = pct
	}
}

func (j *Job) Progress() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.progress
}

// Succeed finishes the job; the result directory becomes read-only from the
// worker's point of view afterwards.
func (j *Job) Succeed(resultDir string) bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.state != StateRunning {
		return false
	}
	now := time.Now().UTC()
	j.state = StateSucceeded
	j.progress = 100
	j.resultDir = resultDir
	j.completedAt = &now
	return true
}

func (j *Job) Fail(err *apierr.Error) bool {
	return j.finish(StateFailed, err)
}

func (j *Job) TimeOut() bool {
	return j.finish(StateTimedOut, apierr.New(apierr.KindTimeout, "job deadline exceeded"))
}

func (j *Job) finish(s State, err *apierr.Error) bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.state.Terminal() {
		return false
	}
	now := time.Now().UTC()
	j.state = s
	j.err = err
	j.completedAt = &now
	return true
}

// RequestCancel flags the job for cancellation. A queued job transitions to
// Cancelled immediately; a running worker observes the closed channel at its
// next checkpoint. Terminal states are untouched.
func (j *Job) RequestCancel() {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.state.Terminal() {
		return
	}
	if !j.cancelled {
		j.cancelled = true
		close(j.cancelCh)
	}
	if j.state == StateQueued {
		now := time.Now().UTC()
		j.state = StateCancelled
		j.err = apierr.New(apierr.KindCancelled, "cancelled while queued")
		j.completedAt = &now
	}
}

// MarkCancelled finalizes a running job after its worker has unwound.
func (j *Job) MarkCancelled() bool {
	return j.finish(StateCancelled, apierr.New(apierr.KindCancelled, "cancelled by request"))
}

// CancelRequested is closed once cancellation has been asked for.
func (j *Job) CancelRequested() <-chan struct{} {
	return j.cancelCh
}

func (j *Job) CancelPending() bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.cancelled
}
