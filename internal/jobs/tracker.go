// ABOUTME: SearchJob state machine owner - start, cancel, status, supersede policy
// ABOUTME: All transitions funnel through one guarded path that persists, traces, and publishes

package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/carenav/navigator/internal/directory"
	"github.com/carenav/navigator/internal/store"
)

// ErrTrackerClosed is returned when starting a job after shutdown began.
var ErrTrackerClosed = errors.New("job tracker closed")

// ErrJobNotFound is returned when a job ID does not exist or belongs to a
// different user.
var ErrJobNotFound = errors.New("job not found")

// JobStore is the slice of the store the tracker needs.
type JobStore interface {
	SaveJob(ctx context.Context, job *store.SearchJob) error
	GetJob(ctx context.Context, jobID string) (*store.SearchJob, error)
	GetLatestJob(ctx context.Context, userID string) (*store.SearchJob, error)
	ListActiveJobs(ctx context.Context, userID string) ([]*store.SearchJob, error)
	AppendTrace(ctx context.Context, e *store.TraceEntry) error
}

// jobHandle tracks a running worker. The cancelled flag is the worker's
// phase-boundary check; cancel aborts in-flight directory lookups.
type jobHandle struct {
	cancelled atomic.Bool
	cancel    context.CancelFunc
}

// Tracker owns the SearchJob state machine. Policy for a new start while a
// non-terminal job exists: supersede-and-cancel - the prior job is cancelled
// and the new one becomes the single active job.
type Tracker struct {
	store       JobStore
	sources     []directory.Source
	broadcaster *Broadcaster
	logger      *slog.Logger

	mu      sync.Mutex
	running map[string]*jobHandle
	closed  bool
	wg      sync.WaitGroup
}

// NewTracker creates a job tracker. Pass nil logger for default.
func NewTracker(jobStore JobStore, sources []directory.Source, broadcaster *Broadcaster, logger *slog.Logger) *Tracker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Tracker{
		store:       jobStore,
		sources:     sources,
		broadcaster: broadcaster,
		logger:      logger.With("component", "job_tracker"),
		running:     make(map[string]*jobHandle),
	}
}

// Start registers a new search job and launches its background worker.
// Any non-terminal job the user already has is cancelled first, so exactly
// one active job exists per user afterward. The call returns as soon as the
// job is registered; it never waits for the search itself.
func (t *Tracker) Start(ctx context.Context, userID, criteria string) (*store.SearchJob, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return nil, ErrTrackerClosed
	}

	// Supersede: cancel every non-terminal prior job for this user.
	active, err := t.store.ListActiveJobs(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("listing active jobs: %w", err)
	}
	for _, prior := range active {
		t.logger.Info("superseding active job",
			"user_id", userID,
			"job_id", prior.ID)
		t.cancelLocked(ctx, prior, "superseded by new search")
	}

	now := time.Now().UTC()
	job := &store.SearchJob{
		ID:        uuid.New().String(),
		UserID:    userID,
		Criteria:  criteria,
		Status:    store.JobQueued,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := t.store.SaveJob(ctx, job); err != nil {
		return nil, fmt.Errorf("saving job: %w", err)
	}
	t.traceTransition(ctx, job, "started")
	t.publish(job)

	workerCtx, cancel := context.WithCancel(context.Background())
	handle := &jobHandle{cancel: cancel}
	t.running[job.ID] = handle

	t.wg.Add(1)
	go t.run(workerCtx, job, handle)

	result := *job
	return &result, nil
}

// Cancel requests cancellation of a job. Cancelling a job in a terminal
// state is an idempotent no-op acknowledgement. The transition to cancelled
// happens here, synchronously; the worker observes the flag at its next
// phase boundary and stops without emitting anything further.
func (t *Tracker) Cancel(ctx context.Context, userID, jobID string) (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	job, err := t.store.GetJob(ctx, jobID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return false, ErrJobNotFound
		}
		return false, err
	}
	if job.UserID != userID {
		return false, ErrJobNotFound
	}

	if job.Status.Terminal() {
		return true, nil
	}

	t.cancelLocked(ctx, job, "cancelled by user")
	return true, nil
}

// cancelLocked performs the cancelled transition. Caller holds t.mu.
func (t *Tracker) cancelLocked(ctx context.Context, job *store.SearchJob, reason string) {
	if handle, ok := t.running[job.ID]; ok {
		handle.cancelled.Store(true)
		handle.cancel()
	}

	job.Status = store.JobCancelled
	job.ErrorDetail = ""
	job.UpdatedAt = time.Now().UTC()
	if err := t.store.SaveJob(ctx, job); err != nil {
		t.logger.Error("persisting cancelled job failed",
			"job_id", job.ID,
			"error", err)
	}
	t.traceTransition(ctx, job, reason)
	t.publish(job)
	t.broadcaster.CloseJob(job.ID)
}

// Status returns the current state of a job plus any partial results.
// An empty jobID means the user's most recent job. Repeated queries against
// a terminal job return identical payloads.
func (t *Tracker) Status(ctx context.Context, userID, jobID string) (*store.SearchJob, error) {
	var job *store.SearchJob
	var err error
	if jobID == "" {
		job, err = t.store.GetLatestJob(ctx, userID)
	} else {
		job, err = t.store.GetJob(ctx, jobID)
	}
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrJobNotFound
		}
		return nil, err
	}
	if job.UserID != userID {
		return nil, ErrJobNotFound
	}
	return job, nil
}

// Latest returns the user's most recent job. Satisfies the facility search
// specialist's JobStarter interface together with Start.
func (t *Tracker) Latest(ctx context.Context, userID string) (*store.SearchJob, error) {
	return t.store.GetLatestJob(ctx, userID)
}

// Subscribe registers for push updates on a job.
func (t *Tracker) Subscribe(ctx context.Context, jobID string) (<-chan Update, string) {
	return t.broadcaster.Subscribe(ctx, jobID)
}

// Unsubscribe removes a subscription before its context is cancelled.
func (t *Tracker) Unsubscribe(jobID, subID string) {
	t.broadcaster.Unsubscribe(jobID, subID)
}

// Shutdown stops accepting new jobs, cancels in-flight workers, and waits
// for them to exit or for ctx to expire.
func (t *Tracker) Shutdown(ctx context.Context) error {
	t.mu.Lock()
	t.closed = true
	for _, handle := range t.running {
		handle.cancelled.Store(true)
		handle.cancel()
	}
	t.mu.Unlock()

	done := make(chan struct{})
	go func() {
		t.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("job tracker shutdown: %w", ctx.Err())
	}
}

// transition advances a running job to the next state. Returns false when
// the job was cancelled in the meantime - the worker must stop immediately
// and emit nothing further.
func (t *Tracker) transition(ctx context.Context, job *store.SearchJob, handle *jobHandle, status store.JobStatus) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if handle.cancelled.Load() {
		return false
	}

	job.Status = status
	job.UpdatedAt = time.Now().UTC()
	if err := t.store.SaveJob(ctx, job); err != nil {
		t.logger.Error("persisting job transition failed",
			"job_id", job.ID,
			"status", status,
			"error", err)
	}
	t.traceTransition(ctx, job, "")
	t.publish(job)
	if status.Terminal() {
		t.broadcaster.CloseJob(job.ID)
	}
	return true
}

// publish emits the status payload for the job's current state.
func (t *Tracker) publish(job *store.SearchJob) {
	t.broadcaster.Publish(Update{
		JobID:       job.ID,
		UserID:      job.UserID,
		Status:      job.Status,
		Results:     job.Results,
		ErrorDetail: job.ErrorDetail,
		At:          job.UpdatedAt,
	})
}

// traceTransition appends a job transition to the audit log. Trace writes
// use a detached timeout context so auditing survives request cancellation.
func (t *Tracker) traceTransition(ctx context.Context, job *store.SearchJob, note string) {
	detail := map[string]any{
		"job_id": job.ID,
		"status": string(job.Status),
	}
	if note != "" {
		detail["note"] = note
	}
	if job.ErrorDetail != "" {
		detail["error_detail"] = job.ErrorDetail
	}

	traceCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := t.store.AppendTrace(traceCtx, &store.TraceEntry{
		UserID: job.UserID,
		Stage:  "job_tracker",
		Kind:   store.TraceJobTransition,
		Detail: detail,
	}); err != nil {
		t.logger.Error("tracing job transition failed", "job_id", job.ID, "error", err)
	}
}

// RunningCount returns the number of in-flight workers (for testing).
func (t *Tracker) RunningCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.running)
}
