package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/stemforge/api/internal/adapter"
	"github.com/stemforge/api/internal/model"
	"github.com/stemforge/api/internal/progress"
)

// terminalOpTimeout bounds persistence and cleanup work performed after
// a job's execution context is already canceled.
const terminalOpTimeout = 30 * time.Second

// jobRun is the mutable execution state of one in-flight job. All job
// mutations go through its mutex so progress callbacks arriving from
// adapter worker goroutines never interleave with phase transitions.
type jobRun struct {
	mu   sync.Mutex
	orch *Orchestrator
	job  *model.Job
	done bool
}

// transition moves the job to the next phase at the exact window
// boundary percent and publishes the change.
func (r *jobRun) transition(phase model.JobPhase, percent int, message string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.done {
		return
	}
	if !r.job.Phase.CanTransition(phase) {
		logrus.WithFields(logrus.Fields{
			"jobId": r.job.ID,
			"from":  r.job.Phase,
			"to":    phase,
		}).Error("invalid phase transition")
		return
	}

	now := time.Now().UTC()
	if r.job.StartedAt == nil {
		r.job.StartedAt = &now
	}
	r.job.Phase = phase
	if percent > r.job.Progress {
		r.job.Progress = percent
	}
	r.job.Message = message
	r.job.UpdatedAt = now

	r.persistLocked()
	r.orch.broadcaster.BroadcastProgress(r.job.ID, r.job.Progress, r.job.Phase, r.job.Message)
}

// applySample records one mapped progress percent. Samples below the
// persisted percent are discarded so out-of-order delivery from an
// adapter's internal concurrency can never move a job backwards.
func (r *jobRun) applySample(percent int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.done || percent <= r.job.Progress {
		return
	}

	r.job.Progress = percent
	r.job.UpdatedAt = time.Now().UTC()

	r.persistLocked()
	r.orch.broadcaster.BroadcastProgress(r.job.ID, r.job.Progress, r.job.Phase, r.job.Message)
}

// finishCompleted is the single success terminal transition.
func (r *jobRun) finishCompleted(result *model.FinalArtifactSet) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.done {
		return
	}
	r.done = true

	now := time.Now().UTC()
	r.job.Phase = model.JobPhaseCompleted
	r.job.Progress = 100
	r.job.Message = "Completed"
	r.job.UpdatedAt = now
	r.job.CompletedAt = &now
	if data, err := json.Marshal(result); err == nil {
		r.job.Result = data
	} else {
		logrus.WithField("jobId", r.job.ID).WithError(err).Error("failed to marshal job result")
	}

	r.persistLocked()
	r.orch.broadcaster.BroadcastProgress(r.job.ID, 100, r.job.Phase, r.job.Message)
	r.orch.broadcaster.BroadcastComplete(r.job.ID, result)

	logrus.WithField("jobId", r.job.ID).Info("job completed")
}

// finishAborted routes a phase outcome that was not success: a
// cooperative cancellation becomes Canceled, anything else Failed. The
// active phase's cleanup hook runs exactly once, here.
func (r *jobRun) finishAborted(cause error, cleanup func(context.Context, string) error) {
	if errors.Is(cause, adapter.ErrCanceled) || errors.Is(cause, context.Canceled) {
		r.finishCanceled(cleanup)
		return
	}
	r.finishFailed(cause, cleanup)
}

func (r *jobRun) finishCanceled(cleanup func(context.Context, string) error) {
	r.mu.Lock()
	if r.done {
		r.mu.Unlock()
		return
	}
	r.done = true

	now := time.Now().UTC()
	r.job.Phase = model.JobPhaseCanceled
	r.job.Message = "Canceled"
	r.job.CancelRequested = true
	r.job.UpdatedAt = now
	r.job.CompletedAt = &now
	r.mu.Unlock()

	r.runCleanup(cleanup)

	r.mu.Lock()
	r.persistLocked()
	r.mu.Unlock()
	r.orch.broadcaster.BroadcastProgress(r.job.ID, r.job.Progress, model.JobPhaseCanceled, "Canceled")

	logrus.WithField("jobId", r.job.ID).Info("job canceled")
}

func (r *jobRun) finishFailed(cause error, cleanup func(context.Context, string) error) {
	r.mu.Lock()
	if r.done {
		r.mu.Unlock()
		return
	}
	r.done = true

	jobErr := &model.JobError{
		Category: model.ErrorCategoryPermanent,
		Detail:   cause.Error(),
	}
	var failure *adapter.Failure
	if errors.As(cause, &failure) {
		jobErr.Category = failure.Category
		jobErr.Detail = failure.Detail
	}

	now := time.Now().UTC()
	r.job.Phase = model.JobPhaseFailed
	r.job.Error = jobErr
	r.job.Message = "Failed"
	r.job.UpdatedAt = now
	r.job.CompletedAt = &now
	r.mu.Unlock()

	r.runCleanup(cleanup)

	r.mu.Lock()
	r.persistLocked()
	r.mu.Unlock()
	r.orch.broadcaster.BroadcastError(r.job.ID, "JOB_FAILED", jobErr.Detail)

	logrus.WithFields(logrus.Fields{
		"jobId":    r.job.ID,
		"category": jobErr.Category,
	}).WithError(cause).Warn("job failed")
}

// runCleanup invokes the active phase's cleanup hook on a detached
// context: the job's own context is typically already canceled here.
func (r *jobRun) runCleanup(cleanup func(context.Context, string) error) {
	if cleanup == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), terminalOpTimeout)
	defer cancel()
	if err := cleanup(ctx, r.job.ID); err != nil {
		logrus.WithField("jobId", r.job.ID).WithError(err).Warn("phase cleanup failed")
	}
}

// persistLocked writes the job record. A store outage loses this one
// update, not the job: subsequent updates keep trying, so callers see a
// stale updatedAt until persistence recovers. Callers hold r.mu.
func (r *jobRun) persistLocked() {
	if r.orch.canceller.Requested(r.job.ID) {
		r.job.CancelRequested = true
	}

	ctx, cancel := context.WithTimeout(context.Background(), terminalOpTimeout)
	defer cancel()
	if err := r.orch.store.Update(ctx, r.job); err != nil {
		logrus.WithField("jobId", r.job.ID).WithError(err).Error("failed to persist job update")
	}
}

// phaseSink maps one phase invocation's native fractions into job-level
// percents, throttled to the orchestrator's update interval. The final
// sample of a phase always passes the throttle.
type phaseSink struct {
	run     *jobRun
	window  progress.Window
	emitter *progress.Emitter
}

func (r *jobRun) newSink(window progress.Window) *phaseSink {
	return &phaseSink{
		run:     r,
		window:  window,
		emitter: progress.NewEmitter(r.orch.throttle),
	}
}

// report converts a native fraction into the overall percent and applies
// it. Safe to call from any goroutine.
func (s *phaseSink) report(fraction float64) {
	final := fraction >= 1
	if !s.emitter.Allow(final) {
		return
	}
	s.run.applySample(progress.Map(s.window, fraction))
}
