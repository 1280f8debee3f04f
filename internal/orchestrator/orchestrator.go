// Package orchestrator owns the job lifecycle state machine: it
// sequences the phase adapters, normalizes their native progress into
// the job-level percentage, persists every accepted state change before
// broadcasting it, and applies the cancellation and failure policy.
package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/stemforge/api/internal/adapter"
	"github.com/stemforge/api/internal/model"
	"github.com/stemforge/api/internal/progress"
	"github.com/stemforge/api/internal/store"
)

// ErrNotCompleted is returned when a result is requested for a job that
// has not completed.
var ErrNotCompleted = errors.New("job not completed")

// ValidationError rejects bad input synchronously; no job is created.
type ValidationError struct {
	Detail string
}

func (e *ValidationError) Error() string {
	return e.Detail
}

// Broadcaster pushes accepted state changes to subscribers. Delivery is
// fire-and-forget; implementations must not block job execution.
type Broadcaster interface {
	BroadcastProgress(jobID string, progress int, phase model.JobPhase, message string)
	BroadcastComplete(jobID string, result interface{})
	BroadcastError(jobID string, code, message string)
}

// Scheduler hands a queued job to an asynchronous executor. CreateJob
// returns as soon as the job is scheduled; Execute runs elsewhere.
type Scheduler interface {
	Schedule(ctx context.Context, jobID string) error
}

// Orchestrator coordinates stem-separation jobs end to end.
type Orchestrator struct {
	store       store.JobStore
	broadcaster Broadcaster
	scheduler   Scheduler
	importer    adapter.Importer
	transformer adapter.Transformer
	finalizer   adapter.Finalizer
	canceller   *Canceller
	throttle    time.Duration
}

// New creates an orchestrator. throttle bounds how often progress
// samples inside one phase are persisted and broadcast.
func New(
	jobStore store.JobStore,
	broadcaster Broadcaster,
	scheduler Scheduler,
	importer adapter.Importer,
	transformer adapter.Transformer,
	finalizer adapter.Finalizer,
	throttle time.Duration,
) *Orchestrator {
	return &Orchestrator{
		store:       jobStore,
		broadcaster: broadcaster,
		scheduler:   scheduler,
		importer:    importer,
		transformer: transformer,
		finalizer:   finalizer,
		canceller:   NewCanceller(),
		throttle:    throttle,
	}
}

// CreateJob validates the request, persists a queued job, and schedules
// its execution. It never blocks on the execution itself.
func (o *Orchestrator) CreateJob(ctx context.Context, req *model.CreateJobRequest) (*model.CreateJobResponse, error) {
	if err := validateInput(req); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	job := &model.Job{
		ID:        uuid.New().String(),
		Kind:      req.Kind,
		Phase:     model.JobPhaseQueued,
		Progress:  0,
		Message:   "Queued",
		CreatedAt: now,
		UpdatedAt: now,
		Input: model.JobInput{
			SourceURL:    req.SourceURL,
			ArtifactPath: req.ArtifactPath,
			Title:        req.Title,
			Artist:       req.Artist,
		},
	}

	if err := o.store.Create(ctx, job); err != nil {
		return nil, fmt.Errorf("failed to persist job: %w", err)
	}

	if err := o.scheduler.Schedule(ctx, job.ID); err != nil {
		// The record exists but will never run; surface that instead of
		// leaving a forever-queued job behind.
		o.markScheduleFailure(ctx, job, err)
		return nil, fmt.Errorf("failed to schedule job: %w", err)
	}

	logrus.WithFields(logrus.Fields{
		"jobId": job.ID,
		"kind":  job.Kind,
	}).Info("job created")

	return &model.CreateJobResponse{
		JobID:     job.ID,
		Status:    job.Phase,
		CreatedAt: job.CreatedAt,
	}, nil
}

// Cancel requests cooperative cancellation. It returns true only the
// first time it finds the job non-terminal with no prior request;
// repeated calls and unknown ids return false.
func (o *Orchestrator) Cancel(ctx context.Context, jobID string) (bool, error) {
	job, err := o.store.Get(ctx, jobID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return false, nil
		}
		return false, err
	}

	if job.Phase.Terminal() || job.CancelRequested || o.canceller.Requested(jobID) {
		return false, nil
	}

	// Merge only the flag: the run goroutine owns every other field, and
	// the job may have reached a terminal phase since the read above.
	if err := o.store.SetCancelRequested(ctx, jobID); err != nil && !errors.Is(err, store.ErrNotFound) {
		return false, err
	}

	o.canceller.Signal(jobID)
	logrus.WithField("jobId", jobID).Info("job cancellation requested")
	return true, nil
}

// GetStatus returns the last successfully persisted snapshot of a job.
func (o *Orchestrator) GetStatus(ctx context.Context, jobID string) (*model.JobStatusResponse, error) {
	job, err := o.store.Get(ctx, jobID)
	if err != nil {
		return nil, err
	}
	return model.Snapshot(job), nil
}

// GetResult returns the final artifact set of a completed job.
func (o *Orchestrator) GetResult(ctx context.Context, jobID string) (*model.FinalArtifactSet, error) {
	job, err := o.store.Get(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job.Phase != model.JobPhaseCompleted {
		return nil, ErrNotCompleted
	}

	var result model.FinalArtifactSet
	if err := json.Unmarshal(job.Result, &result); err != nil {
		return nil, fmt.Errorf("failed to unmarshal result: %w", err)
	}
	return &result, nil
}

// Execute runs one job's phase pipeline to a terminal phase. It is
// invoked exactly once per job by the scheduler's executor and returns
// nil on every terminal outcome; only infrastructure errors that
// prevented the run from starting at all are returned.
func (o *Orchestrator) Execute(ctx context.Context, jobID string) error {
	job, err := o.loadJob(ctx, jobID)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			o.markLoadFailure(ctx, jobID, err)
		}
		return fmt.Errorf("failed to load job %s: %w", jobID, err)
	}
	if job.Phase != model.JobPhaseQueued {
		logrus.WithFields(logrus.Fields{
			"jobId": jobID,
			"phase": job.Phase,
		}).Warn("job not queued, skipping execution")
		return nil
	}

	plan := progress.PlanFor(job.Kind)
	if err := plan.Validate(); err != nil {
		return fmt.Errorf("invalid phase plan for kind %s: %w", job.Kind, err)
	}

	runCtx := o.canceller.Register(ctx, jobID)
	defer o.canceller.Release(jobID)

	run := &jobRun{orch: o, job: job}

	if job.CancelRequested || o.canceller.Requested(jobID) {
		run.finishCanceled(nil)
		return nil
	}

	var artifact adapter.ArtifactRef
	if job.Kind == model.JobKindImportAndProcess {
		win := plan.Window(model.JobPhaseImporting)
		run.transition(model.JobPhaseImporting, win.Start, "Importing source media")

		sink := run.newSink(win)
		artifact, err = o.importer.Run(runCtx, adapter.ImportInput{
			JobID:     job.ID,
			SourceURL: job.Input.SourceURL,
		}, func(p adapter.ImportProgress) {
			sink.report(progress.Fraction(p.BytesDone, p.BytesTotal))
		})
		if err != nil {
			run.finishAborted(err, o.importer.Cleanup)
			return nil
		}
	} else {
		artifact = adapter.ArtifactRef{Path: job.Input.ArtifactPath}
	}

	winTransform := plan.Window(model.JobPhaseTransforming)
	run.transition(model.JobPhaseTransforming, winTransform.Start, "Separating stems")

	sinkTransform := run.newSink(winTransform)
	stems, err := o.transformer.Run(runCtx, adapter.TransformInput{
		JobID:    job.ID,
		Artifact: artifact,
	}, func(p adapter.TransformProgress) {
		inner := progress.Fraction(int64(p.Segment), int64(p.SegmentTotal))
		sinkTransform.report(progress.EnsembleFraction(p.ModelIndex, inner, p.ModelCount))
	})
	if err != nil {
		run.finishAborted(err, o.transformer.Cleanup)
		return nil
	}

	winFinalize := plan.Window(model.JobPhaseFinalizing)
	run.transition(model.JobPhaseFinalizing, winFinalize.Start, "Publishing artifacts")

	sinkFinalize := run.newSink(winFinalize)
	result, err := o.finalizer.Run(runCtx, adapter.FinalizeInput{
		JobID:  job.ID,
		Stems:  stems,
		Title:  job.Input.Title,
		Artist: job.Input.Artist,
	}, func(p adapter.FinalizeProgress) {
		sinkFinalize.report(progress.Fraction(int64(p.StepsDone), int64(p.StepsTotal)))
	})
	if err != nil {
		run.finishAborted(err, o.finalizer.Cleanup)
		return nil
	}

	run.finishCompleted(result)
	return nil
}

// Execution tasks are enqueued without retries, so a transient store
// outage on the initial load is absorbed here instead of leaving the
// job queued forever.
const loadAttempts = 3

var loadRetryDelay = 500 * time.Millisecond

func (o *Orchestrator) loadJob(ctx context.Context, jobID string) (*model.Job, error) {
	var lastErr error
	for attempt := 0; attempt < loadAttempts; attempt++ {
		job, err := o.store.Get(ctx, jobID)
		if err == nil {
			return job, nil
		}
		if errors.Is(err, store.ErrNotFound) {
			return nil, err
		}
		lastErr = err
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(loadRetryDelay):
		}
	}
	return nil, lastErr
}

// markLoadFailure surfaces a job whose execution could not start. Best
// effort: if the store is still unreachable the job stays queued and
// only the log records why.
func (o *Orchestrator) markLoadFailure(ctx context.Context, jobID string, cause error) {
	job, err := o.store.Get(ctx, jobID)
	if err != nil {
		logrus.WithField("jobId", jobID).WithError(cause).Error("failed to load job and could not record the failure")
		return
	}
	if job.Phase.Terminal() {
		return
	}

	now := time.Now().UTC()
	job.Phase = model.JobPhaseFailed
	job.Error = &model.JobError{
		Category: model.ErrorCategoryInfrastructure,
		Detail:   fmt.Sprintf("failed to load job before execution: %v", cause),
	}
	job.Message = "Execution failed to start"
	job.UpdatedAt = now
	job.CompletedAt = &now
	if err := o.store.Update(ctx, job); err != nil {
		logrus.WithField("jobId", jobID).WithError(err).Error("failed to record load failure")
		return
	}
	o.broadcaster.BroadcastError(jobID, "JOB_FAILED", job.Error.Detail)
}

// markScheduleFailure records a job that could not be handed off.
func (o *Orchestrator) markScheduleFailure(ctx context.Context, job *model.Job, cause error) {
	now := time.Now().UTC()
	job.Phase = model.JobPhaseFailed
	job.Error = &model.JobError{
		Category: model.ErrorCategoryInfrastructure,
		Detail:   fmt.Sprintf("failed to schedule execution: %v", cause),
	}
	job.Message = "Scheduling failed"
	job.UpdatedAt = now
	job.CompletedAt = &now
	if err := o.store.Update(ctx, job); err != nil {
		logrus.WithField("jobId", job.ID).WithError(err).Error("failed to record scheduling failure")
	}
}

func validateInput(req *model.CreateJobRequest) error {
	switch req.Kind {
	case model.JobKindImportAndProcess:
		if req.SourceURL == "" {
			return &ValidationError{Detail: "sourceUrl is required for import_and_process jobs"}
		}
	case model.JobKindProcessOnly:
		if req.ArtifactPath == "" {
			return &ValidationError{Detail: "artifactPath is required for process_only jobs"}
		}
	default:
		return &ValidationError{Detail: fmt.Sprintf("unknown job kind %q", req.Kind)}
	}
	return nil
}
