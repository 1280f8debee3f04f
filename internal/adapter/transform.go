package adapter

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/stemforge/api/internal/client"
	"github.com/stemforge/api/internal/config"
	"github.com/stemforge/api/internal/model"
)

const cpuDevice = "cpu"

// SeparationTransformer runs the external stem-separation service over a
// local artifact. Device selection is internal: when the configured
// accelerator device fails with a resource-exhaustion code, the task is
// retried once on CPU without the caller ever seeing the first attempt.
type SeparationTransformer struct {
	separator    client.StemSeparator
	workDir      string
	models       []string
	device       string
	cpuFallback  bool
	pollInterval time.Duration
}

// NewSeparationTransformer creates the transform adapter. Stem outputs
// are written under workDir in a per-job directory.
func NewSeparationTransformer(separator client.StemSeparator, cfg *config.SeparatorConfig, workDir string) *SeparationTransformer {
	pollInterval := time.Duration(cfg.PollIntervalMs) * time.Millisecond
	if pollInterval <= 0 {
		pollInterval = time.Second
	}
	return &SeparationTransformer{
		separator:    separator,
		workDir:      workDir,
		models:       cfg.Models,
		device:       cfg.Device,
		cpuFallback:  cfg.CPUFallback,
		pollInterval: pollInterval,
	}
}

// Run separates the artifact into stems, reporting ensemble progress.
func (a *SeparationTransformer) Run(ctx context.Context, in TransformInput, onProgress func(TransformProgress)) (StemSet, error) {
	stems, err := a.runOnDevice(ctx, in, a.device, onProgress)
	if err == nil {
		return stems, nil
	}

	var failure *Failure
	if !errors.As(err, &failure) || !a.shouldFallback(failure) {
		return nil, err
	}

	logrus.WithFields(logrus.Fields{
		"jobId":  in.JobID,
		"device": a.device,
		"detail": failure.Detail,
	}).Warn("separation device exhausted, retrying on cpu")

	return a.runOnDevice(ctx, in, cpuDevice, onProgress)
}

func (a *SeparationTransformer) shouldFallback(failure *Failure) bool {
	return a.cpuFallback &&
		a.device != cpuDevice &&
		failure.Category == model.ErrorCategoryTransient
}

func (a *SeparationTransformer) runOnDevice(ctx context.Context, in TransformInput, device string, onProgress func(TransformProgress)) (StemSet, error) {
	if err := ctx.Err(); err != nil {
		return nil, ErrCanceled
	}

	task, err := a.separator.StartSeparation(ctx, &client.SeparationRequest{
		InputPath: in.Artifact.Path,
		OutputDir: a.stemsDir(in.JobID),
		Models:    a.models,
		Device:    device,
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, ErrCanceled
		}
		return nil, WrapFailure(model.ErrorCategoryTransient, err, "failed to start separation")
	}

	ticker := time.NewTicker(a.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			// Best effort: tell the service to stop the task. Use a
			// fresh context since ours is already canceled.
			cancelCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			if err := a.separator.CancelSeparation(cancelCtx, task.TaskID); err != nil {
				logrus.WithField("taskId", task.TaskID).WithError(err).Warn("failed to cancel separation task")
			}
			cancel()
			return nil, ErrCanceled
		case <-ticker.C:
		}

		status, err := a.separator.GetSeparationStatus(ctx, task.TaskID)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ErrCanceled
			}
			return nil, WrapFailure(model.ErrorCategoryTransient, err, "failed to poll separation status")
		}

		switch status.State {
		case client.SeparationStateDone:
			return stemSetFrom(status.Stems), nil
		case client.SeparationStateFailed:
			return nil, separationFailure(status.Error)
		default:
			onProgress(TransformProgress{
				Segment:      status.Segment,
				SegmentTotal: status.SegmentTotal,
				ModelIndex:   status.ModelIndex,
				ModelCount:   status.ModelCount,
			})
		}
	}
}

// Cleanup removes any stem files the service already wrote for the job.
func (a *SeparationTransformer) Cleanup(ctx context.Context, jobID string) error {
	return os.RemoveAll(a.stemsDir(jobID))
}

func (a *SeparationTransformer) stemsDir(jobID string) string {
	return filepath.Join(a.workDir, "stemforge", jobID, "stems")
}

func stemSetFrom(paths map[string]string) StemSet {
	stems := make(StemSet, len(paths))
	for name, path := range paths {
		stems[model.StemName(name)] = ArtifactRef{Path: path}
	}
	return stems
}

func separationFailure(sepErr *client.SeparationError) *Failure {
	if sepErr == nil {
		return NewFailure(model.ErrorCategoryPermanent, "separation failed without detail")
	}
	switch sepErr.Code {
	case client.SeparationErrGPUOom, client.SeparationErrGPUBusy, client.SeparationErrDeviceUnavailable:
		return NewFailure(model.ErrorCategoryTransient, "%s: %s", sepErr.Code, sepErr.Message)
	default:
		return NewFailure(model.ErrorCategoryPermanent, "%s: %s", sepErr.Code, sepErr.Message)
	}
}

var _ Transformer = (*SeparationTransformer)(nil)
