// Package adapter defines the contract between the job orchestrator and
// the external subsystems that execute each phase. Adapters translate
// their subsystem's native progress signal into callback invocations and
// finish by returning either an output, ErrCanceled after observing
// context cancellation, or a *Failure. Adapters never write job state.
package adapter

import (
	"context"
	"errors"
	"fmt"

	"github.com/stemforge/api/internal/model"
)

// ErrCanceled is returned by an adapter that stopped cooperatively after
// observing its context canceled. It is a normal outcome, not an error
// condition, and is never wrapped inside a Failure.
var ErrCanceled = errors.New("job canceled")

// Failure is a structured phase failure. Transient failures indicate
// resource contention that a later, separate job may not hit; permanent
// failures indicate the input can never succeed.
type Failure struct {
	Category model.ErrorCategory
	Detail   string
	Err      error
}

func (f *Failure) Error() string {
	if f.Err != nil {
		return fmt.Sprintf("%s: %s: %v", f.Category, f.Detail, f.Err)
	}
	return fmt.Sprintf("%s: %s", f.Category, f.Detail)
}

func (f *Failure) Unwrap() error {
	return f.Err
}

// NewFailure creates a Failure with a formatted detail message.
func NewFailure(category model.ErrorCategory, format string, args ...interface{}) *Failure {
	return &Failure{
		Category: category,
		Detail:   fmt.Sprintf(format, args...),
	}
}

// WrapFailure creates a Failure preserving the underlying error.
func WrapFailure(category model.ErrorCategory, err error, detail string) *Failure {
	return &Failure{
		Category: category,
		Detail:   detail,
		Err:      err,
	}
}

// ArtifactRef points at one local artifact produced by a phase.
type ArtifactRef struct {
	Path string
}

// StemSet maps stem names to the separated output artifacts.
type StemSet map[model.StemName]ArtifactRef

// ImportProgress is the import phase's native progress signal.
type ImportProgress struct {
	BytesDone  int64
	BytesTotal int64 // zero when the source length is unknown
}

// TransformProgress is the transform phase's native progress signal: the
// separation service runs an ensemble of ModelCount models, each over
// SegmentTotal segments of the input.
type TransformProgress struct {
	Segment      int
	SegmentTotal int
	ModelIndex   int
	ModelCount   int
}

// FinalizeProgress is the finalize phase's native progress signal.
type FinalizeProgress struct {
	StepsDone  int
	StepsTotal int
}

// ImportInput identifies the source media for one import run.
type ImportInput struct {
	JobID     string
	SourceURL string
}

// TransformInput identifies the local audio for one separation run.
type TransformInput struct {
	JobID    string
	Artifact ArtifactRef
}

// FinalizeInput carries the separated stems and manifest hints.
type FinalizeInput struct {
	JobID  string
	Stems  StemSet
	Title  string
	Artist string
}

// Importer fetches the source media onto local disk.
type Importer interface {
	Run(ctx context.Context, in ImportInput, onProgress func(ImportProgress)) (ArtifactRef, error)
	Cleanup(ctx context.Context, jobID string) error
}

// Transformer separates local audio into named stems.
type Transformer interface {
	Run(ctx context.Context, in TransformInput, onProgress func(TransformProgress)) (StemSet, error)
	Cleanup(ctx context.Context, jobID string) error
}

// Finalizer publishes the stems and assembles the final artifact set.
type Finalizer interface {
	Run(ctx context.Context, in FinalizeInput, onProgress func(FinalizeProgress)) (*model.FinalArtifactSet, error)
	Cleanup(ctx context.Context, jobID string) error
}
