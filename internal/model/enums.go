package model

// Job kinds
type JobKind string

const (
	JobKindImportAndProcess JobKind = "import_and_process"
	JobKindProcessOnly      JobKind = "process_only"
)

var ValidJobKinds = []JobKind{
	JobKindImportAndProcess, JobKindProcessOnly,
}

// Job phases
type JobPhase string

const (
	JobPhaseQueued       JobPhase = "queued"
	JobPhaseImporting    JobPhase = "importing"
	JobPhaseTransforming JobPhase = "transforming"
	JobPhaseFinalizing   JobPhase = "finalizing"
	JobPhaseCompleted    JobPhase = "completed"
	JobPhaseFailed       JobPhase = "failed"
	JobPhaseCanceled     JobPhase = "canceled"
)

// Terminal reports whether no further transitions may leave the phase.
func (p JobPhase) Terminal() bool {
	switch p {
	case JobPhaseCompleted, JobPhaseFailed, JobPhaseCanceled:
		return true
	default:
		return false
	}
}

// CanTransition enforces the allowed job state machine edges. Queued may
// move straight to transforming for kinds without an import phase.
func (p JobPhase) CanTransition(to JobPhase) bool {
	switch p {
	case JobPhaseQueued:
		return to == JobPhaseImporting || to == JobPhaseTransforming ||
			to == JobPhaseFailed || to == JobPhaseCanceled
	case JobPhaseImporting:
		return to == JobPhaseTransforming || to == JobPhaseFailed || to == JobPhaseCanceled
	case JobPhaseTransforming:
		return to == JobPhaseFinalizing || to == JobPhaseFailed || to == JobPhaseCanceled
	case JobPhaseFinalizing:
		return to == JobPhaseCompleted || to == JobPhaseFailed || to == JobPhaseCanceled
	default:
		return false
	}
}

// Error categories surfaced on failed jobs
type ErrorCategory string

const (
	ErrorCategoryValidation     ErrorCategory = "validation"
	ErrorCategoryTransient      ErrorCategory = "transient_resource"
	ErrorCategoryPermanent      ErrorCategory = "permanent"
	ErrorCategoryInfrastructure ErrorCategory = "infrastructure"
)

// Stem names produced by the separation service
type StemName string

const (
	StemVocals StemName = "vocals"
	StemDrums  StemName = "drums"
	StemBass   StemName = "bass"
	StemOther  StemName = "other"
)
