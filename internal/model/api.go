package model

import "time"

// CreateJobRequest starts a new separation job
type CreateJobRequest struct {
	Kind         JobKind `json:"kind" validate:"required,oneof=import_and_process process_only"`
	SourceURL    string  `json:"sourceUrl,omitempty" validate:"omitempty,url"`
	ArtifactPath string  `json:"artifactPath,omitempty"`
	Title        string  `json:"title,omitempty" validate:"omitempty,max=200"`
	Artist       string  `json:"artist,omitempty" validate:"omitempty,max=200"`
}

// CreateJobResponse acknowledges an accepted job
type CreateJobResponse struct {
	JobID     string    `json:"jobId"`
	Status    JobPhase  `json:"status"`
	CreatedAt time.Time `json:"createdAt"`
}

// JobStatusResponse is a point-in-time snapshot of a job
type JobStatusResponse struct {
	JobID           string     `json:"jobId"`
	Kind            JobKind    `json:"kind"`
	Status          JobPhase   `json:"status"`
	Progress        int        `json:"progress"`
	Message         string     `json:"message,omitempty"`
	Error           *JobError  `json:"error,omitempty"`
	CancelRequested bool       `json:"cancelRequested"`
	CreatedAt       time.Time  `json:"createdAt"`
	StartedAt       *time.Time `json:"startedAt,omitempty"`
	UpdatedAt       time.Time  `json:"updatedAt"`
	CompletedAt     *time.Time `json:"completedAt,omitempty"`
}

// CancelJobResponse reports the outcome of a cancel request
type CancelJobResponse struct {
	JobID    string   `json:"jobId"`
	Canceled bool     `json:"canceled"`
	Status   JobPhase `json:"status"`
}

// Snapshot builds a status response from a job record
func Snapshot(job *Job) *JobStatusResponse {
	return &JobStatusResponse{
		JobID:           job.ID,
		Kind:            job.Kind,
		Status:          job.Phase,
		Progress:        job.Progress,
		Message:         job.Message,
		Error:           job.Error,
		CancelRequested: job.CancelRequested,
		CreatedAt:       job.CreatedAt,
		StartedAt:       job.StartedAt,
		UpdatedAt:       job.UpdatedAt,
		CompletedAt:     job.CompletedAt,
	}
}
