package model

import "time"

// Job represents a stem-separation job tracked end-to-end
type Job struct {
	ID              string     `json:"id"`
	Kind            JobKind    `json:"kind"`
	Phase           JobPhase   `json:"phase"`
	Progress        int        `json:"progress"` // 0-100, monotonic while non-terminal
	Message         string     `json:"message,omitempty"`
	Error           *JobError  `json:"error,omitempty"` // set iff phase == failed
	Input           JobInput   `json:"input"`
	Result          []byte     `json:"result,omitempty"` // FinalArtifactSet as JSON, set on completion
	CancelRequested bool       `json:"cancelRequested"`
	CreatedAt       time.Time  `json:"createdAt"`
	StartedAt       *time.Time `json:"startedAt,omitempty"`
	UpdatedAt       time.Time  `json:"updatedAt"`
	CompletedAt     *time.Time `json:"completedAt,omitempty"`
}

// JobError carries a structured failure attached to a failed job
type JobError struct {
	Category ErrorCategory `json:"category"`
	Detail   string        `json:"detail"`
}

// JobInput holds the source reference a job operates on. Exactly one of
// SourceURL (import_and_process) or ArtifactPath (process_only) is set.
type JobInput struct {
	SourceURL    string `json:"sourceUrl,omitempty"`
	ArtifactPath string `json:"artifactPath,omitempty"`
	Title        string `json:"title,omitempty"`
	Artist       string `json:"artist,omitempty"`
}

// FinalArtifact is one uploaded output stem
type FinalArtifact struct {
	Stem StemName `json:"stem"`
	Key  string   `json:"key"`
	URL  string   `json:"url"`
	Size int64    `json:"size,omitempty"`
}

// FinalArtifactSet is the result payload of a completed job
type FinalArtifactSet struct {
	JobID     string          `json:"jobId"`
	Artifacts []FinalArtifact `json:"artifacts"`
	Title     string          `json:"title,omitempty"`
	Artist    string          `json:"artist,omitempty"`
	CreatedAt time.Time       `json:"createdAt"`
}
