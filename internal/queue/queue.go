package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
)

// TaskTypeProcessJob is the asynq task type for job pipeline execution.
const TaskTypeProcessJob = "jobs:process"

// JobQueue is the default asynq queue name for pipeline tasks.
const JobQueue = "jobs"

// TaskPayload is the asynq payload carrying the job to execute.
type TaskPayload struct {
	JobID string `json:"jobId"`
}

// AsynqScheduler enqueues job executions onto the asynq worker pool.
// Tasks are enqueued with zero retries: the orchestrator never re-runs a
// failed job on its own, a caller retries by creating a new job.
type AsynqScheduler struct {
	client    *asynq.Client
	retention time.Duration
}

// NewAsynqScheduler creates a scheduler backed by an asynq client.
func NewAsynqScheduler(client *asynq.Client, retention time.Duration) *AsynqScheduler {
	if retention <= 0 {
		retention = 24 * time.Hour
	}
	return &AsynqScheduler{
		client:    client,
		retention: retention,
	}
}

// Schedule enqueues one job execution task.
func (s *AsynqScheduler) Schedule(ctx context.Context, jobID string) error {
	data, err := json.Marshal(TaskPayload{JobID: jobID})
	if err != nil {
		return fmt.Errorf("failed to marshal task payload: %w", err)
	}

	task := asynq.NewTask(TaskTypeProcessJob, data)
	_, err = s.client.EnqueueContext(ctx, task,
		asynq.Queue(JobQueue),
		asynq.MaxRetry(0),
		asynq.Retention(s.retention),
	)
	if err != nil {
		return fmt.Errorf("failed to enqueue task: %w", err)
	}
	return nil
}
