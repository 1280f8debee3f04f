package worker

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"

	"github.com/stemforge/api/internal/orchestrator"
	"github.com/stemforge/api/internal/queue"
)

// JobWorker executes queued separation jobs
type JobWorker struct {
	orchestrator *orchestrator.Orchestrator
}

// NewJobWorker creates a new job worker
func NewJobWorker(orch *orchestrator.Orchestrator) *JobWorker {
	return &JobWorker{
		orchestrator: orch,
	}
}

// ProcessTask handles one jobs:process task. The task context is the
// parent of the job's cancellation context, so a worker shutdown
// interrupts in-flight phases the same way a user cancel does.
func (w *JobWorker) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var payload queue.TaskPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("failed to unmarshal task payload: %w", err)
	}
	if payload.JobID == "" {
		return fmt.Errorf("task payload missing job id")
	}

	logrus.WithField("jobId", payload.JobID).Info("starting job execution")
	return w.orchestrator.Execute(ctx, payload.JobID)
}
