package store

import (
	"context"
	"errors"

	"github.com/stemforge/api/internal/model"
)

// ErrNotFound is returned when no job exists for an id.
var ErrNotFound = errors.New("job not found")

// JobStore is the durable record store for jobs. The orchestrator's run
// goroutine is the only full-record writer for a given job; cancellation
// arrives from API goroutines and must go through SetCancelRequested,
// which merges just that flag so it can never clobber a concurrent
// Update.
type JobStore interface {
	Create(ctx context.Context, job *model.Job) error
	Update(ctx context.Context, job *model.Job) error
	Get(ctx context.Context, id string) (*model.Job, error)
	SetCancelRequested(ctx context.Context, id string) error
}
