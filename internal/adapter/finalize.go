package adapter

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/stemforge/api/internal/client"
	"github.com/stemforge/api/internal/model"
)

// UploadFinalizer publishes separated stems to object storage and builds
// the job's final artifact set. Metadata enrichment is best-effort: a
// lookup failure only means the manifest keeps the caller-supplied tags.
type UploadFinalizer struct {
	storage  client.StorageClient
	metadata client.MetadataEnricher
}

// NewUploadFinalizer creates the finalize adapter. metadata may be nil.
func NewUploadFinalizer(storage client.StorageClient, metadata client.MetadataEnricher) *UploadFinalizer {
	return &UploadFinalizer{
		storage:  storage,
		metadata: metadata,
	}
}

// Run uploads each stem and returns the final artifact set.
func (a *UploadFinalizer) Run(ctx context.Context, in FinalizeInput, onProgress func(FinalizeProgress)) (*model.FinalArtifactSet, error) {
	if len(in.Stems) == 0 {
		return nil, NewFailure(model.ErrorCategoryPermanent, "no stems to finalize")
	}

	title, artist := a.enrich(ctx, in)

	// Deterministic upload order so step progress is stable.
	names := make([]model.StemName, 0, len(in.Stems))
	for name := range in.Stems {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool { return names[i] < names[j] })

	total := len(names)
	artifacts := make([]model.FinalArtifact, 0, total)

	for i, name := range names {
		if err := ctx.Err(); err != nil {
			return nil, ErrCanceled
		}

		ref := in.Stems[name]
		artifact, err := a.uploadStem(ctx, in.JobID, name, ref)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ErrCanceled
			}
			return nil, err
		}
		artifacts = append(artifacts, artifact)
		onProgress(FinalizeProgress{StepsDone: i + 1, StepsTotal: total})
	}

	return &model.FinalArtifactSet{
		JobID:     in.JobID,
		Artifacts: artifacts,
		Title:     title,
		Artist:    artist,
		CreatedAt: time.Now().UTC(),
	}, nil
}

func (a *UploadFinalizer) uploadStem(ctx context.Context, jobID string, name model.StemName, ref ArtifactRef) (model.FinalArtifact, error) {
	f, err := os.Open(ref.Path)
	if err != nil {
		return model.FinalArtifact{}, WrapFailure(model.ErrorCategoryInfrastructure, err, "failed to open stem file")
	}
	defer f.Close()

	var size int64
	if info, err := f.Stat(); err == nil {
		size = info.Size()
	}

	key := stemKey(jobID, name, ref.Path)
	url, err := a.storage.Upload(ctx, key, f, "audio/wav")
	if err != nil {
		return model.FinalArtifact{}, WrapFailure(model.ErrorCategoryTransient, err, "failed to upload stem")
	}

	return model.FinalArtifact{
		Stem: name,
		Key:  key,
		URL:  url,
		Size: size,
	}, nil
}

// enrich resolves the manifest tags, preferring the enrichment service
// over caller-supplied values when it answers.
func (a *UploadFinalizer) enrich(ctx context.Context, in FinalizeInput) (title, artist string) {
	title, artist = in.Title, in.Artist
	if a.metadata == nil || !a.metadata.IsConfigured() || title == "" {
		return title, artist
	}

	meta, err := a.metadata.Lookup(ctx, title, artist)
	if err != nil {
		logrus.WithField("jobId", in.JobID).WithError(err).Debug("metadata lookup failed")
		return title, artist
	}
	if meta.Title != "" {
		title = meta.Title
	}
	if meta.Artist != "" {
		artist = meta.Artist
	}
	return title, artist
}

// Cleanup deletes any objects already uploaded for the job.
func (a *UploadFinalizer) Cleanup(ctx context.Context, jobID string) error {
	return a.storage.DeletePrefix(ctx, jobPrefix(jobID))
}

func jobPrefix(jobID string) string {
	return fmt.Sprintf("jobs/%s/", jobID)
}

func stemKey(jobID string, name model.StemName, path string) string {
	ext := filepath.Ext(path)
	if ext == "" {
		ext = ".wav"
	}
	return fmt.Sprintf("jobs/%s/%s%s", jobID, name, ext)
}

var _ Finalizer = (*UploadFinalizer)(nil)
