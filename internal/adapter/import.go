package adapter

import (
	"context"
	"errors"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/stemforge/api/internal/config"
	"github.com/stemforge/api/internal/model"
)

// progressChunk bounds how many bytes are copied between cancellation
// and progress checks.
const progressChunk = 256 * 1024

// HTTPImporter downloads the source media into a per-job work directory,
// reporting byte progress as the body streams.
type HTTPImporter struct {
	httpClient *http.Client
	workDir    string
}

// NewHTTPImporter creates an importer writing under cfg.WorkDir.
func NewHTTPImporter(cfg *config.ImportConfig) *HTTPImporter {
	return &HTTPImporter{
		httpClient: &http.Client{
			Timeout: time.Duration(cfg.Timeout) * time.Second,
		},
		workDir: cfg.WorkDir,
	}
}

// Run fetches the source URL to disk and returns the local artifact.
func (a *HTTPImporter) Run(ctx context.Context, in ImportInput, onProgress func(ImportProgress)) (ArtifactRef, error) {
	dir := a.jobDir(in.JobID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return ArtifactRef{}, WrapFailure(model.ErrorCategoryInfrastructure, err, "failed to create work directory")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, in.SourceURL, nil)
	if err != nil {
		return ArtifactRef{}, WrapFailure(model.ErrorCategoryPermanent, err, "invalid source URL")
	}

	resp, err := a.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ArtifactRef{}, ErrCanceled
		}
		return ArtifactRef{}, WrapFailure(model.ErrorCategoryTransient, err, "failed to fetch source")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		category := model.ErrorCategoryPermanent
		if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
			category = model.ErrorCategoryTransient
		}
		return ArtifactRef{}, NewFailure(category, "source returned status %d", resp.StatusCode)
	}

	dstPath := filepath.Join(dir, "source"+sourceExt(resp.Header.Get("Content-Type")))
	dst, err := os.Create(dstPath)
	if err != nil {
		return ArtifactRef{}, WrapFailure(model.ErrorCategoryInfrastructure, err, "failed to create source file")
	}
	defer dst.Close()

	total := resp.ContentLength
	if total < 0 {
		total = 0
	}

	var done int64
	buf := make([]byte, progressChunk)
	for {
		if err := ctx.Err(); err != nil {
			return ArtifactRef{}, ErrCanceled
		}

		n, readErr := resp.Body.Read(buf)
		if n > 0 {
			if _, writeErr := dst.Write(buf[:n]); writeErr != nil {
				return ArtifactRef{}, WrapFailure(model.ErrorCategoryInfrastructure, writeErr, "failed to write source file")
			}
			done += int64(n)
			onProgress(ImportProgress{BytesDone: done, BytesTotal: total})
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			if ctx.Err() != nil {
				return ArtifactRef{}, ErrCanceled
			}
			return ArtifactRef{}, WrapFailure(model.ErrorCategoryTransient, readErr, "source stream interrupted")
		}
	}

	if total > 0 && done < total {
		return ArtifactRef{}, NewFailure(model.ErrorCategoryTransient, "truncated download: %d of %d bytes", done, total)
	}

	// Final sample so the phase ends at its full native fraction even
	// when the length was unknown during streaming.
	onProgress(ImportProgress{BytesDone: done, BytesTotal: done})

	logrus.WithFields(logrus.Fields{
		"jobId": in.JobID,
		"bytes": done,
	}).Debug("source import complete")

	return ArtifactRef{Path: dstPath}, nil
}

// Cleanup removes the job's work directory and any partial download.
func (a *HTTPImporter) Cleanup(ctx context.Context, jobID string) error {
	if jobID == "" {
		return errors.New("missing job id")
	}
	return os.RemoveAll(a.jobDir(jobID))
}

func (a *HTTPImporter) jobDir(jobID string) string {
	return filepath.Join(a.workDir, "stemforge", jobID)
}

func sourceExt(contentType string) string {
	switch contentType {
	case "audio/mpeg":
		return ".mp3"
	case "audio/wav", "audio/x-wav":
		return ".wav"
	case "audio/flac", "audio/x-flac":
		return ".flac"
	case "audio/ogg":
		return ".ogg"
	case "video/mp4", "audio/mp4":
		return ".mp4"
	default:
		return ".bin"
	}
}

var _ Importer = (*HTTPImporter)(nil)
