// Package uploader pushes page images to durable storage and records their
// asset metadata.
package uploader

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"storybook/internal/domain"
	"storybook/internal/infra"
	"storybook/internal/storage"
)

// Uploader writes one durable object plus one asset record per call. The
// object key is derived from (jobID, pageNumber), so a retried upload
// overwrites the same object instead of orphaning a new one.
type Uploader struct {
	store  storage.BlobStore
	assets domain.AssetRepository
	logger infra.Logger
}

// Request carries everything needed to store one page image.
type Request struct {
	JobID            string
	PageNumber       int
	Data             []byte
	ContentType      string
	OriginalFilename string
	Origin           domain.AssetOrigin
	SourcePrompt     string
}

// New constructs an Uploader.
func New(store storage.BlobStore, assets domain.AssetRepository, logger infra.Logger) *Uploader {
	return &Uploader{store: store, assets: assets, logger: logger}
}

// Upload stores the image bytes and persists the asset record. Content is
// forwarded to storage as-is; size and type policing is the caller's concern.
// Storage rejections wrap domain.ErrUploadFailed.
func (u *Uploader) Upload(ctx context.Context, req Request) (*domain.Asset, error) {
	if req.PageNumber < 1 || req.PageNumber > domain.PageCount {
		return nil, fmt.Errorf("%w: page number %d out of range", domain.ErrUploadFailed, req.PageNumber)
	}

	key := ObjectKey(req.JobID, req.PageNumber, req.ContentType)
	url, err := u.store.Write(ctx, key, req.Data, req.ContentType)
	if err != nil {
		return nil, fmt.Errorf("%w: page %d: %v", domain.ErrUploadFailed, req.PageNumber, err)
	}

	asset := &domain.Asset{
		ID:               uuid.NewString(),
		JobID:            req.JobID,
		PageNumber:       req.PageNumber,
		Origin:           req.Origin,
		URL:              url,
		StorageKey:       key,
		ContentType:      req.ContentType,
		Bytes:            int64(len(req.Data)),
		OriginalFilename: req.OriginalFilename,
		SourcePrompt:     req.SourcePrompt,
		CreatedAt:        time.Now().UTC(),
	}
	if err := u.assets.Save(ctx, asset); err != nil {
		// The blob already landed; cleanup is left to retention policy.
		return nil, fmt.Errorf("%w: record asset for page %d: %v", domain.ErrUploadFailed, req.PageNumber, err)
	}
	u.logger.Debug().
		Str("job_id", req.JobID).
		Int("page", req.PageNumber).
		Str("origin", string(req.Origin)).
		Str("key", key).
		Msg("uploader: stored page asset")
	return asset, nil
}

// ObjectKey derives the deterministic storage key for a page image.
func ObjectKey(jobID string, pageNumber int, contentType string) string {
	return fmt.Sprintf("stories/%s/page_%02d%s", jobID, pageNumber, extensionForMIME(contentType))
}

func extensionForMIME(mime string) string {
	switch strings.ToLower(strings.TrimSpace(mime)) {
	case "image/png":
		return ".png"
	case "image/jpeg", "image/jpg":
		return ".jpg"
	case "image/gif":
		return ".gif"
	case "image/webp":
		return ".webp"
	default:
		return ".bin"
	}
}
