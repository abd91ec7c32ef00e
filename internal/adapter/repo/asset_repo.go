package repo

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"storybook/internal/domain"
)

// AssetRepositoryPG implements domain.AssetRepository using PostgreSQL.
type AssetRepositoryPG struct {
	pool *pgxpool.Pool
}

// NewAssetRepository constructs a new asset repository instance.
func NewAssetRepository(pool *pgxpool.Pool) *AssetRepositoryPG {
	return &AssetRepositoryPG{pool: pool}
}

// Save persists a page asset. The (story_id, page_number) pair is unique and
// the first writer wins; a conflicting later write is a no-op.
func (r *AssetRepositoryPG) Save(ctx context.Context, asset *domain.Asset) error {
	query := `
INSERT INTO story_assets (
    id, story_id, page_number, origin, url, storage_key, content_type,
    byte_size, original_filename, source_prompt
)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
ON CONFLICT (story_id, page_number) DO NOTHING;
`
	_, err := r.pool.Exec(ctx, query,
		asset.ID,
		asset.JobID,
		asset.PageNumber,
		asset.Origin,
		asset.URL,
		asset.StorageKey,
		asset.ContentType,
		asset.Bytes,
		asset.OriginalFilename,
		nullableString(asset.SourcePrompt),
	)
	return err
}

// ListByJobID returns the job's assets ordered by page number.
func (r *AssetRepositoryPG) ListByJobID(ctx context.Context, jobID string) ([]domain.Asset, error) {
	rows, err := r.pool.Query(ctx, `
SELECT id, story_id, page_number, origin, url, storage_key, content_type,
       byte_size, original_filename, source_prompt, created_at
FROM story_assets
WHERE story_id = $1
ORDER BY page_number ASC;
`, jobID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var assets []domain.Asset
	for rows.Next() {
		var (
			asset        domain.Asset
			sourcePrompt *string
		)
		if err := rows.Scan(
			&asset.ID,
			&asset.JobID,
			&asset.PageNumber,
			&asset.Origin,
			&asset.URL,
			&asset.StorageKey,
			&asset.ContentType,
			&asset.Bytes,
			&asset.OriginalFilename,
			&sourcePrompt,
			&asset.CreatedAt,
		); err != nil {
			return nil, err
		}
		if sourcePrompt != nil {
			asset.SourcePrompt = *sourcePrompt
		}
		assets = append(assets, asset)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return assets, nil
}

func nullableString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
