package domain

import "time"

// AssetOrigin enumerates how a page image came to exist.
type AssetOrigin string

const (
	AssetOriginUserDrawing AssetOrigin = "user_drawing"
	AssetOriginAIGenerated AssetOrigin = "ai_generated"
)

// Asset is one stored image bound to one page of one job. At most one asset
// exists per (JobID, PageNumber); the first writer for a page wins. Assets are
// never updated after creation.
type Asset struct {
	ID               string
	JobID            string
	PageNumber       int
	Origin           AssetOrigin
	URL              string
	StorageKey       string
	ContentType      string
	Bytes            int64
	OriginalFilename string
	SourcePrompt     string
	CreatedAt        time.Time
}
