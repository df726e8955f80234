package api

import (
	"encoding/json"
	"time"

	"moodboard/internal/models"
)

// Response is the JSON envelope wrapping every API response.
type Response struct {
	Success    bool                `json:"success"`
	Message    string              `json:"message,omitempty"`
	Data       any                 `json:"data,omitempty"`
	Errors     map[string][]string `json:"errors,omitempty"`
	Pagination *Pagination         `json:"pagination,omitempty"`
	Code       string              `json:"code,omitempty"`
	ErrorCode  int                 `json:"error_code,omitempty"`
}

// RawResponse is the client-side view of Response with undecoded data.
type RawResponse struct {
	Success    bool                `json:"success"`
	Message    string              `json:"message,omitempty"`
	Data       json.RawMessage     `json:"data,omitempty"`
	Errors     map[string][]string `json:"errors,omitempty"`
	Pagination *Pagination         `json:"pagination,omitempty"`
	Code       string              `json:"code,omitempty"`
	ErrorCode  int                 `json:"error_code,omitempty"`
}

// Pagination describes one page of a listing.
type Pagination struct {
	CurrentPage int `json:"current_page"`
	LastPage    int `json:"last_page"`
	PerPage     int `json:"per_page"`
	Total       int `json:"total"`
}

// SaveBoardRequest is the payload of POST /moodboard/save. Both fields are
// kept raw so type mismatches surface as field validation errors.
type SaveBoardRequest struct {
	BoardID   json.RawMessage `json:"boardId"`
	BoardData json.RawMessage `json:"boardData"`
}

// SaveBoardResponse reports the stored version.
type SaveBoardResponse struct {
	Version   int64     `json:"version"`
	Timestamp time.Time `json:"timestamp"`
}

// BoardResponse is a full board with its resolved objects. Document keys
// other than objects and settings are carried in Extra and written at the
// top level; the fixed keys take precedence.
type BoardResponse struct {
	ID          string                `json:"id"`
	Name        string                `json:"name"`
	Description string                `json:"description"`
	Objects     []models.CanvasObject `json:"objects"`
	Settings    json.RawMessage       `json:"settings"`
	Version     int64                 `json:"version"`
	Created     time.Time             `json:"created"`
	LastSaved   time.Time             `json:"lastSaved"`
	Updated     time.Time             `json:"updated"`

	Extra map[string]json.RawMessage `json:"-"`
}

type boardResponseFields BoardResponse

func (b BoardResponse) MarshalJSON() ([]byte, error) {
	fields := boardResponseFields(b)
	if fields.Objects == nil {
		fields.Objects = []models.CanvasObject{}
	}
	if len(fields.Settings) == 0 {
		fields.Settings = json.RawMessage("null")
	}
	encoded, err := json.Marshal(fields)
	if err != nil {
		return nil, err
	}
	if len(b.Extra) == 0 {
		return encoded, nil
	}

	var fixed map[string]json.RawMessage
	if err := json.Unmarshal(encoded, &fixed); err != nil {
		return nil, err
	}
	out := make(map[string]json.RawMessage, len(fixed)+len(b.Extra))
	for k, v := range b.Extra {
		out[k] = v
	}
	for k, v := range fixed {
		out[k] = v
	}
	return json.Marshal(out)
}

func (b *BoardResponse) UnmarshalJSON(data []byte) error {
	var fields boardResponseFields
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}
	var all map[string]json.RawMessage
	if err := json.Unmarshal(data, &all); err != nil {
		return err
	}
	for _, key := range []string{"id", "name", "description", "objects", "settings", "version", "created", "lastSaved", "updated"} {
		delete(all, key)
	}
	*b = BoardResponse(fields)
	if len(all) > 0 {
		b.Extra = all
	}
	return nil
}

// BoardSummary is one entry of GET /moodboard/list.
type BoardSummary struct {
	ID          string             `json:"id"`
	Name        string             `json:"name"`
	Description string             `json:"description"`
	Version     int64              `json:"version"`
	LastSaved   time.Time          `json:"lastSaved"`
	Created     time.Time          `json:"created"`
	ObjectStats models.ObjectStats `json:"objectStats"`
}

// ShowBoardResponse is the payload of GET /moodboard/show/{boardId}.
type ShowBoardResponse struct {
	Board BoardResponse      `json:"board"`
	Stats models.ObjectStats `json:"stats"`
}

// BoardImageStats summarizes the images referenced by one board.
type BoardImageStats struct {
	TotalImages int            `json:"totalImages"`
	TotalSize   int64          `json:"totalSize"`
	AverageSize float64        `json:"averageSize"`
	Formats     map[string]int `json:"formats"`
}

// ImageUploadResponse is the payload of POST /images/upload.
type ImageUploadResponse struct {
	ID           string `json:"id"`
	URL          string `json:"url"`
	Name         string `json:"name"`
	Width        int    `json:"width"`
	Height       int    `json:"height"`
	Size         int64  `json:"size"`
	Deduplicated bool   `json:"deduplicated"`
}

// ImageResponse is image metadata with its content URL.
type ImageResponse struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	OriginalName string    `json:"original_name"`
	URL          string    `json:"url"`
	MimeType     string    `json:"mime_type"`
	Size         int64     `json:"size"`
	Width        int       `json:"width"`
	Height       int       `json:"height"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// DeleteResponse acknowledges removal of one asset.
type DeleteResponse struct {
	ID string `json:"id"`
}

// BulkDeleteRequest is the payload of POST /images/bulk-delete.
type BulkDeleteRequest struct {
	IDs []string `json:"ids"`
}

// BulkDeleteResponse reports which images were deleted and which were kept.
type BulkDeleteResponse struct {
	DeletedCount   int      `json:"deleted_count"`
	ProtectedCount int      `json:"protected_count"`
	ProtectedIDs   []string `json:"protected_ids"`
}

// CleanupResponse reports an unreferenced-image cleanup run.
type CleanupResponse struct {
	DeletedCount int      `json:"deleted_count"`
	CandidateIDs []string `json:"candidate_ids"`
	DryRun       bool     `json:"dry_run"`
}

// FileResponse is the wire shape of a file record.
type FileResponse struct {
	ID            string     `json:"id"`
	Name          string     `json:"name"`
	URL           string     `json:"url"`
	Size          int64      `json:"size"`
	MimeType      string     `json:"mime_type"`
	FormattedSize string     `json:"formatted_size"`
	Deduplicated  bool       `json:"deduplicated,omitempty"`
	CreatedAt     *time.Time `json:"created_at,omitempty"`
	UpdatedAt     *time.Time `json:"updated_at,omitempty"`
}

// RenameFileRequest is the payload of PUT /files/{id}.
type RenameFileRequest struct {
	Name string `json:"name"`
}

// BlobGCRequest is the payload of POST /admin/blobs/gc.
type BlobGCRequest struct {
	BatchSize int  `json:"batch_size,omitempty"`
	DryRun    bool `json:"dry_run"`
}

// BlobGCResponse reports one blob GC run.
type BlobGCResponse struct {
	CandidateCount int   `json:"candidate_count"`
	DeletedCount   int   `json:"deleted_count"`
	FailedCount    int   `json:"failed_count"`
	ReclaimedBytes int64 `json:"reclaimed_bytes"`
	DryRun         bool  `json:"dry_run"`
}

// InfoResponse is the payload of GET /info.
type InfoResponse struct {
	DBPath        string `json:"db_path"`
	SchemaVersion int    `json:"schema_version"`
	Boards        int    `json:"boards"`
	Images        int    `json:"images"`
	Files         int    `json:"files"`
	Blobs         int    `json:"blobs"`
	BlobBackend   string `json:"blob_backend"`
}

// HealthResponse is the payload of GET /health.
type HealthResponse struct {
	Status string `json:"status"`
}
