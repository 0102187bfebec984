package model

import (
	"encoding/json"
	"time"
)

type IndexStatus string

const (
	IndexPending    IndexStatus = "Pending"
	IndexProcessing IndexStatus = "Processing"
	IndexIndexed    IndexStatus = "Indexed"
	IndexFailed     IndexStatus = "Failed"
)

type DeletionStatus string

const (
	DeletionActive      DeletionStatus = "Active"
	DeletionSoftDeleted DeletionStatus = "SoftDeleted"
	DeletionHardDeleted DeletionStatus = "HardDeleted"
)

// Document represents an ingested regulatory source — a COLREGs, SOLAS, or
// MARPOL publication, or similar maritime reference text.
type Document struct {
	ID             string          `json:"id"`
	UserID         string          `json:"userId"` // uploading admin, for audit only
	Title          string          `json:"title"`
	Filename       string          `json:"filename"`
	OriginalName   string          `json:"originalName"`
	MimeType       string          `json:"mimeType"`
	SizeBytes      int             `json:"sizeBytes"`
	StorageURI     *string         `json:"storageUri,omitempty"`
	PageCount      int             `json:"pageCount"`
	IndexStatus    IndexStatus     `json:"indexStatus"`
	DeletionStatus DeletionStatus  `json:"deletionStatus"`
	ChunkCount     int             `json:"chunkCount"`
	Checksum       *string         `json:"checksum,omitempty"`
	Metadata       json.RawMessage `json:"metadata,omitempty"`
	DeletedAt      *time.Time      `json:"deletedAt,omitempty"`
	CreatedAt      time.Time       `json:"createdAt"`
	UpdatedAt      time.Time       `json:"updatedAt"`
}

// ContentType classifies the semantic role of a chunk's content on its page.
type ContentType string

const (
	ContentText             ContentType = "text"
	ContentHeading          ContentType = "heading"
	ContentTable            ContentType = "table"
	ContentFormula          ContentType = "formula"
	ContentDiagramReference ContentType = "diagram_reference"
)

// BoundingBox marks a region of a page image as a normalized quadruple,
// coordinates expressed as percentages of page width/height ([0,100]).
type BoundingBox struct {
	X0 float64 `json:"x0"`
	Y0 float64 `json:"y0"`
	X1 float64 `json:"x1"`
	Y1 float64 `json:"y1"`
}

// DocumentChunk is one semantically coherent unit of a page: the unit of
// retrieval, citation, and visual evidence throughout the tutoring index.
type DocumentChunk struct {
	ID            string          `json:"nodeId"`
	DocumentID    string          `json:"documentId"`
	PageNumber    int             `json:"pageNumber"` // 1-based
	ChunkIndex    int             `json:"chunkIndex"` // 0-based within page
	Content       string          `json:"content"`
	ContentType   ContentType     `json:"contentType"`
	Confidence    float64         `json:"confidence"`
	Embedding     []float32       `json:"-"`
	ImageURL      *string         `json:"imageUrl,omitempty"`
	BoundingBoxes []BoundingBox   `json:"boundingBoxes,omitempty"`
	Metadata      json.RawMessage `json:"metadata,omitempty"`
	CreatedAt     time.Time       `json:"createdAt"`
	UpdatedAt     time.Time       `json:"updatedAt"`
}

// AllowedMimeTypes lists the mime types accepted for regulatory document upload.
var AllowedMimeTypes = map[string]bool{
	"application/pdf": true,
}

// MaxFileSizeBytes is the maximum allowed upload size (100 MB — regulatory
// publications with embedded diagrams run large).
const MaxFileSizeBytes = 100 * 1024 * 1024
