package models

import "time"

// Media types stored on a document record and echoed on the wire.
const (
	MediaTypePDF  = "application/pdf"
	MediaTypeText = "text/plain"
)

// Segment is a contiguous span of document text with character offsets.
// For PDF documents the offsets are synthetic slots assigned by the
// extraction stage, not true source positions.
type Segment struct {
	Text       string `json:"text"`
	StartIndex int    `json:"start_index"`
	EndIndex   int    `json:"end_index"`
}

// ComplexityResult is the per-segment verdict from the classification stage.
type ComplexityResult struct {
	NeedsExplanation bool   `json:"needs_explanation"`
	Reason           string `json:"reason"`
}

// DocumentRecord is the stored form of an uploaded document. Records are
// created on upload and updated in place as pipeline stages complete.
type DocumentRecord struct {
	ID                string             `json:"id"`
	Filename          string             `json:"filename"`
	MediaType         string             `json:"media_type"`
	RawContent        []byte             `json:"-"`
	Content           string             `json:"-"`
	Segments          []Segment          `json:"segments"`
	Explanations      []Segment          `json:"explanations"`
	ComplexityResults []ComplexityResult `json:"complexity_results,omitempty"`
	CreatedAt         time.Time          `json:"created_at"`
}

// DocumentMetadata identifies a document in API responses.
type DocumentMetadata struct {
	ID        string `json:"id"`
	Filename  string `json:"filename"`
	MediaType string `json:"media_type"`
}

// DocumentResponse is the response body for /upload and /document/:id.
type DocumentResponse struct {
	Metadata     DocumentMetadata `json:"metadata"`
	Segments     []Segment        `json:"segments"`
	Explanations []Segment        `json:"explanations"`
}

// Citation points at the source span backing part of a model response.
// The fields mirror what the model service returns; callers treat them
// as opaque.
type Citation struct {
	URI        string `json:"uri,omitempty"`
	License    string `json:"license,omitempty"`
	StartIndex int    `json:"start_index"`
	EndIndex   int    `json:"end_index"`
}

// AnalysisResult is the outcome of a single model call.
type AnalysisResult struct {
	Content   string     `json:"content"`
	Citations []Citation `json:"citations"`
}

// AnalysisRequest is the request body for POST /analyze.
type AnalysisRequest struct {
	DocumentID string `json:"document_id" binding:"required"`
	Text       string `json:"text" binding:"required"`
}
