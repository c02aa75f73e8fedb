package repository

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"plainspeak-backend/models"

	"github.com/google/uuid"
)

// DocumentRepository holds uploaded documents in memory for the process
// lifetime. Records are append-only: ids are never reused and nothing is
// evicted.
type DocumentRepository struct {
	mu        sync.RWMutex
	documents map[string]*models.DocumentRecord
}

// NewDocumentRepository creates an empty document repository.
func NewDocumentRepository() *DocumentRepository {
	return &DocumentRepository{
		documents: make(map[string]*models.DocumentRecord),
	}
}

// Create classifies the upload by filename extension, stores it and
// returns the new record. Plain-text uploads are decoded and segmented
// immediately; PDF content is kept as opaque bytes until the extraction
// pipeline derives segments from it.
func (r *DocumentRepository) Create(content []byte, filename string) (*models.DocumentRecord, error) {
	record := &models.DocumentRecord{
		ID:           "doc_" + uuid.New().String(),
		Filename:     filename,
		Segments:     []models.Segment{},
		Explanations: []models.Segment{},
		CreatedAt:    time.Now(),
	}

	switch {
	case strings.HasSuffix(strings.ToLower(filename), ".pdf"):
		record.MediaType = models.MediaTypePDF
		record.RawContent = content
	case strings.HasSuffix(strings.ToLower(filename), ".txt"):
		record.MediaType = models.MediaTypeText
		record.Content = string(content)
		record.Segments = SegmentText(record.Content)
	default:
		return nil, models.ErrUnsupportedFileType
	}

	r.mu.Lock()
	r.documents[record.ID] = record
	r.mu.Unlock()

	return record, nil
}

// Get returns the record for id, or ErrDocumentNotFound. Not-found is
// distinct from a record that simply has no segments yet.
func (r *DocumentRepository) Get(id string) (*models.DocumentRecord, error) {
	r.mu.RLock()
	record, ok := r.documents[id]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", models.ErrDocumentNotFound, id)
	}
	return record, nil
}

// Update attaches pipeline results to an existing record. The patched
// record is what subsequent Get calls observe.
func (r *DocumentRepository) Update(id string, segments, explanations []models.Segment, results []models.ComplexityResult) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	record, ok := r.documents[id]
	if !ok {
		return fmt.Errorf("%w: %s", models.ErrDocumentNotFound, id)
	}
	record.Segments = segments
	record.Explanations = explanations
	record.ComplexityResults = results
	return nil
}
