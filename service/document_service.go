package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"

	"plainspeak-backend/models"
	"plainspeak-backend/repository"

	"golang.org/x/sync/errgroup"
)

const (
	// Width of the synthetic offset slot assigned to each extracted PDF
	// segment. Extracted text has no true source positions.
	extractedSlotWidth = 1000

	// Explain calls issued in flight at once. Results are written back
	// by original segment index, so output order never depends on
	// completion order.
	explainConcurrency = 4
)

const extractPrompt = "Please extract all the text content from this PDF, preserving the original formatting and structure. Break it into logical segments separated by two newlines. Do not explain or modify the text, just extract it exactly as it appears."

const classifyPromptHeader = `For each of the following text segments, determine if it needs explanation by checking if:
1. It contains technical terms or jargon
2. It has complex sentence structure
3. It describes non-trivial concepts
4. It's not already a simple explanation

Return a JSON array where each item has:
- "needs_explanation": boolean
- "reason": brief explanation of why or why not

Here are the segments to analyze:
`

const explainPromptPrefix = "Please explain this text in simple terms: "

// Analyzer is the gateway contract the orchestrator depends on.
// Implemented by GeminiService.
type Analyzer interface {
	Analyze(ctx context.Context, prompt string, document []byte) (*models.AnalysisResult, error)
	AnalyzeStructured(ctx context.Context, prompt string, document []byte) (*models.AnalysisResult, error)
}

// DocumentService orchestrates document processing: upload handling and,
// for PDFs, the extract, classify and explain pipeline against the model
// gateway.
type DocumentService struct {
	repo *repository.DocumentRepository
	ai   Analyzer
}

// DocumentServiceOption is a functional option for DocumentService.
type DocumentServiceOption func(*DocumentService)

// WithDocumentRepository sets the document repository.
func WithDocumentRepository(repo *repository.DocumentRepository) DocumentServiceOption {
	return func(s *DocumentService) {
		s.repo = repo
	}
}

// WithAnalyzer sets the model gateway.
func WithAnalyzer(ai Analyzer) DocumentServiceOption {
	return func(s *DocumentService) {
		s.ai = ai
	}
}

// NewDocumentService creates a new document service.
func NewDocumentService(opts ...DocumentServiceOption) *DocumentService {
	s := &DocumentService{}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ProcessUpload stores the uploaded file and, for PDFs, runs the full
// analysis pipeline before returning the finished record. Text uploads
// are segmented at store time and need no model calls.
func (s *DocumentService) ProcessUpload(ctx context.Context, content []byte, filename string) (*models.DocumentRecord, error) {
	record, err := s.repo.Create(content, filename)
	if err != nil {
		return nil, err
	}
	log.Printf("Document %s created (%s, %d bytes)", record.ID, record.MediaType, len(content))

	if record.MediaType == models.MediaTypePDF {
		if err := s.runPDFPipeline(ctx, record.ID, record.RawContent); err != nil {
			return nil, err
		}
	}

	return s.repo.Get(record.ID)
}

// GetDocument returns a previously created document.
func (s *DocumentService) GetDocument(id string) (*models.DocumentRecord, error) {
	return s.repo.Get(id)
}

// AnalyzeDocument runs a single model call over caller-supplied text,
// attaching the document's raw PDF bytes as context when the record is a
// PDF.
func (s *DocumentService) AnalyzeDocument(ctx context.Context, docID, text string) (*models.AnalysisResult, error) {
	record, err := s.repo.Get(docID)
	if err != nil {
		return nil, err
	}

	var document []byte
	if record.MediaType == models.MediaTypePDF {
		document = record.RawContent
	}
	return s.ai.Analyze(ctx, explainPromptPrefix+text, document)
}

// runPDFPipeline drives the three-stage pipeline for one document.
// Extract and classify-call failures abort the whole pipeline, as does
// any individual explain failure; only a malformed classification
// response is recovered locally.
func (s *DocumentService) runPDFPipeline(ctx context.Context, docID string, pdf []byte) error {
	extracted, err := s.ai.Analyze(ctx, extractPrompt, pdf)
	if err != nil {
		log.Printf("Document %s: extract stage failed: %v", docID, err)
		return fmt.Errorf("extract stage: %w", err)
	}
	segments := buildExtractedSegments(extracted.Content)
	log.Printf("Document %s: extracted %d segments", docID, len(segments))

	results, err := s.classifySegments(ctx, docID, segments, pdf)
	if err != nil {
		log.Printf("Document %s: classify stage failed: %v", docID, err)
		return fmt.Errorf("classify stage: %w", err)
	}

	explanations, err := s.explainSegments(ctx, docID, segments, results, pdf)
	if err != nil {
		log.Printf("Document %s: explain stage failed: %v", docID, err)
		return fmt.Errorf("explain stage: %w", err)
	}

	return s.repo.Update(docID, segments, explanations, results)
}

// buildExtractedSegments splits model-extracted text on the double
// newline convention. Offsets are fixed-width slots by raw split
// position, not character positions; blank pieces still consume a slot.
func buildExtractedSegments(text string) []models.Segment {
	segments := []models.Segment{}
	for idx, piece := range strings.Split(text, "\n\n") {
		if strings.TrimSpace(piece) == "" {
			continue
		}
		segments = append(segments, models.Segment{
			Text:       strings.TrimSpace(piece),
			StartIndex: idx * extractedSlotWidth,
			EndIndex:   (idx+1)*extractedSlotWidth - 1,
		})
	}
	return segments
}

// classifySegments asks the model for a per-segment verdict in one call.
// A failed call aborts; a malformed response falls back to marking every
// segment as needing explanation. The fallback never surfaces to the
// caller.
func (s *DocumentService) classifySegments(ctx context.Context, docID string, segments []models.Segment, pdf []byte) ([]models.ComplexityResult, error) {
	var listing []string
	for i, segment := range segments {
		listing = append(listing, fmt.Sprintf("Segment %d:\n%s", i+1, segment.Text))
	}
	prompt := classifyPromptHeader + strings.Join(listing, "\n---\n")

	analysis, err := s.ai.AnalyzeStructured(ctx, prompt, pdf)
	if err != nil {
		return nil, err
	}

	results, err := parseComplexityResults(analysis.Content, len(segments))
	if err != nil {
		log.Printf("Document %s: error parsing complexity analysis, marking all segments: %v", docID, err)
		results = make([]models.ComplexityResult, len(segments))
		for i := range results {
			results[i] = models.ComplexityResult{
				NeedsExplanation: true,
				Reason:           "Error analyzing complexity",
			}
		}
	}
	return results, nil
}

// parseComplexityResults extracts the JSON array from the model response
// and unmarshals it. A result count that does not match the segment
// count is treated as a parse failure.
func parseComplexityResults(content string, want int) ([]models.ComplexityResult, error) {
	raw, err := extractJSONArray(content)
	if err != nil {
		return nil, err
	}

	var results []models.ComplexityResult
	if err := json.Unmarshal([]byte(raw), &results); err != nil {
		return nil, fmt.Errorf("failed to parse JSON: %w", err)
	}
	if len(results) != want {
		return nil, fmt.Errorf("expected %d results, got %d", want, len(results))
	}
	return results, nil
}

// extractJSONArray locates the outermost JSON array in free-form model
// output, tolerating fenced code blocks around it.
func extractJSONArray(response string) (string, error) {
	if strings.Contains(response, "```") {
		var jsonLines []string
		inCodeBlock := false
		for _, line := range strings.Split(response, "\n") {
			if strings.HasPrefix(strings.TrimSpace(line), "```") {
				inCodeBlock = !inCodeBlock
				continue
			}
			if inCodeBlock {
				jsonLines = append(jsonLines, line)
			}
		}
		response = strings.Join(jsonLines, "\n")
	}

	startIdx := strings.Index(response, "[")
	endIdx := strings.LastIndex(response, "]")
	if startIdx == -1 || endIdx == -1 || startIdx >= endIdx {
		return "", fmt.Errorf("could not find JSON array in response")
	}
	return response[startIdx : endIdx+1], nil
}

// explainSegments issues one model call per flagged segment through a
// bounded worker pool and copies unflagged segments through unchanged.
// The returned slice preserves input order and original offsets.
func (s *DocumentService) explainSegments(ctx context.Context, docID string, segments []models.Segment, results []models.ComplexityResult, pdf []byte) ([]models.Segment, error) {
	explanations := make([]models.Segment, len(segments))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(explainConcurrency)
	for i, segment := range segments {
		if !results[i].NeedsExplanation {
			explanations[i] = segment
			continue
		}
		g.Go(func() error {
			log.Printf("Document %s: explaining segment %d (%s)", docID, i, results[i].Reason)
			analysis, err := s.ai.Analyze(ctx, explainPromptPrefix+segment.Text, pdf)
			if err != nil {
				return fmt.Errorf("segment %d: %w", i, err)
			}
			explanations[i] = models.Segment{
				Text:       analysis.Content,
				StartIndex: segment.StartIndex,
				EndIndex:   segment.EndIndex,
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return explanations, nil
}
