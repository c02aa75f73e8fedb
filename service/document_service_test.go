package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"plainspeak-backend/models"
	"plainspeak-backend/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAnalyzer struct {
	mu           sync.Mutex
	analyzeFn    func(prompt string, document []byte) (*models.AnalysisResult, error)
	structuredFn func(prompt string, document []byte) (*models.AnalysisResult, error)
	prompts      []string
}

func (f *fakeAnalyzer) Analyze(ctx context.Context, prompt string, document []byte) (*models.AnalysisResult, error) {
	f.mu.Lock()
	f.prompts = append(f.prompts, prompt)
	f.mu.Unlock()
	return f.analyzeFn(prompt, document)
}

func (f *fakeAnalyzer) AnalyzeStructured(ctx context.Context, prompt string, document []byte) (*models.AnalysisResult, error) {
	f.mu.Lock()
	f.prompts = append(f.prompts, prompt)
	f.mu.Unlock()
	return f.structuredFn(prompt, document)
}

func text(content string) *models.AnalysisResult {
	return &models.AnalysisResult{Content: content, Citations: []models.Citation{}}
}

func newTestDocumentService(ai Analyzer) (*DocumentService, *repository.DocumentRepository) {
	repo := repository.NewDocumentRepository()
	svc := NewDocumentService(
		WithDocumentRepository(repo),
		WithAnalyzer(ai),
	)
	return svc, repo
}

func TestDocumentService_ProcessUpload_Text(t *testing.T) {
	ai := &fakeAnalyzer{
		analyzeFn: func(string, []byte) (*models.AnalysisResult, error) {
			t.Fatal("text uploads must not reach the model")
			return nil, nil
		},
	}
	svc, _ := newTestDocumentService(ai)

	record, err := svc.ProcessUpload(context.Background(), []byte("Simple para one.\n\nTechnical para with jargon two."), "doc.txt")
	require.NoError(t, err)

	require.Len(t, record.Segments, 2)
	assert.Equal(t, 0, record.Segments[0].StartIndex)
	assert.Equal(t, len("Simple para one.")+2, record.Segments[1].StartIndex)
	assert.Empty(t, record.Explanations)
}

func TestDocumentService_ProcessUpload_PDFPipeline(t *testing.T) {
	pdf := []byte("%PDF-1.4 paper")

	ai := &fakeAnalyzer{
		analyzeFn: func(prompt string, document []byte) (*models.AnalysisResult, error) {
			if prompt == extractPrompt {
				return text("The encabulator uses prefabulated amulite.\n\nThe sky is blue."), nil
			}
			// Explain call: echo which segment was asked about.
			return text("explained: " + strings.TrimPrefix(prompt, explainPromptPrefix)), nil
		},
		structuredFn: func(prompt string, document []byte) (*models.AnalysisResult, error) {
			return text(`[{"needs_explanation": true, "reason": "heavy jargon"}, {"needs_explanation": false, "reason": "already simple"}]`), nil
		},
	}
	svc, repo := newTestDocumentService(ai)

	record, err := svc.ProcessUpload(context.Background(), pdf, "paper.pdf")
	require.NoError(t, err)

	require.Len(t, record.Segments, 2)
	assert.Equal(t, "The encabulator uses prefabulated amulite.", record.Segments[0].Text)
	assert.Equal(t, 0, record.Segments[0].StartIndex)
	assert.Equal(t, 999, record.Segments[0].EndIndex)
	assert.Equal(t, 1000, record.Segments[1].StartIndex)
	assert.Equal(t, 1999, record.Segments[1].EndIndex)

	require.Len(t, record.Explanations, 2)
	assert.Equal(t, "explained: The encabulator uses prefabulated amulite.", record.Explanations[0].Text)
	assert.Equal(t, 0, record.Explanations[0].StartIndex)
	assert.Equal(t, 999, record.Explanations[0].EndIndex)
	// Segment not needing explanation is copied through unchanged.
	assert.Equal(t, record.Segments[1], record.Explanations[1])

	require.Len(t, record.ComplexityResults, 2)
	assert.True(t, record.ComplexityResults[0].NeedsExplanation)
	assert.False(t, record.ComplexityResults[1].NeedsExplanation)

	// Pipeline results are visible through the store afterwards.
	stored, err := repo.Get(record.ID)
	require.NoError(t, err)
	assert.Equal(t, record.Explanations, stored.Explanations)
}

func TestDocumentService_ClassifyParseFallback(t *testing.T) {
	ai := &fakeAnalyzer{
		analyzeFn: func(prompt string, document []byte) (*models.AnalysisResult, error) {
			if prompt == extractPrompt {
				return text("First.\n\nSecond.\n\nThird."), nil
			}
			return text("plain explanation"), nil
		},
		structuredFn: func(prompt string, document []byte) (*models.AnalysisResult, error) {
			return text("I could not produce the requested format, sorry."), nil
		},
	}
	svc, _ := newTestDocumentService(ai)

	record, err := svc.ProcessUpload(context.Background(), []byte("%PDF-1.4"), "doc.pdf")
	require.NoError(t, err, "a malformed classification must never abort the pipeline")

	require.Len(t, record.ComplexityResults, 3)
	for _, result := range record.ComplexityResults {
		assert.True(t, result.NeedsExplanation)
		assert.Equal(t, "Error analyzing complexity", result.Reason)
	}
	// Every segment got an explanation call.
	require.Len(t, record.Explanations, 3)
	for _, explanation := range record.Explanations {
		assert.Equal(t, "plain explanation", explanation.Text)
	}
}

func TestDocumentService_ClassifyFencedResponse(t *testing.T) {
	fenced := "Here you go:\n```json\n[{\"needs_explanation\": false, \"reason\": \"simple\"}]\n```\n"
	results, err := parseComplexityResults(fenced, 1)
	require.NoError(t, err)
	assert.False(t, results[0].NeedsExplanation)
}

func TestDocumentService_ClassifyCountMismatch(t *testing.T) {
	_, err := parseComplexityResults(`[{"needs_explanation": true, "reason": "x"}]`, 2)
	assert.Error(t, err)
}

func TestDocumentService_StageFailuresAbort(t *testing.T) {
	t.Run("extract failure", func(t *testing.T) {
		ai := &fakeAnalyzer{
			analyzeFn: func(string, []byte) (*models.AnalysisResult, error) {
				return nil, &models.GatewayError{Err: errors.New("model unavailable")}
			},
		}
		svc, _ := newTestDocumentService(ai)

		_, err := svc.ProcessUpload(context.Background(), []byte("%PDF-1.4"), "doc.pdf")
		var gatewayErr *models.GatewayError
		assert.ErrorAs(t, err, &gatewayErr)
	})

	t.Run("classify call failure", func(t *testing.T) {
		ai := &fakeAnalyzer{
			analyzeFn: func(string, []byte) (*models.AnalysisResult, error) {
				return text("Only segment."), nil
			},
			structuredFn: func(string, []byte) (*models.AnalysisResult, error) {
				return nil, &models.GatewayError{Err: errors.New("model unavailable")}
			},
		}
		svc, _ := newTestDocumentService(ai)

		_, err := svc.ProcessUpload(context.Background(), []byte("%PDF-1.4"), "doc.pdf")
		assert.ErrorContains(t, err, "classify stage")
	})

	t.Run("explain failure", func(t *testing.T) {
		ai := &fakeAnalyzer{
			analyzeFn: func(prompt string, document []byte) (*models.AnalysisResult, error) {
				if prompt == extractPrompt {
					return text("Only segment."), nil
				}
				return nil, &models.GatewayError{Err: errors.New("model unavailable")}
			},
			structuredFn: func(string, []byte) (*models.AnalysisResult, error) {
				return text(`[{"needs_explanation": true, "reason": "jargon"}]`), nil
			},
		}
		svc, _ := newTestDocumentService(ai)

		_, err := svc.ProcessUpload(context.Background(), []byte("%PDF-1.4"), "doc.pdf")
		assert.ErrorContains(t, err, "explain stage")
	})
}

func TestDocumentService_ExplainOrderPreserved(t *testing.T) {
	// More segments than the worker limit, all flagged, to exercise the
	// fan-out path.
	const n = 12
	var paragraphs []string
	for i := 0; i < n; i++ {
		paragraphs = append(paragraphs, fmt.Sprintf("Segment number %d.", i))
	}
	extracted := strings.Join(paragraphs, "\n\n")

	var verdicts []string
	for i := 0; i < n; i++ {
		verdicts = append(verdicts, `{"needs_explanation": true, "reason": "test"}`)
	}

	ai := &fakeAnalyzer{
		analyzeFn: func(prompt string, document []byte) (*models.AnalysisResult, error) {
			if prompt == extractPrompt {
				return text(extracted), nil
			}
			return text("explained " + strings.TrimPrefix(prompt, explainPromptPrefix)), nil
		},
		structuredFn: func(string, []byte) (*models.AnalysisResult, error) {
			return text("[" + strings.Join(verdicts, ",") + "]"), nil
		},
	}
	svc, _ := newTestDocumentService(ai)

	record, err := svc.ProcessUpload(context.Background(), []byte("%PDF-1.4"), "doc.pdf")
	require.NoError(t, err)

	require.Len(t, record.Explanations, n)
	for i, explanation := range record.Explanations {
		assert.Equal(t, fmt.Sprintf("explained Segment number %d.", i), explanation.Text)
		assert.Equal(t, record.Segments[i].StartIndex, explanation.StartIndex)
	}
}

func TestDocumentService_AnalyzeDocument(t *testing.T) {
	t.Run("attaches pdf bytes for pdf documents", func(t *testing.T) {
		pdf := []byte("%PDF-1.4 contract")
		var attached []byte
		ai := &fakeAnalyzer{
			analyzeFn: func(prompt string, document []byte) (*models.AnalysisResult, error) {
				if prompt == extractPrompt {
					return text("Clause one."), nil
				}
				attached = document
				return text("analysis"), nil
			},
			structuredFn: func(string, []byte) (*models.AnalysisResult, error) {
				return text(`[{"needs_explanation": false, "reason": "simple"}]`), nil
			},
		}
		svc, _ := newTestDocumentService(ai)

		record, err := svc.ProcessUpload(context.Background(), pdf, "contract.pdf")
		require.NoError(t, err)

		result, err := svc.AnalyzeDocument(context.Background(), record.ID, "what does clause one mean?")
		require.NoError(t, err)
		assert.Equal(t, "analysis", result.Content)
		assert.Equal(t, pdf, attached)
	})

	t.Run("no document attached for text uploads", func(t *testing.T) {
		var attached []byte
		called := false
		ai := &fakeAnalyzer{
			analyzeFn: func(prompt string, document []byte) (*models.AnalysisResult, error) {
				called = true
				attached = document
				return text("analysis"), nil
			},
		}
		svc, _ := newTestDocumentService(ai)

		record, err := svc.ProcessUpload(context.Background(), []byte("Plain text."), "note.txt")
		require.NoError(t, err)

		_, err = svc.AnalyzeDocument(context.Background(), record.ID, "summarize")
		require.NoError(t, err)
		assert.True(t, called)
		assert.Nil(t, attached)
	})

	t.Run("unknown document", func(t *testing.T) {
		svc, _ := newTestDocumentService(&fakeAnalyzer{})
		_, err := svc.AnalyzeDocument(context.Background(), "doc_missing", "text")
		assert.ErrorIs(t, err, models.ErrDocumentNotFound)
	})
}
