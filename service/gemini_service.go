package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"plainspeak-backend/models"

	"github.com/google/generative-ai-go/genai"
	lru "github.com/hashicorp/golang-lru/v2"
	"google.golang.org/api/option"
)

const (
	defaultModel = "gemini-2.0-flash"

	// Capacity of the response cache. Exceeding it evicts the least
	// recently used entry, never errors.
	analysisCacheSize = 100

	// Per-call deadline on external model requests.
	generationTimeout = 120 * time.Second

	systemInstruction = "You are a helpful assistant that explains complex documents in simple terms. Always cite your sources."
)

// contentGenerator is the slice of *genai.GenerativeModel the service
// actually calls. Narrowed to an interface so tests can stand in a fake.
type contentGenerator interface {
	GenerateContent(ctx context.Context, parts ...genai.Part) (*genai.GenerateContentResponse, error)
}

// cacheKey identifies one analysis. Attached documents participate via
// their content hash so the key stays small and comparable.
type cacheKey struct {
	prompt     string
	docHash    string
	structured bool
}

// GeminiService is the gateway to the external model. All calls go
// through a fixed-capacity LRU response cache keyed by prompt text and
// attached-document hash.
type GeminiService struct {
	client     *genai.Client
	model      contentGenerator
	structured contentGenerator
	cache      *lru.Cache[cacheKey, *models.AnalysisResult]
}

// NewGeminiService builds the gateway. A missing API key is a
// configuration failure surfaced here, at startup, not per request.
func NewGeminiService(ctx context.Context, apiKey, modelName string) (*GeminiService, error) {
	if apiKey == "" {
		return nil, errors.New("GEMINI_API_KEY not set")
	}
	if modelName == "" {
		modelName = defaultModel
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	model := client.GenerativeModel(modelName)
	model.SetTemperature(0)
	model.SetMaxOutputTokens(1024)
	model.SystemInstruction = &genai.Content{
		Parts: []genai.Part{genai.Text(systemInstruction)},
	}

	// Second handle over the same model, constrained to JSON output.
	// Used by the classification stage so responses parse with a typed
	// unmarshal instead of scraping free-form text.
	structured := client.GenerativeModel(modelName)
	structured.SetTemperature(0)
	structured.ResponseMIMEType = "application/json"

	cache, err := lru.New[cacheKey, *models.AnalysisResult](analysisCacheSize)
	if err != nil {
		return nil, err
	}

	return &GeminiService{
		client:     client,
		model:      model,
		structured: structured,
		cache:      cache,
	}, nil
}

// Close releases the underlying client.
func (s *GeminiService) Close() error {
	return s.client.Close()
}

// Analyze sends prompt to the model, attaching document (a PDF) as
// request context when non-nil, and returns the concatenated response
// text plus any citations the model reports. Identical calls are served
// from the cache without an external round trip. The document bytes are
// used for key hashing and request construction only and are not
// retained by the service.
func (s *GeminiService) Analyze(ctx context.Context, prompt string, document []byte) (*models.AnalysisResult, error) {
	return s.analyze(ctx, s.model, prompt, document, false)
}

// AnalyzeStructured behaves like Analyze but requests a JSON response
// from the model.
func (s *GeminiService) AnalyzeStructured(ctx context.Context, prompt string, document []byte) (*models.AnalysisResult, error) {
	return s.analyze(ctx, s.structured, prompt, document, true)
}

func (s *GeminiService) analyze(ctx context.Context, model contentGenerator, prompt string, document []byte, structured bool) (*models.AnalysisResult, error) {
	key := cacheKey{prompt: prompt, docHash: hashContent(document), structured: structured}
	if result, ok := s.cache.Get(key); ok {
		return result, nil
	}
	log.Printf("Analysis cache miss (prompt length %d, document attached: %t)", len(prompt), document != nil)

	ctx, cancel := context.WithTimeout(ctx, generationTimeout)
	defer cancel()

	var parts []genai.Part
	if document != nil {
		parts = append(parts, genai.Blob{
			MIMEType: models.MediaTypePDF,
			Data:     document,
		})
	}
	parts = append(parts, genai.Text(prompt))

	resp, err := model.GenerateContent(ctx, parts...)
	if err != nil {
		return nil, &models.GatewayError{Err: err}
	}

	result, err := collectResult(resp)
	if err != nil {
		return nil, &models.GatewayError{Err: err}
	}

	s.cache.Add(key, result)
	return result, nil
}

// collectResult concatenates all text parts of the response into one
// string and captures citation metadata, which may be empty.
func collectResult(resp *genai.GenerateContentResponse) (*models.AnalysisResult, error) {
	if len(resp.Candidates) == 0 {
		return nil, errors.New("model returned no candidates")
	}

	var content strings.Builder
	citations := []models.Citation{}
	for _, candidate := range resp.Candidates {
		if candidate.Content != nil {
			for _, part := range candidate.Content.Parts {
				if text, ok := part.(genai.Text); ok {
					content.WriteString(string(text))
				}
			}
		}
		if candidate.CitationMetadata != nil {
			for _, source := range candidate.CitationMetadata.CitationSources {
				citation := models.Citation{License: source.License}
				if source.URI != nil {
					citation.URI = *source.URI
				}
				if source.StartIndex != nil {
					citation.StartIndex = int(*source.StartIndex)
				}
				if source.EndIndex != nil {
					citation.EndIndex = int(*source.EndIndex)
				}
				citations = append(citations, citation)
			}
		}
	}

	if content.Len() == 0 {
		return nil, errors.New("model returned empty content")
	}

	return &models.AnalysisResult{
		Content:   content.String(),
		Citations: citations,
	}, nil
}

func hashContent(document []byte) string {
	if document == nil {
		return ""
	}
	sum := sha256.Sum256(document)
	return hex.EncodeToString(sum[:])
}
