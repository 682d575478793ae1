package ollama

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/kirillkom/loan-intake/internal/core/domain"
	"github.com/kirillkom/loan-intake/internal/core/policy"
	"github.com/kirillkom/loan-intake/internal/infrastructure/resilience"
)

const operationGenerate = "classifier.generate"

// TextExtractor pulls plain text out of a document body. It lets PDFs be
// classified from their text layer.
type TextExtractor func(body []byte) (string, error)

type Options struct {
	APIKey        string
	HTTPClient    *http.Client
	Executor      *resilience.Executor
	TextExtractor TextExtractor
}

// Client talks to an Ollama-compatible /api/generate endpoint with a vision
// model. Calls are single-shot: no retries, only a breaker.
type Client struct {
	baseURL    string
	model      string
	apiKey     string
	httpClient *http.Client
	executor   *resilience.Executor
	extractor  TextExtractor
}

func New(baseURL, model string, options Options) *Client {
	httpClient := options.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 60 * time.Second}
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		model:      model,
		apiKey:     options.APIKey,
		httpClient: httpClient,
		executor:   options.Executor,
		extractor:  options.TextExtractor,
	}
}

type generateRequest struct {
	Model   string         `json:"model"`
	Prompt  string         `json:"prompt"`
	Images  []string       `json:"images,omitempty"`
	Stream  bool           `json:"stream"`
	Format  string         `json:"format"`
	Options map[string]any `json:"options,omitempty"`
}

type generateResponse struct {
	Response string `json:"response"`
}

// Classify implements ports.DocumentClassifier.
func (c *Client) Classify(ctx context.Context, req domain.ClassifyRequest) (*domain.ClassificationResult, error) {
	payload, err := c.buildRequest(req)
	if err != nil {
		return nil, err
	}

	raw, err := resilience.Do(ctx, c.executor, operationGenerate, func(ctx context.Context) (string, error) {
		var response generateResponse
		if err := c.postJSON(ctx, "/api/generate", payload, &response, "generate"); err != nil {
			return "", err
		}
		return strings.TrimSpace(response.Response), nil
	}, classifyClassifierError)
	if err != nil {
		return nil, toDomainError(operationGenerate, err)
	}

	result, err := parseClassification(raw)
	if err != nil {
		return nil, fmt.Errorf("parse classification: %w", err)
	}
	return result, nil
}

func (c *Client) buildRequest(req domain.ClassifyRequest) (generateRequest, error) {
	payload := generateRequest{
		Model:   c.model,
		Stream:  false,
		Format:  "json",
		Options: map[string]any{"temperature": 0},
	}
	if len(req.Content) == 0 {
		return payload, domain.WrapError(domain.ErrInvalidInput, "classify", errors.New("empty document body"))
	}

	if policy.FileExtension("", req.MimeType) == "pdf" {
		if c.extractor == nil {
			return payload, domain.WrapError(domain.ErrInvalidInput, "classify", errors.New("pdf classification needs a text extractor"))
		}
		text, err := c.extractor(req.Content)
		if err != nil {
			return payload, fmt.Errorf("extract pdf text: %w", err)
		}
		payload.Prompt = buildTextPrompt(req.ExpectedType, text)
		return payload, nil
	}

	payload.Prompt = buildImagePrompt(req.ExpectedType)
	payload.Images = []string{base64.StdEncoding.EncodeToString(req.Content)}
	return payload, nil
}

type classificationWire struct {
	DetectedType string   `json:"detected_type"`
	DocumentType string   `json:"document_type"`
	IsDocument   *bool    `json:"is_document"`
	Confidence   float64  `json:"confidence"`
	Quality      string   `json:"quality"`
	RedFlags     []string `json:"red_flags"`
	Reasoning    string   `json:"reasoning"`
}

// parseClassification normalizes the model reply. A reply without
// is_document is an error so the caller falls back to manual review.
// Confidence is an integer 0-100; only a value strictly between 0 and 1 with
// a fractional part is read as a fraction. A missing label becomes "unknown"
// and an unrecognized quality becomes poor.
func parseClassification(raw string) (*domain.ClassificationResult, error) {
	var wire classificationWire
	if err := json.Unmarshal([]byte(extractJSONObject(raw)), &wire); err != nil {
		return nil, err
	}
	if wire.IsDocument == nil {
		return nil, errors.New("classifier reply has no is_document field")
	}

	detected := strings.TrimSpace(wire.DetectedType)
	if detected == "" {
		detected = strings.TrimSpace(wire.DocumentType)
	}
	if detected == "" {
		detected = "unknown"
	}

	confidence := wire.Confidence
	if confidence > 0 && confidence < 1 {
		confidence *= 100
	}
	confidence = math.Max(0, math.Min(100, math.Round(confidence)))

	result := &domain.ClassificationResult{
		DetectedType: detected,
		IsDocument:   *wire.IsDocument,
		Confidence:   int(confidence),
		Quality:      normalizeQuality(wire.Quality),
		Reasoning:    strings.TrimSpace(wire.Reasoning),
	}
	for _, flag := range wire.RedFlags {
		if label := policy.NormalizeLabel(flag); label != "" {
			result.RedFlags = append(result.RedFlags, domain.RedFlag(label))
		}
	}
	return result, nil
}

func normalizeQuality(raw string) domain.Quality {
	switch q := domain.Quality(policy.NormalizeLabel(raw)); q {
	case domain.QualityGood, domain.QualityAcceptable, domain.QualityPoor, domain.QualityUnreadable:
		return q
	default:
		return domain.QualityPoor
	}
}

func extractJSONObject(raw string) string {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start >= 0 && end > start {
		return raw[start : end+1]
	}
	return raw
}
