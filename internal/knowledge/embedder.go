package knowledge

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// tracer resolves lazily against the global provider; spans are no-ops
// unless tracing is configured.
var tracer = otel.Tracer("ara/knowledge")

// Embedder turns text into vectors. Implementations must return one
// vector per input, in input order.
type Embedder interface {
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// HFInferenceURL is the HuggingFace feature-extraction endpoint prefix;
// the model ID is appended.
const HFInferenceURL = "https://api-inference.huggingface.co/pipeline/feature-extraction/"

// DefaultEmbedBatchSize bounds texts per API call to avoid upstream timeouts.
const DefaultEmbedBatchSize = 16

// embedMaxAttempts bounds retries of one batch before the failure surfaces.
const embedMaxAttempts = 3

// ErrEmbeddingFailed indicates a batch could not be embedded within the
// retry budget. Ingestion surfaces it; nothing is silently zero-filled.
var ErrEmbeddingFailed = errors.New("embedding failed")

// HFEmbedder calls the HuggingFace inference API. It batches inputs,
// retries transient failures with backoff, and normalizes the endpoint's
// inconsistent response nesting to flat vectors.
type HFEmbedder struct {
	apiKey    string
	model     string
	endpoint  string
	batchSize int
	client    *http.Client
	logger    *slog.Logger
}

// HFConfig configures an HFEmbedder.
type HFConfig struct {
	APIKey string
	Model  string

	// BatchSize defaults to DefaultEmbedBatchSize.
	BatchSize int

	// Endpoint overrides HFInferenceURL + Model, mainly for tests.
	Endpoint string

	HTTPClient *http.Client
	Logger     *slog.Logger
}

// NewHFEmbedder validates cfg and builds the embedder.
func NewHFEmbedder(cfg HFConfig) (*HFEmbedder, error) {
	if cfg.Model == "" {
		return nil, errors.New("knowledge: embedder model is required")
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultEmbedBatchSize
	}
	if cfg.Endpoint == "" {
		cfg.Endpoint = HFInferenceURL + cfg.Model
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &HFEmbedder{
		apiKey:    cfg.APIKey,
		model:     cfg.Model,
		endpoint:  cfg.Endpoint,
		batchSize: cfg.BatchSize,
		client:    cfg.HTTPClient,
		logger:    cfg.Logger,
	}, nil
}

var _ Embedder = (*HFEmbedder)(nil)

// EmbedDocuments embeds texts in batches, concatenating results in order.
func (e *HFEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += e.batchSize {
		end := start + e.batchSize
		if end > len(texts) {
			end = len(texts)
		}
		vectors, err := e.embedBatch(ctx, texts[start:end])
		if err != nil {
			return nil, err
		}
		out = append(out, vectors...)
	}
	return out, nil
}

// EmbedQuery embeds a single query string.
func (e *HFEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.embedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vectors) == 0 {
		return nil, fmt.Errorf("%w: empty response for query", ErrEmbeddingFailed)
	}
	return vectors[0], nil
}

// embedBatch calls the API with the retry budget. The upstream 504s under
// load, so transient failures are expected here.
func (e *HFEmbedder) embedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	ctx, span := tracer.Start(ctx, "knowledge.embed_batch",
		trace.WithAttributes(attribute.Int("batch.size", len(texts))))
	defer span.End()

	attempt := 0
	operation := func() ([][]float32, error) {
		attempt++
		vectors, err := e.callOnce(ctx, texts)
		if err != nil {
			e.logger.Warn("embedding attempt failed", "attempt", attempt, "error", err)
			return nil, err
		}
		return vectors, nil
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(embedBackOff(), embedMaxAttempts-1),
		ctx,
	)
	vectors, err := backoff.RetryWithData(operation, policy)
	if err != nil {
		return nil, fmt.Errorf("%w after %d attempts: %w", ErrEmbeddingFailed, attempt, err)
	}
	if len(vectors) != len(texts) {
		return nil, fmt.Errorf("%w: got %d vectors for %d texts", ErrEmbeddingFailed, len(vectors), len(texts))
	}
	return vectors, nil
}

func (e *HFEmbedder) callOnce(ctx context.Context, texts []string) ([][]float32, error) {
	payload, err := json.Marshal(map[string]any{"inputs": texts})
	if err != nil {
		return nil, fmt.Errorf("encoding request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if e.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+e.apiKey)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxEmbedResponseSize))
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("upstream status %d", resp.StatusCode)
	}

	vectors, err := normalizeEmbeddings(body)
	if err != nil {
		return nil, err
	}
	if len(vectors) == 0 {
		return nil, errors.New("empty embedding batch")
	}
	return vectors, nil
}

const maxEmbedResponseSize = 8 << 20

// normalizeEmbeddings flattens the endpoint's response nesting. The API
// returns [[v]] per batch most of the time but wraps an extra level
// ([[[v]]]) for some models; both decode to one vector per input.
func normalizeEmbeddings(body []byte) ([][]float32, error) {
	var flat [][]float32
	if err := json.Unmarshal(body, &flat); err == nil {
		return flat, nil
	}

	var nested [][][]float32
	if err := json.Unmarshal(body, &nested); err == nil {
		if len(nested) == 0 {
			return nil, nil
		}
		return nested[0], nil
	}

	return nil, errors.New("unrecognized embedding response shape")
}

func embedBackOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 400 * time.Millisecond
	b.MaxInterval = 3 * time.Second
	return b
}
