package embedder

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"io"
	"net/http"
	"strings"
	"time"
	"unicode"

	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/openai"
)

// Provider configuration
const (
	ProviderOpenAI = "openai"
	ProviderJina   = "jina"
	ProviderCompat = "compat"
	ProviderLocal  = "local"

	// Default endpoints
	DefaultOpenAIHost = "https://api.openai.com/v1"
	DefaultJinaHost   = "https://api.jina.ai/v1"
	DefaultCompatHost = "http://localhost:11434/v1"

	// Default models
	DefaultOpenAIModel = "text-embedding-3-small"
	DefaultJinaModel   = "jina-embeddings-v3"
	DefaultCompatModel = "nomic-embed-text"
	DefaultLocalModel  = "local-hash-v1"

	// Dimensions of the default models
	OpenAIDimension = 1536
	JinaDimension   = 1024
	LocalDimension  = 384

	// Batch limits
	DefaultBatchSize = 50
	MaxBatchSize     = 100

	DefaultCacheSize = 10000

	// Retry configuration
	MaxRetries        = 3
	InitialBackoffMs  = 100
	MaxBackoffMs      = 5000
	BackoffMultiplier = 2.0
)

// APIError is a non-200 response from an embeddings endpoint
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error %d: %s", e.StatusCode, e.Body)
}

// httpBackend speaks the OpenAI /embeddings wire format, which Jina also accepts
type httpBackend struct {
	endpoint   string
	apiKey     string
	httpClient *http.Client
}

func newHTTPBackend(host, apiKey string, timeout time.Duration) *httpBackend {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &httpBackend{
		endpoint:   strings.TrimRight(host, "/") + "/embeddings",
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: timeout},
	}
}

func (h *httpBackend) embed(ctx context.Context, texts []string, model string) ([][]float32, error) {
	body, err := json.Marshal(map[string]interface{}{
		"input": texts,
		"model": model,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+h.apiKey)

	resp, err := h.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("api call: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, &APIError{StatusCode: resp.StatusCode, Body: string(bodyBytes)}
	}

	var apiResp struct {
		Data []struct {
			Embedding []float32 `json:"embedding"`
			Index     int       `json:"index"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if len(apiResp.Data) != len(texts) {
		return nil, fmt.Errorf("%w: got %d embeddings for %d texts", ErrUnexpectedResponse, len(apiResp.Data), len(texts))
	}

	// Data may arrive out of order; index is authoritative
	vectors := make([][]float32, len(texts))
	for _, d := range apiResp.Data {
		if d.Index < 0 || d.Index >= len(texts) || vectors[d.Index] != nil {
			return nil, fmt.Errorf("%w: bad index %d", ErrUnexpectedResponse, d.Index)
		}
		vectors[d.Index] = d.Embedding
	}
	return vectors, nil
}

func (h *httpBackend) close() error {
	h.httpClient.CloseIdleConnections()
	return nil
}

// compatBackend embeds through any OpenAI-compatible server (Ollama, LM Studio, vLLM)
type compatBackend struct {
	embedder embeddings.Embedder
}

func newCompatBackend(host, model, token string) (*compatBackend, error) {
	if token == "" {
		// Local OpenAI-compatible services ignore the token but the client requires one
		token = "none"
	}
	client, err := openai.New(
		openai.WithBaseURL(host),
		openai.WithToken(token),
		openai.WithEmbeddingModel(model),
	)
	if err != nil {
		return nil, fmt.Errorf("create compat client: %w", err)
	}

	emb, err := embeddings.NewEmbedder(client, embeddings.WithStripNewLines(true))
	if err != nil {
		return nil, fmt.Errorf("create compat embedder: %w", err)
	}
	return &compatBackend{embedder: emb}, nil
}

// embed ignores model; the compat client is bound to one model at construction
func (c *compatBackend) embed(ctx context.Context, texts []string, _ string) ([][]float32, error) {
	return c.embedder.EmbedDocuments(ctx, texts)
}

func (c *compatBackend) close() error {
	return nil
}

// localBackend builds feature-hashed bag-of-words vectors. Texts sharing
// words get positive cosine similarity, which is enough for offline use
// and tests, with no model download.
type localBackend struct {
	dimension int
}

func (l *localBackend) embed(ctx context.Context, texts []string, _ string) ([][]float32, error) {
	vectors := make([][]float32, len(texts))
	for i, text := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		vectors[i] = l.vector(text)
	}
	return vectors, nil
}

func (l *localBackend) vector(text string) []float32 {
	v := make([]float32, l.dimension)
	tokens := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '.'
	})
	for _, tok := range tokens {
		tok = strings.Trim(tok, ".")
		if tok == "" {
			continue
		}
		h := fnv.New64a()
		_, _ = h.Write([]byte(tok))
		sum := h.Sum64()
		idx := int(sum % uint64(l.dimension))
		if sum>>63 == 0 {
			v[idx]++
		} else {
			v[idx]--
		}
	}
	return NormalizeVector(v)
}

func (l *localBackend) close() error {
	return nil
}
