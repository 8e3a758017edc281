package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/xhad/vecingest/internal/types"
)

const (
	DefaultLlamaURL = "http://127.0.0.1:8080"

	// Health bodies are tiny; anything past this is not a status message.
	maxHealthBody = 4 << 10
	maxEmbedBody  = 64 << 20
)

// LlamaCppConfig represents the configuration for a llama.cpp server client.
type LlamaCppConfig struct {
	BaseURL string
	Timeout time.Duration // transport timeout, per-call timeouts come from the context
}

// LlamaCpp talks to the /health and /embedding endpoints of a llama.cpp server.
type LlamaCpp struct {
	config LlamaCppConfig
	client *http.Client
}

var (
	_ types.Embedder      = (*LlamaCpp)(nil)
	_ types.HealthChecker = (*LlamaCpp)(nil)
)

func NewLlamaCpp(config LlamaCppConfig) *LlamaCpp {
	if config.BaseURL == "" {
		config.BaseURL = DefaultLlamaURL
	}
	config.BaseURL = strings.TrimRight(config.BaseURL, "/")

	return &LlamaCpp{
		config: config,
		client: &http.Client{Timeout: config.Timeout},
	}
}

type embedRequest struct {
	Content string `json:"content"`
}

type embedResponse struct {
	Embedding []float64 `json:"embedding"`
}

// Health performs a single GET /health. Only transport failures are
// returned as errors; error statuses and odd bodies map to a status value.
func (l *LlamaCpp) Health(ctx context.Context) (types.ReadinessStatus, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, l.config.BaseURL+"/health", nil)
	if err != nil {
		return types.StatusUnknown, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := l.client.Do(req)
	if err != nil {
		return types.StatusUnknown, fmt.Errorf("%w: %v", ErrProbeTransport, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxHealthBody))
	if err != nil {
		return types.StatusUnknown, fmt.Errorf("%w: %v", ErrProbeTransport, err)
	}

	return decodeHealth(body), nil
}

// EmbedText requests an embedding for text and narrows it to float32.
func (l *LlamaCpp) EmbedText(ctx context.Context, text string) ([]float32, error) {
	jsonData, err := json.Marshal(embedRequest{Content: text})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, l.config.BaseURL+"/embedding", bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := l.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxEmbedBody))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: status %d, body: %s", ErrServerResponse, resp.StatusCode, truncate(body, 256))
	}

	var embedResp embedResponse
	if err := json.Unmarshal(body, &embedResp); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidResponse, err.Error())
	}
	if len(embedResp.Embedding) == 0 {
		return nil, ErrEmptyEmbedding
	}

	return Narrow(embedResp.Embedding), nil
}

// Narrow converts each component to single precision. The store only
// accepts float32 elements so the loss of precision is expected.
func Narrow(v []float64) []float32 {
	out := make([]float32, len(v))
	for i, f := range v {
		out[i] = float32(f)
	}
	return out
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
