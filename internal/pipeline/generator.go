package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/fyrsmithlabs/outreachd/internal/store"
)

// generateRequest is the wire request to the generation engine.
type generateRequest struct {
	StepKey string         `json:"step_key"`
	Context store.Document `json:"context"`
}

// generateResponse is the wire response from the generation engine.
type generateResponse struct {
	Document store.Document `json:"document"`
}

// HTTPGenerator calls an external generation engine over HTTP. The
// engine receives the step key and the enriched context and returns the
// structured step payload.
type HTTPGenerator struct {
	baseURL string
	client  *http.Client
}

// NewHTTPGenerator creates a generator client for the engine at baseURL.
func NewHTTPGenerator(baseURL string, timeout time.Duration) *HTTPGenerator {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &HTTPGenerator{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
	}
}

// Generate implements Generator.
func (g *HTTPGenerator) Generate(ctx context.Context, stepKey string, contextDoc store.Document) (store.Document, error) {
	body, err := json.Marshal(generateRequest{StepKey: stepKey, Context: contextDoc})
	if err != nil {
		return nil, fmt.Errorf("marshaling generate request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/generate", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("building generate request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("calling generation engine: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("generation engine returned %d: %s", resp.StatusCode, msg)
	}

	var out generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decoding generate response: %w", err)
	}
	if out.Document == nil {
		return nil, fmt.Errorf("generation engine returned no document")
	}
	return out.Document, nil
}
