package capability

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
)

// HTTPScriptGenerator calls an external scripting service over HTTP,
// the same request/response shape the teacher's LLM client uses for its
// chat completions: a JSON POST, a bearer token, and the response body
// read fully before being handed back as a typed result. Each call makes
// a single attempt; retries come from the executor's policy.
type HTTPScriptGenerator struct {
	Endpoint string
	APIKey   string
	Client   *http.Client
}

// NewHTTPScriptGenerator constructs a generator pointed at endpoint,
// defaulting the HTTP client timeout the way external capability
// clients should: bounded, so a hung endpoint cannot wedge an executor
// attempt indefinitely.
func NewHTTPScriptGenerator(endpoint, apiKey string) *HTTPScriptGenerator {
	return &HTTPScriptGenerator{
		Endpoint: endpoint,
		APIKey:   apiKey,
		Client:   &http.Client{Timeout: 90 * time.Second},
	}
}

type scriptRequest struct {
	Topic           string   `json:"topic"`
	Style           string   `json:"style"`
	DurationSeconds int      `json:"duration_seconds"`
	Tags            []string `json:"tags,omitempty"`
}

type scriptResponse struct {
	Text string `json:"text"`
}

// Generate implements ScriptGenerator against the configured HTTP
// endpoint. Cancellable: the request is built with ctx, so an executor
// cancel signal aborts the in-flight HTTP call.
func (g *HTTPScriptGenerator) Generate(ctx context.Context, topic, style string, durationSeconds int, tags []string) (Script, error) {
	body, err := json.Marshal(scriptRequest{Topic: topic, Style: style, DurationSeconds: durationSeconds, Tags: tags})
	if err != nil {
		return Script{}, fmt.Errorf("marshal script request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.Endpoint, bytes.NewReader(body))
	if err != nil {
		return Script{}, fmt.Errorf("build script request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if g.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+g.APIKey)
	}

	resp, err := g.Client.Do(req)
	if err != nil {
		return Script{}, fmt.Errorf("script generator request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return Script{}, fmt.Errorf("script generator returned %d: %s", resp.StatusCode, raw)
	}

	var out scriptResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return Script{}, fmt.Errorf("decode script response: %w", err)
	}

	return Script{ID: uuid.NewString(), Text: out.Text}, nil
}
