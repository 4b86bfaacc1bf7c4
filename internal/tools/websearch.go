// Package tools holds plugin execution collaborators. The orchestration layer
// hands a tool the full response stream and gets out of the way; the tool owns
// every frame after the metadata frame.
package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"chatgate-backend/internal/models"
	"chatgate-backend/internal/stream"
)

// Input carries everything a tool needs to answer the turn on its own.
type Input struct {
	Settings models.ChatSettings
	Turns    []models.ChatTurn
	Profile  models.Profile
	Sink     stream.Sink
}

// Executor runs a tool end to end, writing all post-metadata frames to the
// sink. Implementations must always terminate the stream with a done or error
// frame.
type Executor interface {
	Execute(ctx context.Context, in Input) error
}

// WebSearch answers a turn from a search-backed completion endpoint instead
// of the plain model.
type WebSearch struct {
	endpoint   string
	apiKey     string
	httpClient *http.Client
}

func NewWebSearch(endpoint, apiKey string) *WebSearch {
	return &WebSearch{
		endpoint: endpoint,
		apiKey:   apiKey,
		// Search plus summarization is slow; bound it but leave headroom.
		httpClient: &http.Client{Timeout: 60 * time.Second},
	}
}

// Enabled reports whether the search backend is configured.
func (w *WebSearch) Enabled() bool {
	return w.endpoint != "" && w.apiKey != ""
}

type searchRequest struct {
	Model    string            `json:"model"`
	Messages []models.ChatTurn `json:"messages"`
}

type searchResponse struct {
	Answer string `json:"answer"`
}

// Execute queries the search backend with the sanitized conversation and
// streams its answer. Failures become an error frame on the sink rather than
// an HTTP error: by the time a tool runs, the metadata frame is already out.
func (w *WebSearch) Execute(ctx context.Context, in Input) error {
	if !w.Enabled() {
		log.Printf("tools: web search requested but not configured")
		return in.Sink.Error("Web search is not available right now", http.StatusServiceUnavailable)
	}

	answer, err := w.query(ctx, searchRequest{Model: in.Settings.Model, Messages: in.Turns})
	if err != nil {
		log.Printf("tools: web search failed: %v", err)
		return in.Sink.Error("Web search failed, please try again", http.StatusBadGateway)
	}

	if answer != "" {
		if err := in.Sink.Text(answer); err != nil {
			return err
		}
	}
	return in.Sink.Done()
}

func (w *WebSearch) query(ctx context.Context, req searchRequest) (string, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("tools: marshal search request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, w.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("tools: create search request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+w.apiKey)

	res, err := w.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("tools: search request failed: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		buf, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return "", fmt.Errorf("tools: search returned %d: %s", res.StatusCode, string(buf))
	}

	var payload searchResponse
	if err := json.NewDecoder(res.Body).Decode(&payload); err != nil {
		return "", fmt.Errorf("tools: decode search response: %w", err)
	}
	return payload.Answer, nil
}
