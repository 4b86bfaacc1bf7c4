package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Client issues chat completions against any OpenAI-compatible endpoint.
// The zero timeout on the streaming client is deliberate: stream lifetime is
// bounded by the request context, not a wall-clock budget.
type Client struct {
	httpClient   *http.Client
	streamClient *http.Client
}

func NewClient(timeout time.Duration) *Client {
	return &Client{
		httpClient:   &http.Client{Timeout: timeout},
		streamClient: &http.Client{},
	}
}

// Complete performs a blocking completion and returns the first choice's
// content.
func (c *Client) Complete(ctx context.Context, h Handle, req ChatRequest) (string, error) {
	req.Stream = false

	body, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("llm: marshal request: %w", err)
	}

	url := h.BaseURL + "/chat/completions"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("llm: create request: %w", err)
	}
	h.setHeaders(httpReq)

	res, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("llm: request failed: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		buf, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return "", &HTTPStatusError{StatusCode: res.StatusCode, URL: url, Body: string(buf)}
	}

	raw, err := io.ReadAll(io.LimitReader(res.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("llm: read response: %w", err)
	}

	var payload ChatResponse
	if err := json.Unmarshal(raw, &payload); err != nil {
		return "", fmt.Errorf("llm: decode response: %w", err)
	}
	if len(payload.Choices) == 0 {
		return "", errors.New("llm: no choices in response")
	}
	return payload.Choices[0].Message.Content, nil
}

// Stream opens a streaming completion and returns a channel of chunks. The
// HTTP call happens synchronously, so connection and status errors are
// returned here; mid-stream failures arrive on the channel via the Err field.
// The channel closes when the provider finishes, errors, or ctx is cancelled.
func (c *Client) Stream(ctx context.Context, h Handle, req ChatRequest) (<-chan StreamChunk, error) {
	req.Stream = true

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("llm: marshal request: %w", err)
	}

	url := h.BaseURL + "/chat/completions"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("llm: create request: %w", err)
	}
	h.setHeaders(httpReq)
	httpReq.Header.Set("Accept", "text/event-stream")
	httpReq.Header.Set("Cache-Control", "no-cache")

	res, err := c.streamClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("llm: request failed: %w", err)
	}
	if res.StatusCode != http.StatusOK {
		buf, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		res.Body.Close()
		return nil, &HTTPStatusError{StatusCode: res.StatusCode, URL: url, Body: string(buf)}
	}

	chunks := make(chan StreamChunk, 64)
	go func() {
		defer close(chunks)
		defer res.Body.Close()

		reader := newSSEReader(res.Body)
		for {
			select {
			case <-ctx.Done():
				return
			default:
			}

			data, err := reader.readEvent()
			if err != nil {
				if err != io.EOF && !errors.Is(err, context.Canceled) {
					chunks <- StreamChunk{Err: fmt.Errorf("llm: read stream: %w", err)}
				}
				return
			}

			if bytes.Equal(data, []byte("[DONE]")) {
				return
			}

			var chunk StreamChunk
			if err := json.Unmarshal(data, &chunk); err != nil {
				// Skip malformed chunks rather than killing the stream
				continue
			}

			select {
			case chunks <- chunk:
			case <-ctx.Done():
				return
			}

			if chunk.IsDone() {
				return
			}
		}
	}()

	return chunks, nil
}
