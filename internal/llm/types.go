// Package llm is an OpenAI-compatible chat-completions client used for every
// provider this service routes to (OpenRouter aggregator, Mistral, DeepSeek),
// plus the prefix-based router that picks between them.
package llm

import (
	"fmt"

	"chatgate-backend/internal/models"
)

// Message is the provider wire shape for a chat turn.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatRequest mirrors the OpenAI chat-completions request.
type ChatRequest struct {
	Model             string    `json:"model"`
	Messages          []Message `json:"messages"`
	Temperature       float64   `json:"temperature,omitempty"`
	MaxTokens         int       `json:"max_tokens,omitempty"`
	Stream            bool      `json:"stream,omitempty"`
	Route             string    `json:"route,omitempty"` // "fallback" enables secondary-provider routing on the aggregator
	ParallelToolCalls *bool     `json:"parallel_tool_calls,omitempty"`
}

// ChatResponse is the minimal non-streaming response shape.
type ChatResponse struct {
	ID      string `json:"id"`
	Choices []struct {
		Index   int     `json:"index"`
		Message Message `json:"message"`
	} `json:"choices"`
}

// StreamDelta is the incremental content of one streaming chunk.
type StreamDelta struct {
	Role    string `json:"role,omitempty"`
	Content string `json:"content"`
}

// StreamChoice pairs a delta with the provider's finish signal.
type StreamChoice struct {
	Delta        StreamDelta `json:"delta"`
	FinishReason string      `json:"finish_reason"`
}

// StreamChunk is a single SSE chunk of a streaming completion. The Err field
// carries transport and parse failures on channel-based streams.
type StreamChunk struct {
	ID      string         `json:"id"`
	Model   string         `json:"model"`
	Choices []StreamChoice `json:"choices"`
	Err     error          `json:"-"`
}

// Content returns the first choice's delta content.
func (c *StreamChunk) Content() string {
	if len(c.Choices) > 0 {
		return c.Choices[0].Delta.Content
	}
	return ""
}

// IsDone reports whether the provider marked the stream finished.
func (c *StreamChunk) IsDone() bool {
	return len(c.Choices) > 0 && c.Choices[0].FinishReason != ""
}

// HTTPStatusError captures non-2xx upstream responses with status-aware
// context, so handlers can mirror the upstream status to the caller.
type HTTPStatusError struct {
	StatusCode int
	URL        string
	Body       string
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("llm: unexpected status %d from %s: %s", e.StatusCode, e.URL, e.Body)
}

func (e *HTTPStatusError) HTTPStatusCode() int {
	return e.StatusCode
}

// ToWireMessages converts sanitized turns to the provider wire shape,
// prepending the system prompt when non-empty.
func ToWireMessages(systemPrompt string, turns []models.ChatTurn) []Message {
	out := make([]Message, 0, len(turns)+1)
	if systemPrompt != "" {
		out = append(out, Message{Role: models.RoleSystem, Content: systemPrompt})
	}
	for _, t := range turns {
		if t.Role == models.RoleSystem {
			continue
		}
		out = append(out, Message{Role: t.Role, Content: t.Content})
	}
	return out
}
