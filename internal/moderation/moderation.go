// Package moderation decides whether a request may use the permissive system
// prompt. The decision is advisory for tone, not a safety boundary, and it
// fails restrictive: any transport or decode error keeps the standard prompt.
package moderation

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
)

const moderationsPath = "/v1/moderations"

// recentTurns bounds the conversation slice sent to the moderation API.
const recentTurns = 10

type Gate struct {
	baseURL    string
	apiKey     string
	threshold  float64
	httpClient *http.Client
}

func NewGate(baseURL, apiKey string, threshold float64, timeout time.Duration) *Gate {
	return &Gate{
		baseURL:    baseURL,
		apiKey:     apiKey,
		threshold:  threshold,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Enabled reports whether the gate has credentials to call the moderation API.
func (g *Gate) Enabled() bool {
	return g.apiKey != ""
}

type moderationRequest struct {
	Input []string `json:"input"`
}

type moderationResult struct {
	Flagged        bool               `json:"flagged"`
	CategoryScores map[string]float64 `json:"category_scores"`
}

type moderationResponse struct {
	Results []moderationResult `json:"results"`
}

// ShouldUncensor classifies the recent conversation and returns true only
// when some turn is flagged but every category score stays below the
// configured threshold. Unflagged conversations keep the standard prompt, and
// so does anything scoring at or above the threshold.
func (g *Gate) ShouldUncensor(ctx context.Context, turns []models.ChatTurn) bool {
	if !g.Enabled() {
		return false
	}

	input := moderationInput(turns)
	if len(input) == 0 {
		return false
	}

	res, err := g.classify(ctx, input)
	if err != nil {
		log.Printf("moderation: classification failed, keeping standard prompt: %v", err)
		return false
	}
	if len(res.Results) == 0 {
		return false
	}

	flagged := false
	for _, result := range res.Results {
		if !result.Flagged {
			continue
		}
		flagged = true
		for _, score := range result.CategoryScores {
			if score >= g.threshold {
				return false
			}
		}
	}
	return flagged
}

// moderationInput collects the non-empty contents of the most recent turns.
func moderationInput(turns []models.ChatTurn) []string {
	if len(turns) > recentTurns {
		turns = turns[len(turns)-recentTurns:]
	}
	out := make([]string, 0, len(turns))
	for _, t := range turns {
		if t.Content != "" {
			out = append(out, t.Content)
		}
	}
	return out
}

func (g *Gate) classify(ctx context.Context, input []string) (moderationResponse, error) {
	body, err := json.Marshal(moderationRequest{Input: input})
	if err != nil {
		return moderationResponse{}, fmt.Errorf("moderation: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+moderationsPath, bytes.NewReader(body))
	if err != nil {
		return moderationResponse{}, fmt.Errorf("moderation: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+g.apiKey)

	res, err := g.httpClient.Do(req)
	if err != nil {
		return moderationResponse{}, fmt.Errorf("moderation: request failed: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		buf, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return moderationResponse{}, fmt.Errorf("moderation: api returned %d: %s", res.StatusCode, string(buf))
	}

	var payload moderationResponse
	if err := json.NewDecoder(res.Body).Decode(&payload); err != nil {
		return moderationResponse{}, fmt.Errorf("moderation: decode response: %w", err)
	}
	return payload, nil
}
