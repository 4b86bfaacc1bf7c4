// Package rag conditionally enriches the system prompt with content from an
// external retrieval endpoint. Retrieval failures are never surfaced: an
// empty or failed lookup falls back to the web-search plugin route so the
// answer still gets some grounding.
package rag

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
	"chatgate-backend/internal/plugins"
	"chatgate-backend/internal/prompts"
	"chatgate-backend/internal/question"
)

type questionGenerator interface {
	Generate(ctx context.Context, turns []models.ChatTurn, targetMessage, datePrefix string, wantAtomic bool, topK int) (question.Result, error)
}

type Augmentor struct {
	endpoint         string
	apiKey           string
	minMessageLength int
	generator        questionGenerator
	httpClient       *http.Client
}

func NewAugmentor(endpoint, apiKey string, minMessageLength int, generator *question.Generator) *Augmentor {
	return &Augmentor{
		endpoint:         endpoint,
		apiKey:           apiKey,
		minMessageLength: minMessageLength,
		generator:        generator,
		httpClient:       &http.Client{Timeout: 15 * time.Second},
	}
}

// Enabled reports whether the retrieval subsystem is configured.
func (a *Augmentor) Enabled() bool {
	return a.endpoint != "" && a.apiKey != ""
}

// Input carries everything the augmentor needs to decide and query.
type Input struct {
	Turns          []models.ChatTurn
	TargetMessage  string          // message the standalone question is built from
	FilterTarget   models.ChatTurn // turn the gating conditions are checked against
	IsRetrieval    bool
	IsRagEnabled   bool
	TopK           int
	ProfileContext string
}

type retrievalRequest struct {
	Query     string   `json:"query"`
	Questions []string `json:"questions"`
	Chunks    int      `json:"chunks"`
}

type retrievalResponse struct {
	Content  string `json:"content"`
	ResultID string `json:"resultId"`
}

// Augment runs the skip/enrich/fallback state machine. The returned plugin id
// is plugins.PluginWebSearch when retrieval came back empty or failed, and
// plugins.PluginNone otherwise. Only standalone-question generation errors
// are returned; they are fatal to the surrounding request.
func (a *Augmentor) Augment(ctx context.Context, in Input) (models.RagOutcome, plugins.PluginID, error) {
	if in.IsRetrieval || !in.IsRagEnabled || !a.Enabled() ||
		len(in.Turns) == 0 ||
		in.FilterTarget.Role != models.RoleUser ||
		len(in.FilterTarget.Content) <= a.minMessageLength {
		return models.RagOutcome{}, plugins.PluginNone, nil
	}

	generated, err := a.generator.Generate(ctx, in.Turns, in.TargetMessage, prompts.CurrentDate(), true, in.TopK)
	if err != nil {
		return models.RagOutcome{}, plugins.PluginNone, err
	}

	res, err := a.query(ctx, retrievalRequest{
		Query:     generated.StandaloneQuestion,
		Questions: generated.AtomicQuestions,
		Chunks:    in.TopK,
	})
	if err != nil {
		log.Printf("rag: retrieval failed, falling back to web search: %v", err)
		return models.RagOutcome{}, plugins.PluginWebSearch, nil
	}

	outcome := models.RagOutcome{ResultID: res.ResultID}
	if res.Content == "" {
		return outcome, plugins.PluginWebSearch, nil
	}

	outcome.Used = true
	outcome.EnrichedSystemPrompt = prompts.BuildSystemPrompt(prompts.RAGEnriched(res.Content), in.ProfileContext)
	return outcome, plugins.PluginNone, nil
}

func (a *Augmentor) query(ctx context.Context, req retrievalRequest) (retrievalResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return retrievalResponse{}, fmt.Errorf("rag: marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.endpoint, bytes.NewReader(body))
	if err != nil {
		return retrievalResponse{}, fmt.Errorf("rag: create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+a.apiKey)

	res, err := a.httpClient.Do(httpReq)
	if err != nil {
		return retrievalResponse{}, fmt.Errorf("rag: request failed: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		buf, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return retrievalResponse{}, fmt.Errorf("rag: retrieval returned %d: %s", res.StatusCode, string(buf))
	}

	var payload retrievalResponse
	if err := json.NewDecoder(res.Body).Decode(&payload); err != nil {
		return retrievalResponse{}, fmt.Errorf("rag: decode response: %w", err)
	}
	return payload, nil
}
