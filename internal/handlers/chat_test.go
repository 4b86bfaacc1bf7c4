package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chatgate-backend/internal/config"
	"chatgate-backend/internal/llm"
	"chatgate-backend/internal/models"
	"chatgate-backend/internal/plugins"
	"chatgate-backend/internal/rag"
	"chatgate-backend/internal/ratelimit"
	"chatgate-backend/internal/tools"
)

type fakeLimiter struct {
	denial *ratelimit.Denial
	err    error
	calls  int
}

func (f *fakeLimiter) Check(ctx context.Context, userID uuid.UUID, capability ratelimit.Capability) (*ratelimit.Denial, error) {
	f.calls++
	return f.denial, f.err
}

type fakeAugmentor struct {
	outcome  models.RagOutcome
	override plugins.PluginID
	err      error
	calls    int
	lastIn   rag.Input
}

func (f *fakeAugmentor) Augment(ctx context.Context, in rag.Input) (models.RagOutcome, plugins.PluginID, error) {
	f.calls++
	f.lastIn = in
	return f.outcome, f.override, f.err
}

type fakeGate struct {
	uncensor  bool
	calls     int
	lastTurns []models.ChatTurn
}

func (f *fakeGate) ShouldUncensor(ctx context.Context, turns []models.ChatTurn) bool {
	f.calls++
	f.lastTurns = turns
	return f.uncensor
}

type fakeStreamer struct {
	chunks  []llm.StreamChunk
	err     error
	calls   int
	lastReq llm.ChatRequest
}

func (f *fakeStreamer) Stream(ctx context.Context, h llm.Handle, req llm.ChatRequest) (<-chan llm.StreamChunk, error) {
	f.calls++
	f.lastReq = req
	if f.err != nil {
		return nil, f.err
	}
	out := make(chan llm.StreamChunk, len(f.chunks))
	for _, c := range f.chunks {
		out <- c
	}
	close(out)
	return out, nil
}

type fakeWebSearch struct {
	calls int
}

func (f *fakeWebSearch) Execute(ctx context.Context, in tools.Input) error {
	f.calls++
	if err := in.Sink.Text("search answer"); err != nil {
		return err
	}
	return in.Sink.Done()
}

type pipelineFakes struct {
	limiter   *fakeLimiter
	augmentor *fakeAugmentor
	gate      *fakeGate
	streamer  *fakeStreamer
	webSearch *fakeWebSearch
}

func testConfig() *config.Config {
	return &config.Config{
		DefaultModel:   "mistralai/mistral-small",
		ProModel:       "mistralai/mistral-large",
		ProModelAlias:  "mistral-large",
		VisionModel:    "pixtral-large-2411",
		SimilarityTopK: 3,
	}
}

func newTestChatHandler(f *pipelineFakes) *ChatHandler {
	router := llm.NewRouter(llm.RouterConfig{
		MistralBaseURL:    "https://mistral.test/v1",
		DeepSeekBaseURL:   "https://deepseek.test/v1",
		OpenRouterBaseURL: "https://or.test/v1",
		AppReferer:        "https://chatgate.app",
	})
	return NewChatHandler(testConfig(), f.limiter, f.augmentor, f.gate, router, f.streamer, f.webSearch)
}

func defaultFakes() *pipelineFakes {
	return &pipelineFakes{
		limiter:   &fakeLimiter{},
		augmentor: &fakeAugmentor{},
		gate:      &fakeGate{},
		streamer: &fakeStreamer{chunks: []llm.StreamChunk{
			{Choices: []llm.StreamChoice{{Delta: llm.StreamDelta{Content: "hi"}}}},
		}},
		webSearch: &fakeWebSearch{},
	}
}

func completionRequest(mutate func(*models.CompletionRequest)) *http.Request {
	body := models.CompletionRequest{
		Messages: []models.ChatTurn{
			{Role: models.RoleUser, Content: "how do I test for subdomain takeover on example.com?"},
		},
		ChatSettings: models.ChatSettings{Model: "mistralai/mistral-small"},
	}
	if mutate != nil {
		mutate(&body)
	}
	raw, _ := json.Marshal(body)
	return httptest.NewRequest(http.MethodPost, "/api/v1/chat/completion", bytes.NewReader(raw))
}

func frames(t *testing.T, body string) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(body), "\n") {
		var f map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &f), "frame: %s", line)
		out = append(out, f)
	}
	return out
}

func TestCompletion_PlainRequest(t *testing.T) {
	f := defaultFakes()
	rec := httptest.NewRecorder()

	newTestChatHandler(f).Completion(rec, completionRequest(nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	got := frames(t, rec.Body.String())
	require.Len(t, got, 3)
	assert.Equal(t, false, got[0]["ragUsed"])
	assert.Nil(t, got[0]["ragId"])
	assert.Equal(t, "text", got[1]["type"])
	assert.Equal(t, "hi", got[1]["content"])
	assert.Equal(t, "done", got[2]["type"])

	assert.Equal(t, 1, f.gate.calls)
	assert.Zero(t, f.webSearch.calls)
	assert.Equal(t, 1, f.streamer.calls)
	assert.Equal(t, "mistralai/mistral-small", f.streamer.lastReq.Model)
	assert.Nil(t, f.streamer.lastReq.ParallelToolCalls)
}

func TestCompletion_RagEnrichedStream(t *testing.T) {
	f := defaultFakes()
	f.augmentor.outcome = models.RagOutcome{
		Used:                 true,
		ResultID:             "r1",
		EnrichedSystemPrompt: "grounded prompt with X",
	}
	rec := httptest.NewRecorder()

	newTestChatHandler(f).Completion(rec, completionRequest(func(req *models.CompletionRequest) {
		req.IsRagEnabled = true
		// caller-selected plugin is discarded once enrichment succeeds
		req.SelectedPlugin = "subfinder"
	}))

	got := frames(t, rec.Body.String())
	require.NotEmpty(t, got)
	assert.Equal(t, true, got[0]["ragUsed"])
	assert.Equal(t, "r1", got[0]["ragId"])

	require.NotEmpty(t, f.streamer.lastReq.Messages)
	assert.Equal(t, models.RoleSystem, f.streamer.lastReq.Messages[0].Role)
	assert.Contains(t, f.streamer.lastReq.Messages[0].Content, "X")
	assert.Zero(t, f.webSearch.calls)
}

func TestCompletion_RateLimitDenialIsVerbatim(t *testing.T) {
	f := defaultFakes()
	f.limiter.denial = &ratelimit.Denial{
		Status:            http.StatusTooManyRequests,
		Message:           "You have reached the chat request limit. Please try again later.",
		RetryAfterSeconds: 120,
	}
	rec := httptest.NewRecorder()

	newTestChatHandler(f).Completion(rec, completionRequest(nil))

	assert.Equal(t, http.StatusTooManyRequests, rec.Code)

	var denial ratelimit.Denial
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &denial))
	assert.Equal(t, f.limiter.denial.Message, denial.Message)
	assert.Equal(t, 120, denial.RetryAfterSeconds)

	assert.Zero(t, f.augmentor.calls)
	assert.Zero(t, f.gate.calls)
	assert.Zero(t, f.streamer.calls)
	assert.Zero(t, f.webSearch.calls)
}

func TestCompletion_RateLimitBackendErrorFailsClosed(t *testing.T) {
	f := defaultFakes()
	f.limiter.err = errors.New("redis down")
	rec := httptest.NewRecorder()

	newTestChatHandler(f).Completion(rec, completionRequest(nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Zero(t, f.streamer.calls)
}

func TestCompletion_WebSearchFallbackOwnsStream(t *testing.T) {
	f := defaultFakes()
	f.augmentor.override = plugins.PluginWebSearch
	rec := httptest.NewRecorder()

	newTestChatHandler(f).Completion(rec, completionRequest(func(req *models.CompletionRequest) {
		req.IsRagEnabled = true
	}))

	got := frames(t, rec.Body.String())
	require.Len(t, got, 3)
	assert.Equal(t, false, got[0]["ragUsed"])
	assert.Equal(t, "text", got[1]["type"])
	assert.Equal(t, "search answer", got[1]["content"])
	assert.Equal(t, "done", got[2]["type"])

	assert.Equal(t, 1, f.webSearch.calls)
	assert.Zero(t, f.streamer.calls)
	assert.Zero(t, f.gate.calls, "web-search turns skip the moderation gate")
}

func TestCompletion_ModerationGateSkips(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*models.CompletionRequest)
	}{
		{
			name: "continuation",
			mutate: func(req *models.CompletionRequest) {
				req.IsContinuation = true
				req.Messages = []models.ChatTurn{
					{Role: models.RoleUser, Content: "write a long recon methodology"},
					{Role: models.RoleAssistant, Content: "part one..."},
					{Role: models.RoleUser, Content: "continue"},
				}
			},
		},
		{
			name: "images present",
			mutate: func(req *models.CompletionRequest) {
				req.Messages[0].HasImage = true
			},
		},
		{
			name: "plugin already selected",
			mutate: func(req *models.CompletionRequest) {
				req.SelectedPlugin = "subfinder"
			},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			f := defaultFakes()
			rec := httptest.NewRecorder()

			newTestChatHandler(f).Completion(rec, completionRequest(tc.mutate))

			assert.Zero(t, f.gate.calls)
		})
	}
}

func TestCompletion_ModerationGateSeesConversation(t *testing.T) {
	f := defaultFakes()
	rec := httptest.NewRecorder()

	newTestChatHandler(f).Completion(rec, completionRequest(func(req *models.CompletionRequest) {
		req.Messages = []models.ChatTurn{
			{Role: models.RoleUser, Content: "I have written authorization for this target"},
			{Role: models.RoleAssistant, Content: "noted"},
			{Role: models.RoleUser, Content: "how do I get a shell on it"},
		}
	}))

	require.Equal(t, 1, f.gate.calls)
	require.Len(t, f.gate.lastTurns, 3)
	assert.Equal(t, "I have written authorization for this target", f.gate.lastTurns[0].Content)
	assert.Equal(t, "how do I get a shell on it", f.gate.lastTurns[2].Content)
}

func TestCompletion_ImagesForceVisionModel(t *testing.T) {
	f := defaultFakes()
	rec := httptest.NewRecorder()

	newTestChatHandler(f).Completion(rec, completionRequest(func(req *models.CompletionRequest) {
		req.Messages[0].HasImage = true
	}))

	assert.Equal(t, "pixtral-large-2411", f.streamer.lastReq.Model)
}

func TestCompletion_ProTierRequestShape(t *testing.T) {
	f := defaultFakes()
	rec := httptest.NewRecorder()

	newTestChatHandler(f).Completion(rec, completionRequest(func(req *models.CompletionRequest) {
		req.ChatSettings.Model = "mistral-large"
	}))

	// the alias maps to the configured pro model, served by the aggregator
	assert.Equal(t, "mistralai/mistral-large", f.streamer.lastReq.Model)
	require.NotNil(t, f.streamer.lastReq.ParallelToolCalls)
	assert.False(t, *f.streamer.lastReq.ParallelToolCalls)
}

func TestCompletion_UnknownModelRejected(t *testing.T) {
	f := defaultFakes()
	rec := httptest.NewRecorder()

	newTestChatHandler(f).Completion(rec, completionRequest(func(req *models.CompletionRequest) {
		req.ChatSettings.Model = "gpt-9-ultra"
	}))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Zero(t, f.limiter.calls)
}

func TestCompletion_ProviderCallErrorMirrorsStatus(t *testing.T) {
	f := defaultFakes()
	f.streamer.err = &llm.HTTPStatusError{StatusCode: http.StatusPaymentRequired, URL: "u"}
	rec := httptest.NewRecorder()

	newTestChatHandler(f).Completion(rec, completionRequest(nil))

	assert.Equal(t, http.StatusPaymentRequired, rec.Code)

	var resp models.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "PROVIDER_ERROR", resp.Error.Code)
}

func TestCompletion_ContinuationTargets(t *testing.T) {
	f := defaultFakes()
	rec := httptest.NewRecorder()

	newTestChatHandler(f).Completion(rec, completionRequest(func(req *models.CompletionRequest) {
		req.IsRagEnabled = true
		req.IsContinuation = true
		req.Messages = []models.ChatTurn{
			{Role: models.RoleUser, Content: "this is the question that retrieval should use for grounding"},
			{Role: models.RoleAssistant, Content: "partial answer"},
			{Role: models.RoleUser, Content: "continue"},
		}
	}))

	assert.Equal(t, "partial answer", f.augmentor.lastIn.TargetMessage)
	assert.Equal(t, "this is the question that retrieval should use for grounding", f.augmentor.lastIn.FilterTarget.Content)
}

func TestCompletion_EmptyConversationRejected(t *testing.T) {
	f := defaultFakes()
	rec := httptest.NewRecorder()

	newTestChatHandler(f).Completion(rec, completionRequest(func(req *models.CompletionRequest) {
		req.Messages = nil
	}))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
