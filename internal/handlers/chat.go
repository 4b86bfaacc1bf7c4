package handlers

import (
	"context"
	"errors"
	"log"
	"net/http"

	"github.com/google/uuid"

	"chatgate-backend/internal/config"
	"chatgate-backend/internal/llm"
	"chatgate-backend/internal/middleware"
	"chatgate-backend/internal/models"
	"chatgate-backend/internal/plugins"
	"chatgate-backend/internal/prompts"
	"chatgate-backend/internal/rag"
	"chatgate-backend/internal/ratelimit"
	"chatgate-backend/internal/sanitize"
	"chatgate-backend/internal/stream"
	"chatgate-backend/internal/tools"
)

const (
	chatTemperature = 0.5
	chatMaxTokens   = 2048
)

type limitChecker interface {
	Check(ctx context.Context, userID uuid.UUID, capability ratelimit.Capability) (*ratelimit.Denial, error)
}

type augmentor interface {
	Augment(ctx context.Context, in rag.Input) (models.RagOutcome, plugins.PluginID, error)
}

type moderationGate interface {
	ShouldUncensor(ctx context.Context, turns []models.ChatTurn) bool
}

type streamer interface {
	Stream(ctx context.Context, h llm.Handle, req llm.ChatRequest) (<-chan llm.StreamChunk, error)
}

// ChatHandler runs the full completion pipeline for one request.
type ChatHandler struct {
	cfg       *config.Config
	limiter   limitChecker
	augmentor augmentor
	gate      moderationGate
	router    *llm.Router
	client    streamer
	webSearch tools.Executor
}

func NewChatHandler(cfg *config.Config, limiter limitChecker, aug augmentor, gate moderationGate, router *llm.Router, client streamer, webSearch tools.Executor) *ChatHandler {
	return &ChatHandler{
		cfg:       cfg,
		limiter:   limiter,
		augmentor: aug,
		gate:      gate,
		router:    router,
		client:    client,
		webSearch: webSearch,
	}
}

// Completion handles POST /api/v1/chat/completion.
func (h *ChatHandler) Completion(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req models.CompletionRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_BODY", "Invalid request body")
		return
	}
	if len(req.Messages) == 0 {
		writeError(w, r, http.StatusBadRequest, "EMPTY_CONVERSATION", "At least one message is required")
		return
	}

	profile := middleware.GetProfile(ctx)

	provider, ok := h.providerConfig(req.ChatSettings)
	if !ok {
		writeError(w, r, http.StatusBadRequest, "UNKNOWN_MODEL", "The selected model is not available")
		return
	}

	capability := ratelimit.CapabilityChat
	if provider.IsPro {
		capability = ratelimit.CapabilityChatPro
	}
	denial, err := h.limiter.Check(ctx, profile.UserID, capability)
	if err != nil {
		log.Printf("handlers: rate limit check failed: %v", err)
		writeError(w, r, http.StatusInternalServerError, "RATE_LIMIT_UNAVAILABLE", "Unable to verify request quota")
		return
	}
	if denial != nil {
		writeJSON(w, denial.Status, denial)
		return
	}

	profileContext := ""
	if req.ChatSettings.IncludeProfileContext {
		profileContext = profile.ProfileContext
	}
	basePrompt := prompts.BaseStandard
	if provider.IsPro {
		basePrompt = prompts.BasePro
	}
	systemPrompt := prompts.BuildSystemPrompt(basePrompt, profileContext)

	target, filterTarget := targetTurns(req.Messages, req.IsContinuation)

	plugin := plugins.Parse(req.SelectedPlugin)
	outcome, override, err := h.augmentor.Augment(ctx, rag.Input{
		Turns:          req.Messages,
		TargetMessage:  target.Content,
		FilterTarget:   filterTarget,
		IsRetrieval:    req.IsRetrieval,
		IsRagEnabled:   req.IsRagEnabled,
		TopK:           provider.SimilarityTopK,
		ProfileContext: profileContext,
	})
	if err != nil {
		log.Printf("handlers: rag augmentation failed: %v", err)
		writeError(w, r, http.StatusInternalServerError, "RAG_FAILED", "Unable to prepare the request")
		return
	}
	if outcome.Used {
		// A grounded prompt beats a tool call.
		systemPrompt = outcome.EnrichedSystemPrompt
		plugin = plugins.PluginNone
	} else if override == plugins.PluginWebSearch {
		plugin = plugins.PluginWebSearch
	}

	model := provider.SelectedModel
	hasImages := sanitize.DetectImages(req.Messages)
	if hasImages {
		model = h.cfg.VisionModel
	}

	uncensored := false
	if !hasImages && !req.IsContinuation && plugin == plugins.PluginNone {
		uncensored = h.gate.ShouldUncensor(ctx, req.Messages)
	}

	turns := req.Messages
	if uncensored {
		turns = sanitize.MergeAssistantTurns(turns)
	} else {
		turns = sanitize.FilterEmptyAssistantTurns(turns)
	}

	emitter := stream.NewEmitter(w)

	if plugin == plugins.PluginWebSearch {
		if err := emitter.Metadata(outcome.Metadata()); err != nil {
			return
		}
		if err := h.webSearch.Execute(ctx, tools.Input{
			Settings: req.ChatSettings,
			Turns:    turns,
			Profile:  profile,
			Sink:     emitter,
		}); err != nil {
			log.Printf("handlers: web search execution: %v", err)
		}
		return
	}

	turns = sanitize.DropTrailingContinuationPrompt(turns, req.IsContinuation)
	turns = sanitize.Validate(turns)

	chatReq := llm.ChatRequest{
		Model:       model,
		Messages:    llm.ToWireMessages(systemPrompt, turns),
		Temperature: chatTemperature,
		MaxTokens:   chatMaxTokens,
		Route:       "fallback",
	}
	if provider.IsPro {
		noParallel := false
		chatReq.ParallelToolCalls = &noParallel
	}

	chunks, err := h.client.Stream(ctx, h.router.Route(model), chatReq)
	if err != nil {
		status := http.StatusInternalServerError
		var httpErr *llm.HTTPStatusError
		if errors.As(err, &httpErr) {
			status = httpErr.HTTPStatusCode()
		}
		log.Printf("handlers: provider call failed: %v", err)
		writeError(w, r, status, "PROVIDER_ERROR", "The model provider rejected the request")
		return
	}

	if err := emitter.Metadata(outcome.Metadata()); err != nil {
		return
	}
	emitter.Pipe(ctx, chunks)
}

// providerConfig validates the selected model and derives the per-request
// provider settings. Only the default model (or blank) and the pro alias are
// accepted; the alias resolves to the configured pro model so it is served
// through the aggregator.
func (h *ChatHandler) providerConfig(settings models.ChatSettings) (models.ProviderConfig, bool) {
	switch settings.Model {
	case h.cfg.ProModelAlias:
		return models.ProviderConfig{
			SelectedModel:  h.cfg.ProModel,
			IsPro:          true,
			SimilarityTopK: h.cfg.SimilarityTopK,
		}, true
	case h.cfg.DefaultModel, "":
		return models.ProviderConfig{
			SelectedModel:  h.cfg.DefaultModel,
			SimilarityTopK: h.cfg.SimilarityTopK,
		}, true
	default:
		return models.ProviderConfig{}, false
	}
}

// targetTurns picks the message being answered and the turn the RAG gates
// check. On a continuation the live prompt is a synthetic "continue" turn, so
// both targets shift back past it.
func targetTurns(turns []models.ChatTurn, isContinuation bool) (target, filterTarget models.ChatTurn) {
	n := len(turns)
	if isContinuation && n >= 3 {
		return turns[n-2], turns[n-3]
	}
	return turns[n-1], turns[n-1]
}
