package handlers

import (
	"context"
	"log"
	"net/http"

	"chatgate-backend/internal/config"
	"chatgate-backend/internal/images"
	"chatgate-backend/internal/middleware"
	"chatgate-backend/internal/models"
	"chatgate-backend/internal/plugins"
	"chatgate-backend/internal/ratelimit"
)

type pluginDetector interface {
	Detect(ctx context.Context, turns []models.ChatTurn, lastUserMessage string) plugins.PluginID
}

type imageEnricher interface {
	Enrich(ctx context.Context, attachments []models.ChatImage) map[string]string
}

// DetectionHandler serves the plugin-detection endpoint. It degrades to
// {"plugin":"none"} rather than erroring: detection is an optimization, not a
// prerequisite for answering.
type DetectionHandler struct {
	cfg      *config.Config
	limiter  limitChecker
	detector pluginDetector
	enricher imageEnricher
}

func NewDetectionHandler(cfg *config.Config, limiter limitChecker, detector pluginDetector, enricher imageEnricher) *DetectionHandler {
	return &DetectionHandler{
		cfg:      cfg,
		limiter:  limiter,
		detector: detector,
		enricher: enricher,
	}
}

func noneResponse() models.PluginDetectionResponse {
	return models.PluginDetectionResponse{Plugin: string(plugins.PluginNone)}
}

// Detect handles POST /api/v1/chat/plugin-detection.
func (h *DetectionHandler) Detect(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if !h.cfg.UsePluginDetector {
		writeJSON(w, http.StatusOK, noneResponse())
		return
	}

	profile := middleware.GetProfile(ctx)

	denial, err := h.limiter.Check(ctx, profile.UserID, ratelimit.CapabilityPluginDetector)
	if err != nil {
		log.Printf("handlers: detector rate limit check failed: %v", err)
		writeError(w, r, http.StatusInternalServerError, "RATE_LIMIT_UNAVAILABLE", "Unable to verify request quota")
		return
	}
	if denial != nil {
		// Quota exhaustion on a best-effort feature is not an error.
		writeJSON(w, http.StatusOK, noneResponse())
		return
	}

	var req models.PluginDetectionRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_BODY", "Invalid request body")
		return
	}

	turns := req.Payload.Messages
	if len(req.ChatImages) > 0 {
		turns = images.MarkTurns(turns, h.enricher.Enrich(ctx, req.ChatImages))
	}

	lastUserMessage := ""
	for i := len(turns) - 1; i >= 0; i-- {
		if turns[i].Role == models.RoleUser {
			lastUserMessage = turns[i].Content
			break
		}
	}
	if lastUserMessage == "" {
		writeJSON(w, http.StatusOK, noneResponse())
		return
	}

	detected := h.detector.Detect(ctx, turns, lastUserMessage)
	writeJSON(w, http.StatusOK, models.PluginDetectionResponse{Plugin: string(detected)})
}
