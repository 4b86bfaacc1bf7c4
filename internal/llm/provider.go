package llm

import (
	"net/http"
	"strings"
)

// Handle identifies a resolved upstream provider: where to send the request
// and which headers to attach.
type Handle struct {
	Name    string
	BaseURL string
	Headers map[string]string
}

func (h Handle) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	for k, v := range h.Headers {
		req.Header.Set(k, v)
	}
}

// RouterConfig carries the static provider endpoints and credentials.
type RouterConfig struct {
	MistralBaseURL    string
	MistralAPIKey     string
	DeepSeekBaseURL   string
	DeepSeekAPIKey    string
	OpenRouterBaseURL string
	OpenRouterAPIKey  string
	AppReferer        string
}

// Router maps model names to provider handles by prefix. It is a total
// function: unknown prefixes fall through to the aggregator, never an error.
type Router struct {
	cfg RouterConfig
}

func NewRouter(cfg RouterConfig) *Router {
	return &Router{cfg: cfg}
}

// Route resolves the provider handle for a model name.
func (r *Router) Route(model string) Handle {
	if strings.HasPrefix(model, "mistral-") ||
		strings.HasPrefix(model, "pixtral") ||
		strings.HasPrefix(model, "codestral") {
		return Handle{
			Name:    "mistral",
			BaseURL: r.cfg.MistralBaseURL,
			Headers: map[string]string{
				"Authorization": "Bearer " + r.cfg.MistralAPIKey,
			},
		}
	}

	if strings.HasPrefix(model, "deepseek") {
		return Handle{
			Name:    "deepseek",
			BaseURL: r.cfg.DeepSeekBaseURL,
			Headers: map[string]string{
				"Authorization": "Bearer " + r.cfg.DeepSeekAPIKey,
			},
		}
	}

	return Handle{
		Name:    "openrouter",
		BaseURL: r.cfg.OpenRouterBaseURL,
		Headers: map[string]string{
			"Authorization": "Bearer " + r.cfg.OpenRouterAPIKey,
			"HTTP-Referer":  r.cfg.AppReferer + "/" + model,
			"X-Title":       model,
		},
	}
}
