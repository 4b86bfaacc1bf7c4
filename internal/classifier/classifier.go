// Package classifier maps free-form user text to a bounded set of tool
// identifiers via a constrained LLM call. Its output selects code paths with
// real-world side effects (scans, enumeration), so the raw model answer is
// never trusted: anything but an exact, single, known id clamps to "none",
// and every failure mode resolves to "none" rather than failing the request.
package classifier

import (
	"context"
	"fmt"
	"log"
	"regexp"
	"strings"
	"unicode/utf8"

	"chatgate-backend/internal/llm"
	"chatgate-backend/internal/models"
	"chatgate-backend/internal/plugins"
	"chatgate-backend/internal/prompts"
	"chatgate-backend/internal/sanitize"
)

const (
	contextWindowTurns  = 4
	contextWindowMaxLen = 1000
	temperature         = 0.1
	maxTokens           = 512
)

var pluginTagRe = regexp.MustCompile(`(?is)<plugin>(.*?)</plugin>`)

type completer interface {
	Complete(ctx context.Context, h llm.Handle, req llm.ChatRequest) (string, error)
}

type Classifier struct {
	client           completer
	router           *llm.Router
	model            string
	maxMessageLength int
}

func New(client *llm.Client, router *llm.Router, model string, maxMessageLength int) *Classifier {
	return &Classifier{
		client:           client,
		router:           router,
		model:            model,
		maxMessageLength: maxMessageLength,
	}
}

// Detect returns the plugin the user's latest message calls for, or
// plugins.PluginNone. Messages over the configured maximum are rejected
// without a network call (cost/abuse control).
func (c *Classifier) Detect(ctx context.Context, turns []models.ChatTurn, lastUserMessage string) plugins.PluginID {
	if utf8.RuneCountInString(lastUserMessage) > c.maxMessageLength {
		return plugins.PluginNone
	}

	window := sanitize.TrailingWindow(sanitize.FilterEmptyAssistantTurns(turns), contextWindowTurns, contextWindowMaxLen)

	messages := make([]llm.Message, 0, len(window)+2)
	messages = append(messages, llm.Message{Role: models.RoleSystem, Content: prompts.ClassifierSystem})
	for _, t := range window {
		messages = append(messages, llm.Message{Role: t.Role, Content: t.Content})
	}
	messages = append(messages, llm.Message{Role: models.RoleUser, Content: buildPrompt(lastUserMessage)})

	raw, err := c.client.Complete(ctx, c.router.Route(c.model), llm.ChatRequest{
		Model:       c.model,
		Messages:    messages,
		Temperature: temperature,
		MaxTokens:   maxTokens,
		Route:       "fallback",
	})
	if err != nil {
		// Worst case is under-triggering tool use; never fail the request.
		log.Printf("classifier: detection call failed: %v", err)
		return plugins.PluginNone
	}

	match := pluginTagRe.FindStringSubmatch(raw)
	if match == nil {
		return plugins.PluginNone
	}
	return plugins.Clamp(match[1])
}

func buildPrompt(lastUserMessage string) string {
	var b strings.Builder

	b.WriteString("Based on the given follow-up question and chat history, determine if the user wants to use a plugin inside the chat environment for their task.\n\n")

	b.WriteString("# User Input:\n")
	fmt.Fprintf(&b, "- Query: \"\"\"%s\"\"\"\n\n", lastUserMessage)

	b.WriteString("# Available Plugins\n")
	b.WriteString("ID|Priority|Description|Usage Scenarios\n")
	b.WriteString(plugins.RenderTable())
	b.WriteString("\n\n")

	b.WriteString("# Very Important Rules:\n")
	b.WriteString("- All plugins run in our cloud platform, so if the user is asking to run anywhere else, respond with ID = none.\n")
	b.WriteString("- For information requests like 'how to install a plugin', 'tell me about subfinder', 'what plugin would you recommend for subdomain discovery', respond with ID = none, as these do not require direct plugin intervention.\n")
	b.WriteString("- If the question starts with explain, how to, detail, tell me about, help me choose, which plugins are the best for my task, etc, use ID = none.\n")
	b.WriteString("- If the user is asking about a plugin, but the plugin is not available, respond with ID = none.\n")
	b.WriteString("- If the request requires more than one plugin to be used, respond with ID = none.\n")
	b.WriteString("- Always pick none if you are not sure.\n\n")

	b.WriteString("# Output only the following:\n")
	b.WriteString("<ScratchPad>{Your concise reasoning, step by step}</ScratchPad>\n")
	b.WriteString("<Plugin>{single plugin ID, if multiple plugins are requested, respond with none}</Plugin>\n")

	return b.String()
}
