// Package question collapses multi-turn history plus the latest user turn
// into a single self-contained query. Its output feeds both retrieval and
// classification, so the call runs at near-zero temperature and a failure is
// fatal to the surrounding request: a broken standalone question would
// corrupt both downstream systems.
package question

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"chatgate-backend/internal/llm"
	"chatgate-backend/internal/models"
	"chatgate-backend/internal/sanitize"
)

const (
	contextWindowTurns  = 4
	contextWindowMaxLen = 1000
	temperature         = 0.1
	maxTokens           = 512
)

var (
	standaloneRe = regexp.MustCompile(`(?is)<standalone>(.*?)</standalone>`)
	atomicRe     = regexp.MustCompile(`(?is)<atomic>(.*?)</atomic>`)
)

// Result holds the generated question and its optional decomposition into
// atomic sub-questions used to broaden retrieval recall.
type Result struct {
	StandaloneQuestion string
	AtomicQuestions    []string
}

type completer interface {
	Complete(ctx context.Context, h llm.Handle, req llm.ChatRequest) (string, error)
}

type Generator struct {
	client completer
	router *llm.Router
	model  string
}

func NewGenerator(client *llm.Client, router *llm.Router, model string) *Generator {
	return &Generator{client: client, router: router, model: model}
}

// Generate produces the standalone question for the target message, and when
// wantAtomic is set, up to topK atomic sub-questions.
func (g *Generator) Generate(ctx context.Context, turns []models.ChatTurn, targetMessage, datePrefix string, wantAtomic bool, topK int) (Result, error) {
	window := sanitize.TrailingWindow(turns, contextWindowTurns, contextWindowMaxLen)

	messages := make([]llm.Message, 0, len(window)+2)
	messages = append(messages, llm.Message{Role: models.RoleSystem, Content: datePrefix})
	for _, t := range window {
		messages = append(messages, llm.Message{Role: t.Role, Content: t.Content})
	}
	messages = append(messages, llm.Message{
		Role:    models.RoleUser,
		Content: buildPrompt(targetMessage, wantAtomic, topK),
	})

	raw, err := g.client.Complete(ctx, g.router.Route(g.model), llm.ChatRequest{
		Model:       g.model,
		Messages:    messages,
		Temperature: temperature,
		MaxTokens:   maxTokens,
		Route:       "fallback",
	})
	if err != nil {
		return Result{}, fmt.Errorf("question: generate standalone question: %w", err)
	}

	return parse(raw, targetMessage, topK), nil
}

func buildPrompt(targetMessage string, wantAtomic bool, topK int) string {
	var b strings.Builder

	b.WriteString("Rephrase the following follow-up message as a single self-contained question ")
	b.WriteString("that captures the user's intent without needing any prior conversation turns.\n\n")
	b.WriteString("Follow-up message:\n\"\"\"")
	b.WriteString(targetMessage)
	b.WriteString("\"\"\"\n\n")

	b.WriteString("Output format:\n")
	b.WriteString("<Standalone>{the self-contained question}</Standalone>\n")
	if wantAtomic {
		fmt.Fprintf(&b, "<Atomic>{up to %d atomic sub-questions, one per line, that together cover the question}</Atomic>\n", topK)
	}

	return b.String()
}

// parse extracts the tagged sections. A response without the standalone tag
// degrades to the raw target message so retrieval still has a usable query;
// only transport failures are fatal.
func parse(raw, targetMessage string, topK int) Result {
	res := Result{StandaloneQuestion: strings.TrimSpace(targetMessage)}

	if m := standaloneRe.FindStringSubmatch(raw); m != nil {
		if q := strings.TrimSpace(m[1]); q != "" {
			res.StandaloneQuestion = q
		}
	}

	if m := atomicRe.FindStringSubmatch(raw); m != nil {
		for _, line := range strings.Split(m[1], "\n") {
			line = strings.TrimSpace(strings.TrimLeft(strings.TrimSpace(line), "-*0123456789. "))
			if line == "" {
				continue
			}
			res.AtomicQuestions = append(res.AtomicQuestions, line)
			if len(res.AtomicQuestions) == topK {
				break
			}
		}
	}

	return res
}
