package models

// Chat roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ChatTurn represents a single message in a conversation.
type ChatTurn struct {
	ID       string `json:"id,omitempty"`
	Role     string `json:"role"` // "system", "user" or "assistant"
	Content  string `json:"content"`
	HasImage bool   `json:"hasImage,omitempty"`
}

// ChatSettings selects the model tier for a request. Immutable per request.
type ChatSettings struct {
	Model                 string `json:"model"`
	IncludeProfileContext bool   `json:"includeProfileContext"`
}

// CompletionRequest is the payload for POST /chat/completion.
type CompletionRequest struct {
	Messages       []ChatTurn   `json:"messages"`
	ChatSettings   ChatSettings `json:"chatSettings"`
	IsRetrieval    bool         `json:"isRetrieval"`
	IsContinuation bool         `json:"isContinuation"`
	IsRagEnabled   bool         `json:"isRagEnabled"`
	SelectedPlugin string       `json:"selectedPlugin"`
}

// DetectionPayload is the conversation-shaped part of a plugin-detection request.
type DetectionPayload struct {
	ChatSettings ChatSettings `json:"chatSettings"`
	Messages     []ChatTurn   `json:"messages"`
}

// ChatImage is an attachment reference carried alongside a detection request.
type ChatImage struct {
	MessageID string `json:"messageId"`
	URL       string `json:"url"`
}

// PluginDetectionRequest is the payload for POST /chat/plugin-detection.
type PluginDetectionRequest struct {
	Payload        DetectionPayload `json:"payload"`
	ChatImages     []ChatImage      `json:"chatImages"`
	SelectedPlugin string           `json:"selectedPlugin"`
}

// PluginDetectionResponse always carries a catalog id or "none".
type PluginDetectionResponse struct {
	Plugin string `json:"plugin"`
}

// RagOutcome records whether retrieval enrichment happened for a request.
// Consumed by the stream emitter (metadata frame) and the provider call
// (enriched system prompt).
type RagOutcome struct {
	Used                 bool
	ResultID             string
	EnrichedSystemPrompt string
}

// MetadataFrame is the first frame of every response stream.
type MetadataFrame struct {
	RagUsed bool    `json:"ragUsed"`
	RagID   *string `json:"ragId"`
}

// Metadata builds the stream metadata frame for this outcome.
func (o RagOutcome) Metadata() MetadataFrame {
	frame := MetadataFrame{RagUsed: o.Used}
	if o.ResultID != "" {
		id := o.ResultID
		frame.RagID = &id
	}
	return frame
}
