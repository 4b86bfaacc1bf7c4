// Package sanitize normalizes raw conversation history before it is shown to
// a model: empty assistant turns are dropped, continuation artifacts removed,
// and malformed exchanges degraded by dropping the offending turns rather
// than failing the request.
package sanitize

import (
	"strings"
	"unicode/utf8"

	"chatgate-backend/internal/models"
)

// FilterEmptyAssistantTurns removes assistant turns with empty content,
// preserving the relative order of all other turns.
func FilterEmptyAssistantTurns(turns []models.ChatTurn) []models.ChatTurn {
	out := make([]models.ChatTurn, 0, len(turns))
	for _, t := range turns {
		if t.Role == models.RoleAssistant && t.Content == "" {
			continue
		}
		out = append(out, t)
	}
	return out
}

// MergeAssistantTurns keeps assistant turns intact, merging consecutive
// same-role turns into one. Used on the permissive-mode path where the model
// should see its own partial output rather than a filtered history.
func MergeAssistantTurns(turns []models.ChatTurn) []models.ChatTurn {
	out := make([]models.ChatTurn, 0, len(turns))
	for _, t := range turns {
		if n := len(out); n > 0 && out[n-1].Role == t.Role {
			if t.Content != "" {
				if out[n-1].Content != "" {
					out[n-1].Content += "\n\n" + t.Content
				} else {
					out[n-1].Content = t.Content
				}
			}
			out[n-1].HasImage = out[n-1].HasImage || t.HasImage
			continue
		}
		out = append(out, t)
	}
	return out
}

// DropTrailingContinuationPrompt removes the synthetic last turn of a
// "continue generating" follow-up so the model does not see its own
// continuation instruction echoed back.
func DropTrailingContinuationPrompt(turns []models.ChatTurn, isContinuation bool) []models.ChatTurn {
	if !isContinuation || len(turns) == 0 {
		return turns
	}
	return turns[:len(turns)-1]
}

// Validate drops malformed exchanges so that the remaining sequence strictly
// alternates user/assistant after an optional leading system turn and starts
// with a user turn. It never fails; offending turns are simply removed.
func Validate(turns []models.ChatTurn) []models.ChatTurn {
	out := make([]models.ChatTurn, 0, len(turns))
	lastRole := ""
	for i, t := range turns {
		if strings.TrimSpace(t.Content) == "" {
			continue
		}
		if t.Role == models.RoleSystem {
			// Only a single leading system turn is allowed.
			if i == 0 && len(out) == 0 {
				out = append(out, t)
			}
			continue
		}
		if t.Role != models.RoleUser && t.Role != models.RoleAssistant {
			continue
		}
		if lastRole == "" && t.Role == models.RoleAssistant {
			continue
		}
		if t.Role == lastRole {
			continue
		}
		out = append(out, t)
		lastRole = t.Role
	}
	return out
}

// DetectImages reports whether any turn carries image content. A true result
// forces a vision-capable model downstream regardless of the selected model.
func DetectImages(turns []models.ChatTurn) bool {
	for _, t := range turns {
		if t.HasImage {
			return true
		}
	}
	return false
}

// TrailingWindow returns the most recent keep turns after dropping the very
// last turn (the live prompt placeholder), truncating each turn's content to
// maxLen characters with an ellipsis marker. Shared by the classifier and the
// standalone-question generator, whose context windows must stay bounded.
// maxLen counts runes so truncation never splits a multi-byte character.
func TrailingWindow(turns []models.ChatTurn, keep, maxLen int) []models.ChatTurn {
	if len(turns) == 0 {
		return nil
	}
	window := turns[:len(turns)-1]
	if len(window) > keep {
		window = window[len(window)-keep:]
	}
	out := make([]models.ChatTurn, 0, len(window))
	for _, t := range window {
		if utf8.RuneCountInString(t.Content) > maxLen {
			t.Content = string([]rune(t.Content)[:maxLen]) + "..."
		}
		out = append(out, t)
	}
	return out
}
