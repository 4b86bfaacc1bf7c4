package models

import "github.com/google/uuid"

// Profile is the caller identity resolved at the edge. Read-only for the
// lifetime of a request.
type Profile struct {
	UserID           uuid.UUID
	Email            string
	IsProTier        bool
	ProfileContext   string
	OpenRouterAPIKey string
}

// ProviderConfig is derived once at request entry from ChatSettings and the
// profile, and never mutated afterwards.
type ProviderConfig struct {
	SelectedModel   string
	IsPro           bool
	SimilarityTopK  int
	ProviderBaseURL string
	ProviderHeaders map[string]string
}
