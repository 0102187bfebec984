package model

import "time"

// ProfileAttributes is a tagged variant of known profile subfields plus a
// fallback map for anything the insight extractor writes that has no
// first-class field yet. Modelled this way (rather than a raw map) so
// callers can evolve the schema without breaking existing rows.
type ProfileAttributes struct {
	PreferredExplanationStyle string                 `json:"preferredExplanationStyle,omitempty"`
	PreferredLanguage         string                 `json:"preferredLanguage,omitempty"`
	Goals                     []string               `json:"goals,omitempty"`
	Extra                     map[string]interface{} `json:"extra,omitempty"`
}

// LearningProfile tracks a user's progress and preferences across sessions.
// Identity matches an external LMS id, not a locally-issued account.
type LearningProfile struct {
	UserID        string            `json:"userId"`
	Level         string            `json:"level"` // "beginner", "intermediate", "advanced"
	LearningStyle string            `json:"learningStyle"`
	WeakTopics    []string          `json:"weakTopics"`
	StrongTopics  []string          `json:"strongTopics"`
	SessionCount  int               `json:"sessionCount"`
	MessageCount  int               `json:"messageCount"`
	Attributes    ProfileAttributes `json:"attributes"`
	CreatedAt     time.Time         `json:"createdAt"`
	UpdatedAt     time.Time         `json:"updatedAt"`
}
