package model

import "time"

// FactType enumerates the kinds of facts the insight extractor writes about
// a user. Identity-like types are singleton (one row per user); the rest
// are list-valued and bounded by a per-user cap with LRU eviction.
type FactType string

const (
	FactUserIdentity    FactType = "user_identity"
	FactLearningStyle   FactType = "learning_style"
	FactTopicPreference FactType = "topic_preference"
	FactGoal            FactType = "goal"
	FactMisconception   FactType = "misconception"
	FactSelfAssessment  FactType = "self_assessment"
)

// SingletonFactTypes are check-before-write singleton types: at most one
// fact per (user_id, fact_type) exists at a time.
var SingletonFactTypes = map[FactType]bool{
	FactUserIdentity:  true,
	FactLearningStyle: true,
}

// MemoryFact is one entry in a user's managed insight list.
type MemoryFact struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	FactType  FactType  `json:"factType"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// MemoryFactCap is the default maximum number of facts retained per user.
const MemoryFactCap = 50
