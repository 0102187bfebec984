package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/maritime-tutor/backend/internal/model"
)

// FactStore abstracts the managed insight list's persistence, satisfied
// structurally by repository.MemoryRepo.
type FactStore interface {
	ListFacts(ctx context.Context, userID string, limit int) ([]model.MemoryFact, error)
	UpsertSingletonFact(ctx context.Context, userID string, factType model.FactType, content string) error
	InsertFact(ctx context.Context, userID string, factType model.FactType, content string) error
	EvictOldestIfOverCap(ctx context.Context, userID string, cap int) error
}

// FactCandidate is one fact the extractor proposes for a user.
type FactCandidate struct {
	FactType model.FactType `json:"factType"`
	Content  string         `json:"content"`
}

const insightExtractionSystemPrompt = `You extract durable facts worth remembering about a maritime tutoring student from one conversation turn.
Only extract facts that will still matter in future conversations: identity/name, preferred learning style, explicit goals, recurring misconceptions, or topic preferences.
Do not extract facts about the regulatory content itself — only facts about the user.
Respond with JSON only: {"facts": [{"factType": "user_identity"|"learning_style"|"topic_preference"|"goal"|"misconception", "content": "..."}]}
Return {"facts": []} if nothing durable was said.`

// ExtractCandidateFacts calls the LLM to produce candidate facts from the
// last user+assistant pair plus a summary of the user's existing facts —
// the extractor's only job is proposing candidates; check-before-write
// happens in ApplyCandidateFacts.
func ExtractCandidateFacts(ctx context.Context, llm GenAIClient, userMessage, assistantMessage string, existing []model.MemoryFact) ([]FactCandidate, error) {
	var sb strings.Builder
	sb.WriteString("=== EXISTING FACTS ===\n")
	for _, f := range existing {
		sb.WriteString(fmt.Sprintf("- [%s] %s\n", f.FactType, f.Content))
	}
	sb.WriteString("\n=== LATEST TURN ===\nUSER: ")
	sb.WriteString(userMessage)
	sb.WriteString("\nASSISTANT: ")
	sb.WriteString(assistantMessage)

	raw, err := llm.GenerateContent(ctx, insightExtractionSystemPrompt, sb.String())
	if err != nil {
		return nil, fmt.Errorf("service.ExtractCandidateFacts: %w", err)
	}

	cleaned := strings.TrimSpace(raw)
	if idx := strings.Index(cleaned, "{"); idx >= 0 {
		if end := strings.LastIndex(cleaned, "}"); end > idx {
			cleaned = cleaned[idx : end+1]
		}
	}

	var parsed struct {
		Facts []FactCandidate `json:"facts"`
	}
	if err := json.Unmarshal([]byte(cleaned), &parsed); err != nil {
		slog.Warn("[MEMORY] unparseable extraction response, dropping turn's candidates", "error", err)
		return nil, nil
	}
	return parsed.Facts, nil
}

// ApplyCandidateFacts implements the managed insight list's check-before-write
// rule (§4.6) for each candidate, then evicts down to the per-user cap.
func ApplyCandidateFacts(ctx context.Context, store FactStore, userID string, candidates []FactCandidate) error {
	if len(candidates) == 0 {
		return nil
	}

	existing, err := store.ListFacts(ctx, userID, model.MemoryFactCap)
	if err != nil {
		return fmt.Errorf("service.ApplyCandidateFacts: list: %w", err)
	}

	for _, c := range candidates {
		if c.Content == "" || c.FactType == "" {
			continue
		}
		normalized := normalizeFactContent(c.Content)

		if model.SingletonFactTypes[c.FactType] {
			if dup := findSingleton(existing, c.FactType); dup != nil && normalizeFactContent(dup.Content) == normalized {
				continue // IGNORE: same type, same normalized content
			}
			if err := store.UpsertSingletonFact(ctx, userID, c.FactType, c.Content); err != nil {
				return fmt.Errorf("service.ApplyCandidateFacts: upsert: %w", err)
			}
			continue
		}

		if isDuplicateListFact(existing, c.FactType, normalized) {
			continue // IGNORE: semantic duplicate of an existing list entry
		}
		if err := store.InsertFact(ctx, userID, c.FactType, c.Content); err != nil {
			return fmt.Errorf("service.ApplyCandidateFacts: insert: %w", err)
		}
	}

	if err := store.EvictOldestIfOverCap(ctx, userID, model.MemoryFactCap); err != nil {
		return fmt.Errorf("service.ApplyCandidateFacts: evict: %w", err)
	}
	return nil
}

func findSingleton(facts []model.MemoryFact, factType model.FactType) *model.MemoryFact {
	for i := range facts {
		if facts[i].FactType == factType {
			return &facts[i]
		}
	}
	return nil
}

func isDuplicateListFact(facts []model.MemoryFact, factType model.FactType, normalizedContent string) bool {
	for _, f := range facts {
		if f.FactType == factType && normalizeFactContent(f.Content) == normalizedContent {
			return true
		}
	}
	return false
}

func normalizeFactContent(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// KnownFactsSummary renders the current fact list as the short "what we know
// about this user" prompt section.
func KnownFactsSummary(facts []model.MemoryFact) string {
	if len(facts) == 0 {
		return ""
	}
	var sb strings.Builder
	sb.WriteString("=== WHAT WE KNOW ABOUT THIS USER ===\n")
	for _, f := range facts {
		sb.WriteString("- ")
		sb.WriteString(f.Content)
		sb.WriteString("\n")
	}
	return sb.String()
}
