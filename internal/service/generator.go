package service

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// GenAIClient abstracts the Gemini generative model for testability. Both
// the moderation gate and the reasoning agent are built against the same
// narrow text-in/text-out shape.
type GenAIClient interface {
	GenerateContent(ctx context.Context, systemPrompt string, userPrompt string) (string, error)
}

// PersonaRole selects the static, role-keyed tutoring persona.
type PersonaRole string

const (
	PersonaStudent PersonaRole = "student"
	PersonaTeacher PersonaRole = "teacher"
	PersonaAdmin   PersonaRole = "admin"
)

// GenerateOpts configures a single-shot completion call.
type GenerateOpts struct {
	Role         PersonaRole
	Instructions []string // standing instructions pulled from the user's memory facts
}

// GenerationResult is the output of a single completion call.
type GenerationResult struct {
	Text      string `json:"text"`
	ModelUsed string `json:"modelUsed"`
	LatencyMs int64  `json:"latencyMs"`
}

// GeneratorService produces plain-text completions from Gemini: persona
// system-prompt assembly plus a thin latency/model-tagging wrapper. The
// reasoning agent (agent.go) builds its own tool-aware prompts on top of the
// same GenAIClient rather than going through this service, since a tool
// loop needs per-turn prompt control this service doesn't expose.
type GeneratorService struct {
	client GenAIClient
	model  string
}

// NewGeneratorService creates a GeneratorService.
func NewGeneratorService(client GenAIClient, model string) *GeneratorService {
	return &GeneratorService{client: client, model: model}
}

// Generate produces a plain completion using a role-keyed persona prompt.
// Used for ambient, non-tutoring completions: insight extraction summaries,
// session title generation, and similar single-shot tasks.
func (s *GeneratorService) Generate(ctx context.Context, userPrompt string, opts GenerateOpts) (*GenerationResult, error) {
	if userPrompt == "" {
		return nil, fmt.Errorf("service.Generate: userPrompt is empty")
	}

	start := time.Now()
	systemPrompt := BuildPersonaPrompt(opts.Role, opts.Instructions)

	raw, err := s.client.GenerateContent(ctx, systemPrompt, userPrompt)
	if err != nil {
		return nil, fmt.Errorf("service.Generate: %w", err)
	}

	return &GenerationResult{
		Text:      strings.TrimSpace(raw),
		ModelUsed: s.model,
		LatencyMs: time.Since(start).Milliseconds(),
	}, nil
}

var personaPrompts = map[PersonaRole]string{
	PersonaStudent: `You are a patient maritime regulatory tutor helping a student understand COLREGs, SOLAS, and MARPOL.
Speak plainly, build intuition before precision, and check understanding with short follow-up questions.
Ground every regulatory claim in the retrieved source text — never speculate about rule content from memory.`,
	PersonaTeacher: `You are a maritime regulatory teaching assistant supporting an instructor.
Be precise and terse. Surface edge cases, drafting history, and cross-references an instructor would want when
preparing a lesson. Ground every regulatory claim in the retrieved source text — never speculate from memory.`,
	PersonaAdmin: `You are a maritime regulatory assistant operating in an administrative context.
Answer directly and include operational detail (document ids, page numbers, ingestion status) when relevant.
Ground every regulatory claim in the retrieved source text — never speculate from memory.`,
}

const defaultPersonaPrompt = `You are a maritime regulatory tutoring assistant covering COLREGs, SOLAS, and MARPOL.
Ground every regulatory claim in the retrieved source text — never speculate from memory.`

// BuildPersonaPrompt assembles the system prompt for a role, appending any
// standing instructions pulled from the user's remembered facts.
func BuildPersonaPrompt(role PersonaRole, instructions []string) string {
	base, ok := personaPrompts[role]
	if !ok {
		base = defaultPersonaPrompt
	}

	if len(instructions) == 0 {
		return base
	}

	var sb strings.Builder
	sb.WriteString(base)
	sb.WriteString("\n\n=== STANDING INSTRUCTIONS FROM USER ===\n")
	for _, instr := range instructions {
		sb.WriteString("- ")
		sb.WriteString(instr)
		sb.WriteString("\n")
	}
	return sb.String()
}
