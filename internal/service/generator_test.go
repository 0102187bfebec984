package service

import (
	"context"
	"errors"
	"strings"
	"testing"
)

type mockGenAIClient struct {
	response       string
	err            error
	lastSystem     string
	lastUserPrompt string
}

func (m *mockGenAIClient) GenerateContent(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	m.lastSystem = systemPrompt
	m.lastUserPrompt = userPrompt
	if m.err != nil {
		return "", m.err
	}
	return m.response, nil
}

func TestGenerate_Success(t *testing.T) {
	client := &mockGenAIClient{response: "  A give-way vessel must take early and substantial action.  "}
	svc := NewGeneratorService(client, "gemini-2.0-flash")

	result, err := svc.Generate(context.Background(), "What must a give-way vessel do?", GenerateOpts{Role: PersonaStudent})
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if result.Text != "A give-way vessel must take early and substantial action." {
		t.Errorf("Text = %q, want trimmed response", result.Text)
	}
	if result.ModelUsed != "gemini-2.0-flash" {
		t.Errorf("ModelUsed = %q, want gemini-2.0-flash", result.ModelUsed)
	}
}

func TestGenerate_EmptyPromptErrors(t *testing.T) {
	svc := NewGeneratorService(&mockGenAIClient{}, "gemini-2.0-flash")
	if _, err := svc.Generate(context.Background(), "", GenerateOpts{}); err == nil {
		t.Error("expected error for empty prompt")
	}
}

func TestGenerate_ClientErrorPropagates(t *testing.T) {
	client := &mockGenAIClient{err: errors.New("upstream down")}
	svc := NewGeneratorService(client, "gemini-2.0-flash")
	if _, err := svc.Generate(context.Background(), "hello", GenerateOpts{}); err == nil {
		t.Error("expected error to propagate")
	}
}

func TestGenerate_UsesPersonaSystemPrompt(t *testing.T) {
	client := &mockGenAIClient{response: "ok"}
	svc := NewGeneratorService(client, "gemini-2.0-flash")

	if _, err := svc.Generate(context.Background(), "hi", GenerateOpts{Role: PersonaTeacher}); err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if !strings.Contains(client.lastSystem, "teaching assistant") {
		t.Errorf("system prompt = %q, want teacher persona content", client.lastSystem)
	}
}

func TestBuildPersonaPrompt_UnknownRoleFallsBackToDefault(t *testing.T) {
	prompt := BuildPersonaPrompt(PersonaRole("bogus"), nil)
	if prompt != defaultPersonaPrompt {
		t.Errorf("expected default persona prompt for unknown role, got %q", prompt)
	}
}

func TestBuildPersonaPrompt_AppendsStandingInstructions(t *testing.T) {
	prompt := BuildPersonaPrompt(PersonaStudent, []string{"prefers short answers", "is studying for an exam"})
	if !strings.Contains(prompt, "STANDING INSTRUCTIONS") {
		t.Error("expected standing instructions header")
	}
	if !strings.Contains(prompt, "prefers short answers") || !strings.Contains(prompt, "is studying for an exam") {
		t.Error("expected both instructions present")
	}
}

func TestBuildPersonaPrompt_NoInstructionsOmitsHeader(t *testing.T) {
	prompt := BuildPersonaPrompt(PersonaAdmin, nil)
	if strings.Contains(prompt, "STANDING INSTRUCTIONS") {
		t.Error("did not expect standing instructions header with no instructions")
	}
}
