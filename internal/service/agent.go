package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/maritime-tutor/backend/internal/tools"
)

// DefaultMaxToolCalls bounds the reasoning agent's tool loop.
const DefaultMaxToolCalls = 6

// AgentTurn is one entry in the conversation fed to the model each loop
// iteration: prior user/assistant messages plus synthetic tool-result turns.
type AgentTurn struct {
	Role    string // "user", "assistant", "tool"
	Content string
}

// AgentReply is the reasoning agent's final output for one chat turn.
type AgentReply struct {
	RawText    string // full last-model-turn text, including any <thinking> block
	ToolCalls  int
	HitToolCap bool
}

// toolCallRE extracts a single <tool_call>{...}</tool_call> block from a
// model response. The reasoning agent's sole tool-invocation convention —
// Gemini's REST/global code path has no native function-calling support, so
// tool calls are expressed in text and parsed back out, same as the
// <thinking> reasoning-trace convention the post-processor reads.
var toolCallRE = regexp.MustCompile(`(?s)<tool_call>\s*(\{.*?\})\s*</tool_call>`)

type toolCallPayload struct {
	Name   string                 `json:"name"`
	Params map[string]interface{} `json:"params"`
}

// ReasoningAgent runs the bounded tool-call loop: the model either answers
// directly or emits a tool call, which is dispatched through the shared
// ToolExecutor and fed back as a synthetic turn, until a final message
// appears or MaxToolCalls is reached.
type ReasoningAgent struct {
	client       GenAIClient
	executor     *tools.ToolExecutor
	maxToolCalls int
}

// NewReasoningAgent creates a ReasoningAgent with the default tool-call cap.
func NewReasoningAgent(client GenAIClient, executor *tools.ToolExecutor) *ReasoningAgent {
	return &ReasoningAgent{client: client, executor: executor, maxToolCalls: DefaultMaxToolCalls}
}

// SetMaxToolCalls overrides the default tool-call cap.
func (a *ReasoningAgent) SetMaxToolCalls(n int) {
	if n > 0 {
		a.maxToolCalls = n
	}
}

// Run drives the tool loop for one chat turn and returns the final model
// text (including any <thinking> block, left for the post-processor).
func (a *ReasoningAgent) Run(ctx context.Context, systemPrompt string, history []AgentTurn, userMessage string, callerRole string) (*AgentReply, error) {
	turns := append([]AgentTurn{}, history...)
	turns = append(turns, AgentTurn{Role: "user", Content: userMessage})

	calls := 0
	for {
		prompt := renderTurns(turns)
		if calls >= a.maxToolCalls {
			prompt += "\n\n=== You have reached the tool-call limit. Answer now using only what you have already retrieved. ==="
		}

		raw, err := a.client.GenerateContent(ctx, systemPrompt, prompt)
		if err != nil {
			return nil, fmt.Errorf("service.ReasoningAgent.Run: %w", err)
		}

		call, ok := extractToolCall(raw)
		if !ok || calls >= a.maxToolCalls {
			return &AgentReply{RawText: raw, ToolCalls: calls, HitToolCap: calls >= a.maxToolCalls && ok}, nil
		}

		calls++
		turns = append(turns, AgentTurn{Role: "assistant", Content: raw})

		turns = append(turns, AgentTurn{Role: "tool", Content: a.executeToolTurn(ctx, call, callerRole)})
	}
}

// StreamingGenAIClient is implemented by adapters offering incremental
// token delivery (gcpclient.GenAIAdapter). A client that only implements
// GenAIClient falls back to one non-streaming call per loop iteration,
// replayed through the same tag-aware scanner so callers see identical
// thinking/answer event shapes either way.
type StreamingGenAIClient interface {
	GenerateContentStream(ctx context.Context, systemPrompt, userPrompt string) (<-chan string, <-chan error)
}

// RunStream drives the same bounded tool-call loop as Run, but forwards
// thinking/answer text to the caller as it is classified rather than only
// returning the final accumulated reply. Tool-call content is never
// forwarded — it is always resolved locally before the loop continues.
func (a *ReasoningAgent) RunStream(ctx context.Context, systemPrompt string, history []AgentTurn, userMessage string, callerRole string, onThinking, onAnswer func(string)) (*AgentReply, error) {
	turns := append([]AgentTurn{}, history...)
	turns = append(turns, AgentTurn{Role: "user", Content: userMessage})

	calls := 0
	for {
		prompt := renderTurns(turns)
		if calls >= a.maxToolCalls {
			prompt += "\n\n=== You have reached the tool-call limit. Answer now using only what you have already retrieved. ==="
		}

		raw, err := a.streamOneIteration(ctx, systemPrompt, prompt, onThinking, onAnswer)
		if err != nil {
			return nil, fmt.Errorf("service.ReasoningAgent.RunStream: %w", err)
		}

		call, ok := extractToolCall(raw)
		if !ok || calls >= a.maxToolCalls {
			return &AgentReply{RawText: raw, ToolCalls: calls, HitToolCap: calls >= a.maxToolCalls && ok}, nil
		}

		calls++
		turns = append(turns, AgentTurn{Role: "assistant", Content: raw})
		turns = append(turns, AgentTurn{Role: "tool", Content: a.executeToolTurn(ctx, call, callerRole)})
	}
}

// streamOneIteration gets one model turn's raw text, forwarding it through
// a fresh tag-aware scanner either live (if the client supports streaming)
// or all at once (fallback for a plain GenAIClient).
func (a *ReasoningAgent) streamOneIteration(ctx context.Context, systemPrompt, prompt string, onThinking, onAnswer func(string)) (string, error) {
	scanner := newTagStreamScanner(onThinking, onAnswer)
	defer scanner.flush()

	streamClient, ok := a.client.(StreamingGenAIClient)
	if !ok {
		text, err := a.client.GenerateContent(ctx, systemPrompt, prompt)
		if err != nil {
			return "", err
		}
		scanner.feed(text)
		return text, nil
	}

	textCh, errCh := streamClient.GenerateContentStream(ctx, systemPrompt, prompt)
	var sb strings.Builder
	for chunk := range textCh {
		sb.WriteString(chunk)
		scanner.feed(chunk)
	}
	if err := <-errCh; err != nil {
		return "", err
	}
	return sb.String(), nil
}

// executeToolTurn dispatches one extracted tool call (the executor applies
// its own per-call timeout) and renders its outcome, or failure, as the
// synthetic tool turn fed back into the next loop iteration's prompt.
func (a *ReasoningAgent) executeToolTurn(ctx context.Context, call toolCallPayload, callerRole string) string {
	result, err := a.executor.Execute(ctx, call.Name, call.Params, callerRole)
	if err != nil {
		slog.Warn("[AGENT] tool call failed", "tool", call.Name, "error", err)
		return fmt.Sprintf("%s result: {\"error\": %q}", call.Name, err.Error())
	}
	data, marshalErr := json.Marshal(result.Data)
	if marshalErr != nil {
		return fmt.Sprintf(`%s result: {"error": "failed to encode tool result"}`, call.Name)
	}
	return fmt.Sprintf("%s result: %s", call.Name, string(data))
}

// extractToolCall looks for the agent's single tool-call convention.
func extractToolCall(raw string) (toolCallPayload, bool) {
	m := toolCallRE.FindStringSubmatch(raw)
	if m == nil {
		return toolCallPayload{}, false
	}
	var call toolCallPayload
	if err := json.Unmarshal([]byte(m[1]), &call); err != nil || call.Name == "" {
		return toolCallPayload{}, false
	}
	return call, true
}

// renderTurns flattens the turn history into the single text prompt the
// GenAIClient interface accepts.
func renderTurns(turns []AgentTurn) string {
	var sb strings.Builder
	for _, t := range turns {
		sb.WriteString(strings.ToUpper(t.Role))
		sb.WriteString(": ")
		sb.WriteString(t.Content)
		sb.WriteString("\n\n")
	}
	return sb.String()
}
