package service

import (
	"context"
	"crypto/sha256"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/maritime-tutor/backend/internal/model"
	"github.com/maritime-tutor/backend/internal/tools"
)

// maxConcurrentInsightExtractions bounds how many fire-and-forget insight
// extraction goroutines may run at once across every session, so a burst of
// turns can't open unbounded concurrent LLM calls against the same backend
// the foreground turns are also using.
const maxConcurrentInsightExtractions = 16

var insightExtractionSem = semaphore.NewWeighted(maxConcurrentInsightExtractions)

// ChatStore abstracts session/message persistence for the orchestrator.
type ChatStore interface {
	UpsertSession(ctx context.Context, sessionID, userID string) (*model.ChatSession, error)
	AppendMessage(ctx context.Context, msg *model.ChatMessage) error
	LoadRecentMessages(ctx context.Context, sessionID string, limit int) ([]model.ChatMessage, error)
}

// ProfileStore abstracts learning-profile persistence for the orchestrator.
type ProfileStore interface {
	GetProfile(ctx context.Context, userID string) (*model.LearningProfile, error)
	IncrementCounters(ctx context.Context, userID string, sessions, messages int) error
}

// TurnMetadata is the per-turn bookkeeping surfaced alongside the answer.
type TurnMetadata struct {
	AgentType        string   `json:"agentType"`
	ProcessingTimeMs int64    `json:"processingTimeMs"`
	ToolsUsed        []string `json:"toolsUsed"`
}

// TurnResult is HandleTurn's output.
type TurnResult struct {
	Answer             string       `json:"answer"`
	Thinking           string       `json:"thinking,omitempty"`
	Sources            []Citation   `json:"sources"`
	EvidenceImages     []string     `json:"evidenceImages"`
	SuggestedQuestions []string     `json:"suggestedQuestions"`
	Metadata           TurnMetadata `json:"metadata"`
}

const conversationWindowLimit = 50
const wholeTurnTimeout = 120 * time.Second

// lowConfidenceRelevanceThreshold is the minimum fused relevance score a
// KNOWLEDGE turn's best citation must clear before the tutor will answer
// from it instead of declining.
const lowConfidenceRelevanceThreshold = 0.35

// LowConfidenceMetrics counts turns where the tutor declined to answer for
// lack of grounded retrieval evidence.
type LowConfidenceMetrics interface {
	IncrementLowConfidenceResponse()
}

// lowConfidenceConfidence reports whether sources ground a KNOWLEDGE turn
// strongly enough to answer from, returning the confidence to report when
// they don't.
func lowConfidenceConfidence(sources []Citation) (float64, bool) {
	if len(sources) == 0 {
		return 0, true
	}
	best := 0.0
	for _, s := range sources {
		if s.RelevanceScore > best {
			best = s.RelevanceScore
		}
	}
	if best < lowConfidenceRelevanceThreshold {
		return best, true
	}
	return best, false
}

// TurnOrchestrator wires moderation, memory, intent classification, the
// reasoning agent, and persistence into one HandleTurn call per §4.7.
type TurnOrchestrator struct {
	moderation *ModerationGate
	chats      ChatStore
	facts      tools.FactStore
	profiles   ProfileStore
	llm        GenAIClient
	retriever  *RetrieverService
	metrics    LowConfidenceMetrics

	maxToolCalls int

	mu           sync.Mutex
	lastIntent   map[string]IntentType // session_id -> last classified intent, in-memory only
	sessionLocks map[string]*sync.Mutex
}

// NewTurnOrchestrator creates a TurnOrchestrator.
func NewTurnOrchestrator(moderation *ModerationGate, chats ChatStore, facts tools.FactStore, profiles ProfileStore, llm GenAIClient, retriever *RetrieverService) *TurnOrchestrator {
	return &TurnOrchestrator{
		moderation:   moderation,
		chats:        chats,
		facts:        facts,
		profiles:     profiles,
		llm:          llm,
		retriever:    retriever,
		maxToolCalls: DefaultMaxToolCalls,
		lastIntent:   make(map[string]IntentType),
		sessionLocks: make(map[string]*sync.Mutex),
	}
}

// SetMetrics wires the Prometheus-backed low-confidence counter. Optional —
// a nil metrics sink (the default) simply skips recording.
func (o *TurnOrchestrator) SetMetrics(m LowConfidenceMetrics) {
	o.metrics = m
}

func (o *TurnOrchestrator) sessionLock(sessionID string) *sync.Mutex {
	o.mu.Lock()
	defer o.mu.Unlock()
	lock, ok := o.sessionLocks[sessionID]
	if !ok {
		lock = &sync.Mutex{}
		o.sessionLocks[sessionID] = lock
	}
	return lock
}

// HandleTurn implements the turn orchestrator's 10-step algorithm.
func (o *TurnOrchestrator) HandleTurn(ctx context.Context, userID, sessionID string, role PersonaRole, message string) (*TurnResult, error) {
	ctx, cancel := context.WithTimeout(ctx, wholeTurnTimeout)
	defer cancel()

	lock := o.sessionLock(sessionID)
	lock.Lock()
	defer lock.Unlock()

	start := time.Now()

	if _, err := o.chats.UpsertSession(ctx, sessionID, userID); err != nil {
		return nil, fmt.Errorf("service.TurnOrchestrator.HandleTurn: %w", err)
	}

	// 1. Moderation.
	fingerprint := fingerprintMessage(message)
	decision, err := o.moderation.Check(ctx, message, fingerprint)
	if err != nil {
		return nil, fmt.Errorf("service.TurnOrchestrator.HandleTurn: moderation: %w", err)
	}
	if decision.Verdict == VerdictBlock {
		return o.handleBlockedTurn(ctx, userID, sessionID, message, decision, start)
	}

	// 2. Load conversation window, facts, profile.
	window, err := o.chats.LoadRecentMessages(ctx, sessionID, conversationWindowLimit)
	if err != nil {
		return nil, fmt.Errorf("service.TurnOrchestrator.HandleTurn: load window: %w", err)
	}
	existingFacts, err := o.facts.ListFacts(ctx, userID, model.MemoryFactCap)
	if err != nil {
		return nil, fmt.Errorf("service.TurnOrchestrator.HandleTurn: list facts: %w", err)
	}
	var profile *model.LearningProfile
	if o.profiles != nil {
		profile, err = o.profiles.GetProfile(ctx, userID)
		if err != nil {
			return nil, fmt.Errorf("service.TurnOrchestrator.HandleTurn: get profile: %w", err)
		}
	}

	// 3. Classify intent.
	o.mu.Lock()
	hint := o.lastIntent[sessionID]
	o.mu.Unlock()
	intentResult := ClassifyIntent(message, hint)

	// 4. Build system prompt.
	systemPrompt := o.buildSystemPrompt(role, message, existingFacts, window, intentResult, profile)

	// 5. Run the reasoning agent with the selected tool set.
	collector := tools.NewTurnCollector()
	executor, usedToolNames := o.buildToolExecutor(collector, userID, role, intentResult)
	agent := NewReasoningAgent(o.llm, executor)
	agent.SetMaxToolCalls(o.maxToolCalls)

	agentTurns := renderHistoryTurns(window)
	reply, err := agent.Run(ctx, systemPrompt, agentTurns, message, string(role))
	if err != nil {
		return nil, fmt.Errorf("service.TurnOrchestrator.HandleTurn: agent: %w", err)
	}

	// 6. Post-process.
	processed := PostProcess(reply.RawText, nil)

	// 7. Collect sources/evidenceImages from the turn-scoped collector.
	sources, evidenceImages := snippetsToSources(collector.Snippets())

	// 7b. Decline rather than speculate when a knowledge question surfaced no
	// grounded regulatory text, or only weakly relevant text.
	if intentResult.Intent == IntentKnowledge {
		if lowConfidence, ok := lowConfidenceConfidence(sources); ok {
			processed.Answer = BuildLowConfidenceResponse(lowConfidence).Message
			if o.metrics != nil {
				o.metrics.IncrementLowConfidenceResponse()
			}
		}
	}

	// 8. Persist user + assistant messages.
	if err := o.chats.AppendMessage(ctx, &model.ChatMessage{SessionID: sessionID, UserID: userID, Role: model.RoleUser, Content: message}); err != nil {
		return nil, fmt.Errorf("service.TurnOrchestrator.HandleTurn: persist user msg: %w", err)
	}
	if err := o.chats.AppendMessage(ctx, &model.ChatMessage{SessionID: sessionID, UserID: userID, Role: model.RoleAssistant, Content: processed.Answer}); err != nil {
		return nil, fmt.Errorf("service.TurnOrchestrator.HandleTurn: persist assistant msg: %w", err)
	}

	o.mu.Lock()
	o.lastIntent[sessionID] = intentResult.Intent
	o.mu.Unlock()

	// 9. Fire-and-forget: insight extraction and profile counters.
	o.fireAndForgetInsights(userID, message, processed.Answer, existingFacts)
	if o.profiles != nil {
		go func() {
			bgCtx, bgCancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer bgCancel()
			if err := o.profiles.IncrementCounters(bgCtx, userID, 0, 1); err != nil {
				slog.Warn("[ORCHESTRATOR] profile counter increment failed", "error", err)
			}
		}()
	}

	// 10. Return.
	return &TurnResult{
		Answer:             processed.Answer,
		Thinking:           processed.Thinking,
		Sources:            sources,
		EvidenceImages:     evidenceImages,
		SuggestedQuestions: suggestedQuestions(intentResult),
		Metadata: TurnMetadata{
			AgentType:        "reasoning_agent",
			ProcessingTimeMs: time.Since(start).Milliseconds(),
			ToolsUsed:        usedToolNames,
		},
	}, nil
}

func (o *TurnOrchestrator) handleBlockedTurn(ctx context.Context, userID, sessionID, message string, decision ModerationDecision, start time.Time) (*TurnResult, error) {
	reason := decision.Reason
	if err := o.chats.AppendMessage(ctx, &model.ChatMessage{
		SessionID: sessionID, UserID: userID, Role: model.RoleUser, Content: message,
		IsBlocked: true, BlockReason: &reason,
	}); err != nil {
		return nil, fmt.Errorf("service.TurnOrchestrator.handleBlockedTurn: persist blocked msg: %w", err)
	}

	apology := "I can't help with that request. If you have a maritime regulatory question, I'm glad to help with that instead."
	if err := o.chats.AppendMessage(ctx, &model.ChatMessage{SessionID: sessionID, UserID: userID, Role: model.RoleAssistant, Content: apology}); err != nil {
		return nil, fmt.Errorf("service.TurnOrchestrator.handleBlockedTurn: persist apology: %w", err)
	}

	return &TurnResult{
		Answer:  apology,
		Sources: []Citation{},
		Metadata: TurnMetadata{
			AgentType:        "moderation_block",
			ProcessingTimeMs: time.Since(start).Milliseconds(),
		},
	}, nil
}

// buildToolExecutor assembles the tool set per §4.7 step 5: retrieval and
// memory tools always; learning tools only for role=student, intent=TEACHING.
func (o *TurnOrchestrator) buildToolExecutor(collector *tools.TurnCollector, userID string, role PersonaRole, intent IntentResult) (*tools.ToolExecutor, []string) {
	executor := tools.NewToolExecutor()
	registry := tools.NewToolRegistry()

	register := func(name string, tool tools.Tool, category tools.ToolCategory, access tools.ToolAccess, description string, roles []string) {
		executor.Register(name, tool)
		registry.Register(name, tool, category, access, description, roles)
	}

	register("retrieve", tools.NewRetrieveTool(NewRetrieverToolAdapter(o.retriever), collector),
		tools.CategoryRAG, tools.AccessRead, "search the maritime knowledge base for relevant passages", nil)
	register("save_user_info", tools.NewSaveUserInfoTool(o.facts, userID),
		tools.CategoryMemory, tools.AccessWrite, "store a fact the user shared about themselves", nil)
	register("get_user_info", tools.NewGetUserInfoTool(o.facts, userID),
		tools.CategoryMemory, tools.AccessRead, "look up a previously stored fact about the user", nil)
	register("remember", tools.NewRememberTool(o.facts, userID),
		tools.CategoryMemory, tools.AccessWrite, "remember something the user explicitly asked to be remembered", nil)
	register("forget", tools.NewForgetTool(o.facts, userID),
		tools.CategoryMemoryControl, tools.AccessWrite, "forget a specific remembered fact on explicit request", nil)
	register("list_memories", tools.NewListMemoriesTool(o.facts, userID),
		tools.CategoryMemoryControl, tools.AccessRead, "list everything currently remembered about the user", nil)
	register("clear_all_memories", tools.NewClearAllMemoriesTool(o.facts, userID),
		tools.CategoryMemoryControl, tools.AccessWrite, "erase every remembered fact about the user on explicit request", nil)

	if role == PersonaStudent && intent.Intent == IntentTeaching {
		register("schedule_review", tools.NewScheduleReviewTool(o.facts, userID),
			tools.CategoryLearning, tools.AccessWrite, "schedule a spaced-repetition review of a weak topic", []string{"student"})
		register("self_assess", tools.NewSelfAssessTool(o.facts, userID),
			tools.CategoryLearning, tools.AccessWrite, "record the student's self-assessed confidence on a topic", []string{"student"})
	}

	return executor, registry.ForRole(string(role))
}

var pronounFirstPersonRE = regexp.MustCompile(`(?i)\bI\s+(am|prefer|use)\s+(she|he|they)\b`)

// buildSystemPrompt composes the persona, pronoun instructions, known-facts
// summary, proactive-continuation hint, and the reasoning-trace instruction.
func (o *TurnOrchestrator) buildSystemPrompt(role PersonaRole, message string, facts []model.MemoryFact, window []model.ChatMessage, intent IntentResult, profile *model.LearningProfile) string {
	var sb strings.Builder
	sb.WriteString(BuildPersonaPrompt(role, nil))

	if m := pronounFirstPersonRE.FindStringSubmatch(message); m != nil {
		sb.WriteString(fmt.Sprintf("\n\nThe user uses %s/them-style pronouns when referring to themselves — mirror their stated pronoun preference.\n", m[2]))
	}

	if summary := KnownFactsSummary(facts); summary != "" {
		sb.WriteString("\n\n")
		sb.WriteString(summary)
	}

	if profile != nil && len(profile.WeakTopics) > 0 {
		sb.WriteString(fmt.Sprintf("\n\nThis student has previously struggled with: %s. Take extra care to check understanding on these topics.\n", strings.Join(profile.WeakTopics, ", ")))
	}

	if hint := BuildContinuationHint(AnalyzeConversation(window, message)); hint != "" {
		sb.WriteString("\n\n")
		sb.WriteString(hint)
	}

	sb.WriteString("\n\nBefore answering, think through your plan inside <thinking>...</thinking> tags, then give your public answer after the closing tag. The content inside <thinking> is never shown to the user directly.")

	return sb.String()
}

func renderHistoryTurns(window []model.ChatMessage) []AgentTurn {
	turns := make([]AgentTurn, 0, len(window))
	for _, m := range window {
		role := "user"
		if m.Role == model.RoleAssistant {
			role = "assistant"
		}
		turns = append(turns, AgentTurn{Role: role, Content: m.Content})
	}
	return turns
}

func snippetsToSources(snippets []tools.RetrieveSnippet) ([]Citation, []string) {
	sources := make([]Citation, 0, len(snippets))
	for _, s := range snippets {
		sources = append(sources, Citation{
			DocumentID:     s.DocumentID,
			PageNumber:     s.PageNumber,
			ContentSnippet: s.Content,
			RelevanceScore: s.Score,
		})
	}
	return sources, []string{}
}

func suggestedQuestions(intent IntentResult) []string {
	switch intent.Intent {
	case IntentTeaching:
		return []string{
			"Can you give me a worked example?",
			"What's a common mistake students make here?",
			"How does this connect to what we covered before?",
		}
	case IntentKnowledge:
		return []string{
			"Is there a related rule I should also know about?",
			"Can you explain the reasoning behind this rule?",
			"What happens if this rule is violated?",
		}
	default:
		return []string{
			"What would you like to learn about COLREGs, SOLAS, or MARPOL today?",
			"Do you have a specific rule or scenario in mind?",
			"Would you like a quick overview of a topic?",
		}
	}
}

func (o *TurnOrchestrator) fireAndForgetInsights(userID, userMessage, assistantMessage string, existingFacts []model.MemoryFact) {
	if !insightExtractionSem.TryAcquire(1) {
		slog.Warn("[ORCHESTRATOR] insight extraction dropped: concurrency cap reached", "userID", userID)
		return
	}
	go func() {
		defer insightExtractionSem.Release(1)

		bgCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		candidates, err := ExtractCandidateFacts(bgCtx, o.llm, userMessage, assistantMessage, existingFacts)
		if err != nil {
			slog.Warn("[ORCHESTRATOR] insight extraction failed", "error", err)
			return
		}
		if err := ApplyCandidateFacts(bgCtx, o.facts, userID, candidates); err != nil {
			slog.Warn("[ORCHESTRATOR] applying candidate facts failed", "error", err)
		}
	}()
}

func fingerprintMessage(message string) string {
	normalized := strings.Join(strings.Fields(strings.ToLower(strings.TrimSpace(message))), " ")
	h := sha256.Sum256([]byte(normalized))
	return fmt.Sprintf("%x", h)
}
