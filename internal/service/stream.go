package service

import (
	"context"
	"strings"
	"time"

	"github.com/maritime-tutor/backend/internal/model"
	"github.com/maritime-tutor/backend/internal/tools"
)

// StreamEventType is one of the public SSE event kinds the multiplexer
// emits, in first-appearance order per turn: thinking*, answer*, sources(1),
// metadata(1), done(1), error(<=1, sent instead of the remaining
// sources/metadata/done; events already queued are still delivered).
type StreamEventType string

const (
	StreamThinking StreamEventType = "thinking"
	StreamAnswer   StreamEventType = "answer"
	StreamSources  StreamEventType = "sources"
	StreamMetadata StreamEventType = "metadata"
	StreamDone     StreamEventType = "done"
	StreamError    StreamEventType = "error"
)

// StreamEvent is one event on the public SSE stream.
type StreamEvent struct {
	Type     StreamEventType `json:"type"`
	Text     string          `json:"text,omitempty"`
	Sources  []Citation      `json:"sources,omitempty"`
	Evidence []string        `json:"evidenceImages,omitempty"`
	Metadata *TurnMetadata   `json:"metadata,omitempty"`
	Error    string          `json:"error,omitempty"`
}

// streamEventBufferSize is the multiplexer's per-stream back-pressure
// buffer. Once full, the oldest non-final (non done/error) event is
// dropped to make room — done and error are never dropped since they are
// always sent last and end the stream.
const streamEventBufferSize = 256

// streamPublisher is a single-writer channel wrapper implementing the
// multiplexer's drop-oldest back-pressure policy.
type streamPublisher struct {
	ch chan StreamEvent
}

func newStreamPublisher() *streamPublisher {
	return &streamPublisher{ch: make(chan StreamEvent, streamEventBufferSize)}
}

// publish enqueues ev, evicting the oldest buffered event first if the
// buffer is already full. Because thinking/answer deltas are always
// enqueued before sources/metadata/done/error within a turn, the oldest
// buffered event is never one of the final ones in practice.
func (p *streamPublisher) publish(ev StreamEvent) {
	for {
		select {
		case p.ch <- ev:
			return
		default:
		}
		select {
		case <-p.ch:
		default:
		}
	}
}

func (p *streamPublisher) close() {
	close(p.ch)
}

// tagStreamState tracks which XML-ish tag region the scanner is currently
// inside while classifying incoming raw model text as thinking, answer, or
// (silently swallowed) tool-call content.
type tagStreamState int

const (
	stateOutside tagStreamState = iota
	stateThinking
	stateToolCall
)

const (
	thinkingOpenTag  = "<thinking>"
	thinkingCloseTag = "</thinking>"
	toolCallOpenTag  = "<tool_call>"
)

// longestTagPrefix bounds how much trailing text the scanner must hold back
// in case it is the start of a tag split across two incoming chunks.
var longestTagPrefix = maxLen(thinkingOpenTag, thinkingCloseTag, toolCallOpenTag) - 1

func maxLen(strs ...string) int {
	m := 0
	for _, s := range strs {
		if len(s) > m {
			m = len(s)
		}
	}
	return m
}

// tagStreamScanner incrementally classifies a model's raw streamed text into
// thinking and answer deltas, and detects entry into a <tool_call> block so
// the caller can stop forwarding answer text for the remainder of that
// reasoning segment. One scanner is used per reasoning-agent loop iteration.
type tagStreamScanner struct {
	state      tagStreamState
	pending    string
	onThinking func(string)
	onAnswer   func(string)
}

func newTagStreamScanner(onThinking, onAnswer func(string)) *tagStreamScanner {
	return &tagStreamScanner{onThinking: onThinking, onAnswer: onAnswer}
}

// feed classifies one incoming chunk of raw text. It may emit zero or more
// thinking/answer events via the scanner's callbacks.
func (s *tagStreamScanner) feed(chunk string) {
	s.pending += chunk
	for s.drainOnce() {
	}
}

// drainOnce attempts one classification step against s.pending, returning
// true if it should be called again (more of pending was consumed).
func (s *tagStreamScanner) drainOnce() bool {
	switch s.state {
	case stateToolCall:
		s.pending = "" // tool-call content is never forwarded to the public stream
		return false

	case stateThinking:
		if idx := strings.Index(s.pending, thinkingCloseTag); idx >= 0 {
			if idx > 0 {
				s.onThinking(s.pending[:idx])
			}
			s.pending = s.pending[idx+len(thinkingCloseTag):]
			s.state = stateOutside
			return true
		}
		s.flushHoldingBack(s.onThinking)
		return false

	default: // stateOutside
		thinkIdx := strings.Index(s.pending, thinkingOpenTag)
		toolIdx := strings.Index(s.pending, toolCallOpenTag)

		switch {
		case toolIdx >= 0 && (thinkIdx < 0 || toolIdx < thinkIdx):
			if toolIdx > 0 {
				s.onAnswer(s.pending[:toolIdx])
			}
			s.pending = ""
			s.state = stateToolCall
			return false

		case thinkIdx >= 0:
			if thinkIdx > 0 {
				s.onAnswer(s.pending[:thinkIdx])
			}
			s.pending = s.pending[thinkIdx+len(thinkingOpenTag):]
			s.state = stateThinking
			return true

		default:
			s.flushHoldingBack(s.onAnswer)
			return false
		}
	}
}

// flushHoldingBack emits all of pending except a trailing slice short
// enough to still be the start of a tag the next chunk might complete.
func (s *tagStreamScanner) flushHoldingBack(emit func(string)) {
	if len(s.pending) <= longestTagPrefix {
		return
	}
	cut := len(s.pending) - longestTagPrefix
	if cut > 0 {
		emit(s.pending[:cut])
	}
	s.pending = s.pending[cut:]
}

// flush emits anything left in pending unconditionally, called once one
// reasoning-agent loop iteration has no more chunks.
func (s *tagStreamScanner) flush() {
	if s.pending == "" {
		return
	}
	switch s.state {
	case stateThinking:
		s.onThinking(s.pending)
	case stateOutside:
		s.onAnswer(s.pending)
	}
	s.pending = ""
}

// HandleTurnStream runs HandleTurn's moderation/context/intent steps, then
// drives the reasoning agent's tool-call loop with live token forwarding
// instead of a single blocking call, publishing StreamEvents as they occur.
// The returned channel is closed after the terminal done/error event.
func (o *TurnOrchestrator) HandleTurnStream(ctx context.Context, userID, sessionID string, role PersonaRole, message string) <-chan StreamEvent {
	pub := newStreamPublisher()
	go o.runStream(ctx, pub, userID, sessionID, role, message)
	return pub.ch
}

func (o *TurnOrchestrator) runStream(ctx context.Context, pub *streamPublisher, userID, sessionID string, role PersonaRole, message string) {
	ctx, cancel := context.WithTimeout(ctx, wholeTurnTimeout)
	defer cancel()
	defer pub.close()

	lock := o.sessionLock(sessionID)
	lock.Lock()
	defer lock.Unlock()

	start := time.Now()

	if _, err := o.chats.UpsertSession(ctx, sessionID, userID); err != nil {
		pub.publish(StreamEvent{Type: StreamError, Error: err.Error()})
		return
	}

	fingerprint := fingerprintMessage(message)
	decision, err := o.moderation.Check(ctx, message, fingerprint)
	if err != nil {
		pub.publish(StreamEvent{Type: StreamError, Error: err.Error()})
		return
	}
	if decision.Verdict == VerdictBlock {
		o.streamBlockedTurn(ctx, pub, userID, sessionID, message, decision, start)
		return
	}

	window, err := o.chats.LoadRecentMessages(ctx, sessionID, conversationWindowLimit)
	if err != nil {
		pub.publish(StreamEvent{Type: StreamError, Error: err.Error()})
		return
	}
	existingFacts, err := o.facts.ListFacts(ctx, userID, model.MemoryFactCap)
	if err != nil {
		pub.publish(StreamEvent{Type: StreamError, Error: err.Error()})
		return
	}
	var profile *model.LearningProfile
	if o.profiles != nil {
		profile, err = o.profiles.GetProfile(ctx, userID)
		if err != nil {
			pub.publish(StreamEvent{Type: StreamError, Error: err.Error()})
			return
		}
	}

	o.mu.Lock()
	hint := o.lastIntent[sessionID]
	o.mu.Unlock()
	intentResult := ClassifyIntent(message, hint)

	systemPrompt := o.buildSystemPrompt(role, message, existingFacts, window, intentResult, profile)

	collector := tools.NewTurnCollector()
	executor, usedToolNames := o.buildToolExecutor(collector, userID, role, intentResult)
	agent := NewReasoningAgent(o.llm, executor)
	agent.SetMaxToolCalls(o.maxToolCalls)

	agentTurns := renderHistoryTurns(window)

	var answerBuf strings.Builder
	reply, err := agent.RunStream(ctx, systemPrompt, agentTurns, message, string(role),
		func(text string) { pub.publish(StreamEvent{Type: StreamThinking, Text: text}) },
		func(text string) {
			answerBuf.WriteString(text)
			pub.publish(StreamEvent{Type: StreamAnswer, Text: text})
		},
	)
	if err != nil {
		pub.publish(StreamEvent{Type: StreamError, Error: err.Error()})
		return
	}

	processed := PostProcess(reply.RawText, nil)
	sources, evidenceImages := snippetsToSources(collector.Snippets())

	if err := o.chats.AppendMessage(ctx, &model.ChatMessage{SessionID: sessionID, UserID: userID, Role: model.RoleUser, Content: message}); err != nil {
		pub.publish(StreamEvent{Type: StreamError, Error: err.Error()})
		return
	}
	if err := o.chats.AppendMessage(ctx, &model.ChatMessage{SessionID: sessionID, UserID: userID, Role: model.RoleAssistant, Content: processed.Answer}); err != nil {
		pub.publish(StreamEvent{Type: StreamError, Error: err.Error()})
		return
	}

	o.mu.Lock()
	o.lastIntent[sessionID] = intentResult.Intent
	o.mu.Unlock()

	o.fireAndForgetInsights(userID, message, processed.Answer, existingFacts)
	if o.profiles != nil {
		go func() {
			bgCtx, bgCancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer bgCancel()
			o.profiles.IncrementCounters(bgCtx, userID, 0, 1)
		}()
	}

	pub.publish(StreamEvent{Type: StreamSources, Sources: sources, Evidence: evidenceImages})
	pub.publish(StreamEvent{Type: StreamMetadata, Metadata: &TurnMetadata{
		AgentType:        "reasoning_agent",
		ProcessingTimeMs: time.Since(start).Milliseconds(),
		ToolsUsed:        usedToolNames,
	}})
	pub.publish(StreamEvent{Type: StreamDone})
}

func (o *TurnOrchestrator) streamBlockedTurn(ctx context.Context, pub *streamPublisher, userID, sessionID, message string, decision ModerationDecision, start time.Time) {
	reason := decision.Reason
	if err := o.chats.AppendMessage(ctx, &model.ChatMessage{
		SessionID: sessionID, UserID: userID, Role: model.RoleUser, Content: message,
		IsBlocked: true, BlockReason: &reason,
	}); err != nil {
		pub.publish(StreamEvent{Type: StreamError, Error: err.Error()})
		return
	}
	apology := "I can't help with that request. If you have a maritime regulatory question, I'm glad to help with that instead."
	if err := o.chats.AppendMessage(ctx, &model.ChatMessage{SessionID: sessionID, UserID: userID, Role: model.RoleAssistant, Content: apology}); err != nil {
		pub.publish(StreamEvent{Type: StreamError, Error: err.Error()})
		return
	}
	pub.publish(StreamEvent{Type: StreamAnswer, Text: apology})
	pub.publish(StreamEvent{Type: StreamSources, Sources: []Citation{}})
	pub.publish(StreamEvent{Type: StreamMetadata, Metadata: &TurnMetadata{
		AgentType:        "moderation_block",
		ProcessingTimeMs: time.Since(start).Milliseconds(),
	}})
	pub.publish(StreamEvent{Type: StreamDone})
}
