package service

import (
	"context"
	"strings"
	"testing"

	"github.com/maritime-tutor/backend/internal/model"
)

func TestTagStreamScanner_PlainTextAllAnswer(t *testing.T) {
	var answer strings.Builder
	scanner := newTagStreamScanner(func(string) { t.Fatal("unexpected thinking event") }, func(s string) { answer.WriteString(s) })
	scanner.feed("A give-way vessel must keep clear.")
	scanner.flush()
	if answer.String() != "A give-way vessel must keep clear." {
		t.Errorf("answer = %q", answer.String())
	}
}

func TestTagStreamScanner_ThinkingThenAnswer(t *testing.T) {
	var thinking, answer strings.Builder
	scanner := newTagStreamScanner(func(s string) { thinking.WriteString(s) }, func(s string) { answer.WriteString(s) })
	scanner.feed("<thinking>plan the response</thinking>Here is the answer.")
	scanner.flush()
	if thinking.String() != "plan the response" {
		t.Errorf("thinking = %q", thinking.String())
	}
	if answer.String() != "Here is the answer." {
		t.Errorf("answer = %q", answer.String())
	}
}

func TestTagStreamScanner_TagSplitAcrossChunks(t *testing.T) {
	var thinking, answer strings.Builder
	scanner := newTagStreamScanner(func(s string) { thinking.WriteString(s) }, func(s string) { answer.WriteString(s) })
	scanner.feed("<thin")
	scanner.feed("king>plan")
	scanner.feed("</thi")
	scanner.feed("nking>answer text")
	scanner.flush()
	if thinking.String() != "plan" {
		t.Errorf("thinking = %q", thinking.String())
	}
	if answer.String() != "answer text" {
		t.Errorf("answer = %q", answer.String())
	}
}

func TestTagStreamScanner_ToolCallContentNeverForwarded(t *testing.T) {
	var answer strings.Builder
	scanner := newTagStreamScanner(func(string) { t.Fatal("unexpected thinking event") }, func(s string) { answer.WriteString(s) })
	scanner.feed(`<tool_call>{"name":"retrieve","params":{"query":"rule 15"}}</tool_call>`)
	scanner.flush()
	if answer.String() != "" {
		t.Errorf("answer = %q, want empty (tool call should never be forwarded)", answer.String())
	}
}

func TestTagStreamScanner_PreambleBeforeToolCallIsForwarded(t *testing.T) {
	var answer strings.Builder
	scanner := newTagStreamScanner(func(string) {}, func(s string) { answer.WriteString(s) })
	scanner.feed(`Let me check. <tool_call>{"name":"retrieve","params":{}}</tool_call>`)
	scanner.flush()
	if answer.String() != "Let me check. " {
		t.Errorf("answer = %q", answer.String())
	}
}

func TestStreamPublisher_DropsOldestWhenFull(t *testing.T) {
	pub := &streamPublisher{ch: make(chan StreamEvent, 2)}
	pub.publish(StreamEvent{Type: StreamAnswer, Text: "a"})
	pub.publish(StreamEvent{Type: StreamAnswer, Text: "b"})
	pub.publish(StreamEvent{Type: StreamAnswer, Text: "c"}) // should evict "a"

	first := <-pub.ch
	second := <-pub.ch
	if first.Text != "b" || second.Text != "c" {
		t.Errorf("got %q, %q; want b, c (oldest dropped)", first.Text, second.Text)
	}
}

func TestReasoningAgent_RunStream_NonStreamingClientFallsBackAndClassifies(t *testing.T) {
	client := &scriptedAgentClient{responses: []string{"<thinking>plan</thinking>The final answer."}}
	agent := NewReasoningAgent(client, newTestExecutor())

	var thinking, answer strings.Builder
	reply, err := agent.RunStream(context.Background(), "sys", nil, "hello", "student",
		func(s string) { thinking.WriteString(s) },
		func(s string) { answer.WriteString(s) },
	)
	if err != nil {
		t.Fatalf("RunStream() error = %v", err)
	}
	if thinking.String() != "plan" {
		t.Errorf("thinking = %q", thinking.String())
	}
	if answer.String() != "The final answer." {
		t.Errorf("answer = %q", answer.String())
	}
	if reply.ToolCalls != 0 {
		t.Errorf("ToolCalls = %d, want 0", reply.ToolCalls)
	}
}

func TestReasoningAgent_RunStream_ToolCallThenFinalAnswer(t *testing.T) {
	client := &scriptedAgentClient{responses: []string{
		`<tool_call>{"name":"retrieve","params":{"query":"rule 15"}}</tool_call>`,
		"Rule 15 covers crossing situations.",
	}}
	agent := NewReasoningAgent(client, newTestExecutor())

	var answer strings.Builder
	reply, err := agent.RunStream(context.Background(), "sys", nil, "what is rule 15?", "student",
		func(string) {},
		func(s string) { answer.WriteString(s) },
	)
	if err != nil {
		t.Fatalf("RunStream() error = %v", err)
	}
	if reply.ToolCalls != 1 {
		t.Errorf("ToolCalls = %d, want 1", reply.ToolCalls)
	}
	if answer.String() != "Rule 15 covers crossing situations." {
		t.Errorf("answer = %q (tool call text must never leak into answer events)", answer.String())
	}
}

func TestHandleTurnStream_DirectAnswerEmitsOrderedEvents(t *testing.T) {
	chats := newFakeChatStore()
	facts := &fakeFactStore{}
	client := &mockGenAIClient{response: "<thinking>plan</thinking>A give-way vessel must keep clear."}
	orch := NewTurnOrchestrator(newModerationGateAllowAll(), chats, facts, &fakeProfileStore{profiles: map[string]*model.LearningProfile{}}, client, newTestRetriever())

	events := orch.HandleTurnStream(context.Background(), "u1", "s1", PersonaStudent, "what must a give-way vessel do?")

	var seen []StreamEventType
	var answer strings.Builder
	for ev := range events {
		seen = append(seen, ev.Type)
		if ev.Type == StreamAnswer {
			answer.WriteString(ev.Text)
		}
	}

	if len(seen) == 0 || seen[len(seen)-1] != StreamDone {
		t.Fatalf("expected stream to end with done, got %v", seen)
	}
	foundSources, foundMetadata := false, false
	doneIdx := len(seen) - 1
	for i, typ := range seen {
		if typ == StreamSources {
			foundSources = true
			if i >= doneIdx {
				t.Error("sources must precede done")
			}
		}
		if typ == StreamMetadata {
			foundMetadata = true
			if i >= doneIdx {
				t.Error("metadata must precede done")
			}
		}
	}
	if !foundSources || !foundMetadata {
		t.Errorf("expected exactly one sources and one metadata event, got %v", seen)
	}
	if answer.String() != "A give-way vessel must keep clear." {
		t.Errorf("answer = %q", answer.String())
	}
}

func TestHandleTurnStream_BlockedMessageEmitsApologyThenDone(t *testing.T) {
	chats := newFakeChatStore()
	facts := &fakeFactStore{}
	client := &mockGenAIClient{response: "should never be reached"}
	orch := NewTurnOrchestrator(newModerationGateAllowAll(), chats, facts, &fakeProfileStore{profiles: map[string]*model.LearningProfile{}}, client, newTestRetriever())

	events := orch.HandleTurnStream(context.Background(), "u1", "s1", PersonaStudent, "how to make a bomb")

	var last StreamEvent
	for ev := range events {
		last = ev
	}
	if last.Type != StreamDone {
		t.Errorf("last event type = %q, want done", last.Type)
	}
}
