package service

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/maritime-tutor/backend/internal/model"
)

// maritimeTopicPatterns extract the maritime regulatory topic a message is
// discussing, tried in order: numbered rule/article/chapter references
// first (most specific), then bare convention names.
var maritimeTopicPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\brule\s+\d+`),
	regexp.MustCompile(`(?i)\bquy tắc\s+\d+`),
	regexp.MustCompile(`(?i)điều\s+\d+`),
	regexp.MustCompile(`(?i)\bchương\s+\d+`),
	regexp.MustCompile(`(?i)\bcolregs?\b`),
	regexp.MustCompile(`(?i)\bsolas\b`),
	regexp.MustCompile(`(?i)\bmarpol\b`),
	regexp.MustCompile(`(?i)\bstcw\b`),
	regexp.MustCompile(`(?i)\bism\s*code\b`),
	regexp.MustCompile(`(?i)\bmlc\b`),
}

// incompleteIndicators are phrases or trailing markers that suggest an
// assistant response trailed off mid-explanation instead of concluding it.
var incompleteIndicators = []string{
	"tiếp tục", "phần tiếp theo", "sẽ giải thích thêm", "còn nữa",
	"đang nói về", "như tôi đã đề cập", "sẽ nói thêm về",
	"ngoài ra", "bên cạnh đó", "thêm vào đó", "hơn nữa",
	"đầu tiên", "thứ nhất", "một là", "trước hết",
	"v.v.", "etc.",
}

// continuationPhrases mean the user is explicitly asking to resume or
// expand on the previous topic rather than changing the subject.
var continuationPhrases = []string{
	"tiếp tục", "nói tiếp", "giải thích thêm", "còn gì nữa",
	"và sau đó", "rồi sao", "thế còn", "vậy thì",
	"tiếp đi", "kể tiếp", "nói thêm", "chi tiết hơn",
	"continue", "go on", "what else", "more on that", "tell me more",
}

// ConversationContext is the outcome of analyzing a conversation window for
// incomplete explanations that make a proactive continuation offer worthwhile.
type ConversationContext struct {
	LastTopic               string
	UserInterrupted         bool
	ShouldOfferContinuation bool
	CurrentTopic            string
}

// AnalyzeConversation walks the conversation window looking for an assistant
// turn that trailed off mid-explanation followed by a user turn that moved
// on without asking to continue it.
func AnalyzeConversation(window []model.ChatMessage, currentMessage string) ConversationContext {
	var ctx ConversationContext
	if len(window) == 0 {
		return ctx
	}

	for i, msg := range window {
		if msg.Role != model.RoleAssistant {
			continue
		}
		if !detectIncompleteExplanation(msg.Content) {
			continue
		}
		topic := extractMaritimeTopic(msg.Content)
		if topic == "" {
			continue
		}
		ctx.LastTopic = topic
		if i+1 < len(window) {
			next := window[i+1]
			if next.Role == model.RoleUser && !isContinuationRequest(next.Content, topic) {
				ctx.UserInterrupted = true
			}
		}
	}

	ctx.ShouldOfferContinuation = ctx.LastTopic != "" && ctx.UserInterrupted
	ctx.CurrentTopic = extractMaritimeTopic(currentMessage)
	return ctx
}

// detectIncompleteExplanation reports whether content looks like it trailed
// off rather than reaching a conclusion.
func detectIncompleteExplanation(content string) bool {
	if content == "" {
		return false
	}
	lower := strings.ToLower(content)
	for _, indicator := range incompleteIndicators {
		if strings.Contains(lower, indicator) {
			return true
		}
	}

	trimmed := strings.TrimRight(content, " \t\n")
	if trimmed == "" {
		return false
	}
	if strings.HasSuffix(trimmed, "...") {
		return true
	}
	if len(trimmed) > 100 {
		last := trimmed[len(trimmed)-1]
		if !strings.ContainsRune(".!?:;)]}\"'", rune(last)) {
			return true
		}
	}
	return false
}

// extractMaritimeTopic pulls the maritime regulatory topic out of content,
// falling back to a quoted phrase or the leading few words.
func extractMaritimeTopic(content string) string {
	if content == "" {
		return ""
	}
	for _, re := range maritimeTopicPatterns {
		if m := re.FindString(content); m != "" {
			return m
		}
	}
	if idx := strings.Index(content, `"`); idx >= 0 {
		if end := strings.Index(content[idx+1:], `"`); end >= 0 {
			return content[idx+1 : idx+1+end]
		}
	}
	words := strings.Fields(content)
	if len(words) >= 3 {
		return strings.Join(words[:3], " ")
	}
	return ""
}

// isContinuationRequest reports whether message is asking to continue the
// given topic rather than raising something new.
func isContinuationRequest(message, topic string) bool {
	if message == "" {
		return false
	}
	lower := strings.ToLower(message)
	for _, phrase := range continuationPhrases {
		if strings.Contains(lower, phrase) {
			return true
		}
	}
	if topic != "" && strings.Contains(lower, strings.ToLower(topic)) {
		return true
	}
	return false
}

// BuildContinuationHint renders the system-prompt instruction that asks the
// agent to offer to resume the previous incomplete topic, or "" when no
// continuation should be offered.
func BuildContinuationHint(ctx ConversationContext) string {
	if !ctx.ShouldOfferContinuation {
		return ""
	}
	return fmt.Sprintf("The user asked a new question, but the previous answer was explaining %q and didn't finish. "+
		"After answering the current question, offer to continue explaining %q.", ctx.LastTopic, ctx.LastTopic)
}
