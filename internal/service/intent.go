package service

import (
	"regexp"
	"strings"
)

// IntentType classifies what a chat turn is asking for.
type IntentType string

const (
	IntentGeneral   IntentType = "GENERAL"
	IntentKnowledge IntentType = "KNOWLEDGE"
	IntentTeaching  IntentType = "TEACHING"
	IntentUnclear   IntentType = "UNCLEAR"
)

// IntentResult is the classifier's output.
type IntentResult struct {
	Intent     IntentType `json:"intent"`
	Confidence float64    `json:"confidence"`
	Entities   []string   `json:"entities,omitempty"`
}

const maxIntentEntities = 5

var greetingRE = regexp.MustCompile(`(?i)^\s*(hi|hello|hey|good morning|good afternoon|good evening|greetings|xin chào|chào bạn|chào em|chào thầy)\b`)
var selfIntroRE = regexp.MustCompile(`(?i)\b(my name is|i'?m|i am|tôi là|mình là|em là|tên (?:là|tôi là|mình là|em là))\s+\w+`)

var followUpCueRE = regexp.MustCompile(`(?i)\b(what about|and (that|this|it)|more on that|continue|go on|what else|why|how come|tại sao|còn|vậy thì|tiếp theo|thế còn|và sau đó|rồi sao|tiếp tục|nói tiếp|tiếp đi|kể tiếp|nói thêm|chi tiết hơn|giải thích thêm|còn gì nữa)(?:\b|[^\p{L}\p{N}_]|$)`)

var knowledgePhrases = []string{
	"what is", "what does", "define", "explain", "meaning of",
	"rule", "regulation", "colreg", "solas", "marpol", "convention",
	"requirement", "definition", "annex", "article",
	"là gì", "nghĩa là", "quy tắc", "điều", "chương", "công ước",
}
var knowledgeSingleWords = []string{
	"rule", "regulation", "require", "definition", "means", "applies",
}

var teachingPhrases = []string{
	"teach me", "help me understand", "can you explain step by step",
	"i don't understand", "i'm confused", "walk me through",
	"quiz me", "test my knowledge", "practice problem", "give me an example",
	"dạy tôi", "giải thích giúp tôi", "tôi không hiểu", "cho tôi ví dụ",
}
var teachingSingleWords = []string{
	"teach", "confused", "understand", "example", "practice", "quiz",
}

var aggressivePatternRE = regexp.MustCompile(`(?i)\b(why (can't|cant|don'?t) i|i keep (getting|making) (this|it) wrong|still don'?t get it)\b`)

// ClassifyIntent implements the chat turn's intent classifier: a pure
// function with a strict priority order (greeting/self-intro, short
// follow-up cue, keyword scoring).
func ClassifyIntent(message string, lastAgentHint IntentType) IntentResult {
	trimmed := strings.TrimSpace(message)
	lower := strings.ToLower(trimmed)
	words := strings.Fields(trimmed)

	// 1. Greeting / self-introduction — absolute priority.
	if greetingRE.MatchString(lower) || selfIntroRE.MatchString(lower) {
		return IntentResult{Intent: IntentGeneral, Confidence: 1.0}
	}

	// 2. Short follow-up cue — inherit the last agent's hint, or default
	// to KNOWLEDGE when there's no prior hint to inherit.
	if len(words) < 8 && followUpCueRE.MatchString(lower) {
		if lastAgentHint != "" {
			return IntentResult{Intent: lastAgentHint, Confidence: 0.85, Entities: extractEntities(lower)}
		}
		return IntentResult{Intent: IntentKnowledge, Confidence: 0.85, Entities: extractEntities(lower)}
	}

	// 3. Keyword scoring.
	knowledgeScore := scorePhrases(lower, knowledgePhrases, knowledgeSingleWords)
	teachingScore := scorePhrases(lower, teachingPhrases, teachingSingleWords)
	if aggressivePatternRE.MatchString(lower) {
		teachingScore++
	}

	entities := extractEntities(lower)

	switch {
	case teachingScore > knowledgeScore && teachingScore > 0:
		return IntentResult{Intent: IntentTeaching, Confidence: confidenceFromScore(teachingScore), Entities: entities}
	case knowledgeScore > 0:
		return IntentResult{Intent: IntentKnowledge, Confidence: confidenceFromScore(knowledgeScore), Entities: entities}
	default:
		return IntentResult{Intent: IntentGeneral, Confidence: 0.8, Entities: entities}
	}
}

func scorePhrases(lower string, phrases, singleWords []string) int {
	score := 0
	for _, p := range phrases {
		if strings.Contains(lower, p) {
			score += 2
		}
	}
	for _, w := range singleWords {
		if containsWord(lower, w) {
			score++
		}
	}
	return score
}

func confidenceFromScore(score int) float64 {
	c := 0.7 + 0.1*float64(score)
	if c > 1.0 {
		c = 1.0
	}
	return c
}

func containsWord(text, word string) bool {
	for _, w := range strings.Fields(text) {
		if strings.Trim(w, ".,!?;:\"'()[]") == word {
			return true
		}
	}
	return false
}

// ruleReferenceRE matches maritime rule/regulation references like
// "rule 5", "colreg 13", "annex vi", "chapter 5".
var ruleReferenceRE = regexp.MustCompile(`(?i)\b(rule|colreg|solas|marpol|annex|chapter|regulation)\s+[0-9ivxlcdm]+(\.[0-9]+)?\b`)

// extractEntities pulls likely maritime rule/regulation references out of a
// message, capped at maxIntentEntities.
func extractEntities(lower string) []string {
	matches := ruleReferenceRE.FindAllString(lower, -1)
	if len(matches) > maxIntentEntities {
		matches = matches[:maxIntentEntities]
	}
	if matches == nil {
		return nil
	}
	return matches
}
