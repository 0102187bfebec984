package service

import (
	"regexp"
	"strings"
)

// PostProcessSource records which extraction path produced a PostProcessResult.
type PostProcessSource string

const (
	SourceTextTags PostProcessSource = "text_tags"
	SourceNative   PostProcessSource = "native"
	SourceNone     PostProcessSource = "none"
)

// ContentBlock is one block of a structured model response, used when the
// model API exposes native thinking blocks instead of inline text tags.
type ContentBlock struct {
	Type string // "thinking" or "text"
	Text string
}

// PostProcessResult is the cleaned answer plus its extracted reasoning trace.
type PostProcessResult struct {
	Answer   string
	Thinking string
	Source   PostProcessSource
}

var thinkingTagRE = regexp.MustCompile(`(?is)<thinking>(.*?)</thinking>`)
var threeOrMoreNewlinesRE = regexp.MustCompile(`\n{3,}`)

// PostProcess implements the reasoning-trace extraction priority order:
// inline <thinking> tags first, then structured native blocks, then a
// passthrough when neither form is present.
func PostProcess(rawText string, blocks []ContentBlock) PostProcessResult {
	if matches := thinkingTagRE.FindAllStringSubmatch(rawText, -1); len(matches) > 0 {
		parts := make([]string, 0, len(matches))
		for _, m := range matches {
			parts = append(parts, strings.TrimSpace(m[1]))
		}
		thinking := strings.Join(parts, "\n\n")
		cleaned := thinkingTagRE.ReplaceAllString(rawText, "")
		cleaned = threeOrMoreNewlinesRE.ReplaceAllString(cleaned, "\n\n")
		return PostProcessResult{Answer: strings.TrimSpace(cleaned), Thinking: strings.TrimSpace(thinking), Source: SourceTextTags}
	}

	if len(blocks) > 0 {
		var answer, thinking string
		for _, b := range blocks {
			switch b.Type {
			case "text":
				answer += b.Text
			case "thinking":
				thinking += b.Text
			}
		}
		return PostProcessResult{Answer: answer, Thinking: thinking, Source: SourceNative}
	}

	return PostProcessResult{Answer: rawText, Source: SourceNone}
}
