package service

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/maritime-tutor/backend/internal/model"
)

// Default size thresholds for page-level chunking (§4.2 step 3).
const (
	defaultMaxChunkChars = 1000 // S_max
	defaultMinChunkChars = 120  // S_min
)

// ChunkDraft is one candidate chunk produced by chunking a page's text runs,
// not yet embedded or assigned a document/page/index — the input to the
// embedding and persistence steps.
type ChunkDraft struct {
	Content       string
	ContentType   model.ContentType
	Confidence    float64
	BoundingBoxes []model.BoundingBox
}

// SemanticChunkerService splits a page's positioned text runs into chunks on
// heading boundaries and size thresholds, classifying each by content-type
// cues and aggregating the bounding boxes of the runs it covers.
type SemanticChunkerService struct {
	maxChars int
	minChars int
}

// NewSemanticChunkerService creates a SemanticChunkerService with the
// default ~1000/~120 character thresholds.
func NewSemanticChunkerService() *SemanticChunkerService {
	return &SemanticChunkerService{maxChars: defaultMaxChunkChars, minChars: defaultMinChunkChars}
}

// ChunkPage splits one page's text runs into content-typed chunks.
// confidence is the page's extraction confidence (1.0 for direct, 0.85 or
// model-reported for vision) and is carried onto every chunk produced —
// chunking never spans pages, so there is no direct/vision mix to min().
func (s *SemanticChunkerService) ChunkPage(runs []ParagraphRun, confidence float64) []ChunkDraft {
	segments := s.buildSegments(runs)
	segments = mergeOrphans(segments, s.minChars)

	drafts := make([]ChunkDraft, 0, len(segments))
	for _, seg := range segments {
		content := strings.TrimSpace(seg.text)
		if content == "" {
			continue
		}
		drafts = append(drafts, ChunkDraft{
			Content:       content,
			ContentType:   classifyContentType(content),
			Confidence:    confidence,
			BoundingBoxes: seg.boxes,
		})
	}
	return drafts
}

type pageSegment struct {
	text  string
	boxes []model.BoundingBox
}

// buildSegments merges runs into segments, starting a new one at every
// heading-classified run and whenever the running size would exceed
// maxChars.
func (s *SemanticChunkerService) buildSegments(runs []ParagraphRun) []pageSegment {
	var segments []pageSegment
	var current strings.Builder
	var boxes []model.BoundingBox

	flush := func() {
		if current.Len() > 0 {
			segments = append(segments, pageSegment{text: current.String(), boxes: boxes})
			current.Reset()
			boxes = nil
		}
	}

	for _, run := range runs {
		text := strings.TrimSpace(run.Text)
		if text == "" {
			continue
		}

		isHeading := classifyContentType(text) == model.ContentHeading
		if isHeading {
			flush()
		} else if current.Len() > 0 && current.Len()+len(text)+1 > s.maxChars {
			flush()
		}

		if current.Len() > 0 {
			current.WriteString(" ")
		}
		current.WriteString(text)
		boxes = append(boxes, run.Box)

		// A heading-only segment stays its own chunk; flush immediately so a
		// following body run starts a fresh segment rather than appending to
		// the heading line.
		if isHeading {
			flush()
		}
	}
	flush()
	return segments
}

// mergeOrphans folds any segment shorter than minChars into the preceding
// one, so stray fragments never become standalone chunks. The first
// segment, if itself an orphan, merges forward into the next instead.
// Heading segments are never folded, so every heading keeps its own chunk.
func mergeOrphans(segments []pageSegment, minChars int) []pageSegment {
	if len(segments) <= 1 {
		return segments
	}

	merged := make([]pageSegment, 0, len(segments))
	for _, seg := range segments {
		if len(merged) > 0 && len(seg.text) < minChars && classifyContentType(seg.text) != model.ContentHeading {
			last := &merged[len(merged)-1]
			last.text = last.text + " " + seg.text
			last.boxes = append(last.boxes, seg.boxes...)
			continue
		}
		merged = append(merged, seg)
	}

	if len(merged) > 1 && len(merged[0].text) < minChars && classifyContentType(merged[0].text) != model.ContentHeading {
		merged[1].text = merged[0].text + " " + merged[1].text
		merged[1].boxes = append(merged[0].boxes, merged[1].boxes...)
		merged = merged[1:]
	}

	return merged
}

var (
	headingPattern = regexp.MustCompile(`^(Rule\s+\d+|(\d+\.)+\d*\s|\d+\s+[A-Z])`)
	formulaPattern = regexp.MustCompile(`\\frac|\\sum|\\int|[=≤≥±×÷]|\^\d|_\{`)
	figurePattern  = regexp.MustCompile(`(?i)\b(figure|fig\.|diagram|chart)\s*\d*\b`)
)

// classifyContentType assigns a content_type from cues in the run/chunk
// text: numeric section headers → heading; tabular column alignment →
// table; LaTeX-like or formula markers → formula; figure/diagram
// references → diagram_reference; else text.
func classifyContentType(text string) model.ContentType {
	trimmed := strings.TrimSpace(text)

	if len(trimmed) < 80 && headingPattern.MatchString(trimmed) {
		return model.ContentHeading
	}
	if formulaPattern.MatchString(trimmed) {
		return model.ContentFormula
	}
	if looksTabular(trimmed) {
		return model.ContentTable
	}
	if figurePattern.MatchString(trimmed) {
		return model.ContentDiagramReference
	}
	return model.ContentText
}

// looksTabular detects runs of multi-space or tab-separated columns, the
// layout signature left behind when a PDF layout parser extracts a table
// row as a single text run.
func looksTabular(text string) bool {
	lines := strings.Split(text, "\n")
	tabularLines := 0
	for _, line := range lines {
		if strings.Count(line, "\t") >= 2 {
			tabularLines++
			continue
		}
		if columnsBySpacing(line) >= 3 {
			tabularLines++
		}
	}
	return len(lines) > 0 && tabularLines*2 >= len(lines)
}

// columnsBySpacing counts fields separated by runs of 2+ spaces.
func columnsBySpacing(line string) int {
	fields := regexp.MustCompile(`\s{2,}`).Split(strings.TrimSpace(line), -1)
	count := 0
	for _, f := range fields {
		if strings.TrimSpace(f) != "" {
			count++
		}
	}
	return count
}

// usabilityScore implements §4.2 step 1: a 0-1 score from extracted
// character count, printable ratio, and the presence of structured runs
// (headings or numbered items), used to decide direct vs vision extraction.
func usabilityScore(runs []ParagraphRun) float64 {
	if len(runs) == 0 {
		return 0
	}

	var totalChars, printable, structured int
	for _, run := range runs {
		text := run.Text
		totalChars += len(text)
		for _, r := range text {
			if unicode.IsPrint(r) || r == '\n' || r == '\t' {
				printable++
			}
		}
		if classifyContentType(text) == model.ContentHeading || headingPattern.MatchString(strings.TrimSpace(text)) {
			structured++
		}
	}

	if totalChars == 0 {
		return 0
	}

	charScore := float64(totalChars) / 500 // saturates around 500 extracted chars
	if charScore > 1 {
		charScore = 1
	}
	printableRatio := float64(printable) / float64(totalChars)
	structuredScore := float64(structured) / float64(len(runs))
	if structuredScore > 1 {
		structuredScore = 1
	}

	return 0.5*charScore + 0.35*printableRatio + 0.15*structuredScore
}
