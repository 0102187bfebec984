package gcpclient

import (
	"context"
	"fmt"
	"log"
	"strings"

	documentai "cloud.google.com/go/documentai/apiv1"
	"cloud.google.com/go/documentai/apiv1/documentaipb"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"github.com/maritime-tutor/backend/internal/model"
	"github.com/maritime-tutor/backend/internal/service"
)

// DocumentAIAdapter implements service.DocumentAIClient using the Document AI API.
type DocumentAIAdapter struct {
	client   *documentai.DocumentProcessorClient
	project  string
	location string
}

// NewDocumentAIAdapter creates a new Document AI client.
// location is typically "us" or "eu" for Document AI (multi-region).
func NewDocumentAIAdapter(ctx context.Context, project, location string) (*DocumentAIAdapter, error) {
	endpoint := fmt.Sprintf("%s-documentai.googleapis.com:443", location)
	client, err := documentai.NewDocumentProcessorClient(ctx, option.WithEndpoint(endpoint))
	if err != nil {
		return nil, fmt.Errorf("gcpclient.NewDocumentAIAdapter: %w", err)
	}

	return &DocumentAIAdapter{
		client:   client,
		project:  project,
		location: location,
	}, nil
}

// ProcessDocument sends a GCS document to Document AI for text extraction.
// processor is the full resource name: projects/{p}/locations/{l}/processors/{id}
func (a *DocumentAIAdapter) ProcessDocument(ctx context.Context, processor string, gcsURI string, mimeType string) (*service.DocumentAIResponse, error) {
	req := &documentaipb.ProcessRequest{
		Name: processor,
		Source: &documentaipb.ProcessRequest_GcsDocument{
			GcsDocument: &documentaipb.GcsDocument{
				GcsUri:   gcsURI,
				MimeType: mimeType,
			},
		},
	}

	resp, err := a.client.ProcessDocument(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("gcpclient.ProcessDocument: %w", err)
	}

	if resp.Document == nil {
		return nil, fmt.Errorf("gcpclient.ProcessDocument: nil document in response")
	}

	pageCount := len(resp.Document.Pages)
	log.Printf("Document AI extracted %d pages, %d chars", pageCount, len(resp.Document.Text))

	// Extract entities if present
	var entities []service.Entity
	for _, entity := range resp.Document.Entities {
		entities = append(entities, service.Entity{
			Type:       entity.Type,
			Content:    entity.MentionText,
			Confidence: float64(entity.Confidence),
		})
	}

	layouts := pageLayouts(resp.Document)

	return &service.DocumentAIResponse{
		Text:     resp.Document.Text,
		Pages:    pageCount,
		Entities: entities,
		Layouts:  layouts,
	}, nil
}

// pageLayouts converts Document AI's per-page paragraph layout into the
// service package's page/paragraph shape, resolving each paragraph's text
// via its TextAnchor offsets into the document's full text and normalizing
// its bounding polygon's vertices to a 0-100 scale in both axes.
func pageLayouts(doc *documentaipb.Document) []service.PageLayout {
	fullText := doc.GetText()
	layouts := make([]service.PageLayout, 0, len(doc.GetPages()))

	for i, page := range doc.GetPages() {
		layout := service.PageLayout{PageNumber: i + 1}
		var pageText []string

		for _, para := range page.GetParagraphs() {
			text := sliceByTextAnchor(fullText, para.GetLayout().GetTextAnchor())
			if text == "" {
				continue
			}
			box := normalizedBoundingBox(para.GetLayout().GetBoundingPoly())
			layout.Paragraphs = append(layout.Paragraphs, service.ParagraphRun{Text: text, Box: box})
			pageText = append(pageText, text)
		}

		layout.Text = strings.Join(pageText, "\n")
		layouts = append(layouts, layout)
	}

	return layouts
}

// sliceByTextAnchor concatenates the text segments a TextAnchor points into
// within the document's full text.
func sliceByTextAnchor(fullText string, anchor *documentaipb.Document_TextAnchor) string {
	if anchor == nil {
		return ""
	}
	var b strings.Builder
	for _, seg := range anchor.GetTextSegments() {
		start, end := seg.GetStartIndex(), seg.GetEndIndex()
		if start < 0 || end > int64(len(fullText)) || start >= end {
			continue
		}
		b.WriteString(fullText[start:end])
	}
	return b.String()
}

// normalizedBoundingBox reduces a bounding polygon's normalized vertices
// (fractions of page width/height) to a single axis-aligned box scaled to
// 0-100, the wire format model.BoundingBox carries.
func normalizedBoundingBox(poly *documentaipb.BoundingPoly) model.BoundingBox {
	verts := poly.GetNormalizedVertices()
	if len(verts) == 0 {
		return model.BoundingBox{}
	}
	minX, minY := verts[0].GetX(), verts[0].GetY()
	maxX, maxY := minX, minY
	for _, v := range verts[1:] {
		if v.GetX() < minX {
			minX = v.GetX()
		}
		if v.GetX() > maxX {
			maxX = v.GetX()
		}
		if v.GetY() < minY {
			minY = v.GetY()
		}
		if v.GetY() > maxY {
			maxY = v.GetY()
		}
	}
	return model.BoundingBox{
		X0: float64(minX) * 100,
		Y0: float64(minY) * 100,
		X1: float64(maxX) * 100,
		Y1: float64(maxY) * 100,
	}
}

// HealthCheck verifies the Document AI connection by listing processors.
func (a *DocumentAIAdapter) HealthCheck(ctx context.Context) error {
	parent := fmt.Sprintf("projects/%s/locations/%s", a.project, a.location)
	req := &documentaipb.ListProcessorsRequest{
		Parent: parent,
	}

	iter := a.client.ListProcessors(ctx, req)
	_, err := iter.Next()
	if err != nil && err != iterator.Done {
		return fmt.Errorf("gcpclient.DocumentAI.HealthCheck: %w", err)
	}

	log.Printf("Document AI health check passed (project: %s, location: %s)", a.project, a.location)
	return nil
}

// Close releases the underlying gRPC connection.
func (a *DocumentAIAdapter) Close() {
	a.client.Close()
}
