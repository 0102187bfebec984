package gcpclient

import (
	"bytes"
	"fmt"
	"image/png"

	"github.com/gen2brain/go-fitz"
)

// PageRenderDPI is the fixed resolution pages are rasterized at for the
// vision extraction path and for evidence-image uploads.
const PageRenderDPI = 150

// PDFRenderer rasterizes PDF pages to PNG images via MuPDF bindings.
// Used for the vision extraction path (§4.2 step 2) and to produce the
// evidence images attached to citations regardless of extraction path.
type PDFRenderer struct{}

// NewPDFRenderer creates a PDFRenderer.
func NewPDFRenderer() *PDFRenderer {
	return &PDFRenderer{}
}

// RenderPage rasterizes the given 1-based page of a PDF (held in memory) to
// a PNG image at PageRenderDPI.
func (r *PDFRenderer) RenderPage(pdfBytes []byte, pageNumber int) ([]byte, error) {
	doc, err := fitz.NewFromMemory(pdfBytes)
	if err != nil {
		return nil, fmt.Errorf("gcpclient.RenderPage: open: %w", err)
	}
	defer doc.Close()

	if pageNumber < 1 || pageNumber > doc.NumPage() {
		return nil, fmt.Errorf("gcpclient.RenderPage: page %d out of range (document has %d pages)", pageNumber, doc.NumPage())
	}

	img, err := doc.ImageDPI(pageNumber-1, PageRenderDPI)
	if err != nil {
		return nil, fmt.Errorf("gcpclient.RenderPage: rasterize page %d: %w", pageNumber, err)
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("gcpclient.RenderPage: encode png: %w", err)
	}
	return buf.Bytes(), nil
}

// PageCount returns the number of pages in a PDF held in memory.
func (r *PDFRenderer) PageCount(pdfBytes []byte) (int, error) {
	doc, err := fitz.NewFromMemory(pdfBytes)
	if err != nil {
		return 0, fmt.Errorf("gcpclient.PageCount: open: %w", err)
	}
	defer doc.Close()
	return doc.NumPage(), nil
}
