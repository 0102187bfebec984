package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/maritime-tutor/backend/internal/model"
)

// defaultPageConcurrency is the bounded worker-pool size for per-page
// ingestion, generalizing the teacher's per-document mutex-guarded
// `processing` map into a semaphore-bounded page-level pool.
const defaultPageConcurrency = 4

// directUsabilityThreshold is τ_text: pages scoring at or above this on
// usabilityScore take the direct-extraction path, the rest go to vision.
const directUsabilityThreshold = 0.5

// visionConfidence is the default confidence assigned to vision-extracted
// chunks when the model does not report its own.
const visionConfidence = 0.85

const visionSystemPrompt = `You transcribe a scanned or image-only page from a maritime regulatory publication (COLREGs, SOLAS, MARPOL, or similar). Return the page's text content faithfully, preserving rule numbers, headings, and table structure as plain text. Do not summarize or omit content.`

// PDFDownloader abstracts retrieving the raw bytes of an uploaded document.
type PDFDownloader interface {
	Download(ctx context.Context, bucket, object string) ([]byte, error)
}

// PageRenderer abstracts PDF page rasterization.
type PageRenderer interface {
	RenderPage(pdfBytes []byte, pageNumber int) ([]byte, error)
	PageCount(pdfBytes []byte) (int, error)
}

// VisionExtractor abstracts the multimodal model call used for pages that
// fail the direct-extraction usability check.
type VisionExtractor interface {
	GenerateContentVision(ctx context.Context, systemPrompt, userPrompt string, imagePNG []byte) (string, error)
}

// ImageUploader abstracts persisting a rendered page image as evidence.
type ImageUploader interface {
	Upload(ctx context.Context, bucket, object string, data []byte, contentType string) error
}

// ChunkPersister abstracts the chunk repository's write path.
type ChunkPersister interface {
	InsertChunks(ctx context.Context, chunks []model.DocumentChunk) error
	ExistsForPage(ctx context.Context, documentID string, pageNumber int) (bool, error)
	CountByDocumentID(ctx context.Context, documentID string) (int, error)
}

// IngestionDocumentRepo abstracts the document-record fields an ingestion
// run updates as it progresses.
type IngestionDocumentRepo interface {
	UpdateStatus(ctx context.Context, id string, status model.IndexStatus) error
	UpdatePageCount(ctx context.Context, id string, pageCount int) error
	UpdateChunkCount(ctx context.Context, id string, count int) error
}

// IngestionOptions parameterizes one ingestion run.
type IngestionOptions struct {
	DocumentID string
	Bucket     string
	Object     string
	Resume     bool
	MaxPages   int // 0 means no limit
}

// IngestionService runs the classify -> extract -> chunk -> embed -> persist
// pipeline per page, bounded by a semaphore-sized worker pool, and tracks
// each run as an in-memory IngestionJob surfaced via Job.
type IngestionService struct {
	downloader  PDFDownloader
	extractor   *ParserService
	renderer    PageRenderer
	vision      VisionExtractor
	uploader    ImageUploader
	chunker     *SemanticChunkerService
	embedder    *EmbedderService
	chunks      ChunkPersister
	docs        IngestionDocumentRepo
	bucketName  string
	concurrency int

	jobsMu sync.Mutex
	jobs   map[string]*model.IngestionJob
}

// NewIngestionService creates an IngestionService. concurrency <= 0 falls
// back to defaultPageConcurrency.
func NewIngestionService(
	downloader PDFDownloader,
	extractor *ParserService,
	renderer PageRenderer,
	vision VisionExtractor,
	uploader ImageUploader,
	chunker *SemanticChunkerService,
	embedder *EmbedderService,
	chunks ChunkPersister,
	docs IngestionDocumentRepo,
	bucketName string,
	concurrency int,
) *IngestionService {
	if concurrency <= 0 {
		concurrency = defaultPageConcurrency
	}
	return &IngestionService{
		downloader:  downloader,
		extractor:   extractor,
		renderer:    renderer,
		vision:      vision,
		uploader:    uploader,
		chunker:     chunker,
		embedder:    embedder,
		chunks:      chunks,
		docs:        docs,
		bucketName:  bucketName,
		concurrency: concurrency,
		jobs:        make(map[string]*model.IngestionJob),
	}
}

// StartJob creates a job record and runs the ingestion pipeline in the
// background, returning immediately with the job's initial state. The
// caller's context is not used beyond this call — the run continues
// independently of the originating request.
func (s *IngestionService) StartJob(ctx context.Context, opts IngestionOptions) *model.IngestionJob {
	job := &model.IngestionJob{
		ID:         uuid.New().String(),
		DocumentID: opts.DocumentID,
		Status:     model.JobRunning,
		StartedAt:  time.Now().UTC(),
	}

	s.jobsMu.Lock()
	s.jobs[job.ID] = job
	s.jobsMu.Unlock()

	go s.run(context.WithoutCancel(ctx), job, opts)

	return job
}

// Job returns the current state of a previously started job.
func (s *IngestionService) Job(jobID string) (*model.IngestionJob, bool) {
	s.jobsMu.Lock()
	defer s.jobsMu.Unlock()
	job, ok := s.jobs[jobID]
	return job, ok
}

func (s *IngestionService) run(ctx context.Context, job *model.IngestionJob, opts IngestionOptions) {
	finish := func(status model.JobStatus, errMsg string) {
		now := time.Now().UTC()
		s.jobsMu.Lock()
		job.Status = status
		job.Error = errMsg
		job.FinishedAt = &now
		s.jobsMu.Unlock()
	}

	pdfBytes, err := s.downloader.Download(ctx, opts.Bucket, opts.Object)
	if err != nil {
		slog.Error("ingestion: download failed", "document_id", opts.DocumentID, "err", err)
		finish(model.JobFailed, fmt.Sprintf("download: %v", err))
		_ = s.docs.UpdateStatus(ctx, opts.DocumentID, model.IndexFailed)
		return
	}

	totalPages, err := s.renderer.PageCount(pdfBytes)
	if err != nil {
		slog.Error("ingestion: page count failed", "document_id", opts.DocumentID, "err", err)
		finish(model.JobFailed, fmt.Sprintf("page count: %v", err))
		_ = s.docs.UpdateStatus(ctx, opts.DocumentID, model.IndexFailed)
		return
	}
	if opts.MaxPages > 0 && opts.MaxPages < totalPages {
		totalPages = opts.MaxPages
	}

	job.TotalPages = totalPages
	_ = s.docs.UpdatePageCount(ctx, opts.DocumentID, totalPages)
	_ = s.docs.UpdateStatus(ctx, opts.DocumentID, model.IndexProcessing)

	gcsURI := fmt.Sprintf("gs://%s/%s", opts.Bucket, opts.Object)
	docAIResp, err := s.extractor.Extract(ctx, gcsURI)
	layoutByPage := make(map[int]PageLayout)
	if err != nil {
		// Direct extraction unavailable for the whole document; every page
		// falls back to vision individually rather than aborting the run.
		slog.Warn("ingestion: document ai extraction failed, all pages fall back to vision", "document_id", opts.DocumentID, "err", err)
	} else {
		for _, l := range docAIResp.Layouts {
			layoutByPage[l.PageNumber] = l
		}
	}

	sem := semaphore.NewWeighted(int64(s.concurrency))
	var wg sync.WaitGroup
	var mu sync.Mutex

	for page := 1; page <= totalPages; page++ {
		page := page

		if opts.Resume {
			exists, err := s.chunks.ExistsForPage(ctx, opts.DocumentID, page)
			if err == nil && exists {
				// Already indexed from a prior run; skip re-extraction but don't
				// attribute it to either extraction path in the savings count.
				mu.Lock()
				job.CompletedPages++
				job.Pages = append(job.Pages, model.PageResult{PageNumber: page, Status: model.PageStatusDirect})
				mu.Unlock()
				continue
			}
		}

		if err := sem.Acquire(ctx, 1); err != nil {
			break
		}
		wg.Add(1)
		go func() {
			defer sem.Release(1)
			defer wg.Done()

			result := s.processPage(ctx, opts.DocumentID, page, pdfBytes, layoutByPage[page])

			mu.Lock()
			defer mu.Unlock()
			job.Pages = append(job.Pages, result)
			switch result.Status {
			case model.PageStatusDirect:
				job.DirectPages++
				job.CompletedPages++
			case model.PageStatusVision:
				job.VisionPages++
				job.CompletedPages++
			case model.PageStatusFailed:
				job.FailedPages++
			}
		}()
	}
	wg.Wait()

	if count, err := s.chunks.CountByDocumentID(ctx, opts.DocumentID); err == nil {
		_ = s.docs.UpdateChunkCount(ctx, opts.DocumentID, count)
	}

	status := model.JobCompleted
	docStatus := model.IndexIndexed
	if job.CompletedPages == 0 && job.FailedPages > 0 {
		status = model.JobFailed
		docStatus = model.IndexFailed
	}
	finish(status, "")
	_ = s.docs.UpdateStatus(ctx, opts.DocumentID, docStatus)
}

// processPage runs the classify -> extract -> chunk -> embed -> persist
// sequence for a single page. A rendered page image is always uploaded as
// evidence, regardless of which extraction path the page takes.
func (s *IngestionService) processPage(ctx context.Context, documentID string, page int, pdfBytes []byte, layout PageLayout) model.PageResult {
	var pageImageURL *string
	imagePNG, renderErr := s.renderer.RenderPage(pdfBytes, page)
	if renderErr != nil {
		slog.Warn("ingestion: page render failed, evidence image unavailable", "document_id", documentID, "page", page, "err", renderErr)
	} else {
		object := fmt.Sprintf("pages/%s/%d.png", documentID, page)
		if err := s.uploader.Upload(ctx, s.bucketName, object, imagePNG, "image/png"); err != nil {
			slog.Warn("ingestion: page image upload failed", "document_id", documentID, "page", page, "err", err)
		} else {
			url := fmt.Sprintf("https://storage.googleapis.com/%s/%s", s.bucketName, object)
			pageImageURL = &url
		}
	}

	var runs []ParagraphRun
	var confidence float64
	var status model.PageStatus

	if usabilityScore(layout.Paragraphs) >= directUsabilityThreshold && len(layout.Paragraphs) > 0 {
		runs = layout.Paragraphs
		confidence = 1.0
		status = model.PageStatusDirect
	} else {
		if imagePNG == nil {
			return model.PageResult{PageNumber: page, Status: model.PageStatusFailed, Error: fmt.Sprintf("render: %v", renderErr)}
		}
		text, err := s.vision.GenerateContentVision(ctx, visionSystemPrompt, "Transcribe this page.", imagePNG)
		if err != nil {
			return model.PageResult{PageNumber: page, Status: model.PageStatusFailed, Error: fmt.Sprintf("vision: %v", err)}
		}
		runs = []ParagraphRun{{Text: text}}
		confidence = visionConfidence
		status = model.PageStatusVision
	}

	drafts := s.chunker.ChunkPage(runs, confidence)
	if len(drafts) == 0 {
		return model.PageResult{PageNumber: page, Status: status}
	}

	texts := make([]string, len(drafts))
	for i, d := range drafts {
		texts[i] = d.Content
	}

	vectors, err := s.embedder.EmbedWithRetry(ctx, texts)
	if err != nil {
		return model.PageResult{PageNumber: page, Status: model.PageStatusFailed, Error: fmt.Sprintf("embed: %v", err)}
	}

	now := time.Now().UTC()
	chunks := make([]model.DocumentChunk, len(drafts))
	for i, d := range drafts {
		chunks[i] = model.DocumentChunk{
			ID:            uuid.New().String(),
			DocumentID:    documentID,
			PageNumber:    page,
			ChunkIndex:    i,
			Content:       d.Content,
			ContentType:   d.ContentType,
			Confidence:    d.Confidence,
			Embedding:     vectors[i],
			ImageURL:      pageImageURL,
			BoundingBoxes: d.BoundingBoxes,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
	}

	if err := s.chunks.InsertChunks(ctx, chunks); err != nil {
		return model.PageResult{PageNumber: page, Status: model.PageStatusFailed, Error: fmt.Sprintf("persist: %v", err)}
	}

	return model.PageResult{PageNumber: page, Status: status}
}
