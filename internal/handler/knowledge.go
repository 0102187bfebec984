package handler

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/maritime-tutor/backend/internal/model"
	"github.com/maritime-tutor/backend/internal/service"
)

// maxIngestUploadMemory bounds how much of a multipart upload is buffered in
// memory before spilling to a temp file; matches model.MaxFileSizeBytes so a
// typical regulatory PDF never spills.
const maxIngestUploadMemory = model.MaxFileSizeBytes

// DocumentUpserter abstracts the document-record lookups and inserts an
// ingestion run needs.
type DocumentUpserter interface {
	GetByID(ctx context.Context, id string) (*model.Document, error)
	Create(ctx context.Context, doc *model.Document) error
}

// FileUploader abstracts uploading the raw PDF bytes ahead of ingestion.
type FileUploader interface {
	Upload(ctx context.Context, bucket, object string, data []byte, contentType string) error
}

// JobRunner abstracts starting and polling an ingestion run.
type JobRunner interface {
	StartJob(ctx context.Context, opts service.IngestionOptions) *model.IngestionJob
	Job(jobID string) (*model.IngestionJob, bool)
}

// KnowledgeIngestDeps bundles the dependencies for the multimodal ingestion
// endpoint.
type KnowledgeIngestDeps struct {
	Docs       DocumentUpserter
	Uploader   FileUploader
	Jobs       JobRunner
	BucketName string
}

// ingestRequest captures the multipart form fields that gate an ingestion
// run, validated the same way as a JSON request body.
type ingestRequest struct {
	Role       string `validate:"required,eq=admin"`
	DocumentID string `validate:"required"`
}

type jobSummaryDTO struct {
	JobID             string  `json:"job_id"`
	DocumentID        string  `json:"document_id"`
	Status            string  `json:"status"`
	TotalPages        int     `json:"total_pages"`
	SuccessfulPages   int     `json:"successful_pages"`
	FailedPages       int     `json:"failed_pages"`
	VisionPages       int     `json:"vision_pages"`
	DirectPages       int     `json:"direct_pages"`
	APISavingsPercent float64 `json:"api_savings_percent"`
	Error             string  `json:"error,omitempty"`
}

func toJobSummaryDTO(job *model.IngestionJob) jobSummaryDTO {
	return jobSummaryDTO{
		JobID:             job.ID,
		DocumentID:        job.DocumentID,
		Status:            string(job.Status),
		TotalPages:        job.TotalPages,
		SuccessfulPages:   job.CompletedPages,
		FailedPages:       job.FailedPages,
		VisionPages:       job.VisionPages,
		DirectPages:       job.DirectPages,
		APISavingsPercent: job.APISavingsPercent(),
		Error:             job.Error,
	}
}

func respondOK(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	writeJSON(w, map[string]interface{}{"status": "ok", "data": data})
}

// IngestMultimodal handles POST /api/v1/knowledge/ingest-multimodal: a
// multipart upload of one regulatory PDF, admin-only, that kicks off the
// per-page classify/extract/chunk/embed/persist pipeline in the background
// and returns the initial job summary.
func IngestMultimodal(deps KnowledgeIngestDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(maxIngestUploadMemory); err != nil {
			respondError(w, http.StatusBadRequest, "invalid multipart request")
			return
		}

		req := ingestRequest{
			Role:       r.FormValue("role"),
			DocumentID: r.FormValue("document_id"),
		}
		if req.Role != "admin" {
			respondError(w, http.StatusForbidden, "ingestion requires the admin role")
			return
		}
		if msg := validateStruct(&req); msg != "" {
			respondError(w, http.StatusBadRequest, msg)
			return
		}
		documentID := req.DocumentID

		file, header, err := r.FormFile("file")
		if err != nil {
			respondError(w, http.StatusBadRequest, "file is required")
			return
		}
		defer file.Close()

		contentType := header.Header.Get("Content-Type")
		if !model.AllowedMimeTypes[contentType] {
			respondError(w, http.StatusBadRequest, "only application/pdf uploads are supported")
			return
		}
		if header.Size > model.MaxFileSizeBytes {
			respondError(w, http.StatusBadRequest, "file exceeds maximum allowed size")
			return
		}

		data, err := io.ReadAll(file)
		if err != nil {
			respondError(w, http.StatusInternalServerError, "failed to read upload")
			return
		}

		resume := r.FormValue("resume") == "true"
		maxPages := 0
		if v := r.FormValue("max_pages"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n < 0 {
				respondError(w, http.StatusBadRequest, "max_pages must be a non-negative integer")
				return
			}
			maxPages = n
		}

		ctx := r.Context()
		object := fmt.Sprintf("documents/%s/%s", documentID, header.Filename)

		existing, err := deps.Docs.GetByID(ctx, documentID)
		if err != nil {
			respondError(w, http.StatusInternalServerError, "failed to look up document")
			return
		}
		if existing == nil {
			storageURI := object
			doc := &model.Document{
				ID:             documentID,
				Title:          header.Filename,
				Filename:       header.Filename,
				OriginalName:   header.Filename,
				MimeType:       contentType,
				SizeBytes:      int(header.Size),
				StorageURI:     &storageURI,
				IndexStatus:    model.IndexPending,
				DeletionStatus: model.DeletionActive,
			}
			if err := deps.Docs.Create(ctx, doc); err != nil {
				respondError(w, http.StatusInternalServerError, "failed to create document record")
				return
			}
		}

		if err := deps.Uploader.Upload(ctx, deps.BucketName, object, data, contentType); err != nil {
			respondError(w, http.StatusInternalServerError, "failed to store upload")
			return
		}

		job := deps.Jobs.StartJob(ctx, service.IngestionOptions{
			DocumentID: documentID,
			Bucket:     deps.BucketName,
			Object:     object,
			Resume:     resume,
			MaxPages:   maxPages,
		})

		respondOK(w, http.StatusAccepted, toJobSummaryDTO(job))
	}
}

// JobStatus handles GET /api/v1/knowledge/jobs/{job_id}.
func JobStatus(jobs JobRunner) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		jobID := routeParam(r, "job_id")
		job, ok := jobs.Job(jobID)
		if !ok {
			respondError(w, http.StatusNotFound, "job not found")
			return
		}
		respondOK(w, http.StatusOK, toJobSummaryDTO(job))
	}
}

// KnowledgeDocLister abstracts listing ingested documents with chunk counts.
type KnowledgeDocLister interface {
	List(ctx context.Context, limit, offset int) ([]model.Document, int, error)
}

type documentSummaryDTO struct {
	DocumentID  string `json:"document_id"`
	Title       string `json:"title"`
	Filename    string `json:"filename"`
	PageCount   int    `json:"page_count"`
	ChunkCount  int    `json:"chunk_count"`
	IndexStatus string `json:"index_status"`
	CreatedAt   string `json:"created_at"`
}

// KnowledgeList handles GET /api/v1/knowledge/list: documents with chunk counts.
func KnowledgeList(repo KnowledgeDocLister) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit, offset := 20, 0
		if v := r.URL.Query().Get("limit"); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				limit = n
			}
		}
		if v := r.URL.Query().Get("offset"); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				offset = n
			}
		}

		docs, total, err := repo.List(r.Context(), limit, offset)
		if err != nil {
			respondError(w, http.StatusInternalServerError, "failed to list documents")
			return
		}

		summaries := make([]documentSummaryDTO, 0, len(docs))
		for _, d := range docs {
			summaries = append(summaries, documentSummaryDTO{
				DocumentID:  d.ID,
				Title:       d.Title,
				Filename:    d.Filename,
				PageCount:   d.PageCount,
				ChunkCount:  d.ChunkCount,
				IndexStatus: string(d.IndexStatus),
				CreatedAt:   d.CreatedAt.Format("2006-01-02T15:04:05Z07:00"),
			})
		}

		respondOK(w, http.StatusOK, map[string]interface{}{
			"total":     total,
			"documents": summaries,
		})
	}
}

// KnowledgeStatsGetter abstracts the totals behind GET /api/v1/knowledge/stats.
type KnowledgeStatsGetter interface {
	Stats(ctx context.Context) (documents int, chunks int, err error)
}

// KnowledgeStats handles GET /api/v1/knowledge/stats. Per the stable
// surface's contract, a degraded persistence layer downgrades to a
// `warning` field rather than failing the call outright.
func KnowledgeStats(repo KnowledgeStatsGetter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		documents, chunks, err := repo.Stats(r.Context())
		data := map[string]interface{}{
			"documents": documents,
			"chunks":    chunks,
		}
		if err != nil {
			data["warning"] = "stats may be incomplete: " + err.Error()
		}
		respondOK(w, http.StatusOK, data)
	}
}
