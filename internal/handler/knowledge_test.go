package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/maritime-tutor/backend/internal/model"
	"github.com/maritime-tutor/backend/internal/service"
)

type fakeDocumentUpserter struct {
	existing  *model.Document
	getErr    error
	createErr error
	created   *model.Document
}

func (f *fakeDocumentUpserter) GetByID(ctx context.Context, id string) (*model.Document, error) {
	return f.existing, f.getErr
}

func (f *fakeDocumentUpserter) Create(ctx context.Context, doc *model.Document) error {
	f.created = doc
	return f.createErr
}

type fakeFileUploader struct {
	err      error
	uploaded []byte
}

func (f *fakeFileUploader) Upload(ctx context.Context, bucket, object string, data []byte, contentType string) error {
	f.uploaded = data
	return f.err
}

type fakeJobRunner struct {
	started *model.IngestionJob
	byID    map[string]*model.IngestionJob
}

func (f *fakeJobRunner) StartJob(ctx context.Context, opts service.IngestionOptions) *model.IngestionJob {
	return f.started
}

func (f *fakeJobRunner) Job(jobID string) (*model.IngestionJob, bool) {
	job, ok := f.byID[jobID]
	return job, ok
}

func multipartIngestRequest(t *testing.T, fields map[string]string, includeFile bool) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for k, v := range fields {
		if err := w.WriteField(k, v); err != nil {
			t.Fatalf("write field: %v", err)
		}
	}
	if includeFile {
		h := make(map[string][]string)
		h["Content-Disposition"] = []string{`form-data; name="file"; filename="rule.pdf"`}
		h["Content-Type"] = []string{"application/pdf"}
		part, err := w.CreatePart(h)
		if err != nil {
			t.Fatalf("create part: %v", err)
		}
		part.Write([]byte("%PDF-1.4 fake content"))
	}
	w.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/v1/knowledge/ingest-multimodal", &buf)
	req.Header.Set("Content-Type", w.FormDataContentType())
	return req
}

func TestIngestMultimodal_HappyPath(t *testing.T) {
	docs := &fakeDocumentUpserter{}
	uploader := &fakeFileUploader{}
	jobs := &fakeJobRunner{started: &model.IngestionJob{ID: "job-1", DocumentID: "doc-1", Status: model.JobRunning, TotalPages: 5}}

	deps := KnowledgeIngestDeps{Docs: docs, Uploader: uploader, Jobs: jobs, BucketName: "bucket"}
	req := multipartIngestRequest(t, map[string]string{"document_id": "doc-1", "role": "admin"}, true)
	rec := httptest.NewRecorder()

	IngestMultimodal(deps)(rec, req)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202: %s", rec.Code, rec.Body.String())
	}
	if docs.created == nil {
		t.Error("expected a new document record to be created")
	}
	if len(uploader.uploaded) == 0 {
		t.Error("expected file bytes to be uploaded")
	}

	var resp map[string]interface{}
	json.Unmarshal(rec.Body.Bytes(), &resp)
	data := resp["data"].(map[string]interface{})
	if data["job_id"] != "job-1" {
		t.Errorf("job_id = %v, want job-1", data["job_id"])
	}
}

func TestIngestMultimodal_RequiresAdminRole(t *testing.T) {
	deps := KnowledgeIngestDeps{Docs: &fakeDocumentUpserter{}, Uploader: &fakeFileUploader{}, Jobs: &fakeJobRunner{}, BucketName: "bucket"}
	req := multipartIngestRequest(t, map[string]string{"document_id": "doc-1", "role": "student"}, true)
	rec := httptest.NewRecorder()

	IngestMultimodal(deps)(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", rec.Code)
	}
}

func TestIngestMultimodal_RejectsMissingFile(t *testing.T) {
	deps := KnowledgeIngestDeps{Docs: &fakeDocumentUpserter{}, Uploader: &fakeFileUploader{}, Jobs: &fakeJobRunner{}, BucketName: "bucket"}
	req := multipartIngestRequest(t, map[string]string{"document_id": "doc-1", "role": "admin"}, false)
	rec := httptest.NewRecorder()

	IngestMultimodal(deps)(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400 for missing file", rec.Code)
	}
}

func TestIngestMultimodal_SkipsCreateWhenDocumentExists(t *testing.T) {
	docs := &fakeDocumentUpserter{existing: &model.Document{ID: "doc-1"}}
	uploader := &fakeFileUploader{}
	jobs := &fakeJobRunner{started: &model.IngestionJob{ID: "job-2", DocumentID: "doc-1"}}

	deps := KnowledgeIngestDeps{Docs: docs, Uploader: uploader, Jobs: jobs, BucketName: "bucket"}
	req := multipartIngestRequest(t, map[string]string{"document_id": "doc-1", "role": "admin", "resume": "true"}, true)
	rec := httptest.NewRecorder()

	IngestMultimodal(deps)(rec, req)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202: %s", rec.Code, rec.Body.String())
	}
	if docs.created != nil {
		t.Error("expected no new document record when one already exists")
	}
}

func TestJobStatus_Found(t *testing.T) {
	jobs := &fakeJobRunner{byID: map[string]*model.IngestionJob{
		"job-1": {ID: "job-1", DocumentID: "doc-1", Status: model.JobCompleted, TotalPages: 3, CompletedPages: 3, DirectPages: 3},
	}}

	r := chi.NewRouter()
	r.Get("/api/v1/knowledge/jobs/{job_id}", JobStatus(jobs))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/knowledge/jobs/job-1", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}
}

func TestJobStatus_NotFound(t *testing.T) {
	jobs := &fakeJobRunner{byID: map[string]*model.IngestionJob{}}

	r := chi.NewRouter()
	r.Get("/api/v1/knowledge/jobs/{job_id}", JobStatus(jobs))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/knowledge/jobs/missing", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

type fakeKnowledgeDocLister struct {
	docs  []model.Document
	total int
	err   error
}

func (f *fakeKnowledgeDocLister) List(ctx context.Context, limit, offset int) ([]model.Document, int, error) {
	return f.docs, f.total, f.err
}

func TestKnowledgeList_HappyPath(t *testing.T) {
	repo := &fakeKnowledgeDocLister{
		docs:  []model.Document{{ID: "doc-1", Title: "COLREGs", ChunkCount: 42}},
		total: 1,
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/knowledge/list", nil)
	rec := httptest.NewRecorder()

	KnowledgeList(repo)(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var resp map[string]interface{}
	json.Unmarshal(rec.Body.Bytes(), &resp)
	data := resp["data"].(map[string]interface{})
	if int(data["total"].(float64)) != 1 {
		t.Errorf("total = %v, want 1", data["total"])
	}
}

type fakeKnowledgeStatsGetter struct {
	documents, chunks int
	err               error
}

func (f *fakeKnowledgeStatsGetter) Stats(ctx context.Context) (int, int, error) {
	return f.documents, f.chunks, f.err
}

func TestKnowledgeStats_HappyPath(t *testing.T) {
	repo := &fakeKnowledgeStatsGetter{documents: 3, chunks: 120}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/knowledge/stats", nil)
	rec := httptest.NewRecorder()

	KnowledgeStats(repo)(rec, req)

	var resp map[string]interface{}
	json.Unmarshal(rec.Body.Bytes(), &resp)
	data := resp["data"].(map[string]interface{})
	if _, hasWarning := data["warning"]; hasWarning {
		t.Error("unexpected warning on healthy stats")
	}
}

func TestKnowledgeStats_DegradedPersistenceReturnsWarning(t *testing.T) {
	repo := &fakeKnowledgeStatsGetter{err: errors.New("replica lag")}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/knowledge/stats", nil)
	rec := httptest.NewRecorder()

	KnowledgeStats(repo)(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 (degraded, not failed)", rec.Code)
	}
	var resp map[string]interface{}
	json.Unmarshal(rec.Body.Bytes(), &resp)
	data := resp["data"].(map[string]interface{})
	if _, hasWarning := data["warning"]; !hasWarning {
		t.Error("expected a warning field when persistence is degraded")
	}
}
