package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/maritime-tutor/backend/internal/model"
)

// DocumentRepo persists Document records for ingested regulatory sources.
type DocumentRepo struct {
	pool *pgxpool.Pool
}

// NewDocumentRepo creates a DocumentRepo.
func NewDocumentRepo(pool *pgxpool.Pool) *DocumentRepo {
	return &DocumentRepo{pool: pool}
}

func (r *DocumentRepo) Create(ctx context.Context, doc *model.Document) error {
	meta := doc.Metadata
	if meta == nil {
		meta = json.RawMessage(`{}`)
	}

	_, err := r.pool.Exec(ctx, `
		INSERT INTO documents (
			id, user_id, title, filename, original_name, mime_type,
			size_bytes, storage_uri, page_count, index_status,
			deletion_status, chunk_count, checksum, metadata, created_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$15)`,
		doc.ID, doc.UserID, doc.Title, doc.Filename, doc.OriginalName, doc.MimeType,
		doc.SizeBytes, doc.StorageURI, doc.PageCount, string(doc.IndexStatus),
		string(doc.DeletionStatus), doc.ChunkCount, doc.Checksum, meta, doc.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("repository.Document.Create: %w", err)
	}
	return nil
}

func (r *DocumentRepo) GetByID(ctx context.Context, id string) (*model.Document, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, user_id, title, filename, original_name, mime_type,
		       size_bytes, storage_uri, page_count, index_status, deletion_status,
		       chunk_count, checksum, metadata, deleted_at, created_at, updated_at
		FROM documents WHERE id = $1`, id)

	doc, indexStatus, deletionStatus := &model.Document{}, "", ""
	var metaJSON []byte
	err := row.Scan(&doc.ID, &doc.UserID, &doc.Title, &doc.Filename, &doc.OriginalName, &doc.MimeType,
		&doc.SizeBytes, &doc.StorageURI, &doc.PageCount, &indexStatus, &deletionStatus,
		&doc.ChunkCount, &doc.Checksum, &metaJSON, &doc.DeletedAt, &doc.CreatedAt, &doc.UpdatedAt)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("repository.Document.GetByID: %w", err)
	}
	doc.IndexStatus = model.IndexStatus(indexStatus)
	doc.DeletionStatus = model.DeletionStatus(deletionStatus)
	doc.Metadata = json.RawMessage(metaJSON)
	return doc, nil
}

// List returns documents with chunk counts, newest first.
func (r *DocumentRepo) List(ctx context.Context, limit, offset int) ([]model.Document, int, error) {
	if limit <= 0 {
		limit = 20
	}

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT count(*) FROM documents WHERE deletion_status = 'Active'`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("repository.Document.List: count: %w", err)
	}

	rows, err := r.pool.Query(ctx, `
		SELECT id, user_id, title, filename, original_name, mime_type,
		       size_bytes, storage_uri, page_count, index_status, deletion_status,
		       chunk_count, checksum, created_at, updated_at
		FROM documents WHERE deletion_status = 'Active'
		ORDER BY created_at DESC LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("repository.Document.List: query: %w", err)
	}
	defer rows.Close()

	var docs []model.Document
	for rows.Next() {
		var d model.Document
		var indexStatus, deletionStatus string
		if err := rows.Scan(&d.ID, &d.UserID, &d.Title, &d.Filename, &d.OriginalName, &d.MimeType,
			&d.SizeBytes, &d.StorageURI, &d.PageCount, &indexStatus, &deletionStatus,
			&d.ChunkCount, &d.Checksum, &d.CreatedAt, &d.UpdatedAt); err != nil {
			return nil, 0, fmt.Errorf("repository.Document.List: scan: %w", err)
		}
		d.IndexStatus = model.IndexStatus(indexStatus)
		d.DeletionStatus = model.DeletionStatus(deletionStatus)
		docs = append(docs, d)
	}
	return docs, total, rows.Err()
}

func (r *DocumentRepo) UpdateStatus(ctx context.Context, id string, status model.IndexStatus) error {
	_, err := r.pool.Exec(ctx, `UPDATE documents SET index_status = $1, updated_at = $2 WHERE id = $3`,
		string(status), time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("repository.Document.UpdateStatus: %w", err)
	}
	return nil
}

func (r *DocumentRepo) UpdatePageCount(ctx context.Context, id string, pageCount int) error {
	_, err := r.pool.Exec(ctx, `UPDATE documents SET page_count = $1, updated_at = $2 WHERE id = $3`,
		pageCount, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("repository.Document.UpdatePageCount: %w", err)
	}
	return nil
}

func (r *DocumentRepo) UpdateChunkCount(ctx context.Context, id string, count int) error {
	_, err := r.pool.Exec(ctx, `UPDATE documents SET chunk_count = $1, updated_at = $2 WHERE id = $3`,
		count, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("repository.Document.UpdateChunkCount: %w", err)
	}
	return nil
}

func (r *DocumentRepo) SoftDelete(ctx context.Context, id string) error {
	now := time.Now().UTC()
	_, err := r.pool.Exec(ctx,
		`UPDATE documents SET deletion_status = 'SoftDeleted', deleted_at = $1, updated_at = $1 WHERE id = $2`,
		now, id)
	if err != nil {
		return fmt.Errorf("repository.Document.SoftDelete: %w", err)
	}
	return nil
}

// Stats returns total document and chunk counts for the knowledge-stats endpoint.
func (r *DocumentRepo) Stats(ctx context.Context) (documents int, chunks int, err error) {
	err = r.pool.QueryRow(ctx, `SELECT count(*) FROM documents WHERE deletion_status = 'Active'`).Scan(&documents)
	if err != nil {
		return 0, 0, fmt.Errorf("repository.Document.Stats: documents: %w", err)
	}
	err = r.pool.QueryRow(ctx, `SELECT count(*) FROM knowledge_embeddings`).Scan(&chunks)
	if err != nil {
		return 0, 0, fmt.Errorf("repository.Document.Stats: chunks: %w", err)
	}
	return documents, chunks, nil
}
