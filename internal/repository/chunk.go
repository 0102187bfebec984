package repository

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgvector "github.com/pgvector/pgvector-go"
	"golang.org/x/sync/errgroup"

	"github.com/maritime-tutor/backend/internal/model"
)

// ChunkRepo implements the persistence layer's narrow chunk-facing interface:
// InsertChunks, HybridSearch, GetChunkByID, ListChunks.
type ChunkRepo struct {
	pool *pgxpool.Pool
}

// NewChunkRepo creates a ChunkRepo.
func NewChunkRepo(pool *pgxpool.Pool) *ChunkRepo {
	return &ChunkRepo{pool: pool}
}

// ChunkFilter scopes HybridSearch and ListChunks.
type ChunkFilter struct {
	DocumentID  string
	ContentType model.ContentType
	PageNumber  int // 0 means unset
}

// ScoredChunk is one hit of a hybrid search, carrying the component scores
// needed by citation assembly and callers that want to explain a ranking.
type ScoredChunk struct {
	Chunk      model.DocumentChunk
	DenseScore float64
	LexScore   float64
	FusedScore float64
}

// InsertChunks stores all chunks for one ingestion unit (typically one page)
// in a single transaction, so a partial failure never leaves the page
// half-indexed. The lexical_vector column is maintained by a generated-column
// trigger at the schema level (see migrations); this layer only writes content.
func (r *ChunkRepo) InsertChunks(ctx context.Context, chunks []model.DocumentChunk) error {
	if len(chunks) == 0 {
		return nil
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("repository.InsertChunks: begin: %w", err)
	}
	defer tx.Rollback(ctx)

	batch := &pgx.Batch{}
	now := time.Now().UTC()

	for _, c := range chunks {
		embedding := pgvector.NewVector(c.Embedding)
		boxes, err := marshalBoundingBoxes(c.BoundingBoxes)
		if err != nil {
			return fmt.Errorf("repository.InsertChunks: marshal bounding boxes: %w", err)
		}

		batch.Queue(`
			INSERT INTO knowledge_embeddings (
				id, document_id, page_number, chunk_index, content, content_type,
				confidence_score, embedding, image_url, bounding_boxes, created_at, updated_at
			) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$11)
			ON CONFLICT (document_id, page_number, chunk_index) DO UPDATE SET
				content = EXCLUDED.content,
				content_type = EXCLUDED.content_type,
				confidence_score = EXCLUDED.confidence_score,
				embedding = EXCLUDED.embedding,
				image_url = EXCLUDED.image_url,
				bounding_boxes = EXCLUDED.bounding_boxes,
				updated_at = EXCLUDED.updated_at`,
			c.ID, c.DocumentID, c.PageNumber, c.ChunkIndex, c.Content, string(c.ContentType),
			c.Confidence, embedding, c.ImageURL, boxes, now,
		)
	}

	br := tx.SendBatch(ctx, batch)
	for i := 0; i < len(chunks); i++ {
		if _, err := br.Exec(); err != nil {
			br.Close()
			return fmt.Errorf("repository.InsertChunks: chunk %d: %w", i, err)
		}
	}
	if err := br.Close(); err != nil {
		return fmt.Errorf("repository.InsertChunks: close batch: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("repository.InsertChunks: commit: %w", err)
	}
	return nil
}

// HybridSearch implements the dense+lexical fusion algorithm: top-K_d by
// cosine similarity, top-K_l by ts_rank_cd, fused s = alpha*s_d + (1-alpha)*s_l
// with lexical scores normalized by the top lexical score in the candidate
// set, filters applied after fusion, ties broken by (page_number, chunk_index).
func (r *ChunkRepo) HybridSearch(ctx context.Context, queryText string, queryEmbedding []float32, k, denseCandidates, lexicalCandidates int, alpha float64, filter ChunkFilter) ([]ScoredChunk, error) {
	var dense, lexical []candidateHit

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		hits, err := r.denseCandidates(gctx, queryEmbedding, denseCandidates)
		if err != nil {
			return fmt.Errorf("dense: %w", err)
		}
		dense = hits
		return nil
	})
	g.Go(func() error {
		hits, err := r.lexicalCandidates(gctx, queryText, lexicalCandidates)
		if err != nil {
			return fmt.Errorf("lexical: %w", err)
		}
		lexical = hits
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("repository.HybridSearch: %w", err)
	}

	topLex := 0.0
	for _, l := range lexical {
		if l.score > topLex {
			topLex = l.score
		}
	}

	byID := make(map[string]*ScoredChunk, len(dense)+len(lexical))
	for _, d := range dense {
		byID[d.chunk.ID] = &ScoredChunk{Chunk: d.chunk, DenseScore: d.score}
	}
	for _, l := range lexical {
		normalized := 0.0
		if topLex > 0 {
			normalized = l.score / topLex
		}
		if existing, ok := byID[l.chunk.ID]; ok {
			existing.LexScore = normalized
		} else {
			byID[l.chunk.ID] = &ScoredChunk{Chunk: l.chunk, LexScore: normalized}
		}
	}

	results := make([]ScoredChunk, 0, len(byID))
	for _, sc := range byID {
		sc.FusedScore = alpha*sc.DenseScore + (1-alpha)*sc.LexScore
		if !matchesFilter(sc.Chunk, filter) {
			continue
		}
		results = append(results, *sc)
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].FusedScore != results[j].FusedScore {
			return results[i].FusedScore > results[j].FusedScore
		}
		if results[i].Chunk.PageNumber != results[j].Chunk.PageNumber {
			return results[i].Chunk.PageNumber < results[j].Chunk.PageNumber
		}
		return results[i].Chunk.ChunkIndex < results[j].Chunk.ChunkIndex
	})

	if k > 0 && len(results) > k {
		results = results[:k]
	}

	slog.Debug("[DEBUG-RETRIEVER] hybrid search complete",
		"dense_candidates", len(dense), "lexical_candidates", len(lexical),
		"fused_results", len(results), "alpha", alpha)

	return results, nil
}

type candidateHit struct {
	chunk model.DocumentChunk
	score float64
}

func (r *ChunkRepo) denseCandidates(ctx context.Context, queryEmbedding []float32, limit int) ([]candidateHit, error) {
	embedding := pgvector.NewVector(queryEmbedding)
	rows, err := r.pool.Query(ctx, `
		SELECT id, document_id, page_number, chunk_index, content, content_type,
		       confidence_score, image_url, bounding_boxes, created_at, updated_at,
		       1 - (embedding <=> $1::vector) AS similarity
		FROM knowledge_embeddings
		ORDER BY embedding <=> $1::vector
		LIMIT $2`, embedding, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var hits []candidateHit
	for rows.Next() {
		c, score, err := scanScoredChunk(rows)
		if err != nil {
			return nil, err
		}
		hits = append(hits, candidateHit{chunk: c, score: score})
	}
	return hits, rows.Err()
}

func (r *ChunkRepo) lexicalCandidates(ctx context.Context, queryText string, limit int) ([]candidateHit, error) {
	if queryText == "" {
		return nil, nil
	}
	rows, err := r.pool.Query(ctx, `
		SELECT id, document_id, page_number, chunk_index, content, content_type,
		       confidence_score, image_url, bounding_boxes, created_at, updated_at,
		       ts_rank_cd(lexical_vector, plainto_tsquery('english', $1)) AS rank
		FROM knowledge_embeddings
		WHERE lexical_vector @@ plainto_tsquery('english', $1)
		ORDER BY rank DESC
		LIMIT $2`, queryText, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var hits []candidateHit
	for rows.Next() {
		c, score, err := scanScoredChunk(rows)
		if err != nil {
			return nil, err
		}
		hits = append(hits, candidateHit{chunk: c, score: score})
	}
	return hits, rows.Err()
}

func scanScoredChunk(rows pgx.Rows) (model.DocumentChunk, float64, error) {
	var c model.DocumentChunk
	var contentType string
	var boxesJSON []byte
	var score float64

	err := rows.Scan(
		&c.ID, &c.DocumentID, &c.PageNumber, &c.ChunkIndex, &c.Content, &contentType,
		&c.Confidence, &c.ImageURL, &boxesJSON, &c.CreatedAt, &c.UpdatedAt, &score,
	)
	if err != nil {
		return c, 0, fmt.Errorf("repository.scanScoredChunk: %w", err)
	}
	c.ContentType = model.ContentType(contentType)
	c.BoundingBoxes, err = unmarshalBoundingBoxes(boxesJSON)
	if err != nil {
		return c, 0, fmt.Errorf("repository.scanScoredChunk: bounding boxes: %w", err)
	}
	return c, score, nil
}

func matchesFilter(c model.DocumentChunk, f ChunkFilter) bool {
	if f.DocumentID != "" && c.DocumentID != f.DocumentID {
		return false
	}
	if f.ContentType != "" && c.ContentType != f.ContentType {
		return false
	}
	if f.PageNumber != 0 && c.PageNumber != f.PageNumber {
		return false
	}
	return true
}

// GetChunkByID fetches a single chunk including its visual evidence fields.
func (r *ChunkRepo) GetChunkByID(ctx context.Context, nodeID string) (*model.DocumentChunk, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, document_id, page_number, chunk_index, content, content_type,
		       confidence_score, image_url, bounding_boxes, created_at, updated_at
		FROM knowledge_embeddings WHERE id = $1`, nodeID)

	var c model.DocumentChunk
	var contentType string
	var boxesJSON []byte
	err := row.Scan(&c.ID, &c.DocumentID, &c.PageNumber, &c.ChunkIndex, &c.Content, &contentType,
		&c.Confidence, &c.ImageURL, &boxesJSON, &c.CreatedAt, &c.UpdatedAt)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("repository.GetChunkByID: %w", err)
	}
	c.ContentType = model.ContentType(contentType)
	if c.BoundingBoxes, err = unmarshalBoundingBoxes(boxesJSON); err != nil {
		return nil, fmt.Errorf("repository.GetChunkByID: bounding boxes: %w", err)
	}
	return &c, nil
}

// ListChunks returns a filtered, paginated listing of chunks.
func (r *ChunkRepo) ListChunks(ctx context.Context, filter ChunkFilter, page, limit int) ([]model.DocumentChunk, int, error) {
	if limit <= 0 {
		limit = 20
	}
	if page < 1 {
		page = 1
	}

	where := "WHERE true"
	args := []interface{}{}
	argN := 1
	if filter.DocumentID != "" {
		where += fmt.Sprintf(" AND document_id = $%d", argN)
		args = append(args, filter.DocumentID)
		argN++
	}
	if filter.ContentType != "" {
		where += fmt.Sprintf(" AND content_type = $%d", argN)
		args = append(args, string(filter.ContentType))
		argN++
	}
	if filter.PageNumber != 0 {
		where += fmt.Sprintf(" AND page_number = $%d", argN)
		args = append(args, filter.PageNumber)
		argN++
	}

	var total int
	countQuery := "SELECT count(*) FROM knowledge_embeddings " + where
	if err := r.pool.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("repository.ListChunks: count: %w", err)
	}

	listArgs := append(append([]interface{}{}, args...), limit, (page-1)*limit)
	listQuery := fmt.Sprintf(`
		SELECT id, document_id, page_number, chunk_index, content, content_type,
		       confidence_score, image_url, bounding_boxes, created_at, updated_at
		FROM knowledge_embeddings %s
		ORDER BY document_id, page_number, chunk_index
		LIMIT $%d OFFSET $%d`, where, argN, argN+1)

	rows, err := r.pool.Query(ctx, listQuery, listArgs...)
	if err != nil {
		return nil, 0, fmt.Errorf("repository.ListChunks: query: %w", err)
	}
	defer rows.Close()

	var chunks []model.DocumentChunk
	for rows.Next() {
		var c model.DocumentChunk
		var contentType string
		var boxesJSON []byte
		if err := rows.Scan(&c.ID, &c.DocumentID, &c.PageNumber, &c.ChunkIndex, &c.Content, &contentType,
			&c.Confidence, &c.ImageURL, &boxesJSON, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, 0, fmt.Errorf("repository.ListChunks: scan: %w", err)
		}
		c.ContentType = model.ContentType(contentType)
		if c.BoundingBoxes, err = unmarshalBoundingBoxes(boxesJSON); err != nil {
			return nil, 0, fmt.Errorf("repository.ListChunks: bounding boxes: %w", err)
		}
		chunks = append(chunks, c)
	}
	return chunks, total, rows.Err()
}

// DeleteByDocumentID removes all chunks for a document (admin deletion).
func (r *ChunkRepo) DeleteByDocumentID(ctx context.Context, documentID string) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM knowledge_embeddings WHERE document_id = $1`, documentID)
	if err != nil {
		return fmt.Errorf("repository.DeleteByDocumentID: %w", err)
	}
	return nil
}

// CountByDocumentID returns the number of chunks already persisted for a
// document, used by resume semantics during ingestion.
func (r *ChunkRepo) CountByDocumentID(ctx context.Context, documentID string) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx, `SELECT count(*) FROM knowledge_embeddings WHERE document_id = $1`, documentID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("repository.CountByDocumentID: %w", err)
	}
	return count, nil
}

// ExistsForPage reports whether any chunk already exists for (document_id,
// page_number), used by ingestion resume semantics to skip completed pages.
func (r *ChunkRepo) ExistsForPage(ctx context.Context, documentID string, pageNumber int) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `
		SELECT EXISTS(SELECT 1 FROM knowledge_embeddings WHERE document_id = $1 AND page_number = $2)`,
		documentID, pageNumber).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("repository.ExistsForPage: %w", err)
	}
	return exists, nil
}
