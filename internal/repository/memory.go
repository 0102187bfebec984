package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/maritime-tutor/backend/internal/model"
)

// MemoryRepo persists the managed insight list (user_facts).
type MemoryRepo struct {
	pool *pgxpool.Pool
}

// NewMemoryRepo creates a MemoryRepo.
func NewMemoryRepo(pool *pgxpool.Pool) *MemoryRepo {
	return &MemoryRepo{pool: pool}
}

// ListFacts returns up to limit facts for a user, most recently updated first.
func (r *MemoryRepo) ListFacts(ctx context.Context, userID string, limit int) ([]model.MemoryFact, error) {
	if limit <= 0 {
		limit = model.MemoryFactCap
	}
	rows, err := r.pool.Query(ctx, `
		SELECT id, user_id, fact_type, content, created_at, updated_at
		FROM user_facts WHERE user_id = $1
		ORDER BY updated_at DESC LIMIT $2`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("repository.Memory.ListFacts: %w", err)
	}
	defer rows.Close()

	var facts []model.MemoryFact
	for rows.Next() {
		var f model.MemoryFact
		var factType string
		if err := rows.Scan(&f.ID, &f.UserID, &factType, &f.Content, &f.CreatedAt, &f.UpdatedAt); err != nil {
			return nil, fmt.Errorf("repository.Memory.ListFacts: scan: %w", err)
		}
		f.FactType = model.FactType(factType)
		facts = append(facts, f)
	}
	return facts, rows.Err()
}

// UpsertSingletonFact inserts or updates the one fact of a singleton type for a user.
func (r *MemoryRepo) UpsertSingletonFact(ctx context.Context, userID string, factType model.FactType, content string) error {
	now := time.Now().UTC()
	_, err := r.pool.Exec(ctx, `
		INSERT INTO user_facts (id, user_id, fact_type, content, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$5)
		ON CONFLICT (user_id, fact_type) DO UPDATE SET
			content = EXCLUDED.content, updated_at = EXCLUDED.updated_at`,
		uuid.New().String(), userID, string(factType), content, now)
	if err != nil {
		return fmt.Errorf("repository.Memory.UpsertSingletonFact: %w", err)
	}
	return nil
}

// InsertFact adds a new list-valued fact.
func (r *MemoryRepo) InsertFact(ctx context.Context, userID string, factType model.FactType, content string) error {
	now := time.Now().UTC()
	_, err := r.pool.Exec(ctx, `
		INSERT INTO user_facts (id, user_id, fact_type, content, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$5)`,
		uuid.New().String(), userID, string(factType), content, now)
	if err != nil {
		return fmt.Errorf("repository.Memory.InsertFact: %w", err)
	}
	return nil
}

// DeleteFactsByType removes all facts of a given type for a user (used by
// the user-controlled `forget` tool).
func (r *MemoryRepo) DeleteFactsByType(ctx context.Context, userID string, factType model.FactType) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM user_facts WHERE user_id = $1 AND fact_type = $2`, userID, string(factType))
	if err != nil {
		return fmt.Errorf("repository.Memory.DeleteFactsByType: %w", err)
	}
	return nil
}

// ClearAll removes every fact for a user (used by `clear_all_memories`).
func (r *MemoryRepo) ClearAll(ctx context.Context, userID string) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM user_facts WHERE user_id = $1`, userID)
	if err != nil {
		return fmt.Errorf("repository.Memory.ClearAll: %w", err)
	}
	return nil
}

// EvictOldestIfOverCap deletes the least-recently-updated facts for a user
// until the count is within cap.
func (r *MemoryRepo) EvictOldestIfOverCap(ctx context.Context, userID string, cap int) error {
	_, err := r.pool.Exec(ctx, `
		DELETE FROM user_facts WHERE id IN (
			SELECT id FROM user_facts WHERE user_id = $1
			ORDER BY updated_at DESC OFFSET $2
		)`, userID, cap)
	if err != nil {
		return fmt.Errorf("repository.Memory.EvictOldestIfOverCap: %w", err)
	}
	return nil
}

// CountByUser returns the current number of facts stored for a user.
func (r *MemoryRepo) CountByUser(ctx context.Context, userID string) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx, `SELECT count(*) FROM user_facts WHERE user_id = $1`, userID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("repository.Memory.CountByUser: %w", err)
	}
	return count, nil
}
