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

// ProfileRepo persists LearningProfile rows, keyed by external user id.
type ProfileRepo struct {
	pool *pgxpool.Pool
}

// NewProfileRepo creates a ProfileRepo.
func NewProfileRepo(pool *pgxpool.Pool) *ProfileRepo {
	return &ProfileRepo{pool: pool}
}

// GetProfile fetches a profile, or nil if none exists yet.
func (r *ProfileRepo) GetProfile(ctx context.Context, userID string) (*model.LearningProfile, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT user_id, level, learning_style, weak_topics, strong_topics,
		       total_sessions, total_messages, attributes, created_at, updated_at
		FROM learning_profile WHERE user_id = $1`, userID)

	var p model.LearningProfile
	var weakJSON, strongJSON, attrJSON []byte
	err := row.Scan(&p.UserID, &p.Level, &p.LearningStyle, &weakJSON, &strongJSON,
		&p.SessionCount, &p.MessageCount, &attrJSON, &p.CreatedAt, &p.UpdatedAt)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("repository.Profile.GetProfile: %w", err)
	}
	json.Unmarshal(weakJSON, &p.WeakTopics)
	json.Unmarshal(strongJSON, &p.StrongTopics)
	json.Unmarshal(attrJSON, &p.Attributes)
	return &p, nil
}

// UpsertProfile creates the profile at first interaction or overwrites it
// wholesale; callers read-modify-write via GetProfile first.
func (r *ProfileRepo) UpsertProfile(ctx context.Context, p *model.LearningProfile) error {
	weakJSON, _ := json.Marshal(p.WeakTopics)
	strongJSON, _ := json.Marshal(p.StrongTopics)
	attrJSON, _ := json.Marshal(p.Attributes)
	now := time.Now().UTC()

	_, err := r.pool.Exec(ctx, `
		INSERT INTO learning_profile (
			user_id, level, learning_style, weak_topics, strong_topics,
			total_sessions, total_messages, attributes, created_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$9)
		ON CONFLICT (user_id) DO UPDATE SET
			level = EXCLUDED.level,
			learning_style = EXCLUDED.learning_style,
			weak_topics = EXCLUDED.weak_topics,
			strong_topics = EXCLUDED.strong_topics,
			total_sessions = EXCLUDED.total_sessions,
			total_messages = EXCLUDED.total_messages,
			attributes = EXCLUDED.attributes,
			updated_at = EXCLUDED.updated_at`,
		p.UserID, p.Level, p.LearningStyle, weakJSON, strongJSON,
		p.SessionCount, p.MessageCount, attrJSON, now,
	)
	if err != nil {
		return fmt.Errorf("repository.Profile.UpsertProfile: %w", err)
	}
	return nil
}

// IncrementCounters bumps session/message counters for a user, creating a
// default profile row first if none exists.
func (r *ProfileRepo) IncrementCounters(ctx context.Context, userID string, sessions, messages int) error {
	now := time.Now().UTC()
	_, err := r.pool.Exec(ctx, `
		INSERT INTO learning_profile (user_id, level, total_sessions, total_messages, attributes, created_at, updated_at)
		VALUES ($1, 'beginner', $2, $3, '{}', $4, $4)
		ON CONFLICT (user_id) DO UPDATE SET
			total_sessions = learning_profile.total_sessions + $2,
			total_messages = learning_profile.total_messages + $3,
			updated_at = $4`,
		userID, sessions, messages, now)
	if err != nil {
		return fmt.Errorf("repository.Profile.IncrementCounters: %w", err)
	}
	return nil
}
