package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/echowave/internal/logger"
	"github.com/echowave/internal/model"
)

type ClipRepository struct {
	pool *pgxpool.Pool
}

func NewClipRepository(pool *pgxpool.Pool) *ClipRepository {
	return &ClipRepository{pool: pool}
}

const clipColumns = `id, user_id, filename, url, size, duration, room_id, transcript,
	 sentiment, tags, processing_status, report_count, is_hidden, created_at`

func scanClip(row pgx.Row) (*model.Clip, error) {
	var c model.Clip
	err := row.Scan(&c.ID, &c.UserID, &c.Filename, &c.URL, &c.Size, &c.Duration,
		&c.RoomID, &c.Transcript, &c.Sentiment, &c.Tags, &c.ProcessingStatus,
		&c.ReportCount, &c.IsHidden, &c.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// Create inserts a clip and fills in the store-generated id and timestamp.
func (r *ClipRepository) Create(ctx context.Context, c *model.Clip) error {
	defer logger.DeferLogDuration("clip.Create", time.Now())()
	err := r.pool.QueryRow(ctx,
		`INSERT INTO clips (user_id, filename, url, size, duration, room_id, processing_status)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING id, created_at`,
		c.UserID, c.Filename, c.URL, c.Size, c.Duration, c.RoomID, model.ProcessingPending,
	).Scan(&c.ID, &c.CreatedAt)
	if err != nil {
		return fmt.Errorf("clipRepo.Create: %w", err)
	}
	c.ProcessingStatus = model.ProcessingPending
	return nil
}

func (r *ClipRepository) GetByID(ctx context.Context, id string) (*model.Clip, error) {
	defer logger.DeferLogDuration("clip.GetByID", time.Now())()
	c, err := scanClip(r.pool.QueryRow(ctx,
		`SELECT `+clipColumns+` FROM clips WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("clipRepo.GetByID: %w", err)
	}
	return c, nil
}

// ListPublic returns feed clips, newest first. Room-scoped and hidden clips
// never show up here.
func (r *ClipRepository) ListPublic(ctx context.Context) ([]model.Clip, error) {
	defer logger.DeferLogDuration("clip.ListPublic", time.Now())()
	rows, err := r.pool.Query(ctx,
		`SELECT `+clipColumns+` FROM clips
		 WHERE room_id IS NULL AND NOT is_hidden
		 ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("clipRepo.ListPublic query: %w", err)
	}
	defer rows.Close()

	clips := make([]model.Clip, 0, 32)
	for rows.Next() {
		c, err := scanClip(rows)
		if err != nil {
			return nil, fmt.Errorf("clipRepo.ListPublic scan: %w", err)
		}
		clips = append(clips, *c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("clipRepo.ListPublic rows: %w", err)
	}
	return clips, nil
}

func (r *ClipRepository) Delete(ctx context.Context, id string) error {
	defer logger.DeferLogDuration("clip.Delete", time.Now())()
	tag, err := r.pool.Exec(ctx, `DELETE FROM clips WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("clipRepo.Delete: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// SetReaction records the caller's reaction on a clip. A repeated reaction
// from the same user replaces the previous one; the primary key on
// (clip_id, user_id) makes the at-most-one rule hold under races. created_at
// is refreshed so a replaced reaction sorts as the newest entry.
func (r *ClipRepository) SetReaction(ctx context.Context, clipID, userID string, t model.ReactionType) error {
	defer logger.DeferLogDuration("clip.SetReaction", time.Now())()
	_, err := r.pool.Exec(ctx,
		`INSERT INTO clip_reactions (clip_id, user_id, type)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (clip_id, user_id)
		 DO UPDATE SET type = EXCLUDED.type, created_at = now()`,
		clipID, userID, t,
	)
	if err != nil {
		return fmt.Errorf("clipRepo.SetReaction: %w", err)
	}
	return nil
}

func (r *ClipRepository) GetReactions(ctx context.Context, clipID string) ([]model.Reaction, error) {
	defer logger.DeferLogDuration("clip.GetReactions", time.Now())()
	rows, err := r.pool.Query(ctx,
		`SELECT clip_id, user_id, type, created_at
		 FROM clip_reactions WHERE clip_id = $1
		 ORDER BY created_at`, clipID)
	if err != nil {
		return nil, fmt.Errorf("clipRepo.GetReactions query: %w", err)
	}
	defer rows.Close()
	return collectReactions(rows, "clipRepo.GetReactions")
}

// GetReactionsForClips loads reactions for a whole feed page in one query.
func (r *ClipRepository) GetReactionsForClips(ctx context.Context, clipIDs []string) ([]model.Reaction, error) {
	defer logger.DeferLogDuration("clip.GetReactionsForClips", time.Now())()
	if len(clipIDs) == 0 {
		return nil, nil
	}
	rows, err := r.pool.Query(ctx,
		`SELECT clip_id, user_id, type, created_at
		 FROM clip_reactions WHERE clip_id = ANY($1)
		 ORDER BY created_at`, clipIDs)
	if err != nil {
		return nil, fmt.Errorf("clipRepo.GetReactionsForClips query: %w", err)
	}
	defer rows.Close()
	return collectReactions(rows, "clipRepo.GetReactionsForClips")
}

func collectReactions(rows pgx.Rows, op string) ([]model.Reaction, error) {
	reactions := make([]model.Reaction, 0, 8)
	for rows.Next() {
		var rc model.Reaction
		if err := rows.Scan(&rc.ClipID, &rc.UserID, &rc.Type, &rc.CreatedAt); err != nil {
			return nil, fmt.Errorf("%s scan: %w", op, err)
		}
		reactions = append(reactions, rc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s rows: %w", op, err)
	}
	return reactions, nil
}
