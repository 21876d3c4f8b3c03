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

type RoomRepository struct {
	pool *pgxpool.Pool
}

func NewRoomRepository(pool *pgxpool.Pool) *RoomRepository {
	return &RoomRepository{pool: pool}
}

// Create inserts a room and fills in the store-generated id and timestamp.
func (r *RoomRepository) Create(ctx context.Context, room *model.Room) error {
	defer logger.DeferLogDuration("room.Create", time.Now())()
	err := r.pool.QueryRow(ctx,
		`INSERT INTO rooms (name, password_hash, user_id)
		 VALUES ($1, $2, $3)
		 RETURNING id, created_at`,
		room.Name, room.PasswordHash, room.UserID,
	).Scan(&room.ID, &room.CreatedAt)
	if err != nil {
		return fmt.Errorf("roomRepo.Create: %w", err)
	}
	return nil
}

// GetByID loads a room with its member set.
func (r *RoomRepository) GetByID(ctx context.Context, id string) (*model.Room, error) {
	defer logger.DeferLogDuration("room.GetByID", time.Now())()
	var room model.Room
	err := r.pool.QueryRow(ctx,
		`SELECT r.id, r.name, r.password_hash, r.user_id, r.created_at,
		        COALESCE(array_agg(m.user_id::text ORDER BY m.joined_at)
		                 FILTER (WHERE m.user_id IS NOT NULL), '{}')
		 FROM rooms r
		 LEFT JOIN room_members m ON m.room_id = r.id
		 WHERE r.id = $1
		 GROUP BY r.id`, id,
	).Scan(&room.ID, &room.Name, &room.PasswordHash, &room.UserID, &room.CreatedAt, &room.Members)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("roomRepo.GetByID: %w", err)
	}
	return &room, nil
}

// List returns every room with members, newest first.
func (r *RoomRepository) List(ctx context.Context) ([]model.Room, error) {
	defer logger.DeferLogDuration("room.List", time.Now())()
	rows, err := r.pool.Query(ctx,
		`SELECT r.id, r.name, r.password_hash, r.user_id, r.created_at,
		        COALESCE(array_agg(m.user_id::text ORDER BY m.joined_at)
		                 FILTER (WHERE m.user_id IS NOT NULL), '{}')
		 FROM rooms r
		 LEFT JOIN room_members m ON m.room_id = r.id
		 GROUP BY r.id
		 ORDER BY r.created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("roomRepo.List query: %w", err)
	}
	defer rows.Close()

	rooms := make([]model.Room, 0, 16)
	for rows.Next() {
		var room model.Room
		if err := rows.Scan(&room.ID, &room.Name, &room.PasswordHash, &room.UserID,
			&room.CreatedAt, &room.Members); err != nil {
			return nil, fmt.Errorf("roomRepo.List scan: %w", err)
		}
		rooms = append(rooms, room)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("roomRepo.List rows: %w", err)
	}
	return rooms, nil
}

// AddMember records membership idempotently; joining twice is a no-op.
func (r *RoomRepository) AddMember(ctx context.Context, roomID, userID string) error {
	defer logger.DeferLogDuration("room.AddMember", time.Now())()
	_, err := r.pool.Exec(ctx,
		`INSERT INTO room_members (room_id, user_id)
		 VALUES ($1, $2) ON CONFLICT DO NOTHING`,
		roomID, userID,
	)
	if err != nil {
		return fmt.Errorf("roomRepo.AddMember: %w", err)
	}
	return nil
}

// Delete removes a room; members and messages go with it via cascade.
func (r *RoomRepository) Delete(ctx context.Context, id string) error {
	defer logger.DeferLogDuration("room.Delete", time.Now())()
	tag, err := r.pool.Exec(ctx, `DELETE FROM rooms WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("roomRepo.Delete: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// AddMessage inserts a room message and fills in the generated id/timestamp.
func (r *RoomRepository) AddMessage(ctx context.Context, m *model.Message) error {
	defer logger.DeferLogDuration("room.AddMessage", time.Now())()
	err := r.pool.QueryRow(ctx,
		`INSERT INTO room_messages (room_id, user_id, clip_url)
		 VALUES ($1, $2, $3)
		 RETURNING id, created_at`,
		m.RoomID, m.UserID, m.ClipURL,
	).Scan(&m.ID, &m.CreatedAt)
	if err != nil {
		return fmt.Errorf("roomRepo.AddMessage: %w", err)
	}
	return nil
}

// GetMessages returns a room's messages in posting order.
func (r *RoomRepository) GetMessages(ctx context.Context, roomID string) ([]model.Message, error) {
	defer logger.DeferLogDuration("room.GetMessages", time.Now())()
	rows, err := r.pool.Query(ctx,
		`SELECT id, room_id, user_id, clip_url, created_at
		 FROM room_messages WHERE room_id = $1
		 ORDER BY created_at`, roomID)
	if err != nil {
		return nil, fmt.Errorf("roomRepo.GetMessages query: %w", err)
	}
	defer rows.Close()

	msgs := make([]model.Message, 0, 16)
	for rows.Next() {
		var m model.Message
		if err := rows.Scan(&m.ID, &m.RoomID, &m.UserID, &m.ClipURL, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("roomRepo.GetMessages scan: %w", err)
		}
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("roomRepo.GetMessages rows: %w", err)
	}
	return msgs, nil
}

func (r *RoomRepository) GetMessage(ctx context.Context, roomID, messageID string) (*model.Message, error) {
	defer logger.DeferLogDuration("room.GetMessage", time.Now())()
	var m model.Message
	err := r.pool.QueryRow(ctx,
		`SELECT id, room_id, user_id, clip_url, created_at
		 FROM room_messages WHERE id = $1 AND room_id = $2`,
		messageID, roomID,
	).Scan(&m.ID, &m.RoomID, &m.UserID, &m.ClipURL, &m.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("roomRepo.GetMessage: %w", err)
	}
	return &m, nil
}

// DeleteMessage removes a single message; the room itself stays.
func (r *RoomRepository) DeleteMessage(ctx context.Context, roomID, messageID string) error {
	defer logger.DeferLogDuration("room.DeleteMessage", time.Now())()
	tag, err := r.pool.Exec(ctx,
		`DELETE FROM room_messages WHERE id = $1 AND room_id = $2`,
		messageID, roomID,
	)
	if err != nil {
		return fmt.Errorf("roomRepo.DeleteMessage: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
