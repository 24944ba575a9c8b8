package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dmoreira/interchat/internal/models"
)

type RoomStore struct {
	pool *pgxpool.Pool
}

func NewRoomStore(pool *pgxpool.Pool) *RoomStore {
	return &RoomStore{pool: pool}
}

func (s *RoomStore) GetByID(ctx context.Context, roomID uuid.UUID) (*models.Room, error) {
	query := `
		SELECT id, name, description, color, is_active, created_at
		FROM rooms
		WHERE id = $1`

	var r models.Room
	err := s.pool.QueryRow(ctx, query, roomID).Scan(
		&r.ID,
		&r.Name,
		&r.Description,
		&r.Color,
		&r.IsActive,
		&r.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get room: %w", err)
	}
	return &r, nil
}

func (s *RoomStore) ListActive(ctx context.Context) ([]models.Room, error) {
	query := `
		SELECT id, name, description, color, is_active, created_at
		FROM rooms
		WHERE is_active
		ORDER BY name`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list rooms: %w", err)
	}
	defer rows.Close()

	rooms := make([]models.Room, 0)
	for rows.Next() {
		var r models.Room
		if err := rows.Scan(
			&r.ID,
			&r.Name,
			&r.Description,
			&r.Color,
			&r.IsActive,
			&r.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan room: %w", err)
		}
		rooms = append(rooms, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rooms: %w", err)
	}

	return rooms, nil
}

func (s *RoomStore) Stats(ctx context.Context) ([]models.RoomStats, error) {
	query := `
		SELECT r.id, r.name,
			count(DISTINCT rm.user_id) FILTER (WHERE rm.is_active),
			count(DISTINCT m.id)
		FROM rooms r
		LEFT JOIN room_members rm ON rm.room_id = r.id
		LEFT JOIN messages m ON m.room_id = r.id
		WHERE r.is_active
		GROUP BY r.id, r.name
		ORDER BY r.name`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("room stats: %w", err)
	}
	defer rows.Close()

	stats := make([]models.RoomStats, 0)
	for rows.Next() {
		var st models.RoomStats
		if err := rows.Scan(&st.RoomID, &st.Name, &st.ActiveMembers, &st.Messages); err != nil {
			return nil, fmt.Errorf("scan room stats: %w", err)
		}
		stats = append(stats, st)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate room stats: %w", err)
	}

	return stats, nil
}
