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

type MembershipStore struct {
	pool *pgxpool.Pool
}

func NewMembershipStore(pool *pgxpool.Pool) *MembershipStore {
	return &MembershipStore{pool: pool}
}

func (s *MembershipStore) Upsert(ctx context.Context, userID, roomID uuid.UUID, active bool) (*models.Membership, error) {
	if active {
		return s.activate(ctx, userID, roomID)
	}
	return s.deactivate(ctx, userID, roomID)
}

func (s *MembershipStore) activate(ctx context.Context, userID, roomID uuid.UUID) (*models.Membership, error) {
	// ON CONFLICT DO UPDATE keeps the invariant of one row per (user, room):
	// a rejoin reactivates the existing row with a fresh joined_at instead of
	// inserting a duplicate, and two concurrent joins collapse onto the same
	// row inside Postgres.
	query := `
		INSERT INTO room_members (id, user_id, room_id, is_active, joined_at)
		VALUES (uuid_generate_v4(), $1, $2, TRUE, now())
		ON CONFLICT (user_id, room_id) DO UPDATE
		SET is_active = TRUE, joined_at = now(), left_at = NULL
		RETURNING id, user_id, room_id, is_active, joined_at, left_at`

	var m models.Membership
	err := s.pool.QueryRow(ctx, query, userID, roomID).Scan(
		&m.ID,
		&m.UserID,
		&m.RoomID,
		&m.IsActive,
		&m.JoinedAt,
		&m.LeftAt,
	)
	if err != nil {
		return nil, fmt.Errorf("upsert membership: %w", err)
	}
	return &m, nil
}

func (s *MembershipStore) deactivate(ctx context.Context, userID, roomID uuid.UUID) (*models.Membership, error) {
	// Only an active row can be left. Zero rows updated means there is
	// nothing to leave — reported as nil, nil like every absent entity.
	query := `
		UPDATE room_members
		SET is_active = FALSE, left_at = now()
		WHERE user_id = $1 AND room_id = $2 AND is_active
		RETURNING id, user_id, room_id, is_active, joined_at, left_at`

	var m models.Membership
	err := s.pool.QueryRow(ctx, query, userID, roomID).Scan(
		&m.ID,
		&m.UserID,
		&m.RoomID,
		&m.IsActive,
		&m.JoinedAt,
		&m.LeftAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("deactivate membership: %w", err)
	}
	return &m, nil
}

func (s *MembershipStore) Get(ctx context.Context, userID, roomID uuid.UUID) (*models.Membership, error) {
	query := `
		SELECT id, user_id, room_id, is_active, joined_at, left_at
		FROM room_members
		WHERE user_id = $1 AND room_id = $2`

	var m models.Membership
	err := s.pool.QueryRow(ctx, query, userID, roomID).Scan(
		&m.ID,
		&m.UserID,
		&m.RoomID,
		&m.IsActive,
		&m.JoinedAt,
		&m.LeftAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get membership: %w", err)
	}
	return &m, nil
}

func (s *MembershipStore) ListByRoom(ctx context.Context, roomID uuid.UUID) ([]models.Membership, error) {
	query := `
		SELECT rm.id, rm.user_id, rm.room_id, rm.is_active, rm.joined_at, rm.left_at,
			u.id, u.name, u.email
		FROM room_members rm
		JOIN users u ON u.id = rm.user_id
		WHERE rm.room_id = $1 AND rm.is_active
		ORDER BY rm.joined_at`

	rows, err := s.pool.Query(ctx, query, roomID)
	if err != nil {
		return nil, fmt.Errorf("list members: %w", err)
	}
	defer rows.Close()

	members := make([]models.Membership, 0)
	for rows.Next() {
		var m models.Membership
		var ref models.UserRef
		if err := rows.Scan(
			&m.ID,
			&m.UserID,
			&m.RoomID,
			&m.IsActive,
			&m.JoinedAt,
			&m.LeftAt,
			&ref.ID,
			&ref.Name,
			&ref.Email,
		); err != nil {
			return nil, fmt.Errorf("scan member: %w", err)
		}
		m.User = &ref
		members = append(members, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate members: %w", err)
	}

	return members, nil
}
