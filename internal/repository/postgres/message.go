package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dmoreira/interchat/internal/models"
)

type MessageStore struct {
	pool *pgxpool.Pool
}

func NewMessageStore(pool *pgxpool.Pool) *MessageStore {
	return &MessageStore{pool: pool}
}

func (s *MessageStore) Create(ctx context.Context, userID, roomID uuid.UUID, msgType models.MessageType, content, imageURL string) (*models.Message, error) {
	// Messages use bigserial, so Postgres assigns the id; the sequence is
	// the per-room ordering the pipeline fans out in. image_url is stored
	// as NULL when empty.
	query := `
		INSERT INTO messages (user_id, room_id, type, content, image_url, created_at)
		VALUES ($1, $2, $3, $4, NULLIF($5, ''), now())
		RETURNING id, content, type, COALESCE(image_url, ''), user_id, room_id, created_at`

	var msg models.Message
	err := s.pool.QueryRow(ctx, query, userID, roomID, string(msgType), content, imageURL).Scan(
		&msg.ID,
		&msg.Content,
		&msg.Type,
		&msg.ImageURL,
		&msg.UserID,
		&msg.RoomID,
		&msg.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("insert message: %w", err)
	}
	return &msg, nil
}

func (s *MessageStore) ListByRoom(ctx context.Context, roomID uuid.UUID) ([]models.Message, error) {
	// Ascending by id, which equals ascending by created_at: this is the
	// replay order a client backfills with after connecting.
	query := `
		SELECT m.id, m.content, m.type, COALESCE(m.image_url, ''), m.user_id, m.room_id, m.created_at,
			u.id, u.name, u.email
		FROM messages m
		JOIN users u ON u.id = m.user_id
		WHERE m.room_id = $1
		ORDER BY m.id`

	rows, err := s.pool.Query(ctx, query, roomID)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	messages := make([]models.Message, 0)
	for rows.Next() {
		var msg models.Message
		if err := rows.Scan(
			&msg.ID,
			&msg.Content,
			&msg.Type,
			&msg.ImageURL,
			&msg.UserID,
			&msg.RoomID,
			&msg.CreatedAt,
			&msg.User.ID,
			&msg.User.Name,
			&msg.User.Email,
		); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}

	return messages, nil
}
