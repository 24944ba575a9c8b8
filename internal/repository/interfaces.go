// Package repository defines the persistence gateway the coordinator depends
// on. Implementations live in repository/postgres (production) and
// repository/memory (tests, local dev without a database).
//
// Lookup methods return (nil, nil) when the entity does not exist; callers
// translate that to a NotFound at the layer that owns the semantics. Every
// method takes a context because every method may touch the network.
package repository

import (
	"context"

	"github.com/google/uuid"

	"github.com/dmoreira/interchat/internal/models"
)

// RoomRepository reads the room catalog. Rooms are owned by an external
// collaborator; this core only checks existence and lists them.
type RoomRepository interface {
	// GetByID returns a single room. Returns nil, nil if not found.
	GetByID(ctx context.Context, roomID uuid.UUID) (*models.Room, error)

	// ListActive returns all active rooms, ordered by name.
	// Returns empty slice (not nil) so JSON serializes to [] not null.
	ListActive(ctx context.Context) ([]models.Room, error)

	// Stats returns one aggregate row per active room: active member count
	// and total message count. Online counts are layered on by the caller.
	Stats(ctx context.Context) ([]models.RoomStats, error)
}

// UserRepository reads the user directory.
type UserRepository interface {
	// GetByID returns a user by their ID. Returns nil, nil if not found.
	GetByID(ctx context.Context, userID uuid.UUID) (*models.User, error)

	// GetByEmail looks up a user by email. Used by login.
	GetByEmail(ctx context.Context, email string) (*models.User, error)
}

// MembershipRepository owns the durable (user, room) relationship.
type MembershipRepository interface {
	// Upsert transitions the membership for (userID, roomID).
	//
	// active=true is the join path: it inserts the row or reactivates it
	// with a fresh JoinedAt and cleared LeftAt. The write is atomic — two
	// concurrent joins land on the same single row.
	//
	// active=false is the leave path: it deactivates the row and stamps
	// LeftAt, but only if the membership is currently active. Returns
	// nil, nil when there is nothing to leave.
	Upsert(ctx context.Context, userID, roomID uuid.UUID, active bool) (*models.Membership, error)

	// Get returns the membership row for (userID, roomID) in any state.
	// Returns nil, nil if the pair has never joined.
	Get(ctx context.Context, userID, roomID uuid.UUID) (*models.Membership, error)

	// ListByRoom returns active memberships ascending by JoinedAt, each with
	// the member's user projection populated.
	ListByRoom(ctx context.Context, roomID uuid.UUID) ([]models.Membership, error)
}

// MessageRepository persists chat events.
type MessageRepository interface {
	// Create persists a message and returns it with ID and CreatedAt
	// assigned. This is the ordering point: storage order per room is the
	// order clients must observe.
	Create(ctx context.Context, userID, roomID uuid.UUID, msgType models.MessageType, content, imageURL string) (*models.Message, error)

	// ListByRoom returns a room's messages ascending by creation, each with
	// the sender's user projection populated. Used for history replay.
	ListByRoom(ctx context.Context, roomID uuid.UUID) ([]models.Message, error)
}

// Gateway bundles the four repositories the coordinator is wired with.
type Gateway struct {
	Rooms       RoomRepository
	Users       UserRepository
	Memberships MembershipRepository
	Messages    MessageRepository
}
