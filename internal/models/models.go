package models

import (
	"time"

	"github.com/google/uuid"
)

// MessageType discriminates the three kinds of chat event a room carries.
// For EMOJI messages the content is the emoji grapheme itself.
type MessageType string

const (
	MessageText  MessageType = "TEXT"
	MessageImage MessageType = "IMAGE"
	MessageEmoji MessageType = "EMOJI"
)

// Valid reports whether t is one of the known message types.
func (t MessageType) Valid() bool {
	switch t {
	case MessageText, MessageImage, MessageEmoji:
		return true
	}
	return false
}

// User is a registered participant. Users are created and updated by the
// directory service; this backend only reads them.
type User struct {
	ID        uuid.UUID `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	IsActive  bool      `json:"isActive"`
	CreatedAt time.Time `json:"createdAt"`
}

// Ref returns the denormalized projection of the user that rides along with
// messages and membership listings.
func (u *User) Ref() UserRef {
	return UserRef{ID: u.ID, Name: u.Name, Email: u.Email}
}

// UserRef is the slice of a User embedded in fan-out payloads, so clients can
// render a message without a second lookup.
type UserRef struct {
	ID    uuid.UUID `json:"id"`
	Name  string    `json:"name"`
	Email string    `json:"email"`
}

// Room is a topical channel. Rooms come from the catalog service and are
// read-only here.
type Room struct {
	ID          uuid.UUID `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Color       string    `json:"color"`
	IsActive    bool      `json:"isActive"`
	CreatedAt   time.Time `json:"createdAt"`
}

// Membership records a user's relationship to a room over time. There is
// exactly one row per (user, room) pair: re-joining reactivates the row with a
// fresh JoinedAt and clears LeftAt, it never inserts a duplicate. Rows are
// never deleted.
type Membership struct {
	ID       uuid.UUID `json:"id"`
	UserID   uuid.UUID `json:"userId"`
	RoomID   uuid.UUID `json:"roomId"`
	IsActive bool      `json:"isActive"`
	JoinedAt time.Time `json:"joinedAt"`
	// LeftAt is nil while the membership is active.
	LeftAt *time.Time `json:"leftAt,omitempty"`
	// User is populated on listings that join the users table.
	User *UserRef `json:"user,omitempty"`
}

// Message is one immutable chat event.
//
// IDs are bigint sequence values rather than UUIDs: messages are the
// highest-volume table and the sequence doubles as the per-room ordering
// cursor (insertion order equals id order equals CreatedAt order).
type Message struct {
	ID      int64       `json:"id"`
	Content string      `json:"content"`
	Type    MessageType `json:"type"`
	// ImageURL is set if and only if Type is IMAGE.
	ImageURL  string    `json:"imageUrl,omitempty"`
	UserID    uuid.UUID `json:"userId"`
	RoomID    uuid.UUID `json:"roomId"`
	CreatedAt time.Time `json:"createdAt"`
	User      UserRef   `json:"user"`
}

// RoomStats is the aggregate row behind GET /v1/rooms/stats. Online is the
// number of live connections currently bound to the room and is filled from
// the connection registry, not the database.
type RoomStats struct {
	RoomID        uuid.UUID `json:"roomId"`
	Name          string    `json:"name"`
	ActiveMembers int       `json:"activeMembers"`
	Messages      int64     `json:"messages"`
	Online        int       `json:"online"`
}
