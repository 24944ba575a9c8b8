package hub

import (
	"github.com/google/uuid"

	"github.com/dmoreira/interchat/internal/models"
)

// Inbound is the closed set of events a connection can send. The coordinator
// dispatches on the concrete type; transports decode their wire format into
// one of these before calling Dispatch, so payload shapes cannot drift per
// call site.
type Inbound interface {
	inbound()
}

// JoinRoom asks the presence manager to join userID to roomID.
type JoinRoom struct {
	RoomID uuid.UUID
	UserID uuid.UUID
}

// LeaveRoom asks the presence manager to remove userID from roomID.
type LeaveRoom struct {
	RoomID uuid.UUID
	UserID uuid.UUID
}

// SendMessage submits a chat event to the message pipeline.
type SendMessage struct {
	RoomID   uuid.UUID
	UserID   uuid.UUID
	Type     models.MessageType
	Content  string
	ImageURL string
}

func (JoinRoom) inbound()    {}
func (LeaveRoom) inbound()   {}
func (SendMessage) inbound() {}

// Outbound is the closed set of events fanned out to connections. Event names
// match the wire protocol the web client already speaks.
type Outbound interface {
	Event() string
}

// MessageEvent carries a persisted message, user projection included.
type MessageEvent struct {
	models.Message
}

func (MessageEvent) Event() string { return "message" }

// UserJoined tells a room's members that a user became present.
type UserJoined struct {
	UserID uuid.UUID `json:"userId"`
	RoomID uuid.UUID `json:"roomId"`
}

func (UserJoined) Event() string { return "userJoined" }

// UserLeft tells a room's members that a user left.
type UserLeft struct {
	UserID uuid.UUID `json:"userId"`
	RoomID uuid.UUID `json:"roomId"`
}

func (UserLeft) Event() string { return "userLeft" }

// NoticeKind tags the human-readable notifications.
type NoticeKind string

const (
	NoticeUserJoined NoticeKind = "user_joined"
	NoticeUserLeft   NoticeKind = "user_left"
	NoticeWelcome    NoticeKind = "welcome"
)

// Notification is the best-effort human-readable side channel ("Ellen entrou
// na sala"). Never persisted.
type Notification struct {
	Type    NoticeKind `json:"type"`
	Message string     `json:"message"`
	UserID  uuid.UUID  `json:"userId,omitempty"`
	RoomID  uuid.UUID  `json:"roomId,omitempty"`
}

func (Notification) Event() string { return "notification" }
