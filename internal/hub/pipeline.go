package hub

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/dmoreira/interchat/internal/chaterr"
	"github.com/dmoreira/interchat/internal/models"
	"github.com/dmoreira/interchat/internal/repository"
)

// SubmitInput is one chat event on its way in. Conn is the submitting
// connection's id, empty when the message arrives over plain HTTP.
type SubmitInput struct {
	UserID   uuid.UUID
	RoomID   uuid.UUID
	Type     models.MessageType
	Content  string
	ImageURL string
	Conn     string
}

// Pipeline validates, persists, and fans out chat events. Persist-then-fanout
// is the core guarantee: a message becomes visible to members only after the
// store has committed it, and a store failure means nobody sees it at all.
type Pipeline struct {
	registry *Registry
	messages repository.MessageRepository
	lookup   Lookup
	logger   *zap.Logger

	// roomLocks serializes persist+fanout per room so the order members
	// observe always equals commit order. Different rooms never contend.
	roomLocks *keyedMutex
}

func NewPipeline(registry *Registry, messages repository.MessageRepository, lookup Lookup, logger *zap.Logger) *Pipeline {
	return &Pipeline{
		registry:  registry,
		messages:  messages,
		lookup:    lookup,
		logger:    logger,
		roomLocks: newKeyedMutex(),
	}
}

// Submit runs the full pipeline and returns the persisted message with the
// sender's projection filled in. Fan-out reaches every connection currently
// in the room, the sender's own connections included.
func (pl *Pipeline) Submit(ctx context.Context, in SubmitInput) (*models.Message, error) {
	if in.Content == "" || in.Type == "" || in.UserID == uuid.Nil || in.RoomID == uuid.Nil {
		return nil, chaterr.Validationf("content, type, userId and roomId are required")
	}

	room, err := pl.lookup.Room(ctx, in.RoomID)
	if err != nil {
		return nil, chaterr.Persistence("load room", err)
	}
	if room == nil {
		return nil, chaterr.NotFoundf("room %s", in.RoomID)
	}

	user, err := pl.lookup.User(ctx, in.UserID)
	if err != nil {
		return nil, chaterr.Persistence("load user", err)
	}
	if user == nil {
		return nil, chaterr.NotFoundf("user %s", in.UserID)
	}

	if !in.Type.Valid() {
		return nil, chaterr.Validationf("unknown message type %q", in.Type)
	}
	if in.Type == models.MessageImage && in.ImageURL == "" {
		return nil, chaterr.Validationf("imageUrl is required for IMAGE messages")
	}
	if in.Type != models.MessageImage && in.ImageURL != "" {
		return nil, chaterr.Validationf("imageUrl is only allowed on IMAGE messages")
	}

	// Senders are not required to be room members, but a live connection
	// submitting to a room it never joined means client and coordinator
	// disagree about presence. Worth a distinct log line.
	if in.Conn != "" && !pl.registry.InRoom(in.Conn, in.RoomID) {
		pl.logger.Warn("message from connection not joined to room",
			zap.String("conn_id", in.Conn),
			zap.String("user_id", in.UserID.String()),
			zap.String("room_id", in.RoomID.String()),
		)
	}

	unlock := pl.roomLocks.lock(in.RoomID.String())
	defer unlock()

	msg, err := pl.messages.Create(ctx, in.UserID, in.RoomID, in.Type, in.Content, in.ImageURL)
	if err != nil {
		return nil, chaterr.Persistence("insert message", err)
	}
	msg.User = user.Ref()

	ev := MessageEvent{Message: *msg}
	for _, c := range pl.registry.MembersOf(in.RoomID) {
		if err := c.Send(ev); err != nil {
			// Per-target failure: the remaining members still get the
			// message and the submit still succeeds.
			pl.logger.Debug("message fan-out dropped",
				zap.String("conn_id", c.ID()),
				zap.Int64("message_id", msg.ID),
				zap.Error(err),
			)
		}
	}

	pl.logger.Info("message delivered",
		zap.Int64("message_id", msg.ID),
		zap.String("room_id", in.RoomID.String()),
		zap.String("user_id", in.UserID.String()),
		zap.String("type", string(in.Type)),
	)
	return msg, nil
}
