package hub

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/dmoreira/interchat/internal/chaterr"
	"github.com/dmoreira/interchat/internal/models"
	"github.com/dmoreira/interchat/internal/repository"
)

// Lookup resolves rooms and users for existence checks and user projections.
// Production wires the Redis cache-aside layer; tests wire the store directly.
type Lookup interface {
	Room(ctx context.Context, roomID uuid.UUID) (*models.Room, error)
	User(ctx context.Context, userID uuid.UUID) (*models.User, error)
}

// Presence owns join/leave transitions. Per (user, room) the membership moves
// NONE|INACTIVE -> ACTIVE on join and ACTIVE -> INACTIVE on leave, with no
// terminal state. Transitions for the same pair are serialized through a
// keyed mutex on top of the store's atomic upsert, so two racing joins can
// produce neither two rows nor two joined notices.
type Presence struct {
	registry    *Registry
	memberships repository.MembershipRepository
	lookup      Lookup
	notifier    *Notifier
	logger      *zap.Logger
	keys        *keyedMutex
}

func NewPresence(registry *Registry, memberships repository.MembershipRepository, lookup Lookup, notifier *Notifier, logger *zap.Logger) *Presence {
	return &Presence{
		registry:    registry,
		memberships: memberships,
		lookup:      lookup,
		notifier:    notifier,
		logger:      logger,
		keys:        newKeyedMutex(),
	}
}

// Join makes userID an active member of roomID. Idempotent: joining an
// already-active membership refreshes JoinedAt and emits nothing new to
// peers. actor is the acting connection id, empty when the call comes in
// over plain HTTP; the actor never receives its own join events.
func (p *Presence) Join(ctx context.Context, userID, roomID uuid.UUID, actor string) (*models.Membership, error) {
	if userID == uuid.Nil || roomID == uuid.Nil {
		return nil, chaterr.Validationf("userId and roomId are required")
	}

	room, err := p.lookup.Room(ctx, roomID)
	if err != nil {
		return nil, chaterr.Persistence("load room", err)
	}
	if room == nil {
		return nil, chaterr.NotFoundf("room %s", roomID)
	}
	user, err := p.lookup.User(ctx, userID)
	if err != nil {
		return nil, chaterr.Persistence("load user", err)
	}
	if user == nil {
		return nil, chaterr.NotFoundf("user %s", userID)
	}

	unlock := p.keys.lock(membershipKey(userID, roomID))
	defer unlock()

	prev, err := p.memberships.Get(ctx, userID, roomID)
	if err != nil {
		return nil, chaterr.Persistence("get membership", err)
	}

	m, err := p.memberships.Upsert(ctx, userID, roomID, true)
	if err != nil {
		return nil, chaterr.Persistence("upsert membership", err)
	}

	if actor != "" {
		p.registry.AddRoom(actor, roomID)
	}

	// A rejoin on an already-active membership stays silent: peers were
	// already told once.
	if prev == nil || !prev.IsActive {
		p.broadcast(roomID, actor, UserJoined{UserID: userID, RoomID: roomID})
		p.notifier.Notify(roomID, actor, NoticeUserJoined, userID, user.Name+" entrou na sala")
	}

	p.logger.Info("user joined room",
		zap.String("user_id", userID.String()),
		zap.String("room_id", roomID.String()),
	)
	return m, nil
}

// Leave deactivates the membership. Leaving a room never joined, or one
// already left, is a NotFound — there is nothing to leave.
func (p *Presence) Leave(ctx context.Context, userID, roomID uuid.UUID, actor string) error {
	if userID == uuid.Nil || roomID == uuid.Nil {
		return chaterr.Validationf("userId and roomId are required")
	}

	room, err := p.lookup.Room(ctx, roomID)
	if err != nil {
		return chaterr.Persistence("load room", err)
	}
	if room == nil {
		return chaterr.NotFoundf("room %s", roomID)
	}

	unlock := p.keys.lock(membershipKey(userID, roomID))
	defer unlock()

	m, err := p.memberships.Upsert(ctx, userID, roomID, false)
	if err != nil {
		return chaterr.Persistence("deactivate membership", err)
	}
	if m == nil {
		return chaterr.NotFoundf("user %s is not in room %s", userID, roomID)
	}

	if actor != "" {
		p.registry.RemoveRoom(actor, roomID)
	}

	p.broadcast(roomID, actor, UserLeft{UserID: userID, RoomID: roomID})

	// The notice needs the user's name; if the directory lookup fails the
	// leave has still happened, so just skip the notice.
	user, err := p.lookup.User(ctx, userID)
	if err != nil {
		p.logger.Warn("leave notice skipped, user lookup failed",
			zap.String("user_id", userID.String()), zap.Error(err))
	} else if user != nil {
		p.notifier.Notify(roomID, actor, NoticeUserLeft, userID, user.Name+" saiu da sala")
	}

	p.logger.Info("user left room",
		zap.String("user_id", userID.String()),
		zap.String("room_id", roomID.String()),
	)
	return nil
}

// broadcast sends ev to every connection in the room except exclude.
// Delivery failures are isolated per target.
func (p *Presence) broadcast(roomID uuid.UUID, exclude string, ev Outbound) {
	for _, c := range p.registry.MembersOf(roomID) {
		if c.ID() == exclude {
			continue
		}
		if err := c.Send(ev); err != nil {
			p.logger.Debug("presence event dropped",
				zap.String("conn_id", c.ID()),
				zap.String("event", ev.Event()),
				zap.Error(err),
			)
		}
	}
}

func membershipKey(userID, roomID uuid.UUID) string {
	return fmt.Sprintf("%s|%s", userID, roomID)
}
