package hub

import (
	"go.uber.org/zap"

	"github.com/google/uuid"
)

// Notifier delivers the human-readable join/leave notices. Fire-and-forget:
// a target that cannot be reached is skipped and logged, it never affects the
// other targets or the originating call.
type Notifier struct {
	registry *Registry
	logger   *zap.Logger
}

func NewNotifier(registry *Registry, logger *zap.Logger) *Notifier {
	return &Notifier{registry: registry, logger: logger}
}

// Notify sends a notice to every connection in the room except exclude (the
// acting connection does not get told about its own join or leave).
func (n *Notifier) Notify(roomID uuid.UUID, exclude string, kind NoticeKind, userID uuid.UUID, message string) {
	notice := Notification{
		Type:    kind,
		Message: message,
		UserID:  userID,
		RoomID:  roomID,
	}
	for _, c := range n.registry.MembersOf(roomID) {
		if c.ID() == exclude {
			continue
		}
		if err := c.Send(notice); err != nil {
			n.logger.Debug("notification dropped",
				zap.String("conn_id", c.ID()),
				zap.String("kind", string(kind)),
				zap.Error(err),
			)
		}
	}
}
