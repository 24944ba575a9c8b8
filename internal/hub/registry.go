package hub

import (
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Sender is the transport half of a connection: something that can push
// outbound events to the client. Send must be safe for concurrent use and
// must not block (queue or fail); Close tears the transport down.
type Sender interface {
	Send(ev Outbound) error
	Close()
}

// Conn is one live transport session. Its identity and room set live in the
// registry; the struct itself only carries the immutable bits, so fan-out can
// hold a snapshot of *Conn without racing registry mutations.
type Conn struct {
	id     string
	sender Sender

	// userID and rooms are guarded by the owning registry's mutex.
	userID uuid.UUID
	rooms  map[uuid.UUID]struct{}
}

func (c *Conn) ID() string { return c.id }

// Send forwards to the transport. The sender queues internally, so this never
// blocks the caller.
func (c *Conn) Send(ev Outbound) error { return c.sender.Send(ev) }

// Registry tracks every live connection and which rooms it has joined: an
// arena of connections by id plus a room index, the only place ephemeral
// socket state lives. Nothing here is persisted.
type Registry struct {
	mu     sync.RWMutex
	conns  map[string]*Conn
	rooms  map[uuid.UUID]map[string]struct{}
	logger *zap.Logger
}

func NewRegistry(logger *zap.Logger) *Registry {
	return &Registry{
		conns:  make(map[string]*Conn),
		rooms:  make(map[uuid.UUID]map[string]struct{}),
		logger: logger,
	}
}

// Register adds a connection to the arena.
func (r *Registry) Register(id string, sender Sender) *Conn {
	r.mu.Lock()
	defer r.mu.Unlock()

	c := &Conn{
		id:     id,
		sender: sender,
		rooms:  make(map[uuid.UUID]struct{}),
	}
	r.conns[id] = c
	r.logger.Debug("connection registered", zap.String("conn_id", id))
	return c
}

// BindIdentity associates the connection with a user, once known. The first
// binding wins; later events with a different userID do not rebind.
func (r *Registry) BindIdentity(id string, userID uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.conns[id]
	if !ok || c.userID != uuid.Nil {
		return
	}
	c.userID = userID
}

// BoundUser returns the user bound to the connection, if any.
func (r *Registry) BoundUser(id string) (uuid.UUID, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.conns[id]
	if !ok || c.userID == uuid.Nil {
		return uuid.Nil, false
	}
	return c.userID, true
}

// AddRoom marks the connection as joined to roomID.
func (r *Registry) AddRoom(id string, roomID uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.conns[id]
	if !ok {
		return
	}
	c.rooms[roomID] = struct{}{}
	if r.rooms[roomID] == nil {
		r.rooms[roomID] = make(map[string]struct{})
	}
	r.rooms[roomID][id] = struct{}{}
}

// RemoveRoom drops the connection's binding to roomID.
func (r *Registry) RemoveRoom(id string, roomID uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.removeRoomLocked(id, roomID)
}

func (r *Registry) removeRoomLocked(id string, roomID uuid.UUID) {
	if c, ok := r.conns[id]; ok {
		delete(c.rooms, roomID)
	}
	if members, ok := r.rooms[roomID]; ok {
		delete(members, id)
		if len(members) == 0 {
			delete(r.rooms, roomID)
		}
	}
}

// InRoom reports whether the connection currently belongs to roomID.
func (r *Registry) InRoom(id string, roomID uuid.UUID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.conns[id]
	if !ok {
		return false
	}
	_, in := c.rooms[roomID]
	return in
}

// RoomsOf returns the rooms the connection has joined.
func (r *Registry) RoomsOf(id string) []uuid.UUID {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.conns[id]
	if !ok {
		return nil
	}
	rooms := make([]uuid.UUID, 0, len(c.rooms))
	for roomID := range c.rooms {
		rooms = append(rooms, roomID)
	}
	return rooms
}

// MembersOf returns a snapshot of the connections currently in roomID.
func (r *Registry) MembersOf(roomID uuid.UUID) []*Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids, ok := r.rooms[roomID]
	if !ok {
		return nil
	}
	members := make([]*Conn, 0, len(ids))
	for id := range ids {
		if c, ok := r.conns[id]; ok {
			members = append(members, c)
		}
	}
	return members
}

// Online returns how many connections are bound to roomID.
func (r *Registry) Online(roomID uuid.UUID) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms[roomID])
}

// Unregister removes the connection and returns the rooms it was in, so the
// caller can run the implicit leave-all cleanup. The registry entry is gone
// before any of that cleanup starts.
func (r *Registry) Unregister(id string) []uuid.UUID {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.conns[id]
	if !ok {
		return nil
	}
	rooms := make([]uuid.UUID, 0, len(c.rooms))
	for roomID := range c.rooms {
		rooms = append(rooms, roomID)
	}
	for _, roomID := range rooms {
		r.removeRoomLocked(id, roomID)
	}
	delete(r.conns, id)
	r.logger.Debug("connection unregistered", zap.String("conn_id", id), zap.Int("rooms", len(rooms)))
	return rooms
}

// CloseAll tears down every transport. Used on coordinator shutdown.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, c := range r.conns {
		c.sender.Close()
	}
	r.conns = make(map[string]*Conn)
	r.rooms = make(map[uuid.UUID]map[string]struct{})
}
