// Package memory implements the persistence gateway with plain maps. It backs
// the test suite and local development without Postgres, and mirrors the
// semantics of the postgres stores: nil, nil for absent entities, one
// membership row per (user, room), message ids from a sequence.
package memory

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dmoreira/interchat/internal/models"
	"github.com/dmoreira/interchat/internal/repository"
)

type Store struct {
	mu          sync.RWMutex
	users       map[uuid.UUID]models.User
	rooms       map[uuid.UUID]models.Room
	memberships map[memberKey]models.Membership
	messages    []models.Message
	nextMsgID   int64

	// FailWrites makes every mutation return ErrUnavailable, simulating an
	// unreachable store.
	FailWrites bool
}

type memberKey struct {
	userID uuid.UUID
	roomID uuid.UUID
}

// ErrUnavailable is returned by every write when FailWrites is set.
var ErrUnavailable = errUnavailable{}

type errUnavailable struct{}

func (errUnavailable) Error() string { return "store unavailable" }

func New() *Store {
	return &Store{
		users:       make(map[uuid.UUID]models.User),
		rooms:       make(map[uuid.UUID]models.Room),
		memberships: make(map[memberKey]models.Membership),
		nextMsgID:   1,
	}
}

// Gateway exposes the store as the four repository interfaces. The repository
// contracts reuse method names across entities (GetByID, ListByRoom), so each
// one is served through a thin view over the shared state.
func (s *Store) Gateway() repository.Gateway {
	return repository.Gateway{
		Rooms:       roomView{s},
		Users:       userView{s},
		Memberships: membershipView{s},
		Messages:    messageView{s},
	}
}

// AddUser seeds a user and returns it.
func (s *Store) AddUser(name, email string) models.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	u := models.User{ID: uuid.New(), Email: email, Name: name, IsActive: true, CreatedAt: time.Now()}
	s.users[u.ID] = u
	return u
}

// AddRoom seeds a room and returns it.
func (s *Store) AddRoom(name string) models.Room {
	s.mu.Lock()
	defer s.mu.Unlock()
	r := models.Room{ID: uuid.New(), Name: name, IsActive: true, CreatedAt: time.Now()}
	s.rooms[r.ID] = r
	return r
}

type userView struct{ s *Store }

func (v userView) GetByID(ctx context.Context, userID uuid.UUID) (*models.User, error) {
	v.s.mu.RLock()
	defer v.s.mu.RUnlock()
	if u, ok := v.s.users[userID]; ok {
		return &u, nil
	}
	return nil, nil
}

func (v userView) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	v.s.mu.RLock()
	defer v.s.mu.RUnlock()
	for _, u := range v.s.users {
		if u.Email == email {
			return &u, nil
		}
	}
	return nil, nil
}

type roomView struct{ s *Store }

func (v roomView) GetByID(ctx context.Context, roomID uuid.UUID) (*models.Room, error) {
	v.s.mu.RLock()
	defer v.s.mu.RUnlock()
	if r, ok := v.s.rooms[roomID]; ok {
		return &r, nil
	}
	return nil, nil
}

func (v roomView) ListActive(ctx context.Context) ([]models.Room, error) {
	v.s.mu.RLock()
	defer v.s.mu.RUnlock()
	rooms := make([]models.Room, 0)
	for _, r := range v.s.rooms {
		if r.IsActive {
			rooms = append(rooms, r)
		}
	}
	slices.SortFunc(rooms, func(a, b models.Room) int {
		return strings.Compare(a.Name, b.Name)
	})
	return rooms, nil
}

func (v roomView) Stats(ctx context.Context) ([]models.RoomStats, error) {
	v.s.mu.RLock()
	defer v.s.mu.RUnlock()
	stats := make([]models.RoomStats, 0)
	for _, r := range v.s.rooms {
		if !r.IsActive {
			continue
		}
		st := models.RoomStats{RoomID: r.ID, Name: r.Name}
		for k, m := range v.s.memberships {
			if k.roomID == r.ID && m.IsActive {
				st.ActiveMembers++
			}
		}
		for _, msg := range v.s.messages {
			if msg.RoomID == r.ID {
				st.Messages++
			}
		}
		stats = append(stats, st)
	}
	slices.SortFunc(stats, func(a, b models.RoomStats) int {
		return strings.Compare(a.Name, b.Name)
	})
	return stats, nil
}

type membershipView struct{ s *Store }

func (v membershipView) Upsert(ctx context.Context, userID, roomID uuid.UUID, active bool) (*models.Membership, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	if v.s.FailWrites {
		return nil, ErrUnavailable
	}

	key := memberKey{userID: userID, roomID: roomID}
	m, exists := v.s.memberships[key]

	if active {
		if !exists {
			m = models.Membership{ID: uuid.New(), UserID: userID, RoomID: roomID}
		}
		m.IsActive = true
		m.JoinedAt = time.Now()
		m.LeftAt = nil
		v.s.memberships[key] = m
		return &m, nil
	}

	if !exists || !m.IsActive {
		return nil, nil
	}
	now := time.Now()
	m.IsActive = false
	m.LeftAt = &now
	v.s.memberships[key] = m
	return &m, nil
}

func (v membershipView) Get(ctx context.Context, userID, roomID uuid.UUID) (*models.Membership, error) {
	v.s.mu.RLock()
	defer v.s.mu.RUnlock()
	if m, ok := v.s.memberships[memberKey{userID: userID, roomID: roomID}]; ok {
		return &m, nil
	}
	return nil, nil
}

func (v membershipView) ListByRoom(ctx context.Context, roomID uuid.UUID) ([]models.Membership, error) {
	v.s.mu.RLock()
	defer v.s.mu.RUnlock()
	members := make([]models.Membership, 0)
	for k, m := range v.s.memberships {
		if k.roomID != roomID || !m.IsActive {
			continue
		}
		if u, ok := v.s.users[m.UserID]; ok {
			ref := u.Ref()
			m.User = &ref
		}
		members = append(members, m)
	}
	slices.SortFunc(members, func(a, b models.Membership) int {
		return a.JoinedAt.Compare(b.JoinedAt)
	})
	return members, nil
}

type messageView struct{ s *Store }

func (v messageView) Create(ctx context.Context, userID, roomID uuid.UUID, msgType models.MessageType, content, imageURL string) (*models.Message, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	if v.s.FailWrites {
		return nil, ErrUnavailable
	}

	msg := models.Message{
		ID:        v.s.nextMsgID,
		Content:   content,
		Type:      msgType,
		ImageURL:  imageURL,
		UserID:    userID,
		RoomID:    roomID,
		CreatedAt: time.Now(),
	}
	v.s.nextMsgID++
	v.s.messages = append(v.s.messages, msg)
	return &msg, nil
}

func (v messageView) ListByRoom(ctx context.Context, roomID uuid.UUID) ([]models.Message, error) {
	v.s.mu.RLock()
	defer v.s.mu.RUnlock()
	// Append order is id order, which is the replay order.
	messages := make([]models.Message, 0)
	for _, msg := range v.s.messages {
		if msg.RoomID != roomID {
			continue
		}
		if u, ok := v.s.users[msg.UserID]; ok {
			msg.User = u.Ref()
		}
		messages = append(messages, msg)
	}
	return messages, nil
}
