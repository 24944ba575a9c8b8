// Package cache provides the cache-aside lookup layer for the hot message and
// join paths. Room and user existence checks happen on every submit, so they
// go through Redis first and fall back to the store on miss. A Redis outage
// degrades to store reads; it never fails the operation.
package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/dmoreira/interchat/internal/models"
	"github.com/dmoreira/interchat/internal/repository"
)

// Lookup resolves rooms and users, caching positive results as JSON under a
// key prefix with a TTL. Negative results are not cached: a user created a
// moment ago must be visible on their first message.
type Lookup struct {
	client *redis.Client
	rooms  repository.RoomRepository
	users  repository.UserRepository
	ttl    time.Duration
	logger *zap.Logger
}

// NewLookup builds a Lookup. A nil client disables caching entirely and every
// call goes straight to the store.
func NewLookup(client *redis.Client, rooms repository.RoomRepository, users repository.UserRepository, ttl time.Duration, logger *zap.Logger) *Lookup {
	return &Lookup{
		client: client,
		rooms:  rooms,
		users:  users,
		ttl:    ttl,
		logger: logger,
	}
}

func (l *Lookup) Room(ctx context.Context, roomID uuid.UUID) (*models.Room, error) {
	key := "room:" + roomID.String()

	var room models.Room
	if l.get(ctx, key, &room) {
		return &room, nil
	}

	r, err := l.rooms.GetByID(ctx, roomID)
	if err != nil || r == nil {
		return r, err
	}
	l.set(ctx, key, r)
	return r, nil
}

func (l *Lookup) User(ctx context.Context, userID uuid.UUID) (*models.User, error) {
	key := "user:" + userID.String()

	var user models.User
	if l.get(ctx, key, &user) {
		return &user, nil
	}

	u, err := l.users.GetByID(ctx, userID)
	if err != nil || u == nil {
		return u, err
	}
	l.set(ctx, key, u)
	return u, nil
}

func (l *Lookup) get(ctx context.Context, key string, dest any) bool {
	if l.client == nil {
		return false
	}
	data, err := l.client.Get(ctx, key).Bytes()
	if err != nil {
		if err != redis.Nil {
			l.logger.Debug("cache get failed", zap.String("key", key), zap.Error(err))
		}
		return false
	}
	if err := json.Unmarshal(data, dest); err != nil {
		l.logger.Debug("cache entry corrupt", zap.String("key", key), zap.Error(err))
		return false
	}
	return true
}

func (l *Lookup) set(ctx context.Context, key string, value any) {
	if l.client == nil {
		return
	}
	data, err := json.Marshal(value)
	if err != nil {
		l.logger.Debug("cache marshal failed", zap.String("key", key), zap.Error(err))
		return
	}
	if err := l.client.Set(ctx, key, data, l.ttl).Err(); err != nil {
		l.logger.Debug("cache set failed", zap.String("key", key), zap.Error(err))
	}
}
