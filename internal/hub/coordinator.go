package hub

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/dmoreira/interchat/internal/chaterr"
	"github.com/dmoreira/interchat/internal/models"
	"github.com/dmoreira/interchat/internal/repository"
)

// Options tunes the coordinator.
type Options struct {
	// PersistTimeout bounds every persistence call made for a dispatched
	// event, so a stuck store surfaces as PersistenceError instead of
	// hanging the connection's task. Zero means 5s.
	PersistTimeout time.Duration
}

// Coordinator composes the registry, presence manager, message pipeline, and
// notifier into one process-wide service with an explicit lifecycle. Inbound
// events enter through Dispatch; the transport guarantees per-connection FIFO
// by calling Dispatch from a single read loop per connection.
type Coordinator struct {
	registry *Registry
	presence *Presence
	pipeline *Pipeline
	notifier *Notifier
	logger   *zap.Logger
	opts     Options

	mu      sync.Mutex
	started bool
	base    context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

func New(gw repository.Gateway, lookup Lookup, logger *zap.Logger, opts Options) *Coordinator {
	if opts.PersistTimeout <= 0 {
		opts.PersistTimeout = 5 * time.Second
	}
	registry := NewRegistry(logger)
	notifier := NewNotifier(registry, logger)
	return &Coordinator{
		registry: registry,
		presence: NewPresence(registry, gw.Memberships, lookup, notifier, logger),
		pipeline: NewPipeline(registry, gw.Messages, lookup, logger),
		notifier: notifier,
		logger:   logger,
		opts:     opts,
	}
}

// Start makes the coordinator accept connections. Calling Start twice is an
// error; Stop must come first.
func (co *Coordinator) Start(ctx context.Context) error {
	co.mu.Lock()
	defer co.mu.Unlock()
	if co.started {
		return chaterr.Validationf("coordinator already started")
	}
	co.base, co.cancel = context.WithCancel(ctx)
	co.started = true
	co.logger.Info("coordinator started")
	return nil
}

// Stop closes every live connection, cancels in-flight cleanup, and waits for
// background work to drain.
func (co *Coordinator) Stop() {
	co.mu.Lock()
	if !co.started {
		co.mu.Unlock()
		return
	}
	co.started = false
	cancel := co.cancel
	co.mu.Unlock()

	cancel()
	co.registry.CloseAll()
	co.wg.Wait()
	co.logger.Info("coordinator stopped")
}

// Connect registers a new transport session and returns its connection id.
// The new connection gets a welcome notice; nobody else is told anything
// until it joins a room.
func (co *Coordinator) Connect(sender Sender) string {
	id := uuid.NewString()
	c := co.registry.Register(id, sender)
	if err := c.Send(Notification{Type: NoticeWelcome, Message: "Bem-vindo ao Chat Interativo!"}); err != nil {
		co.logger.Debug("welcome dropped", zap.String("conn_id", id), zap.Error(err))
	}
	co.logger.Info("client connected", zap.String("conn_id", id))
	return id
}

// Disconnect removes the connection immediately and runs the implicit
// leave-all in the background: transport teardown never waits on the store,
// and cleanup failures are logged, never raised.
func (co *Coordinator) Disconnect(id string) {
	userID, bound := co.registry.BoundUser(id)
	rooms := co.registry.Unregister(id)
	co.logger.Info("client disconnected", zap.String("conn_id", id))

	if !bound || len(rooms) == 0 {
		return
	}

	co.mu.Lock()
	if !co.started {
		co.mu.Unlock()
		return
	}
	base := co.base
	co.mu.Unlock()

	co.wg.Add(1)
	go func() {
		defer co.wg.Done()
		ctx, cancel := context.WithTimeout(base, co.opts.PersistTimeout)
		defer cancel()
		for _, roomID := range rooms {
			if err := co.presence.Leave(ctx, userID, roomID, ""); err != nil {
				co.logger.Warn("disconnect cleanup failed",
					zap.String("conn_id", id),
					zap.String("user_id", userID.String()),
					zap.String("room_id", roomID.String()),
					zap.Error(err),
				)
			}
		}
	}()
}

// Bind associates a connection with an authenticated user. First binding
// wins, matching the registry's set-once rule.
func (co *Coordinator) Bind(connID string, userID uuid.UUID) {
	co.registry.BindIdentity(connID, userID)
}

// Dispatch routes one inbound event from a connection to the owning
// component. The event's userID is bound to the connection on first sight.
func (co *Coordinator) Dispatch(ctx context.Context, connID string, ev Inbound) error {
	opCtx, cancel := context.WithTimeout(ctx, co.opts.PersistTimeout)
	defer cancel()

	switch e := ev.(type) {
	case JoinRoom:
		co.registry.BindIdentity(connID, e.UserID)
		_, err := co.presence.Join(opCtx, e.UserID, e.RoomID, connID)
		return err
	case LeaveRoom:
		co.registry.BindIdentity(connID, e.UserID)
		return co.presence.Leave(opCtx, e.UserID, e.RoomID, connID)
	case SendMessage:
		co.registry.BindIdentity(connID, e.UserID)
		_, err := co.pipeline.Submit(opCtx, SubmitInput{
			UserID:   e.UserID,
			RoomID:   e.RoomID,
			Type:     e.Type,
			Content:  e.Content,
			ImageURL: e.ImageURL,
			Conn:     connID,
		})
		return err
	default:
		return chaterr.Validationf("unknown event type %T", ev)
	}
}

// Join is the request/response entry into the presence manager, used by the
// HTTP routes. Same semantics as a JoinRoom event without an acting
// connection.
func (co *Coordinator) Join(ctx context.Context, userID, roomID uuid.UUID) (*models.Membership, error) {
	opCtx, cancel := context.WithTimeout(ctx, co.opts.PersistTimeout)
	defer cancel()
	return co.presence.Join(opCtx, userID, roomID, "")
}

// Leave is the request/response counterpart of LeaveRoom.
func (co *Coordinator) Leave(ctx context.Context, userID, roomID uuid.UUID) error {
	opCtx, cancel := context.WithTimeout(ctx, co.opts.PersistTimeout)
	defer cancel()
	return co.presence.Leave(opCtx, userID, roomID, "")
}

// Submit is the request/response entry into the message pipeline. A message
// posted here is persisted once and broadcast once — the HTTP and live paths
// converge before the ordering point, so using both for one logical send
// cannot double-deliver.
func (co *Coordinator) Submit(ctx context.Context, in SubmitInput) (*models.Message, error) {
	opCtx, cancel := context.WithTimeout(ctx, co.opts.PersistTimeout)
	defer cancel()
	return co.pipeline.Submit(opCtx, in)
}

// Online reports how many connections are currently bound to the room.
func (co *Coordinator) Online(roomID uuid.UUID) int {
	return co.registry.Online(roomID)
}
