package hub

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/dmoreira/interchat/internal/chaterr"
	"github.com/dmoreira/interchat/internal/models"
	"github.com/dmoreira/interchat/internal/repository"
	"github.com/dmoreira/interchat/internal/repository/memory"
)

// storeLookup resolves rooms and users straight from the gateway, standing in
// for the Redis cache layer.
type storeLookup struct {
	gw repository.Gateway
}

func (l storeLookup) Room(ctx context.Context, id uuid.UUID) (*models.Room, error) {
	return l.gw.Rooms.GetByID(ctx, id)
}

func (l storeLookup) User(ctx context.Context, id uuid.UUID) (*models.User, error) {
	return l.gw.Users.GetByID(ctx, id)
}

// fakeSender records everything fanned out to one connection.
type fakeSender struct {
	mu     sync.Mutex
	events []Outbound
	fail   bool
	closed bool
}

func (f *fakeSender) Send(ev Outbound) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return chaterr.Transport("fake", errors.New("connection down"))
	}
	f.events = append(f.events, ev)
	return nil
}

func (f *fakeSender) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
}

func (f *fakeSender) byEvent(name string) []Outbound {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []Outbound
	for _, ev := range f.events {
		if ev.Event() == name {
			out = append(out, ev)
		}
	}
	return out
}

type fixture struct {
	store *memory.Store
	gw    repository.Gateway
	coord *Coordinator
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := memory.New()
	gw := store.Gateway()
	coord := New(gw, storeLookup{gw: gw}, zap.NewNop(), Options{PersistTimeout: time.Second})
	require.NoError(t, coord.Start(context.Background()))
	t.Cleanup(coord.Stop)
	return &fixture{store: store, gw: gw, coord: coord}
}

func (f *fixture) connect() (string, *fakeSender) {
	s := &fakeSender{}
	return f.coord.Connect(s), s
}

func TestJoinIsIdempotent(t *testing.T) {
	f := newFixture(t)
	room := f.store.AddRoom("Sala Geral")
	u1 := f.store.AddUser("Matheus", "matheus@example.com")
	u2 := f.store.AddUser("Ellen", "ellen@example.com")
	ctx := context.Background()

	peerConn, peer := f.connect()
	require.NoError(t, f.coord.Dispatch(ctx, peerConn, JoinRoom{RoomID: room.ID, UserID: u2.ID}))

	conn, _ := f.connect()
	require.NoError(t, f.coord.Dispatch(ctx, conn, JoinRoom{RoomID: room.ID, UserID: u1.ID}))

	first, err := f.gw.Memberships.Get(ctx, u1.ID, room.ID)
	require.NoError(t, err)
	require.NotNil(t, first)

	require.NoError(t, f.coord.Dispatch(ctx, conn, JoinRoom{RoomID: room.ID, UserID: u1.ID}))

	second, err := f.gw.Memberships.Get(ctx, u1.ID, room.ID)
	require.NoError(t, err)
	require.NotNil(t, second)
	assert.Equal(t, first.ID, second.ID, "rejoin must reuse the membership row")
	assert.True(t, second.IsActive)
	assert.Nil(t, second.LeftAt)

	// The peer hears about the join exactly once despite two join calls.
	joins := peer.byEvent("userJoined")
	require.Len(t, joins, 1)
	assert.Equal(t, u1.ID, joins[0].(UserJoined).UserID)
	notices := peer.byEvent("notification")
	var joined []Notification
	for _, n := range notices {
		if n.(Notification).Type == NoticeUserJoined {
			joined = append(joined, n.(Notification))
		}
	}
	require.Len(t, joined, 1)
	assert.Equal(t, "Matheus entrou na sala", joined[0].Message)
}

func TestConcurrentJoinsCollapse(t *testing.T) {
	f := newFixture(t)
	room := f.store.AddRoom("Sala Geral")
	u1 := f.store.AddUser("Matheus", "matheus@example.com")
	u2 := f.store.AddUser("Ellen", "ellen@example.com")
	ctx := context.Background()

	peerConn, peer := f.connect()
	require.NoError(t, f.coord.Dispatch(ctx, peerConn, JoinRoom{RoomID: room.ID, UserID: u2.ID}))

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		conn, _ := f.connect()
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = f.coord.Dispatch(ctx, conn, JoinRoom{RoomID: room.ID, UserID: u1.ID})
		}()
	}
	wg.Wait()

	m, err := f.gw.Memberships.Get(ctx, u1.ID, room.ID)
	require.NoError(t, err)
	require.NotNil(t, m)
	assert.True(t, m.IsActive)

	assert.Len(t, peer.byEvent("userJoined"), 1, "racing joins must emit a single joined event")
}

func TestLeaveWithoutJoinIsNotFound(t *testing.T) {
	f := newFixture(t)
	room := f.store.AddRoom("Sala Geral")
	user := f.store.AddUser("Matheus", "matheus@example.com")
	ctx := context.Background()

	err := f.coord.Leave(ctx, user.ID, room.ID)
	require.Error(t, err)
	assert.ErrorIs(t, err, chaterr.ErrNotFound)

	// Leaving twice is the same story: the second leave has nothing to leave.
	_, err = f.coord.Join(ctx, user.ID, room.ID)
	require.NoError(t, err)
	require.NoError(t, f.coord.Leave(ctx, user.ID, room.ID))
	err = f.coord.Leave(ctx, user.ID, room.ID)
	assert.ErrorIs(t, err, chaterr.ErrNotFound)
}

func TestJoinUnknownRoomIsNotFound(t *testing.T) {
	f := newFixture(t)
	user := f.store.AddUser("Matheus", "matheus@example.com")

	_, err := f.coord.Join(context.Background(), user.ID, uuid.New())
	assert.ErrorIs(t, err, chaterr.ErrNotFound)

	m, err := f.gw.Memberships.Get(context.Background(), user.ID, uuid.New())
	require.NoError(t, err)
	assert.Nil(t, m, "failed join must not write")
}

func TestSubmitValidation(t *testing.T) {
	f := newFixture(t)
	room := f.store.AddRoom("Sala Geral")
	user := f.store.AddUser("Matheus", "matheus@example.com")
	ctx := context.Background()

	t.Run("image without url", func(t *testing.T) {
		_, err := f.coord.Submit(ctx, SubmitInput{
			UserID:  user.ID,
			RoomID:  room.ID,
			Type:    models.MessageImage,
			Content: "uploaded a picture",
		})
		assert.ErrorIs(t, err, chaterr.ErrValidation)

		history, err := f.gw.Messages.ListByRoom(ctx, room.ID)
		require.NoError(t, err)
		assert.Empty(t, history, "rejected message must not be persisted")
	})

	t.Run("missing content", func(t *testing.T) {
		_, err := f.coord.Submit(ctx, SubmitInput{
			UserID: user.ID,
			RoomID: room.ID,
			Type:   models.MessageText,
		})
		assert.ErrorIs(t, err, chaterr.ErrValidation)
	})

	t.Run("unknown type", func(t *testing.T) {
		_, err := f.coord.Submit(ctx, SubmitInput{
			UserID:  user.ID,
			RoomID:  room.ID,
			Type:    "GIF",
			Content: "nope",
		})
		assert.ErrorIs(t, err, chaterr.ErrValidation)
	})

	t.Run("unknown user", func(t *testing.T) {
		_, err := f.coord.Submit(ctx, SubmitInput{
			UserID:  uuid.New(),
			RoomID:  room.ID,
			Type:    models.MessageText,
			Content: "oi",
		})
		assert.ErrorIs(t, err, chaterr.ErrNotFound)
	})
}

func TestMessageScenario(t *testing.T) {
	f := newFixture(t)
	room := f.store.AddRoom("Sala Geral")
	u1 := f.store.AddUser("Matheus", "matheus@example.com")
	u2 := f.store.AddUser("Ellen", "ellen@example.com")
	ctx := context.Background()

	conn2, s2 := f.connect()
	require.NoError(t, f.coord.Dispatch(ctx, conn2, JoinRoom{RoomID: room.ID, UserID: u2.ID}))

	conn1, s1 := f.connect()
	require.NoError(t, f.coord.Dispatch(ctx, conn1, JoinRoom{RoomID: room.ID, UserID: u1.ID}))

	require.NoError(t, f.coord.Dispatch(ctx, conn1, SendMessage{
		RoomID:  room.ID,
		UserID:  u1.ID,
		Type:    models.MessageText,
		Content: "oi",
	}))

	// U2 saw U1 arrive before the message; U1 never hears about its own join.
	joins := s2.byEvent("userJoined")
	require.Len(t, joins, 1)
	assert.Equal(t, u1.ID, joins[0].(UserJoined).UserID)
	assert.Empty(t, s1.byEvent("userJoined"))

	for _, s := range []*fakeSender{s1, s2} {
		msgs := s.byEvent("message")
		require.Len(t, msgs, 1, "both members receive the message, sender included")
		msg := msgs[0].(MessageEvent)
		assert.Equal(t, "oi", msg.Content)
		assert.Equal(t, models.MessageText, msg.Type)
		assert.Equal(t, u1.ID, msg.UserID)
		assert.Equal(t, "Matheus", msg.User.Name)
	}
}

func TestFanOutOrderMatchesCommitOrder(t *testing.T) {
	f := newFixture(t)
	room := f.store.AddRoom("Sala Geral")
	u1 := f.store.AddUser("Matheus", "matheus@example.com")
	u2 := f.store.AddUser("Ellen", "ellen@example.com")
	ctx := context.Background()

	conn2, s2 := f.connect()
	require.NoError(t, f.coord.Dispatch(ctx, conn2, JoinRoom{RoomID: room.ID, UserID: u2.ID}))

	conn1, _ := f.connect()
	require.NoError(t, f.coord.Dispatch(ctx, conn1, JoinRoom{RoomID: room.ID, UserID: u1.ID}))

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			_, err := f.coord.Submit(ctx, SubmitInput{
				UserID:  u1.ID,
				RoomID:  room.ID,
				Type:    models.MessageText,
				Content: fmt.Sprintf("msg %d", n),
			})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	msgs := s2.byEvent("message")
	require.Len(t, msgs, 20)
	for i := 1; i < len(msgs); i++ {
		prev := msgs[i-1].(MessageEvent)
		cur := msgs[i].(MessageEvent)
		assert.Less(t, prev.ID, cur.ID, "delivery order must equal commit order")
	}

	history, err := f.gw.Messages.ListByRoom(ctx, room.ID)
	require.NoError(t, err)
	require.Len(t, history, 20)
}

func TestFanOutIsolatesFailingTarget(t *testing.T) {
	f := newFixture(t)
	room := f.store.AddRoom("Sala Geral")
	u1 := f.store.AddUser("Matheus", "matheus@example.com")
	u2 := f.store.AddUser("Ellen", "ellen@example.com")
	ctx := context.Background()

	connBad, bad := f.connect()
	bad.fail = true
	require.NoError(t, f.coord.Dispatch(ctx, connBad, JoinRoom{RoomID: room.ID, UserID: u2.ID}))

	connOK, ok := f.connect()
	require.NoError(t, f.coord.Dispatch(ctx, connOK, JoinRoom{RoomID: room.ID, UserID: u1.ID}))

	msg, err := f.coord.Submit(ctx, SubmitInput{
		UserID:  u1.ID,
		RoomID:  room.ID,
		Type:    models.MessageText,
		Content: "oi",
		Conn:    connOK,
	})
	require.NoError(t, err, "one dead connection must not fail the submit")
	require.NotNil(t, msg)
	assert.Len(t, ok.byEvent("message"), 1)
}

func TestDisconnectLeavesEveryRoom(t *testing.T) {
	f := newFixture(t)
	roomA := f.store.AddRoom("Sala Geral")
	roomB := f.store.AddRoom("Sala de Jogos")
	user := f.store.AddUser("Matheus", "matheus@example.com")
	ctx := context.Background()

	conn, _ := f.connect()
	require.NoError(t, f.coord.Dispatch(ctx, conn, JoinRoom{RoomID: roomA.ID, UserID: user.ID}))
	require.NoError(t, f.coord.Dispatch(ctx, conn, JoinRoom{RoomID: roomB.ID, UserID: user.ID}))
	assert.Equal(t, 1, f.coord.Online(roomA.ID))
	assert.Equal(t, 1, f.coord.Online(roomB.ID))

	f.coord.Disconnect(conn)

	// The registry entry is gone immediately.
	assert.Equal(t, 0, f.coord.Online(roomA.ID))
	assert.Equal(t, 0, f.coord.Online(roomB.ID))

	// The durable leaves happen in the background.
	require.Eventually(t, func() bool {
		a, err := f.gw.Memberships.Get(ctx, user.ID, roomA.ID)
		if err != nil || a == nil || a.IsActive {
			return false
		}
		b, err := f.gw.Memberships.Get(ctx, user.ID, roomB.ID)
		return err == nil && b != nil && !b.IsActive
	}, time.Second, 5*time.Millisecond)
}

func TestDisconnectSurvivesDeadStore(t *testing.T) {
	f := newFixture(t)
	roomA := f.store.AddRoom("Sala Geral")
	roomB := f.store.AddRoom("Sala de Jogos")
	user := f.store.AddUser("Matheus", "matheus@example.com")
	ctx := context.Background()

	conn, _ := f.connect()
	require.NoError(t, f.coord.Dispatch(ctx, conn, JoinRoom{RoomID: roomA.ID, UserID: user.ID}))
	require.NoError(t, f.coord.Dispatch(ctx, conn, JoinRoom{RoomID: roomB.ID, UserID: user.ID}))

	f.store.FailWrites = true
	f.coord.Disconnect(conn)

	// Teardown never raises: the connection is gone from the registry even
	// though the background leaves will fail.
	assert.Equal(t, 0, f.coord.Online(roomA.ID))
	assert.Equal(t, 0, f.coord.Online(roomB.ID))
}

func TestRejoinAfterDisconnect(t *testing.T) {
	f := newFixture(t)
	room := f.store.AddRoom("Sala Geral")
	user := f.store.AddUser("Matheus", "matheus@example.com")
	ctx := context.Background()

	conn, _ := f.connect()
	require.NoError(t, f.coord.Dispatch(ctx, conn, JoinRoom{RoomID: room.ID, UserID: user.ID}))
	before, err := f.gw.Memberships.Get(ctx, user.ID, room.ID)
	require.NoError(t, err)

	f.coord.Disconnect(conn)
	require.Eventually(t, func() bool {
		m, err := f.gw.Memberships.Get(ctx, user.ID, room.ID)
		return err == nil && m != nil && !m.IsActive && m.LeftAt != nil
	}, time.Second, 5*time.Millisecond)

	conn2, _ := f.connect()
	require.NoError(t, f.coord.Dispatch(ctx, conn2, JoinRoom{RoomID: room.ID, UserID: user.ID}))

	after, err := f.gw.Memberships.Get(ctx, user.ID, room.ID)
	require.NoError(t, err)
	require.NotNil(t, after)
	assert.Equal(t, before.ID, after.ID, "rejoin reuses the single membership row")
	assert.True(t, after.IsActive)
	assert.Nil(t, after.LeftAt)
	assert.False(t, after.JoinedAt.Before(before.JoinedAt), "rejoin refreshes JoinedAt")
}

func TestUnjoinedSenderStillDelivers(t *testing.T) {
	f := newFixture(t)
	room := f.store.AddRoom("Sala Geral")
	u1 := f.store.AddUser("Matheus", "matheus@example.com")
	u2 := f.store.AddUser("Ellen", "ellen@example.com")
	ctx := context.Background()

	connMember, member := f.connect()
	require.NoError(t, f.coord.Dispatch(ctx, connMember, JoinRoom{RoomID: room.ID, UserID: u2.ID}))

	// u1 submits without ever joining: permissive, the room still gets it.
	connOutsider, outsider := f.connect()
	require.NoError(t, f.coord.Dispatch(ctx, connOutsider, SendMessage{
		RoomID:  room.ID,
		UserID:  u1.ID,
		Type:    models.MessageEmoji,
		Content: "🎉",
	}))

	assert.Len(t, member.byEvent("message"), 1)
	assert.Empty(t, outsider.byEvent("message"), "an unjoined sender is not in the fan-out set")
}

func TestLifecycle(t *testing.T) {
	store := memory.New()
	gw := store.Gateway()
	coord := New(gw, storeLookup{gw: gw}, zap.NewNop(), Options{})

	require.NoError(t, coord.Start(context.Background()))
	assert.Error(t, coord.Start(context.Background()), "double start is rejected")

	s := &fakeSender{}
	coord.Connect(s)

	welcomes := s.byEvent("notification")
	require.Len(t, welcomes, 1)
	welcome := welcomes[0].(Notification)
	assert.Equal(t, NoticeWelcome, welcome.Type)
	assert.Equal(t, "Bem-vindo ao Chat Interativo!", welcome.Message)

	coord.Stop()
	assert.True(t, s.closed, "stop closes live transports")

	// Stop is idempotent.
	coord.Stop()
}
