package lobby

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"testing"

	"aquaroom/internal/broadcast"
	"aquaroom/internal/services/profile"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestPresence(t *testing.T) (*Presence, *broadcast.MockBroadcaster) {
	t.Helper()
	bc := &broadcast.MockBroadcaster{}
	lookup := &profile.MockLookup{Profiles: map[string]profile.Profile{
		"alice": {UserID: "alice", Nickname: "Alice", AvatarRef: "fish/a.png", Level: 4},
		"bob":   {UserID: "bob", Nickname: "Bob", AvatarRef: "fish/b.png", Level: 2},
	}}
	return NewPresence(NewRegistry(), bc, lookup), bc
}

// assertRoomInvariants checks owner ∈ members and ready ⊆ members \ {owner}.
func assertRoomInvariants(t *testing.T, s Snapshot) {
	t.Helper()
	if len(s.Members) > 0 {
		assert.Contains(t, s.Members, s.OwnerID, "owner must be a member")
	}
	for _, id := range s.Ready {
		assert.Contains(t, s.Members, id, "ready users must be members")
		assert.NotEqual(t, s.OwnerID, id, "owner takes no part in readiness")
	}
}

func lastPresence(t *testing.T, bc *broadcast.MockBroadcaster) PresenceMessage {
	t.Helper()
	last, ok := bc.Last()
	require.True(t, ok, "expected a broadcast")
	msg, ok := last.Payload.(PresenceMessage)
	require.Truef(t, ok, "expected PresenceMessage, got %T", last.Payload)
	return msg
}

func TestPresence_LobbyLifecycle(t *testing.T) {
	p, bc := newTestPresence(t)
	ctx := context.Background()

	room := p.CreateRoom("alice")
	assert.Equal(t, []string{"alice"}, room.Members)
	assert.Equal(t, "alice", room.OwnerID)

	require.NoError(t, p.Join(ctx, room.ID, "bob"))
	snap, err := p.Room(room.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"alice", "bob"}, snap.Members)
	assertRoomInvariants(t, snap)

	msg := lastPresence(t, bc)
	assert.Equal(t, KindUserList, msg.Kind)
	assert.Equal(t, "room."+room.ID, bc.Messages()[0].Channel)
	require.NotNil(t, msg.Notice)
	assert.Equal(t, NoticeJoined, msg.Notice.Kind)
	assert.Equal(t, []Member{
		{UserID: "alice", Nickname: "Alice", AvatarRef: "fish/a.png", Level: 4, IsOwner: true},
		{UserID: "bob", Nickname: "Bob", AvatarRef: "fish/b.png", Level: 2},
	}, msg.Users)

	require.NoError(t, p.MarkReady(ctx, room.ID, "bob"))
	snap, _ = p.Room(room.ID)
	assert.Equal(t, []string{"bob"}, snap.Ready)
	assert.True(t, lastPresence(t, bc).Users[1].IsReady)

	require.NoError(t, p.Leave(ctx, room.ID, "alice"))
	snap, _ = p.Room(room.ID)
	assert.Equal(t, "bob", snap.OwnerID)
	assert.Equal(t, []string{"bob"}, snap.Members)
	assert.Empty(t, snap.Ready, "the new owner drops out of readiness")
	assertRoomInvariants(t, snap)

	require.NoError(t, p.Leave(ctx, room.ID, "bob"))
	_, err = p.Room(room.ID)
	assert.ErrorIs(t, err, ErrRoomNotFound)
	_, ok := p.registry.GetRoom(room.ID)
	assert.False(t, ok)
}

func TestPresence_JoinMissingRoom(t *testing.T) {
	p, bc := newTestPresence(t)

	err := p.Join(context.Background(), "nope", "alice")
	assert.ErrorIs(t, err, ErrRoomNotFound)
	assert.Empty(t, bc.Messages())
}

func TestPresence_RejoinKeepsMembershipAndResyncs(t *testing.T) {
	p, bc := newTestPresence(t)
	ctx := context.Background()
	room := p.CreateRoom("alice")
	require.NoError(t, p.Join(ctx, room.ID, "bob"))

	var rejoined []string
	p.OnRejoin(func(roomID, userID string) { rejoined = append(rejoined, userID) })

	before, _ := p.memberEpoch(room.ID, "bob")
	require.NoError(t, p.Join(ctx, room.ID, "bob"))
	after, _ := p.memberEpoch(room.ID, "bob")

	snap, _ := p.Room(room.ID)
	assert.Equal(t, []string{"alice", "bob"}, snap.Members)
	assert.Greater(t, after, before)
	assert.Equal(t, []string{"bob"}, rejoined)
	assert.Nil(t, lastPresence(t, bc).Notice, "a rejoin is a plain resync")
}

func TestPresence_LeaveIsIdempotent(t *testing.T) {
	p, bc := newTestPresence(t)
	ctx := context.Background()
	room := p.CreateRoom("alice")
	require.NoError(t, p.Join(ctx, room.ID, "bob"))

	require.NoError(t, p.Leave(ctx, room.ID, "bob"))
	first, _ := p.Room(room.ID)
	published := len(bc.Messages())

	require.NoError(t, p.Leave(ctx, room.ID, "bob"))
	second, _ := p.Room(room.ID)

	assert.Equal(t, first, second)
	assert.Len(t, bc.Messages(), published, "second leave publishes nothing")
}

func TestPresence_OwnershipTransfer(t *testing.T) {
	p, _ := newTestPresence(t)
	ctx := context.Background()
	room := p.CreateRoom("A")
	require.NoError(t, p.Join(ctx, room.ID, "B"))
	require.NoError(t, p.Join(ctx, room.ID, "C"))

	require.NoError(t, p.Leave(ctx, room.ID, "A"))

	snap, _ := p.Room(room.ID)
	assert.Equal(t, "B", snap.OwnerID, "earliest joined member becomes owner")
	assert.NotContains(t, snap.Members, "A")
}

func TestPresence_Kick(t *testing.T) {
	ctx := context.Background()

	t.Run("non-owner is declined silently", func(t *testing.T) {
		p, bc := newTestPresence(t)
		room := p.CreateRoom("p1")
		require.NoError(t, p.Join(ctx, room.ID, "p2"))
		require.NoError(t, p.Join(ctx, room.ID, "p3"))
		before, _ := p.Room(room.ID)
		bc.Reset()

		err := p.Kick(ctx, room.ID, "p3", "p2")
		assert.ErrorIs(t, err, ErrNotAuthorized)

		after, _ := p.Room(room.ID)
		assert.Equal(t, before, after)
		assert.Empty(t, bc.Messages())
	})

	t.Run("owner cannot kick themselves", func(t *testing.T) {
		p, bc := newTestPresence(t)
		room := p.CreateRoom("p1")
		bc.Reset()

		assert.ErrorIs(t, p.Kick(ctx, room.ID, "p1", "p1"), ErrNotAuthorized)
		assert.Empty(t, bc.Messages())
	})

	t.Run("owner kicks member", func(t *testing.T) {
		p, bc := newTestPresence(t)
		room := p.CreateRoom("p1")
		require.NoError(t, p.Join(ctx, room.ID, "p2"))
		require.NoError(t, p.MarkReady(ctx, room.ID, "p2"))
		bc.Reset()

		require.NoError(t, p.Kick(ctx, room.ID, "p2", "p1"))

		snap, _ := p.Room(room.ID)
		assert.Equal(t, []string{"p1"}, snap.Members)
		assert.Empty(t, snap.Ready)

		msgs := bc.Messages()
		require.Len(t, msgs, 2)
		assert.IsType(t, PresenceMessage{}, msgs[0].Payload)
		kicked, ok := msgs[1].Payload.(KickedMessage)
		require.True(t, ok)
		assert.Equal(t, KindKicked, kicked.Kind)
		assert.Equal(t, "p2", kicked.UserID)
	})

	t.Run("kick of a non-member", func(t *testing.T) {
		p, bc := newTestPresence(t)
		room := p.CreateRoom("p1")
		bc.Reset()

		assert.ErrorIs(t, p.Kick(ctx, room.ID, "ghost", "p1"), ErrNotMember)
		assert.Empty(t, bc.Messages())
	})
}

func TestPresence_Readiness(t *testing.T) {
	p, bc := newTestPresence(t)
	ctx := context.Background()
	room := p.CreateRoom("alice")
	require.NoError(t, p.Join(ctx, room.ID, "bob"))
	require.NoError(t, p.Join(ctx, room.ID, "carol"))
	bc.Reset()

	assert.ErrorIs(t, p.MarkReady(ctx, room.ID, "ghost"), ErrNotMember)
	assert.NoError(t, p.MarkReady(ctx, room.ID, "alice"), "owner readiness is a no-op")
	assert.Empty(t, bc.Messages())

	require.NoError(t, p.MarkReady(ctx, room.ID, "bob"))
	require.NoError(t, p.MarkReady(ctx, room.ID, "carol"))
	require.NoError(t, p.MarkReady(ctx, room.ID, "carol"))
	assert.Len(t, bc.Messages(), 2, "repeating a readiness state publishes nothing")

	require.NoError(t, p.UnmarkReady(ctx, room.ID, "bob"))
	snap, _ := p.Room(room.ID)
	assert.Equal(t, []string{"carol"}, snap.Ready)
	assert.Equal(t, NoticeUnready, lastPresence(t, bc).Notice.Kind)

	require.NoError(t, p.ClearReadiness(ctx, room.ID))
	snap, _ = p.Room(room.ID)
	assert.Empty(t, snap.Ready)
	assert.Equal(t, NoticeReadyCleared, lastPresence(t, bc).Notice.Kind)
	assertRoomInvariants(t, snap)

	assert.ErrorIs(t, p.ClearReadiness(ctx, "nope"), ErrRoomNotFound)
}

func TestPresence_VersionIncreases(t *testing.T) {
	p, bc := newTestPresence(t)
	ctx := context.Background()
	room := p.CreateRoom("alice")

	require.NoError(t, p.Join(ctx, room.ID, "bob"))
	require.NoError(t, p.MarkReady(ctx, room.ID, "bob"))
	require.NoError(t, p.Leave(ctx, room.ID, "bob"))

	var last uint64
	for _, m := range bc.Messages() {
		v := m.Payload.(PresenceMessage).Version
		assert.Greater(t, v, last)
		last = v
	}
}

func TestPresence_RoomClosedHook(t *testing.T) {
	p, _ := newTestPresence(t)
	var closed []string
	p.OnRoomClosed(func(roomID string) { closed = append(closed, roomID) })

	room := p.CreateRoom("alice")
	require.NoError(t, p.Leave(context.Background(), room.ID, "alice"))

	assert.Equal(t, []string{room.ID}, closed)
}

func TestPresence_SendChat(t *testing.T) {
	p, bc := newTestPresence(t)
	ctx := context.Background()
	room := p.CreateRoom("alice")
	bc.Reset()

	require.NoError(t, p.SendChat(ctx, room.ID, "alice", "  hello fish  "))
	last, _ := bc.Last()
	chat, ok := last.Payload.(ChatMessage)
	require.True(t, ok)
	assert.Equal(t, "hello fish", chat.Content)
	assert.Equal(t, "Alice", chat.Nickname)
	assert.Equal(t, KindChat, chat.Kind)

	assert.ErrorIs(t, p.SendChat(ctx, room.ID, "bob", "hi"), ErrNotMember)
	assert.ErrorIs(t, p.SendChat(ctx, room.ID, "alice", "   "), ErrInvalidChat)
	assert.ErrorIs(t, p.SendChat(ctx, "nope", "alice", "hi"), ErrRoomNotFound)
	assert.Len(t, bc.Messages(), 1)
}

func TestPresence_SelectGame(t *testing.T) {
	p, bc := newTestPresence(t)
	ctx := context.Background()
	room := p.CreateRoom("alice")
	require.NoError(t, p.Join(ctx, room.ID, "bob"))
	bc.Reset()

	assert.ErrorIs(t, p.SelectGame(ctx, room.ID, "bob", "pattern"), ErrNotAuthorized)
	assert.Empty(t, bc.Messages())

	require.NoError(t, p.SelectGame(ctx, room.ID, "alice", "pattern"))
	last, _ := bc.Last()
	assert.Equal(t, GameSelectedMessage{RoomID: room.ID, Kind: KindGameSelected, Variant: "pattern", UpdatedBy: "alice"}, last.Payload)
}

func TestPresence_UserListDoesNotPublish(t *testing.T) {
	p, bc := newTestPresence(t)
	room := p.CreateRoom("alice")

	msg, err := p.UserList(context.Background(), room.ID)
	require.NoError(t, err)
	assert.Len(t, msg.Users, 1)
	assert.Empty(t, bc.Messages())
}

func TestPresence_ConcurrentMembershipKeepsInvariants(t *testing.T) {
	p, _ := newTestPresence(t)
	ctx := context.Background()
	room := p.CreateRoom("owner")

	var wg sync.WaitGroup
	for i := range 40 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			user := fmt.Sprintf("u%d", i%10)
			_ = p.Join(ctx, room.ID, user)
			_ = p.MarkReady(ctx, room.ID, user)
			if i%3 == 0 {
				_ = p.Leave(ctx, room.ID, user)
			}
		}()
	}
	wg.Wait()

	snap, err := p.Room(room.ID)
	require.NoError(t, err)
	assertRoomInvariants(t, snap)
	assert.Contains(t, snap.Members, "owner")

	sorted := slices.Clone(snap.Members)
	slices.Sort(sorted)
	assert.Len(t, slices.Compact(sorted), len(snap.Members), "members are unique")
}
