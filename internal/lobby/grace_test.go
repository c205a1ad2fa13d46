package lobby

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testGrace = 40 * time.Millisecond

func TestGraceScheduler_ReconnectWithinWindow(t *testing.T) {
	p, _ := newTestPresence(t)
	s := NewGraceScheduler(p, testGrace)
	defer s.Stop()
	ctx := context.Background()

	room := p.CreateRoom("host")
	require.NoError(t, p.Join(ctx, room.ID, "p1"))

	s.OnDisconnect(room.ID, "p1")
	assert.Equal(t, 1, s.Pending())

	require.NoError(t, p.Join(ctx, room.ID, "p1"))
	assert.Equal(t, 0, s.Pending(), "rejoin cancels the pending removal")

	time.Sleep(3 * testGrace)
	snap, err := p.Room(room.ID)
	require.NoError(t, err)
	assert.Contains(t, snap.Members, "p1")
}

func TestGraceScheduler_RemovesAfterWindow(t *testing.T) {
	p, bc := newTestPresence(t)
	s := NewGraceScheduler(p, testGrace)
	defer s.Stop()
	ctx := context.Background()

	room := p.CreateRoom("host")
	require.NoError(t, p.Join(ctx, room.ID, "p1"))

	s.OnDisconnect(room.ID, "p1")

	assert.Eventually(t, func() bool {
		last, ok := bc.Last()
		if !ok {
			return false
		}
		msg, ok := last.Payload.(PresenceMessage)
		return ok && msg.Notice != nil && msg.Notice.Kind == NoticeLeft
	}, time.Second, 5*time.Millisecond)

	snap, err := p.Room(room.ID)
	require.NoError(t, err)
	assert.NotContains(t, snap.Members, "p1")

	msg := lastPresence(t, bc)
	require.NotNil(t, msg.Notice)
	assert.Equal(t, NoticeLeft, msg.Notice.Kind)
	assert.Equal(t, "p1", msg.Notice.UserID)
	assert.Equal(t, 0, s.Pending())
}

func TestGraceScheduler_LastMemberDeletesRoom(t *testing.T) {
	p, _ := newTestPresence(t)
	s := NewGraceScheduler(p, testGrace)
	defer s.Stop()

	room := p.CreateRoom("solo")
	s.OnDisconnect(room.ID, "solo")

	assert.Eventually(t, func() bool {
		_, ok := p.registry.GetRoom(room.ID)
		return !ok
	}, time.Second, 5*time.Millisecond)
}

func TestGraceScheduler_DuplicateDisconnect(t *testing.T) {
	p, bc := newTestPresence(t)
	s := NewGraceScheduler(p, testGrace)
	defer s.Stop()
	ctx := context.Background()

	room := p.CreateRoom("host")
	require.NoError(t, p.Join(ctx, room.ID, "p1"))
	bc.Reset()

	s.OnDisconnect(room.ID, "p1")
	s.OnDisconnect(room.ID, "p1")
	assert.Equal(t, 1, s.Pending())

	assert.Eventually(t, func() bool { return s.Pending() == 0 }, time.Second, 5*time.Millisecond)
	assert.Eventually(t, func() bool { return len(bc.Messages()) == 1 }, time.Second, 5*time.Millisecond)

	// the session has been fully processed; a late duplicate is ignored
	s.OnDisconnect(room.ID, "p1")
	assert.Equal(t, 0, s.Pending())
	time.Sleep(2 * testGrace)
	assert.Len(t, bc.Messages(), 1)
}

func TestGraceScheduler_IgnoresUnknownSessions(t *testing.T) {
	p, _ := newTestPresence(t)
	s := NewGraceScheduler(p, testGrace)
	defer s.Stop()

	s.OnDisconnect("missing-room", "p1")
	room := p.CreateRoom("host")
	s.OnDisconnect(room.ID, "stranger")

	assert.Equal(t, 0, s.Pending())
}

func TestPresence_LeaveIfStaleChecksEpoch(t *testing.T) {
	p, _ := newTestPresence(t)
	ctx := context.Background()
	room := p.CreateRoom("host")
	require.NoError(t, p.Join(ctx, room.ID, "p1"))

	epoch, ok := p.memberEpoch(room.ID, "p1")
	require.True(t, ok)

	// a join that raced the timer without cancelling it
	require.NoError(t, p.Join(ctx, room.ID, "p1"))

	removed, err := p.leaveIfStale(ctx, room.ID, "p1", epoch)
	require.NoError(t, err)
	assert.False(t, removed)

	fresh, _ := p.memberEpoch(room.ID, "p1")
	removed, err = p.leaveIfStale(ctx, room.ID, "p1", fresh)
	require.NoError(t, err)
	assert.True(t, removed)
}

func TestGraceScheduler_StopCancelsPending(t *testing.T) {
	p, _ := newTestPresence(t)
	s := NewGraceScheduler(p, testGrace)
	ctx := context.Background()

	room := p.CreateRoom("host")
	require.NoError(t, p.Join(ctx, room.ID, "p1"))
	s.OnDisconnect(room.ID, "p1")
	s.Stop()

	time.Sleep(3 * testGrace)
	snap, _ := p.Room(room.ID)
	assert.Contains(t, snap.Members, "p1")

	s.OnDisconnect(room.ID, "p1")
	assert.Equal(t, 0, s.Pending())
}
