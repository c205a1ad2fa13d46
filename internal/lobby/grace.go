package lobby

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
)

type graceKey struct {
	roomID string
	userID string
}

type pendingLeave struct {
	timer *time.Timer
	epoch uint64
}

// GraceScheduler delays the removal of a disconnected member so that a
// transient reconnect keeps their seat. A join for the same room and user
// cancels the pending removal; the removal itself re-checks the member's join
// epoch under the room lock in case the join raced the timer.
type GraceScheduler struct {
	presence *Presence
	window   time.Duration

	mu      sync.Mutex
	pending map[graceKey]*pendingLeave
	stopped bool
}

func NewGraceScheduler(presence *Presence, window time.Duration) *GraceScheduler {
	s := &GraceScheduler{
		presence: presence,
		window:   window,
		pending:  make(map[graceKey]*pendingLeave),
	}
	presence.OnRejoin(s.cancel)
	return s
}

// OnDisconnect records that the transport session of userID in roomID ended.
// Repeated signals for the same session are ignored, as are signals for users
// that already left.
func (s *GraceScheduler) OnDisconnect(roomID, userID string) {
	epoch, ok := s.presence.memberEpoch(roomID, userID)
	if !ok {
		zap.L().Debug("lobby.disconnect_not_member", zap.String("room_id", roomID), zap.String("user_id", userID))
		return
	}

	key := graceKey{roomID: roomID, userID: userID}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return
	}
	if prev, ok := s.pending[key]; ok {
		if prev.epoch == epoch {
			zap.L().Debug("lobby.disconnect_duplicate", zap.String("room_id", roomID), zap.String("user_id", userID))
			return
		}
		prev.timer.Stop()
	}

	entry := &pendingLeave{epoch: epoch}
	entry.timer = time.AfterFunc(s.window, func() { s.expire(key, entry) })
	s.pending[key] = entry

	zap.L().Info("lobby.disconnect_grace_started",
		zap.String("room_id", roomID),
		zap.String("user_id", userID),
		zap.Duration("window", s.window),
	)
}

func (s *GraceScheduler) expire(key graceKey, entry *pendingLeave) {
	s.mu.Lock()
	if s.pending[key] != entry {
		s.mu.Unlock()
		return
	}
	delete(s.pending, key)
	s.mu.Unlock()

	removed, err := s.presence.leaveIfStale(context.Background(), key.roomID, key.userID, entry.epoch)
	switch {
	case errors.Is(err, ErrRoomNotFound):
		// already cleaned up
	case err != nil:
		zap.L().Warn("lobby.disconnect_leave_failed", zap.String("room_id", key.roomID), zap.Error(err))
	case removed:
		zap.L().Info("lobby.disconnect_removed", zap.String("room_id", key.roomID), zap.String("user_id", key.userID))
	default:
		zap.L().Info("lobby.disconnect_reconnected", zap.String("room_id", key.roomID), zap.String("user_id", key.userID))
	}
}

func (s *GraceScheduler) cancel(roomID, userID string) {
	key := graceKey{roomID: roomID, userID: userID}
	s.mu.Lock()
	defer s.mu.Unlock()
	if entry, ok := s.pending[key]; ok {
		entry.timer.Stop()
		delete(s.pending, key)
		zap.L().Debug("lobby.disconnect_grace_cancelled", zap.String("room_id", roomID), zap.String("user_id", userID))
	}
}

// Pending reports how many removals are waiting for their grace window.
func (s *GraceScheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// Stop cancels every pending removal; later disconnects are ignored.
func (s *GraceScheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped = true
	for key, entry := range s.pending {
		entry.timer.Stop()
		delete(s.pending, key)
	}
}
