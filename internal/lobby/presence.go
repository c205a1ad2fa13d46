package lobby

import (
	"context"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"aquaroom/internal/broadcast"
	"aquaroom/internal/services/profile"

	"go.uber.org/zap"
)

const maxChatRunes = 500

type IPresenceService interface {
	CreateRoom(ownerID string) Snapshot
	Room(roomID string) (Snapshot, error)
	Rooms() []Snapshot
	Join(ctx context.Context, roomID, userID string) error
	Leave(ctx context.Context, roomID, userID string) error
	Kick(ctx context.Context, roomID, targetID, requesterID string) error
	MarkReady(ctx context.Context, roomID, userID string) error
	UnmarkReady(ctx context.Context, roomID, userID string) error
	ClearReadiness(ctx context.Context, roomID string) error
	SendChat(ctx context.Context, roomID, userID, content string) error
	SelectGame(ctx context.Context, roomID, userID, variant string) error
	UserList(ctx context.Context, roomID string) (PresenceMessage, error)
}

var _ IPresenceService = (*Presence)(nil)

// Presence owns every mutation of a Room. Each operation changes the room
// under its lock, copies a snapshot, releases the lock and only then resolves
// profiles and publishes, so slow collaborators never block other events.
type Presence struct {
	registry *Registry
	bc       broadcast.Broadcaster
	profiles profile.Lookup
	now      func() time.Time

	hookMu   sync.RWMutex
	onRejoin []func(roomID, userID string)
	onClosed []func(roomID string)
}

func NewPresence(registry *Registry, bc broadcast.Broadcaster, profiles profile.Lookup) *Presence {
	return &Presence{
		registry: registry,
		bc:       bc,
		profiles: profiles,
		now:      time.Now,
	}
}

// OnRejoin registers fn to run after every join of a user, including a join
// of a user who is still a member (a reconnect).
func (p *Presence) OnRejoin(fn func(roomID, userID string)) {
	p.hookMu.Lock()
	p.onRejoin = append(p.onRejoin, fn)
	p.hookMu.Unlock()
}

// OnRoomClosed registers fn to run once a room has been deleted because its
// last member left.
func (p *Presence) OnRoomClosed(fn func(roomID string)) {
	p.hookMu.Lock()
	p.onClosed = append(p.onClosed, fn)
	p.hookMu.Unlock()
}

func (p *Presence) CreateRoom(ownerID string) Snapshot {
	return p.registry.CreateRoom(ownerID).Snapshot()
}

// Rooms lists a snapshot of every open room, oldest first.
func (p *Presence) Rooms() []Snapshot {
	rooms := p.registry.ListRooms()
	out := make([]Snapshot, 0, len(rooms))
	for _, r := range rooms {
		r.mu.Lock()
		if !r.closed {
			out = append(out, r.snapshotLocked())
		}
		r.mu.Unlock()
	}
	return out
}

// Room returns a snapshot of roomID.
func (p *Presence) Room(roomID string) (Snapshot, error) {
	r, err := p.lockRoom(roomID)
	if err != nil {
		return Snapshot{}, err
	}
	defer r.mu.Unlock()
	return r.snapshotLocked(), nil
}

func (p *Presence) Join(ctx context.Context, roomID, userID string) error {
	r, err := p.lockRoom(roomID)
	if err != nil {
		zap.L().Info("lobby.join_missing_room", zap.String("room_id", roomID), zap.String("user_id", userID))
		return err
	}
	added := r.addMember(userID)
	r.version++
	snap := r.snapshotLocked()
	r.mu.Unlock()

	p.fireRejoin(roomID, userID)

	var notice *Notice
	if added {
		zap.L().Info("lobby.join", zap.String("room_id", roomID), zap.String("user_id", userID))
		notice = &Notice{Kind: NoticeJoined, UserID: userID, Description: userID + " joined the room"}
	} else {
		zap.L().Info("lobby.rejoin", zap.String("room_id", roomID), zap.String("user_id", userID))
	}
	p.publishUserList(ctx, snap, notice)
	return nil
}

// Leave is idempotent: leaving a room one is not in changes nothing and
// publishes nothing.
func (p *Presence) Leave(ctx context.Context, roomID, userID string) error {
	r, err := p.lockRoom(roomID)
	if err != nil {
		return err
	}
	snap, removed, closed := p.leaveLocked(r, userID)
	r.mu.Unlock()

	if !removed {
		zap.L().Debug("lobby.leave_not_member", zap.String("room_id", roomID), zap.String("user_id", userID))
		return nil
	}
	zap.L().Info("lobby.leave", zap.String("room_id", roomID), zap.String("user_id", userID))
	p.afterLeave(ctx, snap, closed, &Notice{Kind: NoticeLeft, UserID: userID, Description: userID + " left the room"})
	return nil
}

// Kick removes targetID on behalf of the owner. A request from anyone else,
// or an owner kicking themselves, is declined without any broadcast.
func (p *Presence) Kick(ctx context.Context, roomID, targetID, requesterID string) error {
	r, err := p.lockRoom(roomID)
	if err != nil {
		return err
	}
	if requesterID != r.ownerID || targetID == requesterID {
		r.mu.Unlock()
		zap.L().Info("lobby.kick_declined",
			zap.String("room_id", roomID),
			zap.String("target_id", targetID),
			zap.String("requester_id", requesterID),
		)
		return ErrNotAuthorized
	}
	snap, removed, closed := p.leaveLocked(r, targetID)
	r.mu.Unlock()

	if !removed {
		return ErrNotMember
	}
	zap.L().Info("lobby.kick", zap.String("room_id", roomID), zap.String("target_id", targetID))

	description := targetID + " was kicked from the room"
	p.afterLeave(ctx, snap, closed, &Notice{Kind: NoticeLeft, UserID: targetID, Description: description})
	p.publish(ctx, roomID, KickedMessage{
		RoomID:      roomID,
		Kind:        KindKicked,
		UserID:      targetID,
		Description: description,
	})
	return nil
}

func (p *Presence) MarkReady(ctx context.Context, roomID, userID string) error {
	return p.setReady(ctx, roomID, userID, true)
}

func (p *Presence) UnmarkReady(ctx context.Context, roomID, userID string) error {
	return p.setReady(ctx, roomID, userID, false)
}

func (p *Presence) setReady(ctx context.Context, roomID, userID string, ready bool) error {
	r, err := p.lockRoom(roomID)
	if err != nil {
		return err
	}
	if !r.hasMember(userID) {
		r.mu.Unlock()
		return ErrNotMember
	}
	if userID == r.ownerID || r.isReady(userID) == ready {
		r.mu.Unlock()
		return nil
	}
	notice := &Notice{UserID: userID}
	if ready {
		r.ready[userID] = struct{}{}
		notice.Kind, notice.Description = NoticeReady, userID+" is ready"
	} else {
		delete(r.ready, userID)
		notice.Kind, notice.Description = NoticeUnready, userID+" is no longer ready"
	}
	r.version++
	snap := r.snapshotLocked()
	r.mu.Unlock()

	p.publishUserList(ctx, snap, notice)
	return nil
}

// ClearReadiness puts the lobby back in its pre-game state after a round.
func (p *Presence) ClearReadiness(ctx context.Context, roomID string) error {
	r, err := p.lockRoom(roomID)
	if err != nil {
		return err
	}
	clear(r.ready)
	r.version++
	snap := r.snapshotLocked()
	r.mu.Unlock()

	p.publishUserList(ctx, snap, &Notice{Kind: NoticeReadyCleared, Description: "readiness cleared"})
	return nil
}

func (p *Presence) SendChat(ctx context.Context, roomID, userID, content string) error {
	content = strings.TrimSpace(content)
	if n := utf8.RuneCountInString(content); n == 0 || n > maxChatRunes {
		return ErrInvalidChat
	}
	r, err := p.lockRoom(roomID)
	if err != nil {
		return err
	}
	member := r.hasMember(userID)
	r.mu.Unlock()
	if !member {
		return ErrNotMember
	}

	sender := profile.Resolve(ctx, p.profiles, []string{userID})[userID]
	p.publish(ctx, roomID, ChatMessage{
		RoomID:   roomID,
		Kind:     KindChat,
		Sender:   userID,
		Nickname: sender.Nickname,
		Content:  content,
		SentAt:   p.now().UTC(),
	})
	return nil
}

// SelectGame relays the owner's choice of the next game to the room.
func (p *Presence) SelectGame(ctx context.Context, roomID, userID, variant string) error {
	r, err := p.lockRoom(roomID)
	if err != nil {
		return err
	}
	owner := r.ownerID
	r.mu.Unlock()
	if userID != owner {
		zap.L().Info("lobby.select_game_declined", zap.String("room_id", roomID), zap.String("user_id", userID))
		return ErrNotAuthorized
	}

	p.publish(ctx, roomID, GameSelectedMessage{
		RoomID:    roomID,
		Kind:      KindGameSelected,
		Variant:   variant,
		UpdatedBy: userID,
	})
	return nil
}

// UserList builds the current USER_LIST without publishing it, for a client
// that just subscribed.
func (p *Presence) UserList(ctx context.Context, roomID string) (PresenceMessage, error) {
	snap, err := p.Room(roomID)
	if err != nil {
		return PresenceMessage{}, err
	}
	return p.userList(ctx, snap, nil), nil
}

func (p *Presence) memberEpoch(roomID, userID string) (uint64, bool) {
	r, err := p.lockRoom(roomID)
	if err != nil {
		return 0, false
	}
	defer r.mu.Unlock()
	epoch, ok := r.epochs[userID]
	return epoch, ok
}

// leaveIfStale removes userID only if they have not joined again since the
// join identified by epoch.
func (p *Presence) leaveIfStale(ctx context.Context, roomID, userID string, epoch uint64) (bool, error) {
	r, err := p.lockRoom(roomID)
	if err != nil {
		return false, err
	}
	if cur, ok := r.epochs[userID]; !ok || cur != epoch {
		r.mu.Unlock()
		return false, nil
	}
	snap, removed, closed := p.leaveLocked(r, userID)
	r.mu.Unlock()
	if !removed {
		return false, nil
	}

	p.afterLeave(ctx, snap, closed, &Notice{Kind: NoticeLeft, UserID: userID, Description: userID + " lost connection"})
	return true, nil
}

// lockRoom returns roomID locked, or ErrRoomNotFound if it is gone.
func (p *Presence) lockRoom(roomID string) (*Room, error) {
	r, ok := p.registry.GetRoom(roomID)
	if !ok {
		return nil, ErrRoomNotFound
	}
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil, ErrRoomNotFound
	}
	return r, nil
}

func (p *Presence) leaveLocked(r *Room, userID string) (snap Snapshot, removed, closed bool) {
	removed, ownerChanged := r.removeMember(userID)
	if !removed {
		return Snapshot{}, false, false
	}
	r.version++
	if len(r.members) == 0 {
		p.registry.detach(r)
		closed = true
	} else if ownerChanged {
		zap.L().Info("lobby.owner_transferred", zap.String("room_id", r.id), zap.String("owner_id", r.ownerID))
	}
	return r.snapshotLocked(), true, closed
}

func (p *Presence) afterLeave(ctx context.Context, snap Snapshot, closed bool, notice *Notice) {
	p.publishUserList(ctx, snap, notice)
	if closed {
		p.hookMu.RLock()
		hooks := p.onClosed
		p.hookMu.RUnlock()
		for _, fn := range hooks {
			fn(snap.ID)
		}
	}
}

func (p *Presence) fireRejoin(roomID, userID string) {
	p.hookMu.RLock()
	hooks := p.onRejoin
	p.hookMu.RUnlock()
	for _, fn := range hooks {
		fn(roomID, userID)
	}
}

func (p *Presence) userList(ctx context.Context, snap Snapshot, notice *Notice) PresenceMessage {
	profiles := profile.Resolve(ctx, p.profiles, snap.Members)
	ready := make(map[string]bool, len(snap.Ready))
	for _, id := range snap.Ready {
		ready[id] = true
	}

	users := make([]Member, 0, len(snap.Members))
	for _, id := range snap.Members {
		pr := profiles[id]
		users = append(users, Member{
			UserID:    id,
			Nickname:  pr.Nickname,
			AvatarRef: pr.AvatarRef,
			Level:     pr.Level,
			IsOwner:   id == snap.OwnerID,
			IsReady:   ready[id],
		})
	}
	return PresenceMessage{
		RoomID:  snap.ID,
		Kind:    KindUserList,
		Version: snap.Version,
		OwnerID: snap.OwnerID,
		Users:   users,
		Notice:  notice,
	}
}

func (p *Presence) publishUserList(ctx context.Context, snap Snapshot, notice *Notice) {
	p.publish(ctx, snap.ID, p.userList(ctx, snap, notice))
}

func (p *Presence) publish(ctx context.Context, roomID string, msg any) {
	if err := p.bc.Publish(ctx, broadcast.RoomChannel(roomID), msg); err != nil {
		zap.L().Warn("lobby.broadcast_failed", zap.String("room_id", roomID), zap.Error(err))
	}
}
