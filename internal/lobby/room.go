package lobby

import (
	"slices"
	"sync"
	"time"
)

// Room is one lobby: its members, owner and readiness. All fields are guarded
// by mu and only mutated by Presence; other packages read it through Snapshot.
type Room struct {
	id        string
	createdAt time.Time

	mu      sync.Mutex
	ownerID string
	// members in join order; iteration order of every list we publish.
	members []string
	ready   map[string]struct{}
	// epochs[user] is the value of joinSeq at the user's latest join.
	epochs  map[string]uint64
	joinSeq uint64
	version uint64
	closed  bool
}

// Snapshot is an immutable copy of a Room's state.
type Snapshot struct {
	ID        string    `json:"id"`
	OwnerID   string    `json:"ownerId"`
	Members   []string  `json:"members"`
	Ready     []string  `json:"ready"`
	Version   uint64    `json:"version"`
	CreatedAt time.Time `json:"createdAt"`
}

func newRoom(id, ownerID string, now time.Time) *Room {
	r := &Room{
		id:        id,
		createdAt: now,
		ownerID:   ownerID,
		ready:     make(map[string]struct{}),
		epochs:    make(map[string]uint64),
	}
	r.addMember(ownerID)
	return r
}

func (r *Room) ID() string { return r.id }

func (r *Room) Snapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snapshotLocked()
}

func (r *Room) snapshotLocked() Snapshot {
	s := Snapshot{
		ID:        r.id,
		OwnerID:   r.ownerID,
		Members:   slices.Clone(r.members),
		Ready:     make([]string, 0, len(r.ready)),
		Version:   r.version,
		CreatedAt: r.createdAt,
	}
	for _, m := range r.members {
		if _, ok := r.ready[m]; ok {
			s.Ready = append(s.Ready, m)
		}
	}
	return s
}

func (r *Room) hasMember(userID string) bool {
	return slices.Contains(r.members, userID)
}

// addMember bumps the join epoch even for present members so a reconnect
// is distinguishable from the session that dropped.
func (r *Room) addMember(userID string) (added bool) {
	r.joinSeq++
	r.epochs[userID] = r.joinSeq
	if r.hasMember(userID) {
		return false
	}
	r.members = append(r.members, userID)
	return true
}

// removeMember drops userID and hands ownership to the earliest joined
// remaining member when the owner leaves. It reports whether the member was
// present and whether the owner changed.
func (r *Room) removeMember(userID string) (removed, ownerChanged bool) {
	i := slices.Index(r.members, userID)
	if i < 0 {
		return false, false
	}
	r.members = slices.Delete(r.members, i, i+1)
	delete(r.ready, userID)
	delete(r.epochs, userID)

	if userID == r.ownerID {
		r.ownerID = ""
		if len(r.members) > 0 {
			r.ownerID = r.members[0]
			// the owner takes no part in readiness
			delete(r.ready, r.ownerID)
		}
		ownerChanged = true
	}
	return true, ownerChanged
}

func (r *Room) isReady(userID string) bool {
	_, ok := r.ready[userID]
	return ok
}
