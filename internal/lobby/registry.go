package lobby

import (
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Registry maps room ids to rooms. Lookups are not atomic with later
// mutations; Presence re-checks a room under its own lock before changing it.
type Registry struct {
	mu    sync.RWMutex
	rooms map[string]*Room

	newID func() string
	now   func() time.Time
}

func NewRegistry() *Registry {
	return &Registry{
		rooms: make(map[string]*Room),
		newID: uuid.NewString,
		now:   time.Now,
	}
}

// CreateRoom stores a new room whose owner is its only member.
func (g *Registry) CreateRoom(ownerID string) *Room {
	g.mu.Lock()
	defer g.mu.Unlock()

	id := g.newID()
	for _, taken := g.rooms[id]; taken; _, taken = g.rooms[id] {
		id = g.newID()
	}
	r := newRoom(id, ownerID, g.now())
	g.rooms[id] = r

	zap.L().Info("lobby.room_created", zap.String("room_id", id), zap.String("owner_id", ownerID))
	return r
}

func (g *Registry) GetRoom(id string) (*Room, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	r, ok := g.rooms[id]
	return r, ok
}

// ListRooms returns the rooms ordered by creation time. The slice is a copy
// and can be iterated without holding any lock.
func (g *Registry) ListRooms() []*Room {
	g.mu.RLock()
	out := make([]*Room, 0, len(g.rooms))
	for _, r := range g.rooms {
		out = append(out, r)
	}
	g.mu.RUnlock()

	slices.SortFunc(out, func(a, b *Room) int {
		if c := a.createdAt.Compare(b.createdAt); c != 0 {
			return c
		}
		return strings.Compare(a.id, b.id)
	})
	return out
}

// DeleteRoom is idempotent.
func (g *Registry) DeleteRoom(id string) {
	g.mu.Lock()
	r, ok := g.rooms[id]
	delete(g.rooms, id)
	g.mu.Unlock()
	if !ok {
		return
	}

	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()
	zap.L().Info("lobby.room_deleted", zap.String("room_id", id))
}

// detach removes r while the caller already holds r.mu.
func (g *Registry) detach(r *Room) {
	g.mu.Lock()
	if cur, ok := g.rooms[r.id]; ok && cur == r {
		delete(g.rooms, r.id)
	}
	g.mu.Unlock()
	r.closed = true
	zap.L().Info("lobby.room_deleted", zap.String("room_id", r.id), zap.String("reason", "empty"))
}

func (g *Registry) Len() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.rooms)
}
