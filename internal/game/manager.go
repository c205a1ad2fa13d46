package game

import (
	"context"
	"sync"
	"time"

	"aquaroom/internal/broadcast"
	"aquaroom/internal/lobby"
	"aquaroom/internal/services/profile"
	"aquaroom/internal/services/results"

	"go.uber.org/zap"
)

// RoomSource supplies the roster of a room when a round starts.
type RoomSource interface {
	Room(roomID string) (lobby.Snapshot, error)
}

type Options struct {
	StunDuration   time.Duration
	PatternSymbols int
	// Now defaults to time.Now, whose monotonic reading keeps stun expiry
	// immune to wall clock changes.
	Now func() time.Time
}

type IGameService interface {
	StartGame(ctx context.Context, roomID string, v Variant) error
	SubmitInput(ctx context.Context, roomID, userID string, in Input) (Outcome, error)
	EndGame(ctx context.Context, roomID string) error
	ActiveVariant(roomID string) (Variant, bool)
	Scoreboard(roomID string) (Scoreboard, bool)
	Discard(roomID string)
}

// Manager routes every room to the engine of the variant it is playing.
type Manager struct {
	rooms   RoomSource
	engines map[Variant]*Engine

	mu     sync.Mutex
	active map[string]Variant
}

func NewManager(rooms RoomSource, bc broadcast.Broadcaster, profiles profile.Lookup, store results.Store, opts Options) *Manager {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.StunDuration <= 0 {
		opts.StunDuration = time.Second
	}
	if opts.PatternSymbols < 2 {
		opts.PatternSymbols = 4
	}
	m := &Manager{
		rooms:   rooms,
		engines: make(map[Variant]*Engine, len(Variants)),
		active:  make(map[string]Variant),
	}
	for _, r := range []rule{tapRule{}, newPatternRule(opts.PatternSymbols), collectRule{}} {
		m.engines[r.variant()] = newEngine(r, bc, profiles, store, opts.StunDuration, opts.Now)
	}
	return m
}

// StartGame opens a round of v for every current member of roomID. A round
// of any variant still running in the room blocks it; an ended one is
// replaced.
func (m *Manager) StartGame(ctx context.Context, roomID string, v Variant) error {
	eng, ok := m.engines[v]
	if !ok {
		return ErrUnknownVariant
	}
	snap, err := m.rooms.Room(roomID)
	if err != nil {
		return err
	}

	m.mu.Lock()
	if cur, ok := m.active[roomID]; ok && cur != v {
		if m.engines[cur].running(roomID) {
			m.mu.Unlock()
			return ErrGameInProgress
		}
		m.engines[cur].Discard(roomID)
	}
	b, err := eng.begin(roomID, snap.Members)
	if err == nil {
		m.active[roomID] = v
	}
	m.mu.Unlock()
	if err != nil {
		zap.L().Info("game.start_declined", zap.String("room_id", roomID), zap.String("variant", string(v)), zap.Error(err))
		return err
	}

	eng.announce(ctx, b)
	return nil
}

func (m *Manager) SubmitInput(ctx context.Context, roomID, userID string, in Input) (Outcome, error) {
	eng, ok := m.engine(roomID)
	if !ok {
		zap.L().Warn("game.no_scoreboard", zap.String("room_id", roomID), zap.String("user_id", userID))
		return OutcomeIgnored, ErrNoActiveGame
	}
	return eng.Submit(ctx, roomID, userID, in)
}

func (m *Manager) EndGame(ctx context.Context, roomID string) error {
	eng, ok := m.engine(roomID)
	if !ok {
		return ErrNoActiveGame
	}
	return eng.End(ctx, roomID)
}

// ActiveVariant reports the variant of the latest round of roomID, ended or not.
func (m *Manager) ActiveVariant(roomID string) (Variant, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.active[roomID]
	return v, ok
}

func (m *Manager) Scoreboard(roomID string) (Scoreboard, bool) {
	eng, ok := m.engine(roomID)
	if !ok {
		return Scoreboard{}, false
	}
	return eng.Scoreboard(roomID)
}

// Discard forgets everything about roomID; it is registered as the room
// closed hook of the lobby.
func (m *Manager) Discard(roomID string) {
	m.mu.Lock()
	v, ok := m.active[roomID]
	delete(m.active, roomID)
	m.mu.Unlock()
	if ok {
		m.engines[v].Discard(roomID)
	}
}

func (m *Manager) engine(roomID string) (*Engine, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.active[roomID]
	if !ok {
		return nil, false
	}
	return m.engines[v], true
}
var _ IGameService = (*Manager)(nil)
