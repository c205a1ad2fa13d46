package game

import (
	"context"
	"slices"
	"sync"
	"time"

	"aquaroom/internal/broadcast"
	"aquaroom/internal/services/profile"
	"aquaroom/internal/services/results"

	"go.uber.org/zap"
)

// Engine runs the rounds of one variant, one board per room. The engine map
// is guarded by mu; a board's contents only ever change under its own lock.
type Engine struct {
	rule     rule
	bc       broadcast.Broadcaster
	profiles profile.Lookup
	results  results.Store
	stun     time.Duration
	now      func() time.Time

	mu     sync.RWMutex
	boards map[string]*board
}

func newEngine(r rule, bc broadcast.Broadcaster, profiles profile.Lookup, store results.Store, stun time.Duration, now func() time.Time) *Engine {
	return &Engine{
		rule:     r,
		bc:       bc,
		profiles: profiles,
		results:  store,
		stun:     stun,
		now:      now,
		boards:   make(map[string]*board),
	}
}

func (e *Engine) Variant() Variant { return e.rule.variant() }

// Start opens a round for players and announces it.
func (e *Engine) Start(ctx context.Context, roomID string, players []string) error {
	b, err := e.begin(roomID, players)
	if err != nil {
		return err
	}
	e.announce(ctx, b)
	return nil
}

// begin installs a fresh board. A board whose round has not ended yet blocks
// the start.
func (e *Engine) begin(roomID string, players []string) (*board, error) {
	if len(players) == 0 {
		return nil, ErrNoPlayers
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if prev, ok := e.boards[roomID]; ok && prev.running() {
		return nil, ErrGameInProgress
	}
	b := newBoard(roomID, e.rule.variant(), players)
	e.rule.setup(b)
	e.boards[roomID] = b

	zap.L().Info("game.started",
		zap.String("room_id", roomID),
		zap.String("variant", string(b.variant)),
		zap.Int("players", len(players)),
	)
	return b, nil
}

func (e *Engine) announce(ctx context.Context, b *board) {
	b.mu.Lock()
	players := slices.Clone(b.players)
	scores := b.scoresLocked()
	sequence := slices.Clone(b.sequence)
	b.mu.Unlock()

	e.publish(ctx, b.roomID, StartedMessage{
		RoomID:    b.roomID,
		Kind:      KindStarted,
		Variant:   b.variant,
		Threshold: CompletionThreshold,
		Players:   e.playerStates(ctx, players, scores),
		Sequence:  sequence,
	})
}

// Submit applies one input of userID. Inputs from finished or stunned players
// and inputs after the round ended change nothing and publish nothing.
func (e *Engine) Submit(ctx context.Context, roomID, userID string, in Input) (Outcome, error) {
	b := e.board(roomID)
	if b == nil {
		zap.L().Warn("game.no_scoreboard", zap.String("room_id", roomID), zap.String("user_id", userID))
		return OutcomeIgnored, ErrNoActiveGame
	}

	b.mu.Lock()
	if b.ended || !b.tracks(userID) || b.finished(userID) {
		b.mu.Unlock()
		zap.L().Debug("game.input_ignored", zap.String("room_id", roomID), zap.String("user_id", userID))
		return OutcomeIgnored, nil
	}

	now := e.now()
	if until, ok := b.stunUntil[userID]; ok {
		if now.Before(until) {
			b.mu.Unlock()
			zap.L().Debug("game.input_while_stunned", zap.String("room_id", roomID), zap.String("user_id", userID))
			return OutcomeBlocked, nil
		}
		delete(b.stunUntil, userID)
	}

	v, err := e.rule.apply(b, userID, in)
	if err != nil {
		b.mu.Unlock()
		zap.L().Info("game.invalid_input", zap.String("room_id", roomID), zap.String("user_id", userID), zap.Error(err))
		return OutcomeIgnored, err
	}

	outcome := OutcomeScored
	if v.stun {
		b.stunUntil[userID] = now.Add(e.stun)
		outcome = OutcomeStunned
		zap.L().Debug("game.stunned", zap.String("room_id", roomID), zap.String("user_id", userID))
	} else {
		b.award(userID, v.gain)
	}

	done := b.allFinished()
	var ranking []string
	if done {
		ranking = b.conclude()
	}
	players := slices.Clone(b.players)
	scores := b.scoresLocked()
	b.mu.Unlock()

	if done {
		e.finish(ctx, b.roomID, b.variant, ranking, scores)
	} else {
		e.publish(ctx, roomID, ProgressMessage{
			RoomID:  roomID,
			Kind:    KindProgress,
			Variant: b.variant,
			Players: e.playerStates(ctx, players, scores),
		})
	}
	return outcome, nil
}

// End concludes the round before everyone finished. Players in the finish
// order keep their place, the rest follow by score.
func (e *Engine) End(ctx context.Context, roomID string) error {
	b := e.board(roomID)
	if b == nil {
		return ErrNoActiveGame
	}
	b.mu.Lock()
	if b.ended {
		b.mu.Unlock()
		return ErrNoActiveGame
	}
	ranking := b.conclude()
	scores := b.scoresLocked()
	b.mu.Unlock()

	e.finish(ctx, roomID, b.variant, ranking, scores)
	return nil
}

// Discard drops the board of roomID, ended or not.
func (e *Engine) Discard(roomID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.boards[roomID]; ok {
		delete(e.boards, roomID)
		zap.L().Debug("game.discarded", zap.String("room_id", roomID), zap.String("variant", string(e.rule.variant())))
	}
}

func (e *Engine) Scoreboard(roomID string) (Scoreboard, bool) {
	b := e.board(roomID)
	if b == nil {
		return Scoreboard{}, false
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.snapshotLocked(e.now()), true
}

func (e *Engine) running(roomID string) bool {
	b := e.board(roomID)
	return b != nil && b.running()
}

func (e *Engine) board(roomID string) *board {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.boards[roomID]
}

func (e *Engine) finish(ctx context.Context, roomID string, v Variant, ranking []string, scores map[string]int) {
	var winner string
	if len(ranking) > 0 {
		winner = ranking[0]
	}
	states := e.playerStates(ctx, ranking, scores)
	var winnerNickname string
	if len(states) > 0 {
		winnerNickname = states[0].Nickname
	}

	zap.L().Info("game.ended", zap.String("room_id", roomID), zap.String("variant", string(v)), zap.String("winner", winner))
	e.publish(ctx, roomID, EndedMessage{
		RoomID:         roomID,
		Kind:           KindEnded,
		Variant:        v,
		Players:        states,
		Winner:         winner,
		WinnerNickname: winnerNickname,
		FinishOrder:    ranking,
	})
	e.archive(ctx, roomID, v, ranking, scores)
}

func (e *Engine) archive(ctx context.Context, roomID string, v Variant, ranking []string, scores map[string]int) {
	if e.results == nil {
		return
	}
	res := results.Result{
		RoomID:  roomID,
		Variant: string(v),
		EndedAt: e.now().UTC(),
		Players: make([]results.PlayerResult, 0, len(ranking)),
	}
	if len(ranking) > 0 {
		res.Winner = ranking[0]
	}
	for i, id := range ranking {
		res.Players = append(res.Players, results.PlayerResult{UserID: id, Score: scores[id], Rank: i + 1})
	}
	if err := e.results.SaveResult(ctx, res); err != nil {
		zap.L().Error("game.archive_failed", zap.String("room_id", roomID), zap.Error(err))
	}
}

func (e *Engine) playerStates(ctx context.Context, order []string, scores map[string]int) []PlayerState {
	profiles := profile.Resolve(ctx, e.profiles, order)
	out := make([]PlayerState, 0, len(order))
	for _, id := range order {
		pr := profiles[id]
		out = append(out, PlayerState{
			UserID:    id,
			Score:     scores[id],
			Nickname:  pr.Nickname,
			AvatarRef: pr.AvatarRef,
		})
	}
	return out
}

func (e *Engine) publish(ctx context.Context, roomID string, msg any) {
	if err := e.bc.Publish(ctx, broadcast.RoomChannel(roomID), msg); err != nil {
		zap.L().Warn("game.broadcast_failed", zap.String("room_id", roomID), zap.Error(err))
	}
}
