package game

import (
	"slices"
	"sync"
	"time"
)

// board is the scoreboard of one room for one round. mu serialises every
// input of the room so score, stun and finish order change together.
type board struct {
	mu      sync.Mutex
	roomID  string
	variant Variant

	// players in room member order at start; ties in a ranking keep this order.
	players     []string
	scores      map[string]int
	stunUntil   map[string]time.Time
	finishOrder []string

	// pattern variant only
	progress map[string]int
	sequence []int

	ended bool
}

func newBoard(roomID string, v Variant, players []string) *board {
	b := &board{
		roomID:    roomID,
		variant:   v,
		players:   slices.Clone(players),
		scores:    make(map[string]int, len(players)),
		stunUntil: make(map[string]time.Time),
	}
	for _, p := range players {
		b.scores[p] = 0
	}
	return b
}

func (b *board) tracks(userID string) bool {
	_, ok := b.scores[userID]
	return ok
}

func (b *board) finished(userID string) bool {
	return b.scores[userID] >= CompletionThreshold
}

func (b *board) allFinished() bool {
	for _, p := range b.players {
		if !b.finished(p) {
			return false
		}
	}
	return true
}

// award adds gain clamped to the threshold and records the finish once.
func (b *board) award(userID string, gain int) {
	b.scores[userID] = min(CompletionThreshold, b.scores[userID]+gain)
	if b.finished(userID) && !slices.Contains(b.finishOrder, userID) {
		b.finishOrder = append(b.finishOrder, userID)
	}
}

func (b *board) running() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return !b.ended
}

// conclude marks the round over and returns its final ranking.
func (b *board) conclude() []string {
	b.ended = true
	return b.ranking()
}

func (b *board) scoresLocked() map[string]int {
	out := make(map[string]int, len(b.scores))
	for k, v := range b.scores {
		out[k] = v
	}
	return out
}

// ranking keeps the finish order and appends everyone else by score,
// highest first, ties in player order.
func (b *board) ranking() []string {
	out := slices.Clone(b.finishOrder)
	rest := make([]string, 0, len(b.players)-len(out))
	for _, p := range b.players {
		if !slices.Contains(out, p) {
			rest = append(rest, p)
		}
	}
	slices.SortStableFunc(rest, func(x, y string) int {
		return b.scores[y] - b.scores[x]
	})
	return append(out, rest...)
}

// Scoreboard is a copy of a board's state.
type Scoreboard struct {
	RoomID      string         `json:"roomId"`
	Variant     Variant        `json:"variant"`
	Players     []string       `json:"players"`
	Scores      map[string]int `json:"scores"`
	FinishOrder []string       `json:"finishOrder"`
	Progress    map[string]int `json:"progress,omitempty"`
	Sequence    []int          `json:"sequence,omitempty"`
	Stunned     []string       `json:"stunned,omitempty"`
	AllFinished bool           `json:"allFinished"`
	Ended       bool           `json:"ended"`
}

func (b *board) snapshotLocked(now time.Time) Scoreboard {
	s := Scoreboard{
		RoomID:      b.roomID,
		Variant:     b.variant,
		Players:     slices.Clone(b.players),
		Scores:      b.scoresLocked(),
		FinishOrder: slices.Clone(b.finishOrder),
		Sequence:    slices.Clone(b.sequence),
		AllFinished: b.allFinished(),
		Ended:       b.ended,
	}
	if b.progress != nil {
		s.Progress = make(map[string]int, len(b.progress))
		for k, v := range b.progress {
			s.Progress[k] = v
		}
	}
	for _, p := range b.players {
		if until, ok := b.stunUntil[p]; ok && now.Before(until) {
			s.Stunned = append(s.Stunned, p)
		}
	}
	return s
}
