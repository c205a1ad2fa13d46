package game

import "math/rand/v2"

// verdict is a rule's decision on one input.
type verdict struct {
	gain int
	stun bool
}

// rule holds everything that differs between variants. Apply runs with the
// board locked and may update variant state such as the pattern cursor.
type rule interface {
	variant() Variant
	setup(b *board)
	apply(b *board, userID string, in Input) (verdict, error)
}

type tapRule struct{}

func (tapRule) variant() Variant { return VariantTap }
func (tapRule) setup(*board)     {}

func (tapRule) apply(_ *board, _ string, in Input) (verdict, error) {
	switch {
	case in.Count < 0:
		return verdict{}, ErrInvalidInput
	case in.Count == 0:
		return verdict{gain: 1}, nil
	}
	return verdict{gain: in.Count}, nil
}

type patternRule struct {
	symbols int
	intn    func(n int) int
}

func newPatternRule(symbols int) *patternRule {
	return &patternRule{symbols: symbols, intn: rand.IntN}
}

func (*patternRule) variant() Variant { return VariantPattern }

func (r *patternRule) setup(b *board) {
	b.sequence = make([]int, PatternLength)
	for i := range b.sequence {
		b.sequence[i] = r.intn(r.symbols)
	}
	b.progress = make(map[string]int, len(b.players))
	for _, p := range b.players {
		b.progress[p] = 0
	}
}

func (r *patternRule) apply(b *board, userID string, in Input) (verdict, error) {
	if in.Direction == nil || *in.Direction < 0 || *in.Direction >= r.symbols {
		return verdict{}, ErrInvalidInput
	}
	idx := b.progress[userID]
	if idx >= len(b.sequence) {
		return verdict{}, ErrInvalidInput
	}
	if *in.Direction != b.sequence[idx] {
		return verdict{stun: true}, nil
	}
	b.progress[userID] = idx + 1
	return verdict{gain: 1}, nil
}

type collectRule struct{}

func (collectRule) variant() Variant { return VariantCollect }
func (collectRule) setup(*board)     {}

func (collectRule) apply(_ *board, _ string, in Input) (verdict, error) {
	item, ok := ParseItem(in.Item)
	if !ok {
		return verdict{}, ErrInvalidInput
	}
	if item == ItemNegative {
		return verdict{stun: true}, nil
	}
	return verdict{gain: 1}, nil
}
