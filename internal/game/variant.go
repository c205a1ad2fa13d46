package game

import (
	"fmt"
	"strings"
)

// CompletionThreshold is the score at which a player finishes, in every variant.
const CompletionThreshold = 100

// PatternLength is the size of the answer key of a pattern round.
const PatternLength = 100

type Variant string

const (
	// VariantTap: every press counts, first to the threshold wins.
	VariantTap Variant = "tap"
	// VariantPattern: repeat a shared random sequence of directions; a wrong
	// direction stuns.
	VariantPattern Variant = "pattern"
	// VariantCollect: eat food, avoid stones; a stone stuns.
	VariantCollect Variant = "collect"
)

var Variants = []Variant{VariantTap, VariantPattern, VariantCollect}

func ParseVariant(s string) (Variant, error) {
	switch v := Variant(strings.ToLower(strings.TrimSpace(s))); v {
	case VariantTap, VariantPattern, VariantCollect:
		return v, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownVariant, s)
}

type Item string

const (
	ItemPositive Item = "positive"
	ItemNegative Item = "negative"
)

// ParseItem accepts the item kinds and the food/stone names older clients send.
func ParseItem(s string) (Item, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "positive", "feed":
		return ItemPositive, true
	case "negative", "stone":
		return ItemNegative, true
	}
	return "", false
}

// Input is one player action. Which fields matter depends on the variant:
// Count for tap, Direction for pattern, Item for collect.
type Input struct {
	Count     int    `json:"count,omitempty"`
	Direction *int   `json:"direction,omitempty"`
	Item      string `json:"item,omitempty"`
}

// Outcome is what an input did to the submitting player.
type Outcome int

const (
	// OutcomeIgnored: the player already finished or is not part of the round.
	OutcomeIgnored Outcome = iota
	// OutcomeBlocked: the player is stunned.
	OutcomeBlocked
	OutcomeScored
	OutcomeStunned
)

func (o Outcome) String() string {
	switch o {
	case OutcomeIgnored:
		return "ignored"
	case OutcomeBlocked:
		return "blocked"
	case OutcomeScored:
		return "scored"
	case OutcomeStunned:
		return "stunned"
	}
	return fmt.Sprintf("outcome(%d)", int(o))
}
