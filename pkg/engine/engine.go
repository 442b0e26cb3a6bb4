package engine

import (
	"errors"
	"fmt"
	"math"

	"github.com/abennett/grimoire/pkg/dice"
	"github.com/abennett/grimoire/pkg/rank"
)

// DefaultExplosionCap bounds explosion cascades. The cap is a
// termination guard, not a balance rule.
const DefaultExplosionCap = 10

var (
	ErrInvalidRank   = errors.New("invalid rank tier")
	ErrNegativeBonus = errors.New("other bonus must be non-negative")
	ErrBadDefinition = errors.New("malformed action definition")
)

// BonusTag selects which rank bonuses an action receives.
type BonusTag int

const (
	BonusMastery BonusTag = iota
	BonusWeapon
)

func (b BonusTag) String() string {
	switch b {
	case BonusMastery:
		return "mastery"
	case BonusWeapon:
		return "weapon"
	default:
		return fmt.Sprintf("BonusTag(%d)", int(b))
	}
}

// Action is one entry of the action catalog: the dice to roll, the rank
// bonuses to add, and an ordered modifier pipeline. Actions are
// immutable configuration; Evaluate never mutates them.
type Action struct {
	Name      string
	Category  string
	Dice      []dice.Group
	Bonuses   []BonusTag
	Modifiers []Modifier
}

func (a Action) hasBonus(tag BonusTag) bool {
	for _, b := range a.Bonuses {
		if b == tag {
			return true
		}
	}
	return false
}

// Validate checks the definition for catalog defects. Malformed
// definitions are configuration bugs and should fail at load time.
func (a Action) Validate() error {
	if a.Name == "" {
		return fmt.Errorf("%w: name is required", ErrBadDefinition)
	}
	for i, g := range a.Dice {
		if err := g.Validate(); err != nil {
			return fmt.Errorf("%w: %s dice[%d]: %w", ErrBadDefinition, a.Name, i, err)
		}
	}
	for _, b := range a.Bonuses {
		if b != BonusMastery && b != BonusWeapon {
			return fmt.Errorf("%w: %s unknown bonus tag %d", ErrBadDefinition, a.Name, b)
		}
	}
	for i, m := range a.Modifiers {
		if err := m.Validate(); err != nil {
			return fmt.Errorf("%w: %s modifiers[%d]: %w", ErrBadDefinition, a.Name, i, err)
		}
	}
	return nil
}

// GroupResult is one rolled dice group in a result breakdown. Kept is
// only set when keep-highest/lowest trimmed the rolls.
type GroupResult struct {
	Label string `msgpack:"label" json:"label"`
	Rolls []int  `msgpack:"rolls" json:"rolls"`
	Kept  []int  `msgpack:"kept,omitempty" json:"kept,omitempty"`
	Sum   int    `msgpack:"sum" json:"sum"`
}

// BonusEntry is one flat bonus in a result breakdown. Rank is empty for
// the generic other-bonus entry.
type BonusEntry struct {
	Label string `msgpack:"label" json:"label"`
	Rank  string `msgpack:"rank,omitempty" json:"rank,omitempty"`
	Value int    `msgpack:"value" json:"value"`
}

// ModifierEntry is one pipeline step in a result breakdown.
type ModifierEntry struct {
	Kind        string  `msgpack:"kind" json:"kind"`
	Description string  `msgpack:"description" json:"description"`
	Added       int     `msgpack:"added,omitempty" json:"added,omitempty"`
	Factor      float64 `msgpack:"factor,omitempty" json:"factor,omitempty"`
	Divisor     int     `msgpack:"divisor,omitempty" json:"divisor,omitempty"`
	ExtraRolls  []int   `msgpack:"extra_rolls,omitempty" json:"extra_rolls,omitempty"`
}

// Result is the full audit trail of one evaluation. It is built fresh
// per call and never mutated afterwards; callers persist and display it
// without recomputation.
type Result struct {
	FinalResult    int             `msgpack:"final_result" json:"final_result"`
	RawDiceTotal   int             `msgpack:"raw_dice_total" json:"raw_dice_total"`
	DiceGroups     []GroupResult   `msgpack:"dice_groups" json:"dice_groups"`
	Bonuses        []BonusEntry    `msgpack:"bonuses" json:"bonuses"`
	Modifiers      []ModifierEntry `msgpack:"modifiers" json:"modifiers"`
	ExplosionRolls []int           `msgpack:"explosion_rolls,omitempty" json:"explosion_rolls,omitempty"`
	Expression     string          `msgpack:"expression" json:"expression"`
}

// Evaluator evaluates catalog actions. It holds no per-call state and
// may be shared across concurrent callers as long as Source is safe for
// concurrent use.
type Evaluator struct {
	Source       dice.Source
	ExplosionCap int
}

func New(src dice.Source) *Evaluator {
	return &Evaluator{
		Source:       src,
		ExplosionCap: DefaultExplosionCap,
	}
}

// Evaluate rolls the action's dice groups, accumulates rank bonuses,
// runs the modifier pipeline in declaration order, and returns the
// result with its audit trail. The final result never drops below 1.
func (e *Evaluator) Evaluate(action Action, weapon, mastery rank.Tier, otherBonus int) (Result, error) {
	if !weapon.Valid() || !mastery.Valid() {
		return Result{}, fmt.Errorf("%w: weapon=%s mastery=%s", ErrInvalidRank, weapon, mastery)
	}
	if otherBonus < 0 {
		return Result{}, fmt.Errorf("%w: %d", ErrNegativeBonus, otherBonus)
	}

	st := &evalState{
		src:       e.Source,
		capRounds: e.ExplosionCap,
		weapon:    weapon,
		mastery:   mastery,
		other:     otherBonus,
	}

	var groups []GroupResult
	for _, g := range action.Dice {
		count, err := g.Count.Resolve(weapon, mastery)
		if err != nil {
			return Result{}, fmt.Errorf("%s: resolve dice count: %w", action.Name, err)
		}
		if count <= 0 {
			continue
		}
		roll := g.RollN(st.src, count)
		st.total += float64(roll.Sum)
		for _, face := range roll.Rolls {
			st.rawDice += face
		}
		st.faces = append(st.faces, roll.Rolls...)

		group := GroupResult{
			Label: g.Label(count),
			Rolls: roll.Rolls,
			Sum:   roll.Sum,
		}
		if len(roll.Kept) < len(roll.Rolls) {
			group.Kept = roll.Kept
		}
		groups = append(groups, group)
	}

	// Mastery before weapon, regardless of declaration order.
	var bonuses []BonusEntry
	if action.hasBonus(BonusMastery) {
		st.total += float64(mastery.Bonus())
		bonuses = append(bonuses, BonusEntry{
			Label: BonusMastery.String(),
			Rank:  mastery.String(),
			Value: mastery.Bonus(),
		})
	}
	if action.hasBonus(BonusWeapon) {
		st.total += float64(weapon.Bonus())
		bonuses = append(bonuses, BonusEntry{
			Label: BonusWeapon.String(),
			Rank:  weapon.String(),
			Value: weapon.Bonus(),
		})
	}
	if otherBonus > 0 {
		st.total += float64(otherBonus)
		bonuses = append(bonuses, BonusEntry{
			Label: "other",
			Value: otherBonus,
		})
	}

	var entries []ModifierEntry
	for i, m := range action.Modifiers {
		entry, err := m.apply(st)
		if err != nil {
			return Result{}, fmt.Errorf("%s: modifiers[%d]: %w", action.Name, i, err)
		}
		entries = append(entries, entry)
	}

	final := int(math.Floor(st.total))
	if final < 1 {
		final = 1
	}

	result := Result{
		FinalResult:    final,
		RawDiceTotal:   st.rawDice,
		DiceGroups:     groups,
		Bonuses:        bonuses,
		Modifiers:      entries,
		ExplosionRolls: st.explosions,
	}
	result.Expression = renderExpression(result)
	return result, nil
}
