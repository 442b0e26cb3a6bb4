package engine

import (
	"errors"
	"fmt"
	"math"
	"strconv"

	"github.com/abennett/grimoire/pkg/dice"
	"github.com/abennett/grimoire/pkg/rank"
)

var (
	ErrBadModifier     = errors.New("malformed modifier")
	ErrMissingFallback = errors.New("per-rank value is missing the E entry")
)

// Modifier entry kinds as they appear in result breakdowns.
const (
	KindMultiplier  = "multiplier"
	KindCritical    = "critical"
	KindSuccess     = "success"
	KindExplosion   = "explosion"
	KindDivisor     = "divisor"
	KindAoeDivisor  = "aoe"
	KindConversion  = "conversion"
	KindConditional = "conditional"
)

// FactorByRank maps tiers to a multiplier factor. Lookups fall back to
// the E entry, which must be present.
type FactorByRank map[rank.Tier]float64

// Factor builds a rank-independent factor table.
func Factor(f float64) FactorByRank {
	return FactorByRank{rank.TierE: f}
}

func (f FactorByRank) resolve(t rank.Tier) (float64, error) {
	if v, ok := f[t]; ok {
		return v, nil
	}
	v, ok := f[rank.TierE]
	if !ok {
		return 0, ErrMissingFallback
	}
	return v, nil
}

func (f FactorByRank) validate() error {
	if _, ok := f[rank.TierE]; !ok {
		return ErrMissingFallback
	}
	return nil
}

// BonusByRank maps tiers to a flat bonus. Lookups fall back to the E
// entry, which must be present.
type BonusByRank map[rank.Tier]int

// Bonus builds a rank-independent bonus table.
func Bonus(n int) BonusByRank {
	return BonusByRank{rank.TierE: n}
}

func (b BonusByRank) resolve(t rank.Tier) (int, error) {
	if v, ok := b[t]; ok {
		return v, nil
	}
	v, ok := b[rank.TierE]
	if !ok {
		return 0, ErrMissingFallback
	}
	return v, nil
}

func (b BonusByRank) validate() error {
	if _, ok := b[rank.TierE]; !ok {
		return ErrMissingFallback
	}
	return nil
}

// Modifier is one step of an action's modifier pipeline. The set of
// implementations is closed; each transforms the running total and
// reports an audit entry.
type Modifier interface {
	Validate() error
	apply(st *evalState) (ModifierEntry, error)
}

// evalState is the running state of a single evaluation, threaded
// through the modifier pipeline.
type evalState struct {
	src      dice.Source
	capRounds int

	weapon  rank.Tier
	mastery rank.Tier
	other   int

	total      float64
	rawDice    int
	faces      []int // every face rolled so far, dropped ones included
	explosions []int
}

func (st *evalState) rollExtra(sides int) int {
	face := st.src.Roll(sides)
	st.total += float64(face)
	st.rawDice += face
	st.faces = append(st.faces, face)
	return face
}

// Multiplier scales the running total unconditionally.
type Multiplier struct {
	Factor float64
}

func (m Multiplier) Validate() error {
	if m.Factor <= 0 {
		return fmt.Errorf("%w: multiplier factor %v", ErrBadModifier, m.Factor)
	}
	return nil
}

func (m Multiplier) apply(st *evalState) (ModifierEntry, error) {
	st.total *= m.Factor
	return ModifierEntry{
		Kind:        KindMultiplier,
		Description: "×" + formatFactor(m.Factor),
		Factor:      m.Factor,
	}, nil
}

// ThresholdMultiplier scales the running total when it has reached the
// threshold, the "critical" mechanic. A miss is still recorded.
type ThresholdMultiplier struct {
	Threshold int
	Factor    FactorByRank
}

func (m ThresholdMultiplier) Validate() error {
	if m.Threshold <= 0 {
		return fmt.Errorf("%w: critical threshold %d", ErrBadModifier, m.Threshold)
	}
	return m.Factor.validate()
}

func (m ThresholdMultiplier) apply(st *evalState) (ModifierEntry, error) {
	if st.total < float64(m.Threshold) {
		return ModifierEntry{
			Kind:        KindCritical,
			Description: fmt.Sprintf("threshold not met (%d)", m.Threshold),
		}, nil
	}
	factor, err := m.Factor.resolve(st.mastery)
	if err != nil {
		return ModifierEntry{}, err
	}
	st.total *= factor
	return ModifierEntry{
		Kind:        KindCritical,
		Description: fmt.Sprintf("critical ×%s at %d+", formatFactor(factor), m.Threshold),
		Factor:      factor,
	}, nil
}

// SuccessBonus adds a rank-scaled bonus when the running total has
// reached the threshold, or an optional flat consolation bonus when it
// has not.
type SuccessBonus struct {
	Threshold    int
	Bonus        BonusByRank
	FailureBonus *int
}

func (m SuccessBonus) Validate() error {
	if m.Threshold <= 0 {
		return fmt.Errorf("%w: success threshold %d", ErrBadModifier, m.Threshold)
	}
	return m.Bonus.validate()
}

func (m SuccessBonus) apply(st *evalState) (ModifierEntry, error) {
	if st.total >= float64(m.Threshold) {
		bonus, err := m.Bonus.resolve(st.mastery)
		if err != nil {
			return ModifierEntry{}, err
		}
		st.total += float64(bonus)
		return ModifierEntry{
			Kind:        KindSuccess,
			Description: fmt.Sprintf("success at %d+", m.Threshold),
			Added:       bonus,
		}, nil
	}
	if m.FailureBonus != nil {
		st.total += float64(*m.FailureBonus)
		return ModifierEntry{
			Kind:        KindSuccess,
			Description: fmt.Sprintf("failed %d threshold", m.Threshold),
			Added:       *m.FailureBonus,
		}, nil
	}
	return ModifierEntry{
		Kind:        KindSuccess,
		Description: fmt.Sprintf("failed %d threshold", m.Threshold),
	}, nil
}

// Explosion grants one extra die for every die rolled so far whose face
// meets the threshold. Extra dice that themselves meet the threshold
// cascade into further rounds, up to the evaluator's round cap. Chance
// gates each extra die on a d100 roll; 0 or 100 means unconditional.
type Explosion struct {
	Threshold int
	Chance    int
	Extra     dice.Group
}

func (m Explosion) Validate() error {
	if m.Threshold <= 0 {
		return fmt.Errorf("%w: explosion threshold %d", ErrBadModifier, m.Threshold)
	}
	if m.Chance < 0 || m.Chance > 100 {
		return fmt.Errorf("%w: explosion chance %d", ErrBadModifier, m.Chance)
	}
	if m.Extra.Sides < 1 {
		return fmt.Errorf("%w: explosion die sides %d", ErrBadModifier, m.Extra.Sides)
	}
	return nil
}

func (m Explosion) apply(st *evalState) (ModifierEntry, error) {
	var pending int
	for _, face := range st.faces {
		if face >= m.Threshold {
			pending++
		}
	}

	var extra []int
	var triggers int
	for round := 0; pending > 0 && round < st.capRounds; round++ {
		var next int
		triggers += pending
		for range pending {
			if m.Chance > 0 && m.Chance < 100 && st.src.Roll(100) > m.Chance {
				continue
			}
			face := st.rollExtra(m.Extra.Sides)
			extra = append(extra, face)
			if face >= m.Threshold {
				next++
			}
		}
		pending = next
	}
	st.explosions = append(st.explosions, extra...)

	var added int
	for _, face := range extra {
		added += face
	}
	return ModifierEntry{
		Kind:        KindExplosion,
		Description: fmt.Sprintf("%d triggers on %d+, %d extra dice", triggers, m.Threshold, len(extra)),
		Added:       added,
		ExtraRolls:  extra,
	}, nil
}

// Divisor floors the running total divided by a constant.
type Divisor struct {
	Divisor int
}

func (m Divisor) Validate() error {
	if m.Divisor <= 0 {
		return fmt.Errorf("%w: divisor %d", ErrBadModifier, m.Divisor)
	}
	return nil
}

func (m Divisor) apply(st *evalState) (ModifierEntry, error) {
	st.total = math.Floor(st.total / float64(m.Divisor))
	return ModifierEntry{
		Kind:        KindDivisor,
		Description: fmt.Sprintf("÷%d", m.Divisor),
		Divisor:     m.Divisor,
	}, nil
}

// AoeDivisor is declared in action definitions but has no effect on the
// single-target path. It stays a no-op until multi-target resolution
// exists; the entry is still recorded so breakdowns mirror the
// definition.
type AoeDivisor struct {
	Divisor int
}

func (m AoeDivisor) Validate() error {
	if m.Divisor <= 0 {
		return fmt.Errorf("%w: aoe divisor %d", ErrBadModifier, m.Divisor)
	}
	return nil
}

func (m AoeDivisor) apply(st *evalState) (ModifierEntry, error) {
	return ModifierEntry{
		Kind:        KindAoeDivisor,
		Description: fmt.Sprintf("single target, ÷%d not applied", m.Divisor),
	}, nil
}

// BonusConversion trades the flat other-bonus for extra dice at a fixed
// exchange rate. The remainder below the rate is kept as a flat add.
type BonusConversion struct {
	Rate int
	Dice dice.Group
}

func (m BonusConversion) Validate() error {
	if m.Rate <= 0 {
		return fmt.Errorf("%w: conversion rate %d", ErrBadModifier, m.Rate)
	}
	if m.Dice.Count.Kind != dice.CountLiteral || m.Dice.Count.N < 1 {
		return fmt.Errorf("%w: conversion dice count must be a positive literal", ErrBadModifier)
	}
	if m.Dice.Sides < 1 {
		return fmt.Errorf("%w: conversion die sides %d", ErrBadModifier, m.Dice.Sides)
	}
	return nil
}

func (m BonusConversion) apply(st *evalState) (ModifierEntry, error) {
	k := st.other / m.Rate
	if k == 0 {
		return ModifierEntry{
			Kind:        KindConversion,
			Description: fmt.Sprintf("bonus %d below %d rate", st.other, m.Rate),
		}, nil
	}

	count := k * m.Dice.Count.N
	remainder := st.other % m.Rate
	st.total -= float64(st.other)

	rolls := make([]int, count)
	var sum int
	for i := range rolls {
		face := st.rollExtra(m.Dice.Sides)
		rolls[i] = face
		sum += face
	}
	st.total += float64(remainder)
	converted := st.other
	st.other = 0

	return ModifierEntry{
		Kind: KindConversion,
		Description: fmt.Sprintf("converted %d bonus into %dd%d + %d",
			converted, count, m.Dice.Sides, remainder),
		Added:      sum + remainder - converted,
		ExtraRolls: rolls,
	}, nil
}

// Conditional is declared in action definitions but its predicates were
// never wired to game state. It stays a no-op.
type Conditional struct {
	Predicate string
	Value     int
}

func (m Conditional) Validate() error {
	if m.Predicate == "" {
		return fmt.Errorf("%w: conditional predicate is required", ErrBadModifier)
	}
	return nil
}

func (m Conditional) apply(st *evalState) (ModifierEntry, error) {
	return ModifierEntry{
		Kind:        KindConditional,
		Description: fmt.Sprintf("%s not evaluated", m.Predicate),
	}, nil
}

func formatFactor(f float64) string {
	return strconv.FormatFloat(f, 'g', -1, 64)
}
