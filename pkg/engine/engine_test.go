package engine

import (
	"testing"

	"github.com/shoenig/test/must"

	"github.com/abennett/grimoire/pkg/dice"
	"github.com/abennett/grimoire/pkg/rank"
)

// scripted replays faces in call order, wrapping at the end.
type scripted struct {
	faces []int
	at    int
}

func (s *scripted) Roll(sides int) int {
	face := s.faces[s.at%len(s.faces)]
	s.at++
	return face
}

func newScripted(faces ...int) *Evaluator {
	return New(&scripted{faces: faces})
}

func TestSingleDie(t *testing.T) {
	action := Action{
		Name: "strike",
		Dice: []dice.Group{{Count: dice.Literal(1), Sides: 20}},
	}
	result, err := newScripted(15).Evaluate(action, rank.TierE, rank.TierE, 0)
	must.NoError(t, err)
	must.EqOp(t, 15, result.FinalResult)
	must.EqOp(t, 15, result.RawDiceTotal)
	must.Len(t, 1, result.DiceGroups)
	must.Eq(t, []int{15}, result.DiceGroups[0].Rolls)
	must.Nil(t, result.DiceGroups[0].Kept)
	must.EqOp(t, "1d20[15] = 15", result.Expression)
}

func TestAdvantage(t *testing.T) {
	action := Action{
		Name: "advantage",
		Dice: []dice.Group{{Count: dice.Literal(2), Sides: 20, KeepHighest: 1}},
	}
	result, err := newScripted(5, 18).Evaluate(action, rank.TierE, rank.TierE, 0)
	must.NoError(t, err)
	group := result.DiceGroups[0]
	must.Eq(t, []int{5, 18}, group.Rolls)
	must.Eq(t, []int{18}, group.Kept)
	must.EqOp(t, 18, group.Sum)
	must.EqOp(t, "2d20kh1[5 18 → 18] = 18", result.Expression)
}

func TestBonusOrderAndValues(t *testing.T) {
	action := Action{
		Name:    "empowered",
		Dice:    []dice.Group{{Count: dice.Literal(1), Sides: 6}},
		Bonuses: []BonusTag{BonusWeapon, BonusMastery},
	}
	result, err := newScripted(4).Evaluate(action, rank.TierC, rank.TierB, 7)
	must.NoError(t, err)
	// mastery before weapon regardless of declaration order, other last
	must.Len(t, 3, result.Bonuses)
	must.Eq(t, BonusEntry{Label: "mastery", Rank: "B", Value: 30}, result.Bonuses[0])
	must.Eq(t, BonusEntry{Label: "weapon", Rank: "C", Value: 20}, result.Bonuses[1])
	must.Eq(t, BonusEntry{Label: "other", Value: 7}, result.Bonuses[2])
	must.EqOp(t, 4+30+20+7, result.FinalResult)
	// bonuses never count toward the raw dice total
	must.EqOp(t, 4, result.RawDiceTotal)
}

func TestSymbolicCounts(t *testing.T) {
	action := Action{
		Name: "flurry",
		Dice: []dice.Group{
			{Count: dice.MasteryLevel(), Sides: 6},
			{Count: dice.WeaponLevel(), Sides: 4},
		},
	}
	// mastery B resolves to 3 dice, weapon E resolves to 0 and is skipped
	result, err := newScripted(2, 3, 4).Evaluate(action, rank.TierE, rank.TierB, 0)
	must.NoError(t, err)
	must.Len(t, 1, result.DiceGroups)
	must.EqOp(t, "3d6", result.DiceGroups[0].Label)
	must.EqOp(t, 9, result.FinalResult)
}

func TestPerRankCountFallback(t *testing.T) {
	action := Action{
		Name: "barrage",
		Dice: []dice.Group{{
			Count: dice.PerRank(map[rank.Tier]int{rank.TierE: 1, rank.TierS: 3}),
			Sides: 10,
		}},
	}
	result, err := newScripted(7).Evaluate(action, rank.TierE, rank.TierB, 0)
	must.NoError(t, err)
	must.EqOp(t, "1d10", result.DiceGroups[0].Label)
	must.EqOp(t, 7, result.FinalResult)
}

func TestThresholdMultiplierMet(t *testing.T) {
	action := Action{
		Name: "crit",
		Dice: []dice.Group{{Count: dice.Literal(1), Sides: 100}},
		Modifiers: []Modifier{
			ThresholdMultiplier{
				Threshold: 85,
				Factor:    FactorByRank{rank.TierE: 1.5, rank.TierS: 2.0},
			},
		},
	}
	result, err := newScripted(90).Evaluate(action, rank.TierE, rank.TierS, 0)
	must.NoError(t, err)
	must.EqOp(t, 180, result.FinalResult)
	must.Len(t, 1, result.Modifiers)
	must.EqOp(t, KindCritical, result.Modifiers[0].Kind)
	must.EqOp(t, 2.0, result.Modifiers[0].Factor)
	must.EqOp(t, "(1d100[90]) × 2(critical) = 180", result.Expression)
}

func TestThresholdMultiplierNotMet(t *testing.T) {
	action := Action{
		Name: "crit",
		Dice: []dice.Group{{Count: dice.Literal(1), Sides: 100}},
		Modifiers: []Modifier{
			ThresholdMultiplier{Threshold: 85, Factor: Factor(2)},
		},
	}
	result, err := newScripted(40).Evaluate(action, rank.TierE, rank.TierE, 0)
	must.NoError(t, err)
	must.EqOp(t, 40, result.FinalResult)
	// the miss is still recorded
	must.Len(t, 1, result.Modifiers)
	must.StrContains(t, result.Modifiers[0].Description, "not met")
	must.EqOp(t, "1d100[40] = 40", result.Expression)
}

func TestSuccessBonus(t *testing.T) {
	action := Action{
		Name: "focus",
		Dice: []dice.Group{{Count: dice.Literal(1), Sides: 100}},
		Modifiers: []Modifier{
			SuccessBonus{
				Threshold: 50,
				Bonus:     BonusByRank{rank.TierE: 10, rank.TierA: 25},
			},
		},
	}
	result, err := newScripted(60).Evaluate(action, rank.TierE, rank.TierA, 0)
	must.NoError(t, err)
	must.EqOp(t, 85, result.FinalResult)
	must.EqOp(t, 25, result.Modifiers[0].Added)

	// B falls back to the E entry
	result, err = newScripted(60).Evaluate(action, rank.TierE, rank.TierB, 0)
	must.NoError(t, err)
	must.EqOp(t, 70, result.FinalResult)
}

func TestSuccessBonusFailure(t *testing.T) {
	failure := 5
	action := Action{
		Name: "focus",
		Dice: []dice.Group{{Count: dice.Literal(1), Sides: 100}},
		Modifiers: []Modifier{
			SuccessBonus{Threshold: 50, Bonus: Bonus(10), FailureBonus: &failure},
		},
	}
	result, err := newScripted(30).Evaluate(action, rank.TierE, rank.TierE, 0)
	must.NoError(t, err)
	must.EqOp(t, 35, result.FinalResult)
	must.EqOp(t, 5, result.Modifiers[0].Added)
}

func TestExplosionSingleTrigger(t *testing.T) {
	action := Action{
		Name: "volatile",
		Dice: []dice.Group{{Count: dice.Literal(1), Sides: 20}},
		Modifiers: []Modifier{
			Explosion{Threshold: 17, Extra: dice.Group{Count: dice.Literal(1), Sides: 20}},
		},
	}
	// the 20 triggers one extra die, the 5 does not cascade
	result, err := newScripted(20, 5).Evaluate(action, rank.TierE, rank.TierE, 0)
	must.NoError(t, err)
	must.EqOp(t, 25, result.FinalResult)
	must.EqOp(t, 25, result.RawDiceTotal)
	must.Eq(t, []int{5}, result.ExplosionRolls)
	must.Eq(t, []int{5}, result.Modifiers[0].ExtraRolls)
	must.EqOp(t, "1d20[20] + explosion[5] = 25", result.Expression)
}

func TestExplosionCascadeTerminates(t *testing.T) {
	eval := New(&scripted{faces: []int{1}})
	action := Action{
		Name: "runaway",
		Dice: []dice.Group{{Count: dice.Literal(1), Sides: 1}},
		Modifiers: []Modifier{
			Explosion{Threshold: 1, Extra: dice.Group{Count: dice.Literal(1), Sides: 1}},
		},
	}
	// every die meets the threshold; the round cap must stop the cascade
	result, err := eval.Evaluate(action, rank.TierE, rank.TierE, 0)
	must.NoError(t, err)
	must.Len(t, DefaultExplosionCap, result.ExplosionRolls)
	must.EqOp(t, 1+DefaultExplosionCap, result.RawDiceTotal)
}

func TestExplosionCapConfigurable(t *testing.T) {
	eval := New(&scripted{faces: []int{1}})
	eval.ExplosionCap = 3
	action := Action{
		Name: "runaway",
		Dice: []dice.Group{{Count: dice.Literal(1), Sides: 1}},
		Modifiers: []Modifier{
			Explosion{Threshold: 1, Extra: dice.Group{Count: dice.Literal(1), Sides: 1}},
		},
	}
	result, err := eval.Evaluate(action, rank.TierE, rank.TierE, 0)
	must.NoError(t, err)
	must.Len(t, 3, result.ExplosionRolls)
}

func TestDivisorFloors(t *testing.T) {
	action := Action{
		Name:      "split",
		Dice:      []dice.Group{{Count: dice.Literal(1), Sides: 20}},
		Modifiers: []Modifier{Divisor{Divisor: 2}},
	}
	result, err := newScripted(15).Evaluate(action, rank.TierE, rank.TierE, 0)
	must.NoError(t, err)
	must.EqOp(t, 7, result.FinalResult)
	must.EqOp(t, "(1d20[15]) ÷ 2(divisor) = 7", result.Expression)
}

func TestAoeAndConditionalAreNoOps(t *testing.T) {
	action := Action{
		Name: "blast",
		Dice: []dice.Group{{Count: dice.Literal(1), Sides: 20}},
		Modifiers: []Modifier{
			AoeDivisor{Divisor: 2},
			Conditional{Predicate: "target_burning", Value: 10},
		},
	}
	result, err := newScripted(15).Evaluate(action, rank.TierE, rank.TierE, 0)
	must.NoError(t, err)
	must.EqOp(t, 15, result.FinalResult)
	// both are recorded but change nothing
	must.Len(t, 2, result.Modifiers)
	must.EqOp(t, "1d20[15] = 15", result.Expression)
}

func TestBonusConversion(t *testing.T) {
	action := Action{
		Name: "overcharge",
		Dice: []dice.Group{{Count: dice.Literal(1), Sides: 20}},
		Modifiers: []Modifier{
			BonusConversion{Rate: 40, Dice: dice.Group{Count: dice.Literal(1), Sides: 8}},
		},
	}
	// 85 bonus converts to floor(85/40)=2 dice with remainder 5
	result, err := newScripted(10, 6, 3).Evaluate(action, rank.TierE, rank.TierE, 85)
	must.NoError(t, err)
	// 10 + 85 - 85 + (6+3) + 5
	must.EqOp(t, 24, result.FinalResult)
	must.EqOp(t, 10+6+3, result.RawDiceTotal)
	entry := result.Modifiers[0]
	must.EqOp(t, KindConversion, entry.Kind)
	must.Eq(t, []int{6, 3}, entry.ExtraRolls)
	must.EqOp(t, 6+3+5-85, entry.Added)
}

func TestBonusConversionBelowRate(t *testing.T) {
	action := Action{
		Name: "overcharge",
		Dice: []dice.Group{{Count: dice.Literal(1), Sides: 20}},
		Modifiers: []Modifier{
			BonusConversion{Rate: 40, Dice: dice.Group{Count: dice.Literal(1), Sides: 8}},
		},
	}
	result, err := newScripted(10).Evaluate(action, rank.TierE, rank.TierE, 25)
	must.NoError(t, err)
	must.EqOp(t, 35, result.FinalResult)
	must.Nil(t, result.Modifiers[0].ExtraRolls)
}

func TestFinalResultFloorsAtOne(t *testing.T) {
	penalty := -100
	action := Action{
		Name: "cursed",
		Dice: []dice.Group{{Count: dice.Literal(1), Sides: 4}},
		Modifiers: []Modifier{
			SuccessBonus{Threshold: 50, Bonus: Bonus(10), FailureBonus: &penalty},
		},
	}
	result, err := newScripted(2).Evaluate(action, rank.TierE, rank.TierE, 0)
	must.NoError(t, err)
	must.EqOp(t, 1, result.FinalResult)
}

func TestEvaluationIsDeterministic(t *testing.T) {
	action := Action{
		Name:    "full",
		Dice:    []dice.Group{{Count: dice.Literal(2), Sides: 20, KeepHighest: 1}},
		Bonuses: []BonusTag{BonusMastery},
		Modifiers: []Modifier{
			Explosion{Threshold: 17, Extra: dice.Group{Count: dice.Literal(1), Sides: 20}},
			ThresholdMultiplier{Threshold: 40, Factor: Factor(2)},
		},
	}
	faces := []int{12, 19, 4}
	first, err := newScripted(faces...).Evaluate(action, rank.TierB, rank.TierA, 5)
	must.NoError(t, err)
	second, err := newScripted(faces...).Evaluate(action, rank.TierB, rank.TierA, 5)
	must.NoError(t, err)
	must.Eq(t, first, second)
}

func TestInvalidInputs(t *testing.T) {
	action := Action{
		Name: "strike",
		Dice: []dice.Group{{Count: dice.Literal(1), Sides: 20}},
	}
	_, err := newScripted(1).Evaluate(action, rank.Tier(9), rank.TierE, 0)
	must.ErrorIs(t, err, ErrInvalidRank)

	_, err = newScripted(1).Evaluate(action, rank.TierE, rank.TierE, -1)
	must.ErrorIs(t, err, ErrNegativeBonus)
}

func TestActionValidate(t *testing.T) {
	must.ErrorIs(t, Action{}.Validate(), ErrBadDefinition)

	bad := Action{
		Name: "bad",
		Dice: []dice.Group{{Count: dice.Literal(1), Sides: 0}},
	}
	must.ErrorIs(t, bad.Validate(), ErrBadDefinition)

	bad = Action{
		Name:      "bad",
		Modifiers: []Modifier{Multiplier{Factor: 0}},
	}
	must.ErrorIs(t, bad.Validate(), ErrBadDefinition)

	bad = Action{
		Name:      "bad",
		Modifiers: []Modifier{ThresholdMultiplier{Threshold: 85, Factor: FactorByRank{rank.TierS: 2}}},
	}
	must.ErrorIs(t, bad.Validate(), ErrBadDefinition)

	good := Action{
		Name:    "good",
		Dice:    []dice.Group{{Count: dice.Literal(2), Sides: 6}},
		Bonuses: []BonusTag{BonusMastery, BonusWeapon},
		Modifiers: []Modifier{
			Multiplier{Factor: 1.5},
			Divisor{Divisor: 2},
		},
	}
	must.NoError(t, good.Validate())
}
