package catalog

import (
	"github.com/abennett/grimoire/pkg/dice"
	"github.com/abennett/grimoire/pkg/engine"
	"github.com/abennett/grimoire/pkg/rank"
)

// Default returns the built-in action table. The defaults double as a
// reference for the file schema; servers usually load their own table.
func Default() *Catalog {
	c, err := New(defaultActions())
	if err != nil {
		panic("built-in catalog is invalid: " + err.Error())
	}
	return c
}

func defaultActions() []engine.Action {
	failurePenalty := -10
	return []engine.Action{
		{
			Name:     "strike",
			Category: "physical",
			Dice:     []dice.Group{{Count: dice.Literal(1), Sides: 20}},
			Bonuses:  []engine.BonusTag{engine.BonusWeapon},
		},
		{
			Name:     "power_strike",
			Category: "physical",
			Dice:     []dice.Group{{Count: dice.Literal(2), Sides: 20, KeepHighest: 1}},
			Bonuses:  []engine.BonusTag{engine.BonusMastery, engine.BonusWeapon},
			Modifiers: []engine.Modifier{
				engine.ThresholdMultiplier{
					Threshold: 85,
					Factor: engine.FactorByRank{
						rank.TierE: 1.5,
						rank.TierA: 1.75,
						rank.TierS: 2.0,
					},
				},
			},
		},
		{
			Name:     "flurry",
			Category: "physical",
			Dice: []dice.Group{
				{Count: dice.Literal(1), Sides: 20},
				{Count: dice.MasteryLevel(), Sides: 6},
			},
			Bonuses: []engine.BonusTag{engine.BonusMastery},
			Modifiers: []engine.Modifier{
				engine.Explosion{
					Threshold: 18,
					Extra:     dice.Group{Count: dice.Literal(1), Sides: 6},
				},
			},
		},
		{
			Name:     "clumsy_swing",
			Category: "physical",
			Dice:     []dice.Group{{Count: dice.Literal(2), Sides: 20, KeepLowest: 1}},
			Bonuses:  []engine.BonusTag{engine.BonusWeapon},
		},
		{
			Name:     "fireball",
			Category: "magic",
			Dice: []dice.Group{{
				Count: dice.PerRank(map[rank.Tier]int{
					rank.TierE: 2,
					rank.TierB: 3,
					rank.TierA: 4,
					rank.TierS: 6,
				}),
				Sides: 10,
			}},
			Bonuses: []engine.BonusTag{engine.BonusMastery},
			Modifiers: []engine.Modifier{
				engine.AoeDivisor{Divisor: 2},
			},
		},
		{
			Name:     "arcane_burst",
			Category: "magic",
			Dice: []dice.Group{
				{Count: dice.Literal(1), Sides: 100},
				{Count: dice.WeaponLevel(), Sides: 8},
			},
			Bonuses: []engine.BonusTag{engine.BonusMastery, engine.BonusWeapon},
			Modifiers: []engine.Modifier{
				engine.SuccessBonus{
					Threshold: 120,
					Bonus: engine.BonusByRank{
						rank.TierE: 10,
						rank.TierA: 25,
						rank.TierS: 40,
					},
					FailureBonus: &failurePenalty,
				},
				engine.Conditional{Predicate: "target_marked", Value: 15},
			},
		},
		{
			Name:     "overcharge",
			Category: "magic",
			Dice:     []dice.Group{{Count: dice.Literal(1), Sides: 20}},
			Bonuses:  []engine.BonusTag{engine.BonusMastery},
			Modifiers: []engine.Modifier{
				engine.BonusConversion{
					Rate: 40,
					Dice: dice.Group{Count: dice.Literal(1), Sides: 8},
				},
			},
		},
		{
			Name:     "guard_break",
			Category: "physical",
			Dice:     []dice.Group{{Count: dice.Literal(3), Sides: 8}},
			Bonuses:  []engine.BonusTag{engine.BonusWeapon},
			Modifiers: []engine.Modifier{
				engine.Multiplier{Factor: 1.5},
				engine.Divisor{Divisor: 2},
			},
		},
	}
}
