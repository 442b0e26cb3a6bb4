package catalog

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/abennett/grimoire/pkg/dice"
	"github.com/abennett/grimoire/pkg/engine"
	"github.com/abennett/grimoire/pkg/rank"
)

var ErrBadSchema = errors.New("invalid catalog schema")

// Load reads a catalog definition file. Any schema or validation error
// fails the load; there is no partial catalog.
func Load(path string) (*Catalog, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open catalog: %w", err)
	}
	defer f.Close()
	return Parse(f)
}

func Parse(r io.Reader) (*Catalog, error) {
	var file fileSchema
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&file); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrBadSchema, err)
	}

	actions := make([]engine.Action, 0, len(file.Actions))
	for _, as := range file.Actions {
		action, err := as.toAction()
		if err != nil {
			return nil, err
		}
		actions = append(actions, action)
	}
	return New(actions)
}

type fileSchema struct {
	Actions []actionSchema `json:"actions"`
}

type actionSchema struct {
	Name      string           `json:"name"`
	Category  string           `json:"category"`
	Dice      []groupSchema    `json:"dice"`
	Bonuses   []string         `json:"bonuses"`
	Modifiers []modifierSchema `json:"modifiers"`
}

func (as actionSchema) toAction() (engine.Action, error) {
	action := engine.Action{
		Name:     as.Name,
		Category: as.Category,
	}
	for _, gs := range as.Dice {
		action.Dice = append(action.Dice, gs.toGroup())
	}
	for _, bonus := range as.Bonuses {
		switch bonus {
		case "mastery":
			action.Bonuses = append(action.Bonuses, engine.BonusMastery)
		case "weapon":
			action.Bonuses = append(action.Bonuses, engine.BonusWeapon)
		default:
			return engine.Action{}, fmt.Errorf("%w: %s: unknown bonus tag %q", ErrBadSchema, as.Name, bonus)
		}
	}
	for i, ms := range as.Modifiers {
		mod, err := ms.toModifier()
		if err != nil {
			return engine.Action{}, fmt.Errorf("%s: modifiers[%d]: %w", as.Name, i, err)
		}
		action.Modifiers = append(action.Modifiers, mod)
	}
	return action, nil
}

type groupSchema struct {
	Count       countSchema `json:"count"`
	Sides       int         `json:"sides"`
	KeepHighest int         `json:"keep_highest"`
	KeepLowest  int         `json:"keep_lowest"`
}

func (gs groupSchema) toGroup() dice.Group {
	return dice.Group{
		Count:       gs.Count.count,
		Sides:       gs.Sides,
		KeepHighest: gs.KeepHighest,
		KeepLowest:  gs.KeepLowest,
	}
}

// countSchema accepts a literal integer, the symbolic strings
// "mastery_level" and "weapon_level", or a per-rank object such as
// {"E": 1, "S": 3}.
type countSchema struct {
	count dice.Count
}

func (cs *countSchema) UnmarshalJSON(b []byte) error {
	var n int
	if err := json.Unmarshal(b, &n); err == nil {
		cs.count = dice.Literal(n)
		return nil
	}

	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		switch s {
		case "mastery_level":
			cs.count = dice.MasteryLevel()
		case "weapon_level":
			cs.count = dice.WeaponLevel()
		default:
			return fmt.Errorf("%w: unknown symbolic count %q", ErrBadSchema, s)
		}
		return nil
	}

	var m map[string]int
	if err := json.Unmarshal(b, &m); err != nil {
		return fmt.Errorf("%w: invalid dice count %s", ErrBadSchema, b)
	}
	table := make(map[rank.Tier]int, len(m))
	for key, v := range m {
		tier, err := rank.Parse(key)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrBadSchema, err)
		}
		table[tier] = v
	}
	cs.count = dice.PerRank(table)
	return nil
}

// rankFactor accepts a plain number or a per-rank object of factors.
type rankFactor struct {
	factor engine.FactorByRank
}

func (rf *rankFactor) UnmarshalJSON(b []byte) error {
	var f float64
	if err := json.Unmarshal(b, &f); err == nil {
		rf.factor = engine.Factor(f)
		return nil
	}
	var m map[string]float64
	if err := json.Unmarshal(b, &m); err != nil {
		return fmt.Errorf("%w: invalid factor %s", ErrBadSchema, b)
	}
	rf.factor = make(engine.FactorByRank, len(m))
	for key, v := range m {
		tier, err := rank.Parse(key)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrBadSchema, err)
		}
		rf.factor[tier] = v
	}
	return nil
}

// rankBonus accepts a plain integer or a per-rank object of bonuses.
type rankBonus struct {
	bonus engine.BonusByRank
}

func (rb *rankBonus) UnmarshalJSON(b []byte) error {
	var n int
	if err := json.Unmarshal(b, &n); err == nil {
		rb.bonus = engine.Bonus(n)
		return nil
	}
	var m map[string]int
	if err := json.Unmarshal(b, &m); err != nil {
		return fmt.Errorf("%w: invalid bonus %s", ErrBadSchema, b)
	}
	rb.bonus = make(engine.BonusByRank, len(m))
	for key, v := range m {
		tier, err := rank.Parse(key)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrBadSchema, err)
		}
		rb.bonus[tier] = v
	}
	return nil
}

type modifierSchema struct {
	Kind         string      `json:"kind"`
	Threshold    int         `json:"threshold"`
	Factor       rankFactor  `json:"factor"`
	Bonus        rankBonus   `json:"bonus"`
	FailureBonus *int        `json:"failure_bonus"`
	Chance       int         `json:"chance"`
	Count        countSchema `json:"count"`
	Sides        int         `json:"sides"`
	Divisor      int         `json:"divisor"`
	Rate         int         `json:"rate"`
	Predicate    string      `json:"predicate"`
	Value        int         `json:"value"`
}

func (ms modifierSchema) toModifier() (engine.Modifier, error) {
	switch ms.Kind {
	case engine.KindMultiplier:
		factor, err := scalarFactor(ms.Factor)
		if err != nil {
			return nil, err
		}
		return engine.Multiplier{Factor: factor}, nil
	case engine.KindCritical:
		return engine.ThresholdMultiplier{
			Threshold: ms.Threshold,
			Factor:    ms.Factor.factor,
		}, nil
	case engine.KindSuccess:
		return engine.SuccessBonus{
			Threshold:    ms.Threshold,
			Bonus:        ms.Bonus.bonus,
			FailureBonus: ms.FailureBonus,
		}, nil
	case engine.KindExplosion:
		return engine.Explosion{
			Threshold: ms.Threshold,
			Chance:    ms.Chance,
			Extra:     dice.Group{Count: dice.Literal(1), Sides: ms.Sides},
		}, nil
	case engine.KindDivisor:
		return engine.Divisor{Divisor: ms.Divisor}, nil
	case engine.KindAoeDivisor:
		return engine.AoeDivisor{Divisor: ms.Divisor}, nil
	case engine.KindConversion:
		count := ms.Count.count
		if count.Kind != dice.CountLiteral || count.N == 0 {
			count = dice.Literal(1)
		}
		return engine.BonusConversion{
			Rate: ms.Rate,
			Dice: dice.Group{Count: count, Sides: ms.Sides},
		}, nil
	case engine.KindConditional:
		return engine.Conditional{Predicate: ms.Predicate, Value: ms.Value}, nil
	default:
		return nil, fmt.Errorf("%w: unknown modifier kind %q", ErrBadSchema, ms.Kind)
	}
}

func scalarFactor(rf rankFactor) (float64, error) {
	factor, ok := rf.factor[rank.TierE]
	if !ok || len(rf.factor) != 1 {
		return 0, fmt.Errorf("%w: multiplier factor must be a plain number", ErrBadSchema)
	}
	return factor, nil
}
