package dice

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"sort"

	"github.com/abennett/grimoire/pkg/rank"
)

var (
	ErrInvalidSides = errors.New("dice sides must be positive")
	ErrKeepConflict = errors.New("keepHighest and keepLowest are mutually exclusive")
	ErrKeepTooLarge = errors.New("keep value exceeds dice count")
	ErrMissingEntry = errors.New("per-rank table is missing the E entry")
	ErrUnknownCount = errors.New("unknown symbolic count kind")
)

// Source yields single die faces. Roll must return a uniformly
// distributed integer in [1, sides]. Implementations used concurrently
// must be safe for concurrent use.
type Source interface {
	Roll(sides int) int
}

type randSource struct{}

func (randSource) Roll(sides int) int {
	return rand.IntN(sides) + 1
}

// NewSource returns the default die source backed by math/rand/v2,
// which is safe to share across goroutines.
func NewSource() Source {
	return randSource{}
}

type CountKind int

const (
	CountLiteral CountKind = iota
	CountMasteryLevel
	CountWeaponLevel
	CountPerRank
)

// Count is a dice count that may be literal or resolved against the
// active rank context at evaluation time.
type Count struct {
	Kind    CountKind         `msgpack:"kind" json:"kind"`
	N       int               `msgpack:"n,omitempty" json:"n,omitempty"`
	PerRank map[rank.Tier]int `msgpack:"per_rank,omitempty" json:"per_rank,omitempty"`
}

func Literal(n int) Count {
	return Count{Kind: CountLiteral, N: n}
}

func MasteryLevel() Count {
	return Count{Kind: CountMasteryLevel}
}

func WeaponLevel() Count {
	return Count{Kind: CountWeaponLevel}
}

func PerRank(table map[rank.Tier]int) Count {
	return Count{Kind: CountPerRank, PerRank: table}
}

// Resolve returns the concrete dice count for the given rank context.
// Per-rank tables are keyed by the mastery rank and fall back to their
// E entry when the specific rank is absent.
func (c Count) Resolve(weapon, mastery rank.Tier) (int, error) {
	switch c.Kind {
	case CountLiteral:
		return c.N, nil
	case CountMasteryLevel:
		return mastery.Level(), nil
	case CountWeaponLevel:
		return weapon.Level(), nil
	case CountPerRank:
		if n, ok := c.PerRank[mastery]; ok {
			return n, nil
		}
		n, ok := c.PerRank[rank.TierE]
		if !ok {
			return 0, ErrMissingEntry
		}
		return n, nil
	default:
		return 0, fmt.Errorf("%w: %d", ErrUnknownCount, c.Kind)
	}
}

func (c Count) Validate() error {
	switch c.Kind {
	case CountLiteral, CountMasteryLevel, CountWeaponLevel:
		return nil
	case CountPerRank:
		if _, ok := c.PerRank[rank.TierE]; !ok {
			return ErrMissingEntry
		}
		return nil
	default:
		return fmt.Errorf("%w: %d", ErrUnknownCount, c.Kind)
	}
}

// Group is a single dice group in an action definition: how many dice
// of how many sides, optionally trimmed to the best or worst subset.
type Group struct {
	Count       Count `msgpack:"count" json:"count"`
	Sides       int   `msgpack:"sides" json:"sides"`
	KeepHighest int   `msgpack:"keep_highest,omitempty" json:"keep_highest,omitempty"`
	KeepLowest  int   `msgpack:"keep_lowest,omitempty" json:"keep_lowest,omitempty"`
}

func (g Group) Validate() error {
	if g.Sides < 1 {
		return fmt.Errorf("%w: %d", ErrInvalidSides, g.Sides)
	}
	if g.KeepHighest > 0 && g.KeepLowest > 0 {
		return ErrKeepConflict
	}
	if err := g.Count.Validate(); err != nil {
		return err
	}
	if g.Count.Kind == CountLiteral {
		keep := max(g.KeepHighest, g.KeepLowest)
		if keep > g.Count.N {
			return fmt.Errorf("%w: keep %d of %d", ErrKeepTooLarge, keep, g.Count.N)
		}
	}
	return nil
}

// Label renders the group in dice notation for a resolved count, e.g.
// "3d6" or "2d20kh1".
func (g Group) Label(count int) string {
	label := fmt.Sprintf("%dd%d", count, g.Sides)
	if g.KeepHighest > 0 {
		label += fmt.Sprintf("kh%d", g.KeepHighest)
	}
	if g.KeepLowest > 0 {
		label += fmt.Sprintf("kl%d", g.KeepLowest)
	}
	return label
}

// GroupRoll holds one rolled group: every raw face, the kept subset in
// original roll order, and the kept sum.
type GroupRoll struct {
	Rolls []int
	Kept  []int
	Sum   int
}

// RollN rolls count dice from src and applies the group's keep rules.
// The kept subset is exactly the KeepHighest largest (or KeepLowest
// smallest) faces, ties broken by original roll order.
func (g Group) RollN(src Source, count int) GroupRoll {
	rolls := make([]int, count)
	for i := range rolls {
		rolls[i] = src.Roll(g.Sides)
	}

	kept := rolls
	switch {
	case g.KeepHighest > 0 && g.KeepHighest < count:
		kept = keepExtremes(rolls, g.KeepHighest, func(a, b int) bool { return a > b })
	case g.KeepLowest > 0 && g.KeepLowest < count:
		kept = keepExtremes(rolls, g.KeepLowest, func(a, b int) bool { return a < b })
	}

	var sum int
	for _, face := range kept {
		sum += face
	}
	return GroupRoll{Rolls: rolls, Kept: kept, Sum: sum}
}

func keepExtremes(rolls []int, k int, better func(a, b int) bool) []int {
	idx := make([]int, len(rolls))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool {
		return better(rolls[idx[a]], rolls[idx[b]])
	})
	picked := idx[:k]
	sort.Ints(picked)
	kept := make([]int, k)
	for i, j := range picked {
		kept[i] = rolls[j]
	}
	return kept
}
