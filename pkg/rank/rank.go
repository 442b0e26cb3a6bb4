package rank

import (
	"errors"
	"fmt"
	"strings"
)

var ErrInvalidTier = errors.New("invalid rank tier")

// Tier is one of the six ordered skill grades, E through S. The zero
// value is TierE, the lowest grade.
type Tier int

const (
	TierE Tier = iota
	TierD
	TierC
	TierB
	TierA
	TierS
)

var tierNames = [...]string{"E", "D", "C", "B", "A", "S"}

// Tiers lists every tier in ascending order.
func Tiers() []Tier {
	return []Tier{TierE, TierD, TierC, TierB, TierA, TierS}
}

func Parse(s string) (Tier, error) {
	for i, name := range tierNames {
		if strings.EqualFold(s, name) {
			return Tier(i), nil
		}
	}
	return TierE, fmt.Errorf("%w: %q", ErrInvalidTier, s)
}

func (t Tier) Valid() bool {
	return t >= TierE && t <= TierS
}

func (t Tier) String() string {
	if !t.Valid() {
		return fmt.Sprintf("Tier(%d)", int(t))
	}
	return tierNames[t]
}

// Bonus is the flat rank bonus granted by the tier: 0 for E up to 50
// for S, in steps of 10.
func (t Tier) Bonus() int {
	return int(t) * 10
}

// Level is the tier's position in the ladder, 0 for E through 5 for S.
// Symbolic dice counts scale off this value.
func (t Tier) Level() int {
	return int(t)
}
