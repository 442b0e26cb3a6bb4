package rank

import (
	"testing"

	"github.com/shoenig/test/must"
)

func TestParse(t *testing.T) {
	tier, err := Parse("S")
	must.NoError(t, err)
	must.EqOp(t, TierS, tier)

	tier, err = Parse("c")
	must.NoError(t, err)
	must.EqOp(t, TierC, tier)

	_, err = Parse("F")
	must.ErrorIs(t, err, ErrInvalidTier)
}

func TestOrderingAndTables(t *testing.T) {
	tiers := Tiers()
	must.Len(t, 6, tiers)
	for i, tier := range tiers {
		must.EqOp(t, i, tier.Level())
		must.EqOp(t, i*10, tier.Bonus())
		if i > 0 {
			must.True(t, tiers[i-1] < tier)
		}
	}
	must.EqOp(t, "E", TierE.String())
	must.EqOp(t, "S", TierS.String())
	must.False(t, Tier(6).Valid())
}
