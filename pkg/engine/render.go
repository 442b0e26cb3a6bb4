package engine

import (
	"fmt"
	"strconv"
	"strings"
)

// renderExpression reconstructs the arithmetic of a result as a display
// string: dice groups, an aggregated explosion block, bonuses, then the
// remaining modifier entries. Explosion entries are skipped in the
// final step since the aggregated block already covers them.
func renderExpression(r Result) string {
	var parts []string
	for _, g := range r.DiceGroups {
		parts = append(parts, renderGroup(g))
	}

	expr := strings.Join(parts, " + ")
	if expr == "" {
		expr = "0"
	}

	if len(r.ExplosionRolls) > 0 {
		expr += " + explosion" + renderFaces(r.ExplosionRolls)
	}

	for _, b := range r.Bonuses {
		label := b.Label
		if b.Rank != "" {
			label = b.Label + " " + b.Rank
		}
		expr += fmt.Sprintf(" + %d(%s)", b.Value, label)
	}

	for _, m := range r.Modifiers {
		if m.Kind == KindExplosion {
			continue
		}
		switch {
		case m.Factor > 0 && m.Factor != 1:
			expr = fmt.Sprintf("(%s) × %s(%s)", expr, formatFactor(m.Factor), m.Kind)
		case m.Divisor > 1:
			expr = fmt.Sprintf("(%s) ÷ %d(%s)", expr, m.Divisor, m.Kind)
		case m.Added > 0:
			expr += fmt.Sprintf(" + %d(%s)", m.Added, m.Kind)
		case m.Added < 0:
			expr += fmt.Sprintf(" - %d(%s)", -m.Added, m.Kind)
		}
	}

	return expr + " = " + strconv.Itoa(r.FinalResult)
}

func renderGroup(g GroupResult) string {
	if g.Kept == nil {
		return g.Label + renderFaces(g.Rolls)
	}
	return fmt.Sprintf("%s[%s → %s]", g.Label, joinFaces(g.Rolls), joinFaces(g.Kept))
}

func renderFaces(faces []int) string {
	return "[" + joinFaces(faces) + "]"
}

func joinFaces(faces []int) string {
	strs := make([]string, len(faces))
	for i, face := range faces {
		strs[i] = strconv.Itoa(face)
	}
	return strings.Join(strs, " ")
}
