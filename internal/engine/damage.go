// Package engine holds the pure combat rules: the damage formula both peers
// must compute identically, and the per-session battle state record.
package engine

import (
	"math"

	"github.com/pokeproto/pokebattle-backend/internal/pokedex"
)

// CalculateDamage maps (attacker, defender, move) to an integer damage amount.
// Physical moves use attack/defense, special moves sp_attack/sp_defense. The
// raw value is scaled by the defender's type effectiveness, rounded to
// nearest, and floored at 1. Pure and deterministic: this is the basis of the
// cross-validation between peers.
func CalculateDamage(attacker, defender pokedex.Pokemon, move pokedex.Move) int {
	atk, def := attacker.Attack, defender.Defense
	if move.Category == pokedex.Special {
		atk, def = attacker.SpAttack, defender.SpDefense
	}
	if def < 1 {
		def = 1
	}
	raw := float64(atk) / float64(def) * float64(move.Power) * TypeMultiplier(move.Type, defender)
	dmg := int(math.Round(raw))
	if dmg < 1 {
		dmg = 1
	}
	return dmg
}

// TypeMultiplier is the product, over each of the defender's one or two
// types, of the defender's effectiveness-table entry for the move's type.
// Missing entries count as 1.0.
func TypeMultiplier(moveType string, defender pokedex.Pokemon) float64 {
	if moveType == "" {
		return 1
	}
	mult := 1.0
	for _, dt := range []string{defender.Type1, defender.Type2} {
		if dt == "" {
			continue
		}
		v, ok := defender.Effectiveness[moveType]
		if !ok {
			v = 1
		}
		mult *= v
	}
	return mult
}
