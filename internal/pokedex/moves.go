package pokedex

import (
	"sort"
	"strings"
)

// Category selects which attack/defense stat pair a move uses.
type Category string

const (
	Physical Category = "physical"
	Special  Category = "special"
)

// Move is an immutable move definition. The table must match exactly on both
// peers or damage recomputation diverges.
type Move struct {
	Name     string
	Type     string
	Power    int
	Category Category
}

var moves = map[string]Move{
	"Tackle":       {Name: "Tackle", Type: "Normal", Power: 40, Category: Physical},
	"Quick Attack": {Name: "Quick Attack", Type: "Normal", Power: 40, Category: Physical},
	"Scratch":      {Name: "Scratch", Type: "Normal", Power: 40, Category: Physical},
	"Ember":        {Name: "Ember", Type: "Fire", Power: 40, Category: Special},
	"Water Gun":    {Name: "Water Gun", Type: "Water", Power: 40, Category: Special},
	"Thunderbolt":  {Name: "Thunderbolt", Type: "Electric", Power: 90, Category: Special},
	"Vine Whip":    {Name: "Vine Whip", Type: "Grass", Power: 45, Category: Physical},
}

var commonMoves = []string{"Tackle", "Quick Attack", "Scratch"}

// MoveByName looks up a move definition.
func MoveByName(name string) (Move, bool) {
	m, ok := moves[name]
	return m, ok
}

// MoveNames returns every known move name, sorted.
func MoveNames() []string {
	out := make([]string, 0, len(moves))
	for name := range moves {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// generateMovesets picks up to max moves per combatant: same-type moves by
// descending power first, then the common normal moves, then anything else by
// power.
func generateMovesets(db map[string]Pokemon, order []string, max int) map[string][]string {
	byPower := func(names []string) {
		sort.SliceStable(names, func(i, j int) bool {
			return moves[names[i]].Power > moves[names[j]].Power
		})
	}

	all := MoveNames()
	byPower(all)

	out := make(map[string][]string, len(db))
	for _, name := range order {
		p := db[name]
		var preferred []string
		for _, m := range moves {
			if strings.EqualFold(m.Type, p.Type1) || (p.Type2 != "" && strings.EqualFold(m.Type, p.Type2)) {
				preferred = append(preferred, m.Name)
			}
		}
		byPower(preferred)

		picks := make([]string, 0, max)
		add := func(names []string) {
			for _, n := range names {
				if len(picks) >= max {
					return
				}
				if !contains(picks, n) {
					picks = append(picks, n)
				}
			}
		}
		add(preferred)
		add(commonMoves)
		add(all)
		out[name] = picks
	}
	return out
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
