package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pokeproto/pokebattle-backend/internal/pokedex"
)

func tackle(t *testing.T) pokedex.Move {
	t.Helper()
	mv, ok := pokedex.MoveByName("Tackle")
	require.True(t, ok)
	return mv
}

func TestCalculateDamageCases(t *testing.T) {
	cases := []struct {
		name     string
		attacker pokedex.Pokemon
		defender pokedex.Pokemon
		move     pokedex.Move
		want     int
	}{
		{
			name:     "even physical matchup deals full power",
			attacker: pokedex.Pokemon{Attack: 49},
			defender: pokedex.Pokemon{Defense: 49, Type1: "Fire"},
			move:     pokedex.Move{Name: "Tackle", Type: "Normal", Power: 40, Category: pokedex.Physical},
			want:     40,
		},
		{
			name:     "special move uses sp_attack and sp_defense",
			attacker: pokedex.Pokemon{Attack: 1, SpAttack: 100},
			defender: pokedex.Pokemon{Defense: 1, SpDefense: 50, Type1: "Normal"},
			move:     pokedex.Move{Name: "Ember", Type: "Fire", Power: 40, Category: pokedex.Special},
			want:     80,
		},
		{
			name:     "type multiplier applied per defender type",
			attacker: pokedex.Pokemon{SpAttack: 50},
			defender: pokedex.Pokemon{
				SpDefense: 50, Type1: "Grass", Type2: "Poison",
				Effectiveness: map[string]float64{"Fire": 2},
			},
			move: pokedex.Move{Name: "Ember", Type: "Fire", Power: 40, Category: pokedex.Special},
			want: 160, // 40 * 2 * 2
		},
		{
			name:     "zero defense treated as one",
			attacker: pokedex.Pokemon{Attack: 10},
			defender: pokedex.Pokemon{Defense: 0, Type1: "Normal"},
			move:     pokedex.Move{Name: "Tackle", Type: "Normal", Power: 4, Category: pokedex.Physical},
			want:     40,
		},
		{
			name:     "damage floors at one",
			attacker: pokedex.Pokemon{Attack: 1},
			defender: pokedex.Pokemon{Defense: 200, Type1: "Normal", Effectiveness: map[string]float64{"Normal": 0.25}},
			move:     pokedex.Move{Name: "Tackle", Type: "Normal", Power: 10, Category: pokedex.Physical},
			want:     1,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := CalculateDamage(tc.attacker, tc.defender, tc.move)
			assert.Equal(t, tc.want, got)
			assert.GreaterOrEqual(t, got, 1)
		})
	}
}

func TestCalculateDamageIsPure(t *testing.T) {
	d, err := pokedex.Load("")
	require.NoError(t, err)

	atk, _ := d.Lookup("Bulbasaur")
	def, _ := d.Lookup("Charmander")
	mv := tackle(t)

	first := CalculateDamage(atk, def, mv)
	for i := 0; i < 100; i++ {
		assert.Equal(t, first, CalculateDamage(atk, def, mv))
	}
}

func TestCalculateDamageAlwaysAtLeastOne(t *testing.T) {
	d, err := pokedex.Load("")
	require.NoError(t, err)

	names := d.List(0)
	for _, an := range names {
		for _, dn := range names {
			atk, _ := d.Lookup(an)
			def, _ := d.Lookup(dn)
			for _, mn := range pokedex.MoveNames() {
				mv, _ := pokedex.MoveByName(mn)
				assert.GreaterOrEqual(t, CalculateDamage(atk, def, mv), 1,
					"%s -> %s with %s", an, dn, mn)
			}
		}
	}
}

func TestTypeMultiplierDefaults(t *testing.T) {
	def := pokedex.Pokemon{Type1: "Water"}
	assert.Equal(t, 1.0, TypeMultiplier("Dragon", def))
	assert.Equal(t, 1.0, TypeMultiplier("", def))
}
