package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseTurn(t *testing.T) {
	turn, ok := ParseTurn("host")
	assert.True(t, ok)
	assert.Equal(t, TurnHost, turn)

	turn, ok = ParseTurn("joiner")
	assert.True(t, ok)
	assert.Equal(t, TurnJoiner, turn)

	_, ok = ParseTurn("referee")
	assert.False(t, ok)
}

func TestFinishIsLatched(t *testing.T) {
	var s BattleState
	assert.True(t, s.Finish("Bulbasaur", "Charmander fainted!"))
	assert.False(t, s.Finish("Charmander", "late announcement"))
	assert.Equal(t, "Bulbasaur", s.Winner)
	assert.Equal(t, "Charmander fainted!", s.Reason)
}

func TestTurnFrozenAfterGameOver(t *testing.T) {
	s := BattleState{Turn: TurnHost}
	s.Finish("Bulbasaur", "Charmander fainted!")

	assert.False(t, s.SetTurn(TurnJoiner))
	assert.Equal(t, TurnHost, s.Turn)
}
