package engine

import "errors"

var (
	ErrNotYourTurn = errors.New("not your turn")
	ErrBattleOver  = errors.New("battle already over")
	ErrUnknownMove = errors.New("unknown move")
	ErrNoOpponent  = errors.New("no opponent connected")
)

// Turn is the single token determining which side may legally attack next.
type Turn string

const (
	TurnNone   Turn = ""
	TurnHost   Turn = "host"
	TurnJoiner Turn = "joiner"
)

// ParseTurn maps a wire value onto a Turn.
func ParseTurn(s string) (Turn, bool) {
	switch s {
	case string(TurnHost):
		return TurnHost, true
	case string(TurnJoiner):
		return TurnJoiner, true
	default:
		return TurnNone, false
	}
}

// BattleState is one session's record of the exchange. It is owned by its
// session and mutated only under the session's lock.
type BattleState struct {
	HostHP   int
	JoinerHP int
	Turn     Turn
	GameOver bool
	Winner   string
	Reason   string
}

// SetTurn moves the turn token. Once the battle is over the token is frozen
// and SetTurn reports false.
func (s *BattleState) SetTurn(t Turn) bool {
	if s.GameOver {
		return false
	}
	s.Turn = t
	return true
}

// Finish latches the game-over flag. Only the first call records a winner;
// later calls report false so the match has exactly one effective outcome.
func (s *BattleState) Finish(winner, reason string) bool {
	if s.GameOver {
		return false
	}
	s.GameOver = true
	s.Winner = winner
	s.Reason = reason
	return true
}
