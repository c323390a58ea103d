package types

import "github.com/pokeproto/pokebattle-backend/internal/session"

// ServerMessage frames everything pushed to a websocket observer.
type ServerMessage struct {
	Type  string            `json:"type"` // "StateSnapshot" | "Event" | "Error"
	State *session.Snapshot `json:"state,omitempty"`
	Event *session.Event    `json:"event,omitempty"`
	Error string            `json:"error,omitempty"`
}

// StateResponse is the /state payload: the battle snapshot plus the local
// combatant's usable moves.
type StateResponse struct {
	session.Snapshot
	Moves []string `json:"moves,omitempty"`
}
