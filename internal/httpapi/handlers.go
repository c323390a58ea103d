package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/pokeproto/pokebattle-backend/internal/types"
	"github.com/pokeproto/pokebattle-backend/internal/ws"
)

// State reports the session's current battle snapshot and move list.
func State(s ws.Session) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := types.StateResponse{
			Snapshot: s.Snapshot(),
			Moves:    s.AvailableMoves(),
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}
}

func Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}
