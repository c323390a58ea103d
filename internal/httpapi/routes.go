package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/pokeproto/pokebattle-backend/internal/ws"
)

// SetupRoutes builds the read-only observer surface for one session process.
func SetupRoutes(s ws.Session) http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", Healthz)
	r.Get("/state", State(s))
	r.Get("/ws", ws.Handler(s))
	return r
}
