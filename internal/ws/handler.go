package ws

import (
	"context"
	"encoding/json"
	"math/rand"
	"net/http"
	"time"

	"github.com/coder/websocket"

	"github.com/pokeproto/pokebattle-backend/internal/session"
	"github.com/pokeproto/pokebattle-backend/internal/types"
)

// Session is the slice of a battle session the observer surface needs.
type Session interface {
	Snapshot() session.Snapshot
	AvailableMoves() []string
	Subscribe(id string, outbox chan session.Event)
	Unsubscribe(id string)
}

// Handler upgrades /ws and streams session events to the observer. The
// stream opens with a full state snapshot so a client never needs a separate
// /state round trip to seed its view.
func Handler(s Session) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			// In dev ONLY, you can loosen origin checks:
			// OriginPatterns: []string{"http://localhost:*", "http://127.0.0.1:*"},
		})
		if err != nil {
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "bye")

		snap := s.Snapshot()
		if err := write(r.Context(), conn, types.ServerMessage{Type: "StateSnapshot", State: &snap}); err != nil {
			return
		}

		out := make(chan session.Event, 8)
		clientID := randID(6)

		s.Subscribe(clientID, out)
		defer s.Unsubscribe(clientID)

		// Writer goroutine
		writeCtx, writeCancel := context.WithCancel(r.Context())
		defer writeCancel()
		go func() {
			for ev := range out {
				ev := ev
				_ = write(writeCtx, conn, types.ServerMessage{Type: "Event", Event: &ev})
			}
		}()

		// Reader loop; observers send nothing, so reads only detect close.
		for {
			_, _, err := conn.Read(r.Context())
			if err != nil {
				switch websocket.CloseStatus(err) {
				case websocket.StatusNormalClosure, websocket.StatusGoingAway:
					return
				}
				return
			}
		}
	}
}

func write(ctx context.Context, conn *websocket.Conn, msg types.ServerMessage) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	wctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	return conn.Write(wctx, websocket.MessageText, payload)
}

func randID(length int) string {
	const charset = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	b := make([]byte, length)
	for i := range b {
		b[i] = charset[rand.Intn(len(charset))]
	}
	return string(b)
}
