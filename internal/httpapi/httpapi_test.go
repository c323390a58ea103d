package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/require"

	"github.com/pokeproto/pokebattle-backend/internal/engine"
	"github.com/pokeproto/pokebattle-backend/internal/session"
	"github.com/pokeproto/pokebattle-backend/internal/types"
)

// stubSession is a canned battle view for handler tests.
type stubSession struct {
	snap  session.Snapshot
	moves []string

	mu      sync.Mutex
	outbox  chan session.Event
	dropped bool
}

func (s *stubSession) Snapshot() session.Snapshot { return s.snap }
func (s *stubSession) AvailableMoves() []string   { return s.moves }

func (s *stubSession) Subscribe(id string, outbox chan session.Event) {
	s.mu.Lock()
	s.outbox = outbox
	s.mu.Unlock()
}

func (s *stubSession) Unsubscribe(id string) {
	s.mu.Lock()
	s.dropped = true
	s.mu.Unlock()
}

func (s *stubSession) emit(ev session.Event) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.outbox == nil {
		return false
	}
	s.outbox <- ev
	return true
}

func newStub() *stubSession {
	return &stubSession{
		snap: session.Snapshot{
			Role:          session.RoleHost,
			Name:          "Ash",
			HostPokemon:   "Pikachu",
			JoinerPokemon: "Charmander",
			State:         engine.BattleState{HostHP: 35, JoinerHP: 39, Turn: engine.TurnHost},
		},
		moves: []string{"Thunderbolt", "Tackle"},
	}
}

func TestHealthz(t *testing.T) {
	srv := httptest.NewServer(SetupRoutes(newStub()))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestStateReportsSnapshotAndMoves(t *testing.T) {
	srv := httptest.NewServer(SetupRoutes(newStub()))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/state")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, "application/json", resp.Header.Get("Content-Type"))

	var got types.StateResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
	require.Equal(t, "Pikachu", got.HostPokemon)
	require.Equal(t, 39, got.State.JoinerHP)
	require.Equal(t, []string{"Thunderbolt", "Tackle"}, got.Moves)
}

func TestWebsocketStreamsSnapshotThenEvents(t *testing.T) {
	stub := newStub()
	srv := httptest.NewServer(SetupRoutes(stub))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.Dial(ctx, url, nil)
	require.NoError(t, err)
	defer conn.Close(websocket.StatusNormalClosure, "done")

	var first types.ServerMessage
	_, data, err := conn.Read(ctx)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, &first))
	require.Equal(t, "StateSnapshot", first.Type)
	require.Equal(t, "Pikachu", first.State.HostPokemon)

	require.Eventually(t, func() bool {
		return stub.emit(session.Event{Type: session.EvtTurnChanged, Turn: "joiner"})
	}, 2*time.Second, 10*time.Millisecond, "handler never subscribed")

	var second types.ServerMessage
	_, data, err = conn.Read(ctx)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, &second))
	require.Equal(t, "Event", second.Type)
	require.Equal(t, session.EvtTurnChanged, second.Event.Type)
	require.Equal(t, "joiner", second.Event.Turn)
}
