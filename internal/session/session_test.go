package session

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/pokeproto/pokebattle-backend/internal/engine"
	"github.com/pokeproto/pokebattle-backend/internal/pokedex"
	"github.com/pokeproto/pokebattle-backend/internal/transport"
)

const waitFor = 3 * time.Second

var testCfg = transport.Config{
	Timeout:    100 * time.Millisecond,
	Retries:    3,
	BufferSize: 65535,
}

func newTransport(t *testing.T, name string) *transport.Transport {
	t.Helper()
	tr, err := transport.Listen(name, "127.0.0.1:0", testCfg, zaptest.NewLogger(t))
	require.NoError(t, err)
	t.Cleanup(func() { tr.Close() })
	return tr
}

// newBattle brings a Host and Joiner through the full handshake and setup
// exchange and returns them battle-ready with the Host holding the turn.
func newBattle(t *testing.T, hostMon, joinMon string) (*Host, *Joiner) {
	t.Helper()
	log := zaptest.NewLogger(t)
	dex, err := pokedex.Load("")
	require.NoError(t, err)

	htr := newTransport(t, "Ash")
	jtr := newTransport(t, "Gary")

	host, err := NewHost("Ash", hostMon, dex, htr, log)
	require.NoError(t, err)
	joiner, err := NewJoiner("Gary", joinMon, htr.LocalAddr(), dex, jtr, log)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	host.Start(ctx)
	joiner.Start(ctx)

	require.NoError(t, joiner.Handshake())
	require.Eventually(t, func() bool {
		h, j := host.Snapshot(), joiner.Snapshot()
		return h.JoinerPokemon == joinMon && j.HostPokemon == hostMon && j.State.Turn == engine.TurnHost
	}, waitFor, 10*time.Millisecond, "setup exchange did not complete")

	return host, joiner
}

// recvEvent drains ch until an event of the wanted type arrives.
func recvEvent(t *testing.T, ch <-chan Event, want EventType) Event {
	t.Helper()
	deadline := time.After(waitFor)
	for {
		select {
		case ev, ok := <-ch:
			require.True(t, ok, "event channel closed waiting for %s", want)
			if ev.Type == want {
				return ev
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %s event", want)
		}
	}
}

func TestSetupExchange(t *testing.T) {
	host, joiner := newBattle(t, "Snorlax", "Blastoise")

	h := host.Snapshot()
	require.Equal(t, "Snorlax", h.HostPokemon)
	require.Equal(t, "Blastoise", h.JoinerPokemon)
	require.Equal(t, 160, h.State.HostHP)
	require.Equal(t, 79, h.State.JoinerHP)
	require.Equal(t, engine.TurnHost, h.State.Turn)

	j := joiner.Snapshot()
	require.Equal(t, h.State, j.State)
	require.Equal(t, host.Seed(), joiner.Seed(), "handshake must agree on the seed")
}

func TestTurnAlternation(t *testing.T) {
	host, joiner := newBattle(t, "Snorlax", "Blastoise")

	// Snorlax Tackle vs Blastoise: round(110/100*40) = 44.
	require.NoError(t, host.Attack("Tackle"))
	require.Eventually(t, func() bool {
		h, j := host.Snapshot(), joiner.Snapshot()
		return h.State.JoinerHP == 35 && j.State.JoinerHP == 35 &&
			h.State.Turn == engine.TurnJoiner && j.State.Turn == engine.TurnJoiner
	}, waitFor, 10*time.Millisecond, "host attack did not resolve and hand over the turn")

	// Blastoise Water Gun vs Snorlax: round(85/110*40*1.0) = 31.
	require.NoError(t, joiner.Attack("Water Gun"))
	require.Eventually(t, func() bool {
		h, j := host.Snapshot(), joiner.Snapshot()
		return h.State.HostHP == 129 && j.State.HostHP == 129 &&
			h.State.Turn == engine.TurnHost && j.State.Turn == engine.TurnHost
	}, waitFor, 10*time.Millisecond, "joiner attack did not resolve and return the turn")
}

func TestAttackOutOfTurnIsRejectedLocally(t *testing.T) {
	host, joiner := newBattle(t, "Snorlax", "Blastoise")

	require.ErrorIs(t, joiner.Attack("Tackle"), engine.ErrNotYourTurn)
	require.NoError(t, host.Attack("Tackle"))
	require.Eventually(t, func() bool {
		return host.Snapshot().State.Turn == engine.TurnJoiner
	}, waitFor, 10*time.Millisecond)
	require.ErrorIs(t, host.Attack("Tackle"), engine.ErrNotYourTurn)
}

func TestAttackUnknownMove(t *testing.T) {
	host, _ := newBattle(t, "Snorlax", "Blastoise")
	require.ErrorIs(t, host.Attack("Splash"), engine.ErrUnknownMove)
}

func TestKnockoutEndsBattleOnBothSides(t *testing.T) {
	// Pikachu Thunderbolt vs Charmander: round(50/50*90*1.0) = 90, a
	// one-hit knockout.
	host, joiner := newBattle(t, "Pikachu", "Charmander")

	require.NoError(t, host.Attack("Thunderbolt"))
	require.Eventually(t, func() bool {
		h, j := host.Snapshot(), joiner.Snapshot()
		return h.State.GameOver && j.State.GameOver
	}, waitFor, 10*time.Millisecond, "knockout did not end the battle on both sides")

	h, j := host.Snapshot(), joiner.Snapshot()
	require.Equal(t, "Pikachu", h.State.Winner)
	require.Equal(t, "Pikachu", j.State.Winner)
	require.Equal(t, 0, h.State.JoinerHP)
	require.Equal(t, 0, j.State.JoinerHP)

	// The token is frozen after game over.
	require.ErrorIs(t, host.Attack("Thunderbolt"), engine.ErrBattleOver)
	require.ErrorIs(t, joiner.Attack("Water Gun"), engine.ErrBattleOver)
}

func TestChatNeverTouchesBattleState(t *testing.T) {
	host, joiner := newBattle(t, "Snorlax", "Blastoise")

	events := make(chan Event, 64)
	host.Subscribe("chat-test", events)
	defer host.Unsubscribe("chat-test")

	before := host.Snapshot()
	require.NoError(t, joiner.SendChatText("gl hf"))

	ev := recvEvent(t, events, EvtChat)
	require.Equal(t, "Gary", ev.Sender)
	require.Equal(t, "gl hf", ev.Text)
	require.Equal(t, before, host.Snapshot(), "chat must not change battle state")
}

func TestChatSticker(t *testing.T) {
	host, joiner := newBattle(t, "Snorlax", "Blastoise")

	events := make(chan Event, 64)
	host.Subscribe("sticker-test", events)
	defer host.Unsubscribe("sticker-test")

	require.NoError(t, joiner.SendChatSticker([]byte{0x89, 'P', 'N', 'G'}))
	ev := recvEvent(t, events, EvtChat)
	require.True(t, ev.Sticker)
	require.Equal(t, "Gary", ev.Sender)
}

func TestSpectatorLateJoinReplay(t *testing.T) {
	host, _ := newBattle(t, "Snorlax", "Blastoise")

	str := newTransport(t, "Brock")
	dex, err := pokedex.Load("")
	require.NoError(t, err)
	spec := NewSpectator("Brock", host.LocalAddr(), dex, str, zaptest.NewLogger(t))

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	spec.Start(ctx)

	require.NoError(t, spec.Join())
	require.Eventually(t, func() bool {
		s := spec.Snapshot()
		return s.HostPokemon == "Snorlax" && s.JoinerPokemon == "Blastoise"
	}, waitFor, 10*time.Millisecond, "replay did not rebuild the spectator mirror")

	s := spec.Snapshot()
	require.Equal(t, 160, s.State.HostHP)
	require.Equal(t, 79, s.State.JoinerHP)
}

func TestSpectatorMirrorsBattle(t *testing.T) {
	host, _ := newBattle(t, "Snorlax", "Blastoise")

	str := newTransport(t, "Brock")
	dex, err := pokedex.Load("")
	require.NoError(t, err)
	spec := NewSpectator("Brock", host.LocalAddr(), dex, str, zaptest.NewLogger(t))

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	spec.Start(ctx)
	require.NoError(t, spec.Join())
	require.Eventually(t, func() bool {
		return spec.Snapshot().JoinerPokemon == "Blastoise"
	}, waitFor, 10*time.Millisecond)

	events := make(chan Event, 64)
	spec.Subscribe("mirror-test", events)
	defer spec.Unsubscribe("mirror-test")

	require.NoError(t, host.Attack("Tackle"))
	ev := recvEvent(t, events, EvtDamage)
	require.Equal(t, "Snorlax", ev.Attacker)
	require.Equal(t, "Tackle", ev.Move)
	require.Equal(t, 44, ev.Damage)

	require.Eventually(t, func() bool {
		s := spec.Snapshot()
		return s.State.JoinerHP == 35 && s.State.Turn == engine.TurnJoiner
	}, waitFor, 10*time.Millisecond, "spectator mirror did not track the exchange")
}

func TestSlowSubscriberIsDropped(t *testing.T) {
	dex, err := pokedex.Load("")
	require.NoError(t, err)
	host, err := NewHost("Ash", "Pikachu", dex, newTransport(t, "Ash"), zaptest.NewLogger(t))
	require.NoError(t, err)

	slow := make(chan Event) // unbuffered and never read
	keep := make(chan Event, 4)
	host.Subscribe("slow", slow)
	host.Subscribe("keep", keep)

	host.publish(Event{Type: EvtTurnChanged, Turn: "host"})

	_, open := <-slow
	require.False(t, open, "a full subscriber channel must be closed, never waited on")

	host.subsMu.Lock()
	_, stillThere := host.subs["slow"]
	host.subsMu.Unlock()
	require.False(t, stillThere, "a dropped subscriber must be removed")

	ev := <-keep
	require.Equal(t, EvtTurnChanged, ev.Type, "healthy subscribers keep receiving")
}

func TestAvailableMoves(t *testing.T) {
	host, _ := newBattle(t, "Pikachu", "Charmander")
	moves := host.AvailableMoves()
	require.NotEmpty(t, moves)
	require.LessOrEqual(t, len(moves), 4)
	require.Equal(t, "Thunderbolt", moves[0], "same-type moves come first, strongest first")
}
