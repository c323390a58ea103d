// Package session implements the battle synchronization state machines: a
// Host acting as turn arbiter, a Joiner challenger, and read-only Spectators.
// Each session owns an independent, equally-authoritative replica of the
// battle, reconciled with its peer only through the damage-validation
// exchange. There is no shared state between roles.
package session

import (
	"encoding/base64"
	"net"
	"sync"

	"go.uber.org/zap"

	"github.com/pokeproto/pokebattle-backend/internal/engine"
	"github.com/pokeproto/pokebattle-backend/internal/pokedex"
	"github.com/pokeproto/pokebattle-backend/internal/protocol"
	"github.com/pokeproto/pokebattle-backend/internal/transport"
)

// Role is fixed at session creation and never changes.
type Role string

const (
	RoleHost      Role = "host"
	RoleJoiner    Role = "joiner"
	RoleSpectator Role = "spectator"
)

var defaultBoosts = protocol.StatBoosts{SpecialAttackUses: 5, SpecialDefenseUses: 5}

// Snapshot is a point-in-time view of a session's battle replica.
type Snapshot struct {
	Role          Role               `json:"role"`
	Name          string             `json:"name"`
	HostPokemon   string             `json:"host_pokemon,omitempty"`
	JoinerPokemon string             `json:"joiner_pokemon,omitempty"`
	State         engine.BattleState `json:"state"`
}

// core carries everything common to the three roles.
type core struct {
	name string
	role Role
	log  *zap.Logger
	dex  *pokedex.Dex
	tr   *transport.Transport

	// mu serializes battle-state mutation; handler goroutines run
	// concurrently per inbound datagram.
	mu         sync.Mutex
	state      engine.BattleState
	local      pokedex.Pokemon
	remote     pokedex.Pokemon
	hasRemote  bool
	remoteAddr net.Addr
	lastMove   string
	boosts     protocol.StatBoosts
	seed       int64

	subsMu sync.Mutex
	subs   map[string]chan Event
}

func newCore(name string, role Role, dex *pokedex.Dex, tr *transport.Transport, log *zap.Logger) core {
	return core{
		name: name,
		role: role,
		dex:  dex,
		tr:   tr,
		log:  log.Named(string(role)),
		subs: make(map[string]chan Event),
	}
}

// Name returns the session's peer identity string.
func (c *core) Name() string { return c.name }

// Role returns the fixed session role.
func (c *core) Role() Role { return c.role }

// Seed returns the shared random seed exchanged during the handshake, or 0
// before the handshake completes.
func (c *core) Seed() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.seed
}

// Close shuts down the underlying transport.
func (c *core) Close() error { return c.tr.Close() }

// LocalAddr returns the bound socket address.
func (c *core) LocalAddr() net.Addr { return c.tr.LocalAddr() }

// Snapshot returns the session's current view of the battle.
func (c *core) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := Snapshot{Role: c.role, Name: c.name, State: c.state}
	switch c.role {
	case RoleHost:
		s.HostPokemon, s.JoinerPokemon = c.local.Name, c.remote.Name
	case RoleJoiner:
		s.HostPokemon, s.JoinerPokemon = c.remote.Name, c.local.Name
	}
	return s
}

// AvailableMoves returns the bounded move list for the session's combatant.
func (c *core) AvailableMoves() []string {
	c.mu.Lock()
	name := c.local.Name
	c.mu.Unlock()
	if name == "" {
		return nil
	}
	return c.dex.Moveset(name)
}

func (c *core) peerAddr() net.Addr {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.remoteAddr
}

// SendChatText sends a plain-text chat line to the connected remote. Chat is
// a side-channel: it never touches battle state.
func (c *core) SendChatText(text string) error {
	addr := c.peerAddr()
	if addr == nil {
		return engine.ErrNoOpponent
	}
	return c.tr.Send(protocol.Envelope{
		Type:        protocol.MsgChat,
		SenderName:  c.name,
		ContentType: protocol.ContentText,
		MessageText: text,
	}, addr, true)
}

// SendChatSticker sends a binary attachment, base64-encoded, capped at the
// protocol sticker limit.
func (c *core) SendChatSticker(raw []byte) error {
	if len(raw) > protocol.MaxStickerBytes {
		return protocol.ErrStickerTooBig
	}
	addr := c.peerAddr()
	if addr == nil {
		return engine.ErrNoOpponent
	}
	return c.tr.Send(protocol.Envelope{
		Type:        protocol.MsgChat,
		SenderName:  c.name,
		ContentType: protocol.ContentSticker,
		StickerData: base64.StdEncoding.EncodeToString(raw),
	}, addr, true)
}

// resolveCombatant prefers the locally loaded database row for a named
// combatant so both sides use identical stat tables, falling back to the
// transmitted snapshot for names the database does not know.
func (c *core) resolveCombatant(name string, data *protocol.CombatantData) pokedex.Pokemon {
	if p, ok := c.dex.Lookup(name); ok {
		return p
	}
	c.log.Info("combatant not in local database, using transmitted stats",
		zap.String("pokemon", name))
	p := pokedex.Pokemon{Name: name, Effectiveness: map[string]float64{}}
	if data != nil {
		p.Type1 = data.Type1
		p.Type2 = data.Type2
		p.HP = data.HP
		p.Attack = data.Attack
		p.Defense = data.Defense
		p.SpAttack = data.SpAttack
		p.SpDefense = data.SpDefense
		p.Speed = data.Speed
	}
	return p
}

func combatantData(p pokedex.Pokemon) *protocol.CombatantData {
	return &protocol.CombatantData{
		Type1:     p.Type1,
		Type2:     p.Type2,
		HP:        p.HP,
		Attack:    p.Attack,
		Defense:   p.Defense,
		SpAttack:  p.SpAttack,
		SpDefense: p.SpDefense,
		Speed:     p.Speed,
	}
}

func setupEnvelope(name string, p pokedex.Pokemon, boosts protocol.StatBoosts) protocol.Envelope {
	return protocol.Envelope{
		Type:              protocol.MsgBattleSetup,
		CommunicationMode: "P2P",
		PokemonName:       name,
		Pokemon:           combatantData(p),
		StatBoosts:        &boosts,
	}
}

func reportEnvelope(attacker, move string, damage, defenderHP int, status string) protocol.Envelope {
	hp := defenderHP
	return protocol.Envelope{
		Type:          protocol.MsgCalculationReport,
		Attacker:      attacker,
		MoveUsed:      move,
		DamageDealt:   damage,
		DefenderHP:    &hp,
		StatusMessage: status,
	}
}

// handleChat publishes an inbound chat envelope to subscribers.
func (c *core) handleChat(env protocol.Envelope) {
	ev := Event{Type: EvtChat, Sender: env.SenderName}
	switch env.ContentType {
	case protocol.ContentText:
		ev.Text = env.MessageText
		c.log.Info("chat", zap.String("sender", env.SenderName), zap.String("text", env.MessageText))
	case protocol.ContentSticker:
		ev.Sticker = true
		c.log.Info("chat sticker", zap.String("sender", env.SenderName))
	}
	c.publish(ev)
}

// handleGameOverMsg applies a peer's game-over announcement. A session that
// already declared the match over ignores it, so exactly one outcome sticks.
func (c *core) handleGameOverMsg(env protocol.Envelope) {
	c.mu.Lock()
	first := c.state.Finish(env.Winner, env.Reason)
	c.mu.Unlock()
	if !first {
		return
	}
	c.log.Info("game over", zap.String("winner", env.Winner), zap.String("reason", env.Reason))
	c.publish(Event{Type: EvtGameOver, Winner: env.Winner, Reason: env.Reason})
}

// sendTo sends one envelope reliably, logging instead of failing the session
// when retries are exhausted.
func (c *core) sendTo(env protocol.Envelope, addr net.Addr) {
	if err := c.tr.Send(env, addr, true); err != nil {
		c.log.Warn("send failed",
			zap.String("type", string(env.Type)),
			zap.String("to", addr.String()),
			zap.Error(err))
	}
}
