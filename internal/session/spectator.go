package session

import (
	"context"
	"fmt"
	"net"

	"go.uber.org/zap"

	"github.com/pokeproto/pokebattle-backend/internal/engine"
	"github.com/pokeproto/pokebattle-backend/internal/pokedex"
	"github.com/pokeproto/pokebattle-backend/internal/protocol"
	"github.com/pokeproto/pokebattle-backend/internal/transport"
)

// Spectator is a read-only mirror of a battle. It registers with the Host,
// receives the same envelopes the Joiner does, and never sends battle
// messages of its own.
type Spectator struct {
	core
	hostAddr  net.Addr
	hostMon   string
	joinerMon string
}

// NewSpectator creates a watching session for the battle hosted at hostAddr.
func NewSpectator(name string, hostAddr net.Addr, dex *pokedex.Dex, tr *transport.Transport, log *zap.Logger) *Spectator {
	s := &Spectator{core: newCore(name, RoleSpectator, dex, tr, log), hostAddr: hostAddr}
	s.remoteAddr = hostAddr
	return s
}

// Start runs the receive loop until ctx is cancelled.
func (s *Spectator) Start(ctx context.Context) {
	s.tr.Start(ctx, s.HandleMessage)
}

// Join registers with the Host. If a battle is already underway the Host
// replays both setup envelopes so the mirror starts from the live snapshot.
func (s *Spectator) Join() error {
	if err := s.tr.Send(protocol.Envelope{Type: protocol.MsgSpectatorRequest}, s.hostAddr, true); err != nil {
		return fmt.Errorf("join as spectator: %w", err)
	}
	return nil
}

// Snapshot reports the mirrored battle view.
func (s *Spectator) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{
		Role:          RoleSpectator,
		Name:          s.name,
		HostPokemon:   s.hostMon,
		JoinerPokemon: s.joinerMon,
		State:         s.state,
	}
}

// HandleMessage routes one inbound envelope into the mirror.
func (s *Spectator) HandleMessage(env protocol.Envelope, addr net.Addr) {
	switch env.Type {
	case protocol.MsgHandshakeResponse:
		s.handleHandshakeResponse(env, addr)
	case protocol.MsgBattleSetup:
		s.handleBattleSetup(env)
	case protocol.MsgTurnAssignment:
		s.handleTurnAssignment(env)
	case protocol.MsgAttackAnnounce:
		s.handleAttackAnnounce(env)
	case protocol.MsgCalculationReport:
		s.handleCalculationReport(env)
	case protocol.MsgGameOver:
		s.handleGameOverMsg(env)
	case protocol.MsgChat:
		s.handleChat(env)
	default:
		s.log.Debug("spectator ignoring message", zap.String("type", string(env.Type)))
	}
}

func (s *Spectator) handleHandshakeResponse(env protocol.Envelope, addr net.Addr) {
	s.mu.Lock()
	s.remoteAddr = addr
	if env.Seed != nil {
		s.seed = *env.Seed
	}
	s.mu.Unlock()
	s.log.Info("registered as spectator", zap.String("role", env.Role))
}

// handleBattleSetup assigns combatants to sides. Setups arrive without a
// side label; the Host relays the Joiner's setup and then sends its own, so
// the most recent setup is the Host's and any earlier one shifts to the
// Joiner slot. This holds for both the live exchange and the replay on a
// late join.
func (s *Spectator) handleBattleSetup(env protocol.Envelope) {
	hp := 0
	if env.Pokemon != nil {
		hp = env.Pokemon.HP
	}
	s.mu.Lock()
	if s.hostMon != "" {
		s.joinerMon = s.hostMon
		s.state.JoinerHP = s.state.HostHP
	}
	s.hostMon = env.PokemonName
	s.state.HostHP = hp
	s.mu.Unlock()

	s.log.Info("combatant revealed", zap.String("pokemon", env.PokemonName), zap.Int("hp", hp))
	s.publish(Event{Type: EvtSetup, Pokemon: env.PokemonName, HP: hp})
}

func (s *Spectator) handleTurnAssignment(env protocol.Envelope) {
	turn, ok := engine.ParseTurn(env.CurrentTurn)
	if !ok {
		s.log.Warn("bad turn assignment", zap.String("turn", env.CurrentTurn))
		return
	}
	s.mu.Lock()
	changed := s.state.SetTurn(turn)
	s.mu.Unlock()
	if changed {
		s.publish(Event{Type: EvtTurnChanged, Turn: string(turn)})
	}
}

func (s *Spectator) handleAttackAnnounce(env protocol.Envelope) {
	s.mu.Lock()
	attacker := s.hostMon
	if s.state.Turn == engine.TurnJoiner {
		attacker = s.joinerMon
	}
	s.mu.Unlock()
	s.log.Info("attack", zap.String("move", env.MoveName))
	s.publish(Event{Type: EvtAttack, Attacker: attacker, Move: env.MoveName})
}

// handleCalculationReport applies a validated damage report to the mirror.
// The attacker name picks which side's HP drops.
func (s *Spectator) handleCalculationReport(env protocol.Envelope) {
	if env.DefenderHP == nil {
		return
	}
	s.mu.Lock()
	if env.Attacker == s.hostMon {
		s.state.JoinerHP = *env.DefenderHP
	} else {
		s.state.HostHP = *env.DefenderHP
	}
	s.mu.Unlock()

	s.log.Info("damage report",
		zap.String("attacker", env.Attacker),
		zap.String("move", env.MoveUsed),
		zap.Int("damage", env.DamageDealt),
		zap.Int("defender_hp", *env.DefenderHP))
	s.publish(Event{Type: EvtDamage, Attacker: env.Attacker, Move: env.MoveUsed,
		Damage: env.DamageDealt, DefenderHP: env.DefenderHP, Status: env.StatusMessage})
}
