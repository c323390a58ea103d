package session

import (
	"context"
	"fmt"
	"math/rand"
	"net"

	"go.uber.org/zap"

	"github.com/pokeproto/pokebattle-backend/internal/engine"
	"github.com/pokeproto/pokebattle-backend/internal/pokedex"
	"github.com/pokeproto/pokebattle-backend/internal/protocol"
	"github.com/pokeproto/pokebattle-backend/internal/transport"
)

// Host runs one side of the battle and is the sole authority for advancing
// the turn token. It also fans battle envelopes out to registered spectators.
type Host struct {
	core
	spectators []net.Addr // guarded by mu
}

// NewHost creates a hosting session fighting with the named combatant. The
// Host always takes the first turn.
func NewHost(name, pokemonName string, dex *pokedex.Dex, tr *transport.Transport, log *zap.Logger) (*Host, error) {
	p, ok := dex.Lookup(pokemonName)
	if !ok {
		return nil, fmt.Errorf("pokemon %q not found in database", pokemonName)
	}
	h := &Host{core: newCore(name, RoleHost, dex, tr, log)}
	h.local = p
	h.state = engine.BattleState{HostHP: p.HP, Turn: engine.TurnHost}
	h.seed = rand.Int63n(1_000_000)
	return h, nil
}

// Start runs the receive loop until ctx is cancelled.
func (h *Host) Start(ctx context.Context) {
	h.tr.Start(ctx, h.HandleMessage)
}

// HandleMessage routes one inbound envelope. It runs on a fresh goroutine
// per datagram; state access is serialized by the session lock.
func (h *Host) HandleMessage(env protocol.Envelope, addr net.Addr) {
	switch env.Type {
	case protocol.MsgHandshakeRequest:
		h.handleHandshakeRequest(addr)
	case protocol.MsgSpectatorRequest:
		h.handleSpectatorRequest(addr)
	case protocol.MsgBattleSetup:
		h.handleBattleSetup(env, addr)
	case protocol.MsgAttackAnnounce:
		h.handleAttackAnnounce(env, addr)
	case protocol.MsgDefenseAnnounce:
		h.handleDefenseAnnounce(addr)
	case protocol.MsgCalculationReport:
		h.handleCalculationReport(env, addr)
	case protocol.MsgCalculationConfirm:
		h.handleCalculationConfirm()
	case protocol.MsgResolutionRequest:
		h.handleResolutionRequest(env, addr)
	case protocol.MsgTurnAssignment:
		// The Host is the turn arbiter; it takes no turn orders from peers.
		h.log.Debug("ignoring inbound turn assignment", zap.String("turn", env.CurrentTurn))
	case protocol.MsgGameOver:
		h.handleGameOverMsg(env)
	case protocol.MsgChat:
		h.handleChat(env)
	default:
		h.log.Warn("unhandled message type", zap.String("type", string(env.Type)))
	}
}

func (h *Host) handleHandshakeRequest(addr net.Addr) {
	h.mu.Lock()
	h.remoteAddr = addr
	seed := h.seed
	h.mu.Unlock()

	h.log.Info("handshake request", zap.String("from", addr.String()))
	h.sendTo(protocol.Envelope{Type: protocol.MsgHandshakeResponse, Seed: &seed}, addr)
}

func (h *Host) handleSpectatorRequest(addr net.Addr) {
	h.mu.Lock()
	h.spectators = append(h.spectators, addr)
	seed := h.seed
	var replay []protocol.Envelope
	if h.hasRemote {
		// Bring the spectator to the current snapshot: joiner first, then host.
		replay = append(replay,
			setupEnvelope(h.remote.Name, h.remote, h.boosts),
			setupEnvelope(h.local.Name, h.local, defaultBoosts),
		)
	}
	h.mu.Unlock()

	h.log.Info("spectator joined", zap.String("addr", addr.String()))
	h.sendTo(protocol.Envelope{Type: protocol.MsgHandshakeResponse, Seed: &seed, Role: string(RoleSpectator)}, addr)
	for _, env := range replay {
		h.sendTo(env, addr)
	}
}

func (h *Host) handleBattleSetup(env protocol.Envelope, addr net.Addr) {
	h.mu.Lock()
	h.remoteAddr = addr
	h.remote = h.resolveCombatant(env.PokemonName, env.Pokemon)
	h.hasRemote = true
	h.state.JoinerHP = h.remote.HP
	if env.StatBoosts != nil {
		h.boosts = *env.StatBoosts
	}
	mySetup := setupEnvelope(h.local.Name, h.local, defaultBoosts)
	turnMsg := protocol.Envelope{Type: protocol.MsgTurnAssignment, CurrentTurn: protocol.TurnHost}
	h.mu.Unlock()

	h.log.Info("joiner setup received",
		zap.String("pokemon", env.PokemonName), zap.Int("hp", env.Pokemon.HP))
	h.publish(Event{Type: EvtSetup, Pokemon: env.PokemonName, HP: env.Pokemon.HP})

	h.sendTo(mySetup, addr)
	h.sendTo(turnMsg, addr)
	h.fanOut(mySetup)
	h.fanOut(turnMsg)
	h.publish(Event{Type: EvtTurnChanged, Turn: protocol.TurnHost})
}

// Attack announces a move to the Joiner. Rejected locally unless the Host
// holds the turn token.
func (h *Host) Attack(moveName string) error {
	if _, ok := pokedex.MoveByName(moveName); !ok {
		return engine.ErrUnknownMove
	}
	h.mu.Lock()
	switch {
	case h.state.GameOver:
		h.mu.Unlock()
		return engine.ErrBattleOver
	case h.remoteAddr == nil:
		h.mu.Unlock()
		return engine.ErrNoOpponent
	case h.state.Turn != engine.TurnHost:
		h.mu.Unlock()
		return engine.ErrNotYourTurn
	}
	h.lastMove = moveName
	addr := h.remoteAddr
	attacker := h.local.Name
	h.mu.Unlock()

	announce := protocol.Envelope{Type: protocol.MsgAttackAnnounce, MoveName: moveName}
	h.publish(Event{Type: EvtAttack, Attacker: attacker, Move: moveName})
	if err := h.tr.Send(announce, addr, true); err != nil {
		return fmt.Errorf("announce attack: %w", err)
	}
	h.fanOut(announce)
	return nil
}

// handleAttackAnnounce is the Host-as-defender path: validate the turn,
// acknowledge the attack, independently compute and apply damage, and report
// the result back.
func (h *Host) handleAttackAnnounce(env protocol.Envelope, addr net.Addr) {
	mv, ok := pokedex.MoveByName(env.MoveName)

	h.mu.Lock()
	if h.state.GameOver {
		h.mu.Unlock()
		return
	}
	if h.state.Turn != engine.TurnJoiner {
		turn := h.state.Turn
		h.mu.Unlock()
		h.log.Warn("joiner attacked out of turn",
			zap.String("move", env.MoveName), zap.String("current_turn", string(turn)))
		return
	}
	if !ok || !h.hasRemote {
		h.mu.Unlock()
		h.log.Warn("missing data to calculate damage as defender", zap.String("move", env.MoveName))
		return
	}
	damage := engine.CalculateDamage(h.remote, h.local, mv)
	h.local.HP = max(0, h.local.HP-damage)
	h.state.HostHP = h.local.HP
	report := reportEnvelope(h.remote.Name, mv.Name, damage, h.local.HP,
		fmt.Sprintf("%s was hit by %s for %d dmg", h.local.Name, mv.Name, damage))
	attacker := h.remote.Name
	h.mu.Unlock()

	h.publish(Event{Type: EvtAttack, Attacker: attacker, Move: mv.Name})
	h.sendTo(protocol.Envelope{Type: protocol.MsgDefenseAnnounce}, addr)
	h.fanOut(protocol.Envelope{Type: protocol.MsgAttackAnnounce, MoveName: env.MoveName})
	h.sendTo(report, addr)
	h.fanOut(report)
	h.publish(Event{Type: EvtDamage, Attacker: attacker, Move: mv.Name,
		Damage: damage, DefenderHP: report.DefenderHP, Status: report.StatusMessage})
	h.checkGameOver()
}

// handleDefenseAnnounce is the Host-as-attacker path: the Joiner acknowledged
// the announced move, so compute the hit against the local copy of the
// Joiner's combatant and report it.
func (h *Host) handleDefenseAnnounce(addr net.Addr) {
	h.mu.Lock()
	mvName := h.lastMove
	if mvName == "" || !h.hasRemote {
		h.mu.Unlock()
		h.log.Warn("defense announce without a pending attack")
		return
	}
	mv, ok := pokedex.MoveByName(mvName)
	if !ok {
		h.mu.Unlock()
		h.log.Warn("missing move data to compute attack report", zap.String("move", mvName))
		return
	}
	damage := engine.CalculateDamage(h.local, h.remote, mv)
	h.remote.HP = max(0, h.remote.HP-damage)
	h.state.JoinerHP = h.remote.HP
	report := reportEnvelope(h.local.Name, mvName, damage, h.remote.HP,
		fmt.Sprintf("%s used %s!", h.local.Name, mvName))
	attacker := h.local.Name
	h.mu.Unlock()

	h.sendTo(report, addr)
	h.fanOut(report)
	h.publish(Event{Type: EvtDamage, Attacker: attacker, Move: mvName,
		Damage: damage, DefenderHP: report.DefenderHP, Status: report.StatusMessage})
	h.checkGameOver()
}

// handleCalculationReport cross-validates a peer's damage report by
// recomputing it. On agreement the reported HP value is authoritative; on
// disagreement the Host asks for resolution with its own expected value.
func (h *Host) handleCalculationReport(env protocol.Envelope, addr net.Addr) {
	mv, ok := pokedex.MoveByName(env.MoveUsed)
	if !ok {
		h.log.Warn("cannot validate calculation report", zap.String("move", env.MoveUsed))
		return
	}

	h.mu.Lock()
	if !h.hasRemote {
		h.mu.Unlock()
		h.log.Warn("calculation report before setup")
		return
	}
	hostAttacked := env.Attacker == h.local.Name
	var expected int
	if hostAttacked {
		expected = engine.CalculateDamage(h.local, h.remote, mv)
	} else {
		expected = engine.CalculateDamage(h.remote, h.local, mv)
	}
	if expected != env.DamageDealt {
		h.mu.Unlock()
		h.log.Warn("damage mismatch",
			zap.Int("expected", expected), zap.Int("reported", env.DamageDealt))
		h.sendTo(protocol.Envelope{
			Type:        protocol.MsgResolutionRequest,
			Attacker:    env.Attacker,
			MoveUsed:    env.MoveUsed,
			DamageDealt: expected,
		}, addr)
		return
	}

	// The defender's computation is authoritative for the final number.
	defHP := *env.DefenderHP
	if hostAttacked {
		h.remote.HP = defHP
		h.state.JoinerHP = defHP
	} else {
		h.local.HP = defHP
		h.state.HostHP = defHP
	}
	h.mu.Unlock()

	h.publish(Event{Type: EvtDamage, Attacker: env.Attacker, Move: env.MoveUsed,
		Damage: env.DamageDealt, DefenderHP: env.DefenderHP, Status: env.StatusMessage})
	h.fanOut(reportEnvelope(env.Attacker, env.MoveUsed, env.DamageDealt, defHP, env.StatusMessage))
	h.sendTo(protocol.Envelope{Type: protocol.MsgCalculationConfirm}, addr)
	h.checkGameOver()

	// Turn handoff: a validated report with the Joiner as attacker means the
	// Joiner's exchange is complete, so the turn flips back to the Host. The
	// Host's own attack flips on CALCULATION_CONFIRM instead.
	if !hostAttacked {
		h.assignTurn(engine.TurnHost)
	}
}

func (h *Host) handleCalculationConfirm() {
	h.mu.Lock()
	flip := !h.state.GameOver && h.state.Turn == engine.TurnHost
	h.mu.Unlock()
	if flip {
		h.assignTurn(engine.TurnJoiner)
	}
}

// handleResolutionRequest accepts the requester's claimed damage value
// without re-validation and hands the turn over.
func (h *Host) handleResolutionRequest(env protocol.Envelope, addr net.Addr) {
	h.log.Warn("resolution request accepted",
		zap.String("attacker", env.Attacker),
		zap.String("move", env.MoveUsed),
		zap.Int("claimed_damage", env.DamageDealt))
	h.sendTo(protocol.Envelope{Type: protocol.MsgCalculationConfirm}, addr)
	h.assignTurn(engine.TurnJoiner)
}

// assignTurn moves the token and rebroadcasts the assignment to the Joiner
// and every spectator. A finished battle freezes the token.
func (h *Host) assignTurn(turn engine.Turn) {
	h.mu.Lock()
	if !h.state.SetTurn(turn) {
		h.mu.Unlock()
		return
	}
	addr := h.remoteAddr
	h.mu.Unlock()

	msg := protocol.Envelope{Type: protocol.MsgTurnAssignment, CurrentTurn: string(turn)}
	if addr != nil {
		h.sendTo(msg, addr)
	}
	h.fanOut(msg)
	h.publish(Event{Type: EvtTurnChanged, Turn: string(turn)})
}

// checkGameOver declares the match over as soon as either combatant's local
// HP reaches zero, broadcasting exactly once to the Joiner and spectators.
func (h *Host) checkGameOver() {
	h.mu.Lock()
	if h.state.GameOver {
		h.mu.Unlock()
		return
	}
	var winner, reason string
	switch {
	case h.local.HP <= 0:
		winner, reason = h.remote.Name, fmt.Sprintf("%s fainted!", h.local.Name)
	case h.hasRemote && h.remote.HP <= 0:
		winner, reason = h.local.Name, fmt.Sprintf("%s fainted!", h.remote.Name)
	default:
		h.mu.Unlock()
		return
	}
	h.state.Finish(winner, reason)
	addr := h.remoteAddr
	h.mu.Unlock()

	h.log.Info("game over", zap.String("winner", winner), zap.String("reason", reason))
	h.publish(Event{Type: EvtGameOver, Winner: winner, Reason: reason})
	msg := protocol.Envelope{Type: protocol.MsgGameOver, Winner: winner, Reason: reason}
	if addr != nil {
		h.sendTo(msg, addr)
	}
	h.fanOut(msg)
}

// fanOut unicasts env to every registered spectator.
func (h *Host) fanOut(env protocol.Envelope) {
	h.mu.Lock()
	specs := make([]net.Addr, len(h.spectators))
	copy(specs, h.spectators)
	h.mu.Unlock()
	for _, addr := range specs {
		h.sendTo(env, addr)
	}
}
