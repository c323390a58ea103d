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

// Joiner connects to a Host, mirrors the turn token the Host assigns, and
// otherwise runs the same attack and validation exchanges as the Host.
type Joiner struct {
	core
	hostAddr net.Addr
}

// NewJoiner creates a joining session fighting with the named combatant.
func NewJoiner(name, pokemonName string, hostAddr net.Addr, dex *pokedex.Dex, tr *transport.Transport, log *zap.Logger) (*Joiner, error) {
	p, ok := dex.Lookup(pokemonName)
	if !ok {
		return nil, fmt.Errorf("pokemon %q not found in database", pokemonName)
	}
	j := &Joiner{core: newCore(name, RoleJoiner, dex, tr, log), hostAddr: hostAddr}
	j.local = p
	j.state = engine.BattleState{JoinerHP: p.HP, Turn: engine.TurnNone}
	j.remoteAddr = hostAddr
	return j, nil
}

// Start runs the receive loop until ctx is cancelled.
func (j *Joiner) Start(ctx context.Context) {
	j.tr.Start(ctx, j.HandleMessage)
}

// Handshake opens the battle with the Host. The setup exchange continues
// from the Host's response.
func (j *Joiner) Handshake() error {
	if err := j.tr.Send(protocol.Envelope{Type: protocol.MsgHandshakeRequest}, j.hostAddr, true); err != nil {
		return fmt.Errorf("handshake: %w", err)
	}
	return nil
}

// HandleMessage routes one inbound envelope.
func (j *Joiner) HandleMessage(env protocol.Envelope, addr net.Addr) {
	switch env.Type {
	case protocol.MsgHandshakeResponse:
		j.handleHandshakeResponse(env, addr)
	case protocol.MsgBattleSetup:
		j.handleBattleSetup(env)
	case protocol.MsgTurnAssignment:
		j.handleTurnAssignment(env)
	case protocol.MsgAttackAnnounce:
		j.handleAttackAnnounce(env, addr)
	case protocol.MsgDefenseAnnounce:
		j.handleDefenseAnnounce(addr)
	case protocol.MsgCalculationReport:
		j.handleCalculationReport(env, addr)
	case protocol.MsgCalculationConfirm:
		j.log.Debug("calculation confirmed by host")
	case protocol.MsgResolutionRequest:
		j.handleResolutionRequest(env, addr)
	case protocol.MsgGameOver:
		j.handleGameOverMsg(env)
	case protocol.MsgChat:
		j.handleChat(env)
	default:
		j.log.Warn("unhandled message type", zap.String("type", string(env.Type)))
	}
}

func (j *Joiner) handleHandshakeResponse(env protocol.Envelope, addr net.Addr) {
	j.mu.Lock()
	j.remoteAddr = addr
	if env.Seed != nil {
		j.seed = *env.Seed
	}
	setup := setupEnvelope(j.local.Name, j.local, defaultBoosts)
	j.mu.Unlock()

	j.log.Info("handshake accepted", zap.Int64("seed", j.Seed()))
	j.sendTo(setup, addr)
}

func (j *Joiner) handleBattleSetup(env protocol.Envelope) {
	j.mu.Lock()
	j.remote = j.resolveCombatant(env.PokemonName, env.Pokemon)
	j.hasRemote = true
	j.state.HostHP = j.remote.HP
	j.mu.Unlock()

	j.log.Info("host setup received",
		zap.String("pokemon", env.PokemonName), zap.Int("hp", env.Pokemon.HP))
	j.publish(Event{Type: EvtSetup, Pokemon: env.PokemonName, HP: env.Pokemon.HP})
}

// handleTurnAssignment mirrors the Host's token. The Joiner never decides
// turns on its own.
func (j *Joiner) handleTurnAssignment(env protocol.Envelope) {
	turn, ok := engine.ParseTurn(env.CurrentTurn)
	if !ok {
		j.log.Warn("bad turn assignment", zap.String("turn", env.CurrentTurn))
		return
	}
	j.mu.Lock()
	changed := j.state.SetTurn(turn)
	j.mu.Unlock()
	if changed {
		j.log.Info("turn assigned", zap.String("turn", string(turn)))
		j.publish(Event{Type: EvtTurnChanged, Turn: string(turn)})
	}
}

// Attack announces a move to the Host. Rejected locally unless the Joiner
// holds the turn token.
func (j *Joiner) Attack(moveName string) error {
	if _, ok := pokedex.MoveByName(moveName); !ok {
		return engine.ErrUnknownMove
	}
	j.mu.Lock()
	switch {
	case j.state.GameOver:
		j.mu.Unlock()
		return engine.ErrBattleOver
	case !j.hasRemote:
		j.mu.Unlock()
		return engine.ErrNoOpponent
	case j.state.Turn != engine.TurnJoiner:
		j.mu.Unlock()
		return engine.ErrNotYourTurn
	}
	j.lastMove = moveName
	addr := j.remoteAddr
	attacker := j.local.Name
	j.mu.Unlock()

	j.publish(Event{Type: EvtAttack, Attacker: attacker, Move: moveName})
	if err := j.tr.Send(protocol.Envelope{Type: protocol.MsgAttackAnnounce, MoveName: moveName}, addr, true); err != nil {
		return fmt.Errorf("announce attack: %w", err)
	}
	return nil
}

// handleAttackAnnounce is the Joiner-as-defender path.
func (j *Joiner) handleAttackAnnounce(env protocol.Envelope, addr net.Addr) {
	mv, ok := pokedex.MoveByName(env.MoveName)

	j.mu.Lock()
	if j.state.GameOver {
		j.mu.Unlock()
		return
	}
	if j.state.Turn != engine.TurnHost {
		turn := j.state.Turn
		j.mu.Unlock()
		j.log.Warn("host attacked out of turn",
			zap.String("move", env.MoveName), zap.String("current_turn", string(turn)))
		return
	}
	if !ok || !j.hasRemote {
		j.mu.Unlock()
		j.log.Warn("missing data to calculate damage as defender", zap.String("move", env.MoveName))
		return
	}
	damage := engine.CalculateDamage(j.remote, j.local, mv)
	j.local.HP = max(0, j.local.HP-damage)
	j.state.JoinerHP = j.local.HP
	report := reportEnvelope(j.remote.Name, mv.Name, damage, j.local.HP,
		fmt.Sprintf("%s was hit by %s for %d dmg", j.local.Name, mv.Name, damage))
	attacker := j.remote.Name
	j.mu.Unlock()

	j.publish(Event{Type: EvtAttack, Attacker: attacker, Move: mv.Name})
	j.sendTo(protocol.Envelope{Type: protocol.MsgDefenseAnnounce}, addr)
	j.sendTo(report, addr)
	j.publish(Event{Type: EvtDamage, Attacker: attacker, Move: mv.Name,
		Damage: damage, DefenderHP: report.DefenderHP, Status: report.StatusMessage})
	j.checkGameOver()
}

// handleDefenseAnnounce is the Joiner-as-attacker path.
func (j *Joiner) handleDefenseAnnounce(addr net.Addr) {
	j.mu.Lock()
	mvName := j.lastMove
	if mvName == "" || !j.hasRemote {
		j.mu.Unlock()
		j.log.Warn("defense announce without a pending attack")
		return
	}
	mv, ok := pokedex.MoveByName(mvName)
	if !ok {
		j.mu.Unlock()
		j.log.Warn("missing move data to compute attack report", zap.String("move", mvName))
		return
	}
	damage := engine.CalculateDamage(j.local, j.remote, mv)
	j.remote.HP = max(0, j.remote.HP-damage)
	j.state.HostHP = j.remote.HP
	report := reportEnvelope(j.local.Name, mvName, damage, j.remote.HP,
		fmt.Sprintf("%s used %s!", j.local.Name, mvName))
	attacker := j.local.Name
	j.mu.Unlock()

	j.sendTo(report, addr)
	j.publish(Event{Type: EvtDamage, Attacker: attacker, Move: mvName,
		Damage: damage, DefenderHP: report.DefenderHP, Status: report.StatusMessage})
	j.checkGameOver()
}

// handleCalculationReport cross-validates the Host's report. If the battle
// ends on this update the Joiner declares game over instead of confirming.
func (j *Joiner) handleCalculationReport(env protocol.Envelope, addr net.Addr) {
	mv, ok := pokedex.MoveByName(env.MoveUsed)
	if !ok {
		j.log.Warn("cannot validate calculation report", zap.String("move", env.MoveUsed))
		return
	}

	j.mu.Lock()
	if !j.hasRemote {
		j.mu.Unlock()
		j.log.Warn("calculation report before setup")
		return
	}
	joinerAttacked := env.Attacker == j.local.Name
	var expected int
	if joinerAttacked {
		expected = engine.CalculateDamage(j.local, j.remote, mv)
	} else {
		expected = engine.CalculateDamage(j.remote, j.local, mv)
	}
	if expected != env.DamageDealt {
		j.mu.Unlock()
		j.log.Warn("damage mismatch",
			zap.Int("expected", expected), zap.Int("reported", env.DamageDealt))
		j.sendTo(protocol.Envelope{
			Type:        protocol.MsgResolutionRequest,
			Attacker:    env.Attacker,
			MoveUsed:    env.MoveUsed,
			DamageDealt: expected,
		}, addr)
		return
	}

	defHP := *env.DefenderHP
	if joinerAttacked {
		j.remote.HP = defHP
		j.state.HostHP = defHP
	} else {
		j.local.HP = defHP
		j.state.JoinerHP = defHP
	}
	finished := j.local.HP <= 0 || j.remote.HP <= 0
	j.mu.Unlock()

	j.publish(Event{Type: EvtDamage, Attacker: env.Attacker, Move: env.MoveUsed,
		Damage: env.DamageDealt, DefenderHP: env.DefenderHP, Status: env.StatusMessage})
	if finished {
		j.checkGameOver()
		return
	}
	j.sendTo(protocol.Envelope{Type: protocol.MsgCalculationConfirm}, addr)
}

func (j *Joiner) handleResolutionRequest(env protocol.Envelope, addr net.Addr) {
	j.log.Warn("resolution request accepted",
		zap.String("attacker", env.Attacker),
		zap.String("move", env.MoveUsed),
		zap.Int("claimed_damage", env.DamageDealt))
	j.sendTo(protocol.Envelope{Type: protocol.MsgCalculationConfirm}, addr)
}

// checkGameOver declares the result to the Host as soon as either
// combatant's local HP reaches zero. The declaration latch keeps a
// concurrent GAME_OVER from the Host from producing a second outcome.
func (j *Joiner) checkGameOver() {
	j.mu.Lock()
	if j.state.GameOver {
		j.mu.Unlock()
		return
	}
	var winner, reason string
	switch {
	case j.local.HP <= 0:
		winner, reason = j.remote.Name, fmt.Sprintf("%s fainted!", j.local.Name)
	case j.hasRemote && j.remote.HP <= 0:
		winner, reason = j.local.Name, fmt.Sprintf("%s fainted!", j.remote.Name)
	default:
		j.mu.Unlock()
		return
	}
	j.state.Finish(winner, reason)
	addr := j.remoteAddr
	j.mu.Unlock()

	j.log.Info("game over", zap.String("winner", winner), zap.String("reason", reason))
	j.publish(Event{Type: EvtGameOver, Winner: winner, Reason: reason})
	if addr != nil {
		j.sendTo(protocol.Envelope{Type: protocol.MsgGameOver, Winner: winner, Reason: reason}, addr)
	}
}
