package protocol

// MsgType discriminates every envelope placed on the wire.
type MsgType string

const (
	MsgHandshakeRequest   MsgType = "HANDSHAKE_REQUEST"
	MsgHandshakeResponse  MsgType = "HANDSHAKE_RESPONSE"
	MsgSpectatorRequest   MsgType = "SPECTATOR_REQUEST"
	MsgBattleSetup        MsgType = "BATTLE_SETUP"
	MsgTurnAssignment     MsgType = "TURN_ASSIGNMENT"
	MsgAttackAnnounce     MsgType = "ATTACK_ANNOUNCE"
	MsgDefenseAnnounce    MsgType = "DEFENSE_ANNOUNCE"
	MsgCalculationReport  MsgType = "CALCULATION_REPORT"
	MsgCalculationConfirm MsgType = "CALCULATION_CONFIRM"
	MsgResolutionRequest  MsgType = "RESOLUTION_REQUEST"
	MsgGameOver           MsgType = "GAME_OVER"
	MsgChat               MsgType = "CHAT_MESSAGE"
	MsgAck                MsgType = "ACK"
)

// ContentType is the chat payload kind.
type ContentType string

const (
	ContentText    ContentType = "TEXT"
	ContentSticker ContentType = "STICKER"
)

// Wire values for TURN_ASSIGNMENT current_turn.
const (
	TurnHost   = "host"
	TurnJoiner = "joiner"
)

// CombatantData is the flat stat block carried in a BATTLE_SETUP envelope.
// It is the transmitted fallback when the receiver's local database does not
// know the combatant by name.
type CombatantData struct {
	Type1     string `json:"type1"`
	Type2     string `json:"type2,omitempty"`
	HP        int    `json:"hp"`
	Attack    int    `json:"attack"`
	Defense   int    `json:"defense"`
	SpAttack  int    `json:"sp_attack"`
	SpDefense int    `json:"sp_defense"`
	Speed     int    `json:"speed"`
}

// StatBoosts is the per-battle boost allowance announced during setup.
type StatBoosts struct {
	SpecialAttackUses  int `json:"special_attack_uses"`
	SpecialDefenseUses int `json:"special_defense_uses"`
}

// Envelope is one discrete message unit, serialized as a single flat JSON
// object per UDP datagram. Every non-ACK envelope carries Seq and From; ACK
// envelopes carry only AckNumber.
type Envelope struct {
	Type      MsgType `json:"message_type"`
	Seq       uint64  `json:"sequence_number,omitempty"`
	From      string  `json:"from,omitempty"`
	AckNumber uint64  `json:"ack_number,omitempty"`

	// HANDSHAKE_RESPONSE
	Seed *int64 `json:"seed,omitempty"`
	Role string `json:"role,omitempty"`

	// BATTLE_SETUP
	PokemonName       string         `json:"pokemon_name,omitempty"`
	Pokemon           *CombatantData `json:"pokemon,omitempty"`
	StatBoosts        *StatBoosts    `json:"stat_boosts,omitempty"`
	CommunicationMode string         `json:"communication_mode,omitempty"`

	// TURN_ASSIGNMENT
	CurrentTurn string `json:"current_turn,omitempty"`

	// ATTACK_ANNOUNCE
	MoveName string `json:"move_name,omitempty"`

	// CALCULATION_REPORT / RESOLUTION_REQUEST
	Attacker      string `json:"attacker,omitempty"`
	MoveUsed      string `json:"move_used,omitempty"`
	DamageDealt   int    `json:"damage_dealt,omitempty"`
	DefenderHP    *int   `json:"defender_hp_remaining,omitempty"`
	StatusMessage string `json:"status_message,omitempty"`

	// GAME_OVER
	Winner string `json:"winner,omitempty"`
	Reason string `json:"reason,omitempty"`

	// CHAT_MESSAGE
	SenderName  string      `json:"sender_name,omitempty"`
	ContentType ContentType `json:"content_type,omitempty"`
	MessageText string      `json:"message_text,omitempty"`
	StickerData string      `json:"sticker_data,omitempty"`
}
