package protocol

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
)

// MaxDatagram is the receive buffer size; an encoded envelope must fit in a
// single datagram of this many bytes.
const MaxDatagram = 65535

// MaxStickerBytes caps a decoded sticker attachment.
const MaxStickerBytes = 10 << 20

var (
	ErrUnknownType   = errors.New("unknown message type")
	ErrMissingField  = errors.New("missing required field")
	ErrEnvelopeSize  = errors.New("envelope exceeds datagram size")
	ErrStickerTooBig = errors.New("sticker exceeds size limit")
)

// Encode marshals env into a single-datagram JSON payload.
func Encode(env Envelope) ([]byte, error) {
	b, err := json.Marshal(env)
	if err != nil {
		return nil, err
	}
	if len(b) > MaxDatagram {
		return nil, fmt.Errorf("%w: %d bytes", ErrEnvelopeSize, len(b))
	}
	return b, nil
}

// Unmarshal parses one inbound datagram without validating it. The transport
// acknowledges anything it can parse, so validation is a separate step.
func Unmarshal(data []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Envelope{}, err
	}
	return env, nil
}

// Decode parses and validates one inbound datagram.
func Decode(data []byte) (Envelope, error) {
	env, err := Unmarshal(data)
	if err != nil {
		return Envelope{}, err
	}
	if err := env.Validate(); err != nil {
		return Envelope{}, err
	}
	return env, nil
}

// Validate checks the fields required for the envelope's type.
func (e Envelope) Validate() error {
	if e.Type == MsgAck {
		if e.AckNumber == 0 {
			return fmt.Errorf("%w: ack_number", ErrMissingField)
		}
		return nil
	}
	if e.Seq == 0 {
		return fmt.Errorf("%w: sequence_number", ErrMissingField)
	}
	if e.From == "" {
		return fmt.Errorf("%w: from", ErrMissingField)
	}

	switch e.Type {
	case MsgHandshakeRequest, MsgSpectatorRequest, MsgDefenseAnnounce, MsgCalculationConfirm:
		// no payload beyond the shared fields

	case MsgHandshakeResponse:
		if e.Seed == nil {
			return fmt.Errorf("%w: seed", ErrMissingField)
		}

	case MsgBattleSetup:
		if e.PokemonName == "" {
			return fmt.Errorf("%w: pokemon_name", ErrMissingField)
		}
		if e.Pokemon == nil {
			return fmt.Errorf("%w: pokemon", ErrMissingField)
		}

	case MsgTurnAssignment:
		if e.CurrentTurn != TurnHost && e.CurrentTurn != TurnJoiner {
			return fmt.Errorf("%w: current_turn", ErrMissingField)
		}

	case MsgAttackAnnounce:
		if e.MoveName == "" {
			return fmt.Errorf("%w: move_name", ErrMissingField)
		}

	case MsgCalculationReport:
		if e.Attacker == "" || e.MoveUsed == "" {
			return fmt.Errorf("%w: attacker/move_used", ErrMissingField)
		}
		if e.DefenderHP == nil {
			return fmt.Errorf("%w: defender_hp_remaining", ErrMissingField)
		}

	case MsgResolutionRequest:
		if e.Attacker == "" || e.MoveUsed == "" {
			return fmt.Errorf("%w: attacker/move_used", ErrMissingField)
		}

	case MsgGameOver:
		if e.Winner == "" {
			return fmt.Errorf("%w: winner", ErrMissingField)
		}

	case MsgChat:
		if e.SenderName == "" {
			return fmt.Errorf("%w: sender_name", ErrMissingField)
		}
		switch e.ContentType {
		case ContentText:
		case ContentSticker:
			if e.StickerData == "" {
				return fmt.Errorf("%w: sticker_data", ErrMissingField)
			}
			if !ValidStickerData(e.StickerData) {
				return ErrStickerTooBig
			}
		default:
			return fmt.Errorf("%w: content_type", ErrMissingField)
		}

	default:
		return fmt.Errorf("%w: %q", ErrUnknownType, e.Type)
	}
	return nil
}

// ValidStickerData reports whether s is valid base64 whose decoded size is
// within MaxStickerBytes.
func ValidStickerData(s string) bool {
	raw, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return false
	}
	return len(raw) <= MaxStickerBytes
}
