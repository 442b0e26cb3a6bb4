package messages

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/abennett/grimoire/pkg/engine"
)

var (
	ErrMessageInvalid     = errors.New("message was invalid")
	ErrUnknownMessageType = errors.New("unknown message type")
)

type Type int

const (
	StateMsgType Type = iota
	DoneRequestType
	EvalRequestType
	ErrorMsgType
)

type Message struct {
	_msgpack struct{} `msgpack:",as_array"` //nolint:unused
	Type     Type     `msgpack:"type"`
	Version  string   `msgpack:"version"`
	Payload  any
}

func (m *Message) UnmarshalMsgpack(b []byte) error {
	decoder := msgpack.NewDecoder(bytes.NewReader(b))
	l, err := decoder.DecodeArrayLen()
	if err != nil {
		return err
	}
	if l != 3 {
		return fmt.Errorf("%w: array length %d", ErrMessageInvalid, l)
	}
	t, err := decoder.DecodeInt()
	if err != nil {
		return err
	}
	m.Type = Type(t)

	if err = decoder.Skip(); err != nil {
		return err
	}

	switch m.Type {
	case StateMsgType:
		var room RoomState
		if err = decoder.Decode(&room); err != nil {
			return err
		}
		m.Payload = room
	case DoneRequestType:
		var done DoneRequest
		if err = decoder.Decode(&done); err != nil {
			return err
		}
		m.Payload = done
	case EvalRequestType:
		var eval EvalRequest
		if err = decoder.Decode(&eval); err != nil {
			return err
		}
		m.Payload = eval
	case ErrorMsgType:
		var reply ErrorReply
		if err = decoder.Decode(&reply); err != nil {
			return err
		}
		m.Payload = reply
	default:
		return fmt.Errorf("%w: %d", ErrUnknownMessageType, t)
	}
	return nil
}

// EvalRequest asks the server to evaluate a catalog action for a user.
// Ranks travel as tier symbols; the server validates everything against
// its catalog before evaluating.
type EvalRequest struct {
	User        string `msgpack:"user"`
	Action      string `msgpack:"action"`
	WeaponRank  string `msgpack:"weapon_rank"`
	MasteryRank string `msgpack:"mastery_rank"`
	OtherBonus  int    `msgpack:"other_bonus"`
}

// EvalResult is one user's evaluated roll with its full audit trail.
type EvalResult struct {
	User   string        `msgpack:"user"`
	Action string        `msgpack:"action"`
	Result engine.Result `msgpack:"result"`
	IsDone bool          `msgpack:"is_done"`
}

type RoomState struct {
	Version int          `msgpack:"version"`
	Name    string       `msgpack:"name"`
	Results []EvalResult `msgpack:"results"`
}

type DoneRequest struct {
	User string `msgpack:"user"`
}

// ErrorReply rejects a request before evaluation, e.g. for an unknown
// action name or an invalid rank symbol.
type ErrorReply struct {
	Message string `msgpack:"message"`
}
