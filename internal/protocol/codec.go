package protocol

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/huangang/teamsync/internal/models"
)

// ErrUnknownEvent is returned for a frame whose event name is not in the
// inbound set.
var ErrUnknownEvent = errors.New("unknown event")

// Envelope is the JSON text frame exchanged over the socket.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// DecodeInbound parses one client frame into its typed variant.
func DecodeInbound(raw []byte) (Inbound, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("decode envelope: %w", err)
	}

	factory, ok := inboundFactories[env.Event]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownEvent, env.Event)
	}

	ev := factory()
	if len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, ev); err != nil {
			return nil, fmt.Errorf("decode %s: %w", env.Event, err)
		}
	}
	if err := ev.validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", env.Event, err)
	}
	return ev, nil
}

// EncodeInbound frames a client event for sending.
func EncodeInbound(ev Inbound) ([]byte, error) {
	return encode(ev.Kind(), ev)
}

// Encode frames a server event for sending.
func (o Outbound) Encode() ([]byte, error) {
	return encode(o.Event, o.Payload)
}

func encode(event string, payload interface{}) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", event, err)
	}
	return json.Marshal(Envelope{Event: event, Data: data})
}

// DecodeOutbound parses a server frame into its payload type. The payload
// holds a value, not a pointer: InitialState, []models.User, models.User,
// models.Project, MessageReceived, FileAdded, FileUpdated, TaskAdded or
// TaskToggled.
func DecodeOutbound(raw []byte) (Outbound, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return Outbound{}, fmt.Errorf("decode envelope: %w", err)
	}

	var (
		payload interface{}
		err     error
	)
	switch env.Event {
	case EventStateInitial:
		payload, err = decodeAs[InitialState](env.Data)
	case EventStateUsers:
		payload, err = decodeAs[[]models.User](env.Data)
	case EventUserJoined, EventUserLeft:
		payload, err = decodeAs[models.User](env.Data)
	case EventProjectCreated, EventProjectUpdated:
		payload, err = decodeAs[models.Project](env.Data)
	case EventMessageReceived:
		payload, err = decodeAs[MessageReceived](env.Data)
	case EventFileAdded:
		payload, err = decodeAs[FileAdded](env.Data)
	case EventFileUpdated:
		payload, err = decodeAs[FileUpdated](env.Data)
	case EventTaskAdded:
		payload, err = decodeAs[TaskAdded](env.Data)
	case EventTaskToggled:
		payload, err = decodeAs[TaskToggled](env.Data)
	default:
		return Outbound{Event: env.Event}, fmt.Errorf("%w: %q", ErrUnknownEvent, env.Event)
	}
	if err != nil {
		return Outbound{}, fmt.Errorf("decode %s: %w", env.Event, err)
	}
	return Outbound{Event: env.Event, Payload: payload}, nil
}

func decodeAs[T any](data json.RawMessage) (T, error) {
	var v T
	if len(data) == 0 {
		return v, nil
	}
	err := json.Unmarshal(data, &v)
	return v, err
}
