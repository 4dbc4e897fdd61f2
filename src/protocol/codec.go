package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Decode failures, wrapped in a DecodeError.
var (
	ErrMalformed   = errors.New("malformed message")
	ErrMissingType = errors.New("missing message type")
	ErrUnknownType = errors.New("unknown message type")
)

// DecodeError describes why an inbound frame was rejected.
type DecodeError struct {
	Type Type
	Err  error
}

// Error includes the rejected type tag when there was one.
func (e *DecodeError) Error() string {
	if e.Type != "" {
		return fmt.Sprintf("%v: %q", e.Err, e.Type)
	}
	return e.Err.Error()
}

// Unwrap returns the sentinel.
func (e *DecodeError) Unwrap() error { return e.Err }

// Command is a decoded inbound message.
type Command interface {
	CommandType() Type
}

// Ping asks for a pong. Timestamp is echoed back untouched.
type Ping struct {
	Timestamp json.RawMessage
}

// Subscribe joins Channel.
type Subscribe struct {
	Channel string
}

// Unsubscribe leaves Channel.
type Unsubscribe struct {
	Channel string
}

// RequestData asks for one snapshot sent to the requester only.
type RequestData struct{}

// ClientInfo asks for the requester's own connection details.
type ClientInfo struct{}

// SimulateAlert asks for an alert broadcast to the alerts channel.
type SimulateAlert struct {
	TargetID string
	Severity string
}

func (Ping) CommandType() Type          { return TypePing }
func (Subscribe) CommandType() Type     { return TypeSubscribe }
func (Unsubscribe) CommandType() Type   { return TypeUnsubscribe }
func (RequestData) CommandType() Type   { return TypeRequestData }
func (ClientInfo) CommandType() Type    { return TypeClientInfo }
func (SimulateAlert) CommandType() Type { return TypeSimulateAlert }

// inboundFrame is the union of every field an inbound command may carry.
type inboundFrame struct {
	Type      *string         `json:"type"`
	Channel   string          `json:"channel"`
	TargetID  string          `json:"targetId"`
	Severity  string          `json:"severity"`
	Timestamp json.RawMessage `json:"timestamp"`
}

// Decode parses one inbound frame. Only the presence and value of the type
// tag are checked; field validation belongs to the command handlers.
func Decode(data []byte) (Command, error) {
	var f inboundFrame
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, &DecodeError{Err: fmt.Errorf("%w: %v", ErrMalformed, err)}
	}
	if f.Type == nil || *f.Type == "" {
		return nil, &DecodeError{Err: ErrMissingType}
	}

	switch t := Type(*f.Type); t {
	case TypePing:
		return Ping{Timestamp: f.Timestamp}, nil
	case TypeSubscribe:
		return Subscribe{Channel: f.Channel}, nil
	case TypeUnsubscribe:
		return Unsubscribe{Channel: f.Channel}, nil
	case TypeRequestData:
		return RequestData{}, nil
	case TypeClientInfo:
		return ClientInfo{}, nil
	case TypeSimulateAlert:
		return SimulateAlert{TargetID: f.TargetID, Severity: f.Severity}, nil
	default:
		return nil, &DecodeError{Type: t, Err: ErrUnknownType}
	}
}

// Encode serialises an outbound message.
func Encode(msg Outbound) ([]byte, error) {
	data, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", msg.MessageType(), err)
	}
	return data, nil
}
