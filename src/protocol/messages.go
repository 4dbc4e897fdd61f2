package protocol

import (
	"encoding/json"
	"sort"
	"time"

	"github.com/orchestra-mcp/monitor-socket/src/types"
)

// Outbound is any message the server writes to a client.
type Outbound interface {
	MessageType() Type
}

// Header is embedded in every outbound message.
type Header struct {
	Type      Type      `json:"type"`
	Timestamp time.Time `json:"timestamp"`
}

// MessageType implements Outbound.
func (h Header) MessageType() Type { return h.Type }

func header(t Type) Header {
	return Header{Type: t, Timestamp: time.Now().UTC()}
}

// Welcome is the first message on every connection. The assigned id is
// sent as both id and clientId.
type Welcome struct {
	Header
	ID                string   `json:"id"`
	ClientID          string   `json:"clientId"`
	AvailableChannels []string `json:"availableChannels"`
	Message           string   `json:"message"`
}

// NewWelcome greets the client assigned clientID.
func NewWelcome(clientID string) Welcome {
	return Welcome{
		Header:            header(TypeWelcome),
		ID:                clientID,
		ClientID:          clientID,
		AvailableChannels: Channels(),
		Message:           "Connected to monitoring socket",
	}
}

// Pong answers a ping, echoing the client's timestamp when it sent one.
type Pong struct {
	Header
	ClientTimestamp json.RawMessage `json:"clientTimestamp,omitempty"`
}

// NewPong builds a pong echoing echo.
func NewPong(echo json.RawMessage) Pong {
	return Pong{Header: header(TypePong), ClientTimestamp: echo}
}

// SubscriptionChange confirms a subscribe or an unsubscribe.
type SubscriptionChange struct {
	Header
	Channel string `json:"channel"`
}

// NewSubscriptionConfirmed acknowledges a subscribe.
func NewSubscriptionConfirmed(channel string) SubscriptionChange {
	return SubscriptionChange{Header: header(TypeSubscriptionConfirmed), Channel: channel}
}

// NewSubscriptionCancelled acknowledges an unsubscribe.
func NewSubscriptionCancelled(channel string) SubscriptionChange {
	return SubscriptionChange{Header: header(TypeSubscriptionCancelled), Channel: channel}
}

// SystemData is the direct reply to request-data.
type SystemData struct {
	Header
	Data types.Snapshot `json:"data"`
}

// NewSystemData wraps a snapshot for a request-data reply.
func NewSystemData(s types.Snapshot) SystemData {
	return SystemData{Header: header(TypeSystemData), Data: s}
}

// SystemDataUpdate is the periodic snapshot broadcast.
type SystemDataUpdate struct {
	Header
	SequenceID uint64         `json:"sequenceId"`
	Data       types.Snapshot `json:"data"`
}

// NewSystemDataUpdate wraps a snapshot for the system-data channel.
func NewSystemDataUpdate(seq uint64, s types.Snapshot) SystemDataUpdate {
	return SystemDataUpdate{Header: header(TypeSystemDataUpdate), SequenceID: seq, Data: s}
}

// NewAlert carries one alert to the alerts channel.
type NewAlert struct {
	Header
	Alert types.Alert `json:"alert"`
}

// NewNewAlert wraps a.
func NewNewAlert(a types.Alert) NewAlert {
	return NewAlert{Header: header(TypeNewAlert), Alert: a}
}

// Heartbeat reports the live client count and uptime in seconds.
type Heartbeat struct {
	Header
	ConnectedClients int     `json:"connectedClients"`
	ServerUptime     float64 `json:"serverUptime"`
}

// NewHeartbeat builds a heartbeat.
func NewHeartbeat(clients int, uptime time.Duration) Heartbeat {
	return Heartbeat{
		Header:           header(TypeHeartbeat),
		ConnectedClients: clients,
		ServerUptime:     uptime.Seconds(),
	}
}

// ClientInfoResponse describes the requesting client's own connection.
type ClientInfoResponse struct {
	Header
	ClientID           string    `json:"clientId"`
	ConnectedAt        time.Time `json:"connectedAt"`
	ConnectionDuration float64   `json:"connectionDuration"`
	Subscriptions      []string  `json:"subscriptions"`
}

// NewClientInfoResponse reports the connection duration in seconds; the
// subscription list is sorted and never nil.
func NewClientInfoResponse(id string, connectedAt time.Time, subs []string) ClientInfoResponse {
	sorted := make([]string, len(subs))
	copy(sorted, subs)
	sort.Strings(sorted)
	return ClientInfoResponse{
		Header:             header(TypeClientInfoResponse),
		ClientID:           id,
		ConnectedAt:        connectedAt.UTC(),
		ConnectionDuration: time.Since(connectedAt).Seconds(),
		Subscriptions:      sorted,
	}
}

// Error reports a rejected command. The connection stays open.
type Error struct {
	Header
	Message string `json:"message"`
}

// NewError builds an error reply.
func NewError(message string) Error {
	return Error{Header: header(TypeError), Message: message}
}
