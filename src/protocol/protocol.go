// Package protocol defines the JSON envelopes exchanged with monitoring
// clients. Inbound frames are decoded once into a concrete Command; outbound
// messages are concrete structs sharing a Header with the type tag.
package protocol

// Type is the discriminator carried in every envelope.
type Type string

// Inbound command types.
const (
	TypePing          Type = "ping"
	TypeSubscribe     Type = "subscribe"
	TypeUnsubscribe   Type = "unsubscribe"
	TypeRequestData   Type = "request-data"
	TypeClientInfo    Type = "client-info"
	TypeSimulateAlert Type = "simulate-alert"
)

// Outbound event types.
const (
	TypeWelcome               Type = "welcome"
	TypePong                  Type = "pong"
	TypeSubscriptionConfirmed Type = "subscription-confirmed"
	TypeSubscriptionCancelled Type = "subscription-cancelled"
	TypeSystemData            Type = "system-data"
	TypeSystemDataUpdate      Type = "system-data-update"
	TypeNewAlert              Type = "new-alert"
	TypeHeartbeat             Type = "heartbeat"
	TypeClientInfoResponse    Type = "client-info-response"
	TypeError                 Type = "error"
)

// Broadcast channel names.
const (
	ChannelSystemData = "system-data"
	ChannelAlerts     = "alerts"
	ChannelHeartbeat  = "heartbeat"
)

var channels = []string{ChannelSystemData, ChannelAlerts, ChannelHeartbeat}

// Channels returns the valid channel names in a fresh slice.
func Channels() []string {
	out := make([]string, len(channels))
	copy(out, channels)
	return out
}

// ValidChannel reports whether name is one of the fixed channels.
func ValidChannel(name string) bool {
	for _, ch := range channels {
		if ch == name {
			return true
		}
	}
	return false
}
