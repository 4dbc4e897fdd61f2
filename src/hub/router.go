package hub

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/orchestra-mcp/monitor-socket/src/protocol"
	"github.com/rs/zerolog"
)

var ErrInvalidChannel = errors.New("invalid channel")

// Router maps channel names to subscribed clients and fans out broadcasts.
// Fan-out targets are always re-resolved through the registry, so a removed
// client is never delivered to.
type Router struct {
	registry *Registry
	metrics  *Metrics
	logger   zerolog.Logger

	mu       sync.RWMutex
	channels map[string]map[string]struct{} // channel -> set of clientIDs
}

// NewRouter creates a router bound to reg. Clients removed from reg are
// dropped from every channel.
func NewRouter(reg *Registry, metrics *Metrics, logger zerolog.Logger) *Router {
	r := &Router{
		registry: reg,
		metrics:  metrics,
		logger:   logger.With().Str("component", "router").Logger(),
		channels: make(map[string]map[string]struct{}),
	}
	reg.OnRemove(r.dropClient)
	return r
}

func invalidChannel(channel string) error {
	return fmt.Errorf("%w: %q", ErrInvalidChannel, channel)
}

// Subscribe adds a client to a channel. Subscribing twice is a no-op.
func (r *Router) Subscribe(clientID, channel string) error {
	if !protocol.ValidChannel(channel) {
		return invalidChannel(channel)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	// Checked under the router lock so a concurrent removal either sees
	// this subscription in dropClient or makes this lookup fail.
	client, ok := r.registry.Get(clientID)
	if !ok {
		return ErrClientNotFound
	}
	if r.channels[channel] == nil {
		r.channels[channel] = make(map[string]struct{})
	}
	r.channels[channel][clientID] = struct{}{}
	client.addChannel(channel)

	r.logger.Debug().Str("client_id", clientID).Str("channel", channel).Msg("subscribed")
	return nil
}

// Unsubscribe removes a client from a channel. Unsubscribing from a valid
// channel the client never joined succeeds.
func (r *Router) Unsubscribe(clientID, channel string) error {
	if !protocol.ValidChannel(channel) {
		return invalidChannel(channel)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	client, ok := r.registry.Get(clientID)
	if !ok {
		return ErrClientNotFound
	}
	if subs, ok := r.channels[channel]; ok {
		delete(subs, clientID)
		if len(subs) == 0 {
			delete(r.channels, channel)
		}
	}
	client.removeChannel(channel)

	r.logger.Debug().Str("client_id", clientID).Str("channel", channel).Msg("unsubscribed")
	return nil
}

// SubscribersOf returns the live clients subscribed to channel.
func (r *Router) SubscribersOf(channel string) []*Client {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.subscribersLocked(channel)
}

func (r *Router) subscribersLocked(channel string) []*Client {
	subs := r.channels[channel]
	out := make([]*Client, 0, len(subs))
	for id := range subs {
		client, exists := r.registry.Get(id)
		if !exists || client.State() >= StateClosing {
			continue
		}
		out = append(out, client)
	}
	return out
}

// SubscriberCount returns the number of live subscribers of channel.
func (r *Router) SubscriberCount(channel string) int {
	return len(r.SubscribersOf(channel))
}

// Channels returns every valid channel with its live subscriber count.
func (r *Router) Channels() map[string]int {
	out := make(map[string]int)
	for _, ch := range protocol.Channels() {
		out[ch] = r.SubscriberCount(ch)
	}
	return out
}

// Broadcast encodes msg once and queues it for every live subscriber of
// channel. It never blocks on a client: a full send queue closes that
// client and delivery continues with the rest. It returns the number of
// clients the message was queued for.
//
// Queueing happens under the router read lock, so a subscription change
// confirmed to a client is ordered against every broadcast it could race.
func (r *Router) Broadcast(channel string, msg protocol.Outbound) int {
	data, err := protocol.Encode(msg)
	if err != nil {
		r.logger.Error().Err(err).Str("channel", channel).Msg("broadcast encode failed")
		return 0
	}

	start := time.Now()
	delivered := 0
	var slow []*Client

	r.mu.RLock()
	for _, client := range r.subscribersLocked(channel) {
		err := client.enqueue(data)
		switch {
		case err == nil:
			delivered++
			r.metrics.messageQueued(msg.MessageType())
		case errors.Is(err, ErrSendBufferFull):
			slow = append(slow, client)
		}
	}
	r.mu.RUnlock()

	for _, client := range slow {
		r.logger.Warn().Str("client_id", client.ID).Msg("send buffer full, disconnecting")
		r.metrics.sendDropped()
		client.closeWith(ReasonSlowConsumer)
	}
	r.metrics.broadcast(channel, delivered, time.Since(start))
	return delivered
}

// dropClient removes a departed client from every channel.
func (r *Router) dropClient(c *Client) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for ch, subs := range r.channels {
		delete(subs, c.ID)
		if len(subs) == 0 {
			delete(r.channels, ch)
		}
	}
}
