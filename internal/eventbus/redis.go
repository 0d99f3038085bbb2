/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package eventbus

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/friendsincode/limitgate/internal/events"
)

// RelayChannelPrefix namespaces relayed events in Redis.
const RelayChannelPrefix = "limitgate:events:"

// relayedKey marks payloads that arrived from another node so they are not
// sent back out.
const relayedKey = "relayed_from"

// RedisClient is the subset of redis.UniversalClient the relay uses.
type RedisClient interface {
	Publish(ctx context.Context, channel string, message any) *redis.IntCmd
	Subscribe(ctx context.Context, channels ...string) *redis.PubSub
}

// RedisRelay mirrors selected local bus events to other instances through
// Redis pub/sub, so a policy update on one node invalidates caches on all.
type RedisRelay struct {
	client     RedisClient
	bus        *events.Bus
	nodeID     string
	eventTypes []events.EventType
	logger     zerolog.Logger
}

// NewRedisRelay creates a relay for eventTypes.
func NewRedisRelay(client RedisClient, bus *events.Bus, nodeID string, logger zerolog.Logger, eventTypes ...events.EventType) *RedisRelay {
	return &RedisRelay{
		client:     client,
		bus:        bus,
		nodeID:     nodeID,
		eventTypes: eventTypes,
		logger:     logger.With().Str("component", "event_relay").Logger(),
	}
}

// Channel returns the Redis channel for eventType.
func Channel(eventType events.EventType) string {
	return RelayChannelPrefix + string(eventType)
}

// Run forwards events in both directions until ctx is done.
func (r *RedisRelay) Run(ctx context.Context) error {
	channels := make([]string, 0, len(r.eventTypes))
	for _, et := range r.eventTypes {
		channels = append(channels, Channel(et))
	}
	pubsub := r.client.Subscribe(ctx, channels...)
	defer pubsub.Close()

	type localSub struct {
		eventType events.EventType
		sub       events.Subscriber
	}
	locals := make([]localSub, 0, len(r.eventTypes))
	for _, et := range r.eventTypes {
		locals = append(locals, localSub{et, r.bus.Subscribe(et)})
	}
	defer func() {
		for _, l := range locals {
			r.bus.Unsubscribe(l.eventType, l.sub)
		}
	}()

	for _, l := range locals {
		go func(l localSub) {
			for payload := range l.sub {
				r.forwardLocal(ctx, l.eventType, payload)
			}
		}(l)
	}

	r.logger.Info().Str("node_id", r.nodeID).Strs("channels", channels).Msg("event relay started")

	remote := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			r.logger.Info().Msg("event relay stopped")
			return ctx.Err()
		case msg, ok := <-remote:
			if !ok {
				return fmt.Errorf("redis subscription closed")
			}
			r.handleRemote([]byte(msg.Payload))
		}
	}
}

// forwardLocal publishes a locally raised event to Redis.
func (r *RedisRelay) forwardLocal(ctx context.Context, eventType events.EventType, payload events.Payload) {
	if _, relayed := payload[relayedKey]; relayed {
		return
	}
	data, err := marshalMessage(eventType, payload, r.nodeID)
	if err != nil {
		r.logger.Error().Err(err).Msg("failed to marshal relay message")
		return
	}

	pubCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := r.client.Publish(pubCtx, Channel(eventType), data).Err(); err != nil {
		r.logger.Warn().Err(err).Str("event_type", string(eventType)).Msg("failed to relay event")
	}
}

// handleRemote delivers an event from another node to local subscribers.
func (r *RedisRelay) handleRemote(data []byte) {
	msg, err := unmarshalMessage(data)
	if err != nil {
		r.logger.Error().Err(err).Msg("failed to unmarshal relay message")
		return
	}
	// Skip messages from ourselves (prevent echo)
	if msg.NodeID == r.nodeID {
		return
	}
	payload := msg.Payload
	if payload == nil {
		payload = events.Payload{}
	}
	payload[relayedKey] = msg.NodeID
	r.bus.Publish(msg.EventType, payload)

	r.logger.Debug().
		Str("event_type", string(msg.EventType)).
		Str("source_node", msg.NodeID).
		Msg("delivered relayed event")
}

// relayMessage is the wire format on Redis channels.
type relayMessage struct {
	EventType events.EventType `json:"event_type"`
	Payload   events.Payload   `json:"payload"`
	Timestamp time.Time        `json:"timestamp"`
	NodeID    string           `json:"node_id"`
}

func marshalMessage(eventType events.EventType, payload events.Payload, nodeID string) ([]byte, error) {
	return json.Marshal(relayMessage{
		EventType: eventType,
		Payload:   payload,
		Timestamp: time.Now().UTC(),
		NodeID:    nodeID,
	})
}

func unmarshalMessage(data []byte) (*relayMessage, error) {
	var msg relayMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("unmarshal relay message: %w", err)
	}
	return &msg, nil
}
