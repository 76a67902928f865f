// internal/service/router/router.go

// Package router shards live connections into geohash cell topics and
// fans out real-time events. Delivery is fire-and-forget, at most once:
// these are freshness-sensitive alerts, not an audit log, and membership
// state self-corrects on the next location update.
package router

import (
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"safewatch/internal/domain/event"
	"safewatch/internal/domain/geo"
	"safewatch/internal/domain/incident"
)

// CellSubject is the broadcast topic for incidents inside one geohash cell
func CellSubject(cell string) string {
	return "incidents." + cell
}

// UserSubject is the per-user topic carrying that user's own
// zone-transition events
func UserSubject(userID string) string {
	return "geofence.user." + userID
}

// Subscription is a handle to an active topic subscription
type Subscription interface {
	Unsubscribe() error
}

// Bus abstracts the message transport so tests can substitute an
// in-process implementation for NATS
type Bus interface {
	Publish(subject string, data []byte) error
	Subscribe(subject string, handler func(data []byte)) (Subscription, error)
}

// NATSBus implements Bus on a NATS connection
type NATSBus struct {
	conn *nats.Conn
}

// NewNATSBus wraps a NATS connection as a Bus
func NewNATSBus(conn *nats.Conn) *NATSBus {
	return &NATSBus{conn: conn}
}

func (b *NATSBus) Publish(subject string, data []byte) error {
	return b.conn.Publish(subject, data)
}

func (b *NATSBus) Subscribe(subject string, handler func(data []byte)) (Subscription, error) {
	sub, err := b.conn.Subscribe(subject, func(msg *nats.Msg) {
		handler(msg.Data)
	})
	if err != nil {
		return nil, err
	}
	return sub, nil
}

// Router publishes incident broadcasts and per-user geofence events and
// hands out per-connection subscriber handles
type Router struct {
	bus    Bus
	logger *zap.Logger
}

// New creates a router on the given bus
func New(bus Bus, logger *zap.Logger) *Router {
	return &Router{
		bus:    bus,
		logger: logger,
	}
}

// PublishIncident broadcasts a new incident to exactly the cell topic
// matching the incident's own geohash, bounding fan-out to a local
// audience
func (r *Router) PublishIncident(inc incident.Incident) error {
	cell := geo.Cell(inc.Location)
	env := event.IncidentCreated(inc, cell)

	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("error marshaling incident event: %w", err)
	}

	if err := r.bus.Publish(CellSubject(cell), data); err != nil {
		return fmt.Errorf("error publishing incident to cell %s: %w", cell, err)
	}

	return nil
}

// PublishUserEvent delivers a zone-transition event to the user's own
// geofence topic
func (r *Router) PublishUserEvent(userID string, env event.Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("error marshaling user event: %w", err)
	}

	if err := r.bus.Publish(UserSubject(userID), data); err != nil {
		return fmt.Errorf("error publishing user event: %w", err)
	}

	return nil
}
