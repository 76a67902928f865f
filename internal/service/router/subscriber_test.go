// internal/service/router/subscriber_test.go

package router

import (
	"encoding/json"
	"sync"
	"testing"

	"go.uber.org/zap"

	"safewatch/internal/domain/event"
	"safewatch/internal/domain/geo"
	"safewatch/internal/domain/incident"
	"safewatch/internal/domain/zone"
)

func sampleZone() zone.Zone {
	return zone.Zone{
		ID:           "zone-1",
		Type:         zone.TypeMugging,
		Center:       johannesburg,
		RadiusMeters: 500,
		RiskLevel:    zone.RiskMedium,
		IsActive:     true,
	}
}

// memoryBus is a synchronous in-process Bus for tests
type memoryBus struct {
	mu   sync.Mutex
	subs map[string][]*memorySub
}

type memorySub struct {
	bus     *memoryBus
	subject string
	handler func(data []byte)
}

func newMemoryBus() *memoryBus {
	return &memoryBus{subs: make(map[string][]*memorySub)}
}

func (b *memoryBus) Publish(subject string, data []byte) error {
	b.mu.Lock()
	handlers := make([]func([]byte), 0, len(b.subs[subject]))
	for _, sub := range b.subs[subject] {
		handlers = append(handlers, sub.handler)
	}
	b.mu.Unlock()

	for _, h := range handlers {
		h(data)
	}
	return nil
}

func (b *memoryBus) Subscribe(subject string, handler func(data []byte)) (Subscription, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	sub := &memorySub{bus: b, subject: subject, handler: handler}
	b.subs[subject] = append(b.subs[subject], sub)
	return sub, nil
}

func (s *memorySub) Unsubscribe() error {
	s.bus.mu.Lock()
	defer s.bus.mu.Unlock()

	subs := s.bus.subs[s.subject]
	for i, cur := range subs {
		if cur == s {
			s.bus.subs[s.subject] = append(subs[:i], subs[i+1:]...)
			break
		}
	}
	return nil
}

func (b *memoryBus) subscriberCount(subject string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs[subject])
}

// collector gathers delivered payloads for assertions
type collector struct {
	mu       sync.Mutex
	payloads [][]byte
}

func (c *collector) deliver(data []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.payloads = append(c.payloads, data)
}

func (c *collector) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.payloads)
}

func (c *collector) last() []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.payloads) == 0 {
		return nil
	}
	return c.payloads[len(c.payloads)-1]
}

var (
	johannesburg = geo.Point{Lat: -26.2041, Lng: 28.0473}
	pretoria     = geo.Point{Lat: -25.7479, Lng: 28.2293}
)

func TestNewSubscriberJoinsUserTopic(t *testing.T) {
	bus := newMemoryBus()
	rt := New(bus, zap.NewNop())
	var got collector

	sub, err := rt.NewSubscriber("user-1", false, got.deliver)
	if err != nil {
		t.Fatalf("NewSubscriber() error = %v", err)
	}
	defer sub.Close()

	env := event.ZoneTransition(event.KindZoneEntered, sampleZone(), 0)
	if err := rt.PublishUserEvent("user-1", env); err != nil {
		t.Fatalf("PublishUserEvent() error = %v", err)
	}

	if got.count() != 1 {
		t.Fatalf("delivered %d payloads, want 1", got.count())
	}

	var decoded event.Envelope
	if err := json.Unmarshal(got.last(), &decoded); err != nil {
		t.Fatalf("delivered payload is not valid JSON: %v", err)
	}
	if decoded.Kind != event.KindZoneEntered {
		t.Errorf("delivered kind = %s, want %s", decoded.Kind, event.KindZoneEntered)
	}
}

func TestUpdateLocationJoinsCell(t *testing.T) {
	bus := newMemoryBus()
	rt := New(bus, zap.NewNop())
	var got collector

	sub, err := rt.NewSubscriber("user-1", false, got.deliver)
	if err != nil {
		t.Fatalf("NewSubscriber() error = %v", err)
	}
	defer sub.Close()

	if cell := sub.Cell(); cell != "" {
		t.Fatalf("Cell() before first update = %q, want empty", cell)
	}

	cell, changed, err := sub.UpdateLocation(johannesburg)
	if err != nil {
		t.Fatalf("UpdateLocation() error = %v", err)
	}
	if !changed {
		t.Error("first update must report a cell change")
	}
	if cell != geo.Cell(johannesburg) {
		t.Errorf("joined cell = %q, want %q", cell, geo.Cell(johannesburg))
	}

	// Same cell again is a no-op
	_, changed, err = sub.UpdateLocation(johannesburg)
	if err != nil {
		t.Fatalf("UpdateLocation() error = %v", err)
	}
	if changed {
		t.Error("update within the same cell must not reshard")
	}
	if n := bus.subscriberCount(CellSubject(cell)); n != 1 {
		t.Errorf("cell %s has %d subscriptions, want 1", cell, n)
	}
}

func TestUpdateLocationReshardsAtomically(t *testing.T) {
	bus := newMemoryBus()
	rt := New(bus, zap.NewNop())
	var got collector

	sub, err := rt.NewSubscriber("user-1", false, got.deliver)
	if err != nil {
		t.Fatalf("NewSubscriber() error = %v", err)
	}
	defer sub.Close()

	oldCell, _, err := sub.UpdateLocation(johannesburg)
	if err != nil {
		t.Fatalf("UpdateLocation() error = %v", err)
	}
	newCell, changed, err := sub.UpdateLocation(pretoria)
	if err != nil {
		t.Fatalf("UpdateLocation() error = %v", err)
	}
	if !changed || newCell == oldCell {
		t.Fatalf("expected a reshard from %q, got %q (changed=%v)", oldCell, newCell, changed)
	}

	if n := bus.subscriberCount(CellSubject(oldCell)); n != 0 {
		t.Errorf("old cell %s still has %d subscriptions", oldCell, n)
	}
	if n := bus.subscriberCount(CellSubject(newCell)); n != 1 {
		t.Errorf("new cell %s has %d subscriptions, want 1", newCell, n)
	}

	// An incident in the old cell must not reach the subscriber
	if err := rt.PublishIncident(incident.Incident{ID: "inc-old", Type: incident.TypeMugging, Location: johannesburg}); err != nil {
		t.Fatalf("PublishIncident() error = %v", err)
	}
	if got.count() != 0 {
		t.Errorf("received %d payloads from the old cell, want 0", got.count())
	}

	// An incident in the new cell must
	if err := rt.PublishIncident(incident.Incident{ID: "inc-new", Type: incident.TypeMugging, Location: pretoria}); err != nil {
		t.Fatalf("PublishIncident() error = %v", err)
	}
	if got.count() != 1 {
		t.Fatalf("received %d payloads from the new cell, want 1", got.count())
	}

	var decoded event.Envelope
	if err := json.Unmarshal(got.last(), &decoded); err != nil {
		t.Fatalf("delivered payload is not valid JSON: %v", err)
	}
	if decoded.Kind != event.KindIncidentNew {
		t.Errorf("delivered kind = %s, want %s", decoded.Kind, event.KindIncidentNew)
	}
	if decoded.Geohash != newCell {
		t.Errorf("delivered geohash = %q, want %q", decoded.Geohash, newCell)
	}
	if decoded.Incident == nil || decoded.Incident.ID != "inc-new" {
		t.Errorf("delivered incident = %+v, want inc-new", decoded.Incident)
	}
}

func TestCloseDropsAllSubscriptions(t *testing.T) {
	bus := newMemoryBus()
	rt := New(bus, zap.NewNop())
	var got collector

	sub, err := rt.NewSubscriber("user-1", true, got.deliver)
	if err != nil {
		t.Fatalf("NewSubscriber() error = %v", err)
	}
	cell, _, err := sub.UpdateLocation(johannesburg)
	if err != nil {
		t.Fatalf("UpdateLocation() error = %v", err)
	}

	sub.Close()

	if n := bus.subscriberCount(CellSubject(cell)); n != 0 {
		t.Errorf("cell topic has %d subscriptions after close", n)
	}
	if n := bus.subscriberCount(UserSubject("user-1")); n != 0 {
		t.Errorf("user topic has %d subscriptions after close", n)
	}

	if err := rt.PublishIncident(incident.Incident{ID: "inc", Type: incident.TypeAccident, Location: johannesburg}); err != nil {
		t.Fatalf("PublishIncident() error = %v", err)
	}
	if got.count() != 0 {
		t.Errorf("received %d payloads after close, want 0", got.count())
	}
}

func TestSubjectNames(t *testing.T) {
	if got := CellSubject("ke7h3"); got != "incidents.ke7h3" {
		t.Errorf("CellSubject() = %q", got)
	}
	if got := UserSubject("u1"); got != "geofence.user.u1" {
		t.Errorf("UserSubject() = %q", got)
	}
}
