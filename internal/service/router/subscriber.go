// internal/service/router/subscriber.go

package router

import (
	"fmt"
	"sync"

	"go.uber.org/zap"

	"safewatch/internal/domain/geo"
)

// Subscriber is the lightweight handle for one live connection. It holds
// the user's identity, the single current geohash cell subscription and
// the per-user geofence subscription, and delivers raw event payloads
// through the callback supplied by the connection owner.
type Subscriber struct {
	router  *Router
	userID  string
	premium bool
	deliver func(data []byte)

	mu      sync.Mutex
	cell    string
	cellSub Subscription
	userSub Subscription
}

// NewSubscriber registers a connection and joins its per-user geofence
// topic. The cell topic is joined on the first location update.
func (r *Router) NewSubscriber(userID string, premium bool, deliver func(data []byte)) (*Subscriber, error) {
	s := &Subscriber{
		router:  r,
		userID:  userID,
		premium: premium,
		deliver: deliver,
	}

	userSub, err := r.bus.Subscribe(UserSubject(userID), deliver)
	if err != nil {
		return nil, fmt.Errorf("error subscribing to user topic: %w", err)
	}
	s.userSub = userSub

	return s, nil
}

// UserID returns the authenticated user this subscription belongs to
func (s *Subscriber) UserID() string {
	return s.userID
}

// Premium reports whether approach notifications apply to this connection
func (s *Subscriber) Premium() bool {
	return s.premium
}

// Cell returns the currently joined geohash cell, or "" before the first
// location update
func (s *Subscriber) Cell() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cell
}

// UpdateLocation reshards the cell subscription when the connection's
// geohash changes. The leave/join swap runs under the subscriber lock so
// there is never a window with zero or two cell subscriptions beyond the
// swap itself.
func (s *Subscriber) UpdateLocation(p geo.Point) (string, bool, error) {
	newCell := geo.Cell(p)

	s.mu.Lock()
	defer s.mu.Unlock()

	if newCell == s.cell {
		return s.cell, false, nil
	}

	if s.cellSub != nil {
		if err := s.cellSub.Unsubscribe(); err != nil {
			s.router.logger.Warn("failed to leave cell topic",
				zap.String("cell", s.cell), zap.Error(err))
		}
		s.cellSub = nil
		s.cell = ""
	}

	cellSub, err := s.router.bus.Subscribe(CellSubject(newCell), s.deliver)
	if err != nil {
		return "", false, fmt.Errorf("error joining cell %s: %w", newCell, err)
	}

	s.cellSub = cellSub
	s.cell = newCell
	return newCell, true, nil
}

// Close deregisters all subscriptions for a dropped connection
func (s *Subscriber) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cellSub != nil {
		_ = s.cellSub.Unsubscribe()
		s.cellSub = nil
	}
	if s.userSub != nil {
		_ = s.userSub.Unsubscribe()
		s.userSub = nil
	}
	s.cell = ""
}
