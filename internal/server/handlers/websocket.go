// internal/server/handlers/websocket.go

package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"safewatch/internal/adapter/kv"
	"safewatch/internal/domain/event"
	"safewatch/internal/domain/geo"
	"safewatch/internal/domain/zone"
	"safewatch/internal/service/router"
)

// WebSocketConfig contains configuration for WebSocket connections
type WebSocketConfig struct {
	// Time allowed to write a message to the peer
	WriteWait time.Duration

	// Time allowed to read the next pong message from the peer
	PongWait time.Duration

	// Send pings to peer with this period
	PingPeriod time.Duration

	// Maximum message size allowed from peer
	MaxMessageSize int64

	// Location updates allowed per connection per minute
	MaxUpdatesPerMinute int64
}

// DefaultWebSocketConfig returns the default WebSocket configuration
func DefaultWebSocketConfig() WebSocketConfig {
	return WebSocketConfig{
		WriteWait:           10 * time.Second,
		PongWait:            60 * time.Second,
		PingPeriod:          (60 * time.Second * 9) / 10,
		MaxMessageSize:      4096,
		MaxUpdatesPerMinute: 120,
	}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// In production, this should be more restrictive
		return true
	},
}

// locationClient represents a connected client. Each connection owns its
// own subscription state; no other goroutine touches it.
type locationClient struct {
	conn    *websocket.Conn
	send    chan []byte
	userID  string
	premium bool
	sub     *router.Subscriber
	tracker zone.Tracker
	limiter kv.Store
	logger  *zap.Logger
	config  WebSocketConfig
}

// LocationWebSocketHandler upgrades connections for the real-time
// location channel. The user identity and premium flag come from the
// session layer; here they are carried on the request.
func LocationWebSocketHandler(rt *router.Router, tracker zone.Tracker, limiter kv.Store, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := r.URL.Query().Get("user_id")
		if userID == "" {
			http.Error(w, "Missing user ID", http.StatusBadRequest)
			return
		}
		premium, _ := strconv.ParseBool(r.URL.Query().Get("premium"))

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logger.Warn("failed to upgrade to WebSocket", zap.Error(err))
			return
		}

		client := &locationClient{
			conn:    conn,
			send:    make(chan []byte, 256),
			userID:  userID,
			premium: premium,
			tracker: tracker,
			limiter: limiter,
			logger:  logger,
			config:  DefaultWebSocketConfig(),
		}

		// Events arrive from bus callbacks; drop instead of blocking when
		// the client cannot keep up. Delivery is at most once.
		sub, err := rt.NewSubscriber(userID, premium, func(data []byte) {
			select {
			case client.send <- data:
			default:
			}
		})
		if err != nil {
			logger.Warn("failed to register subscriber",
				zap.String("user_id", userID), zap.Error(err))
			conn.Close()
			return
		}
		client.sub = sub

		go client.writePump()
		go client.readPump()

		logger.Info("new location channel connection",
			zap.String("user_id", userID), zap.Bool("premium", premium))
	}
}

// readPump consumes location updates from the client
func (c *locationClient) readPump() {
	defer c.closeConnection()

	c.conn.SetReadLimit(c.config.MaxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(c.config.PongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(c.config.PongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Warn("websocket error",
					zap.String("user_id", c.userID), zap.Error(err))
			}
			break
		}

		c.processIncomingMessage(message)
	}
}

// writePump pushes events and pings to the client
func (c *locationClient) writePump() {
	ticker := time.NewTicker(c.config.PingPeriod)
	defer func() {
		ticker.Stop()
		c.closeConnection()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(c.config.WriteWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)

			n := len(c.send)
			for i := 0; i < n; i++ {
				w.Write([]byte{'\n'})
				w.Write(<-c.send)
			}

			if err := w.Close(); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(c.config.WriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

type incomingMessage struct {
	Type string  `json:"type"`
	Lat  float64 `json:"lat"`
	Lng  float64 `json:"lng"`
}

func (c *locationClient) processIncomingMessage(message []byte) {
	var msg incomingMessage
	if err := json.Unmarshal(message, &msg); err != nil {
		c.logger.Debug("failed to parse websocket message", zap.Error(err))
		return
	}

	switch msg.Type {
	case "location:update":
		c.handleLocationUpdate(geo.Point{Lat: msg.Lat, Lng: msg.Lng})
	default:
		c.logger.Debug("unknown message type", zap.String("type", msg.Type))
	}
}

// handleLocationUpdate reshards the cell subscription before membership
// processing so no event for the new cell is missed while the tracker
// runs
func (c *locationClient) handleLocationUpdate(p geo.Point) {
	if !p.Valid() {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if n, err := c.limiter.Increment(ctx, "rate:ws:"+c.userID, time.Minute); err == nil && n > c.config.MaxUpdatesPerMinute {
		return
	}

	cell, changed, err := c.sub.UpdateLocation(p)
	if err != nil {
		c.logger.Warn("failed to reshard cell subscription",
			zap.String("user_id", c.userID), zap.Error(err))
		return
	}
	if changed {
		if ack, err := json.Marshal(event.CellJoined(cell)); err == nil {
			select {
			case c.send <- ack:
			default:
			}
		}
	}

	if err := c.tracker.ProcessLocationUpdate(ctx, c.userID, c.premium, p); err != nil {
		c.logger.Warn("failed to process location update",
			zap.String("user_id", c.userID), zap.Error(err))
	}
}

// closeConnection deregisters subscriptions and closes the socket
func (c *locationClient) closeConnection() {
	c.sub.Close()
	c.conn.Close()

	c.logger.Info("location channel connection closed",
		zap.String("user_id", c.userID))
}
