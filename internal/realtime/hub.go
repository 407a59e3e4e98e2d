// Package realtime pushes domain events to connected websocket clients.
package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"keyvault-glow/internal/events"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const (
	sendBuffer   = 16
	pingInterval = 30 * time.Second
	writeTimeout = 10 * time.Second
	pongTimeout  = 2 * pingInterval
)

// Hub routes events to subscriptions by channel name.
type Hub struct {
	mu     sync.RWMutex
	subs   map[string]map[*Subscription]struct{}
	logger zerolog.Logger
}

// NewHub creates an empty hub.
func NewHub(logger zerolog.Logger) *Hub {
	return &Hub{
		subs:   make(map[string]map[*Subscription]struct{}),
		logger: logger.With().Str("component", "realtime_hub").Logger(),
	}
}

// Subscription receives the encoded events of its channels.
type Subscription struct {
	hub      *Hub
	channels []string
	send     chan []byte
	once     sync.Once
}

// C yields encoded events. It is closed when the subscription ends.
func (s *Subscription) C() <-chan []byte {
	return s.send
}

// Close detaches the subscription from the hub.
func (s *Subscription) Close() {
	s.once.Do(func() {
		s.hub.remove(s)
		close(s.send)
	})
}

// Subscribe attaches a new subscription to the given channels. Duplicate
// channel names are collapsed so each event is delivered once.
func (h *Hub) Subscribe(channels ...string) *Subscription {
	seen := make(map[string]bool, len(channels))
	unique := make([]string, 0, len(channels))
	for _, ch := range channels {
		if ch == "" || seen[ch] {
			continue
		}
		seen[ch] = true
		unique = append(unique, ch)
	}

	sub := &Subscription{hub: h, channels: unique, send: make(chan []byte, sendBuffer)}

	h.mu.Lock()
	for _, ch := range unique {
		if h.subs[ch] == nil {
			h.subs[ch] = make(map[*Subscription]struct{})
		}
		h.subs[ch][sub] = struct{}{}
	}
	h.mu.Unlock()

	h.logger.Debug().Strs("channels", unique).Msg("subscription opened")
	return sub
}

func (h *Hub) remove(sub *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, ch := range sub.channels {
		delete(h.subs[ch], sub)
		if len(h.subs[ch]) == 0 {
			delete(h.subs, ch)
		}
	}
}

// Publish implements events.Publisher. Slow subscribers whose buffer is full
// are dropped rather than blocking the publisher.
func (h *Hub) Publish(ctx context.Context, event events.Event) error {
	if len(event.Channels) == 0 {
		return nil
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal realtime event: %w", err)
	}

	// Sends happen under the read lock so Close, which removes under the
	// write lock before closing the channel, never races a send.
	var slow []*Subscription
	delivered := make(map[*Subscription]bool)
	h.mu.RLock()
	for _, ch := range event.Channels {
		for sub := range h.subs[ch] {
			if delivered[sub] {
				continue
			}
			delivered[sub] = true
			select {
			case sub.send <- payload:
			default:
				slow = append(slow, sub)
			}
		}
	}
	h.mu.RUnlock()

	for _, sub := range slow {
		h.logger.Warn().Strs("channels", sub.channels).Msg("dropping slow realtime subscriber")
		sub.Close()
	}
	return nil
}

// Subscribers returns the number of subscriptions on a channel.
func (h *Hub) Subscribers(channel string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[channel])
}

// Serve streams a subscription to an upgraded websocket until either side
// closes or ctx ends.
func (h *Hub) Serve(ctx context.Context, conn *websocket.Conn, channels ...string) {
	sub := h.Subscribe(channels...)
	defer sub.Close()
	defer conn.Close()

	closed := make(chan struct{})
	go func() {
		defer close(closed)
		conn.SetReadLimit(512)
		_ = conn.SetReadDeadline(time.Now().Add(pongTimeout))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(pongTimeout))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := conn.WriteJSON(map[string]any{"type": "connected", "channels": sub.channels}); err != nil {
		return
	}

	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutdown"),
				time.Now().Add(time.Second))
			return
		case <-closed:
			return
		case payload, ok := <-sub.C():
			if !ok {
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				h.logger.Debug().Err(err).Msg("realtime write failed")
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
