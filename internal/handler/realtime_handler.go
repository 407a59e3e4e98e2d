package handler

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"keyvault-glow/internal/events"
	"keyvault-glow/internal/model"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// StreamServer streams channel events over an upgraded connection.
type StreamServer interface {
	Serve(ctx context.Context, conn *websocket.Conn, channels ...string)
}

// RealtimeHandler upgrades authenticated clients to a websocket that
// carries their notifications.
type RealtimeHandler struct {
	hub      StreamServer
	upgrader websocket.Upgrader
	root     context.Context
	logger   zerolog.Logger
}

// NewRealtimeHandler creates a realtime handler. Streams end when root is
// cancelled.
func NewRealtimeHandler(root context.Context, hub StreamServer, allowedOrigins []string, logger zerolog.Logger) *RealtimeHandler {
	return &RealtimeHandler{
		hub: hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(allowedOrigins),
		},
		root:   root,
		logger: logger.With().Str("handler", "realtime").Logger(),
	}
}

// Connect handles GET /api/realtime requests.
func (h *RealtimeHandler) Connect(w http.ResponseWriter, r *http.Request) {
	actor := actorFrom(r)
	if actor.UserID == uuid.Nil {
		writeServiceError(w, model.ErrUnauthenticated, h.logger)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the error response.
		h.logger.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	channels := []string{events.UserChannel(actor.UserID)}
	if actor.IsAdmin() {
		channels = append(channels, events.AdminChannel)
	}

	h.logger.Debug().Str("user_id", actor.UserID.String()).Strs("channels", channels).Msg("realtime client connected")
	h.hub.Serve(h.root, conn, channels...)
}

func originChecker(allowed []string) func(r *http.Request) bool {
	set := make(map[string]bool, len(allowed))
	for _, origin := range allowed {
		origin = strings.TrimSpace(origin)
		if origin == "*" {
			return func(*http.Request) bool { return true }
		}
		set[origin] = true
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		if set[origin] {
			return true
		}
		u, err := url.Parse(origin)
		return err == nil && strings.EqualFold(u.Host, r.Host)
	}
}
