package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"keyvault-glow/internal/events"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func receive(t *testing.T, sub *Subscription) map[string]any {
	t.Helper()
	select {
	case payload := <-sub.C():
		var decoded map[string]any
		require.NoError(t, json.Unmarshal(payload, &decoded))
		return decoded
	case <-time.After(time.Second):
		t.Fatal("no event received")
		return nil
	}
}

func TestHub_RoutesByChannel(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	customer := uuid.New()

	customerSub := hub.Subscribe(events.UserChannel(customer))
	adminSub := hub.Subscribe(events.UserChannel(uuid.New()), events.AdminChannel)
	defer customerSub.Close()
	defer adminSub.Close()

	err := hub.Publish(context.Background(),
		events.New(events.OrderStatusChanged, "o1", map[string]string{"status": "approved"}, events.UserChannel(customer)))
	require.NoError(t, err)

	got := receive(t, customerSub)
	assert.Equal(t, "order.status_changed", got["type"])
	assert.Len(t, adminSub.C(), 0)

	require.NoError(t, hub.Publish(context.Background(),
		events.New(events.RefundEscalated, "r1", nil, events.AdminChannel, events.UserChannel(customer))))
	assert.Equal(t, "refund.escalated", receive(t, adminSub)["type"])
	assert.Equal(t, "refund.escalated", receive(t, customerSub)["type"])
}

func TestHub_DeliversOncePerSubscription(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	userID := uuid.New()

	sub := hub.Subscribe(events.UserChannel(userID), events.UserChannel(userID), events.AdminChannel)
	defer sub.Close()
	assert.Equal(t, 1, hub.Subscribers(events.UserChannel(userID)))

	require.NoError(t, hub.Publish(context.Background(),
		events.New(events.RefundDecided, "r", nil, events.UserChannel(userID), events.AdminChannel)))

	receive(t, sub)
	assert.Len(t, sub.C(), 0)
}

func TestHub_CloseUnsubscribes(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	sub := hub.Subscribe(events.AdminChannel)
	sub.Close()
	sub.Close()

	assert.Equal(t, 0, hub.Subscribers(events.AdminChannel))
	assert.NoError(t, hub.Publish(context.Background(), events.New(events.RefundSubmitted, "r", nil, events.AdminChannel)))
}

func TestHub_DropsSlowSubscriber(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	sub := hub.Subscribe(events.AdminChannel)

	for i := 0; i < sendBuffer+1; i++ {
		require.NoError(t, hub.Publish(context.Background(), events.New(events.RefundSubmitted, "r", nil, events.AdminChannel)))
	}

	assert.Equal(t, 0, hub.Subscribers(events.AdminChannel))
	drained := 0
	for range sub.C() {
		drained++
	}
	assert.Equal(t, sendBuffer, drained)
}

func TestHub_ServeStreamsOverWebsocket(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	userID := uuid.New()
	upgrader := websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		hub.Serve(r.Context(), conn, events.UserChannel(userID))
	}))
	defer server.Close()

	url := "ws" + strings.TrimPrefix(server.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	var hello map[string]any
	require.NoError(t, conn.ReadJSON(&hello))
	assert.Equal(t, "connected", hello["type"])

	require.Eventually(t, func() bool {
		return hub.Subscribers(events.UserChannel(userID)) == 1
	}, time.Second, 10*time.Millisecond)

	require.NoError(t, hub.Publish(context.Background(),
		events.New(events.OrderStatusChanged, "o", map[string]string{"status": "approved"}, events.UserChannel(userID))))

	var pushed map[string]any
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	require.NoError(t, conn.ReadJSON(&pushed))
	assert.Equal(t, "order.status_changed", pushed["type"])
	assert.Equal(t, "approved", pushed["data"].(map[string]any)["status"])
}
